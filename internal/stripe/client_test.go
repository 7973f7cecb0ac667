package stripe_test

import (
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/umpyre/beancounterd/internal/stripe"
)

func TestOauthURL(t *testing.T) {
	state := uuid.New()
	client := stripe.NewClient(stripe.Config{
		OauthClientID:    "ca_platform",
		OauthRedirectURI: "https://app.example.com/connect/return",
	}, zap.NewNop())

	parsed, err := url.Parse(client.OauthURL(state))
	require.NoError(t, err)
	require.Equal(t, "connect.stripe.com", parsed.Host)
	require.Equal(t, "/oauth/authorize", parsed.Path)

	q := parsed.Query()
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "ca_platform", q.Get("client_id"))
	require.Equal(t, "read_write", q.Get("scope"))
	require.Equal(t, state.String(), q.Get("state"))
	require.Equal(t, "https://app.example.com/connect/return", q.Get("redirect_uri"))
}

func TestOauthURLWithoutRedirectURI(t *testing.T) {
	client := stripe.NewClient(stripe.Config{OauthClientID: "ca_platform"}, zap.NewNop())

	parsed, err := url.Parse(client.OauthURL(uuid.New()))
	require.NoError(t, err)
	require.False(t, parsed.Query().Has("redirect_uri"),
		"an unset redirect URI falls back to the one registered with the provider")
}
