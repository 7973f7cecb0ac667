// Package stripe adapts the card processor's API to the thin capabilities
// the rest of the service consumes: card charges, connect transfers and the
// connect OAuth handshake.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"

	"github.com/google/uuid"
	stripeapi "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.uber.org/zap"
)

// connectAuthorizeURL is the provider's OAuth entry point for onboarding
// connected accounts.
const connectAuthorizeURL = "https://connect.stripe.com/oauth/authorize"

// Config holds the provider credentials and connect OAuth settings.
type Config struct {
	// SecretKey authenticates API calls.
	SecretKey string

	// OauthClientID identifies the platform in connect OAuth flows.
	OauthClientID string

	// OauthSecret, when set, is sent as the client secret in the token
	// exchange instead of the API key.
	OauthSecret string

	// OauthRedirectURI, when set, is sent on the authorize URL. It must
	// match a redirect URI registered with the provider.
	OauthRedirectURI string
}

// Client wraps the provider SDK.
type Client struct {
	api *client.API
	cfg Config
	log *zap.Logger
}

// NewClient creates a provider client authenticated with the configured
// secret key.
func NewClient(cfg Config, log *zap.Logger) *Client {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &Client{api: api, cfg: cfg, log: log}
}

// ChargeOutcome is the result of a card charge attempt. A declined or
// rejected charge is an outcome, not an error: OK is false and APIResponse
// and Message carry the provider's explanation.
type ChargeOutcome struct {
	OK          bool
	APIResponse []byte
	Message     string
}

// Charge charges amountCents against the opaque card token. The originating
// client id is attached as charge metadata for reconciliation.
func (c *Client) Charge(ctx context.Context, clientID uuid.UUID, amountCents int64, token string) (*ChargeOutcome, error) {
	params := &stripeapi.ChargeParams{
		Params:   stripeapi.Params{Context: ctx},
		Amount:   stripeapi.Int64(amountCents),
		Currency: stripeapi.String(string(stripeapi.CurrencyUSD)),
	}
	params.AddMetadata("client_id", clientID.String())
	if err := params.SetSource(token); err != nil {
		return nil, err
	}

	charge, err := c.api.Charges.New(params)
	if err != nil {
		var stripeErr *stripeapi.Error
		if errors.As(err, &stripeErr) {
			c.log.Warn("card charge rejected",
				zap.String("client_id", clientID.String()),
				zap.Int64("amount_cents", amountCents),
				zap.String("code", string(stripeErr.Code)))
			outcome := &ChargeOutcome{Message: stripeErr.Msg}
			if stripeErr.LastResponse != nil {
				outcome.APIResponse = stripeErr.LastResponse.RawJSON
			}
			return outcome, nil
		}
		return nil, err
	}

	raw, err := json.Marshal(charge)
	if err != nil {
		return nil, err
	}
	return &ChargeOutcome{OK: true, APIResponse: raw, Message: string(charge.Status)}, nil
}

// Transfer moves amountCents to the connected account and returns the
// provider's transfer id.
func (c *Client) Transfer(ctx context.Context, stripeUserID string, amountCents int64) (string, error) {
	transfer, err := c.api.Transfers.New(&stripeapi.TransferParams{
		Params:      stripeapi.Params{Context: ctx},
		Amount:      stripeapi.Int64(amountCents),
		Currency:    stripeapi.String(string(stripeapi.CurrencyUSD)),
		Destination: stripeapi.String(stripeUserID),
	})
	if err != nil {
		return "", err
	}
	return transfer.ID, nil
}

// OauthURL builds the onboarding URL a client visits to connect their
// account. state is the CSRF token stored on the pending account row.
func (c *Client) OauthURL(state uuid.UUID) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.OauthClientID)
	q.Set("scope", "read_write")
	q.Set("state", state.String())
	if c.cfg.OauthRedirectURI != "" {
		q.Set("redirect_uri", c.cfg.OauthRedirectURI)
	}
	return connectAuthorizeURL + "?" + q.Encode()
}

// ExchangeCode completes the OAuth handshake: the authorization code is
// exchanged for connect credentials and the connected account is fetched.
// Both are returned as opaque JSON for storage alongside the stripe user id.
func (c *Client) ExchangeCode(ctx context.Context, code string) (stripeUserID string, account, credentials []byte, err error) {
	params := &stripeapi.OAuthTokenParams{
		Params:    stripeapi.Params{Context: ctx},
		GrantType: stripeapi.String("authorization_code"),
		Code:      stripeapi.String(code),
	}
	if c.cfg.OauthSecret != "" {
		params.ClientSecret = stripeapi.String(c.cfg.OauthSecret)
	}
	token, err := c.api.OAuth.New(params)
	if err != nil {
		return "", nil, nil, err
	}

	if credentials, err = json.Marshal(token); err != nil {
		return "", nil, nil, err
	}

	acct, err := c.api.Accounts.GetByID(token.StripeUserID, &stripeapi.AccountParams{
		Params: stripeapi.Params{Context: ctx},
	})
	if err != nil {
		// The credentials are valid even if the account fetch fails; store
		// them with an empty account blob rather than aborting onboarding.
		c.log.Warn("connected account fetch failed",
			zap.String("stripe_user_id", token.StripeUserID),
			zap.Error(err))
		return token.StripeUserID, nil, credentials, nil
	}
	if account, err = json.Marshal(acct); err != nil {
		return "", nil, nil, err
	}
	return token.StripeUserID, account, credentials, nil
}

// LoginLink creates a single-use dashboard login link for an active
// connected account.
func (c *Client) LoginLink(ctx context.Context, stripeUserID string) (string, error) {
	link, err := c.api.LoginLinks.New(&stripeapi.LoginLinkParams{
		Params:  stripeapi.Params{Context: ctx},
		Account: stripeapi.String(stripeUserID),
	})
	if err != nil {
		return "", err
	}
	return link.URL, nil
}
