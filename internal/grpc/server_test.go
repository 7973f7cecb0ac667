package grpc_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	rpc "github.com/umpyre/beancounterd/internal/grpc"
)

// startServer runs the fixture's server on its ephemeral port and returns a
// client connection to it.
func startServer(t *testing.T, f *fixture) *grpc.ClientConn {
	t.Helper()

	go func() {
		_ = f.server.Start()
	}()
	t.Cleanup(f.server.Stop)
	require.Eventually(t, func() bool {
		return f.server.IsRunning() && f.server.Address() != ""
	}, 5*time.Second, 10*time.Millisecond, "server did not come up")

	conn, err := grpc.NewClient(f.server.Address(),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestPaymentServiceServedOnWire(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clientID := uuid.New()

	_, err := f.server.AddCredits(ctx, &rpc.AddCreditsRequest{
		ClientID:    clientID.String(),
		AmountCents: 1500,
	})
	require.NoError(t, err)

	conn := startServer(t, f)

	var resp rpc.GetBalanceResponse
	err = conn.Invoke(ctx, "/"+rpc.ServiceName+"/GetBalance",
		&rpc.GetBalanceRequest{ClientID: clientID.String()}, &resp,
		grpc.CallContentSubtype("json"))
	require.NoError(t, err)
	require.NotNil(t, resp.Balance)
	require.Equal(t, int64(1500), resp.Balance.BalanceCents)

	// Validation failures come back as status errors over the wire too.
	var rejected rpc.GetBalanceResponse
	err = conn.Invoke(ctx, "/"+rpc.ServiceName+"/GetBalance",
		&rpc.GetBalanceRequest{ClientID: "not-a-uuid"}, &rejected,
		grpc.CallContentSubtype("json"))
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestHealthServedOnWire(t *testing.T) {
	f := newFixture(t)
	conn := startServer(t, f)

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
