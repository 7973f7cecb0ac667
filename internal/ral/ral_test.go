package ral_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/umpyre/beancounterd/internal/ral"
	"github.com/umpyre/beancounterd/internal/storage/relationaldb"
	"github.com/umpyre/beancounterd/internal/storage/relationaldb/postgres"
)

func newTestStore(t *testing.T) relationaldb.Store {
	t.Helper()

	cfg := &relationaldb.Config{
		Driver:         relationaldb.DriverSQLite,
		Path:           filepath.Join(t.TempDir(), "beancounter.db"),
		MaxOpenConns:   1,
		MaxIdleConns:   1,
		DefaultTimeout: 5 * time.Second,
	}
	store, err := postgres.NewStore(cfg)
	require.NoError(t, err)
	require.NoError(t, store.Open(context.Background()))
	t.Cleanup(func() {
		require.NoError(t, store.Close(context.Background()))
	})
	return store
}

func seedReadCredits(t *testing.T, store relationaldb.Store, clientID uuid.UUID, amounts ...int64) {
	t.Helper()
	entries := make([]relationaldb.Entry, 0, len(amounts))
	for _, amount := range amounts {
		entries = append(entries, relationaldb.Entry{
			ClientID:    clientID,
			TxType:      relationaldb.TxTypeCredit,
			TxReason:    relationaldb.TxReasonMessageRead,
			AmountCents: amount,
		})
	}
	tx, err := store.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.InsertEntries(context.Background(), entries))
	require.NoError(t, tx.Commit())
}

func TestEstimateMedian(t *testing.T) {
	testcases := []struct {
		name    string
		amounts []int64
		want    int32
	}{
		{name: "odd window takes the middle", amounts: []int64{100, 300, 200}, want: 200},
		{name: "even window rounds the midpoint", amounts: []int64{100, 200, 301, 400}, want: 251},
		{name: "exactly minimum samples", amounts: []int64{5, 5, 5}, want: 5},
		{name: "outliers do not dominate", amounts: []int64{10, 10, 10, 10, 100000}, want: 10},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			store := newTestStore(t)
			clientID := uuid.New()
			seedReadCredits(t, store, clientID, tc.amounts...)

			estimator := ral.NewEstimator(store, zap.NewNop(), ral.DefaultWindow, ral.DefaultMinSamples)
			require.Equal(t, tc.want, estimator.Estimate(context.Background(), clientID))
		})
	}
}

func TestEstimateTooFewSamples(t *testing.T) {
	store := newTestStore(t)
	clientID := uuid.New()
	seedReadCredits(t, store, clientID, 100, 200)

	estimator := ral.NewEstimator(store, zap.NewNop(), ral.DefaultWindow, ral.DefaultMinSamples)
	require.Equal(t, int32(ral.Unknown), estimator.Estimate(context.Background(), clientID))
}

func TestEstimateUnknownClient(t *testing.T) {
	store := newTestStore(t)

	estimator := ral.NewEstimator(store, zap.NewNop(), ral.DefaultWindow, ral.DefaultMinSamples)
	require.Equal(t, int32(ral.Unknown), estimator.Estimate(context.Background(), uuid.New()))
}

func TestEstimateHonorsWindow(t *testing.T) {
	store := newTestStore(t)
	clientID := uuid.New()
	// Old cheap reads followed by recent expensive ones; a window of 3 only
	// sees the recent reads.
	seedReadCredits(t, store, clientID, 1, 1, 1, 500, 600, 700)

	estimator := ral.NewEstimator(store, zap.NewNop(), 3, 3)
	require.Equal(t, int32(600), estimator.Estimate(context.Background(), clientID))
}

func TestEstimateStoreFailureReportsUnknown(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Close(context.Background()))

	estimator := ral.NewEstimator(store, zap.NewNop(), ral.DefaultWindow, ral.DefaultMinSamples)
	require.Equal(t, int32(ral.Unknown), estimator.Estimate(context.Background(), uuid.New()))
}
