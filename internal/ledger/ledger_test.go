package ledger_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/umpyre/beancounterd/internal/ledger"
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

// holdInUnit runs Hold in its own unit of work, the way the escrow service
// wraps it.
func holdInUnit(t *testing.T, store relationaldb.Store, l *ledger.Ledger, clientID uuid.UUID, amount int64, isPromo bool) (*relationaldb.Balance, error) {
	t.Helper()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	balance, err := l.Hold(ctx, tx, clientID, amount, isPromo)
	if err != nil {
		return nil, err
	}
	require.NoError(t, tx.Commit())
	return balance, nil
}

func releaseInUnit(t *testing.T, store relationaldb.Store, l *ledger.Ledger, clientID uuid.UUID, amount int64, isPromo bool) (*relationaldb.Balance, int64) {
	t.Helper()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	balance, fee, err := l.Release(ctx, tx, clientID, amount, isPromo)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return balance, fee
}

func TestAddCreditsDoesNotTouchWithdrawable(t *testing.T) {
	store := newTestStore(t)
	l := ledger.New(store, ledger.DefaultFeeRate)
	clientID := uuid.New()

	balance, err := l.AddCredits(context.Background(), clientID, 5000)
	require.NoError(t, err)
	require.Equal(t, int64(5000), balance.BalanceCents)
	require.Zero(t, balance.WithdrawableCents, "top-ups are spendable but not cashable")
	require.Zero(t, balance.PromoCents)
}

func TestAddPromo(t *testing.T) {
	store := newTestStore(t)
	l := ledger.New(store, ledger.DefaultFeeRate)
	clientID := uuid.New()

	balance, err := l.AddPromo(context.Background(), clientID, 300)
	require.NoError(t, err)
	require.Equal(t, int64(300), balance.PromoCents)
	require.Zero(t, balance.BalanceCents)
}

func TestHoldInsufficientFunds(t *testing.T) {
	store := newTestStore(t)
	l := ledger.New(store, ledger.DefaultFeeRate)
	clientID := uuid.New()

	_, err := l.AddCredits(context.Background(), clientID, 100)
	require.NoError(t, err)

	_, err = holdInUnit(t, store, l, clientID, 200, false)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	_, err = holdInUnit(t, store, l, clientID, 1, true)
	require.ErrorIs(t, err, ledger.ErrInsufficientPromo, "promo holds check the promo rail")

	balance, err := store.GetBalance(context.Background(), clientID)
	require.NoError(t, err)
	require.Equal(t, int64(100), balance.BalanceCents, "failed holds leave the balance intact")
}

func TestHoldClampsWithdrawable(t *testing.T) {
	store := newTestStore(t)
	l := ledger.New(store, ledger.DefaultFeeRate)
	funder := uuid.New()
	earner := uuid.New()

	// Give the earner withdrawable funds through a full message cycle.
	_, err := l.AddCredits(context.Background(), funder, 1000)
	require.NoError(t, err)
	_, err = holdInUnit(t, store, l, funder, 1000, false)
	require.NoError(t, err)
	balance, fee := releaseInUnit(t, store, l, earner, 1000, false)
	require.Equal(t, int64(30), fee)
	require.Equal(t, int64(970), balance.BalanceCents)
	require.Equal(t, int64(970), balance.WithdrawableCents)

	// Spending below the withdrawable level clamps it to the remainder.
	balance, err = holdInUnit(t, store, l, earner, 900, false)
	require.NoError(t, err)
	require.Equal(t, int64(70), balance.BalanceCents)
	require.Equal(t, int64(70), balance.WithdrawableCents, "withdrawable clamps down to the remaining balance")
}

func TestHoldLeavesWithdrawableWhenCovered(t *testing.T) {
	store := newTestStore(t)
	l := ledger.New(store, ledger.DefaultFeeRate)
	clientID := uuid.New()

	// 970 withdrawable out of 1970 total.
	_, err := l.AddCredits(context.Background(), clientID, 1000)
	require.NoError(t, err)
	balance, _ := releaseInUnit(t, store, l, clientID, 1000, false)
	require.Equal(t, int64(1970), balance.BalanceCents)
	require.Equal(t, int64(970), balance.WithdrawableCents)

	balance, err = holdInUnit(t, store, l, clientID, 500, false)
	require.NoError(t, err)
	require.Equal(t, int64(1470), balance.BalanceCents)
	require.Equal(t, int64(970), balance.WithdrawableCents, "withdrawable untouched while balance covers it")
}

func TestReleasePromoKeepsFullAmount(t *testing.T) {
	store := newTestStore(t)
	l := ledger.New(store, ledger.DefaultFeeRate)
	recipient := uuid.New()

	balance, fee := releaseInUnit(t, store, l, recipient, 500, true)
	require.Zero(t, fee, "promo settlements carry no fee")
	require.Equal(t, int64(500), balance.PromoCents)
	require.Zero(t, balance.BalanceCents)
	require.Zero(t, balance.WithdrawableCents, "promo funds never become withdrawable")
}

func TestRefundMirrorsHold(t *testing.T) {
	store := newTestStore(t)
	l := ledger.New(store, ledger.DefaultFeeRate)
	clientID := uuid.New()
	ctx := context.Background()

	_, err := l.AddCredits(ctx, clientID, 1000)
	require.NoError(t, err)
	_, err = holdInUnit(t, store, l, clientID, 400, false)
	require.NoError(t, err)

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	balance, err := l.Refund(ctx, tx, clientID, 400, false)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.Equal(t, int64(1000), balance.BalanceCents, "refund restores the exact held amount")

	rows, err := store.ListTransactions(ctx, clientID, 10)
	require.NoError(t, err)
	require.Equal(t, relationaldb.TxReasonMessageUnread, rows[0].TxReason)
	require.Equal(t, relationaldb.TxTypeCredit, rows[0].TxType)
}

func TestPayoutRequiresWithdrawable(t *testing.T) {
	store := newTestStore(t)
	l := ledger.New(store, ledger.DefaultFeeRate)
	clientID := uuid.New()
	ctx := context.Background()

	// Balance is ample but nothing is withdrawable yet.
	_, err := l.AddCredits(ctx, clientID, 5000)
	require.NoError(t, err)
	_, err = l.Payout(ctx, clientID, 1000)
	require.ErrorIs(t, err, ledger.ErrInsufficientWithdrawable)

	balance, _ := releaseInUnit(t, store, l, clientID, 1000, false)
	require.Equal(t, int64(970), balance.WithdrawableCents)

	balance, err = l.Payout(ctx, clientID, 500)
	require.NoError(t, err)
	require.Equal(t, int64(5470), balance.BalanceCents)
	require.Equal(t, int64(470), balance.WithdrawableCents)
}

func TestCompensateRestoresPayout(t *testing.T) {
	store := newTestStore(t)
	l := ledger.New(store, ledger.DefaultFeeRate)
	clientID := uuid.New()
	ctx := context.Background()

	balance, _ := releaseInUnit(t, store, l, clientID, 1000, false)
	before := *balance

	_, err := l.Payout(ctx, clientID, 500)
	require.NoError(t, err)
	balance, err = l.Compensate(ctx, clientID, 500)
	require.NoError(t, err)
	require.Equal(t, before.BalanceCents, balance.BalanceCents)
	require.Equal(t, before.WithdrawableCents, balance.WithdrawableCents)
}

func TestLedgerConservation(t *testing.T) {
	store := newTestStore(t)
	l := ledger.New(store, ledger.DefaultFeeRate)
	clientID := uuid.New()
	ctx := context.Background()

	_, err := l.AddCredits(ctx, clientID, 2000)
	require.NoError(t, err)
	_, err = holdInUnit(t, store, l, clientID, 700, false)
	require.NoError(t, err)
	releaseInUnit(t, store, l, clientID, 300, false)

	rows, err := store.ListTransactions(ctx, clientID, 100)
	require.NoError(t, err)

	var realSum int64
	for _, row := range rows {
		if !row.TxType.IsPromo() {
			realSum += row.TxType.Sign() * row.AmountCents
		}
	}
	balance, err := store.GetBalance(ctx, clientID)
	require.NoError(t, err)
	require.Equal(t, balance.BalanceCents, realSum, "signed entry sum equals the stored balance")
}
