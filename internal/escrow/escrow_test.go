package escrow_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/umpyre/beancounterd/internal/escrow"
	"github.com/umpyre/beancounterd/internal/ledger"
	"github.com/umpyre/beancounterd/internal/payouts"
	"github.com/umpyre/beancounterd/internal/storage/relationaldb"
	"github.com/umpyre/beancounterd/internal/storage/relationaldb/postgres"
)

type fixture struct {
	store  relationaldb.Store
	ledger *ledger.Ledger
	escrow *escrow.Service
}

func newFixture(t *testing.T) *fixture {
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

	l := ledger.New(store, ledger.DefaultFeeRate)
	return &fixture{
		store:  store,
		ledger: l,
		escrow: escrow.NewService(store, l, zap.NewNop()),
	}
}

func TestAddHoldsFundsAndInsertsPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := uuid.New()

	_, err := f.ledger.AddCredits(ctx, sender, 1000)
	require.NoError(t, err)

	result, err := f.escrow.Add(ctx, sender, nil, []byte("hash-1"), 400, false)
	require.NoError(t, err)
	require.False(t, result.Duplicate)
	require.Equal(t, int64(600), result.Balance.BalanceCents)
}

func TestAddIsIdempotentPerMessageHash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := uuid.New()
	hash := []byte("hash-dup")

	_, err := f.ledger.AddCredits(ctx, sender, 1000)
	require.NoError(t, err)

	first, err := f.escrow.Add(ctx, sender, nil, hash, 400, false)
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	second, err := f.escrow.Add(ctx, sender, nil, hash, 400, false)
	require.NoError(t, err)
	require.True(t, second.Duplicate, "re-submitting the same hash succeeds without a second hold")
	require.Equal(t, int64(600), second.Balance.BalanceCents, "no double debit")

	rows, err := f.store.ListTransactions(ctx, sender, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2, "one credit, one hold; the duplicate posted nothing")
}

func TestAddAfterExpiryRefundHoldsAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := uuid.New()
	hash := []byte("hash-expired")

	_, err := f.ledger.AddCredits(ctx, sender, 1000)
	require.NoError(t, err)
	first, err := f.escrow.Add(ctx, sender, nil, hash, 400, false)
	require.NoError(t, err)
	require.Equal(t, int64(600), first.Balance.BalanceCents)

	// A negative expiry makes every hold count as expired, so the sweep
	// refunds the hold the service just cached.
	sweeper := payouts.NewSweeper(f.store, f.ledger, nil, zap.NewNop(), -time.Minute, time.Hour)
	require.NoError(t, sweeper.RefundExpired(ctx))

	balance, err := f.store.GetBalance(ctx, sender)
	require.NoError(t, err)
	require.Equal(t, int64(1000), balance.BalanceCents, "refund restored the hold")

	// The refund deleted the escrow row, so the hash is Absent again and a
	// second add must hold funds, not answer as a duplicate.
	again, err := f.escrow.Add(ctx, sender, nil, hash, 400, false)
	require.NoError(t, err)
	require.False(t, again.Duplicate, "refunded hash holds again")
	require.Equal(t, int64(600), again.Balance.BalanceCents)

	_, err = f.store.GetPayment(ctx, hash)
	require.NoError(t, err, "second add re-inserted the escrow row")
}

func TestAddAfterSettleElsewhereHoldsAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := uuid.New()
	recipient := uuid.New()
	hash := []byte("hash-resend")

	_, err := f.ledger.AddCredits(ctx, sender, 1000)
	require.NoError(t, err)
	_, err = f.escrow.Add(ctx, sender, &recipient, hash, 400, false)
	require.NoError(t, err)

	// Settle through a second service instance, as another replica would:
	// the first instance's cache still holds the hash.
	other := escrow.NewService(f.store, f.ledger, zap.NewNop())
	_, err = other.Settle(ctx, recipient, hash)
	require.NoError(t, err)

	again, err := f.escrow.Add(ctx, sender, &recipient, hash, 400, false)
	require.NoError(t, err)
	require.False(t, again.Duplicate, "settled hash is free to hold again")
	require.Equal(t, int64(200), again.Balance.BalanceCents, "second hold debited the sender")
}

func TestAddInsufficientBalanceLeavesNoPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := uuid.New()
	hash := []byte("hash-poor")

	_, err := f.ledger.AddCredits(ctx, sender, 100)
	require.NoError(t, err)

	_, err = f.escrow.Add(ctx, sender, nil, hash, 400, false)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	// The failed unit of work must not have kept the escrow row; the hash is
	// reusable once funds exist.
	_, err = f.ledger.AddCredits(ctx, sender, 1000)
	require.NoError(t, err)
	result, err := f.escrow.Add(ctx, sender, nil, hash, 400, false)
	require.NoError(t, err)
	require.False(t, result.Duplicate, "hash from the failed attempt is free")
}

func TestAddPromoUsesPromoRail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := uuid.New()

	_, err := f.ledger.AddPromo(ctx, sender, 500)
	require.NoError(t, err)

	result, err := f.escrow.Add(ctx, sender, nil, []byte("hash-promo"), 500, true)
	require.NoError(t, err)
	require.Zero(t, result.Balance.PromoCents)
	require.Zero(t, result.Balance.BalanceCents)
}

func TestSettleCreditsNetOfFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := uuid.New()
	recipient := uuid.New()
	hash := []byte("hash-settle")

	_, err := f.ledger.AddCredits(ctx, sender, 1000)
	require.NoError(t, err)
	_, err = f.escrow.Add(ctx, sender, &recipient, hash, 1000, false)
	require.NoError(t, err)

	result, err := f.escrow.Settle(ctx, recipient, hash)
	require.NoError(t, err)
	require.Equal(t, int64(1000), result.PaymentCents)
	require.Equal(t, int64(30), result.FeeCents)
	require.Equal(t, int64(970), result.Balance.BalanceCents)
	require.Equal(t, int64(970), result.Balance.WithdrawableCents, "settled funds become withdrawable")

	_, err = f.escrow.Settle(ctx, recipient, hash)
	require.ErrorIs(t, err, relationaldb.ErrPaymentNotFound, "a settled payment cannot settle twice")
}

func TestSettlePromoTransfersFullAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := uuid.New()
	recipient := uuid.New()
	hash := []byte("hash-settle-promo")

	_, err := f.ledger.AddPromo(ctx, sender, 500)
	require.NoError(t, err)
	_, err = f.escrow.Add(ctx, sender, &recipient, hash, 500, true)
	require.NoError(t, err)

	result, err := f.escrow.Settle(ctx, recipient, hash)
	require.NoError(t, err)
	require.True(t, result.IsPromo)
	require.Zero(t, result.FeeCents)
	require.Equal(t, int64(500), result.Balance.PromoCents)
	require.Zero(t, result.Balance.WithdrawableCents)
}

func TestSettleWrongRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := uuid.New()
	recipient := uuid.New()
	hash := []byte("hash-wrong")

	_, err := f.ledger.AddCredits(ctx, sender, 1000)
	require.NoError(t, err)
	_, err = f.escrow.Add(ctx, sender, &recipient, hash, 300, false)
	require.NoError(t, err)

	_, err = f.escrow.Settle(ctx, uuid.New(), hash)
	require.ErrorIs(t, err, escrow.ErrWrongRecipient)

	// The failed settlement must not have consumed the payment.
	result, err := f.escrow.Settle(ctx, recipient, hash)
	require.NoError(t, err)
	require.Equal(t, int64(300), result.PaymentCents)
}

func TestSettleBindsOpenRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := uuid.New()
	reader := uuid.New()
	hash := []byte("hash-open")

	_, err := f.ledger.AddCredits(ctx, sender, 1000)
	require.NoError(t, err)
	_, err = f.escrow.Add(ctx, sender, nil, hash, 200, false)
	require.NoError(t, err)

	result, err := f.escrow.Settle(ctx, reader, hash)
	require.NoError(t, err, "a payment held without a recipient binds to the settling caller")
	require.Equal(t, reader.String(), result.Balance.ClientID.String())
}

func TestSettleUnknownHash(t *testing.T) {
	f := newFixture(t)

	_, err := f.escrow.Settle(context.Background(), uuid.New(), []byte("never-held"))
	require.ErrorIs(t, err, relationaldb.ErrPaymentNotFound)
}

func TestMinimumPaymentFeeConsumesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := uuid.New()
	recipient := uuid.New()
	hash := []byte("hash-one-cent")

	_, err := f.ledger.AddCredits(ctx, sender, 1)
	require.NoError(t, err)
	_, err = f.escrow.Add(ctx, sender, &recipient, hash, 1, false)
	require.NoError(t, err)

	result, err := f.escrow.Settle(ctx, recipient, hash)
	require.NoError(t, err)
	require.Equal(t, int64(1), result.FeeCents, "one cent payment is all fee")
	require.Zero(t, result.Balance.BalanceCents, "recipient nets nothing")
}
