package payouts

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/umpyre/beancounterd/internal/ledger"
	"github.com/umpyre/beancounterd/internal/storage/relationaldb"
)

// Sweeper runs the periodic maintenance passes: refunding escrow holds whose
// messages were never read, and paying out clients who opted in to automatic
// payouts.
type Sweeper struct {
	store  relationaldb.Store
	ledger *ledger.Ledger
	payer  *Payer
	log    *zap.Logger

	paymentExpiry  time.Duration
	transferWindow time.Duration
}

// NewSweeper creates a sweeper. paymentExpiry is how long a hold may sit
// unread before it is refunded; transferWindow is the minimum spacing between
// automatic payouts to the same client.
func NewSweeper(store relationaldb.Store, l *ledger.Ledger, payer *Payer, log *zap.Logger, paymentExpiry, transferWindow time.Duration) *Sweeper {
	return &Sweeper{
		store:          store,
		ledger:         l,
		payer:          payer,
		log:            log,
		paymentExpiry:  paymentExpiry,
		transferWindow: transferWindow,
	}
}

// Run executes one pass of both sweeps.
func (s *Sweeper) Run(ctx context.Context) error {
	if err := s.RefundExpired(ctx); err != nil {
		return err
	}
	return s.AutomaticPayouts(ctx)
}

// RefundExpired refunds every escrow hold older than the expiry window back
// to its sender. Each payment is handled in its own unit of work so one bad
// row cannot stall the sweep.
func (s *Sweeper) RefundExpired(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.paymentExpiry)
	payments, err := s.store.ListExpiredPayments(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(payments) == 0 {
		return nil
	}
	s.log.Info("refunding expired payments", zap.Int("count", len(payments)))

	for i := range payments {
		p := &payments[i]
		if err := s.refundOne(ctx, p); err != nil {
			s.log.Error("failed to refund expired payment",
				zap.String("client_id_from", p.ClientIDFrom.String()),
				zap.Int64("amount_cents", p.PaymentCents),
				zap.Error(err))
			continue
		}
		s.log.Debug("refunded expired payment",
			zap.String("client_id_from", p.ClientIDFrom.String()),
			zap.Int64("amount_cents", p.PaymentCents),
			zap.Bool("is_promo", p.IsPromo))
	}
	return nil
}

func (s *Sweeper) refundOne(ctx context.Context, p *relationaldb.Payment) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Re-take the row inside the unit of work: a payment settled since the
	// listing is gone, and must not be refunded on top.
	taken, err := tx.TakePayment(ctx, p.MessageHash)
	if errors.Is(err, relationaldb.ErrPaymentNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := s.ledger.Refund(ctx, tx, taken.ClientIDFrom, taken.PaymentCents, taken.IsPromo); err != nil {
		return err
	}
	return tx.Commit()
}

// AutomaticPayouts pays out every opted-in client whose withdrawable funds
// meet their threshold and who has not been paid within the transfer window.
// Failures are logged per client and the sweep continues.
func (s *Sweeper) AutomaticPayouts(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.transferWindow)
	candidates, err := s.store.ListPayoutCandidates(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}
	s.log.Info("running automatic payouts", zap.Int("count", len(candidates)))

	for _, c := range candidates {
		if _, err := s.payer.Pay(ctx, c.ClientID, c.StripeUserID, c.WithdrawableCents); err != nil {
			s.log.Error("automatic payout failed",
				zap.String("client_id", c.ClientID.String()),
				zap.Int64("amount_cents", c.WithdrawableCents),
				zap.Error(err))
		}
	}
	return nil
}
