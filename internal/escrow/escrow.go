// Package escrow implements the per-message payment state machine: a
// payment is Absent, Held (funds debited from the sender and staked against
// the message hash), or Settled (escrow row removed, recipient credited net
// of fee). The UNIQUE index on message_hash is the sole idempotency
// guarantee; an LRU of recently seen hashes lets Add answer a likely
// duplicate from reads, but only after confirming the row still exists.
package escrow

import (
	"context"
	"errors"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/umpyre/beancounterd/internal/ledger"
	"github.com/umpyre/beancounterd/internal/storage/relationaldb"
)

// ErrWrongRecipient is returned when a settlement names a recipient other
// than the one the payment was addressed to.
var ErrWrongRecipient = errors.New("payment addressed to a different recipient")

// recentHashCacheSize bounds the duplicate fast-path cache.
const recentHashCacheSize = 16384

// Service drives Add and Settle transitions.
type Service struct {
	store  relationaldb.Store
	ledger *ledger.Ledger
	log    *zap.Logger

	// recent caches message hashes seen by this process. A hit is only a
	// hint that the hold already happened: the row may have been settled
	// or refunded since (the expiry sweep, or another replica), so hits
	// are re-verified against the payments table before Add answers from
	// reads. The authoritative duplicate check stays the UNIQUE index.
	recent *lru.Cache[string, struct{}]
}

// NewService creates the escrow service.
func NewService(store relationaldb.Store, l *ledger.Ledger, log *zap.Logger) *Service {
	recent, _ := lru.New[string, struct{}](recentHashCacheSize)
	return &Service{store: store, ledger: l, log: log, recent: recent}
}

// AddResult reports the outcome of an Add transition.
type AddResult struct {
	Balance   *relationaldb.Balance
	Duplicate bool
}

// Add moves a payment from Absent to Held: the sender is debited and an
// escrow row keyed by messageHash is inserted, atomically. A second Add with
// the same hash is a no-op returning the sender's current balance.
func (s *Service) Add(ctx context.Context, senderID uuid.UUID, recipientID *uuid.UUID, messageHash []byte, amountCents int64, isPromo bool) (*AddResult, error) {
	if _, ok := s.recent.Get(string(messageHash)); ok {
		_, err := s.store.GetPayment(ctx, messageHash)
		switch {
		case err == nil:
			balance, err := s.store.GetBalance(ctx, senderID)
			if err != nil {
				return nil, err
			}
			return &AddResult{Balance: balance, Duplicate: true}, nil
		case errors.Is(err, relationaldb.ErrPaymentNotFound):
			// The hold is gone (settled or refunded), so this hash is
			// Absent again. Evict and take the insert path.
			s.recent.Remove(string(messageHash))
		default:
			return nil, err
		}
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	payment, created, err := tx.InsertPayment(ctx, relationaldb.NewPayment{
		ClientIDFrom: senderID,
		ClientIDTo:   recipientID,
		PaymentCents: amountCents,
		MessageHash:  messageHash,
		IsPromo:      isPromo,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		// Already held; roll back so nothing is double-debited and answer
		// with the sender's committed balance.
		if err := tx.Rollback(); err != nil {
			return nil, err
		}
		s.recent.Add(string(messageHash), struct{}{})
		s.log.Debug("duplicate payment add",
			zap.String("client_id_from", payment.ClientIDFrom.String()))
		balance, err := s.store.GetBalance(ctx, senderID)
		if err != nil {
			return nil, err
		}
		return &AddResult{Balance: balance, Duplicate: true}, nil
	}

	balance, err := s.ledger.Hold(ctx, tx, senderID, amountCents, isPromo)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.recent.Add(string(messageHash), struct{}{})
	return &AddResult{Balance: balance}, nil
}

// SettleResult reports the outcome of a Settle transition.
type SettleResult struct {
	Balance      *relationaldb.Balance
	PaymentCents int64
	FeeCents     int64
	IsPromo      bool
}

// Settle moves a payment from Held to Settled: the escrow row is removed and
// the recipient credited net of fee, atomically. Settling an unknown hash
// fails with relationaldb.ErrPaymentNotFound; a payment addressed to someone
// else fails with ErrWrongRecipient. A payment held without a recipient is
// bound to the caller at settlement.
func (s *Service) Settle(ctx context.Context, recipientID uuid.UUID, messageHash []byte) (*SettleResult, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	payment, err := tx.TakePayment(ctx, messageHash)
	if err != nil {
		return nil, err
	}
	if payment.ClientIDTo != nil && *payment.ClientIDTo != recipientID {
		return nil, ErrWrongRecipient
	}

	balance, fee, err := s.ledger.Release(ctx, tx, recipientID, payment.PaymentCents, payment.IsPromo)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.recent.Remove(string(messageHash))
	return &SettleResult{
		Balance:      balance,
		PaymentCents: payment.PaymentCents,
		FeeCents:     fee,
		IsPromo:      payment.IsPromo,
	}, nil
}
