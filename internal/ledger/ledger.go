// Package ledger is the double-entry posting engine. It is the sole mutator
// of balance rows: every operation locks the affected balance, appends
// ledger entries and applies the matching delta in one unit of work, so the
// per-rail signed sums always equal the stored balances.
package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/umpyre/beancounterd/internal/storage/relationaldb"
)

// Business pre-condition failures. The facade reports these in-band, never
// as transport errors.
var (
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrInsufficientPromo        = errors.New("insufficient promo balance")
	ErrInsufficientWithdrawable = errors.New("insufficient withdrawable balance")
)

// Ledger posts fund movements against the real and promo rails.
type Ledger struct {
	store   relationaldb.Store
	feeRate float64
}

// New creates a posting engine using the given fee rate for real-money
// settlements.
func New(store relationaldb.Store, feeRate float64) *Ledger {
	if feeRate <= 0 || feeRate >= 1 {
		feeRate = DefaultFeeRate
	}
	return &Ledger{store: store, feeRate: feeRate}
}

// Fee returns the platform fee for a payment of the given gross amount.
func (l *Ledger) Fee(amountCents int64) int64 {
	return Fee(amountCents, l.feeRate)
}

// inUnit runs fn inside its own unit of work and returns the balance it
// produced.
func (l *Ledger) inUnit(ctx context.Context, fn func(tx relationaldb.Tx) (*relationaldb.Balance, error)) (*relationaldb.Balance, error) {
	tx, err := l.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	balance, err := fn(tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return balance, nil
}

// AddCredits credits a top-up to the client's spendable balance. Top-ups are
// spendable but not cashable, so withdrawable is untouched.
func (l *Ledger) AddCredits(ctx context.Context, clientID uuid.UUID, amountCents int64) (*relationaldb.Balance, error) {
	return l.inUnit(ctx, func(tx relationaldb.Tx) (*relationaldb.Balance, error) {
		if _, err := tx.LockBalance(ctx, clientID); err != nil {
			return nil, err
		}
		entry := relationaldb.Entry{
			ClientID:    clientID,
			TxType:      relationaldb.TxTypeCredit,
			TxReason:    relationaldb.TxReasonCreditAdded,
			AmountCents: amountCents,
		}
		if err := tx.InsertEntries(ctx, []relationaldb.Entry{entry}); err != nil {
			return nil, err
		}
		return tx.ApplyDelta(ctx, relationaldb.BalanceDelta{ClientID: clientID, BalanceCents: amountCents})
	})
}

// AddPromo credits promotional funds to the client's promo rail.
func (l *Ledger) AddPromo(ctx context.Context, clientID uuid.UUID, amountCents int64) (*relationaldb.Balance, error) {
	return l.inUnit(ctx, func(tx relationaldb.Tx) (*relationaldb.Balance, error) {
		if _, err := tx.LockBalance(ctx, clientID); err != nil {
			return nil, err
		}
		entry := relationaldb.Entry{
			ClientID:    clientID,
			TxType:      relationaldb.TxTypePromoCredit,
			TxReason:    relationaldb.TxReasonCreditAdded,
			AmountCents: amountCents,
		}
		if err := tx.InsertEntries(ctx, []relationaldb.Entry{entry}); err != nil {
			return nil, err
		}
		return tx.ApplyDelta(ctx, relationaldb.BalanceDelta{ClientID: clientID, PromoCents: amountCents})
	})
}

// Hold debits the sender for a payment within the caller's unit of work,
// alongside the escrow row insert. On the real rail the withdrawable
// sub-pool is clamped down if the remaining balance drops below it.
func (l *Ledger) Hold(ctx context.Context, tx relationaldb.Tx, senderID uuid.UUID, amountCents int64, isPromo bool) (*relationaldb.Balance, error) {
	balance, err := tx.LockBalance(ctx, senderID)
	if err != nil {
		return nil, err
	}

	if isPromo {
		if balance.PromoCents < amountCents {
			return nil, ErrInsufficientPromo
		}
		entry := relationaldb.Entry{
			ClientID:    senderID,
			TxType:      relationaldb.TxTypePromoDebit,
			TxReason:    relationaldb.TxReasonMessageSent,
			AmountCents: amountCents,
		}
		if err := tx.InsertEntries(ctx, []relationaldb.Entry{entry}); err != nil {
			return nil, err
		}
		return tx.ApplyDelta(ctx, relationaldb.BalanceDelta{ClientID: senderID, PromoCents: -amountCents})
	}

	if balance.BalanceCents < amountCents {
		return nil, ErrInsufficientBalance
	}
	entry := relationaldb.Entry{
		ClientID:    senderID,
		TxType:      relationaldb.TxTypeDebit,
		TxReason:    relationaldb.TxReasonMessageSent,
		AmountCents: amountCents,
	}
	if err := tx.InsertEntries(ctx, []relationaldb.Entry{entry}); err != nil {
		return nil, err
	}

	delta := relationaldb.BalanceDelta{ClientID: senderID, BalanceCents: -amountCents}
	if remaining := balance.BalanceCents - amountCents; remaining < balance.WithdrawableCents {
		delta.WithdrawableCents = remaining - balance.WithdrawableCents
	}
	return tx.ApplyDelta(ctx, delta)
}

// Release credits the recipient for a settled payment within the caller's
// unit of work. Real-money settlements are net of fee and become
// withdrawable; promo settlements transfer the full amount with no fee.
func (l *Ledger) Release(ctx context.Context, tx relationaldb.Tx, recipientID uuid.UUID, amountCents int64, isPromo bool) (*relationaldb.Balance, int64, error) {
	if _, err := tx.LockBalance(ctx, recipientID); err != nil {
		return nil, 0, err
	}

	if isPromo {
		entry := relationaldb.Entry{
			ClientID:    recipientID,
			TxType:      relationaldb.TxTypePromoCredit,
			TxReason:    relationaldb.TxReasonMessageRead,
			AmountCents: amountCents,
		}
		if err := tx.InsertEntries(ctx, []relationaldb.Entry{entry}); err != nil {
			return nil, 0, err
		}
		balance, err := tx.ApplyDelta(ctx, relationaldb.BalanceDelta{ClientID: recipientID, PromoCents: amountCents})
		return balance, 0, err
	}

	fee := l.Fee(amountCents)
	net := amountCents - fee
	if net > 0 {
		entry := relationaldb.Entry{
			ClientID:    recipientID,
			TxType:      relationaldb.TxTypeCredit,
			TxReason:    relationaldb.TxReasonMessageRead,
			AmountCents: net,
		}
		if err := tx.InsertEntries(ctx, []relationaldb.Entry{entry}); err != nil {
			return nil, 0, err
		}
	}
	balance, err := tx.ApplyDelta(ctx, relationaldb.BalanceDelta{
		ClientID:          recipientID,
		BalanceCents:      net,
		WithdrawableCents: net,
	})
	return balance, fee, err
}

// Refund restores an expired hold to the sender within the caller's unit of
// work, mirroring Hold on the same rail.
func (l *Ledger) Refund(ctx context.Context, tx relationaldb.Tx, senderID uuid.UUID, amountCents int64, isPromo bool) (*relationaldb.Balance, error) {
	if _, err := tx.LockBalance(ctx, senderID); err != nil {
		return nil, err
	}

	txType := relationaldb.TxTypeCredit
	delta := relationaldb.BalanceDelta{ClientID: senderID, BalanceCents: amountCents}
	if isPromo {
		txType = relationaldb.TxTypePromoCredit
		delta = relationaldb.BalanceDelta{ClientID: senderID, PromoCents: amountCents}
	}
	entry := relationaldb.Entry{
		ClientID:    senderID,
		TxType:      txType,
		TxReason:    relationaldb.TxReasonMessageUnread,
		AmountCents: amountCents,
	}
	if err := tx.InsertEntries(ctx, []relationaldb.Entry{entry}); err != nil {
		return nil, err
	}
	return tx.ApplyDelta(ctx, delta)
}

// Payout debits withdrawable funds ahead of an outbound transfer.
func (l *Ledger) Payout(ctx context.Context, clientID uuid.UUID, amountCents int64) (*relationaldb.Balance, error) {
	return l.inUnit(ctx, func(tx relationaldb.Tx) (*relationaldb.Balance, error) {
		balance, err := tx.LockBalance(ctx, clientID)
		if err != nil {
			return nil, err
		}
		if balance.WithdrawableCents < amountCents {
			return nil, ErrInsufficientWithdrawable
		}
		entry := relationaldb.Entry{
			ClientID:    clientID,
			TxType:      relationaldb.TxTypeDebit,
			TxReason:    relationaldb.TxReasonPayout,
			AmountCents: amountCents,
		}
		if err := tx.InsertEntries(ctx, []relationaldb.Entry{entry}); err != nil {
			return nil, err
		}
		return tx.ApplyDelta(ctx, relationaldb.BalanceDelta{
			ClientID:          clientID,
			BalanceCents:      -amountCents,
			WithdrawableCents: -amountCents,
		})
	})
}

// Compensate reverses a payout whose external transfer failed, restoring
// both the balance and the withdrawable sub-pool.
func (l *Ledger) Compensate(ctx context.Context, clientID uuid.UUID, amountCents int64) (*relationaldb.Balance, error) {
	return l.inUnit(ctx, func(tx relationaldb.Tx) (*relationaldb.Balance, error) {
		if _, err := tx.LockBalance(ctx, clientID); err != nil {
			return nil, err
		}
		entry := relationaldb.Entry{
			ClientID:    clientID,
			TxType:      relationaldb.TxTypeCredit,
			TxReason:    relationaldb.TxReasonPayout,
			AmountCents: amountCents,
		}
		if err := tx.InsertEntries(ctx, []relationaldb.Entry{entry}); err != nil {
			return nil, err
		}
		return tx.ApplyDelta(ctx, relationaldb.BalanceDelta{
			ClientID:          clientID,
			BalanceCents:      amountCents,
			WithdrawableCents: amountCents,
		})
	})
}
