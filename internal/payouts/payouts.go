// Package payouts moves withdrawable funds out to connected card-processor
// accounts, on demand and via the periodic sweeps.
package payouts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/umpyre/beancounterd/internal/ledger"
	"github.com/umpyre/beancounterd/internal/storage/relationaldb"
)

// ConnectTransfers executes transfers to connected accounts.
type ConnectTransfers interface {
	Transfer(ctx context.Context, stripeUserID string, amountCents int64) (transferID string, err error)
}

// Payer runs a single payout: debit the client's withdrawable funds, execute
// the external transfer, and either record the transfer or compensate the
// debit when the transfer fails.
type Payer struct {
	store     relationaldb.Store
	ledger    *ledger.Ledger
	transfers ConnectTransfers
	log       *zap.Logger
}

// NewPayer creates a payout executor.
func NewPayer(store relationaldb.Store, l *ledger.Ledger, transfers ConnectTransfers, log *zap.Logger) *Payer {
	return &Payer{store: store, ledger: l, transfers: transfers, log: log}
}

// Pay debits amountCents from the client and transfers it to the connected
// account. The debit happens first so funds can never be paid out twice; a
// failed transfer is compensated with a matching credit.
func (p *Payer) Pay(ctx context.Context, clientID uuid.UUID, stripeUserID string, amountCents int64) (*relationaldb.Balance, error) {
	balance, err := p.ledger.Payout(ctx, clientID, amountCents)
	if err != nil {
		return nil, err
	}

	transferID, err := p.transfers.Transfer(ctx, stripeUserID, amountCents)
	if err != nil {
		p.log.Error("connect transfer failed, compensating",
			zap.String("client_id", clientID.String()),
			zap.Int64("amount_cents", amountCents),
			zap.Error(err))
		if balance, cerr := p.ledger.Compensate(ctx, clientID, amountCents); cerr != nil {
			// The debit is committed and could not be reversed. Operators
			// must restore the funds by hand.
			p.log.Error("payout compensation failed",
				zap.String("client_id", clientID.String()),
				zap.Int64("amount_cents", amountCents),
				zap.Error(cerr))
			return balance, fmt.Errorf("compensating failed transfer: %w", cerr)
		}
		return nil, err
	}

	if err := p.store.InsertConnectTransfer(ctx, &relationaldb.ConnectTransfer{
		ClientID:     clientID,
		StripeUserID: stripeUserID,
		AmountCents:  amountCents,
		TransferID:   transferID,
	}); err != nil {
		// The money moved; losing the audit row must not fail the payout.
		p.log.Error("failed to record connect transfer",
			zap.String("client_id", clientID.String()),
			zap.String("transfer_id", transferID),
			zap.Error(err))
	}

	p.log.Info("payout complete",
		zap.String("client_id", clientID.String()),
		zap.String("transfer_id", transferID),
		zap.Int64("amount_cents", amountCents))
	return balance, nil
}
