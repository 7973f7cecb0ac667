// Package relationaldb defines the persistence contract for balances, the
// ledger, payment escrows and connect accounts, together with the store's
// configuration and error taxonomy. The postgres subpackage implements it on
// database/sql.
package relationaldb

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the relational persistence layer. All mutating work happens
// inside a Tx so that the affected balance rows stay serialized; reads on
// the Store itself observe any committed state.
type Store interface {
	// Open establishes the connection pool and initializes the schema.
	Open(ctx context.Context) error

	// Close shuts down the connection pool.
	Close(ctx context.Context) error

	// Ping tests the connection. Used by the health probe.
	Ping(ctx context.Context) error

	// Begin starts a unit of work.
	Begin(ctx context.Context) (Tx, error)

	// GetBalance returns the client's balance, or a zeroed snapshot without
	// persisting anything when the client has no row yet.
	GetBalance(ctx context.Context, clientID uuid.UUID) (*Balance, error)

	// ListTransactions returns the client's ledger entries, most recent
	// first, up to limit.
	ListTransactions(ctx context.Context, clientID uuid.UUID, limit int) ([]Transaction, error)

	// RecentReadCredits returns the amounts of the client's most recent
	// message-read credits (both rails), newest first, up to limit. Feeds
	// the RAL computation.
	RecentReadCredits(ctx context.Context, clientID uuid.UUID, limit int) ([]int64, error)

	// Stats aggregates daily sums by reason and top clients by summed
	// amounts.
	Stats(ctx context.Context, since time.Time, topN int) (*Stats, error)

	// GetConnectAccount fetches a client's connect account, or
	// ErrConnectAccountNotFound.
	GetConnectAccount(ctx context.Context, clientID uuid.UUID) (*ConnectAccount, error)

	// CreateConnectAccount inserts a fresh inactive account with the given
	// oauth state.
	CreateConnectAccount(ctx context.Context, clientID, oauthState uuid.UUID) (*ConnectAccount, error)

	// ActivateConnectAccount persists the result of a completed OAuth
	// exchange.
	ActivateConnectAccount(ctx context.Context, clientID uuid.UUID, stripeUserID string, account, credentials []byte) (*ConnectAccount, error)

	// UpdateConnectAccountPrefs updates the automatic payout preferences.
	UpdateConnectAccountPrefs(ctx context.Context, clientID uuid.UUID, enable bool, thresholdCents int64) (*ConnectAccount, error)

	// InsertConnectTransfer writes the audit row of a completed payout.
	InsertConnectTransfer(ctx context.Context, t *ConnectTransfer) error

	// InsertCharge writes the audit row of a successful card charge.
	InsertCharge(ctx context.Context, clientID uuid.UUID, charge []byte) error

	// GetPayment returns the held payment with the given message hash, or
	// ErrPaymentNotFound.
	GetPayment(ctx context.Context, messageHash []byte) (*Payment, error)

	// ListExpiredPayments returns payments held since before cutoff.
	ListExpiredPayments(ctx context.Context, cutoff time.Time) ([]Payment, error)

	// ListPayoutCandidates returns clients eligible for an automatic payout:
	// active connect account, automatic payouts enabled, withdrawable at or
	// above threshold, and no transfer since the backoff cutoff.
	ListPayoutCandidates(ctx context.Context, transferCutoff time.Time) ([]PayoutCandidate, error)
}

// Tx is a single unit of work. Implementations must guarantee that a balance
// row locked through LockBalance stays locked until Commit or Rollback, so
// concurrent writers on the same client serialize.
type Tx interface {
	// LockBalance upserts the client's balance row and takes a row-level
	// write lock on it, returning the current snapshot.
	LockBalance(ctx context.Context, clientID uuid.UUID) (*Balance, error)

	// InsertEntries appends ledger entries. Entries are never updated after
	// insert.
	InsertEntries(ctx context.Context, entries []Entry) error

	// ApplyDelta adjusts a balance row previously locked in this unit of
	// work and returns the updated snapshot. Fails the unit if the result
	// violates the at-rest invariants (no negatives, withdrawable bounded
	// by balance).
	ApplyDelta(ctx context.Context, delta BalanceDelta) (*Balance, error)

	// InsertPayment inserts an escrow row. When a row with the same message
	// hash already exists it reports created=false and returns the stored
	// row untouched.
	InsertPayment(ctx context.Context, p NewPayment) (payment *Payment, created bool, err error)

	// TakePayment deletes and returns the payment with the given message
	// hash, or ErrPaymentNotFound.
	TakePayment(ctx context.Context, messageHash []byte) (*Payment, error)

	// Commit commits the unit of work.
	Commit() error

	// Rollback aborts the unit of work. Safe to call after Commit.
	Rollback() error
}
