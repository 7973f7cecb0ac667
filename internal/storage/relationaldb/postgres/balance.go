package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/umpyre/beancounterd/internal/storage/relationaldb"
)

const balanceColumns = "id, client_id, balance_cents, promo_cents, withdrawable_cents, created_at, updated_at"

func scanBalance(row *sql.Row) (*relationaldb.Balance, error) {
	var b relationaldb.Balance
	var clientID string
	err := row.Scan(&b.ID, &clientID, &b.BalanceCents, &b.PromoCents, &b.WithdrawableCents, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.ClientID, err = uuid.Parse(clientID)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBalance returns the client's balance without creating a row. Unknown
// clients get a zeroed snapshot.
func (s *Store) GetBalance(ctx context.Context, clientID uuid.UUID) (*relationaldb.Balance, error) {
	if s.db == nil {
		return nil, relationaldb.ErrDatabaseClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.DefaultTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+balanceColumns+` FROM balances WHERE client_id = $1`, clientID.String())
	b, err := scanBalance(row)
	if err == sql.ErrNoRows {
		now := time.Now().UTC()
		return &relationaldb.Balance{ClientID: clientID, CreatedAt: now, UpdatedAt: now}, nil
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_balance", "failed to query balance", err)
	}
	return b, nil
}

// LockBalance upserts the balance row and locks it for the remainder of the
// unit of work.
func (t *storeTx) LockBalance(ctx context.Context, clientID uuid.UUID) (*relationaldb.Balance, error) {
	now := time.Now().UTC()
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO balances (client_id, balance_cents, promo_cents, withdrawable_cents, created_at, updated_at)
		 VALUES ($1, 0, 0, 0, $2, $2)
		 ON CONFLICT (client_id) DO NOTHING`,
		clientID.String(), now)
	if err != nil {
		return nil, relationaldb.NewQueryError("lock_balance", "failed to init balance", err)
	}

	row := t.tx.QueryRowContext(ctx,
		`SELECT `+balanceColumns+` FROM balances WHERE client_id = $1`+lockSuffix(t.driver),
		clientID.String())
	b, err := scanBalance(row)
	if err != nil {
		return nil, relationaldb.NewQueryError("lock_balance", "failed to lock balance", err)
	}
	return b, nil
}

// ApplyDelta adjusts a locked balance row and re-checks the at-rest
// invariants. A violation fails the whole unit of work.
func (t *storeTx) ApplyDelta(ctx context.Context, delta relationaldb.BalanceDelta) (*relationaldb.Balance, error) {
	row := t.tx.QueryRowContext(ctx,
		`UPDATE balances
		 SET balance_cents = balance_cents + $2,
		     promo_cents = promo_cents + $3,
		     withdrawable_cents = withdrawable_cents + $4,
		     updated_at = $5
		 WHERE client_id = $1
		 RETURNING `+balanceColumns,
		delta.ClientID.String(), delta.BalanceCents, delta.PromoCents, delta.WithdrawableCents,
		time.Now().UTC())
	b, err := scanBalance(row)
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewDataError("apply_delta", "balance row missing", relationaldb.ErrBalanceNotFound)
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("apply_delta", "failed to update balance", err)
	}

	if b.BalanceCents < 0 || b.PromoCents < 0 || b.WithdrawableCents < 0 {
		return nil, relationaldb.NewConstraintError("apply_delta", "balance would go negative", relationaldb.ErrNegativeBalance)
	}
	if b.WithdrawableCents > b.BalanceCents {
		return nil, relationaldb.NewConstraintError("apply_delta", "withdrawable would exceed balance", relationaldb.ErrWithdrawableExceed)
	}
	return b, nil
}
