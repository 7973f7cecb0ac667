package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/umpyre/beancounterd/internal/storage/relationaldb"
)

// InsertEntries appends ledger entries within the unit of work.
func (t *storeTx) InsertEntries(ctx context.Context, entries []relationaldb.Entry) error {
	now := time.Now().UTC()
	for _, e := range entries {
		if e.AmountCents <= 0 {
			return relationaldb.NewConstraintError("insert_entries", "entry amount must be positive", nil)
		}
		_, err := t.tx.ExecContext(ctx,
			`INSERT INTO transactions (created_at, client_id, tx_type, tx_reason, amount_cents)
			 VALUES ($1, $2, $3, $4, $5)`,
			now, e.ClientID.String(), string(e.TxType), string(e.TxReason), e.AmountCents)
		if err != nil {
			return relationaldb.NewQueryError("insert_entries", "failed to insert ledger entry", err)
		}
	}
	return nil
}

// ListTransactions returns the client's entries, most recent first.
func (s *Store) ListTransactions(ctx context.Context, clientID uuid.UUID, limit int) ([]relationaldb.Transaction, error) {
	if s.db == nil {
		return nil, relationaldb.ErrDatabaseClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.DefaultTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, client_id, tx_type, tx_reason, amount_cents
		 FROM transactions
		 WHERE client_id = $1
		 ORDER BY id DESC
		 LIMIT $2`,
		clientID.String(), limit)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_transactions", "failed to query transactions", err)
	}
	defer rows.Close()

	var out []relationaldb.Transaction
	for rows.Next() {
		var tx relationaldb.Transaction
		var cid, txType, txReason string
		if err := rows.Scan(&tx.ID, &tx.CreatedAt, &cid, &txType, &txReason, &tx.AmountCents); err != nil {
			return nil, relationaldb.NewQueryError("list_transactions", "failed to scan transaction", err)
		}
		tx.ClientID, err = uuid.Parse(cid)
		if err != nil {
			return nil, relationaldb.NewQueryError("list_transactions", "bad client id in row", err)
		}
		parsed, ok := relationaldb.ParseTxType(txType)
		if !ok {
			return nil, relationaldb.NewQueryError("list_transactions", "unknown tx_type "+txType, nil)
		}
		tx.TxType = parsed
		tx.TxReason = relationaldb.TxReason(txReason)
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("list_transactions", "row iteration failed", err)
	}
	return out, nil
}

// RecentReadCredits returns amounts of the client's latest message-read
// credits on either rail, newest first.
func (s *Store) RecentReadCredits(ctx context.Context, clientID uuid.UUID, limit int) ([]int64, error) {
	if s.db == nil {
		return nil, relationaldb.ErrDatabaseClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.DefaultTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT amount_cents
		 FROM transactions
		 WHERE client_id = $1
		   AND tx_reason = 'message_read'
		   AND tx_type IN ('credit', 'promo_credit')
		 ORDER BY id DESC
		 LIMIT $2`,
		clientID.String(), limit)
	if err != nil {
		return nil, relationaldb.NewQueryError("recent_read_credits", "failed to query read credits", err)
	}
	defer rows.Close()

	var amounts []int64
	for rows.Next() {
		var cents int64
		if err := rows.Scan(&cents); err != nil {
			return nil, relationaldb.NewQueryError("recent_read_credits", "failed to scan amount", err)
		}
		amounts = append(amounts, cents)
	}
	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("recent_read_credits", "row iteration failed", err)
	}
	return amounts, nil
}
