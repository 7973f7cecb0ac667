package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/umpyre/beancounterd/internal/storage/relationaldb"
)

const paymentColumns = "id, created_at, client_id_from, client_id_to, payment_cents, message_hash, is_promo"

func scanPayment(scan func(dest ...any) error) (*relationaldb.Payment, error) {
	var p relationaldb.Payment
	var from string
	var to sql.NullString
	if err := scan(&p.ID, &p.CreatedAt, &from, &to, &p.PaymentCents, &p.MessageHash, &p.IsPromo); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(from)
	if err != nil {
		return nil, err
	}
	p.ClientIDFrom = parsed
	if to.Valid && to.String != "" {
		recipient, err := uuid.Parse(to.String)
		if err != nil {
			return nil, err
		}
		p.ClientIDTo = &recipient
	}
	return &p, nil
}

// InsertPayment inserts an escrow row. The UNIQUE index on message_hash is
// the idempotency contract: on conflict the stored row is returned with
// created=false and nothing is written.
func (t *storeTx) InsertPayment(ctx context.Context, p relationaldb.NewPayment) (*relationaldb.Payment, bool, error) {
	var to any
	if p.ClientIDTo != nil {
		to = p.ClientIDTo.String()
	}

	row := t.tx.QueryRowContext(ctx,
		`INSERT INTO payments (created_at, client_id_from, client_id_to, payment_cents, message_hash, is_promo)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (message_hash) DO NOTHING
		 RETURNING `+paymentColumns,
		time.Now().UTC(), p.ClientIDFrom.String(), to, p.PaymentCents, p.MessageHash, p.IsPromo)

	inserted, err := scanPayment(row.Scan)
	if err == sql.ErrNoRows {
		// Conflict: fetch the stored row.
		existing := t.tx.QueryRowContext(ctx,
			`SELECT `+paymentColumns+` FROM payments WHERE message_hash = $1`, p.MessageHash)
		stored, err := scanPayment(existing.Scan)
		if err != nil {
			return nil, false, relationaldb.NewQueryError("insert_payment", "failed to fetch existing payment", err)
		}
		return stored, false, nil
	}
	if err != nil {
		return nil, false, relationaldb.NewQueryError("insert_payment", "failed to insert payment", err)
	}
	return inserted, true, nil
}

// TakePayment deletes and returns the payment with the given hash.
func (t *storeTx) TakePayment(ctx context.Context, messageHash []byte) (*relationaldb.Payment, error) {
	row := t.tx.QueryRowContext(ctx,
		`DELETE FROM payments WHERE message_hash = $1 RETURNING `+paymentColumns, messageHash)
	p, err := scanPayment(row.Scan)
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewDataError("take_payment", "no payment with this message hash", relationaldb.ErrPaymentNotFound)
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("take_payment", "failed to take payment", err)
	}
	return p, nil
}

// GetPayment returns the held payment with the given message hash.
func (s *Store) GetPayment(ctx context.Context, messageHash []byte) (*relationaldb.Payment, error) {
	if s.db == nil {
		return nil, relationaldb.ErrDatabaseClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.DefaultTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE message_hash = $1`, messageHash)
	p, err := scanPayment(row.Scan)
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewDataError("get_payment", "no payment with this message hash", relationaldb.ErrPaymentNotFound)
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_payment", "failed to query payment", err)
	}
	return p, nil
}

// ListExpiredPayments returns payments held since before cutoff.
func (s *Store) ListExpiredPayments(ctx context.Context, cutoff time.Time) ([]relationaldb.Payment, error) {
	if s.db == nil {
		return nil, relationaldb.ErrDatabaseClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.DefaultTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE created_at < $1 ORDER BY id`, cutoff.UTC())
	if err != nil {
		return nil, relationaldb.NewQueryError("list_expired_payments", "failed to query payments", err)
	}
	defer rows.Close()

	var out []relationaldb.Payment
	for rows.Next() {
		p, err := scanPayment(rows.Scan)
		if err != nil {
			return nil, relationaldb.NewQueryError("list_expired_payments", "failed to scan payment", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("list_expired_payments", "row iteration failed", err)
	}
	return out, nil
}
