package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/umpyre/beancounterd/internal/storage/relationaldb"
)

// Stats aggregates daily sums by reason since the given time, plus the top
// clients by summed amounts. CAST(DATE(...) AS TEXT) yields YYYY-MM-DD on
// both supported dialects.
func (s *Store) Stats(ctx context.Context, since time.Time, topN int) (*relationaldb.Stats, error) {
	if s.db == nil {
		return nil, relationaldb.ErrDatabaseClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.DefaultTimeout)
	defer cancel()

	stats := &relationaldb.Stats{}

	rows, err := s.db.QueryContext(ctx,
		`SELECT CAST(DATE(created_at) AS TEXT) AS day, tx_reason, SUM(amount_cents)
		 FROM transactions
		 WHERE created_at >= $1
		 GROUP BY day, tx_reason
		 ORDER BY day DESC, tx_reason`,
		since.UTC())
	if err != nil {
		return nil, relationaldb.NewQueryError("stats", "failed to query daily sums", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d relationaldb.DailySum
		var reason string
		if err := rows.Scan(&d.Day, &reason, &d.AmountCents); err != nil {
			return nil, relationaldb.NewQueryError("stats", "failed to scan daily sum", err)
		}
		d.TxReason = relationaldb.TxReason(reason)
		stats.Daily = append(stats.Daily, d)
	}
	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("stats", "row iteration failed", err)
	}

	top, err := s.db.QueryContext(ctx,
		`SELECT client_id, tx_reason, SUM(amount_cents) AS total
		 FROM transactions
		 GROUP BY client_id, tx_reason
		 ORDER BY total DESC
		 LIMIT $1`, topN)
	if err != nil {
		return nil, relationaldb.NewQueryError("stats", "failed to query top clients", err)
	}
	defer top.Close()

	for top.Next() {
		var c relationaldb.ClientSum
		var clientID, reason string
		if err := top.Scan(&clientID, &reason, &c.AmountCents); err != nil {
			return nil, relationaldb.NewQueryError("stats", "failed to scan client sum", err)
		}
		if c.ClientID, err = uuid.Parse(clientID); err != nil {
			return nil, relationaldb.NewQueryError("stats", "bad client id in row", err)
		}
		c.TxReason = relationaldb.TxReason(reason)
		stats.TopClients = append(stats.TopClients, c)
	}
	if err := top.Err(); err != nil {
		return nil, relationaldb.NewQueryError("stats", "row iteration failed", err)
	}
	return stats, nil
}
