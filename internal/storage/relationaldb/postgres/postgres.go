// Package postgres implements the relationaldb.Store on database/sql. The
// production driver is PostgreSQL (lib/pq); the in-process sqlite driver
// (modernc.org/sqlite) is accepted for development and tests. The two
// dialects share one query surface ($N placeholders, RETURNING, ON
// CONFLICT); only the schema DDL and the row-lock clause differ. On sqlite
// the single-writer lock serializes balance mutations, so the FOR UPDATE
// clause is omitted there.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"      // PostgreSQL driver
	_ "modernc.org/sqlite"     // SQLite driver, dev/test only

	"github.com/umpyre/beancounterd/internal/storage/relationaldb"
)

// Store implements relationaldb.Store for PostgreSQL and SQLite.
type Store struct {
	db     *sql.DB
	config *relationaldb.Config
}

// NewStore creates a store from the given configuration. Open must be called
// before use.
func NewStore(config *relationaldb.Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, relationaldb.NewConfigurationError("new_store", "invalid configuration", err)
	}
	return &Store{config: config}, nil
}

// Open opens the connection pool and initializes the schema.
func (s *Store) Open(ctx context.Context) error {
	dsn, err := s.config.BuildDSN()
	if err != nil {
		return relationaldb.NewConfigurationError("open", "failed to build connection string", err)
	}

	db, err := sql.Open(s.config.Driver, dsn)
	if err != nil {
		return relationaldb.NewConnectionError("open", "failed to open database connection", err)
	}

	db.SetMaxOpenConns(s.config.MaxOpenConns)
	db.SetMaxIdleConns(s.config.MaxIdleConns)
	db.SetConnMaxLifetime(s.config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(s.config.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, s.config.DefaultTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return relationaldb.NewConnectionError("open", "failed to ping database", err)
	}

	s.db = db

	if err := s.initSchema(ctx); err != nil {
		s.db.Close()
		s.db = nil
		return relationaldb.NewSchemaError("open", "failed to initialize schema", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return relationaldb.NewConnectionError("close", "failed to close database connection", err)
	}
	return nil
}

// Ping tests the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return relationaldb.ErrDatabaseClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.DefaultTimeout)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return relationaldb.NewConnectionError("ping", "database ping failed", err)
	}
	return nil
}

// Begin starts a unit of work.
func (s *Store) Begin(ctx context.Context) (relationaldb.Tx, error) {
	if s.db == nil {
		return nil, relationaldb.ErrDatabaseClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, relationaldb.NewTransactionError("begin", "failed to begin transaction", err)
	}
	return &storeTx{tx: tx, driver: s.config.Driver}, nil
}

// lockSuffix returns the row-lock clause for balance reads inside a unit of
// work. SQLite has no FOR UPDATE; its database-level write lock serializes
// writers instead.
func lockSuffix(driver string) string {
	if driver == relationaldb.DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// storeTx implements relationaldb.Tx.
type storeTx struct {
	tx     *sql.Tx
	driver string
	done   bool
}

func (t *storeTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return relationaldb.NewTransactionError("commit", "transaction commit failed", err)
	}
	return nil
}

func (t *storeTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil {
		return relationaldb.NewTransactionError("rollback", "transaction rollback failed", err)
	}
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	for _, query := range schemaFor(s.config.Driver) {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}
	return nil
}

func schemaFor(driver string) []string {
	// Column types per dialect. The query surface is shared; only DDL
	// differs.
	serial := "BIGSERIAL PRIMARY KEY"
	timestamp := "TIMESTAMPTZ"
	blob := "BYTEA"
	if driver == relationaldb.DriverSQLite {
		serial = "INTEGER PRIMARY KEY AUTOINCREMENT"
		timestamp = "TIMESTAMP"
		blob = "BLOB"
	}

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS balances (
			id %s,
			client_id TEXT UNIQUE NOT NULL,
			balance_cents BIGINT NOT NULL DEFAULT 0,
			promo_cents BIGINT NOT NULL DEFAULT 0,
			withdrawable_cents BIGINT NOT NULL DEFAULT 0,
			created_at %s NOT NULL,
			updated_at %s NOT NULL
		)`, serial, timestamp, timestamp),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS transactions (
			id %s,
			created_at %s NOT NULL,
			client_id TEXT NOT NULL,
			tx_type TEXT NOT NULL CHECK (tx_type IN ('debit', 'credit', 'promo_credit', 'promo_debit')),
			tx_reason TEXT NOT NULL CHECK (tx_reason IN ('message_read', 'message_unread', 'message_sent', 'credit_added', 'payout')),
			amount_cents BIGINT NOT NULL CHECK (amount_cents > 0)
		)`, serial, timestamp),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS payments (
			id %s,
			created_at %s NOT NULL,
			client_id_from TEXT NOT NULL,
			client_id_to TEXT,
			payment_cents BIGINT NOT NULL,
			message_hash %s UNIQUE NOT NULL,
			is_promo BOOLEAN NOT NULL DEFAULT FALSE
		)`, serial, timestamp, blob),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS stripe_connect_accounts (
			id %s,
			client_id TEXT UNIQUE NOT NULL,
			oauth_state TEXT NOT NULL,
			stripe_user_id TEXT,
			connect_account TEXT,
			connect_credentials TEXT,
			enable_automatic_payouts BOOLEAN NOT NULL DEFAULT FALSE,
			automatic_payout_threshold_cents BIGINT NOT NULL DEFAULT 0,
			created_at %s NOT NULL,
			updated_at %s NOT NULL
		)`, serial, timestamp, timestamp),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS stripe_connect_transfers (
			id %s,
			created_at %s NOT NULL,
			client_id TEXT NOT NULL,
			stripe_user_id TEXT NOT NULL,
			amount_cents BIGINT NOT NULL,
			transfer_id TEXT NOT NULL
		)`, serial, timestamp),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS stripe_charges (
			id %s,
			created_at %s NOT NULL,
			client_id TEXT NOT NULL,
			charge TEXT NOT NULL
		)`, serial, timestamp),

		`CREATE INDEX IF NOT EXISTS idx_transactions_client ON transactions(client_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_created_at ON payments(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_connect_transfers_client ON stripe_connect_transfers(client_id, created_at)`,
	}
}
