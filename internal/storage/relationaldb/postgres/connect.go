package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/umpyre/beancounterd/internal/storage/relationaldb"
)

const connectAccountColumns = `id, client_id, oauth_state, stripe_user_id, connect_account, connect_credentials,
	enable_automatic_payouts, automatic_payout_threshold_cents, created_at, updated_at`

func scanConnectAccount(row *sql.Row) (*relationaldb.ConnectAccount, error) {
	var a relationaldb.ConnectAccount
	var clientID, oauthState string
	var stripeUserID, account, credentials sql.NullString
	err := row.Scan(&a.ID, &clientID, &oauthState, &stripeUserID, &account, &credentials,
		&a.EnableAutomaticPayouts, &a.AutomaticPayoutThresholdCents, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if a.ClientID, err = uuid.Parse(clientID); err != nil {
		return nil, err
	}
	if a.OauthState, err = uuid.Parse(oauthState); err != nil {
		return nil, err
	}
	if stripeUserID.Valid && stripeUserID.String != "" {
		a.StripeUserID = &stripeUserID.String
	}
	if account.Valid {
		a.ConnectAccount = []byte(account.String)
	}
	if credentials.Valid {
		a.ConnectCredentials = []byte(credentials.String)
	}
	return &a, nil
}

// GetConnectAccount fetches a client's connect account.
func (s *Store) GetConnectAccount(ctx context.Context, clientID uuid.UUID) (*relationaldb.ConnectAccount, error) {
	if s.db == nil {
		return nil, relationaldb.ErrDatabaseClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.DefaultTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+connectAccountColumns+` FROM stripe_connect_accounts WHERE client_id = $1`,
		clientID.String())
	a, err := scanConnectAccount(row)
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewDataError("get_connect_account", "no connect account for client", relationaldb.ErrConnectAccountNotFound)
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_connect_account", "failed to query connect account", err)
	}
	return a, nil
}

// CreateConnectAccount inserts a fresh inactive account. A concurrent create
// for the same client resolves to the stored row.
func (s *Store) CreateConnectAccount(ctx context.Context, clientID, oauthState uuid.UUID) (*relationaldb.ConnectAccount, error) {
	if s.db == nil {
		return nil, relationaldb.ErrDatabaseClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.DefaultTimeout)
	defer cancel()

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stripe_connect_accounts (client_id, oauth_state, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)
		 ON CONFLICT (client_id) DO NOTHING`,
		clientID.String(), oauthState.String(), now)
	if err != nil {
		return nil, relationaldb.NewQueryError("create_connect_account", "failed to insert connect account", err)
	}
	return s.GetConnectAccount(ctx, clientID)
}

// ActivateConnectAccount persists the result of a completed OAuth exchange.
func (s *Store) ActivateConnectAccount(ctx context.Context, clientID uuid.UUID, stripeUserID string, account, credentials []byte) (*relationaldb.ConnectAccount, error) {
	if s.db == nil {
		return nil, relationaldb.ErrDatabaseClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.DefaultTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`UPDATE stripe_connect_accounts
		 SET stripe_user_id = $2, connect_account = $3, connect_credentials = $4, updated_at = $5
		 WHERE client_id = $1`,
		clientID.String(), stripeUserID, string(account), string(credentials), time.Now().UTC())
	if err != nil {
		return nil, relationaldb.NewQueryError("activate_connect_account", "failed to update connect account", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, relationaldb.NewDataError("activate_connect_account", "no connect account for client", relationaldb.ErrConnectAccountNotFound)
	}
	return s.GetConnectAccount(ctx, clientID)
}

// UpdateConnectAccountPrefs updates automatic payout preferences.
func (s *Store) UpdateConnectAccountPrefs(ctx context.Context, clientID uuid.UUID, enable bool, thresholdCents int64) (*relationaldb.ConnectAccount, error) {
	if s.db == nil {
		return nil, relationaldb.ErrDatabaseClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.DefaultTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`UPDATE stripe_connect_accounts
		 SET enable_automatic_payouts = $2, automatic_payout_threshold_cents = $3, updated_at = $4
		 WHERE client_id = $1`,
		clientID.String(), enable, thresholdCents, time.Now().UTC())
	if err != nil {
		return nil, relationaldb.NewQueryError("update_connect_prefs", "failed to update connect account", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, relationaldb.NewDataError("update_connect_prefs", "no connect account for client", relationaldb.ErrConnectAccountNotFound)
	}
	return s.GetConnectAccount(ctx, clientID)
}

// InsertConnectTransfer writes the audit row of a completed payout.
func (s *Store) InsertConnectTransfer(ctx context.Context, t *relationaldb.ConnectTransfer) error {
	if s.db == nil {
		return relationaldb.ErrDatabaseClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.DefaultTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stripe_connect_transfers (created_at, client_id, stripe_user_id, amount_cents, transfer_id)
		 VALUES ($1, $2, $3, $4, $5)`,
		time.Now().UTC(), t.ClientID.String(), t.StripeUserID, t.AmountCents, t.TransferID)
	if err != nil {
		return relationaldb.NewQueryError("insert_connect_transfer", "failed to insert transfer audit", err)
	}
	return nil
}

// InsertCharge writes the audit row of a successful card charge.
func (s *Store) InsertCharge(ctx context.Context, clientID uuid.UUID, charge []byte) error {
	if s.db == nil {
		return relationaldb.ErrDatabaseClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.DefaultTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stripe_charges (created_at, client_id, charge) VALUES ($1, $2, $3)`,
		time.Now().UTC(), clientID.String(), string(charge))
	if err != nil {
		return relationaldb.NewQueryError("insert_charge", "failed to insert charge audit", err)
	}
	return nil
}

// ListPayoutCandidates returns clients eligible for the automatic payout
// sweep. The transfer cutoff implements the payout backoff window.
func (s *Store) ListPayoutCandidates(ctx context.Context, transferCutoff time.Time) ([]relationaldb.PayoutCandidate, error) {
	if s.db == nil {
		return nil, relationaldb.ErrDatabaseClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.DefaultTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT b.client_id, b.withdrawable_cents, a.automatic_payout_threshold_cents, a.stripe_user_id
		 FROM balances AS b
		 INNER JOIN stripe_connect_accounts AS a ON b.client_id = a.client_id
		 WHERE a.enable_automatic_payouts = TRUE
		   AND a.stripe_user_id IS NOT NULL
		   AND a.stripe_user_id <> ''
		   AND b.withdrawable_cents > 0
		   AND b.withdrawable_cents >= a.automatic_payout_threshold_cents
		   AND NOT EXISTS (
		     SELECT 1 FROM stripe_connect_transfers AS t
		     WHERE t.client_id = b.client_id AND t.created_at >= $1
		   )`,
		transferCutoff.UTC())
	if err != nil {
		return nil, relationaldb.NewQueryError("list_payout_candidates", "failed to query candidates", err)
	}
	defer rows.Close()

	var out []relationaldb.PayoutCandidate
	for rows.Next() {
		var c relationaldb.PayoutCandidate
		var clientID string
		if err := rows.Scan(&clientID, &c.WithdrawableCents, &c.ThresholdCents, &c.StripeUserID); err != nil {
			return nil, relationaldb.NewQueryError("list_payout_candidates", "failed to scan candidate", err)
		}
		if c.ClientID, err = uuid.Parse(clientID); err != nil {
			return nil, relationaldb.NewQueryError("list_payout_candidates", "bad client id in row", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("list_payout_candidates", "row iteration failed", err)
	}
	return out, nil
}
