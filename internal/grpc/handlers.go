package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/umpyre/beancounterd/internal/storage/relationaldb"
)

const (
	// defaultTransactionLimit bounds GetTransactions when no limit is given.
	defaultTransactionLimit = 100
	// maxTransactionLimit is the hard cap on a single listing.
	maxTransactionLimit = 1000

	// statsWindow is how far back GetStats aggregates daily sums.
	statsWindow = 30 * 24 * time.Hour
	// statsTopClients is how many top clients GetStats reports.
	statsTopClients = 10
)

// GetBalanceRequest asks for a client's balance snapshot.
type GetBalanceRequest struct {
	ClientID string
}

// GetBalanceResponse carries the snapshot. Clients with no history get a
// zeroed balance.
type GetBalanceResponse struct {
	Balance *Balance
}

// GetBalance returns the client's current balance.
func (s *Server) GetBalance(ctx context.Context, req *GetBalanceRequest) (*GetBalanceResponse, error) {
	clientID, err := parseClientID("client_id", req.ClientID)
	if err != nil {
		return nil, err
	}
	balance, err := s.store.GetBalance(ctx, clientID)
	if err != nil {
		return nil, statusFromError(err)
	}
	return &GetBalanceResponse{Balance: wireBalance(balance)}, nil
}

// GetTransactionsRequest asks for a client's ledger history.
type GetTransactionsRequest struct {
	ClientID string
	Limit    int32
}

// GetTransactionsResponse carries ledger entries, most recent first.
type GetTransactionsResponse struct {
	Transactions []Transaction
}

// GetTransactions lists the client's ledger entries.
func (s *Server) GetTransactions(ctx context.Context, req *GetTransactionsRequest) (*GetTransactionsResponse, error) {
	clientID, err := parseClientID("client_id", req.ClientID)
	if err != nil {
		return nil, err
	}
	limit := int(req.Limit)
	if limit <= 0 {
		limit = defaultTransactionLimit
	}
	if limit > maxTransactionLimit {
		limit = maxTransactionLimit
	}

	rows, err := s.store.ListTransactions(ctx, clientID, limit)
	if err != nil {
		return nil, statusFromError(err)
	}
	resp := &GetTransactionsResponse{Transactions: make([]Transaction, 0, len(rows))}
	for i := range rows {
		resp.Transactions = append(resp.Transactions, wireTransaction(&rows[i]))
	}
	return resp, nil
}

// AddCreditsRequest tops up a client's spendable balance.
type AddCreditsRequest struct {
	ClientID    string
	AmountCents int32
}

// AddCreditsResponse carries the updated balance.
type AddCreditsResponse struct {
	Balance *Balance
}

// AddCredits posts a top-up to the client's balance.
func (s *Server) AddCredits(ctx context.Context, req *AddCreditsRequest) (*AddCreditsResponse, error) {
	clientID, err := parseClientID("client_id", req.ClientID)
	if err != nil {
		return nil, err
	}
	if req.AmountCents < 1 {
		return nil, status.Error(codes.InvalidArgument, "amount_cents must be positive")
	}
	balance, err := s.ledger.AddCredits(ctx, clientID, int64(req.AmountCents))
	if err != nil {
		return nil, statusFromError(err)
	}
	return &AddCreditsResponse{Balance: wireBalance(balance)}, nil
}

// AddPromoRequest grants promotional funds.
type AddPromoRequest struct {
	ClientID    string
	AmountCents int32
}

// AddPromoResponse carries the updated balance.
type AddPromoResponse struct {
	Balance *Balance
}

// AddPromo posts promotional funds to the client's promo rail.
func (s *Server) AddPromo(ctx context.Context, req *AddPromoRequest) (*AddPromoResponse, error) {
	clientID, err := parseClientID("client_id", req.ClientID)
	if err != nil {
		return nil, err
	}
	if req.AmountCents < 1 {
		return nil, status.Error(codes.InvalidArgument, "amount_cents must be positive")
	}
	balance, err := s.ledger.AddPromo(ctx, clientID, int64(req.AmountCents))
	if err != nil {
		return nil, statusFromError(err)
	}
	return &AddPromoResponse{Balance: wireBalance(balance)}, nil
}

// AddPaymentRequest holds funds against a message hash. ClientIDTo may be
// empty when the recipient is not yet known.
type AddPaymentRequest struct {
	ClientIDFrom string
	ClientIDTo   string
	MessageHash  []byte
	PaymentCents int32
	IsPromo      bool
}

// AddPaymentResponse reports the outcome in-band. On SUCCESS, Balance is the
// sender's balance after the hold and FeeCents the fee the eventual
// settlement will retain.
type AddPaymentResponse struct {
	Result       Result
	Balance      *Balance
	PaymentCents int32
	FeeCents     int32
}

// AddPayment moves a message payment into escrow. Submitting the same
// message hash twice is a no-op reported as SUCCESS.
func (s *Server) AddPayment(ctx context.Context, req *AddPaymentRequest) (*AddPaymentResponse, error) {
	senderID, err := parseClientID("client_id_from", req.ClientIDFrom)
	if err != nil {
		return nil, err
	}
	var recipientID *uuid.UUID
	if req.ClientIDTo != "" {
		id, err := parseClientID("client_id_to", req.ClientIDTo)
		if err != nil {
			return nil, err
		}
		recipientID = &id
	}
	if len(req.MessageHash) == 0 {
		return nil, status.Error(codes.InvalidArgument, "message_hash is required")
	}

	if !validPaymentAmount(req.PaymentCents) {
		balance, err := s.store.GetBalance(ctx, senderID)
		if err != nil {
			return nil, statusFromError(err)
		}
		return &AddPaymentResponse{Result: ResultInvalidAmount, Balance: wireBalance(balance)}, nil
	}

	result, err := s.escrow.Add(ctx, senderID, recipientID, req.MessageHash, int64(req.PaymentCents), req.IsPromo)
	if insufficientFunds(err) {
		balance, err := s.store.GetBalance(ctx, senderID)
		if err != nil {
			return nil, statusFromError(err)
		}
		return &AddPaymentResponse{Result: ResultInsufficientBalance, Balance: wireBalance(balance)}, nil
	}
	if err != nil {
		return nil, statusFromError(err)
	}

	resp := &AddPaymentResponse{
		Result:       ResultSuccess,
		Balance:      wireBalance(result.Balance),
		PaymentCents: req.PaymentCents,
	}
	if !req.IsPromo {
		resp.FeeCents = int32(s.ledger.Fee(int64(req.PaymentCents)))
	}
	return resp, nil
}

// SettlePaymentRequest releases a held payment to the caller.
type SettlePaymentRequest struct {
	ClientID    string
	MessageHash []byte
}

// SettlePaymentResponse carries the gross amount, the retained fee, the
// recipient's updated balance and their recomputed RAL (-1 when unknown).
type SettlePaymentResponse struct {
	PaymentCents int32
	FeeCents     int32
	Balance      *Balance
	Ral          int32
}

// SettlePayment settles the payment held under the given message hash,
// crediting the caller net of fee.
func (s *Server) SettlePayment(ctx context.Context, req *SettlePaymentRequest) (*SettlePaymentResponse, error) {
	recipientID, err := parseClientID("client_id", req.ClientID)
	if err != nil {
		return nil, err
	}
	if len(req.MessageHash) == 0 {
		return nil, status.Error(codes.InvalidArgument, "message_hash is required")
	}

	result, err := s.escrow.Settle(ctx, recipientID, req.MessageHash)
	if err != nil {
		return nil, statusFromError(err)
	}
	return &SettlePaymentResponse{
		PaymentCents: int32(result.PaymentCents),
		FeeCents:     int32(result.FeeCents),
		Balance:      wireBalance(result.Balance),
		Ral:          s.ral.Estimate(ctx, recipientID),
	}, nil
}

// ConnectPayoutRequest asks to transfer withdrawable funds out to the
// client's connected account.
type ConnectPayoutRequest struct {
	ClientID    string
	AmountCents int32
}

// ConnectPayoutResponse reports the outcome in-band, with the client's
// balance after the payout (or unchanged on failure).
type ConnectPayoutResponse struct {
	Result  Result
	Balance *Balance
}

// ConnectPayout pays out to the client's connected account. The ledger is
// debited before the external transfer; a failed transfer is compensated.
func (s *Server) ConnectPayout(ctx context.Context, req *ConnectPayoutRequest) (*ConnectPayoutResponse, error) {
	clientID, err := parseClientID("client_id", req.ClientID)
	if err != nil {
		return nil, err
	}
	if req.AmountCents < 1 {
		balance, err := s.store.GetBalance(ctx, clientID)
		if err != nil {
			return nil, statusFromError(err)
		}
		return &ConnectPayoutResponse{Result: ResultInvalidAmount, Balance: wireBalance(balance)}, nil
	}

	account, err := s.store.GetConnectAccount(ctx, clientID)
	if err != nil {
		return nil, statusFromError(err)
	}
	if !account.Active() {
		return nil, status.Error(codes.FailedPrecondition, "connect account is not active")
	}

	balance, err := s.payer.Pay(ctx, clientID, *account.StripeUserID, int64(req.AmountCents))
	if insufficientFunds(err) {
		current, err := s.store.GetBalance(ctx, clientID)
		if err != nil {
			return nil, statusFromError(err)
		}
		return &ConnectPayoutResponse{Result: ResultInsufficientBalance, Balance: wireBalance(current)}, nil
	}
	if err != nil {
		return nil, statusFromError(err)
	}
	return &ConnectPayoutResponse{Result: ResultSuccess, Balance: wireBalance(balance)}, nil
}

// StripeChargeRequest charges a card token and credits the client.
type StripeChargeRequest struct {
	ClientID    string
	AmountCents int32
	Token       string
}

// StripeChargeResponse reports SUCCESS or FAILURE with the provider's raw
// response and message. Balance is set only on SUCCESS.
type StripeChargeResponse struct {
	Result      ChargeResult
	ApiResponse string
	Message     string
	Balance     *Balance
}

// StripeCharge charges the card token and, on success, posts the amount as
// credits. A rejected charge leaves the ledger untouched.
func (s *Server) StripeCharge(ctx context.Context, req *StripeChargeRequest) (*StripeChargeResponse, error) {
	clientID, err := parseClientID("client_id", req.ClientID)
	if err != nil {
		return nil, err
	}
	if req.AmountCents < 1 {
		return &StripeChargeResponse{
			Result:  ChargeResultFailure,
			Message: "amount_cents must be positive",
		}, nil
	}
	if req.Token == "" {
		return &StripeChargeResponse{
			Result:  ChargeResultFailure,
			Message: "card token is required",
		}, nil
	}

	outcome, err := s.charger.Charge(ctx, clientID, int64(req.AmountCents), req.Token)
	if err != nil {
		return nil, statusFromError(err)
	}
	if !outcome.OK {
		return &StripeChargeResponse{
			Result:      ChargeResultFailure,
			ApiResponse: string(outcome.APIResponse),
			Message:     outcome.Message,
		}, nil
	}

	if err := s.store.InsertCharge(ctx, clientID, outcome.APIResponse); err != nil {
		// The charge went through; a lost audit row must not fail the RPC.
		s.log.Error("failed to record charge",
			zap.String("client_id", clientID.String()),
			zap.Error(err))
	}

	balance, err := s.ledger.AddCredits(ctx, clientID, int64(req.AmountCents))
	if err != nil {
		return nil, statusFromError(err)
	}
	return &StripeChargeResponse{
		Result:      ChargeResultSuccess,
		ApiResponse: string(outcome.APIResponse),
		Message:     outcome.Message,
		Balance:     wireBalance(balance),
	}, nil
}

// GetConnectAccountRequest asks for the client's connect account, creating a
// pending one on first use.
type GetConnectAccountRequest struct {
	ClientID string
}

// GetConnectAccountResponse carries the account view.
type GetConnectAccountResponse struct {
	Account *ConnectAccountInfo
}

// GetConnectAccount returns the client's connect account. A client without
// one gets a fresh INACTIVE account with an onboarding URL.
func (s *Server) GetConnectAccount(ctx context.Context, req *GetConnectAccountRequest) (*GetConnectAccountResponse, error) {
	clientID, err := parseClientID("client_id", req.ClientID)
	if err != nil {
		return nil, err
	}

	account, err := s.store.GetConnectAccount(ctx, clientID)
	if errors.Is(err, relationaldb.ErrConnectAccountNotFound) {
		account, err = s.store.CreateConnectAccount(ctx, clientID, uuid.New())
	}
	if err != nil {
		return nil, statusFromError(err)
	}
	return &GetConnectAccountResponse{Account: s.connectAccountInfo(ctx, account)}, nil
}

// CompleteConnectOauthRequest finishes connect onboarding with the code and
// state returned by the provider redirect.
type CompleteConnectOauthRequest struct {
	ClientID string
	Code     string
	State    string
}

// CompleteConnectOauthResponse carries the now-ACTIVE account view.
type CompleteConnectOauthResponse struct {
	Account *ConnectAccountInfo
}

// CompleteConnectOauth exchanges the authorization code and activates the
// account. The state must match the stored CSRF token.
func (s *Server) CompleteConnectOauth(ctx context.Context, req *CompleteConnectOauthRequest) (*CompleteConnectOauthResponse, error) {
	clientID, err := parseClientID("client_id", req.ClientID)
	if err != nil {
		return nil, err
	}
	state, err := uuid.Parse(req.State)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid oauth state")
	}
	if req.Code == "" {
		return nil, status.Error(codes.InvalidArgument, "authorization code is required")
	}

	account, err := s.store.GetConnectAccount(ctx, clientID)
	if err != nil {
		return nil, statusFromError(err)
	}
	if account.OauthState != state {
		return nil, status.Error(codes.FailedPrecondition, "oauth state mismatch")
	}

	stripeUserID, acctBlob, credentials, err := s.oauth.ExchangeCode(ctx, req.Code)
	if err != nil {
		s.log.Warn("oauth code exchange failed",
			zap.String("client_id", clientID.String()),
			zap.Error(err))
		return nil, status.Error(codes.FailedPrecondition, "code exchange rejected by provider")
	}

	account, err = s.store.ActivateConnectAccount(ctx, clientID, stripeUserID, acctBlob, credentials)
	if err != nil {
		return nil, statusFromError(err)
	}
	return &CompleteConnectOauthResponse{Account: s.connectAccountInfo(ctx, account)}, nil
}

// UpdateConnectAccountPrefsRequest updates automatic payout preferences.
type UpdateConnectAccountPrefsRequest struct {
	ClientID                      string
	EnableAutomaticPayouts        bool
	AutomaticPayoutThresholdCents int64
}

// UpdateConnectAccountPrefsResponse carries the updated account view.
type UpdateConnectAccountPrefsResponse struct {
	Account *ConnectAccountInfo
}

// UpdateConnectAccountPrefs updates the client's automatic payout settings.
// No ledger side effects.
func (s *Server) UpdateConnectAccountPrefs(ctx context.Context, req *UpdateConnectAccountPrefsRequest) (*UpdateConnectAccountPrefsResponse, error) {
	clientID, err := parseClientID("client_id", req.ClientID)
	if err != nil {
		return nil, err
	}
	if req.AutomaticPayoutThresholdCents < 0 {
		return nil, status.Error(codes.InvalidArgument, "automatic_payout_threshold_cents must not be negative")
	}

	account, err := s.store.UpdateConnectAccountPrefs(ctx, clientID, req.EnableAutomaticPayouts, req.AutomaticPayoutThresholdCents)
	if err != nil {
		return nil, statusFromError(err)
	}
	return &UpdateConnectAccountPrefsResponse{Account: s.connectAccountInfo(ctx, account)}, nil
}

// GetStatsRequest asks for the service-wide aggregations.
type GetStatsRequest struct{}

// GetStatsResponse carries daily ledger volume by reason and the top clients
// by all-time volume.
type GetStatsResponse struct {
	Daily      []DailySum
	TopClients []ClientSum
}

// GetStats aggregates recent ledger activity.
func (s *Server) GetStats(ctx context.Context, req *GetStatsRequest) (*GetStatsResponse, error) {
	stats, err := s.store.Stats(ctx, time.Now().UTC().Add(-statsWindow), statsTopClients)
	if err != nil {
		return nil, statusFromError(err)
	}

	resp := &GetStatsResponse{
		Daily:      make([]DailySum, 0, len(stats.Daily)),
		TopClients: make([]ClientSum, 0, len(stats.TopClients)),
	}
	for _, d := range stats.Daily {
		resp.Daily = append(resp.Daily, DailySum{
			Day:         d.Day,
			TxReason:    string(d.TxReason),
			AmountCents: d.AmountCents,
		})
	}
	for _, c := range stats.TopClients {
		resp.TopClients = append(resp.TopClients, ClientSum{
			ClientID:    c.ClientID.String(),
			TxReason:    string(c.TxReason),
			AmountCents: c.AmountCents,
		})
	}
	return resp, nil
}
