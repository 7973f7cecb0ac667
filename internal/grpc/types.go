package grpc

import (
	"context"

	"github.com/google/uuid"

	"github.com/umpyre/beancounterd/internal/storage/relationaldb"
	"github.com/umpyre/beancounterd/internal/stripe"
)

// Result classifies the outcome of a fund-moving RPC. Business pre-condition
// failures are reported here, in-band; only infrastructure faults surface as
// RPC status errors.
type Result int32

const (
	ResultSuccess Result = iota
	ResultInsufficientBalance
	ResultInvalidAmount
)

// String returns the wire name of the result code.
func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "SUCCESS"
	case ResultInsufficientBalance:
		return "INSUFFICIENT_BALANCE"
	case ResultInvalidAmount:
		return "INVALID_AMOUNT"
	default:
		return "UNKNOWN"
	}
}

// ChargeResult classifies the outcome of a card charge.
type ChargeResult int32

const (
	ChargeResultSuccess ChargeResult = iota
	ChargeResultFailure
)

// String returns the wire name of the charge result.
func (r ChargeResult) String() string {
	if r == ChargeResultSuccess {
		return "SUCCESS"
	}
	return "FAILURE"
}

// ConnectAccountState reports whether a connect account finished onboarding.
type ConnectAccountState int32

const (
	ConnectAccountStateInactive ConnectAccountState = iota
	ConnectAccountStateActive
)

// String returns the wire name of the account state.
func (s ConnectAccountState) String() string {
	if s == ConnectAccountStateActive {
		return "ACTIVE"
	}
	return "INACTIVE"
}

// Timestamp is seconds-since-epoch plus nanos, the wire form of a point in
// time.
type Timestamp struct {
	Seconds int64
	Nanos   int32
}

// Balance is the wire form of a client's balance snapshot.
type Balance struct {
	ClientID          string
	BalanceCents      int64
	PromoCents        int64
	WithdrawableCents int64
}

// Transaction is the wire form of a ledger entry.
type Transaction struct {
	ClientID    string
	TxType      string
	TxReason    string
	AmountCents int64
	CreatedAt   Timestamp
}

// ConnectAccountInfo is the wire form of a connect account. Exactly one of
// LoginLinkURL (ACTIVE) and OauthURL (INACTIVE) is set.
type ConnectAccountInfo struct {
	ClientID                      string
	State                         ConnectAccountState
	LoginLinkURL                  string
	OauthURL                      string
	EnableAutomaticPayouts        bool
	AutomaticPayoutThresholdCents int64
}

// DailySum is one day's ledger volume for one reason.
type DailySum struct {
	Day         string
	TxReason    string
	AmountCents int64
}

// ClientSum is one client's all-time ledger volume for one reason.
type ClientSum struct {
	ClientID    string
	TxReason    string
	AmountCents int64
}

// CardCharger charges cards through the external payments provider. The
// facade consumes this capability and never the concrete client.
type CardCharger interface {
	Charge(ctx context.Context, clientID uuid.UUID, amountCents int64, token string) (*stripe.ChargeOutcome, error)
}

// ConnectOauth drives the provider's connect onboarding handshake.
type ConnectOauth interface {
	// OauthURL builds the onboarding URL embedding the CSRF state token.
	OauthURL(state uuid.UUID) string

	// ExchangeCode exchanges an authorization code for the connected
	// account's id plus opaque account and credential blobs.
	ExchangeCode(ctx context.Context, code string) (stripeUserID string, account, credentials []byte, err error)

	// LoginLink creates a dashboard login link for an active account.
	LoginLink(ctx context.Context, stripeUserID string) (string, error)
}

func wireBalance(b *relationaldb.Balance) *Balance {
	if b == nil {
		return nil
	}
	return &Balance{
		ClientID:          b.ClientID.String(),
		BalanceCents:      b.BalanceCents,
		PromoCents:        b.PromoCents,
		WithdrawableCents: b.WithdrawableCents,
	}
}

func wireTransaction(t *relationaldb.Transaction) Transaction {
	return Transaction{
		ClientID:    t.ClientID.String(),
		TxType:      string(t.TxType),
		TxReason:    string(t.TxReason),
		AmountCents: t.AmountCents,
		CreatedAt: Timestamp{
			Seconds: t.CreatedAt.Unix(),
			Nanos:   int32(t.CreatedAt.Nanosecond()),
		},
	}
}
