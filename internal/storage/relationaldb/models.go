package relationaldb

import (
	"time"

	"github.com/google/uuid"
)

// TxType identifies the ledger rail an entry posts against and its sign.
// Debits carry negative sign when summed, credits positive.
type TxType string

const (
	TxTypeDebit       TxType = "debit"
	TxTypeCredit      TxType = "credit"
	TxTypePromoCredit TxType = "promo_credit"
	TxTypePromoDebit  TxType = "promo_debit"
)

// TxReason records why an entry was posted.
type TxReason string

const (
	TxReasonMessageRead   TxReason = "message_read"
	TxReasonMessageUnread TxReason = "message_unread"
	TxReasonMessageSent   TxReason = "message_sent"
	TxReasonCreditAdded   TxReason = "credit_added"
	TxReasonPayout        TxReason = "payout"
)

// ParseTxType maps a stored enum value to a TxType. Rows written before the
// promo_debit migration only carry the three older values; all four are
// accepted on read.
func ParseTxType(s string) (TxType, bool) {
	switch TxType(s) {
	case TxTypeDebit, TxTypeCredit, TxTypePromoCredit, TxTypePromoDebit:
		return TxType(s), true
	}
	return "", false
}

// IsPromo reports whether the type posts against the promo rail.
func (t TxType) IsPromo() bool {
	return t == TxTypePromoCredit || t == TxTypePromoDebit
}

// Sign returns +1 for credits and -1 for debits.
func (t TxType) Sign() int64 {
	switch t {
	case TxTypeDebit, TxTypePromoDebit:
		return -1
	default:
		return 1
	}
}

// Balance is the per-client fund partition. WithdrawableCents is a sub-pool
// of BalanceCents; PromoCents is an independent rail.
type Balance struct {
	ID                int64
	ClientID          uuid.UUID
	BalanceCents      int64
	PromoCents        int64
	WithdrawableCents int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Transaction is an append-only ledger entry. AmountCents is a positive
// magnitude; the sign is carried by TxType.
type Transaction struct {
	ID          int64
	CreatedAt   time.Time
	ClientID    uuid.UUID
	TxType      TxType
	TxReason    TxReason
	AmountCents int64
}

// Entry is a ledger entry to be inserted. Used by the posting engine.
type Entry struct {
	ClientID    uuid.UUID
	TxType      TxType
	TxReason    TxReason
	AmountCents int64
}

// BalanceDelta is an adjustment applied to a single balance row inside the
// same unit of work as the entries that justify it.
type BalanceDelta struct {
	ClientID          uuid.UUID
	BalanceCents      int64
	PromoCents        int64
	WithdrawableCents int64
}

// Payment is an escrow row for an unsettled message. ClientIDTo is nil until
// settlement identifies the recipient. MessageHash is the idempotency key,
// enforced UNIQUE by the schema.
type Payment struct {
	ID           int64
	CreatedAt    time.Time
	ClientIDFrom uuid.UUID
	ClientIDTo   *uuid.UUID
	PaymentCents int64
	MessageHash  []byte
	IsPromo      bool
}

// NewPayment is the insertable form of Payment.
type NewPayment struct {
	ClientIDFrom uuid.UUID
	ClientIDTo   *uuid.UUID
	PaymentCents int64
	MessageHash  []byte
	IsPromo      bool
}

// ConnectAccount links a client to the external payments provider. The
// account is active once StripeUserID is set by the OAuth exchange.
type ConnectAccount struct {
	ID                            int64
	ClientID                      uuid.UUID
	OauthState                    uuid.UUID
	StripeUserID                  *string
	ConnectAccount                []byte
	ConnectCredentials            []byte
	EnableAutomaticPayouts        bool
	AutomaticPayoutThresholdCents int64
	CreatedAt                     time.Time
	UpdatedAt                     time.Time
}

// Active reports whether the provider-side account is usable for transfers.
func (a *ConnectAccount) Active() bool {
	return a.StripeUserID != nil && *a.StripeUserID != ""
}

// ConnectTransfer is the immutable audit row of a completed outbound payout.
type ConnectTransfer struct {
	ID           int64
	CreatedAt    time.Time
	ClientID     uuid.UUID
	StripeUserID string
	AmountCents  int64
	TransferID   string
}

// ChargeRecord is the audit row of a successful card charge.
type ChargeRecord struct {
	ID        int64
	CreatedAt time.Time
	ClientID  uuid.UUID
	Charge    []byte
}

// DailySum aggregates posted amounts for one reason on one day.
type DailySum struct {
	Day         string
	TxReason    TxReason
	AmountCents int64
}

// ClientSum aggregates posted amounts for one client under one reason.
type ClientSum struct {
	ClientID    uuid.UUID
	TxReason    TxReason
	AmountCents int64
}

// Stats is the aggregate report backing GetStats.
type Stats struct {
	Daily      []DailySum
	TopClients []ClientSum
}

// PayoutCandidate is a client eligible for an automatic payout sweep.
type PayoutCandidate struct {
	ClientID          uuid.UUID
	WithdrawableCents int64
	ThresholdCents    int64
	StripeUserID      string
}
