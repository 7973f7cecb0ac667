package grpc

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/umpyre/beancounterd/internal/escrow"
	"github.com/umpyre/beancounterd/internal/ledger"
	"github.com/umpyre/beancounterd/internal/storage/relationaldb"
)

// parseClientID validates a wire client id.
func parseClientID(field, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid %s: %v", field, err)
	}
	return id, nil
}

// validPaymentAmount reports whether a payment amount is inside the accepted
// range.
func validPaymentAmount(cents int32) bool {
	return cents >= 1 && int64(cents) <= ledger.MaxPaymentCents
}

// statusFromError maps internal failures onto RPC status codes. Business
// pre-condition failures never reach this function; handlers classify those
// into in-band result codes first.
func statusFromError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, relationaldb.ErrPaymentNotFound):
		return status.Error(codes.NotFound, "payment not found")
	case errors.Is(err, relationaldb.ErrConnectAccountNotFound):
		return status.Error(codes.NotFound, "connect account not found")
	case errors.Is(err, escrow.ErrWrongRecipient):
		return status.Error(codes.FailedPrecondition, "payment addressed to a different recipient")
	case relationaldb.IsConstraintError(err):
		return status.Error(codes.FailedPrecondition, "operation violates balance invariants")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// insufficientFunds reports whether err is any of the ledger's
// insufficient-funds pre-condition failures.
func insufficientFunds(err error) bool {
	return errors.Is(err, ledger.ErrInsufficientBalance) ||
		errors.Is(err, ledger.ErrInsufficientPromo) ||
		errors.Is(err, ledger.ErrInsufficientWithdrawable)
}

// connectAccountInfo builds the wire view of a connect account: ACTIVE
// accounts carry a dashboard login link, INACTIVE ones the onboarding URL.
func (s *Server) connectAccountInfo(ctx context.Context, account *relationaldb.ConnectAccount) *ConnectAccountInfo {
	info := &ConnectAccountInfo{
		ClientID:                      account.ClientID.String(),
		EnableAutomaticPayouts:        account.EnableAutomaticPayouts,
		AutomaticPayoutThresholdCents: account.AutomaticPayoutThresholdCents,
	}
	if account.Active() {
		info.State = ConnectAccountStateActive
		link, err := s.oauth.LoginLink(ctx, *account.StripeUserID)
		if err != nil {
			// The account itself is fine; report it without a link.
			s.log.Warn("login link creation failed",
				zap.String("client_id", account.ClientID.String()),
				zap.Error(err))
		}
		info.LoginLinkURL = link
		return info
	}
	info.State = ConnectAccountStateInactive
	info.OauthURL = s.oauth.OauthURL(account.OauthState)
	return info
}
