package exchange

import (
	"errors"

	"github.com/StrathCole/oracle-exchange/pkg/custody"
	"github.com/StrathCole/oracle-exchange/pkg/oracle"
)

var (
	// ErrConfiguration indicates an invalid exchange setup.
	ErrConfiguration = errors.New("invalid exchange configuration")
	// ErrInvalidPayment indicates a zero or negative payment.
	ErrInvalidPayment = errors.New("payment must be positive")
	// ErrInsufficientPayment indicates the payment is below the consensus price.
	ErrInsufficientPayment = errors.New("insufficient payment")
	// ErrInsufficientEscrow indicates the payout exceeds the escrow balance.
	ErrInsufficientEscrow = errors.New("insufficient escrow")
	// ErrSoldOut indicates the supply ceiling is reached.
	ErrSoldOut = errors.New("supply ceiling reached")

	// Re-exported so callers can match every trade failure against this package.
	ErrNotOwner     = custody.ErrNotOwner
	ErrUnauthorized = custody.ErrUnauthorized
	ErrUnknownAsset = custody.ErrUnknownAsset
	ErrNoReports    = oracle.ErrNoReports
)

// tradeStatus maps an operation error to a metrics label.
func tradeStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidPayment):
		return "invalid_payment"
	case errors.Is(err, ErrInsufficientPayment):
		return "insufficient_payment"
	case errors.Is(err, ErrInsufficientEscrow):
		return "insufficient_escrow"
	case errors.Is(err, ErrSoldOut):
		return "sold_out"
	case errors.Is(err, ErrNotOwner):
		return "not_owner"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrUnknownAsset):
		return "unknown_asset"
	case errors.Is(err, ErrNoReports):
		return "no_reports"
	default:
		return "error"
	}
}
