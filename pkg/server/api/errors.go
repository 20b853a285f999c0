package api

import (
	"errors"
	"net/http"

	"github.com/StrathCole/oracle-exchange/pkg/custody"
	"github.com/StrathCole/oracle-exchange/pkg/exchange"
	"github.com/StrathCole/oracle-exchange/pkg/oracle"
)

var (
	// ErrMissingSignature indicates a signed route was called without X-Signature.
	ErrMissingSignature = errors.New("missing signature")
	// ErrBadSignature indicates the signature could not be recovered.
	ErrBadSignature = errors.New("invalid signature")
	// ErrStaleRequest indicates the body timestamp is outside the allowed skew.
	ErrStaleRequest = errors.New("request timestamp outside allowed skew")
	// ErrReplayedRequest indicates an identical signed request was already accepted.
	ErrReplayedRequest = errors.New("request already processed")
	// ErrBadRequest indicates a malformed body or path parameter.
	ErrBadRequest = errors.New("bad request")
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrMissingSignature),
		errors.Is(err, ErrBadSignature),
		errors.Is(err, ErrStaleRequest),
		errors.Is(err, ErrReplayedRequest):
		return http.StatusUnauthorized
	case errors.Is(err, oracle.ErrUnauthorized),
		errors.Is(err, custody.ErrUnauthorized),
		errors.Is(err, custody.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, oracle.ErrNoReports),
		errors.Is(err, custody.ErrUnknownAsset):
		return http.StatusNotFound
	case errors.Is(err, exchange.ErrInsufficientPayment),
		errors.Is(err, exchange.ErrInsufficientEscrow),
		errors.Is(err, exchange.ErrSoldOut):
		return http.StatusConflict
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, oracle.ErrInvalidPrice),
		errors.Is(err, exchange.ErrInvalidPayment),
		errors.Is(err, custody.ErrInvalidRecipient):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
