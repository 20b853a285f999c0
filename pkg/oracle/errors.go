package oracle

import "errors"

var (
	// ErrConfiguration indicates an invalid reporter set or seed data.
	ErrConfiguration = errors.New("invalid oracle configuration")
	// ErrUnauthorized indicates that the caller is not a trusted reporter.
	ErrUnauthorized = errors.New("reporter not trusted")
	// ErrNoReports indicates that there are not enough reports to form a consensus.
	ErrNoReports = errors.New("no price reports")
	// ErrInvalidPrice indicates a negative price or an empty asset class.
	ErrInvalidPrice = errors.New("invalid price report")
)
