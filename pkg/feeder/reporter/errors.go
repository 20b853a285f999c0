// Package reporter runs the feeder loop of a trusted reporter: fetch a price
// for each asset class and post it, retrying failed posts.
package reporter

import "errors"

// Reporter errors.
var (
	ErrNoAssetClasses  = errors.New("no asset classes configured")
	ErrInvalidInterval = errors.New("interval must be positive")
	ErrUnknownClass    = errors.New("no price for asset class")
	ErrPostFailed      = errors.New("price post failed")
)
