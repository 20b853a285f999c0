package drill

import "errors"

var (
	// ErrNotEnoughKeys indicates fewer leaked keys than needed to move the median.
	ErrNotEnoughKeys = errors.New("not enough compromised reporters to control the median")
	// ErrKeyNotTrusted indicates a leaked key does not belong to a trusted reporter.
	ErrKeyNotTrusted = errors.New("leaked key is not a trusted reporter")
)
