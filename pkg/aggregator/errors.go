package aggregator

import "errors"

var (
	// ErrNoInputs indicates that there was nothing to aggregate.
	ErrNoInputs = errors.New("no inputs to aggregate")
	// ErrUnknownMode indicates that the aggregation mode is unknown.
	ErrUnknownMode = errors.New("unknown aggregation mode")
)
