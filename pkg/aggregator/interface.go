// Package aggregator provides price aggregation strategies.
package aggregator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/oracle-exchange/pkg/logging"
)

const (
	// ModeMedian uses the plain median of all reports.
	ModeMedian = "median"
	// ModeWeightedMedian uses the median weighted by reporter weight.
	ModeWeightedMedian = "weighted_median"
	// ModeAverage uses weighted average aggregation.
	ModeAverage = "average"
	// ModeAdaptive uses adaptive threshold filtering with configurable sensitivity.
	ModeAdaptive = "adaptive"
)

// Aggregator computes a single consensus value from the current reports of
// one asset class. Implementations must not modify the input slice.
type Aggregator interface {
	Aggregate(inputs []Input) (decimal.Decimal, error)
	// Mode returns the aggregation mode name.
	Mode() string
}

// AdaptiveConfig holds configuration for adaptive aggregator.
type AdaptiveConfig struct {
	Sensitivity float64 // k constant (1.5 = strict, 2.0 = tolerant)
	FinalMode   string  // "median" or "average" for final aggregation
}

// NewAggregator creates an aggregator based on the specified mode.
func NewAggregator(mode string, logger *logging.Logger) (Aggregator, error) {
	return NewAggregatorWithConfig(mode, logger, nil)
}

// NewAggregatorWithConfig creates an aggregator with optional configuration.
func NewAggregatorWithConfig(mode string, logger *logging.Logger, adaptiveConfig *AdaptiveConfig) (Aggregator, error) {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	switch mode {
	case ModeMedian, "":
		return NewMedianAggregator(logger), nil
	case ModeWeightedMedian:
		return NewWeightedMedianAggregator(logger), nil
	case ModeAverage:
		return NewAverageAggregator(logger), nil
	case ModeAdaptive:
		var sensitivity float64
		var finalMode string
		if adaptiveConfig != nil {
			sensitivity = adaptiveConfig.Sensitivity
			finalMode = adaptiveConfig.FinalMode
		}
		return NewAdaptiveAggregator(logger, sensitivity, finalMode), nil
	default:
		return nil, fmt.Errorf("%w: %s (supported: median, weighted_median, average, adaptive)", ErrUnknownMode, mode)
	}
}
