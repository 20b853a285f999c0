package aggregator

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/oracle-exchange/pkg/logging"
	"github.com/StrathCole/oracle-exchange/pkg/metrics"
)

// AdaptiveAggregator uses statistical filtering with configurable sensitivity.
// It computes median, calculates standard deviation, and filters outliers
// using the formula: |Pi - median| <= k * σ.
type AdaptiveAggregator struct {
	logger      *logging.Logger
	sensitivity float64 // k constant (e.g., 1.5-2.0)
	finalMode   string  // "median" or "average" for final aggregation
}

// Ensure AdaptiveAggregator implements Aggregator interface.
var _ Aggregator = (*AdaptiveAggregator)(nil)

// NewAdaptiveAggregator creates a new adaptive aggregator.
// sensitivity: k value for filtering (1.5 = strict, 2.0 = tolerant)
// finalMode: "median" or "average" for final aggregation of filtered prices.
func NewAdaptiveAggregator(logger *logging.Logger, sensitivity float64, finalMode string) *AdaptiveAggregator {
	if sensitivity <= 0 {
		sensitivity = 1.5
	}

	if finalMode != ModeMedian && finalMode != ModeAverage {
		finalMode = ModeMedian
	}

	return &AdaptiveAggregator{
		logger:      logger,
		sensitivity: sensitivity,
		finalMode:   finalMode,
	}
}

// Mode implements Aggregator.
func (a *AdaptiveAggregator) Mode() string { return ModeAdaptive }

// Aggregate filters outliers and aggregates the remaining values.
// Process:
// 1. Compute median.
// 2. Compute standard deviation around the median.
// 3. Filter by |Pi - median| <= k * σ.
// 4. Aggregate remaining values.
func (a *AdaptiveAggregator) Aggregate(inputs []Input) (decimal.Decimal, error) {
	start := time.Now()
	defer func() {
		metrics.RecordAggregation(ModeAdaptive, time.Since(start))
	}()

	if len(inputs) == 0 {
		return decimal.Zero, fmt.Errorf("%w", ErrNoInputs)
	}
	if len(inputs) == 1 {
		return inputs[0].Value, nil
	}

	sorted := sortedCopy(inputs)
	median := simpleMedian(sorted)
	stdDev := a.computeStdDev(sorted, median)
	threshold := decimal.NewFromFloat(a.sensitivity).Mul(stdDev)

	filtered := make([]Input, 0, len(sorted))
	for _, in := range sorted {
		deviation := in.Value.Sub(median).Abs()
		if deviation.GreaterThan(threshold) {
			a.logger.Debug("Rejecting outlier (adaptive)",
				"source", in.Source,
				"price", in.Value.String(),
				"median", median.String(),
				"threshold", threshold.String())
			metrics.RecordOutlierRejection()
			continue
		}
		filtered = append(filtered, in)
	}

	if len(filtered) == 0 {
		a.logger.Warn("All prices rejected by adaptive filter, using all prices",
			"initial_count", len(sorted),
			"stddev", stdDev.String())
		filtered = sorted
	}

	if a.finalMode == ModeMedian {
		return weightedMedian(filtered), nil
	}
	return weightedAverage(filtered), nil
}

// computeStdDev computes σ = sqrt(Σ(Pi - median)² / n).
func (a *AdaptiveAggregator) computeStdDev(inputs []Input, median decimal.Decimal) decimal.Decimal {
	if len(inputs) < 2 {
		return decimal.Zero
	}

	sumSquaredDev := decimal.Zero
	for _, in := range inputs {
		deviation := in.Value.Sub(median)
		sumSquaredDev = sumSquaredDev.Add(deviation.Mul(deviation))
	}

	variance := sumSquaredDev.Div(decimal.NewFromInt(int64(len(inputs))))
	varianceFloat, _ := variance.Float64()

	return decimal.NewFromFloat(math.Sqrt(varianceFloat))
}
