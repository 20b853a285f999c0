package aggregator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/oracle-exchange/pkg/logging"
	"github.com/StrathCole/oracle-exchange/pkg/metrics"
)

// MedianAggregator returns the plain median of all inputs. Weights are ignored.
//
// The median is unaffected by any minority of reporters, but once at least
// half of the inputs agree on a value they decide the result.
type MedianAggregator struct {
	logger *logging.Logger
}

// Ensure MedianAggregator implements Aggregator interface.
var _ Aggregator = (*MedianAggregator)(nil)

// NewMedianAggregator creates a new median aggregator.
func NewMedianAggregator(logger *logging.Logger) *MedianAggregator {
	return &MedianAggregator{
		logger: logger,
	}
}

// Mode implements Aggregator.
func (a *MedianAggregator) Mode() string { return ModeMedian }

// Aggregate computes the median of the input values.
func (a *MedianAggregator) Aggregate(inputs []Input) (decimal.Decimal, error) {
	start := time.Now()
	defer func() {
		metrics.RecordAggregation(ModeMedian, time.Since(start))
	}()

	if len(inputs) == 0 {
		return decimal.Zero, fmt.Errorf("%w", ErrNoInputs)
	}

	median := simpleMedian(sortedCopy(inputs))
	a.logger.Debug("Aggregated median", "inputs", len(inputs), "median", median.String())
	return median, nil
}

// WeightedMedianAggregator returns the value at which cumulative weight
// reaches half of the total weight.
type WeightedMedianAggregator struct {
	logger *logging.Logger
}

var _ Aggregator = (*WeightedMedianAggregator)(nil)

// NewWeightedMedianAggregator creates a new weighted median aggregator.
func NewWeightedMedianAggregator(logger *logging.Logger) *WeightedMedianAggregator {
	return &WeightedMedianAggregator{logger: logger}
}

// Mode implements Aggregator.
func (a *WeightedMedianAggregator) Mode() string { return ModeWeightedMedian }

// Aggregate computes the weighted median of the input values.
func (a *WeightedMedianAggregator) Aggregate(inputs []Input) (decimal.Decimal, error) {
	start := time.Now()
	defer func() {
		metrics.RecordAggregation(ModeWeightedMedian, time.Since(start))
	}()

	if len(inputs) == 0 {
		return decimal.Zero, fmt.Errorf("%w", ErrNoInputs)
	}

	return weightedMedian(sortedCopy(inputs)), nil
}

// weightedMedian expects sorted input. With equal weights it matches simpleMedian.
func weightedMedian(sorted []Input) decimal.Decimal {
	n := len(sorted)
	if n == 0 {
		return decimal.Zero
	}
	if n == 1 {
		return sorted[0].Value
	}

	totalWeight := 0.0
	for _, in := range sorted {
		totalWeight += in.weight()
	}

	targetWeight := totalWeight / 2.0
	cumulativeWeight := 0.0

	for i, in := range sorted {
		cumulativeWeight += in.weight()

		if cumulativeWeight >= targetWeight {
			// exactly at the halfway mark: average with the next value
			if cumulativeWeight == targetWeight && i+1 < n {
				return in.Value.Add(sorted[i+1].Value).Mul(half)
			}
			return in.Value
		}
	}

	return sorted[n/2].Value
}
