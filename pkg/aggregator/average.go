package aggregator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/oracle-exchange/pkg/logging"
	"github.com/StrathCole/oracle-exchange/pkg/metrics"
)

// AverageAggregator aggregates prices using the weighted arithmetic mean.
// A single reporter can move the mean arbitrarily far.
type AverageAggregator struct {
	logger *logging.Logger
}

// Ensure AverageAggregator implements Aggregator interface
var _ Aggregator = (*AverageAggregator)(nil)

// NewAverageAggregator creates a new average aggregator
func NewAverageAggregator(logger *logging.Logger) *AverageAggregator {
	return &AverageAggregator{
		logger: logger,
	}
}

// Mode implements Aggregator.
func (a *AverageAggregator) Mode() string { return ModeAverage }

// Aggregate computes the weighted average of the input values.
func (a *AverageAggregator) Aggregate(inputs []Input) (decimal.Decimal, error) {
	start := time.Now()
	defer func() {
		metrics.RecordAggregation(ModeAverage, time.Since(start))
	}()

	if len(inputs) == 0 {
		return decimal.Zero, fmt.Errorf("%w", ErrNoInputs)
	}

	avg := weightedAverage(inputs)
	a.logger.Debug("Aggregated average", "inputs", len(inputs), "average", avg.String())
	return avg, nil
}

func weightedAverage(inputs []Input) decimal.Decimal {
	if len(inputs) == 0 {
		return decimal.Zero
	}
	if len(inputs) == 1 {
		return inputs[0].Value
	}

	sum := decimal.Zero
	totalWeight := decimal.Zero
	for _, in := range inputs {
		w := decimal.NewFromFloat(in.weight())
		sum = sum.Add(in.Value.Mul(w))
		totalWeight = totalWeight.Add(w)
	}

	return sum.Div(totalWeight)
}
