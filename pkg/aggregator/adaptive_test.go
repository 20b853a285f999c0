package aggregator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/oracle-exchange/pkg/logging"
)

func TestAdaptiveAggregator_SingleInput(t *testing.T) {
	agg := NewAdaptiveAggregator(logging.NewNoopLogger(), 1.5, ModeAverage)

	result, err := agg.Aggregate(inputs("0.00012"))
	require.NoError(t, err)
	assert.True(t, result.Equal(dec("0.00012")))
}

func TestAdaptiveAggregator_NoOutliers(t *testing.T) {
	agg := NewAdaptiveAggregator(logging.NewNoopLogger(), 1.5, ModeAverage)

	result, err := agg.Aggregate(inputs("0.00012", "0.000121", "0.000119"))
	require.NoError(t, err)

	expected := dec("0.00012").Add(dec("0.000121")).Add(dec("0.000119")).Div(decimal.NewFromInt(3))
	assert.True(t, result.Sub(expected).Abs().LessThan(dec("0.0000001")))
}

func TestAdaptiveAggregator_WithOutliers(t *testing.T) {
	agg := NewAdaptiveAggregator(logging.NewNoopLogger(), 1.5, ModeAverage)

	// 0.0005 is a 4x outlier and must be filtered
	result, err := agg.Aggregate(inputs("0.00012", "0.000121", "0.000119", "0.0005"))
	require.NoError(t, err)

	expected := dec("0.00012").Add(dec("0.000121")).Add(dec("0.000119")).Div(decimal.NewFromInt(3))
	diff := result.Sub(expected).Abs()
	assert.True(t, diff.LessThan(dec("0.0000001")),
		"Expected %s, got %s, diff %s", expected.String(), result.String(), diff.String())
}

func TestAdaptiveAggregator_MedianFinalMode(t *testing.T) {
	agg := NewAdaptiveAggregator(logging.NewNoopLogger(), 2.0, ModeMedian)

	result, err := agg.Aggregate(inputs("10", "12", "11", "13", "11"))
	require.NoError(t, err)
	assert.True(t, result.Equal(dec("11")), "got %s", result)
}

func TestAdaptiveAggregator_IdenticalInputs(t *testing.T) {
	// zero deviation: nothing is rejected
	agg := NewAdaptiveAggregator(logging.NewNoopLogger(), 1.5, ModeAverage)

	result, err := agg.Aggregate(inputs("999", "999", "999"))
	require.NoError(t, err)
	assert.True(t, result.Equal(dec("999")))
}

func TestAdaptiveAggregator_Defaults(t *testing.T) {
	agg := NewAdaptiveAggregator(logging.NewNoopLogger(), 0, "bogus")
	assert.Equal(t, 1.5, agg.sensitivity)
	assert.Equal(t, ModeMedian, agg.finalMode)
	assert.Equal(t, ModeAdaptive, agg.Mode())
}

func TestAdaptiveAggregator_EmptyInput(t *testing.T) {
	agg := NewAdaptiveAggregator(logging.NewNoopLogger(), 1.5, ModeMedian)

	_, err := agg.Aggregate(nil)
	require.ErrorIs(t, err, ErrNoInputs)
}
