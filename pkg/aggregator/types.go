package aggregator

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Input is one reporter's current value for an asset class.
type Input struct {
	Source string
	Value  decimal.Decimal
	Weight float64 // 0 means the standard weight of 1.0
}

func (in Input) weight() float64 {
	if in.Weight <= 0 {
		return 1.0
	}
	return in.Weight
}

// sortedCopy returns the inputs ordered by value, ties broken by source.
func sortedCopy(inputs []Input) []Input {
	sorted := make([]Input, len(inputs))
	copy(sorted, inputs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Value.Equal(sorted[j].Value) {
			return sorted[i].Source < sorted[j].Source
		}
		return sorted[i].Value.LessThan(sorted[j].Value)
	})
	return sorted
}

// half is exact; Div rounds to DivisionPrecision digits.
var half = decimal.New(5, -1)

// simpleMedian expects sorted input: middle value for odd counts, mean of
// the two middle values for even counts.
func simpleMedian(sorted []Input) decimal.Decimal {
	n := len(sorted)
	if n == 0 {
		return decimal.Zero
	}
	if n%2 == 0 {
		return sorted[n/2-1].Value.Add(sorted[n/2].Value).Mul(half)
	}
	return sorted[n/2].Value
}
