package oracle

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addr(b byte) common.Address {
	var a common.Address
	a[common.AddressLength-1] = b
	return a
}

func prices(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.RequireFromString(v)
	}
	return out
}

func TestNewTrustRegistry(t *testing.T) {
	reporters := []common.Address{addr(1), addr(2), addr(3)}
	r, err := NewTrustRegistry(reporters, []string{"DVNFT", "DVNFT", "DVNFT"}, prices("999", "999", "999"))
	require.NoError(t, err)

	assert.Equal(t, 3, r.Size())
	assert.Equal(t, reporters, r.Reporters())
	assert.True(t, r.IsTrusted(addr(2)))
	assert.False(t, r.IsTrusted(addr(9)))

	seeds := r.Seeds()
	require.Len(t, seeds, 3)
	assert.Equal(t, addr(1), seeds[0].Reporter)
	assert.Equal(t, "DVNFT", seeds[0].AssetClass)
	assert.True(t, seeds[0].Price.Equal(decimal.NewFromInt(999)))
}

func TestNewTrustRegistry_Rejects(t *testing.T) {
	tests := []struct {
		name      string
		reporters []common.Address
		classes   []string
		prices    []decimal.Decimal
	}{
		{"empty", nil, nil, nil},
		{"fewer classes", []common.Address{addr(1), addr(2)}, []string{"A"}, prices("1", "2")},
		{"fewer prices", []common.Address{addr(1), addr(2)}, []string{"A", "A"}, prices("1")},
		{"zero address", []common.Address{{}}, []string{"A"}, prices("1")},
		{"duplicate", []common.Address{addr(1), addr(1)}, []string{"A", "A"}, prices("1", "1")},
		{"empty class", []common.Address{addr(1)}, []string{""}, prices("1")},
		{"negative price", []common.Address{addr(1)}, []string{"A"}, prices("-1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTrustRegistry(tt.reporters, tt.classes, tt.prices)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestTrustRegistry_CopiesAreIndependent(t *testing.T) {
	r, err := NewTrustRegistry([]common.Address{addr(1)}, []string{"A"}, prices("1"))
	require.NoError(t, err)

	reporters := r.Reporters()
	reporters[0] = addr(7)
	assert.True(t, r.IsTrusted(addr(1)))
	assert.Equal(t, addr(1), r.Reporters()[0])
}
