package oracle

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Seed is the initial price a reporter holds for an asset class.
type Seed struct {
	Reporter   common.Address
	AssetClass string
	Price      decimal.Decimal
}

// TrustRegistry is the immutable set of trusted reporters.
type TrustRegistry struct {
	reporters []common.Address
	members   map[common.Address]struct{}
	seeds     []Seed
}

var _ TrustedSourceSet = (*TrustRegistry)(nil)

// NewTrustRegistry builds the registry from parallel slices: reporters[i]
// is seeded with prices[i] for classes[i]. Mismatched lengths, an empty set,
// zero or duplicate addresses, empty classes and negative prices are
// rejected with ErrConfiguration.
func NewTrustRegistry(reporters []common.Address, classes []string, prices []decimal.Decimal) (*TrustRegistry, error) {
	if len(reporters) == 0 {
		return nil, fmt.Errorf("%w: no reporters", ErrConfiguration)
	}
	if len(reporters) != len(classes) || len(reporters) != len(prices) {
		return nil, fmt.Errorf("%w: %d reporters, %d asset classes, %d prices",
			ErrConfiguration, len(reporters), len(classes), len(prices))
	}

	r := &TrustRegistry{
		reporters: make([]common.Address, 0, len(reporters)),
		members:   make(map[common.Address]struct{}, len(reporters)),
		seeds:     make([]Seed, 0, len(reporters)),
	}

	for i, addr := range reporters {
		if addr == (common.Address{}) {
			return nil, fmt.Errorf("%w: reporter %d is the zero address", ErrConfiguration, i)
		}
		if _, dup := r.members[addr]; dup {
			return nil, fmt.Errorf("%w: duplicate reporter %s", ErrConfiguration, addr.Hex())
		}
		if classes[i] == "" {
			return nil, fmt.Errorf("%w: empty asset class for reporter %s", ErrConfiguration, addr.Hex())
		}
		if prices[i].IsNegative() {
			return nil, fmt.Errorf("%w: negative seed price for reporter %s", ErrConfiguration, addr.Hex())
		}

		r.members[addr] = struct{}{}
		r.reporters = append(r.reporters, addr)
		r.seeds = append(r.seeds, Seed{Reporter: addr, AssetClass: classes[i], Price: prices[i]})
	}

	return r, nil
}

// IsTrusted reports whether addr is a registered reporter.
func (r *TrustRegistry) IsTrusted(addr common.Address) bool {
	_, ok := r.members[addr]
	return ok
}

// Size returns the number of registered reporters.
func (r *TrustRegistry) Size() int {
	return len(r.reporters)
}

// Reporters returns the reporters in registration order.
func (r *TrustRegistry) Reporters() []common.Address {
	out := make([]common.Address, len(r.reporters))
	copy(out, r.reporters)
	return out
}

// Seeds returns the initial (reporter, class, price) triples.
func (r *TrustRegistry) Seeds() []Seed {
	out := make([]Seed, len(r.seeds))
	copy(out, r.seeds)
	return out
}
