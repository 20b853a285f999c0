package reporter

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/oracle-exchange/pkg/feeder/client"
)

// PriceSource provides the value a reporter posts for an asset class.
type PriceSource interface {
	Price(ctx context.Context, assetClass string) (decimal.Decimal, error)
}

// StaticSource returns fixed values. Set can change them between cycles.
type StaticSource struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStaticSource creates a source from a class to price map.
func NewStaticSource(prices map[string]decimal.Decimal) *StaticSource {
	s := &StaticSource{prices: make(map[string]decimal.Decimal, len(prices))}
	for k, v := range prices {
		s.prices[k] = v
	}
	return s
}

// Set replaces the value of one class.
func (s *StaticSource) Set(assetClass string, value decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[assetClass] = value
}

// Price implements PriceSource.
func (s *StaticSource) Price(_ context.Context, assetClass string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.prices[assetClass]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownClass, assetClass)
	}
	return v, nil
}

// UpstreamSource mirrors the consensus of another oracle server.
type UpstreamSource struct {
	client *client.HTTPClient
}

// NewUpstreamSource reads prices from the server behind c.
func NewUpstreamSource(c *client.HTTPClient) *UpstreamSource {
	return &UpstreamSource{client: c}
}

// Price implements PriceSource.
func (u *UpstreamSource) Price(ctx context.Context, assetClass string) (decimal.Decimal, error) {
	resp, err := u.client.Consensus(ctx, assetClass)
	if err != nil {
		return decimal.Zero, fmt.Errorf("upstream consensus for %s: %w", assetClass, err)
	}
	return resp.Price, nil
}
