package oracle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/StrathCole/oracle-exchange/pkg/aggregator"
	"github.com/StrathCole/oracle-exchange/pkg/journal"
	"github.com/StrathCole/oracle-exchange/pkg/logging"
	"github.com/StrathCole/oracle-exchange/pkg/metrics"
)

// PriceLedger stores the latest report of every trusted reporter per asset
// class and derives the consensus price on demand. Posting overwrites the
// reporter's previous value; no history is kept.
type PriceLedger struct {
	sources    TrustedSourceSet
	aggregator aggregator.Aggregator
	minReports int
	weights    map[common.Address]float64
	journal    journal.Journal
	logger     *logging.Logger
	now        func() time.Time

	mu      sync.RWMutex
	reports map[string]map[common.Address]PriceReport

	subscribersMu sync.RWMutex
	subscribers   []chan<- ConsensusUpdate
}

// LedgerOption configures a PriceLedger.
type LedgerOption func(*PriceLedger)

// WithMinReports sets how many reports a class needs before a consensus
// exists. Values below 1 are treated as 1.
func WithMinReports(n int) LedgerOption {
	return func(l *PriceLedger) {
		if n < 1 {
			n = 1
		}
		l.minReports = n
	}
}

// WithWeights sets per-reporter weights for weighted aggregation modes.
func WithWeights(weights map[common.Address]float64) LedgerOption {
	return func(l *PriceLedger) {
		l.weights = make(map[common.Address]float64, len(weights))
		for k, v := range weights {
			l.weights[k] = v
		}
	}
}

// WithJournal records accepted reports to j.
func WithJournal(j journal.Journal) LedgerOption {
	return func(l *PriceLedger) {
		if j != nil {
			l.journal = j
		}
	}
}

// WithClock overrides the time source used to stamp reports.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *PriceLedger) {
		l.now = now
	}
}

// NewPriceLedger creates an empty ledger. A nil aggregator selects the median.
func NewPriceLedger(sources TrustedSourceSet, agg aggregator.Aggregator, logger *logging.Logger, opts ...LedgerOption) *PriceLedger {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	if agg == nil {
		agg = aggregator.NewMedianAggregator(logger)
	}

	l := &PriceLedger{
		sources:    sources,
		aggregator: agg,
		minReports: 1,
		weights:    map[common.Address]float64{},
		journal:    journal.Nop{},
		logger:     logger,
		now:        time.Now,
		reports:    make(map[string]map[common.Address]PriceReport),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewInitializedLedger creates a ledger and posts every registry seed on
// behalf of its reporter.
func NewInitializedLedger(ctx context.Context, registry *TrustRegistry, agg aggregator.Aggregator, logger *logging.Logger, opts ...LedgerOption) (*PriceLedger, error) {
	l := NewPriceLedger(registry, agg, logger, opts...)
	for _, seed := range registry.Seeds() {
		if err := l.PostPrice(ctx, seed.Reporter, seed.AssetClass, seed.Price); err != nil {
			return nil, fmt.Errorf("%w: seed for %s: %v", ErrConfiguration, seed.Reporter.Hex(), err)
		}
	}
	return l, nil
}

// PostPrice overwrites the reporter's value for assetClass.
func (l *PriceLedger) PostPrice(ctx context.Context, reporter common.Address, assetClass string, value decimal.Decimal) error {
	if !l.sources.IsTrusted(reporter) {
		metrics.RecordPriceRejection("unauthorized")
		return fmt.Errorf("%w: %s", ErrUnauthorized, reporter.Hex())
	}
	if assetClass == "" {
		metrics.RecordPriceRejection("invalid")
		return fmt.Errorf("%w: empty asset class", ErrInvalidPrice)
	}
	if value.IsNegative() {
		metrics.RecordPriceRejection("invalid")
		return fmt.Errorf("%w: negative value %s", ErrInvalidPrice, value)
	}

	report := PriceReport{
		Reporter:   reporter,
		AssetClass: assetClass,
		Value:      value,
		PostedAt:   l.now().UTC(),
	}

	l.mu.Lock()
	slots, ok := l.reports[assetClass]
	if !ok {
		slots = make(map[common.Address]PriceReport, l.sources.Size())
		l.reports[assetClass] = slots
	}
	slots[reporter] = report
	price, count, consensusErr := l.consensusLocked(assetClass)
	l.mu.Unlock()

	metrics.RecordPricePost(reporter.Hex(), assetClass)
	l.logger.Info("Price posted",
		"reporter", reporter.Hex(),
		"asset_class", assetClass,
		"value", value.String(),
		"reports", count)

	event := journal.NewEvent(journal.KindPricePosted, reporter.Hex())
	event.AssetClass = assetClass
	event.Amount = value
	jctx, cancel := journal.Detach(ctx)
	if err := l.journal.Append(jctx, event); err != nil {
		metrics.RecordJournalError(string(journal.KindPricePosted))
		l.logger.Error("Failed to journal price post", "reporter", reporter.Hex(), "error", err)
	}
	cancel()

	l.notifySubscribers(ConsensusUpdate{
		AssetClass: assetClass,
		Price:      price,
		Reports:    count,
		Reporter:   reporter,
		Err:        consensusErr,
	})
	return nil
}

// ConsensusPrice returns the aggregated price of the current reports.
func (l *PriceLedger) ConsensusPrice(assetClass string) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	price, _, err := l.consensusLocked(assetClass)
	return price, err
}

// WithConsensus computes the consensus price and calls fn with it while
// holding the ledger read lock, so no report can change until fn returns.
// fn must not call back into methods that post prices.
func (l *PriceLedger) WithConsensus(assetClass string, fn func(price decimal.Decimal) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	price, _, err := l.consensusLocked(assetClass)
	if err != nil {
		return err
	}
	return fn(price)
}

// consensusLocked requires l.mu to be held.
func (l *PriceLedger) consensusLocked(assetClass string) (decimal.Decimal, int, error) {
	slots := l.reports[assetClass]
	if len(slots) < l.minReports {
		return decimal.Zero, len(slots), fmt.Errorf("%w: %s has %d of %d required", ErrNoReports, assetClass, len(slots), l.minReports)
	}

	inputs := make([]aggregator.Input, 0, len(slots))
	for addr, r := range slots {
		inputs = append(inputs, aggregator.Input{
			Source: addr.Hex(),
			Value:  r.Value,
			Weight: l.weights[addr],
		})
	}

	price, err := l.aggregator.Aggregate(inputs)
	if err != nil {
		return decimal.Zero, len(slots), fmt.Errorf("aggregate %s: %w", assetClass, err)
	}

	f, _ := price.Float64()
	metrics.RecordConsensus(assetClass, f)
	return price, len(slots), nil
}

// Reports returns the current reports for assetClass ordered by reporter.
func (l *PriceLedger) Reports(assetClass string) []PriceReport {
	l.mu.RLock()
	defer l.mu.RUnlock()

	slots := l.reports[assetClass]
	out := make([]PriceReport, 0, len(slots))
	for _, r := range slots {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Reporter.Hex() < out[j].Reporter.Hex()
	})
	return out
}

// PriceBy returns one reporter's current report for assetClass.
func (l *PriceLedger) PriceBy(reporter common.Address, assetClass string) (PriceReport, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	r, ok := l.reports[assetClass][reporter]
	return r, ok
}

// AssetClasses returns every class with at least one report, sorted.
func (l *PriceLedger) AssetClasses() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.reports))
	for class := range l.reports {
		out = append(out, class)
	}
	sort.Strings(out)
	return out
}

// Mode returns the aggregation mode in use.
func (l *PriceLedger) Mode() string {
	return l.aggregator.Mode()
}

// Subscribe registers ch for consensus updates. Slow subscribers miss updates.
func (l *PriceLedger) Subscribe(ch chan<- ConsensusUpdate) {
	l.subscribersMu.Lock()
	defer l.subscribersMu.Unlock()
	l.subscribers = append(l.subscribers, ch)
}

// Unsubscribe removes ch.
func (l *PriceLedger) Unsubscribe(ch chan<- ConsensusUpdate) {
	l.subscribersMu.Lock()
	defer l.subscribersMu.Unlock()

	for i, subscriber := range l.subscribers {
		if subscriber == ch {
			l.subscribers = append(l.subscribers[:i], l.subscribers[i+1:]...)
			break
		}
	}
}

func (l *PriceLedger) notifySubscribers(update ConsensusUpdate) {
	l.subscribersMu.RLock()
	defer l.subscribersMu.RUnlock()

	for _, ch := range l.subscribers {
		select {
		case ch <- update:
		default:
			l.logger.Warn("Subscriber channel full, skipping update", "asset_class", update.AssetClass)
		}
	}
}
