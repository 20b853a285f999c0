package reporter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/StrathCole/oracle-exchange/pkg/feeder/client"
	"github.com/StrathCole/oracle-exchange/pkg/server/api"
)

// State represents the current state of the reporting loop
type State string

const (
	StateIdle       State = "idle"
	StateFetchPrice State = "fetch_price"
	StateSubmit     State = "submit"
	StateWait       State = "wait"
	StateError      State = "error"
)

// Poster submits signed price reports. *client.HTTPClient implements it.
type Poster interface {
	PostPrice(ctx context.Context, assetClass string, value decimal.Decimal) (api.PostPriceResponse, error)
}

// Config contains reporter configuration
type Config struct {
	AssetClasses  []string
	Interval      time.Duration
	MaxRetries    int
	RetryInterval time.Duration
}

// Reporter posts a price for every configured class once per interval.
type Reporter struct {
	source PriceSource
	poster Poster
	logger zerolog.Logger

	classes       []string
	interval      time.Duration
	maxRetries    int
	retryInterval time.Duration

	mu         sync.RWMutex
	state      State
	lastPosted map[string]decimal.Decimal
	cycles     int
}

// New creates a reporter.
func New(cfg Config, source PriceSource, poster Poster, logger zerolog.Logger) (*Reporter, error) {
	if len(cfg.AssetClasses) == 0 {
		return nil, ErrNoAssetClasses
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, cfg.Interval)
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}

	return &Reporter{
		source:        source,
		poster:        poster,
		logger:        logger,
		classes:       append([]string(nil), cfg.AssetClasses...),
		interval:      cfg.Interval,
		maxRetries:    cfg.MaxRetries,
		retryInterval: cfg.RetryInterval,
		state:         StateIdle,
		lastPosted:    make(map[string]decimal.Decimal),
	}, nil
}

// Start runs a cycle immediately and then once per interval until ctx ends.
func (r *Reporter) Start(ctx context.Context) error {
	r.logger.Info().
		Strs("asset_classes", r.classes).
		Dur("interval", r.interval).
		Msg("Starting price reporter")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.RunOnce(ctx); err != nil {
			r.logger.Error().Err(err).Msg("Report cycle failed")
			// keep going; the next cycle may succeed
		}

		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Price reporter stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce fetches and posts every class. It returns the first error after
// trying all classes.
func (r *Reporter) RunOnce(ctx context.Context) error {
	var firstErr error
	for _, class := range r.classes {
		if err := r.report(ctx, class); err != nil {
			r.logger.Error().Err(err).Str("asset_class", class).Msg("Failed to report price")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	r.mu.Lock()
	r.cycles++
	if firstErr != nil {
		r.state = StateError
	} else {
		r.state = StateWait
	}
	r.mu.Unlock()

	return firstErr
}

func (r *Reporter) report(ctx context.Context, class string) error {
	r.setState(StateFetchPrice)
	value, err := r.source.Price(ctx, class)
	if err != nil {
		return fmt.Errorf("failed to fetch price: %w", err)
	}

	r.setState(StateSubmit)
	if err := r.postWithRetry(ctx, class, value); err != nil {
		return err
	}

	r.mu.Lock()
	r.lastPosted[class] = value
	r.mu.Unlock()
	return nil
}

// postWithRetry posts a report, retrying transport failures and temporary
// server errors.
func (r *Reporter) postWithRetry(ctx context.Context, class string, value decimal.Decimal) error {
	var lastErr error

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if attempt > 0 {
			r.logger.Debug().
				Int("attempt", attempt+1).
				Int("max", r.maxRetries).
				Msg("Retrying price post")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.retryInterval):
			}
		}

		resp, err := r.poster.PostPrice(ctx, class, value)
		if err == nil {
			r.logger.Info().
				Str("reporter", resp.Reporter).
				Str("asset_class", class).
				Str("value", value.String()).
				Msg("Price posted")
			return nil
		}

		lastErr = err
		r.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("Price post failed")

		var statusErr *client.StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			return fmt.Errorf("%w: rejected by server: %w", ErrPostFailed, err)
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrPostFailed, r.maxRetries, lastErr)
}

func (r *Reporter) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// GetState returns the current loop state
func (r *Reporter) GetState() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// LastPosted returns the last value successfully posted for class.
func (r *Reporter) LastPosted(class string) (decimal.Decimal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.lastPosted[class]
	return v, ok
}

// Cycles returns how many cycles have completed.
func (r *Reporter) Cycles() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cycles
}
