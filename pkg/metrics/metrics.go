// Package metrics provides Prometheus metrics for the oracle and exchange.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PricePostsTotal is a counter of accepted price reports.
	PricePostsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_price_posts_total",
			Help: "Total number of price reports accepted from trusted reporters",
		},
		[]string{"reporter", "asset_class"},
	)

	// PricePostRejectionsTotal is a counter of rejected price reports.
	PricePostRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_price_post_rejections_total",
			Help: "Total number of price reports rejected",
		},
		[]string{"reason"},
	)

	// ConsensusPrice is a gauge of the latest consensus price per asset class.
	ConsensusPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oracle_consensus_price",
			Help: "Most recently computed consensus price for an asset class",
		},
		[]string{"asset_class"},
	)

	// PriceAggregationDuration is a histogram of price aggregation duration.
	PriceAggregationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oracle_price_aggregation_duration_seconds",
			Help:    "Duration of price aggregation operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// OutlierRejectionsTotal is a counter of reports dropped by the adaptive aggregator.
	OutlierRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "oracle_outlier_rejections_total",
			Help: "Total number of reports filtered as outliers",
		},
	)

	// TradesTotal is a counter of exchange operations by kind and outcome.
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_trades_total",
			Help: "Total number of buy and sell operations",
		},
		[]string{"side", "status"},
	)

	// EscrowBalance is a gauge of funds held by the exchange.
	EscrowBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "exchange_escrow_balance",
			Help: "Funds currently held in escrow by the exchange",
		},
	)

	// AssetSupply is a gauge of outstanding assets.
	AssetSupply = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "custody_asset_supply",
			Help: "Number of minted and not yet burned assets",
		},
	)

	// JournalErrorsTotal is a counter of failed journal writes.
	JournalErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "journal_errors_total",
			Help: "Total number of journal writes that failed",
		},
		[]string{"kind"},
	)

	// HTTPRequestsTotal is a counter of total HTTP requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	// HTTPRequestDuration is a histogram of HTTP request latencies.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint"},
	)

	// WebSocketClients is a gauge of connected streaming clients.
	WebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_clients",
			Help: "Number of connected websocket clients",
		},
	)
)

var initOnce sync.Once

// Init registers all metrics with the default registry. Safe to call twice.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			PricePostsTotal,
			PricePostRejectionsTotal,
			ConsensusPrice,
			PriceAggregationDuration,
			OutlierRejectionsTotal,
			TradesTotal,
			EscrowBalance,
			AssetSupply,
			JournalErrorsTotal,
			HTTPRequestsTotal,
			HTTPRequestDuration,
			WebSocketClients,
		)
	})
}

// ServeHTTP serves Prometheus metrics on the specified address and path.
func ServeHTTP(addr, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// RecordPricePost records an accepted price report.
func RecordPricePost(reporter, assetClass string) {
	PricePostsTotal.WithLabelValues(reporter, assetClass).Inc()
}

// RecordPriceRejection records a rejected price report.
func RecordPriceRejection(reason string) {
	PricePostRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordConsensus records the latest consensus value for an asset class.
func RecordConsensus(assetClass string, value float64) {
	ConsensusPrice.WithLabelValues(assetClass).Set(value)
}

// RecordAggregation records a price aggregation operation.
func RecordAggregation(method string, duration time.Duration) {
	PriceAggregationDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordOutlierRejection records an outlier rejection.
func RecordOutlierRejection() {
	OutlierRejectionsTotal.Inc()
}

// RecordTrade records a buy or sell attempt.
func RecordTrade(side, status string) {
	TradesTotal.WithLabelValues(side, status).Inc()
}

// RecordEscrow records the current escrow balance.
func RecordEscrow(balance float64) {
	EscrowBalance.Set(balance)
}

// RecordSupply records the outstanding asset count.
func RecordSupply(n int) {
	AssetSupply.Set(float64(n))
}

// RecordJournalError records a failed journal write.
func RecordJournalError(kind string) {
	JournalErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
