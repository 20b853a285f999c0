// Package api exposes the oracle and the exchange over HTTP and streams
// consensus updates over WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/StrathCole/oracle-exchange/pkg/exchange"
	"github.com/StrathCole/oracle-exchange/pkg/keystore"
	"github.com/StrathCole/oracle-exchange/pkg/logging"
	"github.com/StrathCole/oracle-exchange/pkg/metrics"
	"github.com/StrathCole/oracle-exchange/pkg/oracle"
)

// Server represents the HTTP API server.
type Server struct {
	addr     string
	ledger   *oracle.PriceLedger
	exchange *exchange.Exchange
	maxSkew  time.Duration
	replays  *replayGuard
	now      func() time.Time
	server   *http.Server
	logger   *logging.Logger

	tlsCert string
	tlsKey  string
}

// NewServer creates a new HTTP API server. A zero maxSkew disables the
// timestamp check.
func NewServer(addr string, ledger *oracle.PriceLedger, ex *exchange.Exchange, maxSkew time.Duration, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	s := &Server{
		addr:     addr,
		ledger:   ledger,
		exchange: ex,
		maxSkew:  maxSkew,
		replays:  newReplayGuard(maxSkew),
		now:      time.Now,
		logger:   logger,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// SetTLS serves HTTPS with the given certificate and key files.
func (s *Server) SetTLS(certFile, keyFile string) {
	s.tlsCert = certFile
	s.tlsKey = keyFile
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/prices/{class}", s.handleConsensus)
		r.Get("/prices/{class}/reports", s.handleReports)
		r.Post("/prices", s.signed(s.handlePostPrice))

		r.Get("/exchange", s.handleExchange)
		r.Post("/exchange/buy", s.signed(s.handleBuy))
		r.Post("/exchange/sell", s.signed(s.handleSell))

		r.Get("/assets/{id}", s.handleAsset)
		r.Post("/assets/{id}/approve", s.signed(s.handleApprove))
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	var err error
	if s.tlsCert != "" {
		s.logger.Info("Starting HTTPS server", "addr", s.addr)
		err = s.server.ListenAndServeTLS(s.tlsCert, s.tlsKey)
	} else {
		s.logger.Info("Starting HTTP server", "addr", s.addr)
		err = s.server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// instrument records request counts and latency per route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(route, strconv.Itoa(status), time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleConsensus(w http.ResponseWriter, r *http.Request) {
	class := chi.URLParam(r, "class")
	price, err := s.ledger.ConsensusPrice(class)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, PriceResponse{
		AssetClass: class,
		Price:      price,
		Reports:    len(s.ledger.Reports(class)),
		Mode:       s.ledger.Mode(),
	})
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	class := chi.URLParam(r, "class")
	s.sendJSON(w, http.StatusOK, ReportsResponse{
		AssetClass: class,
		Reports:    s.ledger.Reports(class),
	})
}

func (s *Server) handlePostPrice(w http.ResponseWriter, r *http.Request, req signedRequest) {
	var body PostPriceRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		s.sendError(w, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	if err := s.ledger.PostPrice(r.Context(), req.Caller, body.AssetClass, body.Value); err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, PostPriceResponse{
		Reporter:   req.Caller.Hex(),
		AssetClass: body.AssetClass,
		Value:      body.Value,
	})
}

func (s *Server) handleExchange(w http.ResponseWriter, _ *http.Request) {
	s.sendJSON(w, http.StatusOK, s.exchange.State())
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request, req signedRequest) {
	var body BuyRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		s.sendError(w, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	receipt, err := s.exchange.BuyOne(r.Context(), req.Caller, body.Payment)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request, req signedRequest) {
	var body SellRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		s.sendError(w, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	receipt, err := s.exchange.SellOne(r.Context(), req.Caller, body.AssetID)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	id, err := assetID(r)
	if err != nil {
		s.sendError(w, err)
		return
	}
	asset, err := s.exchange.Token().Asset(id)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, asset)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request, req signedRequest) {
	id, err := assetID(r)
	if err != nil {
		s.sendError(w, err)
		return
	}
	var body ApproveRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		s.sendError(w, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	spender, err := keystore.ParseAddress(body.Spender)
	if err != nil {
		s.sendError(w, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	if err := s.exchange.Approve(r.Context(), req.Caller, id, spender); err != nil {
		s.sendError(w, err)
		return
	}
	asset, err := s.exchange.Token().Asset(id)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, asset)
}

func assetID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: asset id: %v", ErrBadRequest, err)
	}
	return id, nil
}

// sendJSON sends a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err)
	}
	s.sendJSON(w, status, ErrorResponse{Error: err.Error()})
}
