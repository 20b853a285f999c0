package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/StrathCole/oracle-exchange/pkg/keystore"
)

const (
	maxBodyBytes = 64 << 10
	// replayWindow applies when the skew check is disabled.
	replayWindow = 5 * time.Minute
)

// SigningPayload is the message a caller signs: method, path and raw body
// joined by newlines. Binding the path keeps a body signed for one asset
// from being replayed against another.
func SigningPayload(method, path string, body []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(method) + len(path) + len(body) + 2)
	buf.WriteString(method)
	buf.WriteByte('\n')
	buf.WriteString(path)
	buf.WriteByte('\n')
	buf.Write(body)
	return buf.Bytes()
}

// replayGuard remembers accepted requests until they would fail the skew
// check anyway. Entries are keyed by caller and payload hash, not by the
// signature, which is malleable.
type replayGuard struct {
	window time.Duration

	mu        sync.Mutex
	seen      map[common.Hash]time.Time
	lastPrune time.Time
}

func newReplayGuard(window time.Duration) *replayGuard {
	if window <= 0 {
		window = replayWindow
	}
	return &replayGuard{
		window: window,
		seen:   make(map[common.Hash]time.Time),
	}
}

// admit records key and reports whether it was new.
func (g *replayGuard) admit(key common.Hash, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if now.Sub(g.lastPrune) > g.window {
		for k, at := range g.seen {
			// accepted timestamps are at most window old, so 2x covers them
			if now.Sub(at) > 2*g.window {
				delete(g.seen, k)
			}
		}
		g.lastPrune = now
	}

	if _, ok := g.seen[key]; ok {
		return false
	}
	g.seen[key] = now
	return true
}

// signedRequest is what a verified handler receives.
type signedRequest struct {
	Caller common.Address
	Body   []byte
}

// verify reads the body, recovers the signer of SigningPayload from
// X-Signature, checks the body timestamp against the allowed clock skew and
// rejects requests it has already accepted.
func (s *Server) verify(r *http.Request) (signedRequest, error) {
	sig := r.Header.Get(SignatureHeader)
	if sig == "" {
		return signedRequest{}, ErrMissingSignature
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return signedRequest{}, fmt.Errorf("%w: read body: %v", ErrBadRequest, err)
	}

	payload := SigningPayload(r.Method, r.URL.Path, body)
	caller, err := keystore.RecoverHex(payload, sig)
	if err != nil {
		return signedRequest{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	var stamp struct {
		Timestamp int64 `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &stamp); err != nil {
		return signedRequest{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if s.maxSkew > 0 {
		skew := s.now().Sub(time.Unix(stamp.Timestamp, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > s.maxSkew {
			return signedRequest{}, fmt.Errorf("%w: %s", ErrStaleRequest, skew)
		}
	}

	key := crypto.Keccak256Hash(caller.Bytes(), payload)
	if !s.replays.admit(key, s.now()) {
		return signedRequest{}, fmt.Errorf("%w: %s", ErrReplayedRequest, caller.Hex())
	}

	return signedRequest{Caller: caller, Body: body}, nil
}

// signed wraps a handler that needs an authenticated caller.
func (s *Server) signed(next func(w http.ResponseWriter, r *http.Request, req signedRequest)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := s.verify(r)
		if err != nil {
			s.logger.Warn("Rejected signed request", "path", r.URL.Path, "error", err)
			s.sendError(w, err)
			return
		}
		next(w, r, req)
	}
}
