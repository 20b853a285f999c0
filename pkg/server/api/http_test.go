package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/oracle-exchange/pkg/custody"
	"github.com/StrathCole/oracle-exchange/pkg/exchange"
	"github.com/StrathCole/oracle-exchange/pkg/keystore"
	"github.com/StrathCole/oracle-exchange/pkg/oracle"
)

const class = "DVNFT"

type env struct {
	reporters []*keystore.Signer
	operator  *keystore.Signer
	trader    *keystore.Signer
	ledger    *oracle.PriceLedger
	exchange  *exchange.Exchange
	server    *Server
	handler   http.Handler
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{}
	addrs := make([]common.Address, 3)
	for i := range addrs {
		s, err := keystore.Generate()
		require.NoError(t, err)
		e.reporters = append(e.reporters, s)
		addrs[i] = s.Address()
	}
	var err error
	e.operator, err = keystore.Generate()
	require.NoError(t, err)
	e.trader, err = keystore.Generate()
	require.NoError(t, err)

	registry, err := oracle.NewTrustRegistry(addrs,
		[]string{class, class, class},
		[]decimal.Decimal{decimal.NewFromInt(999), decimal.NewFromInt(999), decimal.NewFromInt(999)})
	require.NoError(t, err)
	e.ledger, err = oracle.NewInitializedLedger(context.Background(), registry, nil, nil)
	require.NoError(t, err)

	e.exchange, err = exchange.New(e.ledger, custody.New(nil), exchange.Config{
		Address:       e.operator.Address(),
		AssetClass:    class,
		InitialEscrow: decimal.NewFromInt(9990),
	}, nil, nil)
	require.NoError(t, err)

	e.server = NewServer(":0", e.ledger, e.exchange, time.Minute, nil)
	e.handler = e.server.Router()
	return e
}

func (e *env) signed(t *testing.T, signer *keystore.Signer, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return e.signedFor(t, signer, path, path, body)
}

// signedFor signs body for signedPath and sends it to path.
func (e *env) signedFor(t *testing.T, signer *keystore.Signer, signedPath, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	if signer != nil {
		sig, err := signer.SignHex(SigningPayload(http.MethodPost, signedPath, payload))
		require.NoError(t, err)
		req.Header.Set(SignatureHeader, sig)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *env) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func now() int64 { return time.Now().Unix() }

func TestHealth(t *testing.T) {
	e := newEnv(t)
	rec := e.get("/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestConsensusAndReports(t *testing.T) {
	e := newEnv(t)

	rec := e.get("/v1/prices/" + class)
	require.Equal(t, http.StatusOK, rec.Code)
	var price PriceResponse
	decode(t, rec, &price)
	assert.True(t, price.Price.Equal(decimal.NewFromInt(999)))
	assert.Equal(t, 3, price.Reports)
	assert.Equal(t, "median", price.Mode)

	rec = e.get("/v1/prices/" + class + "/reports")
	require.Equal(t, http.StatusOK, rec.Code)
	var reports ReportsResponse
	decode(t, rec, &reports)
	assert.Len(t, reports.Reports, 3)

	rec = e.get("/v1/prices/UNKNOWN")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostPrice(t *testing.T) {
	e := newEnv(t)

	rec := e.signed(t, e.reporters[0], "/v1/prices", PostPriceRequest{
		AssetClass: class, Value: decimal.RequireFromString("0.001"), Timestamp: now(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp PostPriceResponse
	decode(t, rec, &resp)
	assert.Equal(t, e.reporters[0].Address().Hex(), resp.Reporter)

	report, ok := e.ledger.PriceBy(e.reporters[0].Address(), class)
	require.True(t, ok)
	assert.True(t, report.Value.Equal(decimal.RequireFromString("0.001")))
}

func TestPostPrice_Rejects(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name   string
		signer *keystore.Signer
		body   interface{}
		status int
	}{
		{"untrusted reporter", e.trader, PostPriceRequest{AssetClass: class, Value: decimal.NewFromInt(1), Timestamp: now()}, http.StatusForbidden},
		{"missing signature", nil, PostPriceRequest{AssetClass: class, Value: decimal.NewFromInt(1), Timestamp: now()}, http.StatusUnauthorized},
		{"stale timestamp", e.reporters[0], PostPriceRequest{AssetClass: class, Value: decimal.NewFromInt(1), Timestamp: now() - 3600}, http.StatusUnauthorized},
		{"negative value", e.reporters[0], PostPriceRequest{AssetClass: class, Value: decimal.NewFromInt(-1), Timestamp: now()}, http.StatusBadRequest},
		{"malformed body", e.reporters[0], []int{1, 2}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.signed(t, tt.signer, "/v1/prices", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			var errResp ErrorResponse
			decode(t, rec, &errResp)
			assert.NotEmpty(t, errResp.Error)
		})
	}

	price, err := e.ledger.ConsensusPrice(class)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(999)))
}

func TestBadSignature(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/exchange/buy", bytes.NewReader([]byte(`{"payment":"999"}`)))
	req.Header.Set(SignatureHeader, "0xdeadbeef")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBuyApproveSell(t *testing.T) {
	e := newEnv(t)

	rec := e.signed(t, e.trader, "/v1/exchange/buy", BuyRequest{Payment: decimal.NewFromInt(1000), Timestamp: now()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var bought exchange.BuyReceipt
	decode(t, rec, &bought)
	assert.True(t, bought.Refund.Equal(decimal.NewFromInt(1)))

	rec = e.get("/v1/assets/0")
	require.Equal(t, http.StatusOK, rec.Code)
	var asset custody.Asset
	decode(t, rec, &asset)
	assert.Equal(t, e.trader.Address(), asset.Owner)

	rec = e.signed(t, e.trader, "/v1/exchange/sell", SellRequest{AssetID: bought.AssetID, Timestamp: now(), Nonce: "first"})
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = e.signed(t, e.reporters[0], "/v1/assets/0/approve", ApproveRequest{Spender: e.operator.Address().Hex(), Timestamp: now()})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.signed(t, e.trader, "/v1/assets/0/approve", ApproveRequest{Spender: e.operator.Address().Hex(), Timestamp: now()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &asset)
	require.NotNil(t, asset.Approved)
	assert.Equal(t, e.operator.Address(), *asset.Approved)

	rec = e.signed(t, e.trader, "/v1/exchange/sell", SellRequest{AssetID: bought.AssetID, Timestamp: now(), Nonce: "second"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sold exchange.SellReceipt
	decode(t, rec, &sold)
	assert.True(t, sold.Payout.Equal(decimal.NewFromInt(999)))

	assert.Equal(t, http.StatusNotFound, e.get("/v1/assets/0").Code)

	rec = e.get("/v1/exchange")
	require.Equal(t, http.StatusOK, rec.Code)
	var state exchange.State
	decode(t, rec, &state)
	assert.True(t, state.Escrow.Equal(decimal.NewFromInt(9990)))
	assert.Equal(t, 0, state.Supply)
}

func TestBuy_Conflicts(t *testing.T) {
	e := newEnv(t)

	rec := e.signed(t, e.trader, "/v1/exchange/buy", BuyRequest{Payment: decimal.NewFromInt(5), Timestamp: now()})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.signed(t, e.trader, "/v1/exchange/buy", BuyRequest{Payment: decimal.Zero, Timestamp: now()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAsset_BadID(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusBadRequest, e.get("/v1/assets/abc").Code)
	assert.Equal(t, http.StatusNotFound, e.get("/v1/assets/12").Code)
}

func TestSignature_BoundToPath(t *testing.T) {
	e := newEnv(t)

	for range 2 {
		rec := e.signed(t, e.trader, "/v1/exchange/buy", BuyRequest{Payment: decimal.NewFromInt(999), Timestamp: now(), Nonce: uuid.NewString()})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	// recovering over the wrong path yields some other address, never the owner
	approve := ApproveRequest{Spender: e.operator.Address().Hex(), Timestamp: now()}
	rec := e.signedFor(t, e.trader, "/v1/assets/0/approve", "/v1/assets/1/approve", approve)
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = e.get("/v1/assets/1")
	require.Equal(t, http.StatusOK, rec.Code)
	var asset custody.Asset
	decode(t, rec, &asset)
	assert.Nil(t, asset.Approved)

	rec = e.signed(t, e.trader, "/v1/assets/0/approve", approve)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.signedFor(t, e.trader, "/v1/exchange/buy", "/v1/exchange/sell", SellRequest{AssetID: 0, Timestamp: now()})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 2, e.exchange.State().Supply)
}

func TestSignedRequest_ReplayRejected(t *testing.T) {
	e := newEnv(t)

	buy := BuyRequest{Payment: decimal.NewFromInt(999), Timestamp: now()}
	rec := e.signed(t, e.trader, "/v1/exchange/buy", buy)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.signed(t, e.trader, "/v1/exchange/buy", buy)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var errResp ErrorResponse
	decode(t, rec, &errResp)
	assert.Contains(t, errResp.Error, "already processed")

	// a fresh nonce makes the same purchase distinct
	buy.Nonce = uuid.NewString()
	rec = e.signed(t, e.trader, "/v1/exchange/buy", buy)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, 2, e.exchange.State().Supply)
	assert.True(t, e.exchange.EscrowBalance().Equal(decimal.NewFromInt(9990+2*999)))
}

func TestReplayGuard_Prunes(t *testing.T) {
	g := newReplayGuard(time.Minute)
	start := time.Unix(1700000000, 0)
	key := common.HexToHash("0x01")

	assert.True(t, g.admit(key, start))
	assert.False(t, g.admit(key, start.Add(30*time.Second)))

	// after two windows the entry is forgotten; the skew check rejects it by then
	assert.True(t, g.admit(common.HexToHash("0x02"), start.Add(3*time.Minute)))
	assert.True(t, g.admit(key, start.Add(3*time.Minute)))
}
