package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/oracle-exchange/pkg/custody"
	"github.com/StrathCole/oracle-exchange/pkg/exchange"
	"github.com/StrathCole/oracle-exchange/pkg/keystore"
	"github.com/StrathCole/oracle-exchange/pkg/oracle"
	"github.com/StrathCole/oracle-exchange/pkg/server/api"
)

const class = "DVNFT"

func startServer(t *testing.T, reporters ...*keystore.Signer) (*httptest.Server, common.Address) {
	t.Helper()

	addrs := make([]common.Address, len(reporters))
	classes := make([]string, len(reporters))
	prices := make([]decimal.Decimal, len(reporters))
	for i, r := range reporters {
		addrs[i] = r.Address()
		classes[i] = class
		prices[i] = decimal.NewFromInt(999)
	}
	registry, err := oracle.NewTrustRegistry(addrs, classes, prices)
	require.NoError(t, err)
	ledger, err := oracle.NewInitializedLedger(context.Background(), registry, nil, nil)
	require.NoError(t, err)

	operator, err := keystore.Generate()
	require.NoError(t, err)
	ex, err := exchange.New(ledger, custody.New(nil), exchange.Config{
		Address:       operator.Address(),
		AssetClass:    class,
		InitialEscrow: decimal.NewFromInt(9990),
	}, nil, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewServer(":0", ledger, ex, time.Minute, nil).Router())
	t.Cleanup(srv.Close)
	return srv, operator.Address()
}

func TestHTTPClient_RoundTrip(t *testing.T) {
	reporter, err := keystore.Generate()
	require.NoError(t, err)
	trader, err := keystore.Generate()
	require.NoError(t, err)
	srv, operator := startServer(t, reporter)
	ctx := context.Background()

	feeder := NewHTTPClient(srv.URL+"/", 5*time.Second, reporter)
	posted, err := feeder.PostPrice(ctx, class, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.Equal(t, reporter.Address().Hex(), posted.Reporter)

	consensus, err := feeder.Consensus(ctx, class)
	require.NoError(t, err)
	assert.True(t, consensus.Price.Equal(decimal.NewFromInt(10)))

	reports, err := feeder.Reports(ctx, class)
	require.NoError(t, err)
	require.Len(t, reports.Reports, 1)

	buyerClient := NewHTTPClient(srv.URL, 5*time.Second, trader)
	bought, err := buyerClient.Buy(ctx, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), bought.AssetID)

	asset, err := buyerClient.Asset(ctx, bought.AssetID)
	require.NoError(t, err)
	assert.Equal(t, trader.Address(), asset.Owner)

	_, err = buyerClient.Approve(ctx, bought.AssetID, operator)
	require.NoError(t, err)
	sold, err := buyerClient.Sell(ctx, bought.AssetID)
	require.NoError(t, err)
	assert.True(t, sold.Payout.Equal(decimal.NewFromInt(10)))

	state, err := buyerClient.Exchange(ctx)
	require.NoError(t, err)
	assert.True(t, state.Escrow.Equal(decimal.NewFromInt(9990)))
}

func TestHTTPClient_StatusError(t *testing.T) {
	reporter, err := keystore.Generate()
	require.NoError(t, err)
	stranger, err := keystore.Generate()
	require.NoError(t, err)
	srv, _ := startServer(t, reporter)

	c := NewHTTPClient(srv.URL, 5*time.Second, stranger)
	_, err = c.PostPrice(context.Background(), class, decimal.NewFromInt(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerHTTPError)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.Code)
	assert.Contains(t, statusErr.Message, "not trusted")
	assert.False(t, statusErr.Temporary())
}

func TestStatusError_Temporary(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusConflict, false},
		{http.StatusRequestTimeout, true},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		err := &StatusError{Code: tt.code}
		assert.Equal(t, tt.want, err.Temporary(), "code %d", tt.code)
	}
}

func TestHTTPClient_ReadOnly(t *testing.T) {
	reporter, err := keystore.Generate()
	require.NoError(t, err)
	srv, _ := startServer(t, reporter)

	c := NewHTTPClient(srv.URL, 5*time.Second, nil)
	assert.Equal(t, common.Address{}, c.Address())

	_, err = c.Consensus(context.Background(), class)
	require.NoError(t, err)

	_, err = c.Buy(context.Background(), decimal.NewFromInt(1))
	assert.Error(t, err)
}
