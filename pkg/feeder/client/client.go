// Package client talks to the oracle exchange HTTP API. Write calls are
// signed with the caller's key.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/StrathCole/oracle-exchange/pkg/custody"
	"github.com/StrathCole/oracle-exchange/pkg/exchange"
	"github.com/StrathCole/oracle-exchange/pkg/keystore"
	"github.com/StrathCole/oracle-exchange/pkg/server/api"
	"github.com/StrathCole/oracle-exchange/pkg/version"
)

// HTTPClient calls the API as one principal.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	signer  *keystore.Signer
	now     func() time.Time
}

// NewHTTPClient creates a client. signer may be nil for read-only use.
func NewHTTPClient(baseURL string, timeout time.Duration, signer *keystore.Signer) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
		signer: signer,
		now:    time.Now,
	}
}

// Address returns the signer's address, or the zero address when read-only.
func (c *HTTPClient) Address() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.Address()
}

// Consensus fetches the consensus price of assetClass.
func (c *HTTPClient) Consensus(ctx context.Context, assetClass string) (api.PriceResponse, error) {
	var out api.PriceResponse
	err := c.get(ctx, "/v1/prices/"+url.PathEscape(assetClass), &out)
	return out, err
}

// Reports fetches the current per-reporter values of assetClass.
func (c *HTTPClient) Reports(ctx context.Context, assetClass string) (api.ReportsResponse, error) {
	var out api.ReportsResponse
	err := c.get(ctx, "/v1/prices/"+url.PathEscape(assetClass)+"/reports", &out)
	return out, err
}

// PostPrice submits a signed price report.
func (c *HTTPClient) PostPrice(ctx context.Context, assetClass string, value decimal.Decimal) (api.PostPriceResponse, error) {
	var out api.PostPriceResponse
	err := c.post(ctx, "/v1/prices", api.PostPriceRequest{
		AssetClass: assetClass,
		Value:      value,
		Timestamp:  c.now().Unix(),
		Nonce:      uuid.NewString(),
	}, &out)
	return out, err
}

// Exchange fetches the exchange state.
func (c *HTTPClient) Exchange(ctx context.Context) (exchange.State, error) {
	var out exchange.State
	err := c.get(ctx, "/v1/exchange", &out)
	return out, err
}

// Buy purchases one asset.
func (c *HTTPClient) Buy(ctx context.Context, payment decimal.Decimal) (exchange.BuyReceipt, error) {
	var out exchange.BuyReceipt
	err := c.post(ctx, "/v1/exchange/buy", api.BuyRequest{
		Payment:   payment,
		Timestamp: c.now().Unix(),
		Nonce:     uuid.NewString(),
	}, &out)
	return out, err
}

// Sell sells id back to the exchange.
func (c *HTTPClient) Sell(ctx context.Context, id uint64) (exchange.SellReceipt, error) {
	var out exchange.SellReceipt
	err := c.post(ctx, "/v1/exchange/sell", api.SellRequest{
		AssetID:   id,
		Timestamp: c.now().Unix(),
		Nonce:     uuid.NewString(),
	}, &out)
	return out, err
}

// Asset fetches one asset record.
func (c *HTTPClient) Asset(ctx context.Context, id uint64) (custody.Asset, error) {
	var out custody.Asset
	err := c.get(ctx, "/v1/assets/"+strconv.FormatUint(id, 10), &out)
	return out, err
}

// Approve lets spender move id.
func (c *HTTPClient) Approve(ctx context.Context, id uint64, spender common.Address) (custody.Asset, error) {
	var out custody.Asset
	err := c.post(ctx, "/v1/assets/"+strconv.FormatUint(id, 10)+"/approve", api.ApproveRequest{
		Spender:   spender.Hex(),
		Timestamp: c.now().Unix(),
		Nonce:     uuid.NewString(),
	}, &out)
	return out, err
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out interface{}) error {
	if c.signer == nil {
		return errors.New("client has no signing key")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	// baseURL may carry a prefix, so sign the path the server will see.
	sig, err := c.signer.SignHex(api.SigningPayload(req.Method, req.URL.Path, payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.SignatureHeader, sig)
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out interface{}) error {
	req.Header.Set("User-Agent", version.AgentString())
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		var apiErr api.ErrorResponse
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
