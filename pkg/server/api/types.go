package api

import (
	"github.com/shopspring/decimal"

	"github.com/StrathCole/oracle-exchange/pkg/oracle"
)

// SignatureHeader carries the hex signature over SigningPayload.
const SignatureHeader = "X-Signature"

// Signed request bodies carry a unix timestamp and an optional nonce. The
// nonce only needs to differ between otherwise identical requests.

// PostPriceRequest is the body of POST /v1/prices.
type PostPriceRequest struct {
	AssetClass string          `json:"asset_class"`
	Value      decimal.Decimal `json:"value"`
	Timestamp  int64           `json:"timestamp"`
	Nonce      string          `json:"nonce,omitempty"`
}

// BuyRequest is the body of POST /v1/exchange/buy.
type BuyRequest struct {
	Payment   decimal.Decimal `json:"payment"`
	Timestamp int64           `json:"timestamp"`
	Nonce     string          `json:"nonce,omitempty"`
}

// SellRequest is the body of POST /v1/exchange/sell.
type SellRequest struct {
	AssetID   uint64 `json:"asset_id"`
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce,omitempty"`
}

// ApproveRequest is the body of POST /v1/assets/{id}/approve.
type ApproveRequest struct {
	Spender   string `json:"spender"`
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce,omitempty"`
}

// PriceResponse is returned by GET /v1/prices/{class}.
type PriceResponse struct {
	AssetClass string          `json:"asset_class"`
	Price      decimal.Decimal `json:"price"`
	Reports    int             `json:"reports"`
	Mode       string          `json:"mode"`
}

// ReportsResponse is returned by GET /v1/prices/{class}/reports.
type ReportsResponse struct {
	AssetClass string               `json:"asset_class"`
	Reports    []oracle.PriceReport `json:"reports"`
}

// PostPriceResponse acknowledges an accepted report.
type PostPriceResponse struct {
	Reporter   string          `json:"reporter"`
	AssetClass string          `json:"asset_class"`
	Value      decimal.Decimal `json:"value"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
