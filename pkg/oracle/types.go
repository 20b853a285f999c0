// Package oracle implements a fixed set of trusted price reporters and the
// ledger that turns their latest reports into a consensus price.
package oracle

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PriceReport is a reporter's current value for an asset class.
type PriceReport struct {
	Reporter   common.Address  `json:"reporter"`
	AssetClass string          `json:"asset_class"`
	Value      decimal.Decimal `json:"value"`
	PostedAt   time.Time       `json:"posted_at"`
}

// ConsensusUpdate is published to subscribers after every accepted report.
// Err is set when the class has no consensus (too few reports).
type ConsensusUpdate struct {
	AssetClass string
	Price      decimal.Decimal
	Reports    int
	Reporter   common.Address
	Err        error
}

// TrustedSourceSet answers membership questions about the reporter set.
type TrustedSourceSet interface {
	IsTrusted(addr common.Address) bool
	Size() int
}
