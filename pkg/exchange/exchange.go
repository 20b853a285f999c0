// Package exchange sells unique assets at the oracle's consensus price and
// buys them back at whatever the consensus is at the time of sale. Funds
// received are tracked as a single escrow balance.
package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/StrathCole/oracle-exchange/pkg/custody"
	"github.com/StrathCole/oracle-exchange/pkg/journal"
	"github.com/StrathCole/oracle-exchange/pkg/logging"
	"github.com/StrathCole/oracle-exchange/pkg/metrics"
)

// PriceOracle provides the consensus price. WithConsensus must keep the
// price stable until fn returns.
type PriceOracle interface {
	ConsensusPrice(assetClass string) (decimal.Decimal, error)
	WithConsensus(assetClass string, fn func(price decimal.Decimal) error) error
}

// AssetRegistry is the custody surface the exchange needs.
type AssetRegistry interface {
	MintWithPrice(owner common.Address, price decimal.Decimal) (uint64, error)
	OwnerOf(id uint64) (common.Address, error)
	GetApproved(id uint64) (common.Address, error)
	Approve(id uint64, caller, spender common.Address) error
	BurnFrom(id uint64, owner, spender common.Address) error
	Asset(id uint64) (custody.Asset, error)
	Supply() int
}

// Config holds exchange parameters.
type Config struct {
	// Address is the exchange's own principal. Sellers approve it.
	Address    common.Address
	AssetClass string
	// InitialEscrow is deposited at construction.
	InitialEscrow decimal.Decimal
	// SupplyCap limits outstanding assets. Zero means unlimited.
	SupplyCap int
}

// BuyReceipt describes a completed purchase.
type BuyReceipt struct {
	AssetID uint64          `json:"asset_id"`
	Price   decimal.Decimal `json:"price"`
	Refund  decimal.Decimal `json:"refund"`
}

// SellReceipt describes a completed sale back to the exchange.
type SellReceipt struct {
	AssetID uint64          `json:"asset_id"`
	Payout  decimal.Decimal `json:"payout"`
}

// State is a point-in-time view of the exchange.
type State struct {
	Address    common.Address  `json:"address"`
	AssetClass string          `json:"asset_class"`
	Escrow     decimal.Decimal `json:"escrow"`
	Supply     int             `json:"supply"`
	SupplyCap  int             `json:"supply_cap"`
}

// Exchange runs buy and sell operations. Each runs under the exchange
// mutex and inside the oracle's consensus read, so a price post cannot land
// between the price check and the custody and escrow updates.
type Exchange struct {
	oracle  PriceOracle
	assets  AssetRegistry
	journal journal.Journal
	logger  *logging.Logger

	address    common.Address
	assetClass string
	supplyCap  int

	mu     sync.Mutex
	escrow decimal.Decimal
}

// New creates an exchange and funds its escrow with cfg.InitialEscrow.
func New(oracle PriceOracle, assets AssetRegistry, cfg Config, j journal.Journal, logger *logging.Logger) (*Exchange, error) {
	if oracle == nil || assets == nil {
		return nil, fmt.Errorf("%w: oracle and asset registry are required", ErrConfiguration)
	}
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("%w: exchange address is zero", ErrConfiguration)
	}
	if cfg.AssetClass == "" {
		return nil, fmt.Errorf("%w: asset class is empty", ErrConfiguration)
	}
	if cfg.InitialEscrow.IsNegative() {
		return nil, fmt.Errorf("%w: negative initial escrow %s", ErrConfiguration, cfg.InitialEscrow)
	}
	if cfg.SupplyCap < 0 {
		return nil, fmt.Errorf("%w: negative supply cap %d", ErrConfiguration, cfg.SupplyCap)
	}
	if j == nil {
		j = journal.Nop{}
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	e := &Exchange{
		oracle:     oracle,
		assets:     assets,
		journal:    j,
		logger:     logger.With("component", "exchange"),
		address:    cfg.Address,
		assetClass: cfg.AssetClass,
		supplyCap:  cfg.SupplyCap,
		escrow:     cfg.InitialEscrow,
	}
	f, _ := e.escrow.Float64()
	metrics.RecordEscrow(f)
	return e, nil
}

// BuyOne mints one asset to buyer at the current consensus price. Escrow
// grows by the price; the excess of payment over price is returned as the
// refund.
func (e *Exchange) BuyOne(ctx context.Context, buyer common.Address, payment decimal.Decimal) (BuyReceipt, error) {
	receipt, escrow, err := e.buy(buyer, payment)
	metrics.RecordTrade("buy", tradeStatus(err))
	if err != nil {
		e.logger.Warn("Buy rejected", "buyer", buyer.Hex(), "payment", payment.String(), "error", err)
		return BuyReceipt{}, err
	}

	e.logger.Info("Asset bought",
		"buyer", buyer.Hex(),
		"asset_id", receipt.AssetID,
		"price", receipt.Price.String(),
		"refund", receipt.Refund.String(),
		"escrow", escrow.String())

	event := journal.NewEvent(journal.KindBuy, buyer.Hex()).WithAsset(receipt.AssetID)
	event.AssetClass = e.assetClass
	event.Amount = receipt.Price
	event.Escrow = escrow
	e.append(ctx, event)

	return receipt, nil
}

func (e *Exchange) buy(buyer common.Address, payment decimal.Decimal) (BuyReceipt, decimal.Decimal, error) {
	if !payment.IsPositive() {
		return BuyReceipt{}, decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidPayment, payment)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var receipt BuyReceipt
	err := e.oracle.WithConsensus(e.assetClass, func(price decimal.Decimal) error {
		if payment.LessThan(price) {
			return fmt.Errorf("%w: paid %s, price %s", ErrInsufficientPayment, payment, price)
		}
		if e.supplyCap > 0 && e.assets.Supply() >= e.supplyCap {
			return fmt.Errorf("%w: %d outstanding", ErrSoldOut, e.supplyCap)
		}

		id, err := e.assets.MintWithPrice(buyer, price)
		if err != nil {
			return err
		}
		e.escrow = e.escrow.Add(price)
		receipt = BuyReceipt{AssetID: id, Price: price, Refund: payment.Sub(price)}
		return nil
	})
	if err != nil {
		return BuyReceipt{}, decimal.Zero, err
	}

	f, _ := e.escrow.Float64()
	metrics.RecordEscrow(f)
	return receipt, e.escrow, nil
}

// SellOne buys id back from seller at the current consensus price and burns
// it. The seller must own id and have approved the exchange for it.
func (e *Exchange) SellOne(ctx context.Context, seller common.Address, id uint64) (SellReceipt, error) {
	receipt, escrow, err := e.sell(seller, id)
	metrics.RecordTrade("sell", tradeStatus(err))
	if err != nil {
		e.logger.Warn("Sell rejected", "seller", seller.Hex(), "asset_id", id, "error", err)
		return SellReceipt{}, err
	}

	e.logger.Info("Asset sold",
		"seller", seller.Hex(),
		"asset_id", id,
		"payout", receipt.Payout.String(),
		"escrow", escrow.String())

	event := journal.NewEvent(journal.KindSell, seller.Hex()).WithAsset(id)
	event.AssetClass = e.assetClass
	event.Amount = receipt.Payout
	event.Escrow = escrow
	e.append(ctx, event)

	return receipt, nil
}

func (e *Exchange) sell(seller common.Address, id uint64) (SellReceipt, decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	owner, err := e.assets.OwnerOf(id)
	if err != nil {
		return SellReceipt{}, decimal.Zero, err
	}
	if owner != seller {
		return SellReceipt{}, decimal.Zero, fmt.Errorf("%w: %s does not own %d", ErrNotOwner, seller.Hex(), id)
	}
	approved, err := e.assets.GetApproved(id)
	if err != nil {
		return SellReceipt{}, decimal.Zero, err
	}
	if approved != e.address {
		return SellReceipt{}, decimal.Zero, fmt.Errorf("%w: exchange not approved for %d", ErrUnauthorized, id)
	}

	var receipt SellReceipt
	err = e.oracle.WithConsensus(e.assetClass, func(price decimal.Decimal) error {
		if price.GreaterThan(e.escrow) {
			return fmt.Errorf("%w: payout %s, escrow %s", ErrInsufficientEscrow, price, e.escrow)
		}

		// BurnFrom re-checks owner and approval under the custody lock;
		// until it succeeds nothing has changed.
		if err := e.assets.BurnFrom(id, seller, e.address); err != nil {
			return err
		}
		e.escrow = e.escrow.Sub(price)
		receipt = SellReceipt{AssetID: id, Payout: price}
		return nil
	})
	if err != nil {
		return SellReceipt{}, decimal.Zero, err
	}

	f, _ := e.escrow.Float64()
	metrics.RecordEscrow(f)
	return receipt, e.escrow, nil
}

// Approve lets the owner of id approve spender, typically the exchange itself
// ahead of SellOne.
func (e *Exchange) Approve(ctx context.Context, owner common.Address, id uint64, spender common.Address) error {
	if err := e.assets.Approve(id, owner, spender); err != nil {
		return err
	}

	event := journal.NewEvent(journal.KindApprove, owner.Hex()).WithAsset(id)
	event.AssetClass = e.assetClass
	e.append(ctx, event)
	return nil
}

func (e *Exchange) append(ctx context.Context, event journal.Event) {
	ctx, cancel := journal.Detach(ctx)
	defer cancel()
	if err := e.journal.Append(ctx, event); err != nil {
		metrics.RecordJournalError(string(event.Kind))
		e.logger.Error("Failed to journal trade", "kind", string(event.Kind), "id", event.ID.String(), "error", err)
	}
}

// Quote returns the price BuyOne would charge right now.
func (e *Exchange) Quote() (decimal.Decimal, error) {
	return e.oracle.ConsensusPrice(e.assetClass)
}

// EscrowBalance returns the funds currently held.
func (e *Exchange) EscrowBalance() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.escrow
}

// Address returns the exchange principal.
func (e *Exchange) Address() common.Address {
	return e.address
}

// AssetClass returns the class whose consensus price is used for trades.
func (e *Exchange) AssetClass() string {
	return e.assetClass
}

// Token returns the asset registry the exchange mints into.
func (e *Exchange) Token() AssetRegistry {
	return e.assets
}

// State returns a snapshot of escrow and supply.
func (e *Exchange) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		Address:    e.address,
		AssetClass: e.assetClass,
		Escrow:     e.escrow,
		Supply:     e.assets.Supply(),
		SupplyCap:  e.supplyCap,
	}
}
