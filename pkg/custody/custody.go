// Package custody keeps the ownership records of unique assets: id
// allocation, single ownership, per-asset transfer approval and burning.
package custody

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/StrathCole/oracle-exchange/pkg/logging"
	"github.com/StrathCole/oracle-exchange/pkg/metrics"
)

// Asset is a snapshot of one custody record.
type Asset struct {
	ID            uint64          `json:"id"`
	Owner         common.Address  `json:"owner"`
	Approved      *common.Address `json:"approved,omitempty"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	MintedAt      time.Time       `json:"minted_at"`
}

type record struct {
	owner         common.Address
	approved      common.Address
	purchasePrice decimal.Decimal
	mintedAt      time.Time
}

func (r *record) snapshot(id uint64) Asset {
	a := Asset{
		ID:            id,
		Owner:         r.owner,
		PurchasePrice: r.purchasePrice,
		MintedAt:      r.mintedAt,
	}
	if r.approved != (common.Address{}) {
		approved := r.approved
		a.Approved = &approved
	}
	return a
}

// Custody is the asset registry. Ids start at 0 and are never reused.
type Custody struct {
	logger *logging.Logger
	now    func() time.Time

	mu      sync.RWMutex
	nextID  uint64
	assets  map[uint64]*record
	balance map[common.Address]int
}

// New creates an empty registry.
func New(logger *logging.Logger) *Custody {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Custody{
		logger:  logger,
		now:     time.Now,
		assets:  make(map[uint64]*record),
		balance: make(map[common.Address]int),
	}
}

// Mint creates a new asset owned by owner with no purchase price.
func (c *Custody) Mint(owner common.Address) (uint64, error) {
	return c.MintWithPrice(owner, decimal.Zero)
}

// MintWithPrice creates a new asset owned by owner and records the price
// paid for it. The price cannot be changed afterwards.
func (c *Custody) MintWithPrice(owner common.Address, price decimal.Decimal) (uint64, error) {
	if owner == (common.Address{}) {
		return 0, fmt.Errorf("%w: mint to zero address", ErrInvalidRecipient)
	}

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.assets[id] = &record{
		owner:         owner,
		purchasePrice: price,
		mintedAt:      c.now().UTC(),
	}
	c.balance[owner]++
	supply := len(c.assets)
	c.mu.Unlock()

	metrics.RecordSupply(supply)
	c.logger.Debug("Asset minted", "id", id, "owner", owner.Hex(), "price", price.String())
	return id, nil
}

// Approve lets spender transfer or burn id. Only the owner may approve;
// approving the zero address clears the approval.
func (c *Custody) Approve(id uint64, caller, spender common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.assets[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownAsset, id)
	}
	if r.owner != caller {
		return fmt.Errorf("%w: %s does not own %d", ErrNotOwner, caller.Hex(), id)
	}
	r.approved = spender
	return nil
}

// Transfer moves id to a new owner. The caller must be the owner or the
// approved spender. The approval is cleared.
func (c *Custody) Transfer(id uint64, caller, to common.Address) error {
	if to == (common.Address{}) {
		return fmt.Errorf("%w: transfer to zero address", ErrInvalidRecipient)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	r, err := c.authorizedLocked(id, caller)
	if err != nil {
		return err
	}

	c.balance[r.owner]--
	if c.balance[r.owner] == 0 {
		delete(c.balance, r.owner)
	}
	r.owner = to
	r.approved = common.Address{}
	c.balance[to]++
	return nil
}

// Burn removes id. Same authorization rule as Transfer.
func (c *Custody) Burn(id uint64, caller common.Address) error {
	c.mu.Lock()
	r, err := c.authorizedLocked(id, caller)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	supply := c.burnLocked(id, r)
	c.mu.Unlock()

	metrics.RecordSupply(supply)
	c.logger.Debug("Asset burned", "id", id, "by", caller.Hex())
	return nil
}

// BurnFrom destroys id on behalf of owner. It fails unless owner still owns
// id and spender is owner or its approved address, all checked under the
// same lock as the burn.
func (c *Custody) BurnFrom(id uint64, owner, spender common.Address) error {
	c.mu.Lock()
	supply, err := c.burnFromLocked(id, owner, spender)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	metrics.RecordSupply(supply)
	c.logger.Debug("Asset burned", "id", id, "owner", owner.Hex(), "by", spender.Hex())
	return nil
}

func (c *Custody) burnFromLocked(id uint64, owner, spender common.Address) (int, error) {
	r, ok := c.assets[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownAsset, id)
	}
	if r.owner != owner {
		return 0, fmt.Errorf("%w: %s does not own %d", ErrNotOwner, owner.Hex(), id)
	}
	if _, err := c.authorizedLocked(id, spender); err != nil {
		return 0, err
	}
	return c.burnLocked(id, r), nil
}

func (c *Custody) burnLocked(id uint64, r *record) int {
	delete(c.assets, id)
	c.balance[r.owner]--
	if c.balance[r.owner] == 0 {
		delete(c.balance, r.owner)
	}
	return len(c.assets)
}

func (c *Custody) authorizedLocked(id uint64, caller common.Address) (*record, error) {
	r, ok := c.assets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAsset, id)
	}
	if caller != r.owner && (r.approved == (common.Address{}) || caller != r.approved) {
		return nil, fmt.Errorf("%w: %s on %d", ErrUnauthorized, caller.Hex(), id)
	}
	return r, nil
}

// OwnerOf returns the current owner of id.
func (c *Custody) OwnerOf(id uint64) (common.Address, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.assets[id]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %d", ErrUnknownAsset, id)
	}
	return r.owner, nil
}

// GetApproved returns the approved spender of id, or the zero address.
func (c *Custody) GetApproved(id uint64) (common.Address, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.assets[id]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %d", ErrUnknownAsset, id)
	}
	return r.approved, nil
}

// Asset returns a snapshot of id.
func (c *Custody) Asset(id uint64) (Asset, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.assets[id]
	if !ok {
		return Asset{}, fmt.Errorf("%w: %d", ErrUnknownAsset, id)
	}
	return r.snapshot(id), nil
}

// AssetsOf returns snapshots of every asset owned by owner, ordered by id.
func (c *Custody) AssetsOf(owner common.Address) []Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Asset
	for id, r := range c.assets {
		if r.owner == owner {
			out = append(out, r.snapshot(id))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BalanceOf returns how many assets owner holds.
func (c *Custody) BalanceOf(owner common.Address) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.balance[owner]
}

// Supply returns the number of outstanding (minted, not burned) assets.
func (c *Custody) Supply() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.assets)
}

// NextID returns the id the next mint will receive.
func (c *Custody) NextID() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nextID
}
