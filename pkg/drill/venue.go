package drill

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/StrathCole/oracle-exchange/pkg/custody"
	"github.com/StrathCole/oracle-exchange/pkg/exchange"
	"github.com/StrathCole/oracle-exchange/pkg/feeder/client"
	"github.com/StrathCole/oracle-exchange/pkg/keystore"
	"github.com/StrathCole/oracle-exchange/pkg/oracle"
)

// Venue is where the drill trades: an in-process exchange or a running server.
type Venue interface {
	PostPrice(ctx context.Context, reporter *keystore.Signer, assetClass string, value decimal.Decimal) error
	Consensus(ctx context.Context, assetClass string) (decimal.Decimal, error)
	Buy(ctx context.Context, buyer *keystore.Signer, payment decimal.Decimal) (exchange.BuyReceipt, error)
	Approve(ctx context.Context, owner *keystore.Signer, id uint64, spender common.Address) error
	Sell(ctx context.Context, seller *keystore.Signer, id uint64) (exchange.SellReceipt, error)
	Escrow(ctx context.Context) (decimal.Decimal, error)
	ExchangeAddress(ctx context.Context) (common.Address, error)
	// OwnerOf returns the zero address once id is burned.
	OwnerOf(ctx context.Context, id uint64) (common.Address, error)
}

// LocalVenue drives an in-process ledger and exchange.
type LocalVenue struct {
	Ledger   *oracle.PriceLedger
	Exchange *exchange.Exchange
}

var _ Venue = (*LocalVenue)(nil)

func (v *LocalVenue) PostPrice(ctx context.Context, reporter *keystore.Signer, assetClass string, value decimal.Decimal) error {
	return v.Ledger.PostPrice(ctx, reporter.Address(), assetClass, value)
}

func (v *LocalVenue) Consensus(_ context.Context, assetClass string) (decimal.Decimal, error) {
	return v.Ledger.ConsensusPrice(assetClass)
}

func (v *LocalVenue) Buy(ctx context.Context, buyer *keystore.Signer, payment decimal.Decimal) (exchange.BuyReceipt, error) {
	return v.Exchange.BuyOne(ctx, buyer.Address(), payment)
}

func (v *LocalVenue) Approve(ctx context.Context, owner *keystore.Signer, id uint64, spender common.Address) error {
	return v.Exchange.Approve(ctx, owner.Address(), id, spender)
}

func (v *LocalVenue) Sell(ctx context.Context, seller *keystore.Signer, id uint64) (exchange.SellReceipt, error) {
	return v.Exchange.SellOne(ctx, seller.Address(), id)
}

func (v *LocalVenue) Escrow(context.Context) (decimal.Decimal, error) {
	return v.Exchange.EscrowBalance(), nil
}

func (v *LocalVenue) ExchangeAddress(context.Context) (common.Address, error) {
	return v.Exchange.Address(), nil
}

func (v *LocalVenue) OwnerOf(_ context.Context, id uint64) (common.Address, error) {
	owner, err := v.Exchange.Token().OwnerOf(id)
	if errors.Is(err, custody.ErrUnknownAsset) {
		return common.Address{}, nil
	}
	return owner, err
}

// RemoteVenue drives a running server over HTTP, one signed client per key.
type RemoteVenue struct {
	BaseURL string
	Timeout time.Duration
}

var _ Venue = (*RemoteVenue)(nil)

func (v *RemoteVenue) client(signer *keystore.Signer) *client.HTTPClient {
	timeout := v.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return client.NewHTTPClient(v.BaseURL, timeout, signer)
}

func (v *RemoteVenue) PostPrice(ctx context.Context, reporter *keystore.Signer, assetClass string, value decimal.Decimal) error {
	_, err := v.client(reporter).PostPrice(ctx, assetClass, value)
	return err
}

func (v *RemoteVenue) Consensus(ctx context.Context, assetClass string) (decimal.Decimal, error) {
	resp, err := v.client(nil).Consensus(ctx, assetClass)
	return resp.Price, err
}

func (v *RemoteVenue) Buy(ctx context.Context, buyer *keystore.Signer, payment decimal.Decimal) (exchange.BuyReceipt, error) {
	return v.client(buyer).Buy(ctx, payment)
}

func (v *RemoteVenue) Approve(ctx context.Context, owner *keystore.Signer, id uint64, spender common.Address) error {
	_, err := v.client(owner).Approve(ctx, id, spender)
	return err
}

func (v *RemoteVenue) Sell(ctx context.Context, seller *keystore.Signer, id uint64) (exchange.SellReceipt, error) {
	return v.client(seller).Sell(ctx, id)
}

func (v *RemoteVenue) Escrow(ctx context.Context) (decimal.Decimal, error) {
	state, err := v.client(nil).Exchange(ctx)
	return state.Escrow, err
}

func (v *RemoteVenue) ExchangeAddress(ctx context.Context) (common.Address, error) {
	state, err := v.client(nil).Exchange(ctx)
	return state.Address, err
}

func (v *RemoteVenue) OwnerOf(ctx context.Context, id uint64) (common.Address, error) {
	asset, err := v.client(nil).Asset(ctx, id)
	var statusErr *client.StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
		return common.Address{}, nil
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("asset %d: %w", id, err)
	}
	return asset.Owner, nil
}
