package exchange

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/oracle-exchange/pkg/custody"
	"github.com/StrathCole/oracle-exchange/pkg/journal"
	"github.com/StrathCole/oracle-exchange/pkg/oracle"
)

const class = "DVNFT"

var (
	reporters = []common.Address{
		common.HexToAddress("0xA73209FB1a42495120166736362A1DfA9F95A105"),
		common.HexToAddress("0xe92401A4d3af5E446d93D11EEc806b1462b39D15"),
		common.HexToAddress("0x81A5D6E50C214044bE44cA0CB057fe119097850c"),
	}
	exchangeAddr = common.HexToAddress("0x00000000000000000000000000000000000e8c4a")
	buyer        = common.HexToAddress("0x000000000000000000000000000000000000b0b0")
	other        = common.HexToAddress("0x000000000000000000000000000000000000c0c0")
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	ledger   *oracle.PriceLedger
	custody  *custody.Custody
	exchange *Exchange
	journal  *journal.MemoryJournal
}

func newFixture(t *testing.T, escrow string, supplyCap int) *fixture {
	t.Helper()
	ctx := context.Background()

	registry, err := oracle.NewTrustRegistry(reporters,
		[]string{class, class, class},
		[]decimal.Decimal{dec("999"), dec("999"), dec("999")})
	require.NoError(t, err)

	ledger, err := oracle.NewInitializedLedger(ctx, registry, nil, nil)
	require.NoError(t, err)

	assets := custody.New(nil)
	j := journal.NewMemoryJournal()
	ex, err := New(ledger, assets, Config{
		Address:       exchangeAddr,
		AssetClass:    class,
		InitialEscrow: dec(escrow),
		SupplyCap:     supplyCap,
	}, j, nil)
	require.NoError(t, err)

	return &fixture{ledger: ledger, custody: assets, exchange: ex, journal: j}
}

func (f *fixture) post(t *testing.T, price string, from ...common.Address) {
	t.Helper()
	for _, r := range from {
		require.NoError(t, f.ledger.PostPrice(context.Background(), r, class, dec(price)))
	}
}

func TestNew_Rejects(t *testing.T) {
	ledger := oracle.NewPriceLedger(nil, nil, nil)
	assets := custody.New(nil)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero address", Config{AssetClass: class}},
		{"empty class", Config{Address: exchangeAddr}},
		{"negative escrow", Config{Address: exchangeAddr, AssetClass: class, InitialEscrow: dec("-1")}},
		{"negative cap", Config{Address: exchangeAddr, AssetClass: class, SupplyCap: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(ledger, assets, tt.cfg, nil, nil)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}

	_, err := New(nil, assets, Config{Address: exchangeAddr, AssetClass: class}, nil, nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestBuyOne(t *testing.T) {
	f := newFixture(t, "9990", 0)

	receipt, err := f.exchange.BuyOne(context.Background(), buyer, dec("1000"))
	require.NoError(t, err)

	assert.Equal(t, uint64(0), receipt.AssetID)
	assert.True(t, receipt.Price.Equal(dec("999")))
	assert.True(t, receipt.Refund.Equal(dec("1")))
	assert.True(t, f.exchange.EscrowBalance().Equal(dec("10989")))

	owner, err := f.custody.OwnerOf(receipt.AssetID)
	require.NoError(t, err)
	assert.Equal(t, buyer, owner)

	asset, err := f.custody.Asset(receipt.AssetID)
	require.NoError(t, err)
	assert.True(t, asset.PurchasePrice.Equal(dec("999")))

	events := f.journal.ByKind(journal.KindBuy)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].AssetID)
	assert.Equal(t, receipt.AssetID, *events[0].AssetID)
	assert.True(t, events[0].Escrow.Equal(dec("10989")))
}

func TestBuyOne_InsufficientPayment(t *testing.T) {
	f := newFixture(t, "9990", 0)

	_, err := f.exchange.BuyOne(context.Background(), buyer, dec("998.99"))
	assert.ErrorIs(t, err, ErrInsufficientPayment)
	assert.True(t, f.exchange.EscrowBalance().Equal(dec("9990")))
	assert.Equal(t, 0, f.custody.Supply())
	assert.Empty(t, f.journal.ByKind(journal.KindBuy))
}

func TestBuyOne_InvalidPayment(t *testing.T) {
	f := newFixture(t, "0", 0)
	f.post(t, "0", reporters...)

	_, err := f.exchange.BuyOne(context.Background(), buyer, decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidPayment)
	assert.Equal(t, 0, f.custody.Supply())
}

func TestBuyOne_SoldOut(t *testing.T) {
	f := newFixture(t, "0", 1)

	_, err := f.exchange.BuyOne(context.Background(), buyer, dec("999"))
	require.NoError(t, err)

	_, err = f.exchange.BuyOne(context.Background(), other, dec("999"))
	assert.ErrorIs(t, err, ErrSoldOut)
	assert.True(t, f.exchange.EscrowBalance().Equal(dec("999")))
	assert.Equal(t, 1, f.custody.Supply())
}

func TestBuyOne_CapCountsOutstanding(t *testing.T) {
	f := newFixture(t, "0", 1)
	ctx := context.Background()

	receipt, err := f.exchange.BuyOne(ctx, buyer, dec("999"))
	require.NoError(t, err)
	require.NoError(t, f.exchange.Approve(ctx, buyer, receipt.AssetID, exchangeAddr))
	_, err = f.exchange.SellOne(ctx, buyer, receipt.AssetID)
	require.NoError(t, err)

	_, err = f.exchange.BuyOne(ctx, other, dec("999"))
	assert.NoError(t, err)
}

func TestSellOne_PaysCurrentPrice(t *testing.T) {
	f := newFixture(t, "9990", 0)
	ctx := context.Background()

	receipt, err := f.exchange.BuyOne(ctx, buyer, dec("999"))
	require.NoError(t, err)

	f.post(t, "2000", reporters[0], reporters[1])
	require.NoError(t, f.exchange.Approve(ctx, buyer, receipt.AssetID, exchangeAddr))

	sold, err := f.exchange.SellOne(ctx, buyer, receipt.AssetID)
	require.NoError(t, err)
	assert.True(t, sold.Payout.Equal(dec("2000")), "got %s", sold.Payout)
	assert.True(t, f.exchange.EscrowBalance().Equal(dec("8989")))

	_, err = f.custody.OwnerOf(receipt.AssetID)
	assert.ErrorIs(t, err, ErrUnknownAsset)
	assert.Len(t, f.journal.ByKind(journal.KindSell), 1)
	assert.Len(t, f.journal.ByKind(journal.KindApprove), 1)
}

func TestSellOne_Rejects(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown asset", func(t *testing.T) {
		f := newFixture(t, "9990", 0)
		_, err := f.exchange.SellOne(ctx, buyer, 5)
		assert.ErrorIs(t, err, ErrUnknownAsset)
	})

	t.Run("not owner", func(t *testing.T) {
		f := newFixture(t, "9990", 0)
		receipt, err := f.exchange.BuyOne(ctx, buyer, dec("999"))
		require.NoError(t, err)
		require.NoError(t, f.exchange.Approve(ctx, buyer, receipt.AssetID, exchangeAddr))

		_, err = f.exchange.SellOne(ctx, other, receipt.AssetID)
		assert.ErrorIs(t, err, ErrNotOwner)
	})

	t.Run("exchange not approved", func(t *testing.T) {
		f := newFixture(t, "9990", 0)
		receipt, err := f.exchange.BuyOne(ctx, buyer, dec("999"))
		require.NoError(t, err)

		_, err = f.exchange.SellOne(ctx, buyer, receipt.AssetID)
		assert.ErrorIs(t, err, ErrUnauthorized)
		owner, _ := f.custody.OwnerOf(receipt.AssetID)
		assert.Equal(t, buyer, owner)
	})

	t.Run("insufficient escrow", func(t *testing.T) {
		f := newFixture(t, "0", 0)
		receipt, err := f.exchange.BuyOne(ctx, buyer, dec("999"))
		require.NoError(t, err)
		require.NoError(t, f.exchange.Approve(ctx, buyer, receipt.AssetID, exchangeAddr))

		f.post(t, "1000", reporters[0], reporters[1])
		_, err = f.exchange.SellOne(ctx, buyer, receipt.AssetID)
		assert.ErrorIs(t, err, ErrInsufficientEscrow)

		assert.True(t, f.exchange.EscrowBalance().Equal(dec("999")))
		owner, err := f.custody.OwnerOf(receipt.AssetID)
		require.NoError(t, err)
		assert.Equal(t, buyer, owner)
		approved, _ := f.custody.GetApproved(receipt.AssetID)
		assert.Equal(t, exchangeAddr, approved)
		assert.Empty(t, f.journal.ByKind(journal.KindSell))
	})
}

func TestCompromisedReportersDrainEscrow(t *testing.T) {
	f := newFixture(t, "9990", 0)
	ctx := context.Background()
	attacker := buyer
	colluders := reporters[:2]

	f.post(t, "0.001", colluders...)
	price, err := f.exchange.Quote()
	require.NoError(t, err)
	require.True(t, price.Equal(dec("0.001")))

	receipt, err := f.exchange.BuyOne(ctx, attacker, dec("0.001"))
	require.NoError(t, err)
	assert.True(t, f.exchange.EscrowBalance().Equal(dec("9990.001")))

	drain := f.exchange.EscrowBalance().String()
	f.post(t, drain, colluders...)

	require.NoError(t, f.exchange.Approve(ctx, attacker, receipt.AssetID, exchangeAddr))
	sold, err := f.exchange.SellOne(ctx, attacker, receipt.AssetID)
	require.NoError(t, err)
	assert.True(t, sold.Payout.Equal(dec("9990.001")))

	f.post(t, "999", colluders...)

	assert.True(t, f.exchange.EscrowBalance().IsZero())
	assert.Equal(t, 0, f.custody.BalanceOf(attacker))
	price, err = f.exchange.Quote()
	require.NoError(t, err)
	assert.True(t, price.Equal(dec("999")))
}

func TestBuyOne_NoReports(t *testing.T) {
	registry, err := oracle.NewTrustRegistry(reporters[:1], []string{"OTHER"}, []decimal.Decimal{dec("1")})
	require.NoError(t, err)
	ledger := oracle.NewPriceLedger(registry, nil, nil)

	ex, err := New(ledger, custody.New(nil), Config{Address: exchangeAddr, AssetClass: class}, nil, nil)
	require.NoError(t, err)

	_, err = ex.BuyOne(context.Background(), buyer, dec("1"))
	assert.ErrorIs(t, err, ErrNoReports)
	assert.True(t, ex.EscrowBalance().IsZero())
}

func TestConcurrentBuysRespectCap(t *testing.T) {
	f := newFixture(t, "0", 5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, soldOut int
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.exchange.BuyOne(context.Background(), buyer, dec("999"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrSoldOut):
				soldOut++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, ok)
	assert.Equal(t, 15, soldOut)
	assert.True(t, f.exchange.EscrowBalance().Equal(dec("4995")))
}

func TestState(t *testing.T) {
	f := newFixture(t, "10", 3)
	_, err := f.exchange.BuyOne(context.Background(), buyer, dec("999"))
	require.NoError(t, err)

	st := f.exchange.State()
	assert.Equal(t, exchangeAddr, st.Address)
	assert.Equal(t, class, st.AssetClass)
	assert.True(t, st.Escrow.Equal(dec("1009")))
	assert.Equal(t, 1, st.Supply)
	assert.Equal(t, 3, st.SupplyCap)
	assert.Equal(t, exchangeAddr, f.exchange.Address())
	assert.NotNil(t, f.exchange.Token())
}

type failingJournal struct {
	mock.Mock
}

func (m *failingJournal) Append(ctx context.Context, event journal.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func TestJournalFailureKeepsTrade(t *testing.T) {
	registry, err := oracle.NewTrustRegistry(reporters[:1], []string{class}, []decimal.Decimal{dec("5")})
	require.NoError(t, err)
	ledger, err := oracle.NewInitializedLedger(context.Background(), registry, nil, nil)
	require.NoError(t, err)

	j := &failingJournal{}
	j.On("Append", mock.Anything, mock.MatchedBy(func(e journal.Event) bool {
		return e.Kind == journal.KindBuy
	})).Return(errors.New("connection refused")).Once()

	ex, err := New(ledger, custody.New(nil), Config{Address: exchangeAddr, AssetClass: class}, j, nil)
	require.NoError(t, err)

	receipt, err := ex.BuyOne(context.Background(), buyer, dec("5"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), receipt.AssetID)
	assert.True(t, ex.EscrowBalance().Equal(dec("5")))
	j.AssertExpectations(t)
}

func TestTradesJournalAfterCallerCancels(t *testing.T) {
	f := newFixture(t, "9990", 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	receipt, err := f.exchange.BuyOne(ctx, buyer, dec("999"))
	require.NoError(t, err)
	require.NoError(t, f.exchange.Approve(ctx, buyer, receipt.AssetID, exchangeAddr))
	_, err = f.exchange.SellOne(ctx, buyer, receipt.AssetID)
	require.NoError(t, err)

	assert.Len(t, f.journal.ByKind(journal.KindBuy), 1)
	assert.Len(t, f.journal.ByKind(journal.KindApprove), 1)
	assert.Len(t, f.journal.ByKind(journal.KindSell), 1)
}

// movingRegistry transfers the asset away right after the exchange reads
// its approval, as a concurrent owner transfer would.
type movingRegistry struct {
	*custody.Custody
	to common.Address
}

func (m *movingRegistry) GetApproved(id uint64) (common.Address, error) {
	approved, err := m.Custody.GetApproved(id)
	if err != nil {
		return approved, err
	}
	owner, err := m.Custody.OwnerOf(id)
	if err != nil {
		return approved, err
	}
	if err := m.Custody.Transfer(id, owner, m.to); err != nil {
		return approved, err
	}
	return approved, nil
}

func TestSellOne_OwnerChangesBeforeBurn(t *testing.T) {
	registry, err := oracle.NewTrustRegistry(reporters[:1], []string{class}, []decimal.Decimal{dec("5")})
	require.NoError(t, err)
	ledger, err := oracle.NewInitializedLedger(context.Background(), registry, nil, nil)
	require.NoError(t, err)

	assets := &movingRegistry{Custody: custody.New(nil), to: other}
	ex, err := New(ledger, assets, Config{Address: exchangeAddr, AssetClass: class, InitialEscrow: dec("100")}, nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	receipt, err := ex.BuyOne(ctx, buyer, dec("5"))
	require.NoError(t, err)
	require.NoError(t, ex.Approve(ctx, buyer, receipt.AssetID, exchangeAddr))

	_, err = ex.SellOne(ctx, buyer, receipt.AssetID)
	assert.ErrorIs(t, err, ErrNotOwner)

	assert.True(t, ex.EscrowBalance().Equal(dec("105")))
	owner, err := assets.OwnerOf(receipt.AssetID)
	require.NoError(t, err)
	assert.Equal(t, other, owner)
	assert.Equal(t, 1, assets.Supply())
}
