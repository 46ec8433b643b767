package matching

import (
	"context"
	"testing"
	"time"

	"github.com/lattice-exchange/core/pkg/events"
	"github.com/lattice-exchange/core/pkg/ledger"
	"github.com/lattice-exchange/core/pkg/market"
	"github.com/lattice-exchange/core/pkg/money"
	"github.com/lattice-exchange/core/pkg/orderstore"
	"github.com/lattice-exchange/core/pkg/resolvers"
	"github.com/lattice-exchange/core/pkg/tradestore"
	"github.com/lattice-exchange/core/pkg/types"
	"github.com/stretchr/testify/require"
)

func testMarket() *market.Market {
	return &market.Market{
		ID:                "BTC-USDT",
		Symbol:            "BTC-USDT",
		BaseAsset:         "BTC",
		QuoteAsset:        "USDT",
		Status:            market.Active,
		TradingEnabled:    true,
		PricePrecision:    2,
		QuantityPrecision: 6,
		TickSize:          amt("0.01"),
		LotSize:           amt("0.0001"),
		MinOrderSize:      amt("0.0001"),
		MakerFee:          amt("0.001"),
		TakerFee:          amt("0.002"),
	}
}

func amt(s string) money.Amount {
	a, err := money.Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func newTestEngine(t *testing.T) (*Engine, *ledger.Ledger, *market.Market) {
	t.Helper()
	mkt := testMarket()
	registry := market.NewRegistry()
	require.NoError(t, registry.Register(mkt))

	lg := ledger.New(nil, nil)
	store, err := orderstore.New(nil)
	require.NoError(t, err)

	trades, err := tradestore.New(nil)
	require.NoError(t, err)

	fee := resolvers.NewFlatFee(amt("0.001"), amt("0.002"))
	eng := NewEngine(registry, lg, store, trades, fee, resolvers.AllowAllRisk{}, events.NewBus(), nil)
	return eng, lg, mkt
}

func TestCrossingLimitOrdersProduceATrade(t *testing.T) {
	eng, lg, mkt := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, lg.Deposit("seller", mkt.BaseAsset, amt("10")))
	require.NoError(t, lg.Deposit("buyer", mkt.QuoteAsset, amt("100000")))

	sellRes, err := eng.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "seller", MarketID: mkt.ID, Side: types.Sell, Type: types.Limit,
		TimeInForce: types.GTC, Price: amt("50000"), Quantity: amt("1"),
	})
	require.NoError(t, err)
	require.Equal(t, types.Open, sellRes.Order.Status)

	buyRes, err := eng.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "buyer", MarketID: mkt.ID, Side: types.Buy, Type: types.Limit,
		TimeInForce: types.GTC, Price: amt("50000"), Quantity: amt("1"),
	})
	require.NoError(t, err)
	require.Len(t, buyRes.Trades, 1)
	require.Equal(t, types.Filled, buyRes.Order.Status)

	trade := buyRes.Trades[0]
	require.True(t, trade.Price.Equal(amt("50000")))
	require.True(t, trade.Quantity.Equal(amt("1")))

	buyerBTC := lg.Get("buyer", mkt.BaseAsset)
	require.True(t, buyerBTC.Available.GreaterThan(money.Zero))
	sellerUSDT := lg.Get("seller", mkt.QuoteAsset)
	require.True(t, sellerUSDT.Available.GreaterThan(money.Zero))
}

func TestFillOrKillRejectsWhenBookCannotCoverQuantity(t *testing.T) {
	eng, lg, mkt := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, lg.Deposit("seller", mkt.BaseAsset, amt("10")))
	require.NoError(t, lg.Deposit("buyer", mkt.QuoteAsset, amt("100000")))

	_, err := eng.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "seller", MarketID: mkt.ID, Side: types.Sell, Type: types.Limit,
		TimeInForce: types.GTC, Price: amt("50000"), Quantity: amt("0.5"),
	})
	require.NoError(t, err)

	res, err := eng.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "buyer", MarketID: mkt.ID, Side: types.Buy, Type: types.Limit,
		TimeInForce: types.FOK, Price: amt("50000"), Quantity: amt("1"),
	})
	require.NoError(t, err)
	require.Equal(t, types.Rejected, res.Order.Status)
	require.Equal(t, "fill_or_kill_unfillable", res.Order.RejectReason)
	require.Empty(t, res.Trades)

	// the rejected order's lock must have been fully released
	buyerUSDT := lg.Get("buyer", mkt.QuoteAsset)
	require.True(t, buyerUSDT.Available.Equal(amt("100000")))
}

func TestSelfTradePreventionExpireTakerCancelsAggressor(t *testing.T) {
	eng, lg, mkt := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, lg.Deposit("trader", mkt.BaseAsset, amt("10")))
	require.NoError(t, lg.Deposit("trader", mkt.QuoteAsset, amt("100000")))

	_, err := eng.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "trader", MarketID: mkt.ID, Side: types.Sell, Type: types.Limit,
		TimeInForce: types.GTC, Price: amt("50000"), Quantity: amt("1"),
	})
	require.NoError(t, err)

	res, err := eng.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "trader", MarketID: mkt.ID, Side: types.Buy, Type: types.Limit,
		TimeInForce:         types.GTC,
		Price:               amt("50000"),
		Quantity:            amt("1"),
		SelfTradePrevention: types.STPExpireTaker,
	})
	require.NoError(t, err)
	require.Empty(t, res.Trades)
	require.Equal(t, types.Cancelled, res.Order.Status)
	require.Equal(t, "self_trade_prevented", res.Order.RejectReason)
}

func TestPostOnlyMarketOrderIsRejected(t *testing.T) {
	eng, _, mkt := newTestEngine(t)
	ctx := context.Background()

	res, err := eng.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "u1", MarketID: mkt.ID, Side: types.Buy, Type: types.Market,
		TimeInForce: types.IOC, Quantity: amt("1"), PostOnly: true,
	})
	require.NoError(t, err)
	require.Equal(t, types.Rejected, res.Order.Status)
}

func TestMarketOrderWithoutRestingLiquidityIsCancelled(t *testing.T) {
	eng, lg, mkt := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, lg.Deposit("buyer", mkt.QuoteAsset, amt("150000")))

	res, err := eng.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "buyer", MarketID: mkt.ID, Side: types.Buy, Type: types.Market,
		TimeInForce: types.IOC, Quantity: amt("1"), QuoteBudget: amt("100000"),
	})
	require.NoError(t, err)
	require.Equal(t, types.Cancelled, res.Order.Status)
	require.Equal(t, "insufficient_liquidity", res.Order.RejectReason)
}

func TestStopOrderTriggersOnSweepWhenPriceCrosses(t *testing.T) {
	eng, lg, mkt := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, lg.Deposit("seller", mkt.BaseAsset, amt("10")))
	require.NoError(t, lg.Deposit("buyer", mkt.QuoteAsset, amt("100000")))
	require.NoError(t, lg.Deposit("stopper", mkt.BaseAsset, amt("10")))

	// Establish a last trade price of 50000.
	_, err := eng.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "seller", MarketID: mkt.ID, Side: types.Sell, Type: types.Limit,
		TimeInForce: types.GTC, Price: amt("50000"), Quantity: amt("1"),
	})
	require.NoError(t, err)
	_, err = eng.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "buyer", MarketID: mkt.ID, Side: types.Buy, Type: types.Limit,
		TimeInForce: types.GTC, Price: amt("50000"), Quantity: amt("1"),
	})
	require.NoError(t, err)

	// A sell-stop below the current price does not trigger immediately.
	stopRes, err := eng.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "stopper", MarketID: mkt.ID, Side: types.Sell, Type: types.Stop,
		TimeInForce: types.GTC, StopPrice: amt("49000"), Quantity: amt("1"),
	})
	require.NoError(t, err)
	require.Equal(t, types.Open, stopRes.Order.Status)

	st := eng.stateFor(mkt.ID)
	_, pending := st.stops[stopRes.Order.ID]
	require.True(t, pending)

	// Rest a new bid at 49500 so the triggered market sell has somewhere to fill.
	require.NoError(t, lg.Deposit("buyer2", mkt.QuoteAsset, amt("100000")))
	_, err = eng.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "buyer2", MarketID: mkt.ID, Side: types.Buy, Type: types.Limit,
		TimeInForce: types.GTC, Price: amt("49500"), Quantity: amt("1"),
	})
	require.NoError(t, err)

	// Drop last_price below the stop's trigger and run the sweep once.
	st.lastPrice = amt("48900")
	eng.sweepMarket(mkt)

	_, stillPending := st.stops[stopRes.Order.ID]
	require.False(t, stillPending)

	updated, ok := eng.store.Get(stopRes.Order.ID)
	require.True(t, ok)
	require.Equal(t, types.Filled, updated.Status)
}

func TestCancelOrderReleasesLock(t *testing.T) {
	eng, lg, mkt := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, lg.Deposit("buyer", mkt.QuoteAsset, amt("100000")))

	res, err := eng.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "buyer", MarketID: mkt.ID, Side: types.Buy, Type: types.Limit,
		TimeInForce: types.GTC, Price: amt("50000"), Quantity: amt("1"),
	})
	require.NoError(t, err)
	require.Equal(t, types.Open, res.Order.Status)

	before := lg.Get("buyer", mkt.QuoteAsset)
	require.True(t, before.Available.LessThan(amt("100000")))

	require.NoError(t, eng.CancelOrder(ctx, "buyer", res.Order.ID))

	after := lg.Get("buyer", mkt.QuoteAsset)
	require.True(t, after.Available.Equal(amt("100000")))

	updated, ok := eng.store.Get(res.Order.ID)
	require.True(t, ok)
	require.Equal(t, types.Cancelled, updated.Status)
}

func TestCancelOrderRejectsWrongOwner(t *testing.T) {
	eng, lg, mkt := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, lg.Deposit("buyer", mkt.QuoteAsset, amt("100000")))

	res, err := eng.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "buyer", MarketID: mkt.ID, Side: types.Buy, Type: types.Limit,
		TimeInForce: types.GTC, Price: amt("50000"), Quantity: amt("1"),
	})
	require.NoError(t, err)

	err = eng.CancelOrder(ctx, "someone-else", res.Order.ID)
	require.Error(t, err)
}

func TestIdempotentClientOrderIDReturnsSameOrder(t *testing.T) {
	eng, lg, mkt := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, lg.Deposit("buyer", mkt.QuoteAsset, amt("100000")))

	req := PlaceOrderRequest{
		UserID: "buyer", MarketID: mkt.ID, Side: types.Buy, Type: types.Limit,
		TimeInForce: types.GTC, Price: amt("50000"), Quantity: amt("1"),
		ClientOrderID: "client-abc",
	}
	first, err := eng.PlaceOrder(ctx, req)
	require.NoError(t, err)

	second, err := eng.PlaceOrder(ctx, req)
	require.NoError(t, err)
	require.Equal(t, first.Order.ID, second.Order.ID)
	require.Empty(t, second.Trades)

	// Only one lock was ever taken against the buyer's balance.
	locked := lg.Get("buyer", mkt.QuoteAsset).Locked
	require.True(t, locked.GreaterThan(money.Zero))
}

func TestGTDOrderExpiresOnSweep(t *testing.T) {
	eng, lg, mkt := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, lg.Deposit("buyer", mkt.QuoteAsset, amt("100000")))

	past := time.Now().Add(-time.Minute)
	res, err := eng.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "buyer", MarketID: mkt.ID, Side: types.Buy, Type: types.Limit,
		TimeInForce: types.GTD, Price: amt("50000"), Quantity: amt("1"),
		ExpiresAt: &past,
	})
	require.NoError(t, err)
	require.Equal(t, types.Open, res.Order.Status)

	eng.sweepMarket(mkt)

	updated, ok := eng.store.Get(res.Order.ID)
	require.True(t, ok)
	require.Equal(t, types.Expired, updated.Status)

	after := lg.Get("buyer", mkt.QuoteAsset)
	require.True(t, after.Available.Equal(amt("100000")))
}
