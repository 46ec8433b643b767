// Package replay reconstructs every derived view from persisted state at
// process start: the order book aggregator from resting orders, and the
// candle builder's tickers/candles from the trade stream. Both orderstore
// and tradestore already replay their own index from their Backend inside
// New(), so this package only has to re-derive the *downstream* state that
// isn't itself persisted (§3 "derived views... must be reconstructible from
// Order Store + Trade stream after a cold start").
package replay

import (
	"sort"

	"github.com/lattice-exchange/core/pkg/bookagg"
	"github.com/lattice-exchange/core/pkg/market"
	"github.com/lattice-exchange/core/pkg/marketdata"
	"github.com/lattice-exchange/core/pkg/money"
	"github.com/lattice-exchange/core/pkg/orderstore"
	"github.com/lattice-exchange/core/pkg/tradestore"
	"github.com/lattice-exchange/core/pkg/types"
)

// Rebuild replays persisted orders into book and persisted trades into
// candles, for every market in markets. Call once, before the matching
// engine's event bus starts delivering live events to the same sinks.
func Rebuild(markets *market.Registry, orders *orderstore.Store, trades *tradestore.Store, book *bookagg.Aggregator, candles *marketdata.Builder) {
	for _, mkt := range markets.List() {
		rebuildBook(mkt, orders, book)
		rebuildCandles(mkt, trades, candles)
	}
}

func rebuildBook(mkt *market.Market, orders *orderstore.Store, book *bookagg.Aggregator) {
	bids := make(map[int64]money.Amount)
	asks := make(map[int64]money.Amount)

	buy := types.Buy
	for _, o := range orders.FindActive(mkt.ID, &buy) {
		addResting(bids, mkt.PriceTicks(o.Price), o.RemainingQuantity())
	}
	sell := types.Sell
	for _, o := range orders.FindActive(mkt.ID, &sell) {
		addResting(asks, mkt.PriceTicks(o.Price), o.RemainingQuantity())
	}
	book.Seed(mkt.ID, bids, asks)
}

func addResting(levels map[int64]money.Amount, ticks int64, qty money.Amount) {
	if !money.IsPositive(qty) {
		return
	}
	levels[ticks] = levels[ticks].Add(qty)
}

func rebuildCandles(mkt *market.Market, trades *tradestore.Store, candles *marketdata.Builder) {
	list := trades.ByMarket(mkt.ID, 0)
	sort.Slice(list, func(i, j int) bool { return list[i].Sequence < list[j].Sequence })
	for _, t := range list {
		candles.Replay(t)
	}
}
