// Package bookagg implements the order book aggregator (C5): it consumes the
// matching engine's OrderBookDelta events and maintains, per market, a
// price-level view that snapshot+diff subscribers can stay in sync with.
//
// Grounded on the teacher's OrderBook price-level maps
// (pkg/app/core/orderbook/orderbook.go), generalized from the engine's own
// resting-order structure to a read-only aggregate rebuilt purely from events
// — the aggregator never touches pkg/matching's book directly, so a restart
// of the hub/API process doesn't need to share memory with the engine.
package bookagg

import (
	"sort"
	"sync"

	"github.com/lattice-exchange/core/pkg/events"
	"github.com/lattice-exchange/core/pkg/money"
	"github.com/lattice-exchange/core/pkg/types"
)

// Level is one aggregated price rung.
type Level struct {
	PriceTicks int64
	Quantity   money.Amount
}

// Snapshot is a full point-in-time view of a market's book, tagged with the
// sequence of the last delta folded into it so a subscriber can request a
// resync exactly where its diff stream left off (§4.3).
type Snapshot struct {
	MarketID string
	Sequence int64
	Bids     []Level // best first (highest price)
	Asks     []Level // best first (lowest price)
}

type market struct {
	mu       sync.RWMutex
	sequence int64
	bids     map[int64]money.Amount
	asks     map[int64]money.Amount
}

func newMarket() *market {
	return &market{bids: make(map[int64]money.Amount), asks: make(map[int64]money.Amount)}
}

// Aggregator maintains one market's worth of price levels per registered
// market, fed exclusively by events.Sink callbacks from the matching engine.
type Aggregator struct {
	mu      sync.RWMutex
	markets map[string]*market
}

// New creates an empty Aggregator. Subscribe it to the engine's events.Bus to
// start receiving deltas.
func New() *Aggregator {
	return &Aggregator{markets: make(map[string]*market)}
}

var _ events.Sink = (*Aggregator)(nil)

func (a *Aggregator) marketFor(id string) *market {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.markets[id]
	if !ok {
		m = newMarket()
		a.markets[id] = m
	}
	return m
}

// OnOrderBookDelta applies a single price-level change (§4.3). Deltas that
// arrive out of sequence (gap or replay) are still applied — the aggregator
// trusts the engine's sequence only for subscriber-facing gap detection, not
// for its own internal consistency, since it always reflects "last write
// wins" for a given price level regardless of order.
func (a *Aggregator) OnOrderBookDelta(e events.OrderBookDelta) {
	m := a.marketFor(e.MarketID)
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.Sequence > m.sequence {
		m.sequence = e.Sequence
	}
	levels := m.bids
	if e.Side == types.Sell {
		levels = m.asks
	}
	if e.Kind == events.LevelClosed || !money.IsPositive(e.Quantity) {
		delete(levels, e.PriceTicks)
		return
	}
	levels[e.PriceTicks] = e.Quantity
}

// Seed rebuilds a market's level map directly from a snapshot of resting
// orders, bypassing the delta/sequence path. Used once at cold start to
// reconstruct the aggregator from the order store's FindActive results,
// since book-shape deltas themselves are not a persisted stream — only the
// orders that produced them are (§3 "derived views... reconstructible from
// Order Store + Trade stream").
func (a *Aggregator) Seed(marketID string, bids, asks map[int64]money.Amount) {
	m := a.marketFor(marketID)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bids = bids
	m.asks = asks
}

// OnTradeExecuted, OnOrderUpdated, and OnMarketHalted are no-ops for the
// aggregator: it only cares about book-shape changes, not trade or order
// lifecycle events, which the candle builder and hub consume instead.
func (a *Aggregator) OnTradeExecuted(events.TradeExecuted) {}
func (a *Aggregator) OnOrderUpdated(events.OrderUpdated)   {}
func (a *Aggregator) OnMarketHalted(events.MarketHalted)   {}

// Snapshot returns up to depth levels per side (0 means unaggregated/all),
// best price first. Sequence is the last delta sequence folded in, which the
// caller can compare with the sequence numbers of later deltas to detect a
// gap and request a fresh snapshot (§4.3 "gap detection/resync").
func (a *Aggregator) Snapshot(marketID string, depth int) Snapshot {
	m := a.marketFor(marketID)
	m.mu.RLock()
	defer m.mu.RUnlock()

	bids := collect(m.bids, true)
	asks := collect(m.asks, false)
	if depth > 0 {
		if len(bids) > depth {
			bids = bids[:depth]
		}
		if len(asks) > depth {
			asks = asks[:depth]
		}
	}
	return Snapshot{MarketID: marketID, Sequence: m.sequence, Bids: bids, Asks: asks}
}

// BestBidAsk returns the current top of book, with ok=false on an empty side.
func (a *Aggregator) BestBidAsk(marketID string) (bid, ask Level, bidOK, askOK bool) {
	snap := a.Snapshot(marketID, 1)
	if len(snap.Bids) > 0 {
		bid, bidOK = snap.Bids[0], true
	}
	if len(snap.Asks) > 0 {
		ask, askOK = snap.Asks[0], true
	}
	return
}

func collect(levels map[int64]money.Amount, descending bool) []Level {
	out := make([]Level, 0, len(levels))
	for ticks, qty := range levels {
		out = append(out, Level{PriceTicks: ticks, Quantity: qty})
	}
	if descending {
		sort.Slice(out, func(i, j int) bool { return out[i].PriceTicks > out[j].PriceTicks })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].PriceTicks < out[j].PriceTicks })
	}
	return out
}
