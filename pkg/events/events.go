// Package events declares the matching engine's output events (§4.4,
// "Publishes events: TradeExecuted, OrderUpdated, OrderBookDelta") as a
// shared vocabulary between the matching engine (producer) and the order
// book aggregator, candle builder, and subscription hub (consumers), so none
// of those packages need to import pkg/matching directly.
package events

import (
	"time"

	"github.com/lattice-exchange/core/pkg/money"
	"github.com/lattice-exchange/core/pkg/types"
)

// TradeExecuted is published once per fill, after settlement has committed.
type TradeExecuted struct {
	Trade *types.Trade
}

// OrderUpdated is published whenever an order's status or fill state changes.
type OrderUpdated struct {
	Order *types.Order
}

// DeltaKind distinguishes the three ways a price level can change.
type DeltaKind int8

const (
	LevelOpened DeltaKind = iota
	LevelChanged
	LevelClosed
)

// OrderBookDelta is a single price-level change, tagged with the market's
// monotonic sequence number so subscribers can detect gaps (§4.3).
type OrderBookDelta struct {
	MarketID   string
	Sequence   int64
	Side       types.Side
	PriceTicks int64
	Quantity   money.Amount // new total remaining quantity at this level; zero if Kind == LevelClosed
	Kind       DeltaKind
	At         time.Time
}

// MarketHalted is published when the engine escalates a transient fault into
// an EngineHalt for a market (§4.4 "Failure semantics").
type MarketHalted struct {
	MarketID string
	Reason   string
	At       time.Time
}

// Sink receives every event the matching engine produces. The order book
// aggregator, candle builder, and subscription hub each implement Sink (or
// wrap a filtering adapter around it) rather than polling the engine.
type Sink interface {
	OnTradeExecuted(TradeExecuted)
	OnOrderUpdated(OrderUpdated)
	OnOrderBookDelta(OrderBookDelta)
	OnMarketHalted(MarketHalted)
}

// Bus fans a single event stream out to any number of Sinks, added with
// Subscribe. Delivery is synchronous and in registration order: the engine
// calls Bus methods from its own per-market goroutine inline with trade
// settlement, so a Sink must not block or it stalls that market's matching
// loop (the hub's sinks hand off to per-session mailboxes for exactly this
// reason — see pkg/hub).
type Bus struct {
	sinks []Sink
}

func NewBus() *Bus { return &Bus{} }

func (b *Bus) Subscribe(s Sink) { b.sinks = append(b.sinks, s) }

func (b *Bus) PublishTrade(e TradeExecuted) {
	for _, s := range b.sinks {
		s.OnTradeExecuted(e)
	}
}

func (b *Bus) PublishOrderUpdated(e OrderUpdated) {
	for _, s := range b.sinks {
		s.OnOrderUpdated(e)
	}
}

func (b *Bus) PublishOrderBookDelta(e OrderBookDelta) {
	for _, s := range b.sinks {
		s.OnOrderBookDelta(e)
	}
}

func (b *Bus) PublishMarketHalted(e MarketHalted) {
	for _, s := range b.sinks {
		s.OnMarketHalted(e)
	}
}
