package hub

import (
	"context"
	"sync"
	"time"

	"github.com/lattice-exchange/core/pkg/bookagg"
	"github.com/lattice-exchange/core/pkg/events"
	"github.com/lattice-exchange/core/pkg/market"
	"github.com/lattice-exchange/core/pkg/marketdata"
	"github.com/lattice-exchange/core/pkg/matching"
	"github.com/lattice-exchange/core/pkg/orderstore"
	"github.com/lattice-exchange/core/pkg/resolvers"
	"github.com/lattice-exchange/core/pkg/tradestore"
	"go.uber.org/zap"
)

// heartbeatInterval and idleTimeout implement §4.6's "heartbeat every 30s; a
// session with no activity for 60s is terminated".
const (
	heartbeatInterval = 30 * time.Second
	idleTimeout       = 60 * time.Second
)

// Hub is the Subscription Hub (C7): it owns every connected Session, fans
// engine events out to topic subscribers, and dispatches the request/response
// RPC surface of §6. The hub as a whole is multi-session; each session
// handles its own messages cooperatively on its own goroutine pair
// (read/write pumps), never blocking on another session (§4.6, §5).
type Hub struct {
	engine   *matching.Engine
	markets  *market.Registry
	book     *bookagg.Aggregator
	candles  *marketdata.Builder
	store    *orderstore.Store
	trades   *tradestore.Store
	identity resolvers.Identity
	log      *zap.Logger

	heartbeat time.Duration
	idle      time.Duration

	mu       sync.RWMutex
	sessions map[*Session]bool
	topics   map[string]map[*Session]bool // topic -> subscribers
}

// New builds a Hub. heartbeat/idle of zero fall back to the §4.6 defaults
// (30s heartbeat, 60s idle timeout).
func New(engine *matching.Engine, markets *market.Registry, book *bookagg.Aggregator, candles *marketdata.Builder, store *orderstore.Store, trades *tradestore.Store, identity resolvers.Identity, heartbeat, idle time.Duration, log *zap.Logger) *Hub {
	if heartbeat <= 0 {
		heartbeat = heartbeatInterval
	}
	if idle <= 0 {
		idle = idleTimeout
	}
	return &Hub{
		engine:    engine,
		markets:   markets,
		book:      book,
		candles:   candles,
		store:     store,
		trades:    trades,
		identity:  identity,
		heartbeat: heartbeat,
		idle:      idle,
		log:       log,
		sessions:  make(map[*Session]bool),
		topics:    make(map[string]map[*Session]bool),
	}
}

var _ events.Sink = (*Hub)(nil)

// Register adds a new session to the hub and sends its welcome frame.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	h.sessions[s] = true
	h.mu.Unlock()
	s.deliver(push(TypeWelcome, map[string]string{"session_id": s.ID}))
}

// Unregister removes s from the hub and every topic it was subscribed to.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.sessions[s] {
		return
	}
	delete(h.sessions, s)
	for _, topic := range s.topicList() {
		if subs := h.topics[topic]; subs != nil {
			delete(subs, s)
			if len(subs) == 0 {
				delete(h.topics, topic)
			}
		}
	}
	s.markClosed()
}

func (h *Hub) addToTopic(topic string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Session]bool)
		h.topics[topic] = subs
	}
	subs[s] = true
}

func (h *Hub) removeFromTopic(topic string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.topics[topic]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
}

// publish delivers data as a push frame of type typ to every session
// subscribed to topic. Non-blocking per session (§4.6).
func (h *Hub) publish(topic, typ string, data interface{}) {
	h.mu.RLock()
	subs := h.topics[topic]
	if len(subs) == 0 {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Session, 0, len(subs))
	for s := range subs {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	msg := push(typ, data)
	for _, s := range targets {
		s.deliver(msg)
	}
}

// RunHousekeeping sends heartbeats and disconnects idle or too-slow sessions
// until ctx is cancelled (§4.6).
func (h *Hub) RunHousekeeping(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.mu.RLock()
			sessions := make([]*Session, 0, len(h.sessions))
			for s := range h.sessions {
				sessions = append(sessions, s)
			}
			h.mu.RUnlock()

			for _, s := range sessions {
				if s.idleSince() >= h.idle || s.tooSlow() {
					h.Unregister(s)
					continue
				}
				s.deliver(ServerMessage{Type: "heartbeat", Timestamp: time.Now()})
			}
		}
	}
}

// ---- events.Sink: the hub subscribes to the same engine event bus as the
// order book aggregator and candle builder, fanning matching-engine output
// out to topic subscribers instead of mutating its own derived state.

func (h *Hub) OnTradeExecuted(e events.TradeExecuted) {
	t := e.Trade
	if t == nil {
		return
	}
	takerSide := "buy"
	if t.IsBuyerMaker {
		takerSide = "sell" // buyer was resting, so the aggressor (taker) sold
	}
	h.publish(tradesTopic(t.MarketID), "trade", map[string]interface{}{
		"market_id":  t.MarketID,
		"price":      t.Price,
		"quantity":   t.Quantity,
		"side":       takerSide,
		"trade_time": t.TradeTime,
		"sequence":   t.Sequence,
	})
	// Private trades:{USER_ID} feeds for maker and taker, sharing the same
	// topic prefix as the public symbol feed (§4.6).
	h.publish(tradesTopic(t.BuyerID), "trade", t)
	h.publish(tradesTopic(t.SellerID), "trade", t)

	// The candle builder (subscribed to the same bus ahead of the hub) has
	// already folded this trade in by the time this callback runs, so the
	// ticker/candle snapshots below reflect it.
	if ticker, ok := h.candles.GetTicker(t.MarketID); ok {
		h.publish(tickerTopic(t.MarketID), "ticker", ticker)
	}
	for _, interval := range marketdata.Intervals {
		candles, err := h.candles.GetCandles(t.MarketID, interval, 1, nil, nil)
		if err != nil || len(candles) == 0 {
			continue
		}
		h.publish(candlesTopic(t.MarketID, interval.String()), "candle", candles[len(candles)-1])
	}
}

func (h *Hub) OnOrderUpdated(e events.OrderUpdated) {
	if e.Order == nil {
		return
	}
	h.publish(ordersTopic(e.Order.UserID), "order", e.Order)
}

func (h *Hub) OnOrderBookDelta(e events.OrderBookDelta) {
	mkt, err := h.markets.Get(e.MarketID)
	if err != nil {
		return
	}
	h.publish(orderBookTopic(e.MarketID), "orderbook_delta", map[string]interface{}{
		"market_id": e.MarketID,
		"sequence":  e.Sequence,
		"side":      e.Side.String(),
		"price":     mkt.TicksToPrice(e.PriceTicks),
		"quantity":  e.Quantity,
		"closed":    e.Kind == events.LevelClosed,
	})
}

func (h *Hub) OnMarketHalted(e events.MarketHalted) {
	h.publish(tickerTopic(e.MarketID), "market_halted", map[string]interface{}{
		"market_id": e.MarketID,
		"reason":    e.Reason,
		"at":        e.At,
	})
}
