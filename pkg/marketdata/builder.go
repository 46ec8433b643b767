// Package marketdata's Builder is the trade stream and candle builder (C6):
// it subscribes to the matching engine's TradeExecuted events and maintains,
// per market, a rolling 24h Ticker and an OHLCV Candle series at every
// interval in Intervals, retaining the most recent maxCandlesPerInterval
// buckets in memory with an optional Store for historical queries beyond
// that window.
package marketdata

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lattice-exchange/core/pkg/events"
	"github.com/lattice-exchange/core/pkg/money"
	"github.com/lattice-exchange/core/pkg/types"
)

// maxCandlesPerInterval is N from §4.5: "Retains the most recent N candles
// per interval in memory (N = 1000) with persistence for historical queries."
const maxCandlesPerInterval = 1000

// Store persists closed candles for historical queries beyond the in-memory
// retention window. Optional: a nil Store means candle history older than
// maxCandlesPerInterval buckets is unavailable after eviction.
type Store interface {
	SaveCandle(c *Candle) error
	LoadCandles(marketID string, interval Interval, limit int, start, end *time.Time) ([]*Candle, error)
}

type marketSeries struct {
	mu       sync.RWMutex
	ticker   *tickerState
	candles  map[Interval][]*Candle // ascending by OpenTime, capped at maxCandlesPerInterval
	lastSeq  int64                  // idempotence: highest trade sequence already folded in (§4.5)
	seenSeq  bool
}

func newMarketSeries(marketID string) *marketSeries {
	return &marketSeries{
		ticker:  newTickerState(marketID),
		candles: make(map[Interval][]*Candle),
	}
}

// Builder is the C6 component: an events.Sink that derives tickers and
// candles purely from the trade stream, never touching order or balance
// state directly.
type Builder struct {
	mu      sync.RWMutex
	series  map[string]*marketSeries
	store   Store
}

func NewBuilder(store Store) *Builder {
	return &Builder{series: make(map[string]*marketSeries), store: store}
}

var _ events.Sink = (*Builder)(nil)

func (b *Builder) seriesFor(marketID string) *marketSeries {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.series[marketID]
	if !ok {
		s = newMarketSeries(marketID)
		b.series[marketID] = s
	}
	return s
}

// OnTradeExecuted folds a settled trade into the market's ticker and every
// interval's current candle bucket. Idempotent by (market, sequence): a
// trade already folded in (replay overlap) is dropped (§4.5).
func (b *Builder) OnTradeExecuted(e events.TradeExecuted) {
	t := e.Trade
	if t == nil {
		return
	}
	s := b.seriesFor(t.MarketID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seenSeq && t.Sequence <= s.lastSeq {
		return
	}
	s.lastSeq, s.seenSeq = t.Sequence, true

	s.ticker.addTrade(t.Price, t.Quantity, t.TradeTime)

	for _, interval := range Intervals {
		s.applyToInterval(t, interval, b.store)
	}
}

func (s *marketSeries) applyToInterval(t *types.Trade, interval Interval, store Store) {
	open := bucketStart(t.TradeTime, interval.Duration())
	list := s.candles[interval]

	if n := len(list); n > 0 && list[n-1].OpenTime.Equal(open) {
		list[n-1].applyTrade(t.Price, t.Quantity, !t.IsBuyerMaker)
		return
	}

	// A new bucket opens: the previous one (if any) is now closed and
	// persisted for historical query beyond the in-memory retention window.
	if n := len(list); n > 0 && store != nil {
		_ = store.SaveCandle(list[n-1])
	}

	c := newCandle(t.MarketID, interval, open, t.Price, t.Quantity, !t.IsBuyerMaker)
	list = append(list, c)
	if len(list) > maxCandlesPerInterval {
		list = list[len(list)-maxCandlesPerInterval:]
	}
	s.candles[interval] = list
}

// OnOrderUpdated, OnOrderBookDelta, and OnMarketHalted are no-ops: the
// candle builder only derives state from the trade stream (§4.5).
func (b *Builder) OnOrderUpdated(events.OrderUpdated)     {}
func (b *Builder) OnOrderBookDelta(events.OrderBookDelta) {}
func (b *Builder) OnMarketHalted(events.MarketHalted)     {}

// GetTicker returns the current rolling ticker for a market, or ok=false if
// the market has never traded.
func (b *Builder) GetTicker(marketID string) (Ticker, bool) {
	b.mu.RLock()
	s, ok := b.series[marketID]
	b.mu.RUnlock()
	if !ok {
		return Ticker{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticker.snapshot(time.Now()), true
}

// GetAllTickers returns every market's current ticker, sorted by market id.
func (b *Builder) GetAllTickers() []Ticker {
	b.mu.RLock()
	ids := make([]string, 0, len(b.series))
	for id := range b.series {
		ids = append(ids, id)
	}
	b.mu.RUnlock()
	sort.Strings(ids)

	out := make([]Ticker, 0, len(ids))
	for _, id := range ids {
		if t, ok := b.GetTicker(id); ok {
			out = append(out, t)
		}
	}
	return out
}

// UpdateBestBidAsk refreshes a ticker's book-derived fields (bid/ask) without
// requiring a trade, so the hub can keep ticker:{SYMBOL} current even on a
// quiet market between fills.
func (b *Builder) UpdateBestBidAsk(marketID string, bid, ask money.Amount) {
	s := b.seriesFor(marketID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticker.setBook(bid, ask)
}

// GetCandles returns up to limit candles for (market, interval), most recent
// last, optionally bounded to [start, end). limit <= 0 means no cap. Results
// beyond the in-memory window fall back to the Store when configured.
func (b *Builder) GetCandles(marketID string, interval Interval, limit int, start, end *time.Time) ([]*Candle, error) {
	b.mu.RLock()
	s, ok := b.series[marketID]
	b.mu.RUnlock()

	var inMemory []*Candle
	if ok {
		s.mu.RLock()
		inMemory = append(inMemory, s.candles[interval]...)
		s.mu.RUnlock()
	}

	needHistory := b.store != nil && (len(inMemory) == 0 || (start != nil && (len(inMemory) == 0 || start.Before(inMemory[0].OpenTime))))
	var out []*Candle
	if needHistory {
		historical, err := b.store.LoadCandles(marketID, interval, limit, start, end)
		if err != nil {
			return nil, fmt.Errorf("marketdata: load historical candles: %w", err)
		}
		out = append(out, historical...)
	}
	out = append(out, filterCandles(inMemory, start, end)...)
	out = dedupeCandles(out)

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func filterCandles(in []*Candle, start, end *time.Time) []*Candle {
	if start == nil && end == nil {
		return in
	}
	out := make([]*Candle, 0, len(in))
	for _, c := range in {
		if start != nil && c.OpenTime.Before(*start) {
			continue
		}
		if end != nil && !c.OpenTime.Before(*end) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// dedupeCandles drops duplicate buckets that may appear in both the
// persisted-history prefix and the in-memory tail (the currently-open bucket
// of the historical store's last write), keeping the in-memory copy since it
// reflects any fills folded in after the store write.
func dedupeCandles(in []*Candle) []*Candle {
	seen := make(map[time.Time]int, len(in))
	out := make([]*Candle, 0, len(in))
	for _, c := range in {
		if idx, ok := seen[c.OpenTime]; ok {
			out[idx] = c
			continue
		}
		seen[c.OpenTime] = len(out)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return out
}

// Replay folds a previously-settled trade back into the builder in sequence
// order during cold-start reconstruction (§3 "derived views must be
// reconstructible from Order Store + Trade stream after a cold start"). It is
// OnTradeExecuted under another name, exported for pkg/replay's clarity.
func (b *Builder) Replay(t *types.Trade) {
	b.OnTradeExecuted(events.TradeExecuted{Trade: t})
}
