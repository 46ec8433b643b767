package matching

import (
	"container/heap"
	"sort"
	"sync"

	"github.com/lattice-exchange/core/pkg/money"
	"github.com/lattice-exchange/core/pkg/types"
)

// PriceLevel is one aggregated rung of the book, in ticks.
type PriceLevel struct {
	PriceTicks int64
	Quantity   money.Amount
}

// book is the resting-order side of a single market: heap-based best-price
// tracking with FIFO price-time queues underneath, grounded on the teacher's
// orderbook.OrderBook (pkg/app/core/orderbook/orderbook.go). Generalized from
// raw int64 prices to the matcher's tick scale, and from copied Order values
// to *types.Order pointers shared with the Order Store so a fill mutates the
// one canonical order.
//
// Not safe for concurrent use; callers serialize access per market (the
// matching engine's per-market single-goroutine loop).
type book struct {
	bidHeap maxPriceHeap
	askHeap minPriceHeap

	bids map[int64][]*types.Order
	asks map[int64][]*types.Order

	orderTicks map[string]int64 // order id -> resting price tick, for cancel
	orderSide  map[string]types.Side

	mu sync.Mutex // guards nothing the engine doesn't already serialize (every caller, the sweep included, runs on the market's queue worker); kept as a defensive guard
}

func newBook() *book {
	return &book{
		bids:       make(map[int64][]*types.Order),
		asks:       make(map[int64][]*types.Order),
		orderTicks: make(map[string]int64),
		orderSide:  make(map[string]types.Side),
	}
}

func (b *book) bestBidTicks() (int64, bool) {
	if b.bidHeap.Len() == 0 {
		return 0, false
	}
	return b.bidHeap.Peek(), true
}

func (b *book) bestAskTicks() (int64, bool) {
	if b.askHeap.Len() == 0 {
		return 0, false
	}
	return b.askHeap.Peek(), true
}

// Rest adds o to the book at priceTicks on the given side.
func (b *book) Rest(priceTicks int64, o *types.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if o.Side == types.Buy {
		if len(b.bids[priceTicks]) == 0 {
			heap.Push(&b.bidHeap, priceTicks)
		}
		b.bids[priceTicks] = append(b.bids[priceTicks], o)
	} else {
		if len(b.asks[priceTicks]) == 0 {
			heap.Push(&b.askHeap, priceTicks)
		}
		b.asks[priceTicks] = append(b.asks[priceTicks], o)
	}
	b.orderTicks[o.ID] = priceTicks
	b.orderSide[o.ID] = o.Side
}

// frontOpposite returns the best resting order on the side opposite side,
// along with its price ticks, without removing it. Empty levels are pruned.
func (b *book) frontOpposite(side types.Side) (*types.Order, int64, bool) {
	if side == types.Buy {
		for {
			ticks, ok := b.bestAskTicks()
			if !ok {
				return nil, 0, false
			}
			level := b.asks[ticks]
			if len(level) == 0 {
				b.popEmptyAskLevel(ticks)
				continue
			}
			return level[0], ticks, true
		}
	}
	for {
		ticks, ok := b.bestBidTicks()
		if !ok {
			return nil, 0, false
		}
		level := b.bids[ticks]
		if len(level) == 0 {
			b.popEmptyBidLevel(ticks)
			continue
		}
		return level[0], ticks, true
	}
}

// removeFront removes the order currently at the front of the level
// (side, ticks) — used once it is fully filled or self-trade-expired.
func (b *book) removeFront(side types.Side, ticks int64) {
	if side == types.Buy {
		level := b.bids[ticks]
		if len(level) == 0 {
			return
		}
		id := level[0].ID
		b.bids[ticks] = level[1:]
		delete(b.orderTicks, id)
		delete(b.orderSide, id)
		if len(b.bids[ticks]) == 0 {
			b.popEmptyBidLevel(ticks)
		}
		return
	}
	level := b.asks[ticks]
	if len(level) == 0 {
		return
	}
	id := level[0].ID
	b.asks[ticks] = level[1:]
	delete(b.orderTicks, id)
	delete(b.orderSide, id)
	if len(b.asks[ticks]) == 0 {
		b.popEmptyAskLevel(ticks)
	}
}

func (b *book) popEmptyBidLevel(ticks int64) {
	delete(b.bids, ticks)
	for i := 0; i < b.bidHeap.Len(); i++ {
		if b.bidHeap[i] == ticks {
			heap.Remove(&b.bidHeap, i)
			return
		}
	}
}

func (b *book) popEmptyAskLevel(ticks int64) {
	delete(b.asks, ticks)
	for i := 0; i < b.askHeap.Len(); i++ {
		if b.askHeap[i] == ticks {
			heap.Remove(&b.askHeap, i)
			return
		}
	}
}

// Cancel removes a resting order by id, returning it (or nil if not resting).
func (b *book) Cancel(id string) *types.Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	ticks, ok := b.orderTicks[id]
	if !ok {
		return nil
	}
	side := b.orderSide[id]
	levels := b.bids
	popEmpty := b.popEmptyBidLevel
	if side == types.Sell {
		levels = b.asks
		popEmpty = b.popEmptyAskLevel
	}
	arr := levels[ticks]
	for i, o := range arr {
		if o.ID == id {
			levels[ticks] = append(arr[:i:i], arr[i+1:]...)
			delete(b.orderTicks, id)
			delete(b.orderSide, id)
			if len(levels[ticks]) == 0 {
				popEmpty(ticks)
			}
			return o
		}
	}
	return nil
}

// LevelQuantity returns the current aggregate remaining quantity resting at
// (side, ticks), or zero if nothing rests there.
func (b *book) LevelQuantity(side types.Side, ticks int64) money.Amount {
	b.mu.Lock()
	defer b.mu.Unlock()

	src := b.bids
	if side == types.Sell {
		src = b.asks
	}
	total := money.Zero
	for _, o := range src[ticks] {
		total = total.Add(o.RemainingQuantity())
	}
	return total
}

// Resting reports whether id is currently on the book.
func (b *book) Resting(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.orderTicks[id]
	return ok
}

// Levels returns the aggregated price levels for a side, best price first.
func (b *book) Levels(side types.Side) []PriceLevel {
	b.mu.Lock()
	defer b.mu.Unlock()

	src := b.bids
	if side == types.Sell {
		src = b.asks
	}
	out := make([]PriceLevel, 0, len(src))
	for ticks, orders := range src {
		total := money.Zero
		for _, o := range orders {
			total = total.Add(o.RemainingQuantity())
		}
		if money.IsPositive(total) {
			out = append(out, PriceLevel{PriceTicks: ticks, Quantity: total})
		}
	}
	if side == types.Buy {
		sort.Slice(out, func(i, j int) bool { return out[i].PriceTicks > out[j].PriceTicks })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].PriceTicks < out[j].PriceTicks })
	}
	return out
}
