package marketdata

import (
	"time"

	"github.com/lattice-exchange/core/pkg/money"
	"github.com/shopspring/decimal"
)

// windowSample is one trade folded into the rolling 24h ticker window, kept
// only long enough to be evicted once it ages out (§4.5 "second-granularity
// eviction").
type windowSample struct {
	at       time.Time
	price    money.Amount
	quantity money.Amount
	total    money.Amount // price*quantity, for quote volume
}

// Ticker is the per-market rolling snapshot the hub's ticker:{SYMBOL} topic
// and the getTicker/getAllTickers queries serve.
type Ticker struct {
	MarketID          string
	LastPrice         money.Amount
	BestBid           money.Amount
	BestAsk           money.Amount
	OpenPrice24h      money.Amount
	High24h           money.Amount
	Low24h            money.Amount
	Volume24h         money.Amount
	QuoteVolume24h    money.Amount
	Change24h         money.Amount
	ChangePercent24h  money.Amount
	UpdatedAt         time.Time
}

// tickerState is the mutable rolling-window bookkeeping behind a published
// Ticker: a deque of samples trimmed to the trailing 24h on every update.
type tickerState struct {
	marketID string
	samples  []windowSample
	lastBid  money.Amount
	lastAsk  money.Amount
}

func newTickerState(marketID string) *tickerState {
	return &tickerState{marketID: marketID}
}

const rollingWindow = 24 * time.Hour

// addTrade folds one trade into the window and evicts samples older than
// rollingWindow, then recomputes the snapshot.
func (s *tickerState) addTrade(price, quantity money.Amount, at time.Time) Ticker {
	s.samples = append(s.samples, windowSample{
		at: at, price: price, quantity: quantity, total: price.Mul(quantity),
	})
	s.evict(at)
	return s.snapshot(at)
}

func (s *tickerState) evict(now time.Time) {
	cutoff := now.Add(-rollingWindow)
	i := 0
	for i < len(s.samples) && s.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.samples = s.samples[i:]
	}
}

func (s *tickerState) setBook(bid, ask money.Amount) {
	s.lastBid, s.lastAsk = bid, ask
}

func (s *tickerState) snapshot(now time.Time) Ticker {
	t := Ticker{MarketID: s.marketID, BestBid: s.lastBid, BestAsk: s.lastAsk, UpdatedAt: now}
	if len(s.samples) == 0 {
		return t
	}

	t.OpenPrice24h = s.samples[0].price
	t.High24h = s.samples[0].price
	t.Low24h = s.samples[0].price
	t.Volume24h = money.Zero
	t.QuoteVolume24h = money.Zero

	for _, sm := range s.samples {
		if sm.price.GreaterThan(t.High24h) {
			t.High24h = sm.price
		}
		if sm.price.LessThan(t.Low24h) {
			t.Low24h = sm.price
		}
		t.Volume24h = t.Volume24h.Add(sm.quantity)
		t.QuoteVolume24h = t.QuoteVolume24h.Add(sm.total)
	}
	t.LastPrice = s.samples[len(s.samples)-1].price
	t.Change24h = t.LastPrice.Sub(t.OpenPrice24h)
	if money.IsPositive(t.OpenPrice24h) {
		t.ChangePercent24h = t.Change24h.Div(t.OpenPrice24h).Mul(decimal.NewFromInt(100))
	}
	return t
}
