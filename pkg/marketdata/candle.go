// Package marketdata implements the trade stream and candle builder (C6): a
// rolling 24h ticker per market and OHLCV candle bucketing at every
// subscribable interval, fed from the matching engine's TradeExecuted events
// and replaying idempotently by (market, sequence) on cold start.
//
// Grounded on the teacher's in-memory OrderBook aggregate bookkeeping
// (pkg/app/core/orderbook/orderbook.go) for the "maintain a rolling aggregate
// purely from a trusted event stream" shape, generalized from price-level
// quantities to OHLCV buckets and a trailing-window ticker.
package marketdata

import (
	"fmt"
	"time"

	"github.com/lattice-exchange/core/pkg/money"
)

// Candle is one OHLCV bucket for a (market, interval), per §3.
type Candle struct {
	MarketID       string
	Interval       Interval
	OpenTime       time.Time
	CloseTime      time.Time
	Open           money.Amount
	High           money.Amount
	Low            money.Amount
	Close          money.Amount
	Volume         money.Amount
	QuoteVolume    money.Amount
	TradesCount    int64
	TakerBuyVolume money.Amount
}

// applyTrade folds one trade into the candle, assumed to already belong to
// this bucket (§3: "high >= max(open,close) >= min(open,close) >= low").
func (c *Candle) applyTrade(price, quantity money.Amount, isTakerBuy bool) {
	if price.GreaterThan(c.High) {
		c.High = price
	}
	if price.LessThan(c.Low) {
		c.Low = price
	}
	c.Close = price
	c.Volume = c.Volume.Add(quantity)
	c.QuoteVolume = c.QuoteVolume.Add(price.Mul(quantity))
	c.TradesCount++
	if isTakerBuy {
		c.TakerBuyVolume = c.TakerBuyVolume.Add(quantity)
	}
}

// newCandle opens a fresh bucket at the first trade it contains, per §4.5
// ("open = high = low = close = trade.price").
func newCandle(marketID string, interval Interval, openTime time.Time, price, quantity money.Amount, isTakerBuy bool) *Candle {
	c := &Candle{
		MarketID:       marketID,
		Interval:       interval,
		OpenTime:       openTime,
		CloseTime:      openTime.Add(interval.Duration()),
		Open:           price,
		High:           price,
		Low:            price,
		Close:          price,
		Volume:         quantity,
		QuoteVolume:    price.Mul(quantity),
		TradesCount:    1,
		TakerBuyVolume: money.Zero,
	}
	if isTakerBuy {
		c.TakerBuyVolume = quantity
	}
	return c
}

// Interval is a candle bucketing period.
type Interval int8

const (
	OneMinute Interval = iota
	FiveMinutes
	FifteenMinutes
	ThirtyMinutes
	OneHour
	FourHours
	OneDay
	OneWeek
)

// Intervals lists every interval the candle builder maintains, in ascending
// order — the set the hub's candles:{SYMBOL}:{INTERVAL} topic may subscribe to.
var Intervals = []Interval{OneMinute, FiveMinutes, FifteenMinutes, ThirtyMinutes, OneHour, FourHours, OneDay, OneWeek}

func (i Interval) String() string {
	switch i {
	case OneMinute:
		return "1m"
	case FiveMinutes:
		return "5m"
	case FifteenMinutes:
		return "15m"
	case ThirtyMinutes:
		return "30m"
	case OneHour:
		return "1h"
	case FourHours:
		return "4h"
	case OneDay:
		return "1d"
	case OneWeek:
		return "1w"
	default:
		return "unknown"
	}
}

// Duration returns the bucket width. OneWeek buckets on a fixed 7*24h span
// rather than the calendar week, which keeps bucket math a single truncation
// rather than a calendar computation.
func (i Interval) Duration() time.Duration {
	switch i {
	case OneMinute:
		return time.Minute
	case FiveMinutes:
		return 5 * time.Minute
	case FifteenMinutes:
		return 15 * time.Minute
	case ThirtyMinutes:
		return 30 * time.Minute
	case OneHour:
		return time.Hour
	case FourHours:
		return 4 * time.Hour
	case OneDay:
		return 24 * time.Hour
	case OneWeek:
		return 7 * 24 * time.Hour
	default:
		return time.Minute
	}
}

// ParseInterval resolves a wire string like "1m" or "4h" back to an
// Interval, for the hub's getCandles/candles: topic parameters.
func ParseInterval(s string) (Interval, error) {
	for _, i := range Intervals {
		if i.String() == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("marketdata: unknown interval %q", s)
}

// bucketStart truncates t down to the interval's bucket boundary, anchored
// at Go's zero time (as time.Truncate is), so bucket boundaries are stable
// across restarts. For intervals up to a day this matches the Unix epoch's
// boundaries; week buckets start on Monday 00:00 UTC.
func bucketStart(t time.Time, d time.Duration) time.Time {
	return t.Truncate(d)
}
