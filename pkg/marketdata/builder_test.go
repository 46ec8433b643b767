package marketdata

import (
	"testing"
	"time"

	"github.com/lattice-exchange/core/pkg/events"
	"github.com/lattice-exchange/core/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amt(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func trade(seq int64, price, qty string, at time.Time, buyerMaker bool) *types.Trade {
	return &types.Trade{
		ID: "t", MarketID: "BTC/USDT", Sequence: seq,
		Price: amt(price), Quantity: amt(qty), TradeTime: at, IsBuyerMaker: buyerMaker,
	}
}

func TestBuilderTickerRollingWindow(t *testing.T) {
	b := NewBuilder(nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	b.OnTradeExecuted(events.TradeExecuted{Trade: trade(1, "30000", "0.3", base, true)})
	b.OnTradeExecuted(events.TradeExecuted{Trade: trade(2, "30100", "0.1", base.Add(time.Hour), false)})

	ticker, ok := b.GetTicker("BTC/USDT")
	require.True(t, ok)
	assert.True(t, ticker.LastPrice.Equal(amt("30100")))
	assert.True(t, ticker.High24h.Equal(amt("30100")))
	assert.True(t, ticker.Low24h.Equal(amt("30000")))
	assert.True(t, ticker.Volume24h.Equal(amt("0.4")))
}

func TestBuilderCandleBucketing(t *testing.T) {
	b := NewBuilder(nil)
	base := time.Date(2026, 1, 1, 0, 0, 30, 0, time.UTC) // mid-minute

	b.OnTradeExecuted(events.TradeExecuted{Trade: trade(1, "100", "1", base, true)})
	b.OnTradeExecuted(events.TradeExecuted{Trade: trade(2, "105", "2", base.Add(20*time.Second), true)})

	candles, err := b.GetCandles("BTC/USDT", OneMinute, 0, nil, nil)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	c := candles[0]
	assert.True(t, c.Open.Equal(amt("100")))
	assert.True(t, c.High.Equal(amt("105")))
	assert.True(t, c.Low.Equal(amt("100")))
	assert.True(t, c.Close.Equal(amt("105")))
	assert.True(t, c.Volume.Equal(amt("3")))
	assert.EqualValues(t, 2, c.TradesCount)

	// Second minute bucket opens a new candle.
	b.OnTradeExecuted(events.TradeExecuted{Trade: trade(3, "110", "1", base.Add(90*time.Second), true)})
	candles, err = b.GetCandles("BTC/USDT", OneMinute, 0, nil, nil)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.True(t, candles[1].Open.Equal(amt("110")))
}

func TestBuilderIdempotentReplay(t *testing.T) {
	b := NewBuilder(nil)
	base := time.Now()
	tr := trade(5, "100", "1", base, true)

	b.OnTradeExecuted(events.TradeExecuted{Trade: tr})
	b.OnTradeExecuted(events.TradeExecuted{Trade: tr}) // exact replay of the same sequence

	ticker, _ := b.GetTicker("BTC/USDT")
	assert.True(t, ticker.Volume24h.Equal(amt("1")))
}

func TestIntervalBucketStart(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 37, 42, 0, time.UTC)
	got := bucketStart(at, OneHour.Duration())
	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.True(t, got.Equal(want))
}
