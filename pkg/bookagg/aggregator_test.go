package bookagg

import (
	"testing"
	"time"

	"github.com/lattice-exchange/core/pkg/events"
	"github.com/lattice-exchange/core/pkg/money"
	"github.com/lattice-exchange/core/pkg/types"
	"github.com/stretchr/testify/require"
)

func mustAmt(t *testing.T, s string) money.Amount {
	t.Helper()
	a, err := money.Parse(s)
	require.NoError(t, err)
	return a
}

func TestSnapshotReflectsAppliedDeltas(t *testing.T) {
	agg := New()

	agg.OnOrderBookDelta(events.OrderBookDelta{
		MarketID: "BTC-USDT", Sequence: 1, Side: types.Buy, PriceTicks: 500000,
		Quantity: mustAmt(t, "1.5"), Kind: events.LevelOpened, At: time.Now(),
	})
	agg.OnOrderBookDelta(events.OrderBookDelta{
		MarketID: "BTC-USDT", Sequence: 2, Side: types.Buy, PriceTicks: 499900,
		Quantity: mustAmt(t, "2.0"), Kind: events.LevelOpened, At: time.Now(),
	})
	agg.OnOrderBookDelta(events.OrderBookDelta{
		MarketID: "BTC-USDT", Sequence: 3, Side: types.Sell, PriceTicks: 500100,
		Quantity: mustAmt(t, "0.75"), Kind: events.LevelOpened, At: time.Now(),
	})

	snap := agg.Snapshot("BTC-USDT", 0)
	require.Equal(t, int64(3), snap.Sequence)
	require.Len(t, snap.Bids, 2)
	require.Len(t, snap.Asks, 1)
	require.Equal(t, int64(500000), snap.Bids[0].PriceTicks) // best bid first (highest)
	require.True(t, snap.Bids[0].Quantity.Equal(mustAmt(t, "1.5")))
}

func TestLevelClosedRemovesTheLevel(t *testing.T) {
	agg := New()
	agg.OnOrderBookDelta(events.OrderBookDelta{
		MarketID: "BTC-USDT", Sequence: 1, Side: types.Buy, PriceTicks: 500000,
		Quantity: mustAmt(t, "1"), Kind: events.LevelOpened,
	})
	agg.OnOrderBookDelta(events.OrderBookDelta{
		MarketID: "BTC-USDT", Sequence: 2, Side: types.Buy, PriceTicks: 500000,
		Quantity: money.Zero, Kind: events.LevelClosed,
	})

	snap := agg.Snapshot("BTC-USDT", 0)
	require.Empty(t, snap.Bids)
}

func TestSnapshotDepthLimitsLevelsPerSide(t *testing.T) {
	agg := New()
	for i := int64(0); i < 10; i++ {
		agg.OnOrderBookDelta(events.OrderBookDelta{
			MarketID: "BTC-USDT", Sequence: i + 1, Side: types.Buy, PriceTicks: 500000 - i*100,
			Quantity: mustAmt(t, "1"), Kind: events.LevelOpened,
		})
	}
	snap := agg.Snapshot("BTC-USDT", 3)
	require.Len(t, snap.Bids, 3)
	require.Equal(t, int64(500000), snap.Bids[0].PriceTicks)
}

func TestBestBidAskOnEmptyBookIsNotOK(t *testing.T) {
	agg := New()
	_, _, bidOK, askOK := agg.BestBidAsk("BTC-USDT")
	require.False(t, bidOK)
	require.False(t, askOK)
}
