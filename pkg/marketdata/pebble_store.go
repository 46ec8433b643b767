package marketdata

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/lattice-exchange/core/internal/storage"
)

// PebbleStore is the candle builder's historical Store, one row per
// (market, interval, open_time), following the same shared Pebble wiring as
// the balance ledger and order store.
type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens (or creates) a candle history database at path.
func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := storage.Open(path)
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

// Close closes the underlying database.
func (s *PebbleStore) Close() error { return s.db.Close() }

// candleKey sorts lexicographically by (market, interval, open_time) since
// OpenTime is encoded as a zero-padded Unix nanosecond timestamp.
func candleKey(marketID string, interval Interval, openTime time.Time) []byte {
	return []byte(fmt.Sprintf("candle:%s:%s:%020d", marketID, interval, openTime.UnixNano()))
}

func candlePrefix(marketID string, interval Interval) []byte {
	return []byte(fmt.Sprintf("candle:%s:%s:", marketID, interval))
}

// SaveCandle persists a closed candle bucket.
func (s *PebbleStore) SaveCandle(c *Candle) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marketdata store: marshal candle: %w", err)
	}
	if err := s.db.Set(candleKey(c.MarketID, c.Interval, c.OpenTime), data, pebble.Sync); err != nil {
		return fmt.Errorf("marketdata store: save candle: %w", err)
	}
	return nil
}

// LoadCandles replays persisted candles for (market, interval) in ascending
// open-time order, optionally bounded to [start, end) and capped at limit
// (0 means unbounded), for getCandles queries reaching past the in-memory
// retention window and for cold-start reconstruction.
func (s *PebbleStore) LoadCandles(marketID string, interval Interval, limit int, start, end *time.Time) ([]*Candle, error) {
	prefix := candlePrefix(marketID, interval)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: storage.UpperBound(prefix)})
	if err != nil {
		return nil, fmt.Errorf("marketdata store: iterate candles: %w", err)
	}
	defer iter.Close()

	var out []*Candle
	for iter.First(); iter.Valid(); iter.Next() {
		var c Candle
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			continue
		}
		if start != nil && c.OpenTime.Before(*start) {
			continue
		}
		if end != nil && !c.OpenTime.Before(*end) {
			continue
		}
		out = append(out, &c)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
