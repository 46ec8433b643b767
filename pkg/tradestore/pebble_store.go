package tradestore

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/lattice-exchange/core/internal/storage"
	"github.com/lattice-exchange/core/pkg/types"
)

// PebbleBackend is the Store's durable Backend, keyed so a prefix scan
// naturally yields ascending-sequence order per market, matching the
// persisted schema's required unique index on (market_id, sequence) (§6).
type PebbleBackend struct {
	db *pebble.DB
}

func NewPebbleBackend(path string) (*PebbleBackend, error) {
	db, err := storage.Open(path)
	if err != nil {
		return nil, err
	}
	return &PebbleBackend{db: db}, nil
}

func (b *PebbleBackend) Close() error { return b.db.Close() }

func tradeKey(marketID string, sequence int64) []byte {
	return []byte(fmt.Sprintf("trade:%s:%020d", marketID, sequence))
}

var tradeKeyPrefix = []byte("trade:")

func (b *PebbleBackend) SaveTrade(t *types.Trade) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("tradestore: marshal trade: %w", err)
	}
	if err := b.db.Set(tradeKey(t.MarketID, t.Sequence), data, pebble.Sync); err != nil {
		return fmt.Errorf("tradestore: save trade: %w", err)
	}
	return nil
}

func (b *PebbleBackend) LoadAllTrades() ([]*types.Trade, error) {
	iter, err := b.db.NewIter(&pebble.IterOptions{LowerBound: tradeKeyPrefix, UpperBound: storage.UpperBound(tradeKeyPrefix)})
	if err != nil {
		return nil, fmt.Errorf("tradestore: iterate trades: %w", err)
	}
	defer iter.Close()

	var out []*types.Trade
	for iter.First(); iter.Valid(); iter.Next() {
		var t types.Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			continue
		}
		out = append(out, &t)
	}
	return out, nil
}
