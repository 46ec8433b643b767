package orderstore

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/lattice-exchange/core/internal/storage"
	"github.com/lattice-exchange/core/pkg/types"
)

// PebbleBackend is the Store's durable Backend, one row per order keyed by
// order id, following the teacher's "ord:<owner>:<id>" schema
// (pkg/storage/account_keys.go) generalized to a flat "ord:<id>" key since
// the store's in-memory indexes (not Pebble range scans) serve the
// per-market/per-user/per-client-order-id lookups.
type PebbleBackend struct {
	db *pebble.DB
}

// NewPebbleBackend opens (or creates) an order database at path.
func NewPebbleBackend(path string) (*PebbleBackend, error) {
	db, err := storage.Open(path)
	if err != nil {
		return nil, err
	}
	return &PebbleBackend{db: db}, nil
}

// Close closes the underlying database.
func (b *PebbleBackend) Close() error { return b.db.Close() }

func orderKey(id string) []byte {
	return []byte(fmt.Sprintf("ord:%s", id))
}

var orderKeyPrefix = []byte("ord:")

// SaveOrder persists an order row, overwriting any prior revision.
func (b *PebbleBackend) SaveOrder(o *types.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("orderstore: marshal order: %w", err)
	}
	if err := b.db.Set(orderKey(o.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("orderstore: save order: %w", err)
	}
	return nil
}

// LoadAllOrders replays every order row, for cold-start reconstruction of the
// in-memory Store.
func (b *PebbleBackend) LoadAllOrders() ([]*types.Order, error) {
	iter, err := b.db.NewIter(&pebble.IterOptions{
		LowerBound: orderKeyPrefix,
		UpperBound: storage.UpperBound(orderKeyPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("orderstore: iterate orders: %w", err)
	}
	defer iter.Close()

	var out []*types.Order
	for iter.First(); iter.Valid(); iter.Next() {
		var o types.Order
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			continue
		}
		out = append(out, &o)
	}
	return out, nil
}
