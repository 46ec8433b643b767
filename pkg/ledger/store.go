package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/lattice-exchange/core/internal/storage"
)

// PebbleStore is the Ledger's durable Store, one row per (user, asset).
type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens (or creates) a balance ledger database at path.
func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := storage.Open(path)
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

// Close closes the underlying database.
func (s *PebbleStore) Close() error { return s.db.Close() }

func balanceKey(userID, asset string) []byte {
	return []byte(fmt.Sprintf("bal:%s:%s", userID, asset))
}

func balancePrefix(userID string) []byte {
	return []byte(fmt.Sprintf("bal:%s:", userID))
}

// SaveBalance persists a balance row. Uses pebble.Sync: a balance write must
// survive a crash before the matching engine considers the fill settled.
func (s *PebbleStore) SaveBalance(b *Balance) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("ledger store: marshal balance: %w", err)
	}
	if err := s.db.Set(balanceKey(b.UserID, b.Asset), data, pebble.Sync); err != nil {
		return fmt.Errorf("ledger store: save balance: %w", err)
	}
	return nil
}

// LoadBalance loads a balance row, returning (nil, nil) if absent.
func (s *PebbleStore) LoadBalance(userID, asset string) (*Balance, error) {
	data, closer, err := s.db.Get(balanceKey(userID, asset))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger store: get balance: %w", err)
	}
	defer closer.Close()

	var b Balance
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("ledger store: unmarshal balance: %w", err)
	}
	return &b, nil
}

// LoadAllBalances loads every asset row for a user, e.g. for a balance query.
func (s *PebbleStore) LoadAllBalances(userID string) ([]*Balance, error) {
	prefix := balancePrefix(userID)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: storage.UpperBound(prefix)})
	if err != nil {
		return nil, fmt.Errorf("ledger store: iterate balances: %w", err)
	}
	defer iter.Close()

	var out []*Balance
	for iter.First(); iter.Valid(); iter.Next() {
		var b Balance
		if err := json.Unmarshal(iter.Value(), &b); err != nil {
			continue
		}
		out = append(out, &b)
	}
	return out, nil
}
