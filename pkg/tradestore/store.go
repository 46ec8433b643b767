// Package tradestore is the canonical persistence layer for trades: every
// settled fill the matching engine emits, indexed by market (for public
// trade history/cold-start replay) and by user (for the hub's getTrades
// query).
//
// Grounded the same way as pkg/orderstore: an in-memory index backed by an
// optional durable Backend, replaying on New() for a cold start (§3 "Derived
// views... must be reconstructible from Order Store + Trade stream after a
// cold start" — the trade stream itself must first survive the restart).
package tradestore

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lattice-exchange/core/pkg/types"
)

// Backend persists trades so the store survives a restart.
type Backend interface {
	SaveTrade(t *types.Trade) error
	LoadAllTrades() ([]*types.Trade, error)
}

// Store is the in-memory trade authority, optionally backed by a Backend.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*types.Trade
	byMkt   map[string][]*types.Trade // market id -> trades, ascending sequence
	byUser  map[string][]*types.Trade // user id (buyer or seller) -> trades, insertion order
	backend Backend
}

// New creates a Store, replaying any trades already in backend (cold start).
func New(backend Backend) (*Store, error) {
	s := &Store{
		byID:    make(map[string]*types.Trade),
		byMkt:   make(map[string][]*types.Trade),
		byUser:  make(map[string][]*types.Trade),
		backend: backend,
	}
	if backend != nil {
		existing, err := backend.LoadAllTrades()
		if err != nil {
			return nil, fmt.Errorf("tradestore: replay: %w", err)
		}
		sort.Slice(existing, func(i, j int) bool { return existing[i].Sequence < existing[j].Sequence })
		for _, t := range existing {
			s.index(t)
		}
	}
	return s, nil
}

func (s *Store) index(t *types.Trade) {
	s.byID[t.ID] = t
	s.byMkt[t.MarketID] = append(s.byMkt[t.MarketID], t)
	s.byUser[t.BuyerID] = append(s.byUser[t.BuyerID], t)
	if t.SellerID != t.BuyerID {
		s.byUser[t.SellerID] = append(s.byUser[t.SellerID], t)
	}
}

// Save persists t and indexes it. Trades are immutable once written (§3), so
// Save never updates an existing row — a duplicate (market, sequence) is
// rejected rather than silently overwritten.
func (s *Store) Save(t *types.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[t.ID]; exists {
		return fmt.Errorf("tradestore: duplicate trade id %s", t.ID)
	}
	if list := s.byMkt[t.MarketID]; len(list) > 0 && list[len(list)-1].Sequence >= t.Sequence {
		return fmt.Errorf("tradestore: non-increasing sequence %d for market %s", t.Sequence, t.MarketID)
	}
	s.index(t)
	if s.backend != nil {
		if err := s.backend.SaveTrade(t); err != nil {
			return fmt.Errorf("tradestore: persist: %w", err)
		}
	}
	return nil
}

// ByMarket returns up to limit of a market's most recent trades, newest
// last. limit <= 0 means no cap.
func (s *Store) ByMarket(marketID string, limit int) []*types.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.byMkt[marketID], limit)
}

// ByUser returns up to limit of a user's most recent trades (as buyer or
// seller), newest last.
func (s *Store) ByUser(userID string, limit int) []*types.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.byUser[userID], limit)
}

func tail(list []*types.Trade, limit int) []*types.Trade {
	if limit <= 0 || limit >= len(list) {
		out := make([]*types.Trade, len(list))
		copy(out, list)
		return out
	}
	out := make([]*types.Trade, limit)
	copy(out, list[len(list)-limit:])
	return out
}
