// Package orderstore is the canonical persistence layer for orders (C3): it
// enforces the status lifecycle graph, serves the book/user/client-order-id
// queries the matching engine and hub need, and gives the matching engine
// idempotent re-submission of a duplicate client_order_id.
//
// Grounded on the teacher's account/order key schema
// (pkg/storage/account_keys.go: ord:<address>:<orderID>) generalized from a
// per-account order index to the three indexes this store actually needs.
package orderstore

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lattice-exchange/core/pkg/money"
	"github.com/lattice-exchange/core/pkg/types"
	"github.com/lattice-exchange/core/pkg/xerrors"
)

// transitions is the status lifecycle graph from §4.4: keys are the current
// status, values are the set of statuses it may move to. Terminal statuses
// have no outgoing edges.
var transitions = map[types.Status]map[types.Status]bool{
	types.Pending:         {types.Open: true, types.Rejected: true, types.Filled: true, types.Cancelled: true},
	types.Open:            {types.PartiallyFilled: true, types.Filled: true, types.Cancelled: true, types.Expired: true},
	types.PartiallyFilled: {types.PartiallyFilled: true, types.Filled: true, types.Cancelled: true, types.Expired: true},
}

// StatusDiff carries the fields updateStatus may change alongside status,
// so a single persisted write captures the whole transition.
type StatusDiff struct {
	FilledQuantity *money.Amount
	AveragePrice   *money.Amount
	RejectReason   *string
}

// Store is the in-memory order authority, optionally backed by a Backend for
// durability across restarts.
type Store struct {
	mu      sync.RWMutex
	orders  map[string]*types.Order            // order id -> order
	byCoid  map[string]string                   // user|client_order_id -> order id
	byUser  map[string][]string                 // user id -> order ids, insertion order
	byMkt   map[string]map[string]*types.Order  // market id -> order id -> order (active only)
	backend Backend
}

// Backend persists orders so the store survives a restart.
type Backend interface {
	SaveOrder(o *types.Order) error
	LoadAllOrders() ([]*types.Order, error)
}

// New creates a Store, replaying any orders already in backend (cold start).
func New(backend Backend) (*Store, error) {
	s := &Store{
		orders:  make(map[string]*types.Order),
		byCoid:  make(map[string]string),
		byUser:  make(map[string][]string),
		byMkt:   make(map[string]map[string]*types.Order),
		backend: backend,
	}
	if backend != nil {
		existing, err := backend.LoadAllOrders()
		if err != nil {
			return nil, fmt.Errorf("orderstore: replay: %w", err)
		}
		for _, o := range existing {
			s.index(o)
		}
	}
	return s, nil
}

// index inserts o into every lookup structure; caller must hold s.mu for
// writes, or call only during New() before the Store is shared.
func (s *Store) index(o *types.Order) {
	s.orders[o.ID] = o
	if o.ClientOrderID != "" {
		s.byCoid[coidKey(o.UserID, o.ClientOrderID)] = o.ID
	}
	if _, seen := indexOf(s.byUser[o.UserID], o.ID); !seen {
		s.byUser[o.UserID] = append(s.byUser[o.UserID], o.ID)
	}
	if s.byMkt[o.MarketID] == nil {
		s.byMkt[o.MarketID] = make(map[string]*types.Order)
	}
	if o.IsClosed() {
		delete(s.byMkt[o.MarketID], o.ID)
	} else {
		s.byMkt[o.MarketID][o.ID] = o
	}
}

func indexOf(ids []string, id string) (int, bool) {
	for i, v := range ids {
		if v == id {
			return i, true
		}
	}
	return -1, false
}

func coidKey(userID, coid string) string { return userID + "|" + coid }

func (s *Store) persist(o *types.Order) {
	if s.backend == nil {
		return
	}
	_ = s.backend.SaveOrder(o)
}

// Create inserts a new order. If the order carries a client_order_id already
// used by this user, the prior order is returned unchanged (§4.2 idempotent
// re-submission) and created is false.
func (s *Store) Create(o *types.Order) (result *types.Order, created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ClientOrderID != "" {
		if existingID, ok := s.byCoid[coidKey(o.UserID, o.ClientOrderID)]; ok {
			return s.orders[existingID], false, nil
		}
	}
	if o.ID == "" {
		return nil, false, xerrors.New(xerrors.CodeValidation, "orderstore: order id required")
	}
	if _, exists := s.orders[o.ID]; exists {
		return nil, false, xerrors.Newf(xerrors.CodeValidation, "orderstore: duplicate order id %s", o.ID)
	}

	s.index(o)
	s.persist(o)
	return o, true, nil
}

// UpdateStatus enforces the lifecycle graph (§4.4) and applies diff in the
// same persisted write. A transition into or within a terminal status that
// isn't a legal edge from the order's current status is rejected.
func (s *Store) UpdateStatus(id string, newStatus types.Status, diff StatusDiff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return xerrors.Newf(xerrors.CodeValidation, "orderstore: order %s not found", id)
	}
	if o.IsClosed() {
		return xerrors.Newf(xerrors.CodeOrderAlreadyTerminal, "orderstore: order %s is already %s", id, o.Status)
	}
	if o.Status != newStatus {
		allowed := transitions[o.Status]
		if allowed == nil || !allowed[newStatus] {
			return xerrors.Newf(xerrors.CodeValidation, "orderstore: illegal transition %s -> %s for order %s", o.Status, newStatus, id)
		}
	}

	o.Status = newStatus
	if diff.FilledQuantity != nil {
		o.FilledQuantity = *diff.FilledQuantity
	}
	if diff.AveragePrice != nil {
		o.AveragePrice = *diff.AveragePrice
	}
	if diff.RejectReason != nil {
		o.RejectReason = *diff.RejectReason
	}

	if o.IsClosed() {
		if m, ok := s.byMkt[o.MarketID]; ok {
			delete(m, o.ID)
		}
	}
	s.persist(o)
	return nil
}

// Get returns a copy of an order by id. The returned value is a snapshot —
// callers outside the order's market queue (REST/hub query handlers, cold
// start replay) must never mutate it and must not expect it to reflect
// later fills/cancels; the matching engine's own per-market goroutine is the
// only place the canonical order (held internally by the book and this
// store) is ever mutated.
func (s *Store) Get(id string) (*types.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// FindByClientOrderID looks up an order by (user, client_order_id). Same
// copy-on-read contract as Get.
func (s *Store) FindByClientOrderID(userID, coid string) (*types.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCoid[coidKey(userID, coid)]
	if !ok {
		return nil, false
	}
	o, ok := s.orders[id]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// FindActive returns a copy of every non-terminal order resting in a market,
// optionally filtered by side, sorted by acceptance time (oldest first).
// Same copy-on-read contract as Get.
func (s *Store) FindActive(marketID string, side *types.Side) []*types.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.byMkt[marketID]
	out := make([]*types.Order, 0, len(m))
	for _, o := range m {
		if side != nil && o.Side != *side {
			continue
		}
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AcceptedAt.Before(out[j].AcceptedAt) })
	return out
}

// FindByUser returns a copy of a user's orders, most recent first, optionally
// filtered by market and/or open-only. Same copy-on-read contract as Get.
func (s *Store) FindByUser(userID string, marketID string, openOnly bool) []*types.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	out := make([]*types.Order, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		o := s.orders[ids[i]]
		if o == nil {
			continue
		}
		if marketID != "" && o.MarketID != marketID {
			continue
		}
		if openOnly && o.IsClosed() {
			continue
		}
		out = append(out, o.Clone())
	}
	return out
}
