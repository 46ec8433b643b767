package resolvers

import (
	"context"
	"sync"

	"github.com/lattice-exchange/core/pkg/money"
	"github.com/lattice-exchange/core/pkg/types"
	"github.com/lattice-exchange/core/pkg/xerrors"
)

// StaticIdentity authenticates any token present in a fixed token->user map.
// Good enough to run the hub without a real auth service.
type StaticIdentity struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewStaticIdentity() *StaticIdentity {
	return &StaticIdentity{tokens: make(map[string]string)}
}

// IssueToken registers a token for userID; tests and local tooling use this
// in place of a real login flow.
func (s *StaticIdentity) IssueToken(token, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = userID
}

func (s *StaticIdentity) Authenticate(_ context.Context, token string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.tokens[token]
	if !ok {
		return "", xerrors.New(xerrors.CodeAuth, "unknown or expired session token")
	}
	return userID, nil
}

// FlatFee returns the same maker/taker rate for every user and market, e.g.
// a single-tier exchange with no volume discounts.
type FlatFee struct {
	Rate FeeRate
}

func NewFlatFee(maker, taker money.Amount) *FlatFee {
	return &FlatFee{Rate: FeeRate{Maker: maker, Taker: taker}}
}

func (f *FlatFee) RateFor(_ context.Context, _, _ string) (FeeRate, error) {
	return f.Rate, nil
}

// AllowAllRisk never denies a trade; used when no risk engine is wired in.
type AllowAllRisk struct{}

func (AllowAllRisk) Allow(_ context.Context, _, _ string, _ types.Side, _ money.Amount) error {
	return nil
}
