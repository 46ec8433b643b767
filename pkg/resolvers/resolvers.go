// Package resolvers declares the engine's three external dependencies (C8):
// Identity, Fee, and Risk. The matching engine only ever calls these
// interfaces, never a concrete implementation, so a real exchange can swap in
// a KYC/auth service, a volume-tiered fee schedule, or a risk engine without
// touching pkg/matching. The in-memory implementations here exist so the
// module runs standalone.
package resolvers

import (
	"context"

	"github.com/lattice-exchange/core/pkg/money"
	"github.com/lattice-exchange/core/pkg/types"
)

// Identity authenticates a session token into a user id.
type Identity interface {
	Authenticate(ctx context.Context, token string) (userID string, err error)
}

// FeeRate is the maker/taker rate pair applied to a single fill.
type FeeRate struct {
	Maker money.Amount
	Taker money.Amount
}

// Fee resolves the effective maker/taker rate for a user on a market,
// e.g. from a volume tier schedule.
type Fee interface {
	RateFor(ctx context.Context, userID, marketID string) (FeeRate, error)
}

// Risk gates a placement before it reaches the acceptance gate's balance
// lock step.
type Risk interface {
	Allow(ctx context.Context, userID, marketID string, side types.Side, notional money.Amount) error
}
