package matching

import (
	"context"

	"github.com/lattice-exchange/core/pkg/orderstore"
	"github.com/lattice-exchange/core/pkg/types"
	"github.com/lattice-exchange/core/pkg/xerrors"
)

// CancelOrder cancels a resting order owned by userID, serialized on its
// market's command queue like any other mutation. The order's terminal
// check and the cancel itself both run inside the same queued closure, on
// the market's single worker goroutine, so they observe the same status a
// concurrent fill or prior cancel may have just produced rather than a
// stale pre-check done on the calling goroutine (§5, §8 "cancel of an
// already-terminal order is a no-op returning OrderAlreadyTerminal").
func (e *Engine) CancelOrder(ctx context.Context, userID, orderID string) error {
	o, ok := e.store.Get(orderID)
	if !ok {
		return xerrors.Newf(xerrors.CodeValidation, "order %s not found", orderID)
	}
	if o.UserID != userID {
		return xerrors.New(xerrors.CodeAuth, "order does not belong to this user")
	}

	var result error
	e.queue.Submit(o.MarketID, func() {
		current, ok := e.store.Get(orderID)
		if !ok {
			result = xerrors.Newf(xerrors.CodeValidation, "order %s not found", orderID)
			return
		}
		if current.IsClosed() {
			result = xerrors.Newf(xerrors.CodeOrderAlreadyTerminal, "order %s is already %s", orderID, current.Status)
			return
		}

		st := e.stateFor(current.MarketID)
		if _, isStop := st.stops[current.ID]; isStop {
			delete(st.stops, current.ID)
		} else {
			if st.book.Cancel(current.ID) == nil {
				// Order is not closed but is neither a pending stop nor
				// resting in this engine's book, so nothing here can cancel
				// it; it is reported as OrderAlreadyTerminal with its stored
				// status.
				result = xerrors.Newf(xerrors.CodeOrderAlreadyTerminal, "order %s is already %s", orderID, current.Status)
				return
			}
			if mkt, err := e.markets.Get(current.MarketID); err == nil {
				e.publishLevel(st, current.MarketID, current.Side, mkt.PriceTicks(current.Price))
			}
		}
		e.transition(current, types.Cancelled, orderstore.StatusDiff{})
	})
	return result
}
