package matching

import (
	"context"
	"time"

	"github.com/lattice-exchange/core/pkg/market"
	"github.com/lattice-exchange/core/pkg/orderstore"
	"github.com/lattice-exchange/core/pkg/types"
)

// SweepInterval is the cadence of the per-market scheduled sweep (§4.4.1).
const SweepInterval = time.Second

// RunSweeper runs the scheduled sweep for every registered market once per
// SweepInterval until ctx is cancelled: expiring due GTD orders and
// re-evaluating resting stop/stop_limit orders against last_price.
func (e *Engine) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, mkt := range e.markets.List() {
				mkt := mkt
				e.queue.Submit(mkt.ID, func() { e.sweepMarket(mkt) })
			}
		}
	}
}

func (e *Engine) sweepMarket(mkt *market.Market) {
	st := e.stateFor(mkt.ID)
	now := time.Now()

	for _, o := range e.store.FindActive(mkt.ID, nil) {
		if o.TimeInForce != types.GTD || o.ExpiresAt == nil || o.ExpiresAt.After(now) {
			continue
		}
		if st.book.Cancel(o.ID) != nil {
			e.publishLevel(st, mkt.ID, o.Side, mkt.PriceTicks(o.Price))
		}
		reason := "expired"
		e.transition(o, types.Expired, orderstore.StatusDiff{RejectReason: &reason})
	}

	for id, o := range st.stops {
		if !triggered(o, st.lastPrice) {
			continue
		}
		delete(st.stops, id)
		e.match(st, mkt, e.triggerStop(o))
	}
}
