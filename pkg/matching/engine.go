// Package matching implements the per-market matching engine (C4): the
// acceptance gate, price-time priority matching, order-type semantics, self-
// trade prevention, fee computation, and transactional trade settlement.
//
// Grounded on the teacher's heap-backed OrderBook
// (pkg/app/core/orderbook/{orderbook,heap}.go) for the book half, and its
// AccountManager lock/unlock pattern (pkg/app/core/account_manager.go) for
// the settlement half — generalized here to route every balance mutation
// through pkg/ledger's transactional SettleFill instead of touching account
// fields directly, and to decimal quantities/prices instead of int64 cents.
package matching

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lattice-exchange/core/pkg/events"
	"github.com/lattice-exchange/core/pkg/idgen"
	"github.com/lattice-exchange/core/pkg/ledger"
	"github.com/lattice-exchange/core/pkg/market"
	"github.com/lattice-exchange/core/pkg/matchqueue"
	"github.com/lattice-exchange/core/pkg/money"
	"github.com/lattice-exchange/core/pkg/orderstore"
	"github.com/lattice-exchange/core/pkg/resolvers"
	"github.com/lattice-exchange/core/pkg/tradestore"
	"github.com/lattice-exchange/core/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// slippageCap bounds the implied quote budget for a market buy when the
// caller does not supply one (§4.4 acceptance gate step 5).
var slippageCap = decimal.NewFromFloat(0.05)

// maxTransientRetries is the small bound on retrying a transient fault
// (ledger/store contention) before halting the market (§4.4 "Failure
// semantics").
const maxTransientRetries = 3

type lockInfo struct {
	asset   string
	amount  money.Amount // remaining amount still locked and attributable to this order
}

type marketState struct {
	book       *book
	tradeSeq   *idgen.Sequencer
	obSeq      *idgen.Sequencer // order book delta sequence (§4.3 gap detection)
	lastPrice  money.Amount
	halted     bool
	haltReason string
	stops      map[string]*types.Order // resting stop/stop_limit orders awaiting trigger
}

// Engine is the matching engine for every market in the registry. Each
// market's state mutations are serialized through its own matchqueue worker;
// independent markets proceed concurrently (§5).
type Engine struct {
	markets *market.Registry
	ledger  *ledger.Ledger
	store   *orderstore.Store
	trades  *tradestore.Store // optional; nil means trades are only published, not persisted
	fee     resolvers.Fee
	risk    resolvers.Risk
	bus     *events.Bus
	queue   *matchqueue.Manager
	log     *zap.Logger

	mu     sync.Mutex
	states map[string]*marketState
	locks  map[string]*lockInfo // order id -> remaining attributable lock
}

func NewEngine(markets *market.Registry, lg *ledger.Ledger, store *orderstore.Store, trades *tradestore.Store, fee resolvers.Fee, risk resolvers.Risk, bus *events.Bus, log *zap.Logger) *Engine {
	return &Engine{
		markets: markets,
		ledger:  lg,
		store:   store,
		trades:  trades,
		fee:     fee,
		risk:    risk,
		bus:     bus,
		queue:   matchqueue.NewManager(),
		log:     log,
		states:  make(map[string]*marketState),
		locks:   make(map[string]*lockInfo),
	}
}

func (e *Engine) stateFor(marketID string) *marketState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[marketID]
	if !ok {
		var lastTradeSeq int64
		if e.trades != nil {
			if last := e.trades.ByMarket(marketID, 1); len(last) > 0 {
				lastTradeSeq = last[0].Sequence
			}
		}
		st = &marketState{book: newBook(), tradeSeq: idgen.NewSequencer(lastTradeSeq), obSeq: idgen.NewSequencer(0), stops: make(map[string]*types.Order)}
		e.states[marketID] = st
	}
	return st
}

// PlaceOrder runs the full acceptance gate and matching cycle for req,
// serialized on req.MarketID's command queue.
func (e *Engine) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceResult, error) {
	// Idempotent re-submission check happens before any side effect, per §4.2.
	if req.ClientOrderID != "" {
		if existing, ok := e.store.FindByClientOrderID(req.UserID, req.ClientOrderID); ok {
			return &PlaceResult{Order: existing}, nil
		}
	}

	mkt, err := e.markets.Get(req.MarketID)
	if err != nil {
		return nil, err
	}

	priceRequired := req.Type == types.Limit || req.Type == types.StopLimit
	checkPrice := req.Price
	if req.Type == types.Stop {
		checkPrice = req.StopPrice // stop has no limit price; validate against stop_price instead
	}
	if req.Type != types.Market {
		if err := mkt.ValidateOrder(checkPrice, req.Quantity, priceRequired || req.Type == types.Stop); err != nil {
			return nil, err
		}
	} else {
		if err := mkt.ValidateOrder(money.Zero, req.Quantity, false); err != nil {
			return nil, err
		}
	}

	notionalEstimate := req.Quantity
	if money.IsPositive(req.Price) {
		notionalEstimate = req.Quantity.Mul(req.Price)
	}
	if e.risk != nil {
		if err := e.risk.Allow(ctx, req.UserID, req.MarketID, req.Side, notionalEstimate); err != nil {
			return nil, err
		}
	}

	var result *PlaceResult
	e.queue.Submit(req.MarketID, func() {
		result, err = e.placeLocked(ctx, mkt, req)
	})
	return result, err
}

// placeLocked runs entirely on req.MarketID's single worker goroutine: the
// acceptance gate's balance lock, order persistence, and matching all happen
// without suspension once started, per §5's "must complete before the next
// aggressor is processed for that market".
func (e *Engine) placeLocked(ctx context.Context, mkt *market.Market, req PlaceOrderRequest) (*PlaceResult, error) {
	st := e.stateFor(req.MarketID)
	if st.halted {
		return nil, fmt.Errorf("matching: market %s halted: %s", req.MarketID, st.haltReason)
	}

	if req.Type == types.Market && req.PostOnly {
		return e.rejectNew(req, "post_only market order would always cross")
	}

	now := time.Now()
	o := &types.Order{
		ID:                  idgen.NewID(),
		ClientOrderID:       req.ClientOrderID,
		UserID:              req.UserID,
		MarketID:            req.MarketID,
		Side:                req.Side,
		Type:                req.Type,
		TimeInForce:         req.TimeInForce,
		Price:               req.Price,
		StopPrice:           req.StopPrice,
		Quantity:            req.Quantity,
		FilledQuantity:      money.Zero,
		Status:              types.Pending,
		PostOnly:            req.PostOnly,
		ReduceOnly:          req.ReduceOnly,
		SelfTradePrevention: req.SelfTradePrevention,
		ExpiresAt:           req.ExpiresAt,
		AcceptedAt:          now,
		UpdatedAt:           now,
	}

	if err := e.lockForOrder(mkt, o, req.QuoteBudget, st); err != nil {
		return e.rejectNew(req, err.Error())
	}

	existing, created, err := e.store.Create(o)
	if err != nil {
		e.releaseLock(o)
		return nil, err
	}
	if !created {
		// Lost a race against a concurrent duplicate client_order_id
		// submission: release this request's lock and hand back the
		// order that actually won (§4.2 idempotent re-submission).
		e.releaseLock(o)
		return &PlaceResult{Order: existing}, nil
	}

	if o.Type == types.Stop || o.Type == types.StopLimit {
		if !triggered(o, st.lastPrice) {
			st.stops[o.ID] = o
			e.transition(o, types.Open, orderstore.StatusDiff{})
			return &PlaceResult{Order: o}, nil
		}
		o = e.triggerStop(o)
	}

	trades := e.match(st, mkt, o)
	return &PlaceResult{Order: o, Trades: trades}, nil
}

func (e *Engine) rejectNew(req PlaceOrderRequest, reason string) (*PlaceResult, error) {
	now := time.Now()
	o := &types.Order{
		ID: idgen.NewID(), ClientOrderID: req.ClientOrderID, UserID: req.UserID, MarketID: req.MarketID,
		Side: req.Side, Type: req.Type, TimeInForce: req.TimeInForce, Price: req.Price, StopPrice: req.StopPrice,
		Quantity: req.Quantity, Status: types.Rejected, RejectReason: reason, AcceptedAt: now, UpdatedAt: now,
	}
	return &PlaceResult{Order: o}, nil
}

// triggered reports whether a stop/stop_limit order's trigger condition is
// satisfied by the market's current last price (§4.4).
func triggered(o *types.Order, lastPrice money.Amount) bool {
	if lastPrice.IsZero() {
		return false
	}
	if o.Side == types.Buy {
		return lastPrice.GreaterThanOrEqual(o.StopPrice)
	}
	return lastPrice.LessThanOrEqual(o.StopPrice)
}

// triggerStop converts a triggered stop into a market order (or a triggered
// stop_limit into a limit order at its stored price), per §4.4.
func (e *Engine) triggerStop(o *types.Order) *types.Order {
	if o.Type == types.Stop {
		o.Type = types.Market
	} else {
		o.Type = types.Limit
	}
	o.UpdatedAt = time.Now()
	return o
}

// lockForOrder locks the balance this order needs before it can be accepted
// (§4.4 acceptance gate step 5), and records how much remains attributable
// to it so later fills/cancel/expiry can release the right amount.
func (e *Engine) lockForOrder(mkt *market.Market, o *types.Order, quoteBudget money.Amount, st *marketState) error {
	if o.Side == types.Sell {
		if err := e.ledger.Lock(o.UserID, mkt.BaseAsset, o.Quantity); err != nil {
			return err
		}
		e.setLock(o.ID, mkt.BaseAsset, o.Quantity)
		return nil
	}

	var notional money.Amount
	switch {
	case money.IsPositive(o.Price):
		notional = o.Quantity.Mul(o.Price)
	case money.IsPositive(quoteBudget):
		notional = quoteBudget
	default:
		bestAskTicks, ok := st.book.bestAskTicks()
		if !ok {
			return fmt.Errorf("cannot estimate market buy budget: no resting asks")
		}
		bestAsk := mkt.TicksToPrice(bestAskTicks)
		notional = o.Quantity.Mul(bestAsk).Mul(decimal.NewFromInt(1).Add(slippageCap))
	}

	takerRate := mkt.TakerFee
	if e.fee != nil {
		if rate, err := e.fee.RateFor(context.Background(), o.UserID, mkt.ID); err == nil {
			takerRate = rate.Taker
		}
	}
	lockAmount := notional.Mul(decimal.NewFromInt(1).Add(takerRate))
	if err := e.ledger.Lock(o.UserID, mkt.QuoteAsset, lockAmount); err != nil {
		return err
	}
	e.setLock(o.ID, mkt.QuoteAsset, lockAmount)
	return nil
}

func (e *Engine) setLock(orderID, asset string, amount money.Amount) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.locks[orderID] = &lockInfo{asset: asset, amount: amount}
}

// debitLock records that amount of an order's attributable lock was just
// consumed by a fill (moved from locked to the counterparty via SettleFill).
func (e *Engine) debitLock(orderID string, amount money.Amount) {
	e.mu.Lock()
	defer e.mu.Unlock()
	li, ok := e.locks[orderID]
	if !ok {
		return
	}
	li.amount = li.amount.Sub(amount)
	if li.amount.IsNegative() {
		li.amount = money.Zero
	}
}

// releaseLock unlocks whatever remains attributable to an order that is now
// terminal (filled, cancelled, rejected, expired).
func (e *Engine) releaseLock(o *types.Order) {
	e.mu.Lock()
	li, ok := e.locks[o.ID]
	if ok {
		delete(e.locks, o.ID)
	}
	e.mu.Unlock()
	if !ok || !money.IsPositive(li.amount) {
		return
	}
	if err := e.ledger.Unlock(o.UserID, li.asset, li.amount); err != nil && e.log != nil {
		e.log.Warn("matching: failed to release residual lock", zap.String("order", o.ID), zap.Error(err))
	}
}

// publishLevel emits an order book delta reflecting the current aggregate
// quantity resting at (side, ticks), for the order book aggregator (§4.3).
func (e *Engine) publishLevel(st *marketState, marketID string, side types.Side, ticks int64) {
	if e.bus == nil {
		return
	}
	qty := st.book.LevelQuantity(side, ticks)
	kind := events.LevelChanged
	if !money.IsPositive(qty) {
		kind = events.LevelClosed
	}
	e.bus.PublishOrderBookDelta(events.OrderBookDelta{
		MarketID:   marketID,
		Sequence:   st.obSeq.Next(),
		Side:       side,
		PriceTicks: ticks,
		Quantity:   qty,
		Kind:       kind,
		At:         time.Now(),
	})
}

func (e *Engine) transition(o *types.Order, status types.Status, diff orderstore.StatusDiff) {
	o.Status = status
	o.UpdatedAt = time.Now()
	if diff.FilledQuantity != nil {
		o.FilledQuantity = *diff.FilledQuantity
	}
	if diff.AveragePrice != nil {
		o.AveragePrice = *diff.AveragePrice
	}
	if diff.RejectReason != nil {
		o.RejectReason = *diff.RejectReason
	}
	if err := e.store.UpdateStatus(o.ID, status, diff); err != nil && e.log != nil {
		e.log.Warn("matching: order status persistence failed", zap.String("order", o.ID), zap.Error(err))
	}
	if o.IsClosed() {
		e.releaseLock(o)
	}
	if e.bus != nil {
		e.bus.PublishOrderUpdated(events.OrderUpdated{Order: o})
	}
}
