package matching

import (
	"context"
	"time"

	"github.com/lattice-exchange/core/pkg/events"
	"github.com/lattice-exchange/core/pkg/idgen"
	"github.com/lattice-exchange/core/pkg/ledger"
	"github.com/lattice-exchange/core/pkg/market"
	"github.com/lattice-exchange/core/pkg/money"
	"github.com/lattice-exchange/core/pkg/orderstore"
	"github.com/lattice-exchange/core/pkg/types"
	"go.uber.org/zap"
)

// match runs the price-time priority matching cycle for aggressor o against
// st.book, applying order-type semantics, self-trade prevention, fee
// computation, and transactional settlement per fill (§4.4). The caller
// must already be running on o.MarketID's single matchqueue worker.
func (e *Engine) match(st *marketState, mkt *market.Market, o *types.Order) []*types.Trade {
	if o.TimeInForce == types.FOK && !e.canFillFully(st, mkt, o) {
		reason := "fill_or_kill_unfillable"
		e.transition(o, types.Rejected, orderstore.StatusDiff{RejectReason: &reason})
		return nil
	}

	var trades []*types.Trade
	aggressorDone := false

	for !aggressorDone && money.IsPositive(o.RemainingQuantity()) {
		maker, makerTicks, ok := st.book.frontOpposite(o.Side)
		if !ok {
			break
		}
		if !crosses(o, mkt, makerTicks) {
			break
		}

		if maker.UserID == o.UserID && o.SelfTradePrevention != types.STPNone {
			switch o.SelfTradePrevention {
			case types.STPExpireTaker:
				e.cancelResidual(o, "self_trade_prevented")
				aggressorDone = true
				continue
			case types.STPExpireMaker:
				e.cancelResting(st, maker, makerTicks, "self_trade_prevented")
				continue
			case types.STPExpireBoth:
				e.cancelResting(st, maker, makerTicks, "self_trade_prevented")
				e.cancelResidual(o, "self_trade_prevented")
				aggressorDone = true
				continue
			}
		}

		matchQty := money.Min(o.RemainingQuantity(), maker.RemainingQuantity())
		price := mkt.TicksToPrice(makerTicks)

		trade, ok := e.settleFill(st, mkt, o, maker, matchQty, price)
		if !ok {
			// Transactional settlement failed after exhausting retries; the
			// market is now halted and no further matching proceeds.
			aggressorDone = true
			continue
		}
		trades = append(trades, trade)

		if maker.IsClosed() {
			st.book.removeFront(maker.Side, makerTicks)
		}
		e.publishLevel(st, mkt.ID, maker.Side, makerTicks)
	}

	e.finalizeAggressor(st, mkt, o)
	return trades
}

// crosses reports whether aggressor o's limit (or market, which always
// crosses) permits trading at makerTicks.
func crosses(o *types.Order, mkt *market.Market, makerTicks int64) bool {
	if o.Type == types.Market {
		return true
	}
	priceTicks := mkt.PriceTicks(o.Price)
	if o.Side == types.Buy {
		return priceTicks >= makerTicks
	}
	return priceTicks <= makerTicks
}

// canFillFully simulates a FOK order against the resting book without
// mutating anything, to decide whether the full quantity can be
// immediately filled at prices satisfying the limit (§4.4).
func (e *Engine) canFillFully(st *marketState, mkt *market.Market, o *types.Order) bool {
	need := o.Quantity
	for _, lvl := range st.book.Levels(o.Side.Opposite()) {
		if o.Type != types.Market {
			priceTicks := mkt.PriceTicks(o.Price)
			if o.Side == types.Buy && lvl.PriceTicks > priceTicks {
				break
			}
			if o.Side == types.Sell && lvl.PriceTicks < priceTicks {
				break
			}
		}
		need = need.Sub(money.Min(need, lvl.Quantity))
		if !money.IsPositive(need) {
			return true
		}
	}
	return !money.IsPositive(need)
}

// finalizeAggressor applies the order-type-specific disposition once the
// matching loop for this placement has stopped: rest a GTC/GTD residual,
// cancel an IOC/market residual, or mark fully filled.
func (e *Engine) finalizeAggressor(st *marketState, mkt *market.Market, o *types.Order) {
	if o.IsClosed() {
		return // already terminalized by self-trade-prevention or settlement failure
	}
	remaining := o.RemainingQuantity()
	if !money.IsPositive(remaining) {
		e.transition(o, types.Filled, orderstore.StatusDiff{})
		return
	}

	switch o.Type {
	case types.Limit, types.StopLimit:
		switch o.TimeInForce {
		case types.GTC, types.GTD:
			status := types.Open
			if money.IsPositive(o.FilledQuantity) {
				status = types.PartiallyFilled
			}
			ticks := mkt.PriceTicks(o.Price)
			st.book.Rest(ticks, o)
			e.transition(o, status, orderstore.StatusDiff{})
			e.publishLevel(st, mkt.ID, o.Side, ticks)
		default: // IOC, FOK (FOK either fully filled above or rejected before matching)
			e.cancelResidual(o, "")
		}
	case types.Market, types.Stop:
		e.cancelResidual(o, "insufficient_liquidity")
	}
}

// cancelResidual marks the aggressor's unfilled remainder cancelled,
// unlocking its residual balance. Orders with a partial fill still end
// Cancelled; the fill history lives in FilledQuantity and the emitted trades.
func (e *Engine) cancelResidual(o *types.Order, reason string) {
	diff := orderstore.StatusDiff{}
	if reason != "" {
		o.RejectReason = reason
		diff.RejectReason = &reason
	}
	e.transition(o, types.Cancelled, diff)
}

// cancelResting removes a resting maker from the book and cancels it
// (self-trade prevention's expire_maker/expire_both paths).
func (e *Engine) cancelResting(st *marketState, maker *types.Order, ticks int64, reason string) {
	st.book.removeFront(maker.Side, ticks)
	maker.RejectReason = reason
	e.transition(maker, types.Cancelled, orderstore.StatusDiff{RejectReason: &reason})
	e.publishLevel(st, maker.MarketID, maker.Side, ticks)
}

// settleFill executes one fill: fee computation, transactional balance
// settlement (with bounded retry on transient faults per §4.4), order and
// market bookkeeping, and event publication. Returns ok=false if settlement
// could not complete and the market has been halted.
func (e *Engine) settleFill(st *marketState, mkt *market.Market, taker, maker *types.Order, qty, price money.Amount) (*types.Trade, bool) {
	buyer, seller := taker, maker
	buyerIsTaker := true
	if taker.Side == types.Sell {
		buyer, seller = maker, taker
		buyerIsTaker = false
	}

	buyerRate := e.rateFor(buyer.UserID, mkt.ID, buyerIsTaker)
	sellerRate := e.rateFor(seller.UserID, mkt.ID, !buyerIsTaker)

	notional := qty.Mul(price)
	buyerFee := qty.Mul(buyerRate)
	sellerFee := notional.Mul(sellerRate)

	buyerLeg := ledger.FillLeg{UserID: buyer.UserID, DebitAsset: mkt.QuoteAsset, DebitAmount: notional, CreditAsset: mkt.BaseAsset, CreditAmount: qty.Sub(buyerFee)}
	sellerLeg := ledger.FillLeg{UserID: seller.UserID, DebitAsset: mkt.BaseAsset, DebitAmount: qty, CreditAsset: mkt.QuoteAsset, CreditAmount: notional.Sub(sellerFee)}

	var err error
	for attempt := 0; attempt <= maxTransientRetries; attempt++ {
		if err = e.ledger.SettleFill(buyerLeg, sellerLeg); err == nil {
			break
		}
		time.Sleep(time.Duration(1<<attempt) * 10 * time.Millisecond)
	}
	if err != nil {
		e.haltMarket(st, mkt.ID, "settlement failed after retries: "+err.Error())
		return nil, false
	}

	e.debitLock(buyer.ID, notional)
	e.debitLock(seller.ID, qty)

	buyer.ApplyFill(qty, price)
	seller.ApplyFill(qty, price)
	bStatus := types.PartiallyFilled
	if !money.IsPositive(buyer.RemainingQuantity()) {
		bStatus = types.Filled
	}
	sStatus := types.PartiallyFilled
	if !money.IsPositive(seller.RemainingQuantity()) {
		sStatus = types.Filled
	}
	filled := buyer.FilledQuantity
	avg := buyer.AveragePrice
	e.transition(buyer, bStatus, orderstore.StatusDiff{FilledQuantity: &filled, AveragePrice: &avg})
	filled2 := seller.FilledQuantity
	avg2 := seller.AveragePrice
	e.transition(seller, sStatus, orderstore.StatusDiff{FilledQuantity: &filled2, AveragePrice: &avg2})

	st.lastPrice = price
	mkt.LastPrice = price

	trade := &types.Trade{
		ID:             idgen.NewID(),
		MarketID:       mkt.ID,
		BuyerOrderID:   buyer.ID,
		SellerOrderID:  seller.ID,
		BuyerID:        buyer.UserID,
		SellerID:       seller.UserID,
		Price:          price,
		Quantity:       qty,
		BuyerFee:       buyerFee,
		SellerFee:      sellerFee,
		BuyerFeeAsset:  mkt.BaseAsset,
		SellerFeeAsset: mkt.QuoteAsset,
		IsBuyerMaker:   !buyerIsTaker,
		Sequence:       st.tradeSeq.Next(),
		TradeTime:      time.Now(),
		SettlementStatus: types.SettlementSettled,
	}

	if e.trades != nil {
		if err := e.trades.Save(trade); err != nil && e.log != nil {
			// The fill is already economically final (ledger settled above);
			// a persistence failure here must not unwind it. Log and move on.
			e.log.Warn("matching: failed to persist trade", zap.String("trade_id", trade.ID), zap.Error(err))
		}
	}

	if e.bus != nil {
		e.bus.PublishTrade(events.TradeExecuted{Trade: trade})
	}
	return trade, true
}

func (e *Engine) rateFor(userID, marketID string, isTaker bool) money.Amount {
	if e.fee != nil {
		if rate, err := e.fee.RateFor(context.Background(), userID, marketID); err == nil {
			if isTaker {
				return rate.Taker
			}
			return rate.Maker
		}
	}
	return money.Zero
}

func (e *Engine) haltMarket(st *marketState, marketID, reason string) {
	st.halted = true
	st.haltReason = reason
	if e.log != nil {
		e.log.Error("matching: market halted", zap.String("market", marketID), zap.String("reason", reason))
	}
	if e.bus != nil {
		e.bus.PublishMarketHalted(events.MarketHalted{MarketID: marketID, Reason: reason, At: time.Now()})
	}
}

// ClearHalt resumes acceptance for a market an operator has reconciled
// (§4.4 "requires operator" to clear an EngineHalt).
func (e *Engine) ClearHalt(marketID string) {
	st := e.stateFor(marketID)
	e.mu.Lock()
	st.halted = false
	st.haltReason = ""
	e.mu.Unlock()
}
