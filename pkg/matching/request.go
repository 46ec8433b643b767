package matching

import (
	"time"

	"github.com/lattice-exchange/core/pkg/money"
	"github.com/lattice-exchange/core/pkg/types"
)

// PlaceOrderRequest is the normalized input to Engine.PlaceOrder, already
// past payload parsing (the hub's placeOrder request maps onto this 1:1).
type PlaceOrderRequest struct {
	UserID              string
	MarketID            string
	Side                types.Side
	Type                types.OrderType
	TimeInForce         types.TimeInForce
	Price               money.Amount // required for limit/stop_limit
	StopPrice           money.Amount // required for stop/stop_limit
	Quantity            money.Amount
	PostOnly            bool
	ReduceOnly          bool
	SelfTradePrevention types.SelfTradePrevention
	ClientOrderID       string
	ExpiresAt           *time.Time

	// QuoteBudget bounds a market buy's quote-asset lock when the caller
	// wants a tighter cap than the engine's best-ask-based estimate (§4.4
	// acceptance gate step 5).
	QuoteBudget money.Amount
}

// PlaceResult is what the engine hands back to the caller: the order as it
// stands after the placement cycle completed (accepted/rejected/filled/
// resting) plus any trades the placement itself produced.
type PlaceResult struct {
	Order  *types.Order
	Trades []*types.Trade
}
