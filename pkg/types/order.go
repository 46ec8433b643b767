// Package types holds the data model shared across the balance ledger, order
// store, matching engine, order book aggregator, and candle builder: Order,
// Trade, and the small sum types the spec calls out as tagged variants
// (OrderType, TimeInForce, SelfTradePrevention) rather than duck-typed
// "actions".
package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/lattice-exchange/core/pkg/money"
)

// Side is the direction of an order.
type Side int8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// ParseSide parses the wire representation of Side ("buy"/"sell", case
// insensitive), for the hub's placeOrder request (§6).
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	default:
		return 0, fmt.Errorf("types: unknown side %q", s)
	}
}

// OrderType is the order's matching behavior.
type OrderType int8

const (
	Market OrderType = iota
	Limit
	Stop
	StopLimit
)

func (t OrderType) String() string {
	switch t {
	case Market:
		return "market"
	case Limit:
		return "limit"
	case Stop:
		return "stop"
	case StopLimit:
		return "stop_limit"
	default:
		return "unknown"
	}
}

// ParseOrderType parses the wire representation of OrderType (§6).
func ParseOrderType(s string) (OrderType, error) {
	switch strings.ToLower(s) {
	case "market":
		return Market, nil
	case "limit":
		return Limit, nil
	case "stop":
		return Stop, nil
	case "stop_limit":
		return StopLimit, nil
	default:
		return 0, fmt.Errorf("types: unknown order type %q", s)
	}
}

// TimeInForce controls how long an order may rest and how it handles a
// partial fill.
type TimeInForce int8

const (
	GTC TimeInForce = iota // Good-Till-Cancelled
	IOC                    // Immediate-Or-Cancel
	FOK                    // Fill-Or-Kill
	GTD                    // Good-Till-Date
)

func (t TimeInForce) String() string {
	switch t {
	case GTC:
		return "GTC"
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	case GTD:
		return "GTD"
	default:
		return "unknown"
	}
}

// ParseTimeInForce parses the wire representation of TimeInForce (§6).
func ParseTimeInForce(s string) (TimeInForce, error) {
	switch strings.ToUpper(s) {
	case "GTC":
		return GTC, nil
	case "IOC":
		return IOC, nil
	case "FOK":
		return FOK, nil
	case "GTD":
		return GTD, nil
	default:
		return 0, fmt.Errorf("types: unknown time in force %q", s)
	}
}

// SelfTradePrevention is the policy applied when an aggressor would match
// against its own resting order.
type SelfTradePrevention int8

const (
	STPNone SelfTradePrevention = iota
	STPExpireTaker
	STPExpireMaker
	STPExpireBoth
)

func (p SelfTradePrevention) String() string {
	switch p {
	case STPNone:
		return "none"
	case STPExpireTaker:
		return "expire_taker"
	case STPExpireMaker:
		return "expire_maker"
	case STPExpireBoth:
		return "expire_both"
	default:
		return "unknown"
	}
}

// ParseSelfTradePrevention parses the wire representation of
// SelfTradePrevention (§6); an empty string means STPNone.
func ParseSelfTradePrevention(s string) (SelfTradePrevention, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return STPNone, nil
	case "expire_taker":
		return STPExpireTaker, nil
	case "expire_maker":
		return STPExpireMaker, nil
	case "expire_both":
		return STPExpireBoth, nil
	default:
		return 0, fmt.Errorf("types: unknown self trade prevention %q", s)
	}
}

// Status is an order's position in its lifecycle. Terminal statuses
// (Filled, Cancelled, Rejected, Expired) are immutable once reached.
type Status int8

const (
	Pending Status = iota
	Open
	PartiallyFilled
	Filled
	Cancelled
	Rejected
	Expired
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Open:
		return "open"
	case PartiallyFilled:
		return "partially_filled"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	case Rejected:
		return "rejected"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is one of the lifecycle's immutable end states.
func (s Status) IsTerminal() bool {
	switch s {
	case Filled, Cancelled, Rejected, Expired:
		return true
	default:
		return false
	}
}

// Order is the canonical record of a single order, per §3.
type Order struct {
	ID            string
	ClientOrderID string // unique per user; empty if the caller didn't supply one
	UserID        string
	MarketID      string

	Side                 Side
	Type                 OrderType
	TimeInForce          TimeInForce
	Price                money.Amount // required for limit/stop_limit
	StopPrice            money.Amount // required for stop/stop_limit
	Quantity             money.Amount
	FilledQuantity       money.Amount
	AveragePrice         money.Amount
	Status               Status
	PostOnly             bool
	ReduceOnly           bool
	SelfTradePrevention  SelfTradePrevention

	RejectReason string // populated when Status == Rejected or Cancelled-by-policy

	ExpiresAt    *time.Time // required for GTD
	AcceptedAt   time.Time
	UpdatedAt    time.Time
}

// RemainingQuantity returns Quantity - FilledQuantity, which together with
// FilledQuantity must always sum back to Quantity (§3 invariant).
func (o *Order) RemainingQuantity() money.Amount {
	return o.Quantity.Sub(o.FilledQuantity)
}

// IsClosed reports whether the order can no longer receive fills.
func (o *Order) IsClosed() bool {
	return o.Status.IsTerminal()
}

// Clone returns a value copy of o, safe to hand to a goroutine that isn't
// part of this order's market's serialized queue (§5). Every field is
// either a value type or, for ExpiresAt, a pointer set once at acceptance
// and never mutated afterward, so a shallow copy is sufficient.
func (o *Order) Clone() *Order {
	cp := *o
	return &cp
}

// ApplyFill updates filled/average-price bookkeeping for one fill of qty at
// price. The caller is responsible for the corresponding status transition.
func (o *Order) ApplyFill(qty, price money.Amount) {
	prevFilled := o.FilledQuantity
	newFilled := prevFilled.Add(qty)
	if prevFilled.IsZero() {
		o.AveragePrice = price
	} else {
		// Volume-weighted average: (oldAvg*oldQty + price*qty) / newQty
		weighted := o.AveragePrice.Mul(prevFilled).Add(price.Mul(qty))
		o.AveragePrice = weighted.Div(newFilled)
	}
	o.FilledQuantity = newFilled
}
