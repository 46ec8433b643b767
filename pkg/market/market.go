// Package market defines trading pairs and the parameters that gate order
// acceptance: tick/lot sizing, notional bounds, and trading status.
package market

import (
	"fmt"

	"github.com/lattice-exchange/core/pkg/money"
	"github.com/lattice-exchange/core/pkg/xerrors"
)

// Status is the trading status of a market.
type Status int8

const (
	Active Status = iota
	Inactive
	Maintenance
	Delisted
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Inactive:
		return "inactive"
	case Maintenance:
		return "maintenance"
	case Delisted:
		return "delisted"
	default:
		return "unknown"
	}
}

// Market carries every parameter an incoming order is validated against, and
// the reference fee rates used when the Fee resolver has no per-user override.
type Market struct {
	ID         string
	Symbol     string // "BTC/USDT"
	BaseAsset  string
	QuoteAsset string

	Status         Status
	TradingEnabled bool

	PricePrecision    int32 // decimal places kept on price
	QuantityPrecision int32 // decimal places kept on quantity
	TickSize          money.Amount
	LotSize           money.Amount

	MinOrderSize money.Amount
	MaxOrderSize money.Amount // zero means unbounded
	MinNotional  money.Amount
	MaxNotional  money.Amount // zero means unbounded

	MakerFee money.Amount // reference rate; the Fee resolver may override per user
	TakerFee money.Amount

	LastPrice money.Amount
}

// Validate checks the market's own parameters for internal consistency, as
// distinct from ValidateOrder which checks an order against the market.
func (m *Market) Validate() error {
	if m.Symbol == "" {
		return fmt.Errorf("market: symbol cannot be empty")
	}
	if m.BaseAsset == "" || m.QuoteAsset == "" {
		return fmt.Errorf("market %s: base and quote assets must be set", m.Symbol)
	}
	if !money.IsPositive(m.TickSize) {
		return fmt.Errorf("market %s: tick size must be positive", m.Symbol)
	}
	if !money.IsPositive(m.LotSize) {
		return fmt.Errorf("market %s: lot size must be positive", m.Symbol)
	}
	if !money.IsPositive(m.MinOrderSize) {
		return fmt.Errorf("market %s: min order size must be positive", m.Symbol)
	}
	if money.IsPositive(m.MaxOrderSize) && m.MaxOrderSize.LessThan(m.MinOrderSize) {
		return fmt.Errorf("market %s: max order size below min order size", m.Symbol)
	}
	return nil
}

// ValidateOrder applies the acceptance-gate checks of §4.4 steps 1-2 that
// depend only on the market's own parameters (price/lot alignment, size and
// notional bounds, market status). Risk and balance checks happen elsewhere.
func (m *Market) ValidateOrder(price, quantity money.Amount, priceRequired bool) error {
	if m.Status != Active || !m.TradingEnabled {
		return xerrors.Newf(xerrors.CodeMarketHalted, "market %s is not open for trading (status=%s)", m.Symbol, m.Status)
	}
	if priceRequired {
		if !money.IsPositive(price) {
			return xerrors.New(xerrors.CodeValidation, "price must be positive")
		}
		if !money.DivisibleBy(price, m.TickSize) {
			return xerrors.Newf(xerrors.CodeValidation, "price %s is not a multiple of tick size %s", price, m.TickSize)
		}
	}
	if !money.IsPositive(quantity) {
		return xerrors.New(xerrors.CodeValidation, "quantity must be positive")
	}
	if !money.DivisibleBy(quantity, m.LotSize) {
		return xerrors.Newf(xerrors.CodeValidation, "quantity %s is not a multiple of lot size %s", quantity, m.LotSize)
	}
	if quantity.LessThan(m.MinOrderSize) {
		return xerrors.Newf(xerrors.CodeValidation, "quantity %s below min order size %s", quantity, m.MinOrderSize)
	}
	if money.IsPositive(m.MaxOrderSize) && quantity.GreaterThan(m.MaxOrderSize) {
		return xerrors.Newf(xerrors.CodeValidation, "quantity %s exceeds max order size %s", quantity, m.MaxOrderSize)
	}
	if priceRequired {
		notional := price.Mul(quantity)
		if money.IsPositive(m.MinNotional) && notional.LessThan(m.MinNotional) {
			return xerrors.Newf(xerrors.CodeValidation, "notional %s below min notional %s", notional, m.MinNotional)
		}
		if money.IsPositive(m.MaxNotional) && notional.GreaterThan(m.MaxNotional) {
			return xerrors.Newf(xerrors.CodeValidation, "notional %s exceeds max notional %s", notional, m.MaxNotional)
		}
	}
	return nil
}

// PriceTicks scales a price to an integer tick count for use as an ordered
// map/heap key inside the matching engine.
func (m *Market) PriceTicks(p money.Amount) int64 {
	return money.ToTicks(p, m.PricePrecision)
}

// TicksToPrice is the inverse of PriceTicks.
func (m *Market) TicksToPrice(ticks int64) money.Amount {
	return money.FromTicks(ticks, m.PricePrecision)
}
