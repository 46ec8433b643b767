package hub

import (
	"github.com/lattice-exchange/core/pkg/bookagg"
	"github.com/lattice-exchange/core/pkg/market"
	"github.com/lattice-exchange/core/pkg/money"
)

// priceLevel is the wire shape of one book rung: the aggregator tracks price
// in integer ticks internally, but the hub's public API speaks decimal
// price, same as every other market-facing field (§4.3, §6).
type priceLevel struct {
	Price    money.Amount `json:"price"`
	Quantity money.Amount `json:"quantity"`
}

type priceBook struct {
	MarketID string       `json:"market_id"`
	Sequence int64        `json:"sequence"`
	Bids     []priceLevel `json:"bids"`
	Asks     []priceLevel `json:"asks"`
}

func toPriceBook(mkt *market.Market, snap bookagg.Snapshot) priceBook {
	out := priceBook{MarketID: snap.MarketID, Sequence: snap.Sequence}
	out.Bids = make([]priceLevel, len(snap.Bids))
	for i, l := range snap.Bids {
		out.Bids[i] = priceLevel{Price: mkt.TicksToPrice(l.PriceTicks), Quantity: l.Quantity}
	}
	out.Asks = make([]priceLevel, len(snap.Asks))
	for i, l := range snap.Asks {
		out.Asks[i] = priceLevel{Price: mkt.TicksToPrice(l.PriceTicks), Quantity: l.Quantity}
	}
	return out
}
