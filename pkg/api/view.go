package api

import (
	"github.com/lattice-exchange/core/pkg/bookagg"
	"github.com/lattice-exchange/core/pkg/market"
)

type priceLevel struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

type orderBookResponse struct {
	Symbol   string       `json:"symbol"`
	Sequence int64        `json:"sequence"`
	Bids     []priceLevel `json:"bids"`
	Asks     []priceLevel `json:"asks"`
}

func priceBookResponse(m *market.Market, snap bookagg.Snapshot) orderBookResponse {
	out := orderBookResponse{Symbol: snap.MarketID, Sequence: snap.Sequence}
	out.Bids = make([]priceLevel, len(snap.Bids))
	for i, l := range snap.Bids {
		out.Bids[i] = priceLevel{Price: m.TicksToPrice(l.PriceTicks).String(), Quantity: l.Quantity.String()}
	}
	out.Asks = make([]priceLevel, len(snap.Asks))
	for i, l := range snap.Asks {
		out.Asks[i] = priceLevel{Price: m.TicksToPrice(l.PriceTicks).String(), Quantity: l.Quantity.String()}
	}
	return out
}
