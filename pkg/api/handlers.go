package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/lattice-exchange/core/pkg/marketdata"
)

// MarketInfo is the REST-facing view of a market, mirroring the teacher's
// MarketInfo response shape (pkg/api/types.go) with this domain's fields.
type MarketInfo struct {
	Symbol            string `json:"symbol"`
	BaseAsset         string `json:"base_asset"`
	QuoteAsset        string `json:"quote_asset"`
	Status            string `json:"status"`
	PricePrecision    int32  `json:"price_precision"`
	QuantityPrecision int32  `json:"quantity_precision"`
	TickSize          string `json:"tick_size"`
	LotSize           string `json:"lot_size"`
	MinOrderSize      string `json:"min_order_size"`
	MakerFee          string `json:"maker_fee"`
	TakerFee          string `json:"taker_fee"`
}

func (s *Server) handleGetMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.markets.List()
	out := make([]MarketInfo, len(markets))
	for i, m := range markets {
		out[i] = MarketInfo{
			Symbol:            m.Symbol,
			BaseAsset:         m.BaseAsset,
			QuoteAsset:        m.QuoteAsset,
			Status:            m.Status.String(),
			PricePrecision:    m.PricePrecision,
			QuantityPrecision: m.QuantityPrecision,
			TickSize:          m.TickSize.String(),
			LotSize:           m.LotSize.String(),
			MinOrderSize:      m.MinOrderSize.String(),
			MakerFee:          m.MakerFee.String(),
			TakerFee:          m.TakerFee.String(),
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	m, err := s.markets.Get(symbol)
	if err != nil {
		respondError(w, http.StatusNotFound, "MARKET_NOT_FOUND", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, MarketInfo{
		Symbol:            m.Symbol,
		BaseAsset:         m.BaseAsset,
		QuoteAsset:        m.QuoteAsset,
		Status:            m.Status.String(),
		PricePrecision:    m.PricePrecision,
		QuantityPrecision: m.QuantityPrecision,
		TickSize:          m.TickSize.String(),
		LotSize:           m.LotSize.String(),
		MinOrderSize:      m.MinOrderSize.String(),
		MakerFee:          m.MakerFee.String(),
		TakerFee:          m.TakerFee.String(),
	})
}

func (s *Server) handleGetOrderBook(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	m, err := s.markets.Get(symbol)
	if err != nil {
		respondError(w, http.StatusNotFound, "MARKET_NOT_FOUND", err.Error())
		return
	}
	depth := 0
	if d := r.URL.Query().Get("depth"); d != "" {
		depth, _ = strconv.Atoi(d)
	}
	snap := s.book.Snapshot(symbol, depth)
	respondJSON(w, http.StatusOK, priceBookResponse(m, snap))
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}
	respondJSON(w, http.StatusOK, s.trades.ByMarket(symbol, limit))
}

func (s *Server) handleGetCandles(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	intervalParam := r.URL.Query().Get("interval")
	if intervalParam == "" {
		intervalParam = "1m"
	}
	interval, err := marketdata.ParseInterval(intervalParam)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INTERVAL", err.Error())
		return
	}
	limit := 500
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}
	candles, err := s.candles.GetCandles(symbol, interval, limit, nil, nil)
	if err != nil {
		respondError(w, http.StatusNotFound, "MARKET_NOT_FOUND", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, candles)
}

func (s *Server) handleGetTicker(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	ticker, ok := s.candles.GetTicker(symbol)
	if !ok {
		respondError(w, http.StatusNotFound, "NO_TICKER_DATA", "no ticker data for "+symbol)
		return
	}
	respondJSON(w, http.StatusOK, ticker)
}
