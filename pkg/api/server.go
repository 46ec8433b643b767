// Package api is the exchange's HTTP transport: read-only REST endpoints for
// unauthenticated market data (markets, order book, trades, candles, ticker)
// with no order submission, and a /ws upgrade
// endpoint handing each connection off to a pkg/hub.Session.
//
// Grounded on the teacher's pkg/api/server.go: a gorilla/mux router under an
// /api/v1 prefix, rs/cors wrapping the whole router, and a respondJSON/
// respondError helper pair. Generalized from the teacher's perp.App-backed
// handlers to the matching/bookagg/marketdata/orderstore/tradestore
// components this module builds instead.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/lattice-exchange/core/pkg/bookagg"
	"github.com/lattice-exchange/core/pkg/hub"
	"github.com/lattice-exchange/core/pkg/market"
	"github.com/lattice-exchange/core/pkg/marketdata"
	"github.com/lattice-exchange/core/pkg/orderstore"
	"github.com/lattice-exchange/core/pkg/tradestore"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Server owns the REST router and the WebSocket hub; Handler returns one
// http.Handler serving both, for the caller to mount on its *http.Server.
type Server struct {
	markets *market.Registry
	book    *bookagg.Aggregator
	candles *marketdata.Builder
	store   *orderstore.Store
	trades  *tradestore.Store
	hub     *hub.Hub
	log     *zap.Logger

	router *mux.Router
}

// AllowedOrigins is the CORS allowlist; the teacher hardcodes a localhost
// dev list the same way, left overridable for deployment via Config.
type Options struct {
	AllowedOrigins []string
}

func NewServer(markets *market.Registry, book *bookagg.Aggregator, candles *marketdata.Builder, store *orderstore.Store, trades *tradestore.Store, h *hub.Hub, log *zap.Logger) *Server {
	s := &Server{
		markets: markets,
		book:    book,
		candles: candles,
		store:   store,
		trades:  trades,
		hub:     h,
		log:     log,
		router:  mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/markets", s.handleGetMarkets).Methods("GET")
	v1.HandleFunc("/markets/{symbol}", s.handleGetMarket).Methods("GET")
	v1.HandleFunc("/markets/{symbol}/orderbook", s.handleGetOrderBook).Methods("GET")
	v1.HandleFunc("/markets/{symbol}/trades", s.handleGetTrades).Methods("GET")
	v1.HandleFunc("/markets/{symbol}/candles", s.handleGetCandles).Methods("GET")
	v1.HandleFunc("/markets/{symbol}/ticker", s.handleGetTicker).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the CORS-wrapped router, ready to hand to an *http.Server
// (so main can control listener lifecycle for graceful shutdown itself,
// unlike the teacher's Start which blocks on http.ListenAndServe directly).
func (s *Server) Handler(opts Options) http.Handler {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// RunHousekeeping delegates to the hub's session heartbeat/idle sweep.
func (s *Server) RunHousekeeping(ctx context.Context) {
	s.hub.RunHousekeeping(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{"code": code, "message": message})
}
