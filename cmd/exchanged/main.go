// Command exchanged runs the exchange core as a standalone process: balance
// ledger, order store, matching engine, order book aggregator, candle
// builder, subscription hub, and the REST/WebSocket transport in front of
// them.
//
// Grounded on the teacher's cmd/node/main.go: config loaded via
// params.LoadFromEnv, a file+console zap logger, signal.NotifyContext for
// graceful shutdown, and components started as goroutines against that one
// context before the main loop blocks.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lattice-exchange/core/pkg/api"
	"github.com/lattice-exchange/core/pkg/bookagg"
	"github.com/lattice-exchange/core/pkg/config"
	"github.com/lattice-exchange/core/pkg/events"
	"github.com/lattice-exchange/core/pkg/hub"
	"github.com/lattice-exchange/core/pkg/ledger"
	"github.com/lattice-exchange/core/pkg/market"
	"github.com/lattice-exchange/core/pkg/marketdata"
	"github.com/lattice-exchange/core/pkg/matching"
	"github.com/lattice-exchange/core/pkg/money"
	"github.com/lattice-exchange/core/pkg/orderstore"
	"github.com/lattice-exchange/core/pkg/replay"
	"github.com/lattice-exchange/core/pkg/resolvers"
	"github.com/lattice-exchange/core/pkg/tradestore"
	"github.com/lattice-exchange/core/pkg/util"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("config_loaded", zap.String("listen_addr", cfg.Listen.Addr), zap.Strings("markets", cfg.Engine.Markets))

	markets := seedMarkets(cfg.Engine.Markets)

	ledgerStore, err := maybePebbleLedger(cfg.Storage.LedgerDir)
	if err != nil {
		logger.Fatal("ledger_store_open_failed", zap.Error(err))
	}
	bal := ledger.New(ledgerStore, logger)

	orderBackend, err := maybePebbleOrders(cfg.Storage.OrdersDir)
	if err != nil {
		logger.Fatal("order_store_open_failed", zap.Error(err))
	}
	orders, err := orderstore.New(orderBackend)
	if err != nil {
		logger.Fatal("order_store_replay_failed", zap.Error(err))
	}

	tradeBackend, err := maybePebbleTrades(cfg.Storage.TradesDir)
	if err != nil {
		logger.Fatal("trade_store_open_failed", zap.Error(err))
	}
	trades, err := tradestore.New(tradeBackend)
	if err != nil {
		logger.Fatal("trade_store_replay_failed", zap.Error(err))
	}

	candleStore, err := maybePebbleCandles(cfg.Storage.CandlesDir)
	if err != nil {
		logger.Fatal("candle_store_open_failed", zap.Error(err))
	}
	candles := marketdata.NewBuilder(candleStore)
	book := bookagg.New()

	// Rebuild derived views from what survived a restart before the event
	// bus starts delivering live trades/deltas to the same sinks.
	replay.Rebuild(markets, orders, trades, book, candles)

	bus := events.NewBus()
	bus.Subscribe(book)
	bus.Subscribe(candles) // must precede hub: hub's OnTradeExecuted reads candles' just-updated state

	identity := resolvers.NewStaticIdentity()
	fee := resolvers.NewFlatFee(money.Zero, money.Zero)

	engine := matching.NewEngine(markets, bal, orders, trades, fee, resolvers.AllowAllRisk{}, bus, logger)

	h := hub.New(engine, markets, book, candles, orders, trades, identity,
		time.Duration(cfg.Hub.HeartbeatIntervalMS)*time.Millisecond,
		time.Duration(cfg.Hub.IdleTimeoutMS)*time.Millisecond, logger)
	bus.Subscribe(h)

	server := api.NewServer(markets, book, candles, orders, trades, h, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go engine.RunSweeper(ctx)
	go server.RunHousekeeping(ctx)

	httpServer := &http.Server{Addr: cfg.Listen.Addr, Handler: server.Handler(api.Options{AllowedOrigins: cfg.Listen.AllowedOrigins})}
	go func() {
		logger.Info("api_server_starting", zap.String("addr", cfg.Listen.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api_server_failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
}

// seedMarkets registers one BTC-USDT-shaped market per configured symbol,
// since this standalone binary has no separate market-listing admin surface
// (§ Non-goals exclude one; an operator wanting real per-market parameters
// wires market.Registry.Register itself before handing it to NewEngine).
func seedMarkets(symbols []string) *market.Registry {
	registry := market.NewRegistry()
	for _, symbol := range symbols {
		parts := splitSymbol(symbol)
		m := &market.Market{
			ID:                symbol,
			Symbol:            symbol,
			BaseAsset:         parts[0],
			QuoteAsset:        parts[1],
			Status:            market.Active,
			TradingEnabled:    true,
			PricePrecision:    2,
			QuantityPrecision: 6,
			TickSize:          mustAmount("0.01"),
			LotSize:           mustAmount("0.000001"),
			MinOrderSize:      mustAmount("0.000001"),
			MakerFee:          mustAmount("0.001"),
			TakerFee:          mustAmount("0.002"),
		}
		if err := registry.Register(m); err != nil {
			log.Fatalf("seed market %s: %v", symbol, err)
		}
	}
	return registry
}

func splitSymbol(symbol string) [2]string {
	for i := range symbol {
		if symbol[i] == '-' || symbol[i] == '/' {
			return [2]string{symbol[:i], symbol[i+1:]}
		}
	}
	return [2]string{symbol, "USD"}
}

func mustAmount(s string) money.Amount {
	a, err := money.Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}
