package main

import (
	"time"

	"github.com/lattice-exchange/core/pkg/ledger"
	"github.com/lattice-exchange/core/pkg/marketdata"
	"github.com/lattice-exchange/core/pkg/orderstore"
	"github.com/lattice-exchange/core/pkg/tradestore"
)

// shutdownGrace bounds how long the HTTP server waits for in-flight requests
// to finish on SIGTERM/SIGINT before forcing the process down.
const shutdownGrace = 5 * time.Second

// maybePebble* return (nil, nil) when no data directory is configured, in
// which case the component runs in-memory only — fine for local runs and
// tests, same as passing a nil Backend/Store throughout this codebase.

// Each function returns the component's Store/Backend interface type
// directly (not the concrete *Pebble... type) so an unconfigured directory
// yields a true nil interface rather than a non-nil interface wrapping a
// nil pointer, which every component's "== nil" in-memory fallback relies on.

func maybePebbleLedger(dir string) (ledger.Store, error) {
	if dir == "" {
		return nil, nil
	}
	return ledger.NewPebbleStore(dir)
}

func maybePebbleOrders(dir string) (orderstore.Backend, error) {
	if dir == "" {
		return nil, nil
	}
	return orderstore.NewPebbleBackend(dir)
}

func maybePebbleTrades(dir string) (tradestore.Backend, error) {
	if dir == "" {
		return nil, nil
	}
	return tradestore.NewPebbleBackend(dir)
}

func maybePebbleCandles(dir string) (marketdata.Store, error) {
	if dir == "" {
		return nil, nil
	}
	return marketdata.NewPebbleStore(dir)
}
