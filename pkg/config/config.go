// Package config is the exchange's configuration surface: a Default(),
// overlaid by a .env file and then environment variables (ENV > .env >
// defaults), the same precedence and godotenv usage as the teacher's
// params/config.go.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Listen is the HTTP/WebSocket listen address and CORS allowlist.
type Listen struct {
	Addr           string
	AllowedOrigins []string
}

// Storage is where each Pebble-backed component keeps its data directory.
// Empty means in-memory only (no Backend passed to New()), useful for tests
// and local demos.
type Storage struct {
	LedgerDir  string
	OrdersDir  string
	TradesDir  string
	CandlesDir string
}

// Engine controls which markets cmd/exchanged seeds at startup. The sweep
// cadence itself is matching.SweepInterval, a package constant rather than a
// runtime knob (§4.4.1 fixes it at 1s).
type Engine struct {
	Markets []string
}

// Hub controls the subscription hub's session policy.
type Hub struct {
	HeartbeatIntervalMS int
	IdleTimeoutMS       int
}

type Config struct {
	Listen  Listen
	Storage Storage
	Engine  Engine
	Hub     Hub
	LogFile string
}

// Default mirrors the teacher's params.Default(): a Config that runs
// standalone with no external files, same as a fresh devnet node.
func Default() Config {
	return Config{
		Listen: Listen{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Storage: Storage{},
		Engine: Engine{
			Markets: []string{"BTC-USDT"},
		},
		Hub: Hub{
			HeartbeatIntervalMS: 30000,
			IdleTimeoutMS:       60000,
		},
		LogFile: "data/exchanged.log",
	}
}

// LoadFromEnv loads a .env file (optional, won't fail if absent) and then
// overrides Default() with whatever environment variables are set, same
// precedence as the teacher's params.LoadFromEnv.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		cfg.Listen.Addr = addr
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.Listen.AllowedOrigins = strings.Split(origins, ",")
	}

	if dir := os.Getenv("LEDGER_DATA_DIR"); dir != "" {
		cfg.Storage.LedgerDir = dir
	}
	if dir := os.Getenv("ORDERS_DATA_DIR"); dir != "" {
		cfg.Storage.OrdersDir = dir
	}
	if dir := os.Getenv("TRADES_DATA_DIR"); dir != "" {
		cfg.Storage.TradesDir = dir
	}
	if dir := os.Getenv("CANDLES_DATA_DIR"); dir != "" {
		cfg.Storage.CandlesDir = dir
	}

	if markets := os.Getenv("ENGINE_MARKETS"); markets != "" {
		cfg.Engine.Markets = strings.Split(markets, ",")
	}

	if ms := os.Getenv("HUB_HEARTBEAT_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil {
			cfg.Hub.HeartbeatIntervalMS = n
		}
	}
	if ms := os.Getenv("HUB_IDLE_TIMEOUT_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil {
			cfg.Hub.IdleTimeoutMS = n
		}
	}

	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		cfg.LogFile = logFile
	}

	return cfg
}
