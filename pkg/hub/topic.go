package hub

import "strings"

// Topic kinds, per §4.6.
const (
	topicTicker    = "ticker"
	topicTrades    = "trades"
	topicOrderBook = "orderbook"
	topicCandles   = "candles"
	topicOrders    = "orders"
)

// parseTopic splits a topic string like "ticker:BTC/USDT" or
// "candles:BTC/USDT:1m" into its kind and arguments.
func parseTopic(topic string) (kind string, args []string) {
	parts := strings.Split(topic, ":")
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}

func ordersTopic(userID string) string { return topicOrders + ":" + userID }

func tickerTopic(symbol string) string { return topicTicker + ":" + symbol }

func tradesTopic(symbol string) string { return topicTrades + ":" + symbol }

func orderBookTopic(symbol string) string { return topicOrderBook + ":" + symbol }

func candlesTopic(symbol, interval string) string { return topicCandles + ":" + symbol + ":" + interval }
