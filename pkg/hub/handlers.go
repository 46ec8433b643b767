package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lattice-exchange/core/pkg/marketdata"
	"github.com/lattice-exchange/core/pkg/matching"
	"github.com/lattice-exchange/core/pkg/money"
	"github.com/lattice-exchange/core/pkg/types"
	"github.com/lattice-exchange/core/pkg/xerrors"
)

// Dispatch decodes one inbound frame and runs it to completion, replying on
// s.send. It is the single entry point the read pump calls per message, so
// every request a session issues is handled one at a time, in order (§4.6
// "single-threaded cooperative per session").
func (h *Hub) Dispatch(ctx context.Context, s *Session, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.deliver(errorMessage("", ErrInvalidJSON, err.Error()))
		return
	}
	if msg.Type == "" {
		s.deliver(errorMessage(msg.ID, ErrInvalidMessage, "missing type"))
		return
	}
	s.touch()
	if msg.Type != TypePing && !s.allowRequest() {
		s.deliver(errorMessage(msg.ID, ErrRateLimitExceeded, "too many requests"))
		return
	}

	switch msg.Type {
	case TypeAuth:
		h.handleAuth(ctx, s, msg)
	case TypeSubscribe:
		h.handleSubscribe(s, msg, true)
	case TypeUnsubscribe:
		h.handleSubscribe(s, msg, false)
	case TypePlaceOrder:
		h.handlePlaceOrder(ctx, s, msg)
	case TypeCancelOrder:
		h.handleCancelOrder(ctx, s, msg)
	case TypeGetOrderBook:
		h.handleGetOrderBook(s, msg)
	case TypeGetTicker:
		h.handleGetTicker(s, msg)
	case TypeGetCandles:
		h.handleGetCandles(s, msg)
	case TypeGetOrders:
		h.handleGetOrders(s, msg)
	case TypeGetTrades:
		h.handleGetTrades(s, msg)
	case TypePing:
		s.deliver(okMessage(msg.ID, TypePong, nil))
	default:
		s.deliver(errorMessage(msg.ID, ErrUnknownMessageType, msg.Type))
	}
}

func (h *Hub) handleAuth(ctx context.Context, s *Session, msg ClientMessage) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.Token == "" {
		s.deliver(errorMessage(msg.ID, ErrMissingToken, "missing token"))
		return
	}
	userID, err := h.identity.Authenticate(ctx, req.Token)
	if err != nil {
		s.deliver(errorMessage(msg.ID, ErrAuthFailed, err.Error()))
		return
	}
	s.authenticate(userID)
	s.deliver(okMessage(msg.ID, TypeAuth, map[string]string{"user_id": userID}))
}

// authorizeTopic checks a requested topic against §4.6's public/private
// split. Public topics (ticker, orderbook, candles, and trades keyed by a
// registered market symbol) are open to anyone; orders:{USER_ID} and a
// trades:{ARG} whose ARG is not a known symbol are private and require the
// session's own authenticated user id.
func (h *Hub) authorizeTopic(s *Session, topic string) bool {
	kind, args := parseTopic(topic)
	if len(args) == 0 {
		return false
	}
	switch kind {
	case topicTicker, topicOrderBook:
		return h.markets.Exists(args[0])
	case topicCandles:
		return len(args) == 2 && h.markets.Exists(args[0])
	case topicTrades:
		if h.markets.Exists(args[0]) {
			return true
		}
		userID, ok := s.isAuthenticated()
		return ok && userID == args[0]
	case topicOrders:
		userID, ok := s.isAuthenticated()
		return ok && userID == args[0]
	default:
		return false
	}
}

func (h *Hub) handleSubscribe(s *Session, msg ClientMessage, subscribe bool) {
	var req struct {
		Channels []string `json:"channels"`
	}
	if err := json.Unmarshal(msg.Data, &req); err != nil || len(req.Channels) == 0 {
		s.deliver(errorMessage(msg.ID, ErrMissingParams, "missing channels"))
		return
	}

	ok := make([]string, 0, len(req.Channels))
	for _, topic := range req.Channels {
		if !h.authorizeTopic(s, topic) {
			s.deliver(errorMessage(msg.ID, ErrInvalidChannel, topic))
			continue
		}
		if subscribe {
			if !s.subscribe(topic) {
				s.deliver(errorMessage(msg.ID, ErrSubscriptionLimit, topic))
				continue
			}
			h.addToTopic(topic, s)
		} else {
			s.unsubscribe(topic)
			h.removeFromTopic(topic, s)
		}
		ok = append(ok, topic)
	}

	typ := TypeSubscribed
	if !subscribe {
		typ = TypeUnsubscribed
	}
	s.deliver(okMessage(msg.ID, typ, map[string][]string{"channels": ok}))
}

func (h *Hub) handlePlaceOrder(ctx context.Context, s *Session, msg ClientMessage) {
	userID, ok := s.isAuthenticated()
	if !ok {
		s.deliver(errorMessage(msg.ID, ErrNotAuthenticated, "auth required"))
		return
	}

	var req struct {
		MarketID            string  `json:"market_id"`
		Side                string  `json:"side"`
		Type                string  `json:"type"`
		TimeInForce         string  `json:"time_in_force"`
		Price               string  `json:"price"`
		StopPrice           string  `json:"stop_price"`
		Quantity            string  `json:"quantity"`
		PostOnly            bool    `json:"post_only"`
		ReduceOnly          bool    `json:"reduce_only"`
		SelfTradePrevention string  `json:"self_trade_prevention"`
		ClientOrderID       string  `json:"client_order_id"`
		QuoteBudget         string  `json:"quote_budget"`
		ExpiresAt           *time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.deliver(errorMessage(msg.ID, ErrInvalidOrderData, err.Error()))
		return
	}
	if req.MarketID == "" || req.Side == "" || req.Type == "" || req.Quantity == "" {
		s.deliver(errorMessage(msg.ID, ErrInvalidOrderData, "missing required order fields"))
		return
	}

	quantity, err := money.Parse(req.Quantity)
	if err != nil {
		s.deliver(errorMessage(msg.ID, ErrInvalidOrderData, "invalid quantity"))
		return
	}
	side, err := types.ParseSide(req.Side)
	if err != nil {
		s.deliver(errorMessage(msg.ID, ErrInvalidOrderData, err.Error()))
		return
	}
	orderType, err := types.ParseOrderType(req.Type)
	if err != nil {
		s.deliver(errorMessage(msg.ID, ErrInvalidOrderData, err.Error()))
		return
	}
	tif := types.GTC
	if req.TimeInForce != "" {
		if tif, err = types.ParseTimeInForce(req.TimeInForce); err != nil {
			s.deliver(errorMessage(msg.ID, ErrInvalidOrderData, err.Error()))
			return
		}
	}
	stp, err := types.ParseSelfTradePrevention(req.SelfTradePrevention)
	if err != nil {
		s.deliver(errorMessage(msg.ID, ErrInvalidOrderData, err.Error()))
		return
	}
	price, _ := parseOptionalAmount(req.Price)
	stopPrice, _ := parseOptionalAmount(req.StopPrice)
	quoteBudget, _ := parseOptionalAmount(req.QuoteBudget)

	placeReq := matching.PlaceOrderRequest{
		UserID:              userID,
		MarketID:            req.MarketID,
		Side:                side,
		Type:                orderType,
		TimeInForce:         tif,
		Price:               price,
		StopPrice:           stopPrice,
		Quantity:            quantity,
		PostOnly:            req.PostOnly,
		ReduceOnly:          req.ReduceOnly,
		SelfTradePrevention: stp,
		ClientOrderID:       req.ClientOrderID,
		QuoteBudget:         quoteBudget,
		ExpiresAt:           req.ExpiresAt,
	}

	result, err := h.engine.PlaceOrder(ctx, placeReq)
	if err != nil {
		s.deliver(ServerMessage{
			ID:        msg.ID,
			Type:      TypeError,
			Error:     &ErrorBody{Code: string(xerrors.CodeOf(err)), Message: err.Error()},
			Timestamp: time.Now(),
		})
		return
	}
	s.deliver(okMessage(msg.ID, TypePlaceOrder, result))
}

func parseOptionalAmount(s string) (money.Amount, error) {
	if s == "" {
		return money.Zero, nil
	}
	return money.Parse(s)
}

func (h *Hub) handleCancelOrder(ctx context.Context, s *Session, msg ClientMessage) {
	userID, ok := s.isAuthenticated()
	if !ok {
		s.deliver(errorMessage(msg.ID, ErrNotAuthenticated, "auth required"))
		return
	}
	var req struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.OrderID == "" {
		s.deliver(errorMessage(msg.ID, ErrMissingOrderID, "missing order_id"))
		return
	}
	if err := h.engine.CancelOrder(ctx, userID, req.OrderID); err != nil {
		s.deliver(errorMessage(msg.ID, ErrCancelFailed, err.Error()))
		return
	}
	s.deliver(okMessage(msg.ID, TypeCancelOrder, map[string]string{"order_id": req.OrderID}))
}

func (h *Hub) handleGetOrderBook(s *Session, msg ClientMessage) {
	var req struct {
		Symbol string `json:"symbol"`
		Depth  int    `json:"depth"`
	}
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.Symbol == "" {
		s.deliver(errorMessage(msg.ID, ErrMissingSymbol, "missing symbol"))
		return
	}
	mkt, err := h.markets.Get(req.Symbol)
	if err != nil {
		s.deliver(errorMessage(msg.ID, ErrInvalidChannel, err.Error()))
		return
	}
	snap := h.book.Snapshot(req.Symbol, req.Depth)
	s.deliver(okMessage(msg.ID, TypeGetOrderBook, toPriceBook(mkt, snap)))
}

func (h *Hub) handleGetTicker(s *Session, msg ClientMessage) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.Symbol == "" {
		s.deliver(errorMessage(msg.ID, ErrMissingSymbol, "missing symbol"))
		return
	}
	ticker, ok := h.candles.GetTicker(req.Symbol)
	if !ok {
		s.deliver(errorMessage(msg.ID, ErrInvalidChannel, "no ticker data for "+req.Symbol))
		return
	}
	s.deliver(okMessage(msg.ID, TypeGetTicker, ticker))
}

func (h *Hub) handleGetCandles(s *Session, msg ClientMessage) {
	var req struct {
		Symbol   string `json:"symbol"`
		Interval string `json:"interval"`
		Limit    int    `json:"limit"`
	}
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.Symbol == "" || req.Interval == "" {
		s.deliver(errorMessage(msg.ID, ErrMissingParams, "missing symbol or interval"))
		return
	}
	interval, err := marketdata.ParseInterval(req.Interval)
	if err != nil {
		s.deliver(errorMessage(msg.ID, ErrMissingParams, err.Error()))
		return
	}
	candles, err := h.candles.GetCandles(req.Symbol, interval, req.Limit, nil, nil)
	if err != nil {
		s.deliver(errorMessage(msg.ID, ErrInvalidChannel, err.Error()))
		return
	}
	s.deliver(okMessage(msg.ID, TypeGetCandles, candles))
}

func (h *Hub) handleGetOrders(s *Session, msg ClientMessage) {
	userID, ok := s.isAuthenticated()
	if !ok {
		s.deliver(errorMessage(msg.ID, ErrNotAuthenticated, "auth required"))
		return
	}
	var req struct {
		Symbol   string `json:"symbol"`
		OpenOnly bool   `json:"open_only"`
	}
	_ = json.Unmarshal(msg.Data, &req)
	orders := h.store.FindByUser(userID, req.Symbol, req.OpenOnly)
	s.deliver(okMessage(msg.ID, TypeGetOrders, orders))
}

func (h *Hub) handleGetTrades(s *Session, msg ClientMessage) {
	userID, ok := s.isAuthenticated()
	if !ok {
		s.deliver(errorMessage(msg.ID, ErrNotAuthenticated, "auth required"))
		return
	}
	var req struct {
		Limit int `json:"limit"`
	}
	_ = json.Unmarshal(msg.Data, &req)
	s.deliver(okMessage(msg.ID, TypeGetTrades, h.trades.ByUser(userID, req.Limit)))
}
