package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"vidar/internal/common"
	"vidar/internal/engine"
	"vidar/internal/symbol"
)

const recentTradeCount = 20

// Handlers adapts the exchange to the JSON surface.
type Handlers struct {
	exchange *engine.Exchange
}

func NewHandlers(exchange *engine.Exchange) *Handlers {
	return &Handlers{exchange: exchange}
}

func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, err := h.exchange.Register(req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{ID: user.ID, Username: user.Username, Role: user.Role.String()})
}

func (h *Handlers) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	actorID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req createUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	role, err := common.ParseRole(req.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	user, err := h.exchange.CreateUserAs(actorID, req.Username, role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{ID: user.ID, Username: user.Username, Role: user.Role.String()})
}

func (h *Handlers) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	actorID, ok := callerID(w, r)
	if !ok {
		return
	}
	targetID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.exchange.DeleteUser(actorID, targetID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "account deleted"})
}

func (h *Handlers) HandleProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	profile, err := h.exchange.Profile(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := profileResponse{
		ID:          profile.User.ID,
		Username:    profile.User.Username,
		Role:        profile.User.Role.String(),
		CashBalance: profile.Cash,
		Positions:   make([]profilePosition, 0, len(profile.Positions)),
	}
	for _, p := range profile.Positions {
		resp.Positions = append(resp.Positions, profilePosition{
			SymbolID: p.SymbolID,
			Symbol:   p.Ticker,
			Quantity: p.Quantity,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) HandleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req submitOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	side, err := common.ParseSide(req.Side)
	if err != nil {
		writeError(w, err)
		return
	}
	orderType, err := common.ParseOrderType(req.Type)
	if err != nil {
		writeError(w, err)
		return
	}
	var price decimal.NullDecimal
	if req.Price != nil {
		price = decimal.NullDecimal{Decimal: *req.Price, Valid: true}
	}

	result, err := h.exchange.Submit(engine.SubmitRequest{
		UserID:     userID,
		SymbolID:   req.SymbolID,
		Side:       side,
		Type:       orderType,
		LimitPrice: price,
		Quantity:   req.Quantity,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := submitOrderResponse{
		OrderID:        result.OrderID,
		OrderStatus:    result.OrderStatus,
		TradesExecuted: make([]executedTrade, 0, len(result.Fills)),
	}
	for _, fill := range result.Fills {
		resp.TradesExecuted = append(resp.TradesExecuted, executedTrade{Price: fill.Price, Quantity: fill.Quantity})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) HandleCancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	orderID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.exchange.Cancel(userID, orderID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "order cancelled"})
}

func (h *Handlers) HandleListSymbols(w http.ResponseWriter, r *http.Request) {
	symbols := h.exchange.Symbols()
	resp := make([]symbolResponse, 0, len(symbols))
	for _, sym := range symbols {
		resp = append(resp, toSymbolResponse(sym))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) HandleBookSnapshot(w http.ResponseWriter, r *http.Request) {
	symbolID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := h.exchange.BookSnapshot(symbolID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := bookSnapshotResponse{
		Symbol:         snap.Symbol.Ticker,
		LastPrice:      nullable(snap.Symbol.LastPrice),
		PriceDirection: priceDirection(snap.Symbol.LastPrice, snap.Symbol.PrevPrice),
		BuyOrders:      make([]bookLevel, 0, len(snap.Bids)),
		SellOrders:     make([]bookLevel, 0, len(snap.Asks)),
	}
	for _, level := range snap.Bids {
		resp.BuyOrders = append(resp.BuyOrders, bookLevel{Price: level.Price, Quantity: level.Quantity})
	}
	for _, level := range snap.Asks {
		resp.SellOrders = append(resp.SellOrders, bookLevel{Price: level.Price, Quantity: level.Quantity})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) HandleRecentTrades(w http.ResponseWriter, r *http.Request) {
	symbolID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	trades, err := h.exchange.RecentTrades(symbolID, recentTradeCount)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]tradeResponse, 0, len(trades))
	for _, trade := range trades {
		resp = append(resp, tradeResponse{
			Price:     trade.Price,
			Quantity:  trade.Quantity,
			TakerSide: trade.TakerSide.String(),
			Timestamp: trade.ExecutedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) HandleCreateSymbol(w http.ResponseWriter, r *http.Request) {
	actorID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req createSymbolRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sym, err := h.exchange.CreateSymbol(actorID, req.Ticker)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSymbolResponse(sym))
}

func (h *Handlers) HandleDeleteSymbol(w http.ResponseWriter, r *http.Request) {
	actorID, ok := callerID(w, r)
	if !ok {
		return
	}
	symbolID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.exchange.DeleteSymbol(actorID, symbolID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "symbol deleted"})
}

func (h *Handlers) HandleMint(w http.ResponseWriter, r *http.Request) {
	h.handleFloatChange(w, r, h.exchange.Mint, "shares minted")
}

func (h *Handlers) HandleBurn(w http.ResponseWriter, r *http.Request) {
	h.handleFloatChange(w, r, h.exchange.Burn, "shares burned")
}

func (h *Handlers) handleFloatChange(w http.ResponseWriter, r *http.Request, op func(int64, int64, int64) error, outcome string) {
	actorID, ok := callerID(w, r)
	if !ok {
		return
	}
	symbolID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req quantityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := op(actorID, symbolID, req.Quantity); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: outcome})
}

// --- Helpers ----------------------------------------------------------------

func toSymbolResponse(sym symbol.Symbol) symbolResponse {
	return symbolResponse{
		ID:                sym.ID,
		Ticker:            sym.Ticker,
		OutstandingShares: sym.Outstanding,
		LastPrice:         nullable(sym.LastPrice),
		PreviousPrice:     nullable(sym.PrevPrice),
	}
}

func nullable(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func priceDirection(last, prev decimal.NullDecimal) string {
	if !last.Valid || !prev.Valid {
		return "same"
	}
	switch last.Decimal.Cmp(prev.Decimal) {
	case 1:
		return "up"
	case -1:
		return "down"
	}
	return "same"
}

// callerID reads the identity the auth collaborator injected.
func callerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		writeStatus(w, http.StatusUnauthorized, "missing user identity")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeStatus(w, http.StatusUnauthorized, "malformed user identity")
		return 0, false
	}
	return id, true
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		return 0, common.ErrInvalidInput
	}
	return id, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeStatus(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encoding response")
	}
}

func writeStatus(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Message: message})
}

// writeError maps the engine's error taxonomy onto the error envelope.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := err.Error()
	switch {
	case errors.Is(err, common.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, common.ErrUnknownSymbol),
		errors.Is(err, common.ErrUnknownOrder),
		errors.Is(err, common.ErrUnknownUser):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, common.ErrCrossesBook),
		errors.Is(err, common.ErrSymbolInUse),
		errors.Is(err, common.ErrLastManager):
		status = http.StatusConflict
	case errors.Is(err, common.ErrInsufficientFunds),
		errors.Is(err, common.ErrInsufficientShares),
		errors.Is(err, common.ErrNotEnoughLiquidity):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrExchangeShuttingDown):
		status = http.StatusServiceUnavailable
	default:
		message = "internal error"
		log.Error().Err(err).Msg("unhandled error")
	}
	writeStatus(w, status, message)
}
