package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidar/internal/accounts"
	"vidar/internal/config"
	"vidar/internal/engine"
	"vidar/internal/ledger"
	"vidar/internal/symbol"
)

type testAPI struct {
	ts  *httptest.Server
	mgr int64
	usr int64
	sym int64
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	cash, err := decimal.NewFromString("10000.00")
	require.NoError(t, err)
	exchange := engine.New(
		engine.Config{StartingCash: cash},
		accounts.NewStore(),
		ledger.New(),
		symbol.NewRegistry(),
	)
	t.Cleanup(func() { _ = exchange.Close() })

	mgr, err := exchange.Bootstrap("admin")
	require.NoError(t, err)
	usr, err := exchange.Register("bob")
	require.NoError(t, err)
	sym, err := exchange.CreateSymbol(mgr.ID, "VDR")
	require.NoError(t, err)
	require.NoError(t, exchange.Mint(mgr.ID, sym.ID, 100))

	srv := NewServer(config.ServerConfig{Address: "127.0.0.1", Port: 0}, exchange)
	ts := httptest.NewServer(srv.server.Handler)
	t.Cleanup(ts.Close)

	return &testAPI{ts: ts, mgr: mgr.ID, usr: usr.ID, sym: sym.ID}
}

// call issues a JSON request as the given user and decodes the response.
func (a *testAPI) call(t *testing.T, method, path string, userID int64, body any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.ts.URL+path, &buf)
	require.NoError(t, err)
	if userID != 0 {
		req.Header.Set("X-User-ID", fmt.Sprint(userID))
	}
	resp, err := a.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (a *testAPI) submit(t *testing.T, userID int64, body submitOrderRequest) (submitOrderResponse, int) {
	t.Helper()
	var resp submitOrderResponse
	code := a.call(t, http.MethodPost, "/api/orders", userID, body, &resp)
	return resp, code
}

func price(s string) *decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)
	var out map[string]string
	code := a.call(t, http.MethodGet, "/health", 0, nil, &out)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", out["status"])
}

func TestSubmitLimitThenMarketFlow(t *testing.T) {
	a := newTestAPI(t)

	resting, code := a.submit(t, a.mgr, submitOrderRequest{
		SymbolID: a.sym, Side: "sell", Type: "limit", Price: price("100"), Quantity: 10,
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OPEN", resting.OrderStatus)
	assert.NotZero(t, resting.OrderID)
	assert.Empty(t, resting.TradesExecuted)

	filled, code := a.submit(t, a.usr, submitOrderRequest{
		SymbolID: a.sym, Side: "buy", Type: "market", Quantity: 4,
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "FILLED", filled.OrderStatus)
	require.Len(t, filled.TradesExecuted, 1)
	assert.True(t, filled.TradesExecuted[0].Price.Equal(*price("100")))
	assert.Equal(t, int64(4), filled.TradesExecuted[0].Quantity)
}

func TestSubmitRejections(t *testing.T) {
	a := newTestAPI(t)
	_, code := a.submit(t, a.mgr, submitOrderRequest{
		SymbolID: a.sym, Side: "sell", Type: "limit", Price: price("100"), Quantity: 10,
	})
	require.Equal(t, http.StatusOK, code)

	cases := []struct {
		name string
		user int64
		req  submitOrderRequest
		want int
	}{
		{"crossing limit", a.usr, submitOrderRequest{SymbolID: a.sym, Side: "buy", Type: "limit", Price: price("100"), Quantity: 1}, http.StatusConflict},
		{"bad side", a.usr, submitOrderRequest{SymbolID: a.sym, Side: "hold", Type: "limit", Price: price("5"), Quantity: 1}, http.StatusBadRequest},
		{"market with price", a.usr, submitOrderRequest{SymbolID: a.sym, Side: "buy", Type: "market", Price: price("5"), Quantity: 1}, http.StatusBadRequest},
		{"zero quantity", a.usr, submitOrderRequest{SymbolID: a.sym, Side: "buy", Type: "limit", Price: price("5")}, http.StatusBadRequest},
		{"unknown symbol", a.usr, submitOrderRequest{SymbolID: 999, Side: "buy", Type: "limit", Price: price("5"), Quantity: 1}, http.StatusNotFound},
		{"unaffordable", a.usr, submitOrderRequest{SymbolID: a.sym, Side: "buy", Type: "limit", Price: price("99"), Quantity: 200}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var envelope messageResponse
			code := a.call(t, http.MethodPost, "/api/orders", tc.user, tc.req, &envelope)
			assert.Equal(t, tc.want, code)
			assert.NotEmpty(t, envelope.Message)
		})
	}
}

func TestIdentityRequired(t *testing.T) {
	a := newTestAPI(t)
	var envelope messageResponse
	code := a.call(t, http.MethodPost, "/api/orders", 0, submitOrderRequest{}, &envelope)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestCancelOrder(t *testing.T) {
	a := newTestAPI(t)
	resting, _ := a.submit(t, a.usr, submitOrderRequest{
		SymbolID: a.sym, Side: "buy", Type: "limit", Price: price("90"), Quantity: 5,
	})

	var outcome messageResponse
	code := a.call(t, http.MethodDelete, fmt.Sprintf("/api/orders/%d", resting.OrderID), a.usr, nil, &outcome)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "order cancelled", outcome.Message)

	code = a.call(t, http.MethodDelete, fmt.Sprintf("/api/orders/%d", resting.OrderID), a.usr, nil, &outcome)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestBookSnapshotAndDirection(t *testing.T) {
	a := newTestAPI(t)
	a.submit(t, a.usr, submitOrderRequest{SymbolID: a.sym, Side: "buy", Type: "limit", Price: price("95"), Quantity: 2})
	a.submit(t, a.mgr, submitOrderRequest{SymbolID: a.sym, Side: "sell", Type: "limit", Price: price("100"), Quantity: 3})
	a.submit(t, a.mgr, submitOrderRequest{SymbolID: a.sym, Side: "sell", Type: "limit", Price: price("101"), Quantity: 4})

	var snap bookSnapshotResponse
	code := a.call(t, http.MethodGet, fmt.Sprintf("/api/symbols/%d/book", a.sym), 0, nil, &snap)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "VDR", snap.Symbol)
	assert.Nil(t, snap.LastPrice)
	assert.Equal(t, "same", snap.PriceDirection)
	require.Len(t, snap.BuyOrders, 1)
	require.Len(t, snap.SellOrders, 2)
	assert.True(t, snap.SellOrders[0].Price.LessThan(snap.SellOrders[1].Price))

	// Trade twice, upward: 100 then 101.
	a.submit(t, a.usr, submitOrderRequest{SymbolID: a.sym, Side: "buy", Type: "market", Quantity: 3})
	a.submit(t, a.usr, submitOrderRequest{SymbolID: a.sym, Side: "buy", Type: "market", Quantity: 1})

	code = a.call(t, http.MethodGet, fmt.Sprintf("/api/symbols/%d/book", a.sym), 0, nil, &snap)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, snap.LastPrice)
	assert.True(t, snap.LastPrice.Equal(*price("101")))
	assert.Equal(t, "up", snap.PriceDirection)
}

func TestRecentTradesNewestFirst(t *testing.T) {
	a := newTestAPI(t)
	a.submit(t, a.mgr, submitOrderRequest{SymbolID: a.sym, Side: "sell", Type: "limit", Price: price("100"), Quantity: 1})
	a.submit(t, a.mgr, submitOrderRequest{SymbolID: a.sym, Side: "sell", Type: "limit", Price: price("101"), Quantity: 1})
	a.submit(t, a.usr, submitOrderRequest{SymbolID: a.sym, Side: "buy", Type: "market", Quantity: 1})
	a.submit(t, a.usr, submitOrderRequest{SymbolID: a.sym, Side: "buy", Type: "market", Quantity: 1})

	var trades []tradeResponse
	code := a.call(t, http.MethodGet, fmt.Sprintf("/api/symbols/%d/trades", a.sym), 0, nil, &trades)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, trades, 2)
	assert.True(t, trades[0].Price.Equal(*price("101")))
	assert.True(t, trades[1].Price.Equal(*price("100")))
	assert.Equal(t, "buy", trades[0].TakerSide)
}

func TestProfile(t *testing.T) {
	a := newTestAPI(t)
	a.submit(t, a.mgr, submitOrderRequest{SymbolID: a.sym, Side: "sell", Type: "limit", Price: price("100"), Quantity: 5})
	a.submit(t, a.usr, submitOrderRequest{SymbolID: a.sym, Side: "buy", Type: "market", Quantity: 5})

	var profile profileResponse
	code := a.call(t, http.MethodGet, "/api/users/me", a.usr, nil, &profile)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "bob", profile.Username)
	assert.Equal(t, "user", profile.Role)
	assert.True(t, profile.CashBalance.Equal(*price("9500")))
	require.Len(t, profile.Positions, 1)
	assert.Equal(t, "VDR", profile.Positions[0].Symbol)
	assert.Equal(t, int64(5), profile.Positions[0].Quantity)
}

func TestAdminEndpoints(t *testing.T) {
	a := newTestAPI(t)

	var sym symbolResponse
	code := a.call(t, http.MethodPost, "/api/admin/symbols", a.mgr, createSymbolRequest{Ticker: "NEW"}, &sym)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "NEW", sym.Ticker)

	var envelope messageResponse
	code = a.call(t, http.MethodPost, fmt.Sprintf("/api/admin/symbols/%d/mint", sym.ID), a.mgr, quantityRequest{Quantity: 500}, &envelope)
	assert.Equal(t, http.StatusOK, code)

	code = a.call(t, http.MethodPost, fmt.Sprintf("/api/admin/symbols/%d/burn", sym.ID), a.mgr, quantityRequest{Quantity: 500}, &envelope)
	assert.Equal(t, http.StatusOK, code)

	code = a.call(t, http.MethodDelete, fmt.Sprintf("/api/admin/symbols/%d", sym.ID), a.mgr, nil, &envelope)
	assert.Equal(t, http.StatusOK, code)

	// Non-managers are turned away.
	code = a.call(t, http.MethodPost, "/api/admin/symbols", a.usr, createSymbolRequest{Ticker: "NOPE"}, &envelope)
	assert.Equal(t, http.StatusForbidden, code)

	// Mint above the cap is invalid input.
	code = a.call(t, http.MethodPost, fmt.Sprintf("/api/admin/symbols/%d/mint", a.sym), a.mgr, quantityRequest{Quantity: symbol.MintCap + 1}, &envelope)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRegisterAndDeleteUser(t *testing.T) {
	a := newTestAPI(t)

	var user userResponse
	code := a.call(t, http.MethodPost, "/api/users", 0, registerRequest{Username: "carol"}, &user)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "user", user.Role)

	var envelope messageResponse
	code = a.call(t, http.MethodDelete, fmt.Sprintf("/api/users/%d", user.ID), user.ID, nil, &envelope)
	assert.Equal(t, http.StatusOK, code)

	// The sole manager cannot be deleted.
	code = a.call(t, http.MethodDelete, fmt.Sprintf("/api/users/%d", a.mgr), a.mgr, nil, &envelope)
	assert.Equal(t, http.StatusConflict, code)
}
