package api

import (
	"time"

	"github.com/shopspring/decimal"
)

// Request and response bodies. Auth headers and content negotiation are the
// transport collaborator's concern; identity arrives as the X-User-ID
// header it injects.

type registerRequest struct {
	Username string `json:"username"`
}

type createUserRequest struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type submitOrderRequest struct {
	SymbolID int64            `json:"symbol_id"`
	Side     string           `json:"side"`
	Type     string           `json:"type"`
	Price    *decimal.Decimal `json:"price"`
	Quantity int64            `json:"quantity"`
}

type executedTrade struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

type submitOrderResponse struct {
	OrderID        int64           `json:"orderId,omitempty"`
	OrderStatus    string          `json:"orderStatus"`
	TradesExecuted []executedTrade `json:"tradesExecuted"`
}

type bookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

type bookSnapshotResponse struct {
	Symbol         string           `json:"symbol"`
	LastPrice      *decimal.Decimal `json:"lastPrice"`
	PriceDirection string           `json:"priceDirection"`
	BuyOrders      []bookLevel      `json:"buyOrders"`
	SellOrders     []bookLevel      `json:"sellOrders"`
}

type tradeResponse struct {
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	TakerSide string          `json:"taker_side"`
	Timestamp time.Time       `json:"timestamp"`
}

type profilePosition struct {
	SymbolID int64  `json:"symbol_id"`
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
}

type profileResponse struct {
	ID          int64             `json:"id"`
	Username    string            `json:"username"`
	Role        string            `json:"role"`
	CashBalance decimal.Decimal   `json:"cash_balance"`
	Positions   []profilePosition `json:"positions"`
}

type createSymbolRequest struct {
	Ticker string `json:"ticker"`
}

type symbolResponse struct {
	ID                int64            `json:"id"`
	Ticker            string           `json:"ticker"`
	OutstandingShares int64            `json:"outstanding_shares"`
	LastPrice         *decimal.Decimal `json:"lastPrice"`
	PreviousPrice     *decimal.Decimal `json:"previousPrice"`
}

type quantityRequest struct {
	Quantity int64 `json:"quantity"`
}

// messageResponse is the error envelope and the body of outcome-only
// endpoints such as cancellation.
type messageResponse struct {
	Message string `json:"message"`
}
