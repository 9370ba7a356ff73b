package common

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is the immutable record of one execution. Order and user ids on
// either leg are pointers: the order id is nil when that leg was a market
// order, the user id is nilled out when the account is later deleted.
type Trade struct {
	ID          string // uuid
	SymbolID    int64
	Price       decimal.Decimal
	Quantity    int64
	BuyOrderID  *int64
	SellOrderID *int64
	BuyUserID   *int64
	SellUserID  *int64
	TakerSide   Side
	ExecutedAt  time.Time
}
