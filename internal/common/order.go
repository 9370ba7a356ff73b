package common

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID             int64           // Monotonic exchange-assigned id; 0 for market orders
	UserID         int64           // Who owns this order
	SymbolID       int64           // Instrument the order trades
	Side           Side            // Order side
	Type           OrderType       // Limit or market
	LimitPrice     decimal.Decimal // Limiting price; zero for market orders
	Remaining      int64           // Remaining quantity
	Total          int64           // Total volume requested
	ShortRemaining int64           // Collateralised short quantity still open (sell limits)
	Status         OrderStatus     //
	SubmittedAt    time.Time       // Time the order was submitted
}

func (o Order) String() string {
	return fmt.Sprintf("order %d: %s %s %d/%d sym=%d @ %s [%s]",
		o.ID,
		o.Side,
		o.Type,
		o.Remaining,
		o.Total,
		o.SymbolID,
		o.LimitPrice,
		o.Status,
	)
}
