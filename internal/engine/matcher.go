package engine

import (
	"github.com/shopspring/decimal"

	"vidar/internal/book"
	"vidar/internal/common"
)

// Fill is one proposed execution against a resting maker.
type Fill struct {
	Maker    *common.Order
	Price    decimal.Decimal
	Quantity int64
}

// matchOrder reduces an incoming order against the book's priority-ordered
// candidates and returns the proposed fills plus the residual quantity.
// Pure: neither the book nor the makers are touched; the coordinator
// applies the fills. Trades execute at the maker's resting price. Market
// buys are additionally capped per fill by the taker's available cash; the
// sweep stops once the next share is unaffordable.
func matchOrder(b *book.Book, incoming *common.Order, cashAvailable decimal.Decimal) ([]Fill, int64) {
	var fills []Fill
	residual := incoming.Remaining

	var bound decimal.NullDecimal
	if incoming.Type == common.LimitOrder {
		bound = decimal.NullDecimal{Decimal: incoming.LimitPrice, Valid: true}
	}
	cashCapped := incoming.Type == common.MarketOrder && incoming.Side == common.Buy
	cashLeft := cashAvailable

	b.Matching(incoming.Side, bound, func(maker *common.Order) bool {
		qty := min(residual, maker.Remaining)
		if cashCapped {
			qty = min(qty, affordable(cashLeft, maker.LimitPrice))
		}
		if qty <= 0 {
			return false
		}
		fills = append(fills, Fill{Maker: maker, Price: maker.LimitPrice, Quantity: qty})
		residual -= qty
		if cashCapped {
			cashLeft = cashLeft.Sub(maker.LimitPrice.Mul(decimal.NewFromInt(qty)))
		}
		return residual > 0
	})
	return fills, residual
}

// affordable is the largest share count whose cost at price stays within
// cash. Division rounds, so walk back until the exact product fits.
func affordable(cash, price decimal.Decimal) int64 {
	if !price.IsPositive() {
		return 0
	}
	qty := cash.DivRound(price, 8).IntPart()
	for qty > 0 && price.Mul(decimal.NewFromInt(qty)).GreaterThan(cash) {
		qty--
	}
	if qty < 0 {
		return 0
	}
	return qty
}
