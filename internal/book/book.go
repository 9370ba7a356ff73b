// Package book keeps the two-sided resting order collection for one symbol.
// Only OPEN limit orders live here; the scan order of Matching is the sole
// source of price-time priority.
package book

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"vidar/internal/common"
)

// PriceLevel groups resting orders at one price, sorted by arrival as they
// are appended under the symbol's write lock with monotonic ids.
type PriceLevel struct {
	Price  decimal.Decimal
	Orders []*common.Order
}

type priceLevels = btree.BTreeG[*PriceLevel]

type Book struct {
	// Best-first trees: bids sorted greatest price first, asks least
	// first, so Min is top of book on both sides.
	bids *priceLevels
	asks *priceLevels

	// Resting orders by id, for cancels and decrements.
	index map[int64]*common.Order
}

func New() *Book {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.GreaterThan(b.Price)
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.LessThan(b.Price)
	})
	return &Book{
		bids:  bids,
		asks:  asks,
		index: make(map[int64]*common.Order),
	}
}

func (b *Book) sideLevels(side common.Side) *priceLevels {
	if side == common.Buy {
		return b.bids
	}
	return b.asks
}

// BestBid returns the highest resting buy price, if any.
func (b *Book) BestBid() (decimal.Decimal, bool) {
	level, ok := b.bids.Min()
	if !ok {
		return decimal.Decimal{}, false
	}
	return level.Price, true
}

// BestAsk returns the lowest resting sell price, if any.
func (b *Book) BestAsk() (decimal.Decimal, bool) {
	level, ok := b.asks.Min()
	if !ok {
		return decimal.Decimal{}, false
	}
	return level.Price, true
}

// Insert rests an open limit order in the book.
func (b *Book) Insert(order *common.Order) {
	levels := b.sideLevels(order.Side)
	level, ok := levels.GetMut(&PriceLevel{Price: order.LimitPrice})
	if ok {
		level.Orders = append(level.Orders, order)
	} else {
		levels.Set(&PriceLevel{
			Price:  order.LimitPrice,
			Orders: []*common.Order{order},
		})
	}
	b.index[order.ID] = order
}

// Get returns the resting order with the given id.
func (b *Book) Get(orderID int64) (*common.Order, bool) {
	order, ok := b.index[orderID]
	return order, ok
}

// Remove lifts the order out of the book, deleting its price level when it
// empties. Removing an absent id is a no-op.
func (b *Book) Remove(orderID int64) {
	order, ok := b.index[orderID]
	if !ok {
		return
	}
	delete(b.index, orderID)

	levels := b.sideLevels(order.Side)
	level, ok := levels.GetMut(&PriceLevel{Price: order.LimitPrice})
	if !ok {
		return
	}
	for i, resting := range level.Orders {
		if resting.ID == orderID {
			level.Orders = append(level.Orders[:i], level.Orders[i+1:]...)
			break
		}
	}
	if len(level.Orders) == 0 {
		levels.Delete(level)
	}
}

// Decrement reduces the resting order's remaining quantity by a fill,
// removing it from the book once depleted. The short-collateral remainder
// shrinks with the order: fills consume the owned portion first.
func (b *Book) Decrement(orderID int64, qty int64) {
	order, ok := b.index[orderID]
	if !ok {
		return
	}
	order.Remaining -= qty
	if order.ShortRemaining > order.Remaining {
		order.ShortRemaining = order.Remaining
	}
	if order.Remaining <= 0 {
		b.Remove(orderID)
	}
}

// Matching walks the opposite side's resting orders that could cross the
// given taker side at the given price bound, best price first and earliest
// id first within a level. A null bound (market order) yields the whole
// opposite side. Scanning stops when visit returns false.
func (b *Book) Matching(takerSide common.Side, bound decimal.NullDecimal, visit func(*common.Order) bool) {
	levels := b.sideLevels(takerSide.Opposite())
	levels.Scan(func(level *PriceLevel) bool {
		if bound.Valid {
			if takerSide == common.Buy && level.Price.GreaterThan(bound.Decimal) {
				return false
			}
			if takerSide == common.Sell && level.Price.LessThan(bound.Decimal) {
				return false
			}
		}
		for _, order := range level.Orders {
			if !visit(order) {
				return false
			}
		}
		return true
	})
}

// Len is the number of resting orders on both sides.
func (b *Book) Len() int {
	return len(b.index)
}

// OrdersOf returns the ids of the user's resting orders.
func (b *Book) OrdersOf(userID int64) []int64 {
	var ids []int64
	for id, order := range b.index {
		if order.UserID == userID {
			ids = append(ids, id)
		}
	}
	return ids
}

// Level is one row of an aggregated depth snapshot.
type Level struct {
	Price    decimal.Decimal
	Quantity int64
}

// Depth aggregates resting quantity per price on one side, best price
// first: descending for bids, ascending for asks.
func (b *Book) Depth(side common.Side) []Level {
	var out []Level
	b.sideLevels(side).Scan(func(level *PriceLevel) bool {
		var qty int64
		for _, order := range level.Orders {
			qty += order.Remaining
		}
		out = append(out, Level{Price: level.Price, Quantity: qty})
		return true
	})
	return out
}
