package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"vidar/internal/book"
	"vidar/internal/common"
)

type SubmitRequest struct {
	UserID     int64
	SymbolID   int64
	Side       common.Side
	Type       common.OrderType
	LimitPrice decimal.NullDecimal
	Quantity   int64
}

type FillReport struct {
	Price    decimal.Decimal
	Quantity int64
}

type SubmitResult struct {
	// OrderID of the resting limit order; 0 when the order never rested.
	OrderID int64
	// OrderStatus is OPEN, FILLED or PARTIAL.
	OrderStatus string
	Remaining   int64
	Fills       []FillReport
}

// Submit runs one order through validation, reservation, matching,
// settlement and reconciliation inside the symbol's critical section.
// Either it rejects with no state change or it commits with a fill list.
func (e *Exchange) Submit(req SubmitRequest) (SubmitResult, error) {
	if err := validate(req); err != nil {
		return SubmitResult{}, err
	}
	var result SubmitResult
	var rerr error
	err := e.do(req.SymbolID, func() {
		result, rerr = e.submitLocked(req)
	})
	if err != nil {
		return SubmitResult{}, err
	}
	return result, rerr
}

func validate(req SubmitRequest) error {
	if req.Quantity < 1 {
		return fmt.Errorf("%w: quantity %d", common.ErrInvalidInput, req.Quantity)
	}
	switch req.Type {
	case common.LimitOrder:
		if !req.LimitPrice.Valid || !req.LimitPrice.Decimal.IsPositive() {
			return fmt.Errorf("%w: limit orders need a positive price", common.ErrInvalidInput)
		}
	case common.MarketOrder:
		if req.LimitPrice.Valid {
			return fmt.Errorf("%w: market orders carry no price", common.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: order type", common.ErrInvalidInput)
	}
	return nil
}

func (e *Exchange) submitLocked(req SubmitRequest) (SubmitResult, error) {
	if _, ok := e.accounts.Get(req.UserID); !ok {
		return SubmitResult{}, common.ErrUnknownUser
	}
	sym, ok := e.registry.Get(req.SymbolID)
	if !ok {
		return SubmitResult{}, common.ErrUnknownSymbol
	}
	b := e.bookFor(req.SymbolID)
	if b == nil {
		return SubmitResult{}, common.ErrUnknownSymbol
	}

	cash := e.ledger.Balance(req.UserID)
	position := e.ledger.Position(req.UserID, req.SymbolID)
	qty := decimal.NewFromInt(req.Quantity)

	// Cross-prevention: a limit order that would execute immediately is
	// refused; the book never crosses at rest.
	if req.Type == common.LimitOrder {
		if req.Side == common.Buy {
			if ask, ok := b.BestAsk(); ok && req.LimitPrice.Decimal.GreaterThanOrEqual(ask) {
				return SubmitResult{}, common.ErrCrossesBook
			}
		} else {
			if bid, ok := b.BestBid(); ok && req.LimitPrice.Decimal.LessThanOrEqual(bid) {
				return SubmitResult{}, common.ErrCrossesBook
			}
		}
	}

	// Resource preconditions and short overhang.
	var shortOverhang int64
	if req.Side == common.Sell {
		owned := max(position, 0)
		if req.Quantity > owned {
			shortOverhang = req.Quantity - owned
		}
	}
	switch {
	case req.Side == common.Buy && req.Type == common.LimitOrder:
		notional := req.LimitPrice.Decimal.Mul(qty)
		if cash.LessThan(notional) {
			return SubmitResult{}, fmt.Errorf("%w: need %s, have %s", common.ErrInsufficientFunds, notional, cash)
		}
	case req.Side == common.Sell && shortOverhang > 0:
		if shortOverhang > sym.Outstanding {
			return SubmitResult{}, fmt.Errorf("%w: short %d exceeds float %d",
				common.ErrInsufficientShares, shortOverhang, sym.Outstanding)
		}
		reference, ok := e.shortReference(req, sym.LastPrice, b)
		if !ok {
			// A market sell with no reference price has no bids to hit.
			return SubmitResult{}, common.ErrNotEnoughLiquidity
		}
		collateral := reference.Mul(decimal.NewFromInt(shortOverhang))
		if cash.LessThan(collateral) {
			return SubmitResult{}, fmt.Errorf("%w: short collateral %s, have %s",
				common.ErrInsufficientFunds, collateral, cash)
		}
	}

	// Reservation. Collateral for limit sells is fixed here at the limit
	// price and never revalued.
	reserved := decimal.Zero
	if req.Type == common.LimitOrder {
		if req.Side == common.Buy {
			reserved = req.LimitPrice.Decimal.Mul(qty)
		} else if shortOverhang > 0 {
			reserved = req.LimitPrice.Decimal.Mul(decimal.NewFromInt(shortOverhang))
		}
		if reserved.IsPositive() {
			if err := e.ledger.ReserveCash(req.UserID, reserved); err != nil {
				return SubmitResult{}, err
			}
		}
	}

	order := &common.Order{
		UserID:         req.UserID,
		SymbolID:       req.SymbolID,
		Side:           req.Side,
		Type:           req.Type,
		LimitPrice:     req.LimitPrice.Decimal,
		Remaining:      req.Quantity,
		Total:          req.Quantity,
		ShortRemaining: shortOverhang,
		Status:         common.StatusOpen,
		SubmittedAt:    time.Now(),
	}

	// Limit orders rest at full size before matching runs, which makes
	// them reachable by the owner's own later marketable orders.
	if req.Type == common.LimitOrder {
		order.ID = e.nextOrderID.Add(1)
		e.mu.Lock()
		e.orders[order.ID] = order
		e.mu.Unlock()
		b.Insert(order)
	}

	fills, residual := matchOrder(b, order, cash)
	if req.Type == common.MarketOrder && len(fills) == 0 {
		return SubmitResult{}, common.ErrNotEnoughLiquidity
	}

	if err := e.settle(b, order, fills); err != nil {
		return SubmitResult{}, err
	}
	order.Remaining = residual
	if residual == 0 {
		order.Status = common.StatusFilled
	}

	if len(fills) > 0 {
		e.registry.StampPrices(req.SymbolID, fills[len(fills)-1].Price)
	}

	result := SubmitResult{
		OrderID:   order.ID,
		Remaining: residual,
		Fills:     make([]FillReport, 0, len(fills)),
	}
	for _, fill := range fills {
		result.Fills = append(result.Fills, FillReport{Price: fill.Price, Quantity: fill.Quantity})
	}
	switch {
	case req.Type == common.LimitOrder && residual > 0:
		result.OrderStatus = "OPEN"
	case residual > 0:
		result.OrderStatus = "PARTIAL"
	default:
		result.OrderStatus = "FILLED"
	}

	log.Debug().
		Int64("user", req.UserID).
		Int64("symbol", req.SymbolID).
		Stringer("side", req.Side).
		Stringer("type", req.Type).
		Int64("order", order.ID).
		Int("fills", len(fills)).
		Msg("submission committed")
	return result, nil
}

// shortReference picks the price a short sale's collateral check is valued
// at: the limit for limit orders, the last trade price for market orders,
// falling back to the best bid the order is about to hit.
func (e *Exchange) shortReference(req SubmitRequest, lastPrice decimal.NullDecimal, b *book.Book) (decimal.Decimal, bool) {
	if req.Type == common.LimitOrder {
		return req.LimitPrice.Decimal, true
	}
	if lastPrice.Valid {
		return lastPrice.Decimal, true
	}
	return b.BestBid()
}

// settle applies the matcher's fills in order: trade records, share
// transfer, cash transfer, maker decrements, and the reserved-cash
// reconciliation that returns price improvement to buy limits.
func (e *Exchange) settle(b *book.Book, taker *common.Order, fills []Fill) error {
	now := time.Now()
	for _, fill := range fills {
		maker := fill.Maker
		q := decimal.NewFromInt(fill.Quantity)
		notional := fill.Price.Mul(q)

		var buyOrder, sellOrder *common.Order
		if taker.Side == common.Buy {
			buyOrder, sellOrder = taker, maker
		} else {
			buyOrder, sellOrder = maker, taker
		}

		// The buyer pays. Buy limits paid their own limit price at
		// reservation time; the difference comes back below. Market buys
		// pay the maker's price per fill, bounded by the matcher.
		if buyOrder.Type == common.MarketOrder {
			if err := e.ledger.ReserveCash(buyOrder.UserID, notional); err != nil {
				log.Error().Err(err).Int64("user", buyOrder.UserID).Msg("settlement debit failed")
				return fmt.Errorf("%w: settlement debit", common.ErrInternal)
			}
		} else {
			overpaid := buyOrder.LimitPrice.Sub(fill.Price).Mul(q)
			if overpaid.IsPositive() {
				e.ledger.CreditCash(buyOrder.UserID, overpaid)
			}
		}
		e.ledger.CreditCash(sellOrder.UserID, notional)

		e.ledger.AdjustPosition(buyOrder.UserID, taker.SymbolID, fill.Quantity)
		e.ledger.AdjustPosition(sellOrder.UserID, taker.SymbolID, -fill.Quantity)

		b.Decrement(maker.ID, fill.Quantity)
		if maker.Remaining == 0 {
			maker.Status = common.StatusFilled
		}

		trade := &common.Trade{
			ID:         uuid.NewString(),
			SymbolID:   taker.SymbolID,
			Price:      fill.Price,
			Quantity:   fill.Quantity,
			TakerSide:  taker.Side,
			ExecutedAt: now,
		}
		buyUserID, sellUserID := buyOrder.UserID, sellOrder.UserID
		trade.BuyUserID, trade.SellUserID = &buyUserID, &sellUserID
		if buyOrder.ID != 0 {
			buyOrderID := buyOrder.ID
			trade.BuyOrderID = &buyOrderID
		}
		if sellOrder.ID != 0 {
			sellOrderID := sellOrder.ID
			trade.SellOrderID = &sellOrderID
		}
		e.mu.Lock()
		e.trades[taker.SymbolID] = append(e.trades[taker.SymbolID], trade)
		e.mu.Unlock()
	}
	return nil
}

// Cancel withdraws a resting order and releases exactly its reservation:
// price x remaining for buy limits, price x remaining short collateral for
// sell limits. Final and idempotent; a second cancel reports the order as
// not found or closed.
func (e *Exchange) Cancel(userID, orderID int64) error {
	e.mu.RLock()
	order, ok := e.orders[orderID]
	e.mu.RUnlock()
	if !ok {
		return common.ErrUnknownOrder
	}
	symbolID := order.SymbolID

	var rerr error
	err := e.do(symbolID, func() {
		rerr = e.cancelLocked(userID, orderID)
	})
	if errors.Is(err, common.ErrUnknownSymbol) {
		// The symbol was delisted after this order closed.
		return common.ErrUnknownOrder
	}
	if err != nil {
		return err
	}
	return rerr
}

func (e *Exchange) cancelLocked(userID, orderID int64) error {
	e.mu.RLock()
	order, ok := e.orders[orderID]
	e.mu.RUnlock()
	if !ok || order.Status != common.StatusOpen || order.UserID != userID {
		return common.ErrUnknownOrder
	}

	if order.Side == common.Buy {
		refund := order.LimitPrice.Mul(decimal.NewFromInt(order.Remaining))
		if refund.IsPositive() {
			e.ledger.CreditCash(userID, refund)
		}
	} else if order.ShortRemaining > 0 {
		collateral := order.LimitPrice.Mul(decimal.NewFromInt(order.ShortRemaining))
		e.ledger.CreditCash(userID, collateral)
	}

	order.Status = common.StatusCancelled
	order.Remaining = 0
	order.ShortRemaining = 0
	if b := e.bookFor(order.SymbolID); b != nil {
		b.Remove(orderID)
	}

	log.Debug().Int64("user", userID).Int64("order", orderID).Msg("order cancelled")
	return nil
}
