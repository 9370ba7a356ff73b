package engine

import (
	"sort"

	"github.com/shopspring/decimal"

	"vidar/internal/accounts"
	"vidar/internal/common"
	"vidar/internal/ledger"
	"vidar/internal/symbol"
)

// State is the full persisted form of the exchange: users, cash, positions,
// symbols with their price history, every order with its status, and the
// append-only trade log.
type State struct {
	Users       []accounts.User           `json:"users"`
	Cash        map[int64]decimal.Decimal `json:"cash"`
	Positions   []ledger.Entry            `json:"positions"`
	Symbols     []symbol.Symbol           `json:"symbols"`
	Orders      []common.Order            `json:"orders"`
	Trades      []common.Trade            `json:"trades"`
	NextOrderID int64                     `json:"next_order_id"`
}

// ExportState quiesces every symbol worker and copies out the exchange
// state. Safe to call while submissions continue; they queue behind the
// gate.
func (e *Exchange) ExportState() State {
	e.gate.Lock()
	defer e.gate.Unlock()

	cash, positions := e.ledger.Export()
	state := State{
		Users:       e.accounts.List(),
		Cash:        cash,
		Positions:   positions,
		Symbols:     e.registry.List(),
		NextOrderID: e.nextOrderID.Load(),
	}
	sort.Slice(state.Users, func(i, j int) bool { return state.Users[i].ID < state.Users[j].ID })
	sort.Slice(state.Symbols, func(i, j int) bool { return state.Symbols[i].ID < state.Symbols[j].ID })

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, order := range e.orders {
		state.Orders = append(state.Orders, *order)
	}
	sort.Slice(state.Orders, func(i, j int) bool { return state.Orders[i].ID < state.Orders[j].ID })

	symbolIDs := make([]int64, 0, len(e.trades))
	for id := range e.trades {
		symbolIDs = append(symbolIDs, id)
	}
	sort.Slice(symbolIDs, func(i, j int) bool { return symbolIDs[i] < symbolIDs[j] })
	for _, id := range symbolIDs {
		for _, trade := range e.trades[id] {
			state.Trades = append(state.Trades, *trade)
		}
	}
	return state
}

// ImportState replaces the exchange contents with a persisted snapshot.
// Must run before the exchange starts serving.
func (e *Exchange) ImportState(state State) {
	e.accounts.Import(state.Users)
	e.ledger.Import(state.Cash, state.Positions)
	e.registry.Import(state.Symbols)
	e.nextOrderID.Store(state.NextOrderID)

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, sym := range state.Symbols {
		if _, ok := e.books[sym.ID]; !ok {
			e.spawnWorker(sym.ID)
		}
	}
	e.orders = make(map[int64]*common.Order, len(state.Orders))
	for i := range state.Orders {
		order := state.Orders[i]
		e.orders[order.ID] = &order
		if order.Status == common.StatusOpen {
			if b, ok := e.books[order.SymbolID]; ok {
				b.Insert(&order)
			}
		}
	}
	e.trades = make(map[int64][]*common.Trade)
	for i := range state.Trades {
		trade := state.Trades[i]
		e.trades[trade.SymbolID] = append(e.trades[trade.SymbolID], &trade)
	}
}
