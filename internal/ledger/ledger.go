// Package ledger holds the authoritative cash and position state. Cash is a
// two-decimal quantity; positions are signed share counts, negative meaning
// short. A position row whose quantity settles to zero is removed.
//
// The ledger's own mutex only makes individual operations atomic. The
// multi-step invariants (reserve, settle, refund as one unit) are provided
// by the engine, which brackets every composition inside the owning
// symbol's critical section.
package ledger

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"vidar/internal/common"
)

type positionKey struct {
	UserID   int64
	SymbolID int64
}

type Ledger struct {
	mu        sync.RWMutex
	cash      map[int64]decimal.Decimal
	positions map[positionKey]int64
}

func New() *Ledger {
	return &Ledger{
		cash:      make(map[int64]decimal.Decimal),
		positions: make(map[positionKey]int64),
	}
}

// Balance returns the user's free cash. Users the ledger has never seen
// hold zero.
func (l *Ledger) Balance(userID int64) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.cash[userID]
}

// ReserveCash verifies balance >= amount and deducts it in one step.
func (l *Ledger) ReserveCash(userID int64, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.cash[userID]
	if balance.LessThan(amount) {
		return fmt.Errorf("%w: need %s, have %s", common.ErrInsufficientFunds, amount, balance)
	}
	l.cash[userID] = balance.Sub(amount)
	return nil
}

func (l *Ledger) CreditCash(userID int64, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cash[userID] = l.cash[userID].Add(amount)
}

func (l *Ledger) DebitCash(userID int64, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cash[userID] = l.cash[userID].Sub(amount)
}

// AdjustPosition applies a signed delta to the (user, symbol) position,
// creating the row if absent and deleting it when the result is zero.
// Returns the resulting quantity.
func (l *Ledger) AdjustPosition(userID, symbolID int64, delta int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := positionKey{UserID: userID, SymbolID: symbolID}
	qty := l.positions[key] + delta
	if qty == 0 {
		delete(l.positions, key)
	} else {
		l.positions[key] = qty
	}
	return qty
}

// Position returns the signed quantity, defaulting to 0.
func (l *Ledger) Position(userID, symbolID int64) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.positions[positionKey{UserID: userID, SymbolID: symbolID}]
}

// PositionsFor returns every non-zero position the user holds, keyed by
// symbol id.
func (l *Ledger) PositionsFor(userID int64) map[int64]int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[int64]int64)
	for key, qty := range l.positions {
		if key.UserID == userID {
			out[key.SymbolID] = qty
		}
	}
	return out
}

// SymbolHeld reports whether any user holds a non-zero position in the
// symbol. Used to refuse symbol deletion.
func (l *Ledger) SymbolHeld(symbolID int64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for key := range l.positions {
		if key.SymbolID == symbolID {
			return true
		}
	}
	return false
}

// TotalPosition sums every user's position for the symbol, short positions
// counting negatively. The conservation invariant keeps this equal to the
// symbol's outstanding share count.
func (l *Ledger) TotalPosition(symbolID int64) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var sum int64
	for key, qty := range l.positions {
		if key.SymbolID == symbolID {
			sum += qty
		}
	}
	return sum
}

// RemoveUser drops the user's cash row and every position row. Deletion
// cascade for account removal.
func (l *Ledger) RemoveUser(userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.cash, userID)
	for key := range l.positions {
		if key.UserID == userID {
			delete(l.positions, key)
		}
	}
}

// Entry is one row of an exported ledger snapshot.
type Entry struct {
	UserID   int64
	SymbolID int64
	Quantity int64
}

// Export copies the full ledger state for persistence.
func (l *Ledger) Export() (map[int64]decimal.Decimal, []Entry) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cash := make(map[int64]decimal.Decimal, len(l.cash))
	for id, bal := range l.cash {
		cash[id] = bal
	}
	positions := make([]Entry, 0, len(l.positions))
	for key, qty := range l.positions {
		positions = append(positions, Entry{UserID: key.UserID, SymbolID: key.SymbolID, Quantity: qty})
	}
	return cash, positions
}

// Import replaces the ledger state with a previously exported snapshot.
func (l *Ledger) Import(cash map[int64]decimal.Decimal, positions []Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cash = make(map[int64]decimal.Decimal, len(cash))
	for id, bal := range cash {
		l.cash[id] = bal
	}
	l.positions = make(map[positionKey]int64, len(positions))
	for _, p := range positions {
		if p.Quantity != 0 {
			l.positions[positionKey{UserID: p.UserID, SymbolID: p.SymbolID}] = p.Quantity
		}
	}
}
