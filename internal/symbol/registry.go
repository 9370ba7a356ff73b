// Package symbol tracks the set of tradable instruments, their outstanding
// share counts and their last/previous trade prices.
package symbol

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"vidar/internal/common"
)

// MintCap is the most shares a single mint call may add to the float.
const MintCap = 1_000_000

type Symbol struct {
	ID          int64
	Ticker      string
	Outstanding int64
	LastPrice   decimal.NullDecimal
	PrevPrice   decimal.NullDecimal
}

type Registry struct {
	mu       sync.RWMutex
	byID     map[int64]*Symbol
	byTicker map[string]int64
	nextID   int64
}

func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[int64]*Symbol),
		byTicker: make(map[string]int64),
	}
}

// Create registers a new symbol with zero outstanding shares.
func (r *Registry) Create(ticker string) (Symbol, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return Symbol{}, fmt.Errorf("%w: empty ticker", common.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byTicker[ticker]; exists {
		return Symbol{}, fmt.Errorf("%w: ticker %s already listed", common.ErrInvalidInput, ticker)
	}
	r.nextID++
	sym := &Symbol{ID: r.nextID, Ticker: ticker}
	r.byID[sym.ID] = sym
	r.byTicker[ticker] = sym.ID
	return *sym, nil
}

// Get returns a copy of the symbol.
func (r *Registry) Get(id int64) (Symbol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sym, ok := r.byID[id]
	if !ok {
		return Symbol{}, false
	}
	return *sym, true
}

func (r *Registry) ByTicker(ticker string) (Symbol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byTicker[strings.ToUpper(strings.TrimSpace(ticker))]
	if !ok {
		return Symbol{}, false
	}
	return *r.byID[id], true
}

func (r *Registry) List() []Symbol {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Symbol, 0, len(r.byID))
	for _, sym := range r.byID {
		out = append(out, *sym)
	}
	return out
}

// Delete removes the symbol. The engine refuses the call before here while
// any resting order or non-zero position references it.
func (r *Registry) Delete(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sym, ok := r.byID[id]
	if !ok {
		return common.ErrUnknownSymbol
	}
	delete(r.byTicker, sym.Ticker)
	delete(r.byID, id)
	return nil
}

// AddOutstanding applies a signed delta to the float. The caller validates
// mint caps and burn preconditions; this refuses only a float below zero.
func (r *Registry) AddOutstanding(id int64, delta int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sym, ok := r.byID[id]
	if !ok {
		return 0, common.ErrUnknownSymbol
	}
	if sym.Outstanding+delta < 0 {
		return 0, fmt.Errorf("%w: outstanding %d, burn %d", common.ErrInsufficientShares, sym.Outstanding, -delta)
	}
	sym.Outstanding += delta
	return sym.Outstanding, nil
}

// StampPrices records the execution price of the latest fill, demoting the
// previous last price. Called by the engine only, after a submission that
// produced fills.
func (r *Registry) StampPrices(id int64, lastFill decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sym, ok := r.byID[id]
	if !ok {
		return
	}
	prev := sym.LastPrice
	if !prev.Valid {
		prev = decimal.NullDecimal{Decimal: lastFill, Valid: true}
	}
	sym.PrevPrice = prev
	sym.LastPrice = decimal.NullDecimal{Decimal: lastFill, Valid: true}
}

// Import replaces the registry contents with a persisted snapshot.
func (r *Registry) Import(symbols []Symbol) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID = make(map[int64]*Symbol, len(symbols))
	r.byTicker = make(map[string]int64, len(symbols))
	r.nextID = 0
	for _, s := range symbols {
		sym := s
		r.byID[sym.ID] = &sym
		r.byTicker[sym.Ticker] = sym.ID
		if sym.ID > r.nextID {
			r.nextID = sym.ID
		}
	}
}
