// Package engine is the order-matching and settlement core. The Exchange
// serializes all writes for a symbol through that symbol's writer
// goroutine, so cash, positions, book and trade log evolve together inside
// one critical section per submission.
package engine

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"

	"vidar/internal/accounts"
	"vidar/internal/book"
	"vidar/internal/common"
	"vidar/internal/ledger"
	"vidar/internal/symbol"
)

const taskChanSize = 100

type Config struct {
	// StartingCash is credited to every freshly registered account.
	StartingCash decimal.Decimal
}

// worker owns all writes for one symbol. Tasks queue in arrival order; the
// queue order is the happens-before of book mutations and trade records.
type worker struct {
	tasks chan func()
}

type Exchange struct {
	cfg      Config
	accounts *accounts.Store
	ledger   *ledger.Ledger
	registry *symbol.Registry

	mu      sync.RWMutex
	books   map[int64]*book.Book
	workers map[int64]*worker
	orders  map[int64]*common.Order
	trades  map[int64][]*common.Trade

	// gate quiesces every symbol worker for state export: tasks hold the
	// read side, ExportState the write side.
	gate sync.RWMutex

	nextOrderID atomic.Int64
	t           tomb.Tomb
}

func New(cfg Config, acct *accounts.Store, led *ledger.Ledger, reg *symbol.Registry) *Exchange {
	e := &Exchange{
		cfg:      cfg,
		accounts: acct,
		ledger:   led,
		registry: reg,
		books:    make(map[int64]*book.Book),
		workers:  make(map[int64]*worker),
		orders:   make(map[int64]*common.Order),
		trades:   make(map[int64][]*common.Trade),
	}
	// Keeper goroutine so the tomb outlives symbol churn.
	e.t.Go(func() error {
		<-e.t.Dying()
		return nil
	})
	return e
}

// Close stops every symbol worker and waits for in-flight tasks.
func (e *Exchange) Close() error {
	e.t.Kill(nil)
	return e.t.Wait()
}

func (e *Exchange) runWorker(w *worker) error {
	for {
		select {
		case <-e.t.Dying():
			return nil
		case task := <-w.tasks:
			e.gate.RLock()
			task()
			e.gate.RUnlock()
		}
	}
}

// do runs fn on the symbol's writer goroutine and waits for it.
func (e *Exchange) do(symbolID int64, fn func()) error {
	e.mu.RLock()
	w, ok := e.workers[symbolID]
	e.mu.RUnlock()
	if !ok {
		return common.ErrUnknownSymbol
	}

	done := make(chan struct{})
	task := func() {
		defer close(done)
		fn()
	}
	select {
	case w.tasks <- task:
	case <-e.t.Dying():
		return common.ErrExchangeShuttingDown
	}
	select {
	case <-done:
		return nil
	case <-e.t.Dying():
		return common.ErrExchangeShuttingDown
	}
}

func (e *Exchange) spawnWorker(symbolID int64) {
	w := &worker{tasks: make(chan func(), taskChanSize)}
	e.books[symbolID] = book.New()
	e.workers[symbolID] = w
	e.t.Go(func() error {
		return e.runWorker(w)
	})
}

// --- Accounts ---------------------------------------------------------------

// Register creates a regular account and credits the starting balance.
func (e *Exchange) Register(username string) (accounts.User, error) {
	return e.createUser(username, common.RoleUser)
}

// CreateUserAs lets a manager create an account with an explicit role.
func (e *Exchange) CreateUserAs(actorID int64, username string, role common.Role) (accounts.User, error) {
	if err := e.requireManager(actorID); err != nil {
		return accounts.User{}, err
	}
	return e.createUser(username, role)
}

func (e *Exchange) createUser(username string, role common.Role) (accounts.User, error) {
	user, err := e.accounts.Create(username, role)
	if err != nil {
		return accounts.User{}, err
	}
	e.ledger.CreditCash(user.ID, e.cfg.StartingCash)
	log.Info().Int64("user", user.ID).Str("username", user.Username).Stringer("role", role).Msg("account registered")
	return user, nil
}

// Bootstrap ensures a manager account exists, creating one with the given
// username when the exchange starts empty.
func (e *Exchange) Bootstrap(username string) (accounts.User, error) {
	if user, ok := e.accounts.ByName(username); ok {
		return user, nil
	}
	if e.accounts.ManagerCount() > 0 {
		return accounts.User{}, fmt.Errorf("%w: %s", common.ErrUnknownUser, username)
	}
	return e.createUser(username, common.RoleManager)
}

// DeleteUser removes an account: resting orders are cancelled, positions
// dropped, and the user's ids on trade history nulled out. Refused for the
// last remaining manager.
func (e *Exchange) DeleteUser(actorID, targetID int64) error {
	actor, ok := e.accounts.Get(actorID)
	if !ok {
		return common.ErrUnknownUser
	}
	if actorID != targetID && actor.Role != common.RoleManager {
		return common.ErrPermissionDenied
	}
	target, ok := e.accounts.Get(targetID)
	if !ok {
		return common.ErrUnknownUser
	}
	if target.Role == common.RoleManager && e.accounts.ManagerCount() == 1 {
		return common.ErrLastManager
	}

	// Cancel the target's resting orders symbol by symbol, inside each
	// symbol's critical section.
	e.mu.RLock()
	symbolIDs := make([]int64, 0, len(e.books))
	for id := range e.books {
		symbolIDs = append(symbolIDs, id)
	}
	e.mu.RUnlock()
	for _, symbolID := range symbolIDs {
		sid := symbolID
		if err := e.do(sid, func() {
			b := e.bookFor(sid)
			if b == nil {
				return
			}
			for _, orderID := range b.OrdersOf(targetID) {
				if err := e.cancelLocked(targetID, orderID); err != nil {
					log.Error().Err(err).Int64("order", orderID).Msg("cascade cancel failed")
				}
			}
		}); err != nil {
			return err
		}
	}

	e.ledger.RemoveUser(targetID)

	e.mu.Lock()
	for _, tradeLog := range e.trades {
		for _, trade := range tradeLog {
			if trade.BuyUserID != nil && *trade.BuyUserID == targetID {
				trade.BuyUserID = nil
			}
			if trade.SellUserID != nil && *trade.SellUserID == targetID {
				trade.SellUserID = nil
			}
		}
	}
	e.mu.Unlock()

	if err := e.accounts.Delete(targetID); err != nil {
		return err
	}
	log.Info().Int64("user", targetID).Msg("account deleted")
	return nil
}

func (e *Exchange) requireManager(actorID int64) error {
	actor, ok := e.accounts.Get(actorID)
	if !ok {
		return common.ErrUnknownUser
	}
	if actor.Role != common.RoleManager {
		return common.ErrPermissionDenied
	}
	return nil
}

// --- Admin operations -------------------------------------------------------

func (e *Exchange) CreateSymbol(actorID int64, ticker string) (symbol.Symbol, error) {
	if err := e.requireManager(actorID); err != nil {
		return symbol.Symbol{}, err
	}
	sym, err := e.registry.Create(ticker)
	if err != nil {
		return symbol.Symbol{}, err
	}
	e.mu.Lock()
	e.spawnWorker(sym.ID)
	e.mu.Unlock()
	log.Info().Str("ticker", sym.Ticker).Int64("symbol", sym.ID).Msg("symbol listed")
	return sym, nil
}

// DeleteSymbol delists a symbol once nothing references it.
func (e *Exchange) DeleteSymbol(actorID, symbolID int64) error {
	if err := e.requireManager(actorID); err != nil {
		return err
	}
	var rerr error
	err := e.do(symbolID, func() {
		b := e.bookFor(symbolID)
		if b == nil {
			rerr = common.ErrUnknownSymbol
			return
		}
		if b.Len() > 0 || e.ledger.SymbolHeld(symbolID) {
			rerr = common.ErrSymbolInUse
			return
		}
		if err := e.registry.Delete(symbolID); err != nil {
			rerr = err
			return
		}
		e.mu.Lock()
		delete(e.books, symbolID)
		delete(e.workers, symbolID)
		delete(e.trades, symbolID)
		e.mu.Unlock()
	})
	if err != nil {
		return err
	}
	if rerr == nil {
		log.Info().Int64("symbol", symbolID).Msg("symbol delisted")
	}
	return rerr
}

// Mint adds shares to the float and credits them to the invoking manager.
func (e *Exchange) Mint(actorID, symbolID, qty int64) error {
	if err := e.requireManager(actorID); err != nil {
		return err
	}
	if qty < 1 || qty > symbol.MintCap {
		return fmt.Errorf("%w: mint quantity %d", common.ErrInvalidInput, qty)
	}
	var rerr error
	err := e.do(symbolID, func() {
		if _, err := e.registry.AddOutstanding(symbolID, qty); err != nil {
			rerr = err
			return
		}
		e.ledger.AdjustPosition(actorID, symbolID, qty)
	})
	if err != nil {
		return err
	}
	return rerr
}

// Burn is the inverse of Mint; the manager must own the shares burned.
func (e *Exchange) Burn(actorID, symbolID, qty int64) error {
	if err := e.requireManager(actorID); err != nil {
		return err
	}
	if qty < 1 {
		return fmt.Errorf("%w: burn quantity %d", common.ErrInvalidInput, qty)
	}
	var rerr error
	err := e.do(symbolID, func() {
		if e.ledger.Position(actorID, symbolID) < qty {
			rerr = fmt.Errorf("%w: burn exceeds held position", common.ErrInsufficientShares)
			return
		}
		if _, err := e.registry.AddOutstanding(symbolID, -qty); err != nil {
			rerr = err
			return
		}
		e.ledger.AdjustPosition(actorID, symbolID, -qty)
	})
	if err != nil {
		return err
	}
	return rerr
}

// --- Queries ----------------------------------------------------------------

// Position is one row of a user profile.
type Position struct {
	SymbolID int64
	Ticker   string
	Quantity int64
}

type Profile struct {
	User      accounts.User
	Cash      decimal.Decimal
	Positions []Position
}

func (e *Exchange) Profile(userID int64) (Profile, error) {
	user, ok := e.accounts.Get(userID)
	if !ok {
		return Profile{}, common.ErrUnknownUser
	}
	held := e.ledger.PositionsFor(userID)
	positions := make([]Position, 0, len(held))
	for symbolID, qty := range held {
		ticker := ""
		if sym, ok := e.registry.Get(symbolID); ok {
			ticker = sym.Ticker
		}
		positions = append(positions, Position{SymbolID: symbolID, Ticker: ticker, Quantity: qty})
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].SymbolID < positions[j].SymbolID })
	return Profile{User: user, Cash: e.ledger.Balance(userID), Positions: positions}, nil
}

// Snapshot is a consistent view of one symbol's book and prices.
type Snapshot struct {
	Symbol symbol.Symbol
	Bids   []book.Level
	Asks   []book.Level
}

func (e *Exchange) BookSnapshot(symbolID int64) (Snapshot, error) {
	var snap Snapshot
	var rerr error
	err := e.do(symbolID, func() {
		sym, ok := e.registry.Get(symbolID)
		if !ok {
			rerr = common.ErrUnknownSymbol
			return
		}
		b := e.bookFor(symbolID)
		snap = Snapshot{
			Symbol: sym,
			Bids:   b.Depth(common.Buy),
			Asks:   b.Depth(common.Sell),
		}
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, rerr
}

// RecentTrades returns up to limit trades for the symbol, newest first.
func (e *Exchange) RecentTrades(symbolID int64, limit int) ([]common.Trade, error) {
	if _, ok := e.registry.Get(symbolID); !ok {
		return nil, common.ErrUnknownSymbol
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	tradeLog := e.trades[symbolID]
	if limit > len(tradeLog) {
		limit = len(tradeLog)
	}
	out := make([]common.Trade, 0, limit)
	for i := len(tradeLog) - 1; i >= len(tradeLog)-limit; i-- {
		out = append(out, *tradeLog[i])
	}
	return out, nil
}

// Symbols lists every tradable symbol.
func (e *Exchange) Symbols() []symbol.Symbol {
	symbols := e.registry.List()
	sort.Slice(symbols, func(i, j int) bool { return symbols[i].ID < symbols[j].ID })
	return symbols
}

// Order returns a copy of a persisted order.
func (e *Exchange) Order(orderID int64) (common.Order, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	order, ok := e.orders[orderID]
	if !ok {
		return common.Order{}, false
	}
	return *order, true
}

func (e *Exchange) bookFor(symbolID int64) *book.Book {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.books[symbolID]
}
