package common

import "errors"

// Every rejection the exchange can produce surfaces as one of these.
// Callers classify with errors.Is; the canonical messages are what the
// transport puts in its error envelope.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnknownSymbol        = errors.New("unknown symbol")
	ErrUnknownOrder         = errors.New("order not found or closed")
	ErrUnknownUser          = errors.New("unknown user")
	ErrCrossesBook          = errors.New("limit order would cross the book, submit a market order instead")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientShares   = errors.New("insufficient shares in circulation")
	ErrNotEnoughLiquidity   = errors.New("not enough liquidity")
	ErrSymbolInUse          = errors.New("symbol has resting orders or open positions")
	ErrLastManager          = errors.New("cannot delete the last remaining manager")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrInternal             = errors.New("internal error")
	ErrExchangeShuttingDown = errors.New("exchange shutting down")
)
