package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// InsufficientFundsError means cash_available cannot cover a reservation.
type InsufficientFundsError struct {
	Have decimal.Decimal
	Want decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: have %s, want %s", e.Have.StringFixed(2), e.Want.StringFixed(2))
}

// InsufficientHoldingsError means a sell exceeds the free position.
type InsufficientHoldingsError struct {
	Have int64
	Want int64
}

func (e *InsufficientHoldingsError) Error() string {
	return fmt.Sprintf("insufficient holdings: have %d, want %d", e.Have, e.Want)
}

// InvariantViolationError indicates ledger corruption. The enclosing
// transaction must abort; the caller maps this to a 500.
type InvariantViolationError struct {
	Detail string
}

func (e *InvariantViolationError) Error() string {
	return "invariant violation: " + e.Detail
}

// NotAuthorizedError means the acting trader is not mapped to the client.
type NotAuthorizedError struct {
	TraderID int64
	ClientID int64
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("trader %d is not authorized for client %d", e.TraderID, e.ClientID)
}

var (
	// ErrInvalidPrice rejects zero or negative prices.
	ErrInvalidPrice = errors.New("price must be strictly positive")
	// ErrInvalidQuantity rejects zero or negative quantities.
	ErrInvalidQuantity = errors.New("quantity must be strictly positive")
	// ErrOrderNotFound is returned for unknown order ids.
	ErrOrderNotFound = errors.New("order not found")
	// ErrUserNotFound is returned for unknown user ids.
	ErrUserNotFound = errors.New("user not found")
	// ErrHoldingNotFound is returned when no (user, symbol) position exists.
	ErrHoldingNotFound = errors.New("holding not found")
	// ErrFillAlreadyApplied is raised on a duplicate (order_id, broker_fill_id).
	// Callers treat it as idempotent success, not a failure.
	ErrFillAlreadyApplied = errors.New("fill already applied")
	// ErrFillOnTerminal is raised when a fill arrives for a terminal order.
	ErrFillOnTerminal = errors.New("order is in a terminal state")
	// ErrInvalidCancelStatus rejects cancel statuses other than CANCELLED/REJECTED.
	ErrInvalidCancelStatus = errors.New("cancel status must be CANCELLED or REJECTED")
)
