package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrOrderNotOpen        = errors.New("order is not open")
	ErrNoAcceptedBid       = errors.New("order has no accepted bid")
	ErrDuplicateBid        = errors.New("chef already placed a bid on this order")
	ErrBidNotPending       = errors.New("bid is not pending")
	ErrInvalidTransition   = errors.New("invalid order status transition")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidAmount       = errors.New("amount must be a positive number of whole cents")
	ErrConcurrencyConflict = errors.New("concurrent update conflict")
)

// ValidationError reports malformed input on a single field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// InvalidTransition wraps ErrInvalidTransition with the attempted move.
func InvalidTransition(from, to OrderStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Code returns the stable error code clients see for err.
func Code(err error) string {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return "ValidationError"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrNotAuthorized):
		return "NotAuthorized"
	case errors.Is(err, ErrOrderNotOpen):
		return "OrderNotOpen"
	case errors.Is(err, ErrNoAcceptedBid):
		return "NoAcceptedBid"
	case errors.Is(err, ErrDuplicateBid):
		return "DuplicateBid"
	case errors.Is(err, ErrBidNotPending):
		return "BidNotPending"
	case errors.Is(err, ErrInvalidTransition):
		return "InvalidTransition"
	case errors.Is(err, ErrInsufficientFunds):
		return "InsufficientFunds"
	case errors.Is(err, ErrInvalidAmount):
		return "InvalidAmount"
	case errors.Is(err, ErrConcurrencyConflict):
		return "ConcurrencyConflict"
	}
	return "InternalError"
}
