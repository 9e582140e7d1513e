package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/chefbid/internal/domain"
)

// internalErrorKey holds the error behind a 500 so RequestLogger can log it.
const internalErrorKey = "internal_error"

// StatusFor maps a domain error onto its HTTP status.
func StatusFor(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrOrderNotOpen),
		errors.Is(err, domain.ErrNoAcceptedBid),
		errors.Is(err, domain.ErrDuplicateBid),
		errors.Is(err, domain.ErrBidNotPending),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// WriteError renders err as {"error": code, "message": ...}. Internal errors
// are handed to RequestLogger and their message hidden from the client.
func WriteError(c echo.Context, err error) error {
	status := StatusFor(err)
	body := echo.Map{"error": domain.Code(err), "message": err.Error()}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		body["field"] = verr.Field
		body["message"] = verr.Message
	}
	if status == http.StatusInternalServerError {
		c.Set(internalErrorKey, err)
		body["message"] = "internal server error"
	}
	return c.JSON(status, body)
}

// BadRequest renders a malformed request body as a validation error.
func BadRequest(c echo.Context, field, message string) error {
	return WriteError(c, domain.NewValidationError(field, message))
}
