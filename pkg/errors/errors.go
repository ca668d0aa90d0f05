package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrInternal          = errors.New("internal error")
	ErrDelivery          = errors.New("delivery failed")
	ErrServiceUnavail    = errors.New("service unavailable")
)

// AppError represents a structured application error with a stable code.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound reports a missing entity.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Err:     ErrNotFound,
	}
}

// InvalidInput reports input that failed validation. The message is safe to
// show to the end user.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Err:     ErrInvalidInput,
	}
}

// Forbidden reports an actor without the required privilege.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Err:     ErrForbidden,
	}
}

// InvalidTransition reports a state change the lifecycle does not allow.
func InvalidTransition(resource, id, from, to string) *AppError {
	return &AppError{
		Code:    "INVALID_TRANSITION",
		Message: fmt.Sprintf("%s %s cannot move from %s to %s", resource, id, from, to),
		Err:     ErrInvalidTransition,
	}
}

// Internal wraps an unexpected failure, typically from storage.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Err:     errors.Join(ErrInternal, err),
	}
}

// Delivery wraps a failed call to an outbound messaging collaborator.
func Delivery(op string, err error) *AppError {
	return &AppError{
		Code:    "DELIVERY_FAILED",
		Message: fmt.Sprintf("%s failed", op),
		Err:     errors.Join(ErrDelivery, err),
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// Kind returns a short, low-cardinality label for the error, suitable for
// metrics and log attributes.
func Kind(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "validation"
	case errors.Is(err, ErrForbidden):
		return "authorization"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrDelivery):
		return "delivery"
	case errors.Is(err, ErrServiceUnavail):
		return "unavailable"
	default:
		return "internal"
	}
}
