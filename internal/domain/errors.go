package domain

import "errors"

var (
	ErrValidation       = errors.New("validation error")
	ErrIdentityNotFound = errors.New("identity not found")
	ErrStorage          = errors.New("storage error")
	ErrDelivery         = errors.New("delivery error")
	ErrRateLimited      = errors.New("rate limited")
)

// Códigos de error expuestos en ErrorEvent.
const (
	CodeValidation       = "validation_error"
	CodeIdentityNotFound = "identity_not_found"
	CodeStorage          = "storage_error"
	CodeRateLimited      = "rate_limited"
	CodeDelivery         = "delivery_error"
	CodeInternal         = "internal_error"
)

// ErrorCode traduce un error del pipeline a su código de wire.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrIdentityNotFound):
		return CodeIdentityNotFound
	case errors.Is(err, ErrStorage):
		return CodeStorage
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrDelivery):
		return CodeDelivery
	default:
		return CodeInternal
	}
}

// NewErrorEvent arma el evento de error para el cliente emisor.
func NewErrorEvent(err error) ErrorEvent {
	ev := ErrorEvent{Error: ErrorCode(err)}
	switch ev.Error {
	case CodeValidation, CodeIdentityNotFound, CodeRateLimited:
		ev.Detail = err.Error()
	}
	return ev
}
