package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
)

// Verification outcomes. The messages are shown to end users as-is.
var (
	ErrCodeNotFound   = errors.New("no verification code found, please request a new one")
	ErrCodeExpired    = errors.New("code expired, please request a new one")
	ErrCodeMismatch   = errors.New("invalid code")
	ErrDeliveryFailed = errors.New("verification code could not be delivered, please try again")
)
