package models

import "errors"

// Domain error taxonomy. Handlers map these onto HTTP responses:
// ErrNotFound -> 404, ErrUnauthorized -> 401, ErrValidation -> 400,
// ErrNoop -> redirect with no mutation.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation failed")
	ErrNoop         = errors.New("no-op")
)
