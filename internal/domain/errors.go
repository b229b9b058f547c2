package domain

import "errors"

// Error taxonomy shared by every layer. Repositories translate driver errors
// into these, services wrap them with context, transports map them to codes.
var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrForbidden            = errors.New("forbidden")
	ErrNotEligible          = errors.New("not eligible")
	ErrConflict             = errors.New("conflict")
	ErrTransportUnavailable = errors.New("realtime transport unavailable")
	ErrNotFound             = errors.New("not found")
)
