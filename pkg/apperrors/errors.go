package apperrors

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInvalidSignCode     = errors.New("invalid sign code")
	ErrInvalidCategory     = errors.New("invalid sign category")
	ErrProviderUnavailable = errors.New("external image provider not configured")
)
