package store

import "errors"

var (
	// ErrInvalidTenant is returned for an empty tenant or the literal "null".
	ErrInvalidTenant = errors.New("invalid or missing tenant")

	// ErrInvalidKey is returned when an organization or person id cannot be used as a path segment.
	ErrInvalidKey = errors.New("invalid template key")

	// ErrStoreIO wraps unexpected filesystem failures while reading or writing templates.
	ErrStoreIO = errors.New("template store I/O error")
)
