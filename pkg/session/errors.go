package session

import "errors"

// Sentinel errors exposed by the store.
var (
	ErrMissingBackend     = errors.New("session.store.missing_backend")
	ErrUnsupportedBackend = errors.New("session.store.unsupported_backend")
	ErrMissingKey         = errors.New("session.store.missing_key")
	ErrInvalidScope       = errors.New("session.store.invalid_scope")
	ErrInvalidExpiration  = errors.New("session.store.invalid_expiration")
	ErrUnencodableData    = errors.New("session.store.unencodable_data")
	// ErrCorruptRecord indicates a stored record could not be decoded; it is never used for absence.
	ErrCorruptRecord = errors.New("session.store.corrupt_record")
)
