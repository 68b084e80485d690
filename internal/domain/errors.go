package domain

import "errors"

// Sentinel errors shared by the engine, storage and service layers.
// Use errors.Is to check: errors.Is(err, domain.ErrNotFound)
var (
	ErrNotFound         = errors.New("revisit: review record not found")
	ErrAlreadyExists    = errors.New("revisit: review record already exists")
	ErrInvalidInput     = errors.New("revisit: invalid input")
	ErrStoreUnavailable = errors.New("revisit: store unavailable")
)
