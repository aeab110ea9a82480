package domain

import "errors"

// Persistence errors. Store implementations map driver-specific conditions
// onto these so callers can branch with errors.Is.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)
