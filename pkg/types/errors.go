package types

import "errors"

// Error classes surfaced by the export pipeline and its collaborators.
// Wrapped errors carry the detail; test with errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrIO            = errors.New("io error")
	ErrInvalidInput  = errors.New("invalid input")
)
