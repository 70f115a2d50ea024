package search

import "errors"

var (
	// ErrVectorSourceRequired is returned when a vector source is not provided.
	ErrVectorSourceRequired = errors.New("vector source required")
)
