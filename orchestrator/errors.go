package orchestrator

import "errors"

var (
	// ErrSearcherRequired is returned when a searcher is not provided.
	ErrSearcherRequired = errors.New("searcher required")

	// ErrInterpreterRequired is returned when an interpreter is not provided.
	ErrInterpreterRequired = errors.New("interpreter required")

	// ErrGeneratorRequired is returned when a generator is not provided.
	ErrGeneratorRequired = errors.New("generator required")
)
