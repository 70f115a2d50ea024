package embedding

import "errors"

var (
	// ErrInvalidMaxAttempts indicates that maxAttempts must be greater than 0.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrEmbedderRequired indicates that an embedder is required.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrRepositoryRequired indicates that an index repository is required.
	ErrRepositoryRequired = errors.New("index repository is required")
)
