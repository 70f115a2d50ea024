package badger

import "github.com/poiesic/advisor/storage"

// NewMemoryRepositories creates in-memory index and history repositories for testing.
// Returns indexRepo, historyRepo, backend, and error.
// Caller must close both repos and backend when done.
func NewMemoryRepositories() (storage.IndexRepository, storage.HistoryRepository, *Backend, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, nil, nil, err
	}

	historyRepo, err := NewHistoryRepository(backend)
	if err != nil {
		backend.Close()
		return nil, nil, nil, err
	}

	return NewIndexRepository(backend), historyRepo, backend, nil
}
