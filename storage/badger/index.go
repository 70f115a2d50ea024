package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/advisor/storage"
)

// IndexRepository persists the embedding index under two co-located keys.
type IndexRepository struct {
	backend *Backend
}

var _ storage.IndexRepository = (*IndexRepository)(nil)

// newIndexRepository returns the concrete type for use inside this package.
func newIndexRepository(backend *Backend) *IndexRepository {
	return &IndexRepository{backend: backend}
}

// NewIndexRepository creates an index repository on top of backend.
func NewIndexRepository(backend *Backend) storage.IndexRepository {
	return newIndexRepository(backend)
}

// Close is a no-op; the backend is owned by the caller.
func (r *IndexRepository) Close() error {
	return nil
}

// LoadIndex reads the vectors and manifest.
func (r *IndexRepository) LoadIndex(ctx context.Context) (*storage.PersistedIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var index storage.PersistedIndex
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(indexManifestKey))
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			manifest, err := storage.UnmarshalManifest(val)
			if err != nil {
				return err
			}
			index.Manifest = *manifest
			return nil
		}); err != nil {
			return fmt.Errorf("%w: manifest: %w", storage.ErrSerializationFailed, err)
		}

		item, err = tx.Get([]byte(indexVectorsKey))
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			index.Vectors, err = storage.UnmarshalVectors(val)
			return err
		}); err != nil {
			return fmt.Errorf("%w: vectors: %w", storage.ErrSerializationFailed, err)
		}
		return nil
	}, false)

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &index, nil
}

// SaveIndex writes vectors and manifest in one transaction.
func (r *IndexRepository) SaveIndex(ctx context.Context, index *storage.PersistedIndex) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	vectors, err := storage.MarshalVectors(index.Vectors)
	if err != nil {
		return err
	}
	manifest := index.Manifest
	if manifest.BuiltAt.IsZero() {
		manifest.BuiltAt = time.Now().UTC()
	}

	err = r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set([]byte(indexVectorsKey), vectors); err != nil {
			return err
		}
		if err := tx.Set([]byte(indexManifestKey), storage.MarshalManifest(&manifest)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}

	r.backend.logger.Debug("saved embedding index",
		"identity", manifest.Identity,
		"dimension", manifest.Dimension,
		"count", len(index.Vectors),
		"bytes", len(vectors))
	return nil
}
