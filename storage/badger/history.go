package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/poiesic/advisor/core"
	"github.com/poiesic/advisor/storage"
)

// HistoryRepository stores conversation messages keyed by session and a
// global sequence number.
type HistoryRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.HistoryRepository = (*HistoryRepository)(nil)

func newHistoryRepository(backend *Backend) (*HistoryRepository, error) {
	idSeq, err := backend.GetSequence(messageIDSeq)
	if err != nil {
		return nil, err
	}

	return &HistoryRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// NewHistoryRepository creates a history repository on top of backend.
func NewHistoryRepository(backend *Backend) (storage.HistoryRepository, error) {
	return newHistoryRepository(backend)
}

// Close releases the ID sequence.
func (r *HistoryRepository) Close() error {
	return r.idSeq.Release()
}

// AppendMessages stores messages in order.
func (r *HistoryRepository) AppendMessages(ctx context.Context, messages ...*core.Message) ([]*core.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, msg := range messages {
		if err := core.ValidateRole(msg.Role); err != nil {
			return nil, err
		}
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, msg := range messages {
			seq, err := r.idSeq.Next()
			if err != nil {
				return err
			}
			// BadgerDB sequences can return 0 on first call, so we skip it
			if seq == 0 {
				seq, err = r.idSeq.Next()
				if err != nil {
					return err
				}
			}

			if msg.ID == "" {
				msg.ID = uuid.NewString()
			}
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now().UTC()
			}

			key := makeMessageKey(msg.SessionID, seq)
			if err := tx.Set(key, storage.MarshalMessage(msg)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)

	return messages, err
}

// RecentMessages returns up to limit most recent messages of a session, oldest first.
func (r *HistoryRepository) RecentMessages(ctx context.Context, sessionID string, limit int) ([]*core.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := makeMessagePrefix(sessionID)
	keyLen := len(prefix) + 8

	var results []*core.Message
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		// Use reverse iterator to get most recent messages first
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix

		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Seek past the last possible key with this prefix
		seekKey := makeMessageKey(sessionID, ^uint64(0))
		for iter.Seek(seekKey); iter.Valid(); iter.Next() {
			if limit > 0 && len(results) >= limit {
				break
			}
			item := iter.Item()
			// Sessions whose id extends this one share the prefix.
			if len(item.Key()) != keyLen {
				continue
			}

			var msg *core.Message
			if err := item.Value(func(val []byte) error {
				var err error
				msg, err = storage.UnmarshalMessage(val)
				return err
			}); err != nil {
				return err
			}
			results = append(results, msg)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	// Oldest first
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}
