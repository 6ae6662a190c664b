package queue

import (
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/jinshu-im/jinshu/internal/logger"
)

// DeadLetterStore keeps messages that could not be delivered, keyed by
// message id, so an operator can inspect or re-drive them later.
type DeadLetterStore struct {
	db *badger.DB
}

// DeadLetterConfig locates the store on disk. An empty path keeps the store
// in memory, which is only useful in tests.
type DeadLetterConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// OpenDeadLetterStore opens or creates the store at cfg.Path.
func OpenDeadLetterStore(cfg DeadLetterConfig) (*DeadLetterStore, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.Path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open dead letter store: %w", err)
	}
	return &DeadLetterStore{db: db}, nil
}

// Put records an undeliverable message.
func (s *DeadLetterStore) Put(msg *QueuedMessage) error {
	payload, err := msg.Marshal()
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(msg.Key(), payload)
	})
	if err != nil {
		return fmt.Errorf("store dead letter: %w", err)
	}
	logger.Debug("Message stored as dead letter", "key", fmt.Sprintf("%x", msg.Key()))
	return nil
}

// Each visits every stored message. Returning an error from fn stops the
// scan and is returned to the caller.
func (s *DeadLetterStore) Each(fn func(msg *QueuedMessage) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			msg, err := UnmarshalQueuedMessage(value)
			if err != nil {
				return err
			}
			if err := fn(msg); err != nil {
				return err
			}
		}
		return nil
	})
}

// Remove deletes a message after it has been re-driven.
func (s *DeadLetterStore) Remove(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (s *DeadLetterStore) Close() error {
	return s.db.Close()
}
