package db

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
)

// ErrKeyNotFound is returned by Get and Update when the key is absent.
var ErrKeyNotFound = errors.New("key not found")

const maxUpdateRetries = 8

type Store struct {
	db *badger.DB
}

func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(dataDir, "badger"))
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(namespace, key string) ([]byte, error) {
	fullKey := namespace + key
	var value []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(fullKey))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	return value, err
}

func (s *Store) Set(namespace, key string, value []byte) error {
	fullKey := namespace + key
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(fullKey), value)
	})
}

// Update runs a read-modify-write of one key inside a single transaction.
// fn receives the current value and returns the replacement. Transactions
// that lose a write conflict are retried with the fresh value.
func (s *Store) Update(namespace, key string, fn func(current []byte) ([]byte, error)) error {
	fullKey := []byte(namespace + key)

	for attempt := 0; ; attempt++ {
		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(fullKey)
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
			}
			if err != nil {
				return err
			}
			current, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			next, err := fn(current)
			if err != nil {
				return err
			}
			return txn.Set(fullKey, next)
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if attempt >= maxUpdateRetries {
			return fmt.Errorf("update %s: %w", key, err)
		}
		slog.Debug("badger conflict, retrying", "key", key, "attempt", attempt+1)
	}
}

// Scan calls fn with every value under namespace+prefix in key order.
func (s *Store) Scan(namespace, prefix string, fn func(key string, value []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		fullPrefix := []byte(namespace + prefix)
		for it.Seek(fullPrefix); it.ValidForPrefix(fullPrefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(string(item.Key())[len(namespace):], value); err != nil {
				return err
			}
		}
		return nil
	})
}
