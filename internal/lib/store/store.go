// Package store is the transactional key/value layer every pool operation runs inside. A single
// Update call is the unit of atomicity: either every write made through its Tx commits, or none do.
package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v3"
)

var ErrNotFound = errors.New("key not found")

type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) a badger database in dataDir. An empty dataDir opens an
// in-memory database which is discarded on Close.
func Open(dataDir string) (*Store, error) {
	var opts badger.Options
	if dataDir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		opts = badger.DefaultOptions(dataDir).
			WithSyncWrites(true).
			WithNumVersionsToKeep(1)
	}
	db, err := badger.Open(opts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory is shorthand for Open("").
func OpenInMemory() (*Store, error) {
	return Open("")
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Update runs fn in a read-write transaction. Returning an error from fn discards every write.
func (s *Store) Update(fn func(tx *Tx) error) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return fn(&Tx{txn: txn})
	})
}

// View runs fn in a read-only transaction.
func (s *Store) View(fn func(tx *Tx) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&Tx{txn: txn})
	})
}

type Tx struct {
	txn *badger.Txn
}

// Get decodes the JSON value stored under key into v.
func (t *Tx) Get(key string, v any) error {
	item, err := t.txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

// Put JSON encodes v and stores it under key.
func (t *Tx) Put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return t.txn.Set([]byte(key), data)
}

// Has reports whether key exists.
func (t *Tx) Has(key string) (bool, error) {
	_, err := t.txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (t *Tx) Delete(key string) error {
	return t.txn.Delete([]byte(key))
}

// GetUint64 returns the big-endian counter under key, 0 when absent.
func (t *Tx) GetUint64(key string) (uint64, error) {
	item, err := t.txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var val uint64
	err = item.Value(func(b []byte) error {
		if len(b) != 8 {
			return fmt.Errorf("value under %s is %d bytes, not a uint64", key, len(b))
		}
		val = binary.BigEndian.Uint64(b)
		return nil
	})
	return val, err
}

// PutUint64 stores val under key. Zero values are deleted so absent and zero read the same.
func (t *Tx) PutUint64(key string, val uint64) error {
	if val == 0 {
		return t.txn.Delete([]byte(key))
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], val)
	return t.txn.Set([]byte(key), b[:])
}

// Iterate walks every key with the given prefix in key order, handing fn the key and raw value.
func (t *Tx) Iterate(prefix string, fn func(key string, val []byte) error) error {
	it := t.txn.NewIterator(badger.IteratorOptions{
		PrefetchValues: true,
		PrefetchSize:   100,
		Prefix:         []byte(prefix),
	})
	defer it.Close()

	for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
		item := it.Item()
		key := string(item.KeyCopy(nil))
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(key, val); err != nil {
			return err
		}
	}
	return nil
}

// IterateJSON is Iterate with each value decoded into a fresh T.
func IterateJSON[T any](t *Tx, prefix string, fn func(key string, v *T) error) error {
	return t.Iterate(prefix, func(key string, val []byte) error {
		v := new(T)
		if err := json.Unmarshal(val, v); err != nil {
			return fmt.Errorf("decoding %s: %w", key, err)
		}
		return fn(key, v)
	})
}

// Key joins parts with '/'.
func Key(parts ...string) string {
	return strings.Join(parts, "/")
}
