// Package pagecache keeps fetched page bodies in a local badger store so that
// re-running a collection does not hit the site again for unchanged pages.
package pagecache

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "page:"

type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens (or creates) the store at path. An empty path gives an
// in-memory store.
func Open(path string, ttl time.Duration) (*Cache, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open page cache %q: %w", path, err)
	}
	return New(db, ttl), nil
}

// New wraps an already open database.
func New(db *badger.DB, ttl time.Duration) *Cache {
	return &Cache{db: db, ttl: ttl}
}

// Get returns the cached body for key; ok is false on a miss.
func (c *Cache) Get(key string) ([]byte, bool, error) {
	var body []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		body, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("page cache get: %w", err)
	}
	return body, true, nil
}

// Set stores body under key, expiring after the cache TTL (if any).
func (c *Cache) Set(key string, body []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(keyPrefix+key), body)
		if c.ttl > 0 {
			entry = entry.WithTTL(c.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Purge drops every cached page.
func (c *Cache) Purge() error {
	return c.db.DropPrefix([]byte(keyPrefix))
}

func (c *Cache) Close() error {
	return c.db.Close()
}
