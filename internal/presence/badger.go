package presence

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Badger is an embedded in memory presence store used when no redis server is
// configured. It is only shared within a single process.
type Badger struct {
	db *badger.DB
}

var _ Store = (*Badger)(nil)

func OpenBadger() (*Badger, error) {
	db, err := badger.Open(badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil))
	if err != nil {
		return nil, err
	}
	return &Badger{db: db}, nil
}

const maxConflictRetries = 8

func (b *Badger) SetNX(ctx context.Context, key, value string, ttl time.Duration) (stored bool, err error) {
	for range maxConflictRetries {
		if err = ctx.Err(); err != nil {
			return false, err
		}
		stored = false
		err = b.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get([]byte(key))
			if err == nil {
				return nil
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			stored = true
			return txn.SetEntry(badger.NewEntry([]byte(key), []byte(value)).WithTTL(ttl))
		})
		if !errors.Is(err, badger.ErrConflict) {
			return stored, err
		}
	}
	return false, err
}

func (b *Badger) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), []byte(value)).WithTTL(ttl))
	})
}

func (b *Badger) Get(ctx context.Context, key string) (value string, err error) {
	err = b.db.View(func(txn *badger.Txn) error {
		it, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		v, err := it.ValueCopy(nil)
		if err != nil {
			return err
		}
		value = string(v)
		return nil
	})
	return
}

func (b *Badger) Keys(ctx context.Context, prefix string) (o []string, err error) {
	err = b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			o = append(o, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return
}

func (b *Badger) Close() error {
	return b.db.Close()
}
