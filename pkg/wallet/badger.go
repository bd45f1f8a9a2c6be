package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/agentd/internal/logger"
)

// Badger is a wallet persisted with BadgerDB.
type Badger struct {
	db *badgerdb.DB

	mu     sync.RWMutex
	closed bool
}

// OpenBadger opens (or creates) a Badger wallet at path. With inMemory set
// the path is ignored and nothing is written to disk.
func OpenBadger(path string, inMemory bool) (*Badger, error) {
	if path == "" && !inMemory {
		return nil, errors.New("badger wallet requires a path")
	}
	if inMemory {
		path = ""
	}

	opts := badgerdb.DefaultOptions(path).
		WithInMemory(inMemory).
		WithLogger(nil)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger wallet: %w", err)
	}

	logger.Debug("Badger wallet opened", logger.KeyWallet, path, "in_memory", inMemory)
	return &Badger{db: db}, nil
}

// guard holds the read lock for the duration of an operation so Close
// cannot release the database underneath it.
func (b *Badger) guard() (func(), error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, ErrClosed
	}
	return b.mu.RUnlock, nil
}

func (b *Badger) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validKey(key); err != nil {
		return err
	}
	release, err := b.guard()
	if err != nil {
		return err
	}
	defer release()

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (b *Badger) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, ErrNotFound
	}
	release, err := b.guard()
	if err != nil {
		return nil, err
	}
	defer release()

	var value []byte
	err = b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (b *Badger) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return nil
	}
	release, err := b.guard()
	if err != nil {
		return err
	}
	defer release()

	return b.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}
		return nil
	})
}

func (b *Badger) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	release, err := b.guard()
	if err != nil {
		return nil, err
	}
	defer release()

	keys := []string{}
	err = b.db.View(func(txn *badgerdb.Txn) error {
		p := []byte(prefix)
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = p
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

func (b *Badger) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.closed = true
	return b.db.Close()
}
