// Package wallet stores the agent's records: a small key/value store with
// an in-memory backend for tests and a Badger backend for persistence.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("wallet: record not found")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("wallet: closed")

	// ErrInvalidKey is returned for empty keys.
	ErrInvalidKey = errors.New("wallet: invalid key")
)

// Backend names.
const (
	TypeMemory = "memory"
	TypeBadger = "badger"
)

// Wallet is a key/value record store. Implementations are safe for
// concurrent use.
type Wallet interface {
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Get returns a copy of the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns the keys starting with prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases the wallet. Subsequent calls return ErrClosed.
	Close() error
}

// Metrics observes wallet operations. nil disables collection.
type Metrics interface {
	ObserveOperation(backend, op string, d time.Duration, err error)
}

// Config selects and configures a backend.
type Config struct {
	// Type is "memory" or "badger".
	Type string

	// Path is the Badger data directory. Ignored by the memory backend.
	Path string

	// InMemory runs Badger without touching disk.
	InMemory bool
}

// Open creates the wallet described by cfg.
func Open(cfg Config, m Metrics) (Wallet, error) {
	var (
		w   Wallet
		err error
	)

	switch strings.ToLower(cfg.Type) {
	case TypeMemory, "":
		cfg.Type = TypeMemory
		w = NewMemory()
	case TypeBadger:
		w, err = OpenBadger(cfg.Path, cfg.InMemory)
	default:
		return nil, fmt.Errorf("unknown wallet type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if m == nil {
		return w, nil
	}
	return &instrumented{next: w, backend: strings.ToLower(cfg.Type), metrics: m}, nil
}

func validKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}

// instrumented reports the duration and outcome of every operation.
type instrumented struct {
	next    Wallet
	backend string
	metrics Metrics
}

func (w *instrumented) observe(op string, start time.Time, err error) {
	w.metrics.ObserveOperation(w.backend, op, time.Since(start), err)
}

func (w *instrumented) Put(ctx context.Context, key string, value []byte) (err error) {
	defer func(start time.Time) { w.observe("put", start, err) }(time.Now())
	return w.next.Put(ctx, key, value)
}

func (w *instrumented) Get(ctx context.Context, key string) (_ []byte, err error) {
	defer func(start time.Time) { w.observe("get", start, err) }(time.Now())
	return w.next.Get(ctx, key)
}

func (w *instrumented) Delete(ctx context.Context, key string) (err error) {
	defer func(start time.Time) { w.observe("delete", start, err) }(time.Now())
	return w.next.Delete(ctx, key)
}

func (w *instrumented) List(ctx context.Context, prefix string) (_ []string, err error) {
	defer func(start time.Time) { w.observe("list", start, err) }(time.Now())
	return w.next.List(ctx, prefix)
}

func (w *instrumented) Close() error {
	return w.next.Close()
}
