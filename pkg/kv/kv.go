// Package kv defines the abstract key-value contract both the Bitcask
// and LSM engines implement. Callers that only need to put, get, range,
// delete, and compact should depend on this package, not on either
// engine's concrete type.
package kv

import (
	"context"
	"errors"
)

// ErrNotStarted is returned by every operation other than Start when
// called before Start has completed successfully.
var ErrNotStarted = errors.New("kv: store not started")

// ErrClosed is returned by every operation other than Close once Close
// has completed.
var ErrClosed = errors.New("kv: store closed")

// Item is one key/value pair, used for batch writes and range reads.
type Item struct {
	Key   []byte
	Value []byte
}

// Store is the operation set shared by the Bitcask and LSM engines. All
// methods are blocking from the caller's perspective and may return an
// error wrapping an underlying I/O failure.
type Store interface {
	// Start performs recovery from whatever is on disk and makes the
	// store ready to serve the rest of the interface. It must be called
	// exactly once before any other method.
	Start(ctx context.Context) error

	// Close releases every resource the store holds open. After Close
	// returns, every other method returns ErrClosed.
	Close() error

	// Put records value for key, superseding any prior value. Whether the
	// write is fsynced before Put returns depends on the engine's fsync
	// configuration.
	Put(ctx context.Context, key, value []byte) error

	// BatchPut applies every item in items as a single unit from the
	// caller's perspective; when keys collide within items, the last
	// occurrence wins. It returns the number of items applied. An empty
	// batch is not an error; it returns zero.
	BatchPut(ctx context.Context, items []Item) (int, error)

	// Get returns the current value for key. ok is false for an absent
	// key, a tombstoned key, or (Bitcask only) a position that no longer
	// decodes cleanly.
	Get(ctx context.Context, key []byte) (value []byte, ok bool, err error)

	// Range returns live entries with start <= key <= end in strictly
	// ascending key order, each the latest value for its key, with no
	// key repeated. limit caps the number of entries returned; limit <=
	// 0 means unbounded.
	Range(ctx context.Context, start, end []byte, limit int) ([]Item, error)

	// Delete records a tombstone for key. A subsequent Get for key
	// misses until a later Put supersedes it.
	Delete(ctx context.Context, key []byte) error

	// Compact rewrites the store's on-disk state to reclaim space held
	// by superseded and deleted keys, returning the number of bytes
	// reclaimed (never negative).
	Compact(ctx context.Context) (reclaimed int64, err error)
}
