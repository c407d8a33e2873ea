// Package docstore abstracts the remote document service that holds the
// shared board: read once, replace the whole document, and subscribe to
// live changes. Every implementation serves exactly one well-known key.
package docstore

import (
	"context"
	"errors"
)

// DefaultKey is the well-known document key.
const DefaultKey = "reelboard/main"

var (
	// ErrClosed is returned by operations on a store that has been closed.
	ErrClosed = errors.New("document store closed")
	// ErrSubscriptionLost is delivered to onError when the change feed of a
	// store breaks. Subscriptions never retry after it.
	ErrSubscriptionLost = errors.New("document subscription lost")
)

// Snapshot is the state of the document at one point in time. Exists is
// false when the document has never been written (or was deleted).
type Snapshot struct {
	Exists   bool
	Data     []byte
	Revision uint64
}

// SnapshotFunc receives every snapshot of a subscription, in order.
type SnapshotFunc func(Snapshot)

// ErrorFunc receives a transport failure. It is called at most once per
// subscription and no snapshot follows it.
type ErrorFunc func(error)

// Subscription is a live change listener.
type Subscription interface {
	// Unsubscribe releases the listener. It is safe to call more than once;
	// once it returns no further callbacks run.
	Unsubscribe()
}

// Store is the remote document gateway.
type Store interface {
	// Subscribe delivers the current state once immediately and again after
	// every change, this client's own writes included.
	Subscribe(ctx context.Context, onSnapshot SnapshotFunc, onError ErrorFunc) (Subscription, error)
	// ReadOnce returns the current state of the document.
	ReadOnce(ctx context.Context) (Snapshot, error)
	// WriteWhole replaces the entire document. Concurrent writers are not
	// detected; the last write wins.
	WriteWhole(ctx context.Context, data []byte) error
	// Close releases the store's connections.
	Close() error
}
