// Package memory is a process-local document store. It backs tests and the
// single-node "memory" driver, and can pause deliveries or inject failures
// to reproduce the races of a real remote store.
package memory

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/reelboard/go/internal/docstore"
)

// Store keeps one document in memory and fans every change out to its
// subscribers, each in its own goroutine and in write order.
type Store struct {
	mu       sync.Mutex
	current  docstore.Snapshot
	subs     map[*subscription]struct{}
	paused   bool
	writeErr error
	closed   bool
}

// New creates an empty store; the document does not exist yet.
func New() *Store {
	return &Store{subs: make(map[*subscription]struct{})}
}

// Subscribe registers a listener and queues the current state for it.
func (s *Store) Subscribe(ctx context.Context, onSnapshot docstore.SnapshotFunc, onError docstore.ErrorFunc) (docstore.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, docstore.ErrClosed
	}

	sub := &subscription{
		store:    s,
		dispatch: docstore.NewDispatcher(onSnapshot, onError),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		paused:   s.paused,
	}
	sub.enqueue(copySnapshot(s.current))
	s.subs[sub] = struct{}{}
	go sub.run()

	log.Debug().Int("subscribers", len(s.subs)).Msg("memory store subscription added")
	return sub, nil
}

// ReadOnce returns a copy of the current document.
func (s *Store) ReadOnce(ctx context.Context) (docstore.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.Snapshot{}, docstore.ErrClosed
	}
	return copySnapshot(s.current), nil
}

// WriteWhole replaces the document and notifies every subscriber.
func (s *Store) WriteWhole(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.ErrClosed
	}
	if s.writeErr != nil {
		return s.writeErr
	}
	s.current = docstore.Snapshot{
		Exists:   true,
		Data:     append([]byte(nil), data...),
		Revision: s.current.Revision + 1,
	}
	s.broadcastLocked()
	return nil
}

// Delete removes the document, as if it had never been written.
func (s *Store) Delete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = docstore.Snapshot{Revision: s.current.Revision + 1}
	s.broadcastLocked()
}

// Pause holds back deliveries to every subscriber; snapshots queue up.
func (s *Store) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	for sub := range s.subs {
		sub.setPaused(true)
	}
}

// Resume delivers everything queued while paused, in order.
func (s *Store) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	for sub := range s.subs {
		sub.setPaused(false)
	}
}

// FailWrites makes every following WriteWhole return err. A nil err
// restores normal writes.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// Break fails every live subscription with err, simulating a transport
// failure. The document itself is kept.
func (s *Store) Break(err error) {
	s.mu.Lock()
	subs := make([]*subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = make(map[*subscription]struct{})
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fail(err)
	}
}

// Subscribers returns the number of live subscriptions.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close ends every subscription and rejects further calls.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := s.subs
	s.subs = make(map[*subscription]struct{})
	s.mu.Unlock()

	for sub := range subs {
		sub.Unsubscribe()
	}
	return nil
}

func (s *Store) broadcastLocked() {
	for sub := range s.subs {
		sub.enqueue(copySnapshot(s.current))
	}
}

func (s *Store) remove(sub *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub)
}

func copySnapshot(snap docstore.Snapshot) docstore.Snapshot {
	if snap.Data != nil {
		snap.Data = append([]byte(nil), snap.Data...)
	}
	return snap
}

type subscription struct {
	store    *Store
	dispatch *docstore.Dispatcher

	mu     sync.Mutex
	queue  []docstore.Snapshot
	paused bool
	failed error

	wake chan struct{}
	stop chan struct{}
	once sync.Once
}

func (sub *subscription) enqueue(snap docstore.Snapshot) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, snap)
	sub.mu.Unlock()
	sub.signal()
}

func (sub *subscription) setPaused(p bool) {
	sub.mu.Lock()
	sub.paused = p
	sub.mu.Unlock()
	sub.signal()
}

func (sub *subscription) fail(err error) {
	sub.mu.Lock()
	sub.failed = err
	sub.mu.Unlock()
	sub.signal()
}

func (sub *subscription) signal() {
	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

// next pops the next deliverable snapshot. A pending failure is reported
// only after the snapshots queued before it.
func (sub *subscription) next() (docstore.Snapshot, bool, error) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.paused {
		return docstore.Snapshot{}, false, nil
	}
	if len(sub.queue) > 0 {
		snap := sub.queue[0]
		sub.queue = sub.queue[1:]
		return snap, true, nil
	}
	return docstore.Snapshot{}, false, sub.failed
}

func (sub *subscription) run() {
	for {
		for {
			snap, ok, err := sub.next()
			if err != nil {
				sub.dispatch.Fail(err)
				return
			}
			if !ok {
				break
			}
			if !sub.dispatch.Snapshot(snap) {
				return
			}
		}
		select {
		case <-sub.wake:
		case <-sub.stop:
			return
		}
	}
}

func (sub *subscription) Unsubscribe() {
	sub.once.Do(func() {
		close(sub.stop)
		sub.dispatch.Close()
		sub.store.remove(sub)
	})
}
