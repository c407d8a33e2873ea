// Package boardsync keeps a local mirror of the shared board in step with the
// remote document. Mutations are applied to the mirror first and then written
// through as whole documents; every inbound snapshot overwrites the mirror.
package boardsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/reelboard/go/internal/activity"
	"github.com/mcdev12/reelboard/go/internal/board"
	"github.com/mcdev12/reelboard/go/internal/docstore"
	"github.com/mcdev12/reelboard/go/internal/models"
)

var (
	// ErrNotReady is returned by mutations before the first snapshot.
	ErrNotReady = errors.New("board not loaded yet")
	// ErrStopped is returned by every operation after Stop.
	ErrStopped = errors.New("syncer stopped")
)

type Config struct {
	// WriteTimeout bounds each whole-document write.
	WriteTimeout time.Duration
	// PublishTimeout bounds each activity publish.
	PublishTimeout time.Duration
	Policy         SnapshotPolicy
}

func DefaultConfig() Config {
	return Config{
		WriteTimeout:   10 * time.Second,
		PublishTimeout: 5 * time.Second,
		Policy:         OverwriteOnSnapshot,
	}
}

type Option func(*Syncer)

func WithClock(c clockwork.Clock) Option {
	return func(s *Syncer) { s.clock = c }
}

// WithPublisher sends an Activity for every accepted mutation.
func WithPublisher(p activity.Publisher) Option {
	return func(s *Syncer) { s.publisher = p }
}

// WithWriteErrorHook is called (from the writer goroutine) after every failed
// whole-document write.
func WithWriteErrorHook(fn func(error)) Option {
	return func(s *Syncer) { s.onWriteError = fn }
}

// Syncer owns one mirror of the board. Instances are independent; each has
// its own subscription and writer.
type Syncer struct {
	store        docstore.Store
	cfg          Config
	clock        clockwork.Clock
	publisher    activity.Publisher
	onWriteError func(error)

	mu      sync.Mutex
	state   State
	board   *models.Board
	sub     docstore.Subscription
	started bool
	stopped bool
	status  Status

	ready     chan struct{}
	readyOnce sync.Once

	w        *writer
	watchers *watchers

	// background publishes and deferred unsubscribes
	bg sync.WaitGroup
}

func New(store docstore.Store, cfg Config, opts ...Option) *Syncer {
	s := &Syncer{
		store:    store,
		cfg:      cfg,
		clock:    clockwork.NewRealClock(),
		ready:    make(chan struct{}),
		watchers: newWatchers(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.w = newWriter(store, cfg.WriteTimeout, s.writeDone, s.watchers.notify)
	return s
}

// Start subscribes to the document. The first snapshot, or a subscription
// failure, closes Ready. If the subscription cannot be opened at all the
// syncer falls back to a local default board and the error is returned.
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.started {
		s.mu.Unlock()
		return errors.New("syncer already started")
	}
	s.started = true
	s.mu.Unlock()

	s.w.start()

	sub, err := s.store.Subscribe(ctx, s.handleSnapshot, s.handleError)
	if err != nil {
		s.disconnect(fmt.Errorf("subscribe: %w", err))
		return fmt.Errorf("subscribe to board document: %w", err)
	}

	s.mu.Lock()
	if s.stopped || s.state == StateDisconnected {
		// Stop or a subscription error raced with Subscribe returning.
		s.mu.Unlock()
		sub.Unsubscribe()
		return nil
	}
	s.sub = sub
	s.mu.Unlock()

	log.Info().Str("policy", s.cfg.Policy.String()).Msg("board syncer started")
	return nil
}

// Stop releases the subscription exactly once, drains queued writes and
// closes every Watch channel. It is safe to call more than once.
func (s *Syncer) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	s.w.stop()
	s.bg.Wait()
	s.watchers.closeAll()
	log.Info().Msg("board syncer stopped")
}

// Ready is closed once the mirror holds a board.
func (s *Syncer) Ready() <-chan struct{} {
	return s.ready
}

// Board returns a copy of the mirror, or nil before the first snapshot.
func (s *Syncer) Board() *models.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.board == nil {
		return nil
	}
	return s.board.Clone()
}

func (s *Syncer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Saving reports whether a whole-document write is queued or in flight.
func (s *Syncer) Saving() bool {
	return s.w.pending() > 0
}

func (s *Syncer) Status() Status {
	s.mu.Lock()
	st := s.status
	st.State = s.state
	s.mu.Unlock()
	st.Saving = s.Saving()
	return st
}

// Flush waits until every queued write has completed.
func (s *Syncer) Flush(ctx context.Context) error {
	return s.w.flush(ctx)
}

// Watch returns a channel that receives a signal after the mirror, the
// saving flag or the state changes. Signals coalesce. The channel is closed
// by cancel or by Stop.
func (s *Syncer) Watch() (<-chan struct{}, func()) {
	return s.watchers.add()
}

func (s *Syncer) handleSnapshot(snap docstore.Snapshot) {
	s.mu.Lock()
	if s.stopped || s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}

	incoming, err := decodeSnapshot(snap)
	if err != nil {
		// Absent or malformed: seed a fresh board and write it without
		// waiting for its echo.
		log.Warn().Err(err).Uint64("revision", snap.Revision).Msg("board document unusable, reseeding")
		incoming = board.NewDefaultBoard()
		s.status.Reseeds++
		s.enqueueLocked(incoming)
	}

	s.board = s.cfg.Policy.apply(s.board, incoming)
	s.status.Revision = snap.Revision
	s.status.SnapshotsApplied++
	s.status.LastSnapshotAt = s.clock.Now()
	first := s.state == StateUninitialized
	s.state = StateSyncing
	s.mu.Unlock()

	if first {
		log.Info().Uint64("revision", snap.Revision).Msg("board synced")
		s.markReady()
	}
	s.watchers.notify()
}

func (s *Syncer) handleError(err error) {
	log.Error().Err(err).Msg("board subscription failed")
	s.disconnect(err)
}

// disconnect may run on the store's delivery goroutine, where Unsubscribe
// would block on the running callback. The release happens in the
// background and Stop waits for it.
func (s *Syncer) disconnect(err error) {
	s.mu.Lock()
	if s.stopped || s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	s.status.LastSubscriptionError = err.Error()
	if s.board == nil {
		s.board = board.NewDefaultBoard()
	}
	sub := s.sub
	s.sub = nil
	if sub != nil {
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			sub.Unsubscribe()
		}()
	}
	s.mu.Unlock()

	s.markReady()
	s.watchers.notify()
}

func (s *Syncer) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// enqueueLocked queues b for writing. Holding s.mu keeps the queue in
// mirror order.
func (s *Syncer) enqueueLocked(b *models.Board) {
	data, err := board.Encode(b)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode board")
		return
	}
	s.w.enqueue(data)
}

func (s *Syncer) writeDone(err error) {
	s.mu.Lock()
	s.status.LastWriteAt = s.clock.Now()
	if err != nil {
		s.status.WritesFailed++
		s.status.LastWriteError = err.Error()
	} else {
		s.status.WritesSucceeded++
		s.status.LastWriteError = ""
	}
	s.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Msg("board write failed")
		if s.onWriteError != nil {
			s.onWriteError(err)
		}
	}
}

func decodeSnapshot(snap docstore.Snapshot) (*models.Board, error) {
	if !snap.Exists {
		return nil, errors.New("board document absent")
	}
	return board.Decode(snap.Data)
}
