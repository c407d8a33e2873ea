package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/reelboard/go/internal/docstore"
)

type subscription struct {
	store    *Store
	dispatch *docstore.Dispatcher
	listener *pq.Listener

	lost chan error
	stop chan struct{}
	once sync.Once

	last    docstore.Snapshot
	started bool
}

func newSubscription(s *Store, d *docstore.Dispatcher) (*subscription, error) {
	sub := &subscription{
		store:    s,
		dispatch: d,
		lost:     make(chan error, 1),
		stop:     make(chan struct{}),
	}
	sub.listener = pq.NewListener(
		s.cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		sub.listenerEvent,
	)
	if err := sub.listener.Listen(s.cfg.NotifyChannel); err != nil {
		_ = sub.listener.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", s.cfg.NotifyChannel).
		Str("key", s.cfg.Key).
		Msg("listening for document notifications")
	return sub, nil
}

// listenerEvent runs on the listener's goroutine. pq reconnects on its own
// after a dropped connection; a failed reconnect attempt ends the
// subscription.
func (sub *subscription) listenerEvent(ev pq.ListenerEventType, err error) {
	if err != nil {
		log.Error().Err(err).Msg("listener event")
	}
	if ev == pq.ListenerEventConnectionAttemptFailed {
		select {
		case sub.lost <- fmt.Errorf("%w: %v", docstore.ErrSubscriptionLost, err):
		default:
		}
	}
}

func (sub *subscription) run(initial docstore.Snapshot) {
	defer sub.close()

	if !sub.deliver(initial) {
		return
	}

	cfg := sub.store.cfg
	pingTicker := time.NewTicker(cfg.PingInterval)
	fallbackTicker := time.NewTicker(cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-sub.stop:
			return
		case err := <-sub.lost:
			log.Error().Err(err).Str("key", cfg.Key).Msg("document subscription lost")
			sub.dispatch.Fail(err)
			return
		case note := <-sub.listener.Notify:
			if note != nil && note.Extra != cfg.Key {
				continue
			}
			// nil notification means the connection was re-established and
			// notifications may have been missed, so re-read either way.
			if !sub.refresh() {
				return
			}
		case <-fallbackTicker.C:
			if !sub.refresh() {
				return
			}
		case <-pingTicker.C:
			if err := sub.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

// refresh re-reads the row and delivers it when it changed. It reports
// false once the subscription has ended.
func (sub *subscription) refresh() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snap, err := sub.store.ReadOnce(ctx)
	if err != nil {
		// The fallback ticker retries; only the listener decides the feed is gone.
		log.Error().Err(err).Str("key", sub.store.cfg.Key).Msg("failed to re-read document")
		return !sub.dispatch.Done()
	}
	if sub.started && snap.Revision == sub.last.Revision && snap.Exists == sub.last.Exists {
		return true
	}
	return sub.deliver(snap)
}

func (sub *subscription) deliver(snap docstore.Snapshot) bool {
	sub.last = snap
	sub.started = true
	return sub.dispatch.Snapshot(snap)
}

func (sub *subscription) close() {
	if err := sub.listener.Close(); err != nil {
		log.Debug().Err(err).Msg("listener close")
	}
}

func (sub *subscription) Unsubscribe() {
	sub.once.Do(func() {
		close(sub.stop)
		sub.dispatch.Close()
		sub.store.remove(sub)
	})
}
