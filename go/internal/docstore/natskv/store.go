// Package natskv keeps the board document in a JetStream key-value bucket.
// A KV watch gives the current value and then every update, which maps
// directly onto a document subscription.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/reelboard/go/internal/activity"
	"github.com/mcdev12/reelboard/go/internal/docstore"
)

type Config struct {
	URL           string
	Bucket        string
	Key           string
	History       uint8 // Revisions kept per key
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Bucket:        "REELBOARD",
		Key:           "main",
		History:       5,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

type Store struct {
	nc  *nats.Conn
	kv  jetstream.KeyValue
	cfg Config

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

// Connect dials NATS and creates (or updates) the bucket. The returned store
// owns the connection.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	nc, err := nats.Connect(cfg.URL, activity.ConnectOptions(cfg.MaxReconnects, cfg.ReconnectWait)...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "Shared reel board document",
		History:     cfg.History,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create key-value bucket %s: %w", cfg.Bucket, err)
	}

	log.Info().Str("bucket", cfg.Bucket).Str("key", cfg.Key).Msg("NATS document store ready")
	return &Store{
		nc:   nc,
		kv:   kv,
		cfg:  cfg,
		subs: make(map[*subscription]struct{}),
	}, nil
}

func (s *Store) ReadOnce(ctx context.Context) (docstore.Snapshot, error) {
	if s.isClosed() {
		return docstore.Snapshot{}, docstore.ErrClosed
	}
	entry, err := s.kv.Get(ctx, s.cfg.Key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return docstore.Snapshot{}, nil
	}
	if err != nil {
		return docstore.Snapshot{}, fmt.Errorf("get %s: %w", s.cfg.Key, err)
	}
	return snapshotOf(entry.Operation(), entry.Value(), entry.Revision()), nil
}

func (s *Store) WriteWhole(ctx context.Context, data []byte) error {
	if s.isClosed() {
		return docstore.ErrClosed
	}
	rev, err := s.kv.Put(ctx, s.cfg.Key, data)
	if err != nil {
		return fmt.Errorf("put %s: %w", s.cfg.Key, err)
	}
	log.Debug().Str("key", s.cfg.Key).Uint64("revision", rev).Msg("document written")
	return nil
}

func (s *Store) Subscribe(ctx context.Context, onSnapshot docstore.SnapshotFunc, onError docstore.ErrorFunc) (docstore.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, docstore.ErrClosed
	}

	// The watch outlives ctx; it ends with Unsubscribe.
	watchCtx, cancel := context.WithCancel(context.Background())
	watcher, err := s.kv.Watch(watchCtx, s.cfg.Key)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s: %w", s.cfg.Key, err)
	}

	sub := &subscription{
		store:    s,
		dispatch: docstore.NewDispatcher(onSnapshot, onError),
		watcher:  watcher,
		cancel:   cancel,
		stop:     make(chan struct{}),
	}
	s.subs[sub] = struct{}{}
	go sub.run()
	return sub, nil
}

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
	s.nc.Close()
	return nil
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) remove(sub *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub)
}

// snapshotOf maps a KV entry to a snapshot. Delete and purge markers read
// as an absent document.
func snapshotOf(op jetstream.KeyValueOp, value []byte, revision uint64) docstore.Snapshot {
	if op != jetstream.KeyValuePut {
		return docstore.Snapshot{Revision: revision}
	}
	return docstore.Snapshot{
		Exists:   true,
		Data:     append([]byte(nil), value...),
		Revision: revision,
	}
}

type subscription struct {
	store    *Store
	dispatch *docstore.Dispatcher
	watcher  jetstream.KeyWatcher
	cancel   context.CancelFunc

	stop chan struct{}
	once sync.Once
}

func (sub *subscription) run() {
	defer func() {
		if err := sub.watcher.Stop(); err != nil {
			log.Debug().Err(err).Msg("watcher stop")
		}
		sub.cancel()
	}()

	seen := false
	for {
		select {
		case <-sub.stop:
			return
		case entry, ok := <-sub.watcher.Updates():
			if !ok {
				log.Error().Str("key", sub.store.cfg.Key).Msg("document watch closed")
				sub.dispatch.Fail(docstore.ErrSubscriptionLost)
				return
			}
			if entry == nil {
				// End of initial values. No entry before it means the key
				// has never been written.
				if !seen {
					seen = true
					if !sub.dispatch.Snapshot(docstore.Snapshot{}) {
						return
					}
				}
				continue
			}
			seen = true
			snap := snapshotOf(entry.Operation(), entry.Value(), entry.Revision())
			if !sub.dispatch.Snapshot(snap) {
				return
			}
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
