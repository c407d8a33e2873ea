// Package redisdoc keeps the board document in a Redis string. Every write
// bumps a revision counter and publishes it, and subscribers re-read the
// document when a message arrives.
package redisdoc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/reelboard/go/internal/docstore"
)

type Config struct {
	Addr             string
	Password         string
	DB               int
	Key              string
	Channel          string
	FallbackInterval time.Duration // How often to re-read in case a message was missed
}

func DefaultConfig() Config {
	return Config{
		Addr:             "localhost:6379",
		Key:              docstore.DefaultKey,
		Channel:          "reelboard:changed",
		FallbackInterval: 30 * time.Second,
	}
}

// NewClient creates a client and pings the server with a short timeout.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

type Store struct {
	rdb *redis.Client
	cfg Config

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

// New wraps a connected client. Close closes the client too.
func New(rdb *redis.Client, cfg Config) *Store {
	return &Store{rdb: rdb, cfg: cfg, subs: make(map[*subscription]struct{})}
}

func (s *Store) revisionKey() string {
	return s.cfg.Key + ":rev"
}

func (s *Store) ReadOnce(ctx context.Context) (docstore.Snapshot, error) {
	if s.isClosed() {
		return docstore.Snapshot{}, docstore.ErrClosed
	}
	vals, err := s.rdb.MGet(ctx, s.cfg.Key, s.revisionKey()).Result()
	if err != nil {
		return docstore.Snapshot{}, fmt.Errorf("read %s: %w", s.cfg.Key, err)
	}
	return snapshotOf(vals[0], vals[1])
}

// WriteWhole sets the document, bumps its revision and publishes the new
// revision in one MULTI/EXEC.
func (s *Store) WriteWhole(ctx context.Context, data []byte) error {
	if s.isClosed() {
		return docstore.ErrClosed
	}
	var incr *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.cfg.Key, data, 0)
		incr = pipe.Incr(ctx, s.revisionKey())
		return nil
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", s.cfg.Key, err)
	}
	rev := incr.Val()
	if err := s.rdb.Publish(ctx, s.cfg.Channel, rev).Err(); err != nil {
		// The write landed; subscribers catch up on their next poll.
		log.Warn().Err(err).Str("channel", s.cfg.Channel).Msg("failed to publish document change")
	}
	log.Debug().Str("key", s.cfg.Key).Int64("revision", rev).Msg("document written")
	return nil
}

func (s *Store) Subscribe(ctx context.Context, onSnapshot docstore.SnapshotFunc, onError docstore.ErrorFunc) (docstore.Subscription, error) {
	if s.isClosed() {
		return nil, docstore.ErrClosed
	}

	ps := s.rdb.Subscribe(ctx, s.cfg.Channel)
	// Wait for the subscription confirmation so no write after this point
	// is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", s.cfg.Channel, err)
	}
	initial, err := s.ReadOnce(ctx)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &subscription{
		store:    s,
		dispatch: docstore.NewDispatcher(onSnapshot, onError),
		pubsub:   ps,
		stop:     make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ps.Close()
		return nil, docstore.ErrClosed
	}
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go sub.run(initial)
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
	return s.rdb.Close()
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

// snapshotOf builds a snapshot from MGET results. A missing document reads
// as absent; a missing revision counter as revision 0.
func snapshotOf(doc, rev interface{}) (docstore.Snapshot, error) {
	var snap docstore.Snapshot
	if rev != nil {
		str, ok := rev.(string)
		if !ok {
			return snap, fmt.Errorf("unexpected revision type %T", rev)
		}
		n, err := strconv.ParseUint(str, 10, 64)
		if err != nil {
			return snap, fmt.Errorf("parse revision: %w", err)
		}
		snap.Revision = n
	}
	if doc == nil {
		return snap, nil
	}
	str, ok := doc.(string)
	if !ok {
		return snap, errors.New("unexpected document type")
	}
	snap.Exists = true
	snap.Data = []byte(str)
	return snap, nil
}

type subscription struct {
	store    *Store
	dispatch *docstore.Dispatcher
	pubsub   *redis.PubSub

	stop chan struct{}
	once sync.Once
	last docstore.Snapshot
}

func (sub *subscription) run(initial docstore.Snapshot) {
	defer func() {
		if err := sub.pubsub.Close(); err != nil {
			log.Debug().Err(err).Msg("pubsub close")
		}
	}()

	sub.last = initial
	if !sub.dispatch.Snapshot(initial) {
		return
	}

	fallbackTicker := time.NewTicker(sub.store.cfg.FallbackInterval)
	defer fallbackTicker.Stop()
	msgs := sub.pubsub.Channel()

	for {
		select {
		case <-sub.stop:
			return
		case _, ok := <-msgs:
			if !ok {
				log.Error().Str("channel", sub.store.cfg.Channel).Msg("document change feed closed")
				sub.dispatch.Fail(docstore.ErrSubscriptionLost)
				return
			}
			if !sub.refresh() {
				return
			}
		case <-fallbackTicker.C:
			if !sub.refresh() {
				return
			}
		}
	}
}

func (sub *subscription) refresh() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap, err := sub.store.ReadOnce(ctx)
	if err != nil {
		log.Error().Err(err).Str("key", sub.store.cfg.Key).Msg("failed to re-read document")
		return !sub.dispatch.Done()
	}
	if snap.Revision == sub.last.Revision && snap.Exists == sub.last.Exists {
		return true
	}
	sub.last = snap
	return sub.dispatch.Snapshot(snap)
}

func (sub *subscription) Unsubscribe() {
	sub.once.Do(func() {
		close(sub.stop)
		sub.dispatch.Close()
		sub.store.remove(sub)
	})
}
