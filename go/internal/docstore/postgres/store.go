// Package postgres stores the board document in a jsonb row and announces
// every write with NOTIFY, so subscribers can re-read it.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/reelboard/go/internal/docstore"
	"github.com/mcdev12/reelboard/go/internal/docstore/postgres/db"
	"github.com/mcdev12/reelboard/go/internal/sqlutil"
)

//go:embed schema.sql
var schema string

// Schema returns the DDL for the documents table.
func Schema() string {
	return schema
}

type Config struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	Key              string        // Document key (primary key of the row)
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often to re-read in case a notification was missed
	PingInterval     time.Duration
}

func DefaultConfig() Config {
	return Config{
		Key:              docstore.DefaultKey,
		NotifyChannel:    "reelboard_document_changed",
		FallbackInterval: 30 * time.Second,
		PingInterval:     90 * time.Second,
	}
}

type Store struct {
	db      *sql.DB
	queries *db.Queries
	cfg     Config

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

func New(database *sql.DB, cfg Config) *Store {
	return &Store{
		db:      database,
		queries: db.New(database),
		cfg:     cfg,
		subs:    make(map[*subscription]struct{}),
	}
}

// EnsureSchema creates the documents table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	return nil
}

func (s *Store) ReadOnce(ctx context.Context) (docstore.Snapshot, error) {
	if s.isClosed() {
		return docstore.Snapshot{}, docstore.ErrClosed
	}
	row, err := s.queries.GetDocument(ctx, s.cfg.Key)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Snapshot{}, nil
	}
	if err != nil {
		return docstore.Snapshot{}, fmt.Errorf("failed to read document %s: %w", s.cfg.Key, err)
	}
	return snapshotFromRow(row), nil
}

// WriteWhole upserts the row and notifies listeners in one transaction, so
// the notification is only sent once the new body is visible.
func (s *Store) WriteWhole(ctx context.Context, data []byte) error {
	if s.isClosed() {
		return docstore.ErrClosed
	}
	newQueries := func(tx *sql.Tx) *db.Queries { return s.queries.WithTx(tx) }

	var revision int64
	err := sqlutil.Run(ctx, s.db, newQueries, func(q *db.Queries) error {
		rev, err := q.UpsertDocument(ctx, db.UpsertDocumentParams{
			DocKey: s.cfg.Key,
			Body:   pqtype.NullRawMessage{RawMessage: json.RawMessage(data), Valid: true},
		})
		if err != nil {
			return fmt.Errorf("failed to upsert document: %w", err)
		}
		revision = rev
		return q.NotifyDocument(ctx, db.NotifyDocumentParams{
			Channel: s.cfg.NotifyChannel,
			DocKey:  s.cfg.Key,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", s.cfg.Key, err)
	}

	log.Debug().Str("key", s.cfg.Key).Int64("revision", revision).Msg("document written")
	return nil
}

func (s *Store) Subscribe(ctx context.Context, onSnapshot docstore.SnapshotFunc, onError docstore.ErrorFunc) (docstore.Subscription, error) {
	if s.isClosed() {
		return nil, docstore.ErrClosed
	}

	sub, err := newSubscription(s, docstore.NewDispatcher(onSnapshot, onError))
	if err != nil {
		return nil, err
	}
	// The first delivery is the current state.
	initial, err := s.ReadOnce(ctx)
	if err != nil {
		sub.close()
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.close()
		return nil, docstore.ErrClosed
	}
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go sub.run(initial)
	return sub, nil
}

// Close ends every subscription. The *sql.DB belongs to the caller.
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

// snapshotFromRow maps a row to a snapshot. A NULL body reads as absent.
func snapshotFromRow(row db.ReelboardDocument) docstore.Snapshot {
	snap := docstore.Snapshot{Revision: uint64(row.Revision)}
	if row.Body.Valid && len(row.Body.RawMessage) > 0 {
		snap.Exists = true
		snap.Data = []byte(row.Body.RawMessage)
	}
	return snap
}
