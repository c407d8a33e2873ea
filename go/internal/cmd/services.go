package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/reelboard/go/internal/activity"
	"github.com/mcdev12/reelboard/go/internal/boardsync"
	"github.com/mcdev12/reelboard/go/internal/config"
	"github.com/mcdev12/reelboard/go/internal/docstore"
	"github.com/mcdev12/reelboard/go/internal/docstore/memory"
	"github.com/mcdev12/reelboard/go/internal/docstore/natskv"
	"github.com/mcdev12/reelboard/go/internal/docstore/postgres"
	"github.com/mcdev12/reelboard/go/internal/docstore/redisdoc"
	"github.com/mcdev12/reelboard/go/internal/gateway"
)

type Services struct {
	Store   docstore.Store
	Syncer  *boardsync.Syncer
	Gateway *gateway.Service
	Metrics *activity.CountingMetrics

	closers []io.Closer
}

func setupServices(ctx context.Context, cfg config.Config) (*Services, error) {
	// Wire up dependency injection chain
	// Store → Syncer (+ activity publisher) → Gateway
	s := &Services{Metrics: activity.NewCountingMetrics()}

	store, err := setupStore(ctx, cfg, s)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Store = store

	publisher, err := setupPublisher(cfg, s)
	if err != nil {
		s.Close()
		return nil, err
	}

	clock := clockwork.NewRealClock()
	syncCfg := boardsync.DefaultConfig()
	syncCfg.WriteTimeout = cfg.Store.WriteTimeout
	s.Syncer = boardsync.New(store, syncCfg,
		boardsync.WithClock(clock),
		boardsync.WithPublisher(activity.NewMetricPublisher(publisher, s.Metrics)),
	)
	// A failed subscription leaves the board disconnected but usable.
	if err := s.Syncer.Start(ctx); err != nil {
		log.Error().Err(err).Msg("board syncer started disconnected")
	}

	s.Gateway = gateway.NewService(gateway.DefaultConfig(), s.Syncer, s.Metrics, clock)
	return s, nil
}

func setupStore(ctx context.Context, cfg config.Config, s *Services) (docstore.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreNATS:
		natsCfg := natskv.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.Bucket = cfg.NATS.Bucket
		if cfg.Store.Key != "" {
			natsCfg.Key = cfg.Store.Key
		}
		store, err := natskv.Connect(ctx, natsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to set up NATS store: %w", err)
		}
		return store, nil

	case config.StorePostgres:
		database, err := setupDatabase(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, database)
		return setupPostgresStore(ctx, cfg, database)

	case config.StoreRedis:
		redisCfg := redisdoc.DefaultConfig()
		redisCfg.Addr = cfg.Redis.Addr
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.Channel = cfg.Redis.Channel
		redisCfg.FallbackInterval = cfg.Redis.PollInterval
		if cfg.Store.Key != "" {
			redisCfg.Key = cfg.Store.Key
		}
		rdb, err := redisdoc.NewClient(ctx, redisCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to set up redis store: %w", err)
		}
		return redisdoc.New(rdb, redisCfg), nil

	default:
		log.Warn().Msg("using in-memory store, the board is not shared between processes")
		return memory.New(), nil
	}
}

func setupPostgresStore(ctx context.Context, cfg config.Config, database *sql.DB) (docstore.Store, error) {
	pgCfg := postgres.DefaultConfig()
	pgCfg.DatabaseURL = cfg.Postgres.URL
	pgCfg.NotifyChannel = cfg.Postgres.NotifyChannel
	pgCfg.FallbackInterval = cfg.Postgres.PollInterval
	if cfg.Store.Key != "" {
		pgCfg.Key = cfg.Store.Key
	}
	store := postgres.New(database, pgCfg)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return store, nil
}

func setupPublisher(cfg config.Config, s *Services) (activity.Publisher, error) {
	switch cfg.Activity.Publisher {
	case config.PublisherNATS:
		jsCfg := activity.DefaultJetStreamConfig()
		jsCfg.URL = cfg.Activity.NATSURL
		p, err := activity.NewJetStreamPublisher(jsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to set up JetStream publisher: %w", err)
		}
		s.closers = append(s.closers, p)
		return p, nil

	case config.PublisherRabbitMQ:
		p, err := activity.NewRabbitMQPublisher(rabbitMQConfig(cfg.Activity))
		if err != nil {
			return nil, fmt.Errorf("failed to set up RabbitMQ publisher: %w", err)
		}
		s.closers = append(s.closers, p)
		return p, nil

	default:
		return activity.NewLogPublisher(), nil
	}
}

// Close stops the syncer, then the store, then everything they used.
func (s *Services) Close() {
	if s.Syncer != nil {
		s.Syncer.Stop()
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close store")
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			log.Error().Err(err).Msg("failed to close resource")
		}
	}
}

func rabbitMQConfig(cfg config.ActivityConfig) activity.RabbitMQConfig {
	mqCfg := activity.DefaultRabbitMQConfig()
	if cfg.RabbitMQURL != "" {
		mqCfg.URL = cfg.RabbitMQURL
	}
	if cfg.Exchange != "" {
		mqCfg.Exchange = cfg.Exchange
	}
	return mqCfg
}
