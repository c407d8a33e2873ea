package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/mcdev12/reelboard/go/internal/board"
	"github.com/mcdev12/reelboard/go/internal/dbconfig"
	"github.com/mcdev12/reelboard/go/internal/docstore"
	"github.com/mcdev12/reelboard/go/internal/docstore/postgres"
	"github.com/mcdev12/reelboard/go/internal/models"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		file    = flag.String("file", "", "board JSON to import; empty seeds the default board")
		key     = flag.String("key", docstore.DefaultKey, "document key")
		channel = flag.String("channel", postgres.DefaultConfig().NotifyChannel, "NOTIFY channel for live subscribers")
		force   = flag.Bool("force", false, "overwrite an existing document")
	)
	flag.Parse()

	// 1) Load and migrate the board
	var data []byte
	if *file != "" {
		var err error
		if data, err = os.ReadFile(*file); err != nil {
			return fmt.Errorf("read JSON: %w", err)
		}
	}
	b, doc, err := prepare(data)
	if err != nil {
		return fmt.Errorf("prepare board: %w", err)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = dbconfig.NewConfigFromEnv().DSN()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer pool.Close()
	database := stdlib.OpenDBFromPool(pool)
	defer database.Close()

	cfg := postgres.DefaultConfig()
	cfg.Key = *key
	cfg.NotifyChannel = *channel
	store := postgres.New(database, cfg)
	defer store.Close()

	// 3) Write through the store so the row and NOTIFY match live writers
	revision, written, err := seed(ctx, store, doc, *force)
	if err != nil {
		return fmt.Errorf("seed board: %w", err)
	}

	// 4) Print summary
	if !written {
		fmt.Printf("Board seed skipped: %s already exists (use -force to overwrite)\n", *key)
		return nil
	}
	counts := board.CountsOf(b)
	fmt.Printf(
		"Board seed complete: key %s at revision %d, %d members, %d picks, %d reactions\n",
		*key, revision, counts.Members, counts.Picks, counts.Reactions,
	)
	return nil
}

// seedStore is the part of the postgres store the seeder drives.
type seedStore interface {
	EnsureSchema(ctx context.Context) error
	ReadOnce(ctx context.Context) (docstore.Snapshot, error)
	WriteWhole(ctx context.Context, data []byte) error
}

// seed writes doc unless a document already exists and force is unset. It
// returns the revision the store reports after the write.
func seed(ctx context.Context, store seedStore, doc []byte, force bool) (uint64, bool, error) {
	if err := store.EnsureSchema(ctx); err != nil {
		return 0, false, err
	}
	if !force {
		current, err := store.ReadOnce(ctx)
		if err != nil {
			return 0, false, err
		}
		if current.Exists {
			return current.Revision, false, nil
		}
	}
	if err := store.WriteWhole(ctx, doc); err != nil {
		return 0, false, err
	}
	written, err := store.ReadOnce(ctx)
	if err != nil {
		return 0, false, err
	}
	return written.Revision, true, nil
}

// prepare turns an import file into a document in the current shape. Empty
// input yields the default board.
func prepare(data []byte) (*models.Board, []byte, error) {
	b := board.NewDefaultBoard()
	if len(data) > 0 {
		var err error
		if b, err = board.Decode(data); err != nil {
			return nil, nil, err
		}
	}
	doc, err := board.Encode(b)
	if err != nil {
		return nil, nil, err
	}
	return board.Migrate(b), doc, nil
}
