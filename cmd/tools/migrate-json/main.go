// Command migrate-json copies a JSON datastore file into the configured Mongo
// or Postgres backend and verifies the document counts afterwards.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"sessionlog/internal/config"
	"sessionlog/internal/models"
	"sessionlog/internal/observability/logging"
	"sessionlog/internal/query"
	"sessionlog/internal/storage"
)

var collections = []string{models.CollectionUsers, models.CollectionSessions}

func main() {
	logger := logging.New(logging.Config{Level: "info", Format: "console"})
	if err := run(context.Background(), os.Args[1:], logger); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, logger *slog.Logger) error {
	flags := config.NewFlagSet("migrate-json")
	source := flags.String("from", "data/store.json", "path to the JSON datastore to migrate")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.FromFlags(flags)
	if err != nil {
		return err
	}
	if cfg.Storage.Driver == storage.DriverJSON {
		return errors.New("target datastore must be mongo or postgres")
	}

	// NewJSONRepository treats a missing file as an empty store.
	path := strings.TrimSpace(*source)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("open JSON datastore %s: %w", path, err)
	}
	src, err := storage.NewJSONRepository(path)
	if err != nil {
		return fmt.Errorf("open JSON datastore: %w", err)
	}
	defer func() { _ = src.Close(context.Background()) }()

	dst, err := storage.Open(ctx, cfg.Storage.DriverConfig())
	if err != nil {
		return fmt.Errorf("open %s datastore: %w", cfg.Storage.Driver, err)
	}
	defer func() { _ = dst.Close(context.Background()) }()

	counts, err := migrate(ctx, src, dst)
	if err != nil {
		return err
	}
	logger.Info("migration completed", "driver", cfg.Storage.Driver, "users", counts[models.CollectionUsers], "sessions", counts[models.CollectionSessions])
	return nil
}

// migrate copies every document, keeping identifiers, then checks that the
// target holds at least as many documents as were copied.
func migrate(ctx context.Context, src, dst storage.Repository) (map[string]int, error) {
	counts := make(map[string]int, len(collections))
	for _, collection := range collections {
		docs, err := src.Find(ctx, collection, query.Filter{})
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", collection, err)
		}
		for _, doc := range docs {
			if _, err := dst.InsertOne(ctx, collection, doc); err != nil {
				id, _ := doc.ID()
				return nil, fmt.Errorf("copy %s document %v: %w", collection, id, err)
			}
		}
		counts[collection] = len(docs)
	}

	for _, collection := range collections {
		docs, err := dst.Find(ctx, collection, query.Filter{})
		if err != nil {
			return nil, fmt.Errorf("verify %s: %w", collection, err)
		}
		if len(docs) < counts[collection] {
			return nil, fmt.Errorf("mismatch for %s: expected at least %d, got %d", collection, counts[collection], len(docs))
		}
	}
	return counts, nil
}
