package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// RepositoryFactory constructs a repository backed by one of the datastore
// implementations for cross-datastore scenario assertions.
type RepositoryFactory func(t *testing.T, opts ...Option) (Repository, func(), error)

func newTestStore(t *testing.T, opts ...Option) *JSONRepository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.json")
	store, err := NewJSONRepository(path, opts...)
	require.NoError(t, err)
	return store
}

func jsonRepositoryFactory(t *testing.T, opts ...Option) (Repository, func(), error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.json")
	store, err := NewJSONRepository(path, opts...)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {}, nil
}

// mongoRepositoryFactory connects to SESSIONLOG_TEST_MONGO_URI using a database
// unique to the test and drops it afterwards.
func mongoRepositoryFactory(t *testing.T, opts ...Option) (Repository, func(), error) {
	t.Helper()
	uri := strings.TrimSpace(os.Getenv("SESSIONLOG_TEST_MONGO_URI"))
	if uri == "" {
		t.Skip("SESSIONLOG_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	database := "sessionlog_test_" + strings.ToLower(newObjectID(nil).Hex())
	opts = append(opts, WithMongoDatabase(database))
	repo, err := NewMongoRepository(ctx, uri, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := repo.Ping(ctx); err != nil {
		t.Skipf("mongo unavailable: %v", err)
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if mongoRepo, ok := repo.(*mongoRepository); ok {
			_ = mongoRepo.db.Drop(ctx)
		}
		_ = repo.Close(ctx)
	}
	return repo, cleanup, nil
}

// postgresRepositoryFactory opens SESSIONLOG_TEST_POSTGRES_DSN, which must
// point at a database dedicated to automated runs. Collection tables are
// truncated before each test.
func postgresRepositoryFactory(t *testing.T, opts ...Option) (Repository, func(), error) {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("SESSIONLOG_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("SESSIONLOG_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := NewPostgresRepository(ctx, dsn, opts...)
	if err != nil {
		return nil, nil, err
	}
	pgRepo := repo.(*postgresRepository)
	for _, collection := range pgRepo.cfg.Collections {
		if _, err := pgRepo.pool.Exec(ctx, "TRUNCATE "+tableName(collection)); err != nil {
			return nil, nil, err
		}
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = repo.Close(ctx)
	}
	return repo, cleanup, nil
}

func runRepository(t *testing.T, factory RepositoryFactory, opts ...Option) Repository {
	t.Helper()
	require.NotNil(t, factory, "repository factory is required")
	repo, cleanup, err := factory(t, opts...)
	require.NoError(t, err, "open repository")
	require.NotNil(t, repo, "repository factory returned nil repository")
	if cleanup != nil {
		t.Cleanup(cleanup)
	}
	return repo
}
