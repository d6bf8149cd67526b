package storage

import (
	"context"
	"fmt"
	"strings"

	"sessionlog/internal/models"
	"sessionlog/internal/query"
)

// Repository exposes the document operations required by the API handlers.
// Every backend applies the same filter and $set semantics.
type Repository interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	InsertOne(ctx context.Context, collection string, doc models.Document) (models.InsertResult, error)
	FindOne(ctx context.Context, collection string, filter query.Filter) (models.Document, bool, error)
	Find(ctx context.Context, collection string, filter query.Filter) ([]models.Document, error)
	UpdateOne(ctx context.Context, collection string, filter query.Filter, set models.Document) (models.UpdateResult, error)
	DeleteOne(ctx context.Context, collection string, filter query.Filter) (models.DeleteResult, error)
}

// Supported driver names.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverJSON     = "json"
)

// DriverConfig selects and configures a backend for Open.
type DriverConfig struct {
	Driver        string
	DataPath      string
	MongoURI      string
	MongoDatabase string
	PostgresDSN   string
	Options       []Option
}

// Open constructs the repository named by cfg.Driver.
func Open(ctx context.Context, cfg DriverConfig) (Repository, error) {
	opts := append([]Option(nil), cfg.Options...)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverMongo:
		if strings.TrimSpace(cfg.MongoDatabase) != "" {
			opts = append(opts, WithMongoDatabase(cfg.MongoDatabase))
		}
		return NewMongoRepository(ctx, cfg.MongoURI, opts...)
	case DriverPostgres:
		return NewPostgresRepository(ctx, cfg.PostgresDSN, opts...)
	case DriverJSON:
		return NewJSONRepository(cfg.DataPath, opts...)
	case "":
		return nil, ErrNotConfigured
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
