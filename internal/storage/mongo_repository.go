package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"sessionlog/internal/models"
	"sessionlog/internal/query"
)

type mongoRepository struct {
	client *mongo.Client
	db     *mongo.Database
	cfg    MongoConfig
}

// NewMongoRepository connects to the MongoDB deployment at uri. The driver
// connects lazily; Ping verifies reachability.
func NewMongoRepository(ctx context.Context, uri string, opts ...Option) (Repository, error) {
	cfg := newMongoConfig(uri, opts...)
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, fmt.Errorf("mongo uri required")
	}

	if cfg.Database == "" {
		parsed, err := connstring.ParseAndValidate(cfg.URI)
		if err != nil {
			return nil, fmt.Errorf("parse mongo uri: %w", err)
		}
		cfg.Database = parsed.Database
	}
	if cfg.Database == "" {
		cfg.Database = DefaultMongoDatabase
	}

	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ServerSelectionTimeout)
	if cfg.AppName != "" {
		clientOpts.SetAppName(cfg.AppName)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	return &mongoRepository{
		client: client,
		db:     client.Database(cfg.Database),
		cfg:    cfg,
	}, nil
}

func (r *mongoRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	return nil
}

func (r *mongoRepository) Close(ctx context.Context) error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Disconnect(ctx)
}

func (r *mongoRepository) InsertOne(ctx context.Context, collection string, doc models.Document) (models.InsertResult, error) {
	stored := cloneDocument(doc)
	if stored == nil {
		stored = models.Document{}
	}
	id := ensureID(stored, r.cfg.Clock)

	res, err := r.db.Collection(collection).InsertOne(ctx, bson.M(stored))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.InsertResult{}, fmt.Errorf("insert into %s: %w: %v", collection, ErrDuplicateKey, err)
		}
		return models.InsertResult{}, fmt.Errorf("insert into %s: %w", collection, err)
	}
	if res.InsertedID != nil {
		id = normalizeValue(res.InsertedID)
	}
	return models.InsertResult{Acknowledged: true, InsertedID: id}, nil
}

func (r *mongoRepository) FindOne(ctx context.Context, collection string, filter query.Filter) (models.Document, bool, error) {
	raw, err := r.db.Collection(collection).FindOne(ctx, mongoFilter(filter)).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find in %s: %w", collection, err)
	}
	doc, err := decodeBSONDocument(raw)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (r *mongoRepository) Find(ctx context.Context, collection string, filter query.Filter) ([]models.Document, error) {
	cursor, err := r.db.Collection(collection).Find(ctx, mongoFilter(filter))
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	results := make([]models.Document, 0)
	for cursor.Next(ctx) {
		doc, err := decodeBSONDocument(cursor.Current)
		if err != nil {
			return nil, err
		}
		results = append(results, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return results, nil
}

func (r *mongoRepository) UpdateOne(ctx context.Context, collection string, filter query.Filter, set models.Document) (models.UpdateResult, error) {
	if err := validateSet(set); err != nil {
		return models.UpdateResult{}, err
	}
	update := bson.D{{Key: "$set", Value: bson.M(normalizeDocument(set))}}
	res, err := r.db.Collection(collection).UpdateOne(ctx, mongoFilter(filter), update)
	if err != nil {
		return models.UpdateResult{}, fmt.Errorf("update %s: %w", collection, err)
	}
	return models.UpdateResult{
		Acknowledged:  true,
		MatchedCount:  res.MatchedCount,
		ModifiedCount: res.ModifiedCount,
		UpsertedCount: res.UpsertedCount,
		UpsertedID:    normalizeValue(res.UpsertedID),
	}, nil
}

func (r *mongoRepository) DeleteOne(ctx context.Context, collection string, filter query.Filter) (models.DeleteResult, error) {
	res, err := r.db.Collection(collection).DeleteOne(ctx, mongoFilter(filter))
	if err != nil {
		return models.DeleteResult{}, fmt.Errorf("delete from %s: %w", collection, err)
	}
	return models.DeleteResult{Acknowledged: true, DeletedCount: res.DeletedCount}, nil
}

// mongoFilter renders a filter as a query document. Clauses on the same field
// are merged into one operator document, so a range becomes
// {field: {$gte: a, $lte: b}}.
func mongoFilter(filter query.Filter) bson.D {
	out := bson.D{}
	index := make(map[string]int, len(filter.Clauses))
	for _, clause := range filter.Clauses {
		value := clause.Value
		if t, ok := value.(time.Time); ok {
			value = t.UTC()
		}
		pos, seen := index[clause.Field]
		if !seen {
			index[clause.Field] = len(out)
			out = append(out, bson.E{Key: clause.Field, Value: bson.D{{Key: string(clause.Op), Value: value}}})
			continue
		}
		ops := out[pos].Value.(bson.D)
		out[pos].Value = append(ops, bson.E{Key: string(clause.Op), Value: value})
	}
	return out
}
