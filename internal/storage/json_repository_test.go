package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"sessionlog/internal/models"
	"sessionlog/internal/query"
)

func TestJSONRepositoryPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "store.json")
	store, err := NewJSONRepository(path)
	require.NoError(t, err)

	ctx := context.Background()
	userID := primitive.NewObjectID()
	when := time.Date(2024, 5, 1, 9, 30, 0, 250000000, time.UTC)
	res, err := store.InsertOne(ctx, models.CollectionSessions, models.Document{
		models.FieldUserID: userID,
		"date":             when,
		"cash":             true,
		"tags":             []any{"x", "y"},
		"venue":            map[string]any{"city": "Reno"},
	})
	require.NoError(t, err)

	reopened, err := NewJSONRepository(path)
	require.NoError(t, err)

	doc, found, err := reopened.FindOne(ctx, models.CollectionSessions, query.ByID(res.InsertedID.(primitive.ObjectID)))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, userID, doc[models.FieldUserID])
	assert.True(t, when.Equal(doc["date"].(time.Time)))
	assert.Equal(t, true, doc["cash"])
	assert.Equal(t, []any{"x", "y"}, doc["tags"])
	assert.Equal(t, models.Document{"city": "Reno"}, doc["venue"])

	docs, err := reopened.Find(ctx, models.CollectionSessions, query.SessionFilter(userID, nil))
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestJSONRepositoryEmptyFileLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	store, err := NewJSONRepository(path)
	require.NoError(t, err)
	docs, err := store.Find(context.Background(), models.CollectionUsers, query.Filter{})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestJSONRepositoryRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewJSONRepository(path)
	require.Error(t, err)
}

func TestJSONRepositoryRollsBackOnPersistFailure(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	res, err := store.InsertOne(ctx, models.CollectionUsers, models.Document{"name": "kept"})
	require.NoError(t, err)
	id := res.InsertedID.(primitive.ObjectID)

	failure := errors.New("disk full")
	store.persistOverride = func(dataset) error { return failure }

	_, err = store.InsertOne(ctx, models.CollectionUsers, models.Document{"name": "lost"})
	require.ErrorIs(t, err, failure)

	_, err = store.UpdateOne(ctx, models.CollectionUsers, query.ByID(id), models.Document{"name": "changed"})
	require.ErrorIs(t, err, failure)

	_, err = store.DeleteOne(ctx, models.CollectionUsers, query.ByID(id))
	require.ErrorIs(t, err, failure)

	store.persistOverride = nil
	docs, err := store.Find(ctx, models.CollectionUsers, query.Filter{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "kept", docs[0]["name"])
}

func TestJSONRepositoryDottedSet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	res, err := store.InsertOne(ctx, models.CollectionUsers, models.Document{"name": "nested", "profile": map[string]any{"bio": "hi"}, "flat": "x"})
	require.NoError(t, err)
	id := res.InsertedID.(primitive.ObjectID)

	update, err := store.UpdateOne(ctx, models.CollectionUsers, query.ByID(id), models.Document{"profile.city": "Oslo", "extra.deep.key": float64(1)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), update.ModifiedCount)

	doc, _, err := store.FindOne(ctx, models.CollectionUsers, query.ByID(id))
	require.NoError(t, err)
	assert.Equal(t, models.Document{"bio": "hi", "city": "Oslo"}, doc["profile"])
	assert.Equal(t, models.Document{"deep": models.Document{"key": float64(1)}}, doc["extra"])

	_, err = store.UpdateOne(ctx, models.CollectionUsers, query.ByID(id), models.Document{"flat.child": "y"})
	require.Error(t, err)
}

func TestJSONRepositoryReturnsCopies(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	input := models.Document{"name": "orig"}
	res, err := store.InsertOne(ctx, models.CollectionUsers, input)
	require.NoError(t, err)
	_, hasID := input[models.FieldID]
	assert.False(t, hasID, "caller document must not be mutated")

	doc, _, err := store.FindOne(ctx, models.CollectionUsers, query.ByID(res.InsertedID.(primitive.ObjectID)))
	require.NoError(t, err)
	doc["name"] = "mutated"

	again, _, err := store.FindOne(ctx, models.CollectionUsers, query.ByID(res.InsertedID.(primitive.ObjectID)))
	require.NoError(t, err)
	assert.Equal(t, "orig", again["name"])
}

func TestJSONRepositoryKeepsClientSuppliedID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	res, err := store.InsertOne(ctx, models.CollectionUsers, models.Document{models.FieldID: "custom", "name": "c"})
	require.NoError(t, err)
	assert.Equal(t, "custom", res.InsertedID)

	docs, err := store.Find(ctx, models.CollectionUsers, query.Filter{}.Eq(models.FieldID, "custom"))
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestJSONRepositoryUsesClockForIDs(t *testing.T) {
	fixed := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	store := newTestStore(t, WithClock(func() time.Time { return fixed }))

	res, err := store.InsertOne(context.Background(), models.CollectionUsers, models.Document{})
	require.NoError(t, err)
	assert.True(t, fixed.Equal(res.InsertedID.(primitive.ObjectID).Timestamp()))
}

func TestJSONRepositoryHonoursCancelledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.InsertOne(ctx, models.CollectionUsers, models.Document{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, store.Ping(ctx), context.Canceled)
}
