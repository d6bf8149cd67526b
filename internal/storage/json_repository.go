package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"sessionlog/internal/models"
	"sessionlog/internal/query"
)

type dataset map[string][]models.Document

// JSONRepository keeps every collection in memory and persists the whole
// dataset to a single Extended JSON file after each write.
type JSONRepository struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	clock    func() time.Time
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
}

// NewJSONRepository opens the JSON-backed datastore at path, creating the file
// on first write.
func NewJSONRepository(path string, opts ...Option) (*JSONRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("json data path required")
	}
	store := &JSONRepository{
		filePath: path,
		clock:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyJSON(store)
		}
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *JSONRepository) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	raw, err := os.ReadFile(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = dataset{}
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	if len(raw) == 0 {
		s.data = dataset{}
		return nil
	}

	var decoded map[string][]bson.M
	if err := bson.UnmarshalExtJSON(raw, false, &decoded); err != nil {
		return fmt.Errorf("decode store file: %w", err)
	}
	s.data = make(dataset, len(decoded))
	for collection, docs := range decoded {
		normalized := make([]models.Document, 0, len(docs))
		for _, doc := range docs {
			normalized = append(normalized, normalizeDocument(models.Document(doc)))
		}
		s.data[collection] = normalized
	}
	return nil
}

func (s *JSONRepository) persist() error {
	if s.persistOverride != nil {
		if err := s.persistOverride(s.data); err != nil {
			return err
		}
	}

	encoded, err := bson.MarshalExtJSONIndent(s.data, false, false, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(encoded); err != nil {
		return fmt.Errorf("write store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

func (s *JSONRepository) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Dir(s.filePath)); err != nil {
		return fmt.Errorf("stat data dir: %w", err)
	}
	return nil
}

func (s *JSONRepository) Close(context.Context) error {
	return nil
}

func (s *JSONRepository) InsertOne(ctx context.Context, collection string, doc models.Document) (models.InsertResult, error) {
	if err := ctx.Err(); err != nil {
		return models.InsertResult{}, err
	}
	stored := cloneDocument(doc)
	if stored == nil {
		stored = models.Document{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := ensureID(stored, s.clock)
	for _, existing := range s.data[collection] {
		if current, ok := existing.ID(); ok && valuesEqual(current, id) {
			return models.InsertResult{}, fmt.Errorf("insert into %s: %w", collection, ErrDuplicateKey)
		}
	}

	previous := s.data[collection]
	s.data[collection] = append(previous[:len(previous):len(previous)], stored)
	if err := s.persist(); err != nil {
		s.data[collection] = previous
		return models.InsertResult{}, err
	}
	return models.InsertResult{Acknowledged: true, InsertedID: id}, nil
}

func (s *JSONRepository) FindOne(ctx context.Context, collection string, filter query.Filter) (models.Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, doc := range s.data[collection] {
		if matches(doc, filter) {
			return cloneDocument(doc), true, nil
		}
	}
	return nil, false, nil
}

func (s *JSONRepository) Find(ctx context.Context, collection string, filter query.Filter) ([]models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]models.Document, 0)
	for _, doc := range s.data[collection] {
		if matches(doc, filter) {
			results = append(results, cloneDocument(doc))
		}
	}
	return results, nil
}

func (s *JSONRepository) UpdateOne(ctx context.Context, collection string, filter query.Filter, set models.Document) (models.UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return models.UpdateResult{}, err
	}
	if err := validateSet(set); err != nil {
		return models.UpdateResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.data[collection]
	for i, doc := range docs {
		if !matches(doc, filter) {
			continue
		}
		updated := cloneDocument(doc)
		changed, err := applySet(updated, set)
		if err != nil {
			return models.UpdateResult{}, fmt.Errorf("update %s: %w", collection, err)
		}
		result := models.UpdateResult{Acknowledged: true, MatchedCount: 1}
		if !changed {
			return result, nil
		}
		docs[i] = updated
		if err := s.persist(); err != nil {
			docs[i] = doc
			return models.UpdateResult{}, err
		}
		result.ModifiedCount = 1
		return result, nil
	}
	return models.UpdateResult{Acknowledged: true}, nil
}

func (s *JSONRepository) DeleteOne(ctx context.Context, collection string, filter query.Filter) (models.DeleteResult, error) {
	if err := ctx.Err(); err != nil {
		return models.DeleteResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.data[collection]
	for i, doc := range docs {
		if !matches(doc, filter) {
			continue
		}
		remaining := make([]models.Document, 0, len(docs)-1)
		remaining = append(remaining, docs[:i]...)
		remaining = append(remaining, docs[i+1:]...)
		s.data[collection] = remaining
		if err := s.persist(); err != nil {
			s.data[collection] = docs
			return models.DeleteResult{}, err
		}
		return models.DeleteResult{Acknowledged: true, DeletedCount: 1}, nil
	}
	return models.DeleteResult{Acknowledged: true}, nil
}
