package storage

import (
	"context"
	"time"

	"sessionlog/internal/models"
	"sessionlog/internal/query"
)

// OperationObserver receives the outcome of every repository call.
type OperationObserver interface {
	ObserveOperation(collection, operation string, err error, duration time.Duration)
}

type instrumentedRepository struct {
	next     Repository
	observer OperationObserver
	now      func() time.Time
}

// Instrument wraps repo so each document operation is reported to observer.
// A nil observer returns repo unchanged.
func Instrument(repo Repository, observer OperationObserver) Repository {
	if repo == nil || observer == nil {
		return repo
	}
	return &instrumentedRepository{next: repo, observer: observer, now: time.Now}
}

func (r *instrumentedRepository) observe(collection, operation string, started time.Time, err error) {
	r.observer.ObserveOperation(collection, operation, err, r.now().Sub(started))
}

func (r *instrumentedRepository) Ping(ctx context.Context) error {
	return r.next.Ping(ctx)
}

func (r *instrumentedRepository) Close(ctx context.Context) error {
	return r.next.Close(ctx)
}

func (r *instrumentedRepository) InsertOne(ctx context.Context, collection string, doc models.Document) (models.InsertResult, error) {
	started := r.now()
	res, err := r.next.InsertOne(ctx, collection, doc)
	r.observe(collection, "insert_one", started, err)
	return res, err
}

func (r *instrumentedRepository) FindOne(ctx context.Context, collection string, filter query.Filter) (models.Document, bool, error) {
	started := r.now()
	doc, ok, err := r.next.FindOne(ctx, collection, filter)
	r.observe(collection, "find_one", started, err)
	return doc, ok, err
}

func (r *instrumentedRepository) Find(ctx context.Context, collection string, filter query.Filter) ([]models.Document, error) {
	started := r.now()
	docs, err := r.next.Find(ctx, collection, filter)
	r.observe(collection, "find", started, err)
	return docs, err
}

func (r *instrumentedRepository) UpdateOne(ctx context.Context, collection string, filter query.Filter, set models.Document) (models.UpdateResult, error) {
	started := r.now()
	res, err := r.next.UpdateOne(ctx, collection, filter, set)
	r.observe(collection, "update_one", started, err)
	return res, err
}

func (r *instrumentedRepository) DeleteOne(ctx context.Context, collection string, filter query.Filter) (models.DeleteResult, error) {
	started := r.now()
	res, err := r.next.DeleteOne(ctx, collection, filter)
	r.observe(collection, "delete_one", started, err)
	return res, err
}
