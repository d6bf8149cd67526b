package models

import (
	"time"
)

// Collection names.
const (
	CollectionUsers    = "users"
	CollectionSessions = "sessions"
)

// Field names the service reads or assigns. Every other field on a document is
// caller-supplied and passed through untouched.
const (
	FieldID          = "_id"
	FieldCreatedDate = "createdDate"
	FieldUserID      = "userId"
	FieldName        = "name"
	FieldDate        = "date"
	FieldSessionName = "sessionName"
	FieldLocation    = "location"
	FieldCash        = "cash"
)

// Document is a schema-free record held in a collection.
type Document map[string]any

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// ID returns the document identifier, if one has been assigned.
func (d Document) ID() (any, bool) {
	id, ok := d[FieldID]
	return id, ok && id != nil
}

// InsertResult mirrors the acknowledgement returned by the database driver for
// a single-document insert.
type InsertResult struct {
	Acknowledged bool `json:"acknowledged"`
	InsertedID   any  `json:"insertedId"`
}

// UpdateResult mirrors the driver acknowledgement for a single-document update.
type UpdateResult struct {
	Acknowledged  bool  `json:"acknowledged"`
	MatchedCount  int64 `json:"matchedCount"`
	ModifiedCount int64 `json:"modifiedCount"`
	UpsertedCount int64 `json:"upsertedCount"`
	UpsertedID    any   `json:"upsertedId"`
}

// DeleteResult mirrors the driver acknowledgement for a single-document delete.
type DeleteResult struct {
	Acknowledged bool  `json:"acknowledged"`
	DeletedCount int64 `json:"deletedCount"`
}

// Timestamp normalises t to the precision every backend can store.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
