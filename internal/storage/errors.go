package storage

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrInvalidID is returned when an identifier is not a 24 character hex
	// ObjectID.
	ErrInvalidID = errors.New("invalid document id")
	// ErrEmptyUpdate is returned when an update carries no fields to set.
	ErrEmptyUpdate = errors.New("update document must not be empty")
	// ErrImmutableField is returned when an update attempts to change _id.
	ErrImmutableField = errors.New("update would modify the immutable field '_id'")
	// ErrDuplicateKey is returned when a document with the same _id already
	// exists in the collection.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrNotConfigured is returned when no datastore backend was selected.
	ErrNotConfigured = errors.New("datastore not configured")
)

// ParseID converts a hex identifier taken from a request path into an
// ObjectID.
func ParseID(hex string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(hex))
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidID, hex)
	}
	return id, nil
}
