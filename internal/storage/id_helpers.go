package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"sessionlog/internal/models"
)

// newObjectID returns a fresh ObjectID whose embedded timestamp comes from
// clock.
func newObjectID(clock func() time.Time) primitive.ObjectID {
	id := primitive.NewObjectID()
	if clock != nil {
		binary.BigEndian.PutUint32(id[0:4], uint32(clock().Unix()))
	}
	return id
}

// ensureID assigns an ObjectID to doc when the caller did not supply one and
// returns the identifier in effect.
func ensureID(doc models.Document, clock func() time.Time) any {
	if id, ok := doc.ID(); ok {
		return id
	}
	id := newObjectID(clock)
	doc[models.FieldID] = id
	return id
}

// idKey renders an identifier as the text key used by backends that index
// documents by string.
func idKey(id any) (string, error) {
	switch value := id.(type) {
	case primitive.ObjectID:
		return value.Hex(), nil
	case string:
		return value, nil
	case nil:
		return "", fmt.Errorf("document id is null")
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("encode document id: %w", err)
		}
		return string(encoded), nil
	}
}
