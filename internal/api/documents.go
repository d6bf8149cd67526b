package api

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"sessionlog/internal/models"
	"sessionlog/internal/query"
)

// NewUserDocument prepares a caller-supplied body for insertion into the users
// collection by stamping its creation time.
func NewUserDocument(body models.Document, now time.Time) models.Document {
	doc := body.Clone()
	if doc == nil {
		doc = models.Document{}
	}
	doc[models.FieldCreatedDate] = models.Timestamp(now)
	return doc
}

// NewSessionDocument prepares a session body for insertion. The owner comes
// from the route and overrides any userId in the body. The session date is
// always converted, so a missing or unparseable date is stored as null.
func NewSessionDocument(userID primitive.ObjectID, body models.Document, now time.Time) models.Document {
	doc := body.Clone()
	if doc == nil {
		doc = models.Document{}
	}
	doc[models.FieldCreatedDate] = models.Timestamp(now)
	doc[models.FieldDate] = query.CoerceDate(doc[models.FieldDate])
	doc[models.FieldUserID] = userID
	return doc
}

// sessionPatch converts the date of a session patch when one with a truthy
// value is supplied. Other fields pass through as-is.
func sessionPatch(set models.Document) models.Document {
	patch := set.Clone()
	if value, ok := patch[models.FieldDate]; ok && truthy(value) {
		patch[models.FieldDate] = query.CoerceDate(value)
	}
	return patch
}

func truthy(v any) bool {
	switch value := v.(type) {
	case nil:
		return false
	case bool:
		return value
	case string:
		return value != ""
	case float64:
		return value != 0 && !math.IsNaN(value)
	default:
		return true
	}
}
