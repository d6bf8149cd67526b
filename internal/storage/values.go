package storage

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"sessionlog/internal/models"
)

// normalizeValue converts driver-specific BSON representations into the plain
// Go values handlers serialize: documents become models.Document, arrays
// become []any and datetimes become time.Time.
func normalizeValue(v any) any {
	switch value := v.(type) {
	case primitive.DateTime:
		return models.Timestamp(value.Time())
	case time.Time:
		return models.Timestamp(value)
	case primitive.D:
		doc := make(models.Document, len(value))
		for _, elem := range value {
			doc[elem.Key] = normalizeValue(elem.Value)
		}
		return doc
	case primitive.M:
		return normalizeDocument(models.Document(value))
	case map[string]any:
		return normalizeDocument(models.Document(value))
	case models.Document:
		return normalizeDocument(value)
	case primitive.A:
		return normalizeSlice([]any(value))
	case []any:
		return normalizeSlice(value)
	case primitive.Null, primitive.Undefined:
		return nil
	default:
		return v
	}
}

func normalizeDocument(doc models.Document) models.Document {
	if doc == nil {
		return nil
	}
	out := make(models.Document, len(doc))
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeSlice(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = normalizeValue(v)
	}
	return out
}

// cloneDocument returns a deep copy of doc so callers never share nested maps
// or slices with the backing store.
func cloneDocument(doc models.Document) models.Document {
	return normalizeDocument(doc)
}

// validateSet rejects updates every backend refuses.
func validateSet(set models.Document) error {
	if len(set) == 0 {
		return ErrEmptyUpdate
	}
	for key := range set {
		if key == models.FieldID || strings.HasPrefix(key, models.FieldID+".") {
			return ErrImmutableField
		}
		if key == "" || strings.HasPrefix(key, "$") {
			return fmt.Errorf("invalid update field %q", key)
		}
	}
	return nil
}

// applySet writes every field of set into doc, creating intermediate
// documents for dotted paths. It reports whether the document changed.
func applySet(doc models.Document, set models.Document) (bool, error) {
	changed := false
	for path, value := range set {
		value = normalizeValue(value)
		parts := strings.Split(path, ".")
		target := doc
		for i, part := range parts[:len(parts)-1] {
			next, ok := target[part]
			if !ok || next == nil {
				child := models.Document{}
				target[part] = child
				target = child
				continue
			}
			child, ok := next.(models.Document)
			if !ok {
				return changed, fmt.Errorf("cannot create field %q in element %q", parts[i+1], strings.Join(parts[:i+1], "."))
			}
			target = child
		}
		leaf := parts[len(parts)-1]
		if current, ok := target[leaf]; ok && valuesEqual(current, value) {
			continue
		}
		target[leaf] = value
		changed = true
	}
	return changed, nil
}

// valuesEqual reports whether two normalized values are identical.
func valuesEqual(a, b any) bool {
	if cmp, ok := compareValues(a, b); ok {
		return cmp == 0
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two scalar values of the same type class. ok is false
// when the values cannot be ordered against each other.
func compareValues(a, b any) (int, bool) {
	if na, ok := toFloat(a); ok {
		nb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case na < nb:
			return -1, true
		case na > nb:
			return 1, true
		default:
			return 0, true
		}
	}
	switch left := a.(type) {
	case string:
		right, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(left, right), true
	case time.Time:
		right, ok := toTime(b)
		if !ok {
			return 0, false
		}
		return left.Compare(right), true
	case primitive.DateTime:
		right, ok := toTime(b)
		if !ok {
			return 0, false
		}
		return left.Time().Compare(right), true
	case primitive.ObjectID:
		right, ok := b.(primitive.ObjectID)
		if !ok {
			return 0, false
		}
		return bytes.Compare(left[:], right[:]), true
	case bool:
		right, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case left == right:
			return 0, true
		case !left:
			return -1, true
		default:
			return 1, true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case primitive.DateTime:
		return t.Time(), true
	}
	return time.Time{}, false
}

// decodeBSONDocument converts a raw driver document into a normalized
// models.Document.
func decodeBSONDocument(raw bson.Raw) (models.Document, error) {
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return normalizeDocument(models.Document(doc)), nil
}
