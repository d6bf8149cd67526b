package storage

import (
	"sessionlog/internal/models"
	"sessionlog/internal/query"
)

// matches evaluates filter against doc in Go for backends without a native
// query engine. Array fields match when any element satisfies a clause.
func matches(doc models.Document, filter query.Filter) bool {
	for _, clause := range filter.Clauses {
		if !matchClause(doc, clause) {
			return false
		}
	}
	return true
}

func matchClause(doc models.Document, clause query.Clause) bool {
	value, ok := doc[clause.Field]
	if !ok {
		return false
	}
	if values, isArray := value.([]any); isArray {
		for _, elem := range values {
			if matchValue(elem, clause) {
				return true
			}
		}
		return false
	}
	return matchValue(value, clause)
}

func matchValue(value any, clause query.Clause) bool {
	switch clause.Op {
	case query.OpEq:
		return valuesEqual(value, normalizeValue(clause.Value))
	case query.OpGte:
		cmp, ok := compareValues(value, normalizeValue(clause.Value))
		return ok && cmp >= 0
	case query.OpLte:
		cmp, ok := compareValues(value, normalizeValue(clause.Value))
		return ok && cmp <= 0
	case query.OpIn:
		for _, candidate := range inValues(clause.Value) {
			if valuesEqual(value, candidate) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func inValues(v any) []any {
	switch values := v.(type) {
	case []string:
		out := make([]any, len(values))
		for i, s := range values {
			out[i] = s
		}
		return out
	case []any:
		return values
	default:
		return []any{v}
	}
}
