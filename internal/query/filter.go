package query

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"sessionlog/internal/models"
)

// Op is a comparison operator understood by every storage backend.
type Op string

const (
	OpEq  Op = "$eq"
	OpGte Op = "$gte"
	OpLte Op = "$lte"
	OpIn  Op = "$in"
)

// Clause constrains a single document field.
type Clause struct {
	Field string
	Op    Op
	Value any
}

// Filter is an ordered conjunction of clauses. The zero value matches every
// document.
type Filter struct {
	Clauses []Clause
}

// Empty reports whether the filter matches every document.
func (f Filter) Empty() bool {
	return len(f.Clauses) == 0
}

// Eq appends an equality clause.
func (f Filter) Eq(field string, value any) Filter {
	return f.with(field, OpEq, value)
}

// Gte appends a lower-bound clause.
func (f Filter) Gte(field string, value any) Filter {
	return f.with(field, OpGte, value)
}

// Lte appends an upper-bound clause.
func (f Filter) Lte(field string, value any) Filter {
	return f.with(field, OpLte, value)
}

// In appends a set-membership clause.
func (f Filter) In(field string, values []string) Filter {
	return f.with(field, OpIn, values)
}

func (f Filter) with(field string, op Op, value any) Filter {
	clauses := make([]Clause, 0, len(f.Clauses)+1)
	clauses = append(clauses, f.Clauses...)
	clauses = append(clauses, Clause{Field: field, Op: op, Value: value})
	return Filter{Clauses: clauses}
}

// ByID matches the document with the given identifier.
func ByID(id primitive.ObjectID) Filter {
	return Filter{}.Eq(models.FieldID, id)
}

// SessionByID matches a session only when it belongs to the given user.
func SessionByID(userID, sessionID primitive.ObjectID) Filter {
	return ByID(sessionID).Eq(models.FieldUserID, userID)
}
