// Package query translates list-endpoint query strings into backend-neutral
// filter expressions that every storage backend knows how to evaluate.
package query
