// Package api hosts the HTTP handlers that front the sessionlog REST API.
//
// Handler translates each route into a query.Filter or a document and hands
// it to the storage.Repository injected at construction time. Driver results
// are written back verbatim as the response body. Every failure is funnelled
// to a single responder that logs the cause with the request ID and replies
// with a generic 500.
//
// Handlers assume the middleware assembled by internal/server has already
// attached request IDs, logging, metrics, CORS and rate limiting.
package api
