// Package server hosts the sessionlog API behind a single HTTP server.
//
// New builds one middleware chain shared by every route: request IDs, request
// logging, panic recovery, metrics, CORS, rate limiting and security headers,
// in that order from the outside in. The chain wraps a ServeMux exposing the
// /api/v1/users tree, /healthz and /metrics.
package server
