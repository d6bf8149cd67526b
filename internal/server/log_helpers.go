package server

import (
	"log/slog"
	"net/http"

	"sessionlog/internal/observability/logging"
)

// loggerFor prefers the request-scoped logger attached by the request ID
// middleware and falls back to base annotated with the request ID.
func loggerFor(r *http.Request, base *slog.Logger) *slog.Logger {
	if logger := logging.LoggerFromContext(r.Context()); logger != nil {
		return logger
	}
	if base == nil {
		base = slog.Default()
	}
	return logging.WithContext(r.Context(), base)
}
