package api

import (
	"log/slog"
	"net/http"

	"sessionlog/internal/observability/logging"
)

const internalErrorMessage = "an unexpected error occurred"

// WriteInternalError logs err with the request context and replies with the
// generic 500 body shared by every failing route.
func WriteInternalError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	requestLogger := logging.LoggerFromContext(r.Context())
	if requestLogger == nil {
		if logger == nil {
			logger = slog.Default()
		}
		requestLogger = logging.WithContext(r.Context(), logger)
	}
	requestLogger.Error("request failed",
		"error", err,
		"method", r.Method,
		"path", r.URL.Path,
	)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: internalErrorMessage})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	WriteInternalError(w, r, h.Logger, err)
}

func writeNotFound(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: what + " not found"})
}

func writeMethodNotAllowed(w http.ResponseWriter, r *http.Request, allow string) {
	w.Header().Set("Allow", allow)
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method " + r.Method + " not allowed"})
}
