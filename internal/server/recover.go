package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"sessionlog/internal/api"
	"sessionlog/internal/observability/metrics"
)

// recoverMiddleware turns a handler panic into the generic 500 response. The
// status is only written when the handler had not started its response.
func recoverMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := metrics.NewResponseRecorder(w)
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			err := fmt.Errorf("panic: %v", rec)
			if recorder.WroteHeader() {
				loggerFor(r, logger).Error("panic after response started", "error", err, "stack", string(debug.Stack()))
				return
			}
			loggerFor(r, logger).Debug("recovered panic", "stack", string(debug.Stack()))
			api.WriteInternalError(recorder, r, logger, err)
		}()
		next.ServeHTTP(recorder, r)
	})
}
