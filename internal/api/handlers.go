package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sessionlog/internal/observability/metrics"
	"sessionlog/internal/storage"
)

// UsersPath is the route prefix served by Handler.Users.
const UsersPath = "/api/v1/users"

const sessionsSegment = "sessions"

// Pinger reports the availability of an optional dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	Store       storage.Repository
	Logger      *slog.Logger
	RateLimiter Pinger
	Metrics     *metrics.Recorder
	Clock       func() time.Time
}

func NewHandler(store storage.Repository, logger *slog.Logger) *Handler {
	return &Handler{Store: store, Logger: logger}
}

func (h *Handler) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

func (h *Handler) recorder() *metrics.Recorder {
	if h.Metrics != nil {
		return h.Metrics
	}
	return metrics.Default()
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeMethodNotAllowed(w, r, "GET, HEAD")
		return
	}
	components, status, code := h.componentHealth(r.Context())
	writeJSON(w, code, map[string]interface{}{
		"status":   status,
		"services": components,
	})
}

// Users routes everything below UsersPath. Trailing slashes are optional.
//
//	/users                            GET, POST
//	/users/{id}                       GET, PATCH, DELETE
//	/users/{id}/sessions              GET, POST
//	/users/{id}/sessions/{sessionId}  GET, PATCH, DELETE
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	segments, ok := splitUsersPath(r.URL.Path)
	if !ok {
		writeNotFound(w, "route")
		return
	}

	switch {
	case len(segments) == 0:
		h.userCollection(w, r)
	case len(segments) == 1:
		h.userByID(w, r, segments[0])
	case len(segments) == 2 && segments[1] == sessionsSegment:
		h.sessionCollection(w, r, segments[0])
	case len(segments) == 3 && segments[1] == sessionsSegment:
		h.sessionByID(w, r, segments[0], segments[2])
	default:
		writeNotFound(w, "route")
	}
}

func splitUsersPath(path string) ([]string, bool) {
	rest, ok := strings.CutPrefix(path, UsersPath)
	if !ok || (rest != "" && !strings.HasPrefix(rest, "/")) {
		return nil, false
	}
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return nil, true
	}
	segments := strings.Split(rest, "/")
	for _, segment := range segments {
		if segment == "" {
			return nil, false
		}
	}
	return segments, true
}
