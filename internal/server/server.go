package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sessionlog/internal/api"
	"sessionlog/internal/observability/logging"
	"sessionlog/internal/observability/metrics"
)

type Config struct {
	Addr      string
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Security  SecurityConfig
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
}

type Server struct {
	httpServer  *http.Server
	rateLimiter *rateLimiter
}

// New assembles the mux and middleware chain around handler. When per-client
// limits are backed by Redis the limiter is registered with the handler's
// health check.
func New(handler *api.Handler, cfg Config) (*Server, error) {
	if handler == nil {
		return nil, errors.New("api handler is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}

	corsHandler, err := newCORS(cfg.CORS, logger)
	if err != nil {
		return nil, fmt.Errorf("configure cors: %w", err)
	}

	rl := newRateLimiter(cfg.RateLimit)
	if rl.distributed() && handler.RateLimiter == nil {
		handler.RateLimiter = rl
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handler.Health)
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc(api.UsersPath, handler.Users)
	mux.HandleFunc(api.UsersPath+"/", handler.Users)

	handlerChain := http.Handler(mux)
	handlerChain = securityHeadersMiddleware(cfg.Security, handlerChain)
	handlerChain = rateLimitMiddleware(rl, logger, handlerChain)
	handlerChain = corsHandler.Handler(handlerChain)
	handlerChain = recoverMiddleware(logger, handlerChain)
	handlerChain = metrics.HTTPMiddleware(recorder, handlerChain)
	handlerChain = logging.RequestLogger(logging.RequestLoggerConfig{Logger: logger})(handlerChain)
	handlerChain = requestIDMiddleware(logger, handlerChain)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handlerChain,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return &Server{httpServer: httpServer, rateLimiter: rl}, nil
}

// HTTPServer exposes the configured server so callers can run it with
// serverutil.Run.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Close releases resources held by the middleware, such as the Redis client
// behind the rate limiter.
func (s *Server) Close() error {
	return s.rateLimiter.Close()
}

func rateLimitMiddleware(rl *rateLimiter, logger *slog.Logger, next http.Handler) http.Handler {
	if !rl.enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		if !rl.AllowRequest() {
			w.Header().Set("Retry-After", "1")
			api.WriteError(w, http.StatusTooManyRequests, errors.New("global rate limit exceeded"))
			return
		}
		allowed, retryAfter, err := rl.AllowClient(r.Context(), rl.clientKey(r))
		if err != nil {
			loggerFor(r, logger).Error("rate limiter failure", "error", err)
			api.WriteError(w, http.StatusServiceUnavailable, errors.New("rate limiter unavailable"))
			return
		}
		if !allowed {
			w.Header().Set("Retry-After", retryAfterSeconds(retryAfter))
			api.WriteError(w, http.StatusTooManyRequests, errors.New("too many requests"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
