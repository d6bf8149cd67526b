package server

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimitConfig controls request throttling. A zero GlobalRPS disables the
// global limiter and a zero ClientLimit disables per-client limits.
type RateLimitConfig struct {
	GlobalRPS   float64
	GlobalBurst int
	// ClientLimit requests are allowed per ClientWindow for each client IP.
	ClientLimit  int
	ClientWindow time.Duration
	// TrustForwardedHeaders keys clients on X-Forwarded-For when set.
	TrustForwardedHeaders bool

	RedisAddr     string
	RedisPassword string
	RedisTimeout  time.Duration
	// RedisClient overrides RedisAddr when provided.
	RedisClient redis.UniversalClient
}

const (
	defaultClientWindow = time.Minute
	defaultRedisTimeout = 2 * time.Second
	clientKeyPrefix     = "sessionlog:ratelimit:"
)

type rateLimiter struct {
	global         *rate.Limiter
	clientLimit    int
	clientWindow   time.Duration
	trustForwarded bool

	mu      sync.Mutex
	clients map[string]*clientLimiter
	store   tokenStore
	now     func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// tokenStore counts requests in a shared backend so several replicas enforce
// one per-client budget.
type tokenStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
	Ping(ctx context.Context) error
	Close() error
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	rl := &rateLimiter{
		clientLimit:    cfg.ClientLimit,
		clientWindow:   cfg.ClientWindow,
		trustForwarded: cfg.TrustForwardedHeaders,
		clients:        make(map[string]*clientLimiter),
		now:            time.Now,
	}
	if cfg.GlobalRPS > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = int(math.Ceil(cfg.GlobalRPS))
		}
		rl.global = rate.NewLimiter(rate.Limit(cfg.GlobalRPS), burst)
	}
	if rl.clientLimit < 0 {
		rl.clientLimit = 0
	}
	if rl.clientWindow <= 0 {
		rl.clientWindow = defaultClientWindow
	}
	if rl.clientLimit > 0 {
		timeout := cfg.RedisTimeout
		if timeout <= 0 {
			timeout = defaultRedisTimeout
		}
		switch {
		case cfg.RedisClient != nil:
			rl.store = newRedisStore(cfg.RedisClient, timeout)
		case strings.TrimSpace(cfg.RedisAddr) != "":
			client := redis.NewUniversalClient(&redis.UniversalOptions{
				Addrs:        []string{strings.TrimSpace(cfg.RedisAddr)},
				Password:     cfg.RedisPassword,
				DialTimeout:  timeout,
				ReadTimeout:  timeout,
				WriteTimeout: timeout,
			})
			rl.store = newRedisStore(client, timeout)
		}
	}
	return rl
}

func (r *rateLimiter) enabled() bool {
	return r != nil && (r.global != nil || r.clientLimit > 0)
}

// distributed reports whether per-client counters live in Redis.
func (r *rateLimiter) distributed() bool {
	return r != nil && r.store != nil
}

func (r *rateLimiter) AllowRequest() bool {
	if r == nil || r.global == nil {
		return true
	}
	return r.global.Allow()
}

// AllowClient charges one request against key and reports how long the
// caller should wait when the budget is exhausted.
func (r *rateLimiter) AllowClient(ctx context.Context, key string) (bool, time.Duration, error) {
	if r == nil || r.clientLimit <= 0 {
		return true, 0, nil
	}
	if key == "" {
		key = "unknown"
	}
	if r.store != nil {
		return r.store.Allow(ctx, clientKeyPrefix+key, r.clientLimit, r.clientWindow)
	}

	now := r.now()
	r.mu.Lock()
	client, exists := r.clients[key]
	if !exists {
		limit := rate.Every(r.clientWindow / time.Duration(r.clientLimit))
		client = &clientLimiter{limiter: rate.NewLimiter(limit, r.clientLimit)}
		r.clients[key] = client
	}
	client.lastSeen = now
	r.cleanupLocked(now)
	r.mu.Unlock()

	reservation := client.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, r.clientWindow, nil
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}

func (r *rateLimiter) cleanupLocked(now time.Time) {
	if len(r.clients) == 0 {
		return
	}
	cutoff := now.Add(-2 * r.clientWindow)
	for key, client := range r.clients {
		if client.lastSeen.Before(cutoff) {
			delete(r.clients, key)
		}
	}
}

// Ping checks the shared counter backend. In-process limiters are always
// healthy.
func (r *rateLimiter) Ping(ctx context.Context) error {
	if r == nil || r.store == nil {
		return nil
	}
	return r.store.Ping(ctx)
}

func (r *rateLimiter) Close() error {
	if r == nil || r.store == nil {
		return nil
	}
	return r.store.Close()
}

func (r *rateLimiter) clientKey(req *http.Request) string {
	if r.trustForwarded {
		if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
		if realIP := net.ParseIP(strings.TrimSpace(req.Header.Get("X-Real-IP"))); realIP != nil {
			return realIP.String()
		}
	}
	return clientIP(req.RemoteAddr)
}

func clientIP(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func retryAfterSeconds(wait time.Duration) string {
	seconds := int64(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return fmt.Sprintf("%d", seconds)
}
