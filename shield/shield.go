// Package shield provides the HTTP middleware in front of the ezpage page
// endpoints: security headers suited to the HTML preview, body limits for
// streamed actions, request tracing and per-client rate limiting.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.Stack(logger, cfg) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// Config configures Stack. Zero values take the defaults.
type Config struct {
	// MaxBodyBytes caps request bodies. Default: 2 MiB.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
	// RateLimits maps "METHOD /path/prefix" (or just "METHOD") to a limit.
	RateLimits map[string]RateLimitConfig `yaml:"rate_limits"`
	// Exclude lists path prefixes that skip rate limiting.
	Exclude []string     `yaml:"exclude"`
	Headers HeaderConfig `yaml:"headers"`
}

func (c *Config) defaults() {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 2 << 20
	}
	if c.Headers == (HeaderConfig{}) {
		c.Headers = DefaultHeaders()
	}
}

// Stack returns the middleware chain, outermost first:
// HeadToGet, SecurityHeaders, MaxBody, TraceID, then the rate limiter
// when rules are configured.
func Stack(logger *slog.Logger, cfg Config) []func(http.Handler) http.Handler {
	cfg.defaults()
	stack := []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(cfg.Headers),
		MaxBody(cfg.MaxBodyBytes),
		TraceID(logger),
	}
	if len(cfg.RateLimits) > 0 {
		stack = append(stack, NewRateLimiter(cfg.RateLimits, cfg.Exclude...).Middleware)
	}
	return stack
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// HeadToGet serves HEAD with the GET routes; net/http drops the body.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
