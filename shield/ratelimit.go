package shield

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig limits one rule to MaxRequests per Window per client IP.
type RateLimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

type bucket struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// RateLimiter is a fixed-window per-IP limiter. Rules are keyed
// "METHOD /path/prefix" or "METHOD"; the longest matching key applies.
type RateLimiter struct {
	rules   map[string]RateLimitConfig
	buckets sync.Map // ip + " " + rule key -> *bucket
	exclude []string
	now     func() time.Time
	lastGC  time.Time
	gcMu    sync.Mutex
}

// NewRateLimiter creates a limiter for rules. Requests under any of the
// exclude prefixes are never limited.
func NewRateLimiter(rules map[string]RateLimitConfig, excludePrefixes ...string) *RateLimiter {
	return &RateLimiter{
		rules:   rules,
		exclude: excludePrefixes,
		now:     time.Now,
	}
}

// rule returns the longest key matching r.
func (rl *RateLimiter) rule(r *http.Request) (string, RateLimitConfig, bool) {
	var (
		best    string
		bestCfg RateLimitConfig
		found   bool
	)
	for key, cfg := range rl.rules {
		method, prefix, _ := strings.Cut(key, " ")
		if method != r.Method || !strings.HasPrefix(r.URL.Path, prefix) {
			continue
		}
		if !found || len(key) > len(best) {
			best, bestCfg, found = key, cfg, true
		}
	}
	return best, bestCfg, found && bestCfg.MaxRequests > 0 && bestCfg.Window > 0
}

func (rl *RateLimiter) allow(ip, key string, cfg RateLimitConfig) bool {
	now := rl.now()
	rl.gc(now)

	val, _ := rl.buckets.LoadOrStore(ip+" "+key, &bucket{resetAt: now.Add(cfg.Window)})
	b := val.(*bucket)
	b.mu.Lock()
	defer b.mu.Unlock()
	if now.After(b.resetAt) {
		b.count = 0
		b.resetAt = now.Add(cfg.Window)
	}
	b.count++
	return b.count <= cfg.MaxRequests
}

// gc drops expired buckets at most once a minute.
func (rl *RateLimiter) gc(now time.Time) {
	rl.gcMu.Lock()
	if now.Sub(rl.lastGC) < time.Minute {
		rl.gcMu.Unlock()
		return
	}
	rl.lastGC = now
	rl.gcMu.Unlock()

	rl.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		expired := now.After(b.resetAt)
		b.mu.Unlock()
		if expired {
			rl.buckets.Delete(key)
		}
		return true
	})
}

// Middleware answers 429 with a JSON error once a client exceeds its rule.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range rl.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}
		key, cfg, ok := rl.rule(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		ip := ExtractIP(r)
		if rl.allow(ip, key, cfg) {
			next.ServeHTTP(w, r)
			return
		}

		GetLogger(r.Context()).Warn("ratelimit: request blocked", "ip", ip, "rule", key)
		w.Header().Set("Retry-After", strconv.Itoa(max(1, int(cfg.Window.Seconds()))))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
	})
}

// ExtractIP returns the client IP from X-Forwarded-For or RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
