package shield

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/ezpage/kit"
)

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func chain(h http.Handler, mws []func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(DefaultHeaders())(http.HandlerFunc(ok))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/pages/home/preview", nil))

	if got := rec.Header().Get("Content-Security-Policy"); !strings.Contains(got, "default-src 'none'") {
		t.Errorf("CSP = %q", got)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}

func TestHeadToGet(t *testing.T) {
	var method string
	h := HeadToGet(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { method = r.Method }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("HEAD", "/", nil))
	if method != "GET" {
		t.Errorf("method = %q, want GET", method)
	}
}

func TestMaxBody(t *testing.T) {
	var readErr error
	h := MaxBody(10)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("x", 20))))

	var mbe *http.MaxBytesError
	if !errors.As(readErr, &mbe) {
		t.Errorf("err = %v, want MaxBytesError", readErr)
	}
}

func TestTraceID(t *testing.T) {
	var traceID, transport string
	var logger *slog.Logger
	h := TraceID(slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = kit.GetTraceID(r.Context())
		transport = kit.GetTransport(r.Context())
		logger = GetLogger(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if traceID == "" || rec.Header().Get("X-Trace-ID") != traceID {
		t.Errorf("trace id = %q, header = %q", traceID, rec.Header().Get("X-Trace-ID"))
	}
	if transport != "http" {
		t.Errorf("transport = %q", transport)
	}
	if logger == slog.Default() {
		t.Error("want a per-request logger")
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Trace-ID", "upstream-1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if traceID != "upstream-1" {
		t.Errorf("incoming trace id not kept: %q", traceID)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(map[string]RateLimitConfig{
		"POST":        {MaxRequests: 100, Window: time.Minute},
		"POST /pages": {MaxRequests: 2, Window: time.Minute},
	}, "/healthz")
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	h := rl.Middleware(http.HandlerFunc(ok))

	do := func(method, path, ip string) int {
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i, want := range []int{200, 200, 429} {
		if got := do("POST", "/pages/home/actions", "10.0.0.1"); got != want {
			t.Errorf("request %d: status %d, want %d", i, got, want)
		}
	}
	if got := do("POST", "/pages/home/actions", "10.0.0.2"); got != 200 {
		t.Errorf("other client limited: %d", got)
	}
	if got := do("GET", "/pages/home", "10.0.0.1"); got != 200 {
		t.Errorf("unlimited method limited: %d", got)
	}
	if got := do("POST", "/healthz", "10.0.0.1"); got != 200 {
		t.Errorf("excluded path limited: %d", got)
	}

	now = now.Add(2 * time.Minute)
	if got := do("POST", "/pages/home/actions", "10.0.0.1"); got != 200 {
		t.Errorf("after window: %d", got)
	}
}

func TestStack(t *testing.T) {
	stack := Stack(slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		RateLimits: map[string]RateLimitConfig{"POST": {MaxRequests: 1, Window: time.Minute}},
	})
	h := chain(http.HandlerFunc(ok), stack)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("HEAD", "/", nil))
	if rec.Code != 200 || rec.Header().Get("X-Trace-ID") == "" {
		t.Errorf("status %d, trace %q", rec.Code, rec.Header().Get("X-Trace-ID"))
	}
	for i, want := range []int{200, 429} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("POST", "/x", strings.NewReader("{}")))
		if rec.Code != want {
			t.Errorf("post %d: status %d, want %d", i, rec.Code, want)
		}
	}
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if got := ExtractIP(req); got != "192.0.2.1" {
		t.Errorf("got %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ExtractIP(req); got != "203.0.113.7" {
		t.Errorf("got %q", got)
	}
}
