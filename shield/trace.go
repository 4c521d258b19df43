package shield

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/hazyhaar/ezpage/idgen"
	"github.com/hazyhaar/ezpage/kit"
)

var newTraceID = idgen.NanoID(8)

// TraceID tags each request with a trace ID carried in the context, the
// X-Trace-ID response header and a per-request logger derived from base.
// The request is logged once it completes, with status and duration.
func TraceID(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get("X-Trace-ID")
			if traceID == "" || len(traceID) > 64 {
				traceID = newTraceID()
			}
			ip := ExtractIP(r)

			ctx := kit.WithTraceID(r.Context(), traceID)
			ctx = kit.WithRemoteAddr(ctx, ip)
			ctx = kit.WithTransport(ctx, "http")
			w.Header().Set("X-Trace-ID", traceID)

			logger := base.With(
				"trace_id", traceID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", ip,
			)
			ctx = context.WithValue(ctx, LoggerKey, logger)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= 500 {
				level = slog.LevelError
			}
			logger.Log(ctx, level, "request",
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
