// Package kit carries request-scoped values and the transport-agnostic
// Endpoint shape shared by the HTTP and MCP surfaces of ezpage.
//
// The active page and editing session travel in the context (or as an
// explicit *editor.Session) rather than through package-level state.
package kit

import "context"

type contextKey string

const (
	PageIDKey     contextKey = "kit_page_id"
	SessionIDKey  contextKey = "kit_session_id"
	TransportKey  contextKey = "kit_transport" // "http", "mcp"
	TraceIDKey    contextKey = "kit_trace_id"
	RemoteAddrKey contextKey = "kit_remote_addr"
)

func WithPageID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, PageIDKey, id)
}
func GetPageID(ctx context.Context) string {
	v, _ := ctx.Value(PageIDKey).(string)
	return v
}

func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}
func GetSessionID(ctx context.Context) string {
	v, _ := ctx.Value(SessionIDKey).(string)
	return v
}

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "http"
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, RemoteAddrKey, addr)
}
func GetRemoteAddr(ctx context.Context) string {
	v, _ := ctx.Value(RemoteAddrKey).(string)
	return v
}

// LogAttrs returns the request-scoped values present in ctx as slog
// key/value pairs, suitable for logger.With(kit.LogAttrs(ctx)...).
func LogAttrs(ctx context.Context) []any {
	var attrs []any
	if v := GetPageID(ctx); v != "" {
		attrs = append(attrs, "page_id", v)
	}
	if v := GetSessionID(ctx); v != "" {
		attrs = append(attrs, "session_id", v)
	}
	if v := GetTraceID(ctx); v != "" {
		attrs = append(attrs, "trace_id", v)
	}
	if v := GetRemoteAddr(ctx); v != "" {
		attrs = append(attrs, "remote_addr", v)
	}
	return attrs
}
