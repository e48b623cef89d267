package httputil

import "context"

// requestIDContextKey is the context key used to propagate the request ID
// from the middleware into handlers and log lines.
type requestIDContextKey struct{}

// ContextWithRequestID returns a new context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// RequestIDFromContext retrieves the request ID injected by the middleware.
// Returns ("", false) when none was injected.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDContextKey{}).(string)
	return v, ok && v != ""
}
