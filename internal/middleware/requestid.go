package middleware

import (
	"context"
	"net/http"

	"github.com/segmentio/ksuid"
)

type contextKey string

const requestIDKey contextKey = "request-id"

// RequestIDHeader is the header the ID is echoed on, and accepted from
// when an upstream proxy already assigned one.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns every request a unique ID, made available via
// GetRequestID and echoed in the response headers.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = ksuid.New().String()
		}

		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request's ID, or "-" outside the middleware.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return "-"
}
