package middleware

import (
	"net/http"
	"time"

	"github.com/dancelink/platform/internal/logging"
)

const (
	traceHeader   = "X-Trace-ID"
	requestHeader = "X-Request-Id"
	maxTraceLen   = 64
)

// quietPaths are probed constantly and are not logged.
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// TracingMiddleware tags each request with a trace id and logs it when done.
type TracingMiddleware struct {
	logger *logging.Logger
}

func NewTracingMiddleware(logger *logging.Logger) *TracingMiddleware {
	return &TracingMiddleware{logger: logger}
}

func (m *TracingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := inboundTraceID(r)
		ctx := logging.WithTraceID(r.Context(), traceID)
		w.Header().Set(traceHeader, traceID)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r.WithContext(ctx))

		if !quietPaths[r.URL.Path] {
			m.logger.LogRequest(ctx, r.Method, r.URL.Path, rw.statusCode, time.Since(start))
		}
	})
}

// inboundTraceID reuses a caller supplied id (ours, or the one the Supabase
// edge sets) when it is short and header safe.
func inboundTraceID(r *http.Request) string {
	for _, h := range []string{traceHeader, requestHeader} {
		if id := r.Header.Get(h); validTraceID(id) {
			return id
		}
	}
	return logging.NewTraceID()
}

func validTraceID(id string) bool {
	if id == "" || len(id) > maxTraceLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}
