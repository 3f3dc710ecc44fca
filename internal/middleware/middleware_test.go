package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dancelink/platform/internal/logging"
	"github.com/dancelink/platform/internal/metrics"
)

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantOrigin string
		wantStatus int
	}{
		{"allow all echoes origin", []string{"*"}, "https://app.dancelink.io", "GET", "https://app.dancelink.io", http.StatusOK},
		{"allow all without origin", []string{"*"}, "", "GET", "*", http.StatusOK},
		{"exact match", []string{"https://app.dancelink.io"}, "https://app.dancelink.io", "GET", "https://app.dancelink.io", http.StatusOK},
		{"subdomain suffix", []string{".dancelink.io"}, "https://staging.dancelink.io", "GET", "https://staging.dancelink.io", http.StatusOK},
		{"bare suffix is not a wildcard", []string{"dancelink.io"}, "https://evildancelink.io", "GET", "", http.StatusOK},
		{"preflight", []string{"*"}, "https://x.io", http.MethodOptions, "https://x.io", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewCORSMiddleware(tt.allowed).Handler(okHandler())
			req := httptest.NewRequest(tt.method, "/events", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, logging.NewDiscard("test"))
	handler := rl.Handler(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/events", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests && !strings.Contains(rec.Body.String(), "RATE_LIMIT_EXCEEDED") {
			t.Errorf("body = %s, want rate limit error code", rec.Body.String())
		}
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v, want [200 200 429]", codes)
	}

	// another client keeps its own bucket
	req := httptest.NewRequest("GET", "/events", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("second client status = %d, want 200", rec.Code)
	}
}

func TestRateLimiter_KeysOnUser(t *testing.T) {
	rl := NewRateLimiter(1, 1, logging.NewDiscard("test"))
	handler := rl.Handler(okHandler())

	for i, remote := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		req := httptest.NewRequest("GET", "/events", nil)
		req.RemoteAddr = remote
		req = req.WithContext(logging.WithUserID(req.Context(), "user-1"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		want := http.StatusOK
		if i == 1 {
			want = http.StatusTooManyRequests
		}
		if rec.Code != want {
			t.Fatalf("request %d status = %d, want %d", i, rec.Code, want)
		}
	}
}

func TestTracingMiddleware(t *testing.T) {
	tm := NewTracingMiddleware(logging.NewDiscard("test"))

	var seen string
	handler := tm.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.GetTraceID(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest("GET", "/events", nil)
	req.Header.Set("X-Trace-ID", "given-trace")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "given-trace" || rec.Header().Get("X-Trace-ID") != "given-trace" {
		t.Fatalf("trace = %q, header = %q", seen, rec.Header().Get("X-Trace-ID"))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/events", nil))
	if rec.Header().Get("X-Trace-ID") == "" {
		t.Fatal("expected generated trace id")
	}

	req = httptest.NewRequest("GET", "/events", nil)
	req.Header.Set("X-Request-Id", "edge-123")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Trace-ID"); got != "edge-123" {
		t.Fatalf("trace from X-Request-Id = %q, want edge-123", got)
	}

	req = httptest.NewRequest("GET", "/events", nil)
	req.Header.Set("X-Trace-ID", "bad id\r\ninjected")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Trace-ID"); got == "" || strings.Contains(got, "injected") {
		t.Fatalf("unsafe trace id echoed: %q", got)
	}
}

func TestMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	m := metrics.New()
	router := mux.NewRouter()
	router.Use(MetricsMiddleware("dancelink", m))
	router.HandleFunc("/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("DELETE", "/events/e-42", nil))

	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `path="/events/{id}"`) {
		t.Fatalf("route template label missing:\n%s", rec.Body.String())
	}
	if n, err := testutil.GatherAndCount(m.Registry(), "dancelink_http_requests_total"); err != nil || n != 1 {
		t.Fatalf("series = %d, err = %v", n, err)
	}
}
