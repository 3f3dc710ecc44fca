package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(failures, successes int) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: failures,
		SuccessThreshold: successes,
		Timeout:          time.Minute,
		Now:              clock.Now,
	})
	return cb, clock
}

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig()

	if cfg.FailureThreshold != 5 {
		t.Errorf("FailureThreshold = %d, want 5", cfg.FailureThreshold)
	}
	if cfg.SuccessThreshold != 2 {
		t.Errorf("SuccessThreshold = %d, want 2", cfg.SuccessThreshold)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, 1)

	cb.RecordFailure(errors.New("e1"))
	cb.RecordFailure(errors.New("e2"))
	cb.RecordSuccess()
	cb.RecordFailure(errors.New("e3"))

	if cb.State() != CircuitClosed {
		t.Errorf("State() = %v, want %v", cb.State(), CircuitClosed)
	}
}

func TestCircuitBreaker_OpenHalfOpenClose(t *testing.T) {
	cb, clock := newTestBreaker(2, 2)

	cb.RecordFailure(errors.New("e1"))
	cb.RecordFailure(errors.New("e2"))
	if cb.State() != CircuitOpen {
		t.Fatalf("State() = %v, want %v", cb.State(), CircuitOpen)
	}
	if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Allow() error = %v, want ErrCircuitOpen", err)
	}

	clock.Advance(time.Minute)
	if err := cb.Allow(); err != nil {
		t.Fatalf("Allow() after timeout error = %v", err)
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("State() = %v, want %v", cb.State(), CircuitHalfOpen)
	}

	cb.RecordSuccess()
	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Errorf("State() = %v, want %v", cb.State(), CircuitClosed)
	}
}

func TestCircuitBreaker_ReopenFromHalfOpen(t *testing.T) {
	cb, clock := newTestBreaker(1, 2)

	cb.RecordFailure(errors.New("e1"))
	clock.Advance(2 * time.Minute)
	_ = cb.Allow()

	cb.RecordFailure(errors.New("probe failed"))
	if cb.State() != CircuitOpen {
		t.Errorf("State() = %v, want %v", cb.State(), CircuitOpen)
	}
	if cb.LastError() == nil || cb.LastError().Error() != "probe failed" {
		t.Errorf("LastError() = %v, want probe failed", cb.LastError())
	}
}

func TestCircuitState_String(t *testing.T) {
	testCases := []struct {
		state CircuitState
		want  string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(99), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.want, func(t *testing.T) {
			if got := tc.state.String(); got != tc.want {
				t.Errorf("String() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var changes []CircuitState
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
		OnStateChange: func(from, to CircuitState) {
			changes = append(changes, to)
		},
	})

	cb.RecordFailure(errors.New("boom"))
	if len(changes) != 1 || changes[0] != CircuitOpen {
		t.Fatalf("changes = %v, want [open]", changes)
	}
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_ = cb.Allow()
		}()
		go func() {
			defer wg.Done()
			cb.RecordSuccess()
		}()
		go func() {
			defer wg.Done()
			cb.RecordFailure(errors.New("test"))
		}()
	}

	wg.Wait()
}

func TestBreakerTransport_FailsFastWithoutRetry(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cb, _ := newTestBreaker(2, 1)
	client := &http.Client{Transport: &BreakerTransport{Breaker: cb}}

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("request %d error = %v", i, err)
		}
		resp.Body.Close()
	}
	if hits != 2 {
		t.Fatalf("hits = %d, want 2 (no retries)", hits)
	}

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	if _, err := client.Do(req); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("error = %v, want ErrCircuitOpen", err)
	}
	if hits != 2 {
		t.Fatalf("hits = %d, open circuit must not reach the server", hits)
	}
}

func TestBreakerTransport_ClientErrorsCountAsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cb, _ := newTestBreaker(1, 1)
	client := &http.Client{Transport: &BreakerTransport{Breaker: cb}}

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()
	if cb.State() != CircuitClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}

func TestHTTPError_Error(t *testing.T) {
	err := &HTTPError{StatusCode: http.StatusBadGateway}
	if got := err.Error(); got != "upstream status 502: Bad Gateway" {
		t.Errorf("Error() = %q", got)
	}
}
