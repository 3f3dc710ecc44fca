package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordHTTPRequest(t *testing.T) {
	m := New()
	m.RecordHTTPRequest("dancelink", "get", "/events", "200", 15*time.Millisecond)
	m.RecordHTTPRequest("dancelink", "GET", "/events", "200", 5*time.Millisecond)

	got := testutil.ToFloat64(m.httpRequests.WithLabelValues("dancelink", "GET", "/events", "200"))
	if got != 2 {
		t.Fatalf("requests_total = %v, want 2", got)
	}
}

func TestDomainCounters(t *testing.T) {
	m := New()
	m.RecordApplication("created")
	m.RecordApplication("duplicate")
	m.RecordStatusChange("approved")
	m.RecordMessageSent()
	m.RecordUpload("video", false)
	m.RecordNotification("rejected", true)
	m.RecordRoleLookup(true)
	m.RecordJobRun("", true)

	if got := testutil.ToFloat64(m.applications.WithLabelValues("duplicate")); got != 1 {
		t.Errorf("duplicate submissions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.uploads.WithLabelValues("video", "error")); got != 1 {
		t.Errorf("failed video uploads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.jobRuns.WithLabelValues("unknown", "true")); got != 1 {
		t.Errorf("job runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.messagesSent); got != 1 {
		t.Errorf("messages sent = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordStatusChange("approved")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "dancelink_applications_status_changes_total") {
		t.Fatal("status change counter missing from exposition")
	}
}
