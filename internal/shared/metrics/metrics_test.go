package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(jobsCompleted.WithLabelValues("local"))
	IncJobCompleted("local")
	if got := testutil.ToFloat64(jobsCompleted.WithLabelValues("local")); got != before+1 {
		t.Fatalf("expected %v, got %v", before+1, got)
	}
}

func TestHandlerRendersGatewayMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	IncJobSubmitted("cloud_fast")
	IncJobFailed("cloud_fast", "inference")
	ObserveJobDuration("cloud_fast", "failed", 1500*time.Millisecond)
	SetQueueDepth(3)

	r := gin.New()
	r.GET("/metrics", Handler())
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	body := resp.Body.String()
	for _, want := range []string{
		`gocr_jobs_submitted_total{model="cloud_fast"}`,
		`gocr_jobs_failed_total{model="cloud_fast",reason="inference"}`,
		`gocr_job_duration_seconds_bucket{model="cloud_fast",status="failed",le="2"}`,
		"gocr_queue_depth 3",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, body)
		}
	}
}
