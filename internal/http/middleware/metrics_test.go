package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountersInflightAndUnmatched(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/sessions/:id", func(c *gin.Context) {
		c.String(http.StatusOK, "hello")
	})
	r.DELETE("/sessions/:id", func(c *gin.Context) {
		c.Status(http.StatusNoContent) // size -1, skipped in size histogram
	})

	baseOK := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/sessions/:id", "200"))
	baseDel := testutil.ToFloat64(httpReqs.WithLabelValues("DELETE", "/sessions/:id", "204"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404"))

	for _, tc := range []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/sessions/a", http.StatusOK},
		{http.MethodGet, "/sessions/b", http.StatusOK},
		{http.MethodDelete, "/sessions/a", http.StatusNoContent},
		{http.MethodGet, "/does-not-exist", http.StatusNotFound},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != tc.status {
			t.Fatalf("%s %s -> %d", tc.method, tc.path, w.Code)
		}
	}

	// Concrete ids collapse onto the route pattern.
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/sessions/:id", "200")); got != baseOK+2 {
		t.Fatalf("GET /sessions/:id 200 = %v; want %v", got, baseOK+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("DELETE", "/sessions/:id", "204")); got != baseDel+1 {
		t.Fatalf("DELETE /sessions/:id 204 = %v; want %v", got, baseDel+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404")); got != base404+1 {
		t.Fatalf("unmatched 404 = %v; want %v", got, base404+1)
	}
	if inFlight := testutil.ToFloat64(httpInflight); inFlight != 0 {
		t.Fatalf("httpInflight = %v; want 0", inFlight)
	}
}

func TestMetrics_EventStreamsUseStreamGauge(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var during, inflightDuring float64
	r := gin.New()
	r.Use(Metrics())
	r.GET("/stream", func(c *gin.Context) {
		during = testutil.ToFloat64(httpStreams)
		inflightDuring = testutil.ToFloat64(httpInflight)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.Header.Set("Accept", "text/event-stream")
	if !IsEventStream(req) {
		t.Fatalf("expected request to be recognised as an event stream")
	}
	r.ServeHTTP(httptest.NewRecorder(), req)

	if during != 1 || inflightDuring != 0 {
		t.Fatalf("during stream: streams=%v inflight=%v; want 1 and 0", during, inflightDuring)
	}
	if after := testutil.ToFloat64(httpStreams); after != 0 {
		t.Fatalf("httpStreams after = %v; want 0", after)
	}
}
