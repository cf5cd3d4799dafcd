package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareCountsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/sessions/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(RequestCounter.WithLabelValues("GET", "/sessions/:id", "204"))
	for i := 0; i < 2; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))
	}
	after := testutil.ToFloat64(RequestCounter.WithLabelValues("GET", "/sessions/:id", "204"))

	if after-before != 2 {
		t.Fatalf("expected 2 requests counted under the route template, got %v", after-before)
	}
}

func TestHandlerExposesLifecycleCounters(t *testing.T) {
	Init()
	Init()
	SessionsStarted.Inc()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "exam_sessions_started_total") {
		t.Fatal("expected exam_sessions_started_total in exposition")
	}
}
