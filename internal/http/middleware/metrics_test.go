package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_LabelsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/groups/:id", func(c *gin.Context) { c.String(http.StatusOK, "group") })
	r.POST("/friends/remove", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	type key struct{ method, route, status string }
	hits := []struct {
		method, url string
		want        key
	}{
		{http.MethodGet, "/groups/g1", key{"GET", "/groups/:id", "200"}},
		{http.MethodGet, "/groups/g2", key{"GET", "/groups/:id", "200"}},
		{http.MethodPost, "/friends/remove", key{"POST", "/friends/remove", "204"}},
		{http.MethodGet, "/wp-login.php", key{"GET", unmatchedPath, "404"}},
	}
	before := map[key]float64{}
	for _, h := range hits {
		before[h.want] = testutil.ToFloat64(httpReqs.WithLabelValues(h.want.method, h.want.route, h.want.status))
	}
	for _, h := range hits {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(h.method, h.url, nil))
	}

	want := map[key]float64{}
	for _, h := range hits {
		want[h.want]++
	}
	for k, n := range want {
		if got := testutil.ToFloat64(httpReqs.WithLabelValues(k.method, k.route, k.status)); got != before[k]+n {
			t.Fatalf("requests%v = %v; want %v", k, got, before[k]+n)
		}
	}
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Fatalf("inflight = %v; want 0", got)
	}
}

func TestMetrics_Names(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(httpReqs, authFailures, rateLimited, idemReplays)
	httpReqs.WithLabelValues("GET", "/health", "200")
	authFailures.WithLabelValues("missing")
	rateLimited.WithLabelValues("write")
	idemReplays.WithLabelValues("groups.create")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if !strings.HasPrefix(mf.GetName(), "billsplit_http_") {
			t.Fatalf("unexpected metric name %q", mf.GetName())
		}
	}
	if len(mfs) != 4 {
		t.Fatalf("expected 4 families, got %d", len(mfs))
	}
}
