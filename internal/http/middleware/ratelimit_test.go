package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/time/rate"
)

func TestCallerOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")

	if got := CallerOrIP(c); got != "ip:203.0.113.9" {
		t.Fatalf("expected ip key, got %q", got)
	}
	c.Set(ctxKeyUserID, "ann@example.com")
	if got := CallerOrIP(c); got != "user:ann@example.com" {
		t.Fatalf("expected caller key, got %q", got)
	}
}

func TestNewRateLimiter_Normalizes(t *testing.T) {
	rl := NewRateLimiter(RateLimitOptions{RPS: 1, Burst: 0, WriteCost: 5})
	if rl.opts.Burst != 1 || rl.opts.WriteCost != 1 {
		t.Fatalf("expected burst=1 cost=1, got %+v", rl.opts)
	}
	if rl.opts.Key == nil || rl.opts.IdleTTL != 10*time.Minute {
		t.Fatalf("expected default key and ttl, got %+v", rl.opts)
	}

	rl = NewRateLimiter(RateLimitOptions{RPS: 1, Burst: 4, WriteCost: 0})
	if rl.opts.WriteCost != 1 {
		t.Fatalf("expected write cost 1, got %d", rl.opts.WriteCost)
	}
}

func TestRateLimiter_BucketReuseAndSweep(t *testing.T) {
	rl := NewRateLimiter(RateLimitOptions{RPS: 1, Burst: 1, IdleTTL: time.Minute})
	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.lastSweep = now

	a := rl.limiter("a")
	if rl.limiter("a") != a {
		t.Fatalf("expected the same bucket for the same key")
	}

	now = now.Add(30 * time.Second)
	_ = rl.limiter("b")
	if rl.size() != 2 {
		t.Fatalf("expected 2 buckets before the sweep, got %d", rl.size())
	}

	// a idle for 90s, b for 60s: both are swept, then c is created.
	now = now.Add(time.Minute)
	_ = rl.limiter("c")
	if rl.size() != 1 {
		t.Fatalf("expected only the new bucket after the sweep, got %d", rl.size())
	}
	if rl.limiter("a") == a {
		t.Fatalf("expected a fresh bucket for a swept key")
	}
}

func TestIsRateBypass(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if IsRateBypass(c) {
		t.Fatalf("expected no bypass by default")
	}
	c.Set(ctxKeyRateBypass, true)
	if !IsRateBypass(c) {
		t.Fatalf("expected bypass when set")
	}
	c.Set(ctxKeyRateBypass, "yes")
	if IsRateBypass(c) {
		t.Fatalf("non-bool values must read as false")
	}
}

func limitedRouter(rl *RateLimiter, pre ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Header(requestIDHeader, "rid-1"); c.Next() })
	r.Use(pre...)
	r.Use(rl.Handler())
	r.GET("/groups", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.POST("/groups", func(c *gin.Context) { c.String(http.StatusCreated, "ok") })
	return r
}

func TestRateLimiter_Handler_Refuses(t *testing.T) {
	rl := NewRateLimiter(RateLimitOptions{RPS: 1, Burst: 1})
	r := limitedRouter(rl)
	before := testutil.ToFloat64(rateLimited.WithLabelValues("read"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/groups", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/groups", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be refused, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After=1, got %q", got)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body["success"] != false || body["code"] != "rate_limited" || body["request_id"] != "rid-1" {
		t.Fatalf("unexpected body %v", body)
	}
	if got := testutil.ToFloat64(rateLimited.WithLabelValues("read")); got != before+1 {
		t.Fatalf("read refusals = %v; want %v", got, before+1)
	}
}

func TestRateLimiter_WritesCostMore(t *testing.T) {
	rl := NewRateLimiter(RateLimitOptions{RPS: 1, Burst: 3, WriteCost: 2})
	now := time.Now()
	rl.now = func() time.Time { return now }
	r := limitedRouter(rl)
	before := testutil.ToFloat64(rateLimited.WithLabelValues("write"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/groups", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("first write should pass, got %d", w.Code)
	}

	// One token left: a write is refused, a read still passes.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/groups", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second write should be refused, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After=1 for one missing token, got %q", got)
	}
	if got := testutil.ToFloat64(rateLimited.WithLabelValues("write")); got != before+1 {
		t.Fatalf("write refusals = %v; want %v", got, before+1)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/groups", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("read should use the last token, got %d", w.Code)
	}
}

func TestRateLimiter_ReplayBypass(t *testing.T) {
	rl := NewRateLimiter(RateLimitOptions{RPS: 1, Burst: 1})
	r := limitedRouter(rl, func(c *gin.Context) { c.Set(ctxKeyRateBypass, true); c.Next() })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/groups", nil))
		if w.Code != http.StatusCreated {
			t.Fatalf("replay %d should bypass the limiter, got %d", i, w.Code)
		}
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Now()
	lim := rate.NewLimiter(0.5, 4)
	lim.AllowN(now, 4)
	if got := retryAfter(lim, now, 3); got != 6 {
		t.Fatalf("expected 6s for 3 tokens at 0.5/s, got %d", got)
	}
	if got := retryAfter(rate.NewLimiter(0, 1), now, 1); got != 1 {
		t.Fatalf("expected 1s without refill, got %d", got)
	}
}
