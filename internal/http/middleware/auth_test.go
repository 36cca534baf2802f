package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func tokenTable(tokens map[string]string) Authenticator {
	return func(_ context.Context, token string) (string, bool, error) {
		if token == "explode" {
			return "", false, errors.New("db down")
		}
		email, ok := tokens[token]
		return email, ok, nil
	}
}

func authRouter(skip func(*gin.Context) bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.Use(BearerAuth(tokenTable(map[string]string{"tok-ann": "ann@example.com"}), AuthOptions{Skip: skip}))
	r.GET("/me", func(c *gin.Context) { c.String(http.StatusOK, UserID(c)) })
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok:"+UserID(c)) })
	return r
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json %q: %v", w.Body.String(), err)
	}
	return body
}

func TestBearerAuth_Success(t *testing.T) {
	r := authRouter(nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "bearer  tok-ann ")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "ann@example.com" {
		t.Fatalf("expected 200 with caller, got %d %q", w.Code, w.Body.String())
	}
}

func TestBearerAuth_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		header string
		status int
		code   string
		reason string
	}{
		{"missing", "", http.StatusUnauthorized, "unauthorized", "missing"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "unauthorized", "missing"},
		{"empty token", "Bearer   ", http.StatusUnauthorized, "unauthorized", "missing"},
		{"unknown token", "Bearer nope", http.StatusUnauthorized, "unauthorized", "invalid"},
		{"lookup error", "Bearer explode", http.StatusServiceUnavailable, "auth_unavailable", "error"},
	}
	r := authRouter(nil)
	for _, tc := range cases {
		before := testutil.ToFloat64(authFailures.WithLabelValues(tc.reason))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		r.ServeHTTP(w, req)

		if w.Code != tc.status {
			t.Fatalf("%s: status = %d; want %d", tc.name, w.Code, tc.status)
		}
		body := decodeBody(t, w)
		if body["success"] != false || body["code"] != tc.code || body["data"] != nil {
			t.Fatalf("%s: unexpected body %v", tc.name, body)
		}
		if body["request_id"] == "" || body["request_id"] != w.Header().Get(requestIDHeader) {
			t.Fatalf("%s: expected request_id in body, got %v", tc.name, body["request_id"])
		}
		if tc.status == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
			t.Fatalf("%s: expected WWW-Authenticate challenge", tc.name)
		}
		if got := testutil.ToFloat64(authFailures.WithLabelValues(tc.reason)); got != before+1 {
			t.Fatalf("%s: auth failure counter = %v; want %v", tc.name, got, before+1)
		}
	}
}

func TestBearerAuth_Skip(t *testing.T) {
	r := authRouter(func(c *gin.Context) bool { return c.FullPath() == "/health" })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok:" {
		t.Fatalf("skipped route should pass unauthenticated, got %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("other routes still require auth, got %d", w.Code)
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		in   string
		tok  string
		want bool
	}{
		{"Bearer abc", "abc", true},
		{"BEARER abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Token abc", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		tok, ok := bearerToken(tc.in)
		if tok != tc.tok || ok != tc.want {
			t.Fatalf("bearerToken(%q) = %q,%v; want %q,%v", tc.in, tok, ok, tc.tok, tc.want)
		}
	}
}
