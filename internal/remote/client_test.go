package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tbourn/go-billsplit/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL+"/api/v1/", opts...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func writeEnvelope(w http.ResponseWriter, status int, success bool, data any, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	env := map[string]any{"success": success}
	if data != nil {
		env["data"] = data
	}
	if msg != "" {
		env["message"] = msg
	}
	_ = json.NewEncoder(w).Encode(env)
}

func TestNewClient_RejectsRelativeURL(t *testing.T) {
	for _, u := range []string{"", "localhost:8080", "/api/v1"} {
		if _, err := NewClient(u); err == nil {
			t.Fatalf("expected error for %q", u)
		}
	}
}

func TestFriendDetails_SendsBearerAndBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/friends/details" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		var body domain.FriendDetailsRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Emails) != 2 || body.Emails[0] != "a@x.com" {
			t.Errorf("unexpected body: %+v", body)
		}
		writeEnvelope(w, 200, true, []domain.FavoriteContact{{MailID: "a@x.com", Name: "Ann"}}, "")
	})

	got, err := c.FriendDetails(context.Background(), "tok", []string{"a@x.com", "b@y.com"})
	if err != nil {
		t.Fatalf("FriendDetails: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Ann" {
		t.Fatalf("unexpected contacts: %+v", got)
	}
}

func TestRejection_IgnoresStatusCode(t *testing.T) {
	// success:false on a 200 is still a rejection
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 200, false, nil, "not a friend")
	})
	err := c.RemoveFriend(context.Background(), "tok", "z@x.com")
	var rej *RejectionError
	if !errors.As(err, &rej) || rej.Message != "not a friend" {
		t.Fatalf("expected RejectionError, got %v", err)
	}
	if errors.Is(err, ErrTransport) {
		t.Fatalf("rejection must not be a transport error")
	}
}

func TestSuccessEnvelope_OnErrorStatus_IsSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusInternalServerError, true, nil, "")
	})
	if err := c.AddFriend(context.Background(), "tok", "a@x.com"); err != nil {
		t.Fatalf("status codes must be ignored, got %v", err)
	}
}

func TestTransportErrors(t *testing.T) {
	t.Run("undecodable body", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "<html>gateway</html>")
		})
		if _, err := c.Groups(context.Background(), "tok"); !errors.Is(err, ErrTransport) {
			t.Fatalf("expected ErrTransport, got %v", err)
		}
	})
	t.Run("bad data shape", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, 200, true, map[string]string{"not": "a list"}, "")
		})
		if _, err := c.Search(context.Background(), "tok", "jo"); !errors.Is(err, ErrTransport) {
			t.Fatalf("expected ErrTransport, got %v", err)
		}
	})
	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		c, _ := NewClient(url)
		if _, err := c.Me(context.Background(), "tok"); !errors.Is(err, ErrTransport) {
			t.Fatalf("expected ErrTransport, got %v", err)
		}
	})
	t.Run("timeout", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
			writeEnvelope(w, 200, true, nil, "")
		}, WithTimeout(20*time.Millisecond))
		if _, err := c.Me(context.Background(), "tok"); !errors.Is(err, ErrTransport) {
			t.Fatalf("expected ErrTransport, got %v", err)
		}
	})
}

func TestGroups_RawItemsAndEmptyData(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			writeEnvelope(w, 200, true, []map[string]any{{"id": "g1", "name": "Trip"}, {"id": "g2"}}, "")
			return
		}
		writeEnvelope(w, 200, true, nil, "")
	})
	got, err := c.Groups(context.Background(), "tok")
	if err != nil || len(got) != 2 || !strings.Contains(string(got[0]), `"g1"`) {
		t.Fatalf("Groups: %v %s", err, got)
	}
	got, err = c.Groups(context.Background(), "tok")
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("missing data should give empty list, got %#v %v", got, err)
	}
}

func TestSearch_EncodesQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "jo doe&x" {
			t.Errorf("q = %q", got)
		}
		writeEnvelope(w, 200, true, []domain.FavoriteContact{}, "")
	})
	if _, err := c.Search(context.Background(), "tok", "jo doe&x"); err != nil {
		t.Fatalf("Search: %v", err)
	}
}

func TestCreateGroup_SendsIdempotencyKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Idempotency-Key"); got != "k-123" {
			t.Errorf("Idempotency-Key = %q", got)
		}
		var req domain.CreateGroupRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Name != "Trip" || req.Expense == nil || !req.Expense.Amount.Equal(decimal.RequireFromString("12.30")) {
			t.Errorf("unexpected body: %+v", req)
		}
		writeEnvelope(w, 201, true, map[string]any{"id": "g9", "name": req.Name}, "")
	})
	raw, err := c.CreateGroup(context.Background(), "tok", domain.CreateGroupRequest{
		Name:    "Trip",
		Members: []string{"a@x.com"},
		Expense: &domain.ExpenseInput{PaidBy: "a@x.com", Amount: decimal.RequireFromString("12.30")},
	}, " k-123 ")
	if err != nil || !strings.Contains(string(raw), `"g9"`) {
		t.Fatalf("CreateGroup: %s %v", raw, err)
	}
}

func TestWriteCalls_WaitOnLimiter(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeEnvelope(w, 200, true, nil, "")
	}, WithRateLimit(1, 1))

	ctx := context.Background()
	if err := c.AddFriend(ctx, "tok", "a@x.com"); err != nil {
		t.Fatalf("first add: %v", err)
	}
	// The bucket is empty; a short deadline cannot be met.
	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := c.AddFriend(short, "tok", "b@x.com"); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected limiter wait to fail, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("second call must not reach the server, hits=%d", hits.Load())
	}
	// Reads are not paced.
	if _, err := c.Me(ctx, "tok"); err != nil {
		t.Fatalf("Me: %v", err)
	}
}

func TestWithRateLimit_ZeroDisables(t *testing.T) {
	c, err := NewClient("http://localhost", WithRateLimit(0, 3))
	if err != nil || c.Limiter != nil {
		t.Fatalf("expected no limiter, got %v %v", c.Limiter, err)
	}
}
