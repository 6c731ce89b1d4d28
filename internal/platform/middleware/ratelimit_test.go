package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rcfe/casesync/internal/platform/auth"
)

func TestTokenBucket(t *testing.T) {
	b := newTokenBucket(1, 2)
	now := b.lastRefill

	if ok, _ := b.take(now); !ok {
		t.Fatal("first token should be available")
	}
	if ok, _ := b.take(now); !ok {
		t.Fatal("second token should be available")
	}
	ok, retry := b.take(now)
	if ok {
		t.Fatal("bucket should be empty")
	}
	if retry != 1 {
		t.Errorf("expected retry after 1s, got %d", retry)
	}
	if ok, _ := b.take(now.Add(1100 * time.Millisecond)); !ok {
		t.Error("bucket should refill")
	}
}

func TestRateLimit_PerSubject(t *testing.T) {
	e := echo.New()
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1})
	h := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	call := func(subject string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/claims", nil)
		req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{Subject: subject}))
		rec := httptest.NewRecorder()
		if err := h(e.NewContext(req, rec)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return rec.Code
	}

	if code := call("alice"); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := call("alice"); code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", code)
	}
	if code := call("bob"); code != http.StatusOK {
		t.Errorf("other subjects have their own bucket, got %d", code)
	}
}
