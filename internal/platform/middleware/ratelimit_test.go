package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/ehr/fhirsearch/internal/platform/fhir"
)

func newLimitedHandler(t *testing.T, cfg RateLimitConfig) echo.HandlerFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return RateLimit(ctx, cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
}

func hit(e *echo.Echo, h echo.HandlerFunc, remoteAddr string) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(http.MethodGet, "/fhir/Patient", nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	rec := httptest.NewRecorder()
	err := h(e.NewContext(req, rec))
	return rec, err
}

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	e := echo.New()
	handler := newLimitedHandler(t, RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})

	// Send 5 requests (within burst size), all should pass
	for i := 0; i < 5; i++ {
		rec, err := hit(e, handler, "")
		if err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit '10', got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	e := echo.New()
	handler := newLimitedHandler(t, RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})

	for i := 0; i < 2; i++ {
		if _, err := hit(e, handler, ""); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
	}

	rec, err := hit(e, handler, "")
	if err != nil {
		t.Fatalf("expected the throttle outcome to be written, got %v", err)
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	var oo fhir.OperationOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &oo); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if len(oo.Issue) == 0 || oo.Issue[0].Code != fhir.IssueTypeThrottled {
		t.Errorf("expected a throttled issue, got %+v", oo.Issue)
	}
}

func TestRateLimit_RetryAfterHeader(t *testing.T) {
	e := echo.New()
	handler := newLimitedHandler(t, RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})

	_, _ = hit(e, handler, "")
	rec, _ := hit(e, handler, "")

	retryAfter := rec.Header().Get("Retry-After")
	retryVal, err := strconv.Atoi(retryAfter)
	if err != nil {
		t.Fatalf("Retry-After header is not a valid integer: %q", retryAfter)
	}
	if retryVal < 1 {
		t.Errorf("expected Retry-After >= 1, got %d", retryVal)
	}
	if remaining := rec.Header().Get("X-RateLimit-Remaining"); remaining != "0" {
		t.Errorf("expected X-RateLimit-Remaining '0', got %q", remaining)
	}
}

func TestRateLimit_PerClientIsolation(t *testing.T) {
	e := echo.New()
	handler := newLimitedHandler(t, RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})

	if rec, _ := hit(e, handler, "10.0.0.1:5000"); rec.Code != http.StatusOK {
		t.Fatalf("client a first request: expected 200, got %d", rec.Code)
	}
	if rec, _ := hit(e, handler, "10.0.0.1:5001"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("client a second request: expected 429, got %d", rec.Code)
	}
	if rec, _ := hit(e, handler, "10.0.0.2:5000"); rec.Code != http.StatusOK {
		t.Fatalf("client b first request: expected 200, got %d", rec.Code)
	}
}

func TestRateLimit_DefaultConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 100 {
		t.Errorf("expected RequestsPerSecond 100, got %f", cfg.RequestsPerSecond)
	}
	if cfg.BurstSize != 200 {
		t.Errorf("expected BurstSize 200, got %d", cfg.BurstSize)
	}
	if cfg.StaleAfter <= 0 {
		t.Errorf("expected a positive StaleAfter, got %s", cfg.StaleAfter)
	}
}

func TestRetryAfter_ZeroRate(t *testing.T) {
	l := rate.NewLimiter(0, 1)
	l.Allow()
	if ra := retryAfter(l); ra != 1 {
		t.Errorf("expected retryAfter 1 for zero rate, got %d", ra)
	}
}

func TestLimiterStore(t *testing.T) {
	store := newLimiterStore(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})

	l1 := store.get("key1")
	if l1 == nil {
		t.Fatal("expected non-nil limiter")
	}
	if l2 := store.get("key1"); l1 != l2 {
		t.Error("expected same limiter instance for same key")
	}
	if l3 := store.get("key2"); l1 == l3 {
		t.Error("expected different limiter for different key")
	}
	if n := store.len(); n != 2 {
		t.Fatalf("expected 2 limiters, got %d", n)
	}

	store.mu.Lock()
	store.limiters["key1"].lastSeen = time.Now().Add(-time.Hour)
	store.mu.Unlock()

	store.cleanup(time.Minute)
	if n := store.len(); n != 1 {
		t.Errorf("expected stale limiter to be evicted, %d left", n)
	}
}
