package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func limited(t *testing.T, h http.Handler, ip string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/targets", nil)
	req.RemoteAddr = ip + ":40000"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Code
}

func TestRateLimit_BurstThenRefill(t *testing.T) {
	h := RateLimit(60, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		if code := limited(t, h, "10.0.0.1"); code != http.StatusOK {
			t.Fatalf("request %d within burst: want 200, got %d", i+1, code)
		}
	}
	if code := limited(t, h, "10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("burst exhausted: want 429, got %d", code)
	}
	// other clients have their own bucket
	if code := limited(t, h, "10.0.0.2"); code != http.StatusOK {
		t.Fatalf("separate client limited too early: got %d", code)
	}

	// 60/min refills one token per second
	time.Sleep(1100 * time.Millisecond)
	if code := limited(t, h, "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("want 200 after refill, got %d", code)
	}
}

func TestRateLimit_DisabledWhenZero(t *testing.T) {
	h := RateLimit(0, 0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 10; i++ {
		if code := limited(t, h, "10.0.0.3"); code != http.StatusOK {
			t.Fatalf("limiter must be off, got %d", code)
		}
	}
}
