package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/stockroom-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
)

type fakeThrottleStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeThrottleStore() *fakeThrottleStore {
	return &fakeThrottleStore{counts: map[string]int64{}}
}

func (f *fakeThrottleStore) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, 0, f.err
	}
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func loginRequest(email, remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"`+email+`","password":"secret-secret"}`))
	req.RemoteAddr = remote
	return req
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestLoginThrottlePreservesBody(t *testing.T) {
	cfg := config.AuthRateLimitConfig{LoginWindow: time.Minute, LoginIPLimit: 5, LoginEmailLimit: 5}
	handler := LoginThrottle(cfg, newFakeThrottleStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if !strings.Contains(string(body), `"email":"clerk@example.com"`) {
			t.Fatalf("unexpected body: %s", body)
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("clerk@example.com", "10.0.0.1:4000"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestLoginThrottleEmailLimitSpansAddresses(t *testing.T) {
	cfg := config.AuthRateLimitConfig{LoginWindow: time.Minute, LoginEmailLimit: 2}
	handler := LoginThrottle(cfg, newFakeThrottleStore(), nil)(http.HandlerFunc(okHandler))

	remotes := []string{"10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1"}
	for i, remote := range remotes {
		rec := httptest.NewRecorder()
		// case differences must not open a fresh bucket
		email := "Clerk@Example.com"
		if i%2 == 0 {
			email = "clerk@example.com"
		}
		handler.ServeHTTP(rec, loginRequest(email, remote))

		if i < 2 && rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", i, rec.Code)
		}
		if i == 2 {
			if rec.Code != http.StatusTooManyRequests {
				t.Fatalf("expected 429, got %d", rec.Code)
			}
			if rec.Header().Get("Retry-After") != "60" {
				t.Fatalf("expected Retry-After 60, got %q", rec.Header().Get("Retry-After"))
			}
			var payload struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if payload.Error.Code != string(pkgerrors.CodeRateLimit) {
				t.Fatalf("unexpected code: %s", payload.Error.Code)
			}
		}
	}
}

func TestLoginThrottleIPLimitUsesForwardedFor(t *testing.T) {
	cfg := config.AuthRateLimitConfig{LoginWindow: time.Minute, LoginIPLimit: 1}
	handler := LoginThrottle(cfg, newFakeThrottleStore(), nil)(http.HandlerFunc(okHandler))

	for i, email := range []string{"a@example.com", "b@example.com"} {
		req := loginRequest(email, "127.0.0.1:9000")
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		want := http.StatusOK
		if i == 1 {
			want = http.StatusTooManyRequests
		}
		if rec.Code != want {
			t.Fatalf("attempt %d: expected %d, got %d", i, want, rec.Code)
		}
	}
}

func TestLoginThrottleStoreFailure(t *testing.T) {
	store := newFakeThrottleStore()
	store.err = errors.New("redis down")
	cfg := config.AuthRateLimitConfig{LoginWindow: time.Minute, LoginIPLimit: 3}
	handler := LoginThrottle(cfg, store, nil)(http.HandlerFunc(okHandler))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("clerk@example.com", "10.0.0.1:1"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestLoginThrottleDisabledWithoutLimits(t *testing.T) {
	handler := LoginThrottle(config.AuthRateLimitConfig{}, newFakeThrottleStore(), nil)(http.HandlerFunc(okHandler))
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, loginRequest("clerk@example.com", "10.0.0.1:1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}
}
