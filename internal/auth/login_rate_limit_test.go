package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoginRateLimiterAllow(t *testing.T) {
	t.Parallel()

	limiter := NewLoginRateLimiter(3, time.Minute)
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		allowed, _ := limiter.allow("1.2.3.4", now)
		require.True(t, allowed)
	}

	allowed, retryAfter := limiter.allow("1.2.3.4", now)
	require.False(t, allowed)
	require.GreaterOrEqual(t, retryAfter, time.Second)

	// A different client is unaffected.
	allowed, _ = limiter.allow("5.6.7.8", now)
	require.True(t, allowed)

	// The window slides.
	allowed, _ = limiter.allow("1.2.3.4", now.Add(2*time.Minute))
	require.True(t, allowed)
}

func TestLoginRateLimiterMiddleware(t *testing.T) {
	t.Parallel()

	limiter := NewLoginRateLimiter(1, time.Minute)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.Header.Set("X-Forwarded-For", "9.9.9.9")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}
