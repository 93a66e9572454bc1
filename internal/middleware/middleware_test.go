package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/AnshRaj112/marketbot-backend/internal/logging"
	"github.com/AnshRaj112/marketbot-backend/pkg/utils"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestSecurityHeaders(t *testing.T) {
	rec := serve(SecurityHeaders(okHandler), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestIPRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(rate.Every(time.Hour), 2)
	h := l.Limit(okHandler)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	}
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "198.51.100.7:4000"
	assert.Equal(t, http.StatusOK, serve(h, other).Code, "buckets are per ip")

	assert.Zero(t, l.Cleanup(time.Now()))
	assert.Equal(t, 2, l.Cleanup(time.Now().Add(time.Hour)))
}

func newTestGuard(t *testing.T) (*FailureGuard, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewFailureGuard(client), mr
}

func TestFailureGuardBlocksAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	g, mr := newTestGuard(t)

	for i := 1; i < AuthMaxFailures; i++ {
		assert.False(t, g.RecordFailure(ctx, "10.0.0.1"))
	}
	assert.False(t, g.Blocked(ctx, "10.0.0.1"))
	assert.True(t, g.RecordFailure(ctx, "10.0.0.1"))
	assert.True(t, g.Blocked(ctx, "10.0.0.1"))
	assert.False(t, g.Blocked(ctx, "10.0.0.2"))

	mr.FastForward(BlockedIPDuration + time.Second)
	assert.False(t, g.Blocked(ctx, "10.0.0.1"))
}

func TestFailureGuardResetAndUnblock(t *testing.T) {
	ctx := context.Background()
	g, mr := newTestGuard(t)

	g.RecordFailure(ctx, "10.0.0.1")
	g.Reset(ctx, "10.0.0.1")
	assert.False(t, mr.Exists(authFailureKeyPrefix+"10.0.0.1"))

	for i := 0; i < AuthMaxFailures; i++ {
		g.RecordFailure(ctx, "10.0.0.1")
	}
	require.True(t, g.Blocked(ctx, "10.0.0.1"))
	require.NoError(t, g.Unblock(ctx, "10.0.0.1"))
	assert.False(t, g.Blocked(ctx, "10.0.0.1"))
}

func TestFailureGuardFailsOpen(t *testing.T) {
	g, mr := newTestGuard(t)
	mr.Close()

	assert.False(t, g.Blocked(context.Background(), "10.0.0.1"))
	assert.False(t, g.RecordFailure(context.Background(), "10.0.0.1"))
}

func TestAdminAuth(t *testing.T) {
	hash, err := utils.HashSecret("s3cret")
	require.NoError(t, err)
	g, _ := newTestGuard(t)
	h := AdminAuth(hash, g, logging.Discard())(okHandler)

	withKey := func(key string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
		if key != "" {
			r.Header.Set("Authorization", "Bearer "+key)
		}
		return r
	}

	assert.Equal(t, http.StatusOK, serve(h, withKey("s3cret")).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, withKey("")).Code)

	for i := 1; i < AuthMaxFailures; i++ {
		assert.Equal(t, http.StatusUnauthorized, serve(h, withKey("wrong")).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, serve(h, withKey("s3cret")).Code)
}

func TestAdminAuthDisabledWithoutHash(t *testing.T) {
	h := AdminAuth("", nil, logging.Discard())(okHandler)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer anything")
	assert.Equal(t, http.StatusServiceUnavailable, serve(h, r).Code)
}

func TestExtractBearerToken(t *testing.T) {
	assert.Equal(t, "abc", extractBearerToken("Bearer abc"))
	assert.Equal(t, "", extractBearerToken("Basic abc"))
	assert.Equal(t, "", extractBearerToken(""))
}
