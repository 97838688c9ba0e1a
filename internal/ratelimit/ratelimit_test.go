package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/config"
)

func TestLimiter_BurstThenDeny(t *testing.T) {
	t.Parallel()

	l := New(60, 3)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("client"), "request %d within burst", i)
	}
	assert.False(t, l.Allow("client"))
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(60, 1)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}

func TestLimiter_WaitTime(t *testing.T) {
	t.Parallel()

	l := New(60, 1)
	assert.Zero(t, l.WaitTime("client"))

	require.True(t, l.Allow("client"))
	assert.Equal(t, time.Second, l.WaitTime("client"))
}

func TestLimiter_Reset(t *testing.T) {
	t.Parallel()

	l := New(60, 1)
	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))

	l.Reset("a")
	assert.True(t, l.Allow("a"))
}

func TestLimiter_ResetAll(t *testing.T) {
	t.Parallel()

	l := New(60, 1)
	require.True(t, l.Allow("a"))
	require.True(t, l.Allow("b"))

	l.Reset("")
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}

func TestLimiter_Prune(t *testing.T) {
	t.Parallel()

	l := New(60, 1)
	now := time.Now()
	l.nowFunc = func() time.Time { return now }
	l.Allow("stale")

	now = now.Add(time.Hour)
	l.Allow("fresh")

	assert.Equal(t, 1, l.Prune(30*time.Minute))
	assert.True(t, l.Allow("stale"), "pruned key gets a fresh bucket")
}

func TestLimiter_Defaults(t *testing.T) {
	t.Parallel()

	l := New(0, 0)
	assert.Equal(t, 100, l.perMin)
	assert.Equal(t, 20, l.burst)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry(config.LimitsConfig{
		SearchPerMinute: 120, SearchBurst: 30,
		UploadPerMinute: 10, UploadBurst: 5,
		APIPerMinute: 200, APIBurst: 50,
	})

	assert.Equal(t, 120, r.Get(OpSearch).perMin)
	assert.Equal(t, 5, r.Get(OpUpload).burst)
	assert.Equal(t, 200, r.Get(OpAPI).perMin)
	assert.Same(t, r.Get(OpAPI), r.Get("unknown"))
}

func TestClientKey(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:54321"
	assert.Equal(t, "10.0.0.7", ClientKey(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", ClientKey(r))
}

func TestMiddleware_Enforces(t *testing.T) {
	t.Parallel()

	l := New(60, 1)
	handler := Middleware(l)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/search", nil)
	req.RemoteAddr = "10.0.0.7:1000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
}
