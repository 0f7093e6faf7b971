package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestRateLimiter_Allow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(3, time.Minute, 3)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, remaining := rl.Allow("1.2.3.4")
		require.True(t, ok, "request %d", i)
		assert.Equal(t, 2-i, remaining)
	}
	ok, _ := rl.Allow("1.2.3.4")
	assert.False(t, ok)

	ok, _ = rl.Allow("5.6.7.8")
	assert.True(t, ok, "other clients have their own bucket")

	now = now.Add(20 * time.Second)
	ok, _ = rl.Allow("1.2.3.4")
	assert.True(t, ok, "one token refills every 20s")
}

func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, 0, 0)
	assert.Equal(t, 100, rl.burst)
	assert.InDelta(t, 100.0/60.0, float64(rl.limit), 1e-9)
}

func TestRateLimiter_Sweep(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(10, time.Minute, 10)
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(90 * time.Second)
	rl.Allow("fresh")
	now = now.Add(45 * time.Second)

	assert.Equal(t, 1, rl.Sweep())
	_, ok := rl.clients["fresh"]
	assert.True(t, ok)
}

func TestRateLimiter_RunSweeperStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := NewRateLimiter(10, time.Minute, 10)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		rl.RunSweeper(time.Millisecond, stop)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	close(stop)
	<-done
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(2, time.Minute, 2)

	router := gin.New()
	router.Use(RequestID(), RateLimit(rl))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = ip + ":5555"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := do("10.0.0.1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, do("10.0.0.1").Code)

	w = do("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_RATE_LIMITED")
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, do("10.0.0.2").Code)
}

func TestRateLimitByKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(1, time.Minute, 1)

	router := gin.New()
	router.Use(RateLimitByKey(rl, func(c *gin.Context) string { return c.GetHeader("X-Session") }))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(session string) int {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("X-Session", session)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("a"))
	assert.Equal(t, http.StatusTooManyRequests, send("a"))
	assert.Equal(t, http.StatusOK, send("b"))
}
