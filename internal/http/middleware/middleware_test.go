package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, mws []echo.MiddlewareFunc, key string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	e := echo.New()
	var seen string
	e.GET("/x", func(c echo.Context) error {
		seen, _ = APIKeyFromCtx(c)
		return c.NoContent(http.StatusOK)
	}, mws...)
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	if key != "" {
		r.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, r)
	return rec, seen
}

func TestAPIKeyMiddleware(t *testing.T) {
	mw := []echo.MiddlewareFunc{APIKeyMiddleware([]string{" a ", "b", ""})}

	rec, _ := serve(t, mw, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = serve(t, mw, "c")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, seen := serve(t, mw, "a")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a", seen)
}

func TestAPIKeyMiddleware_NoKeysConfigured(t *testing.T) {
	rec, seen := serve(t, []echo.MiddlewareFunc{APIKeyMiddleware(nil)}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, seen)
}

func TestRateLimit_AllowsWithoutRedis(t *testing.T) {
	mw := []echo.MiddlewareFunc{RateLimitMiddleware(RateLimitConfig{RPS: 1})}
	for i := 0; i < 3; i++ {
		rec, _ := serve(t, mw, "")
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimit_FailsOpenWhenRedisDown(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { require.NoError(t, rdb.Close()) })

	mw := []echo.MiddlewareFunc{
		APIKeyMiddleware([]string{"k"}),
		RateLimitMiddleware(RateLimitConfig{Redis: rdb, RPS: 1}),
	}
	rec, _ := serve(t, mw, "k")
	assert.Equal(t, http.StatusOK, rec.Code)
}
