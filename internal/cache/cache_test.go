package cache

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/fairscan/internal/monitoring"
)

func TestCacheSetGet(t *testing.T) {
	c := NewCache(time.Minute)

	_, found := c.Get("missing")
	assert.False(t, found)

	c.Set("k", []byte(`{"ok":true}`))
	data, found := c.Get("k")
	require.True(t, found)
	assert.Equal(t, `{"ok":true}`, string(data))

	c.Delete("k")
	_, found = c.Get("k")
	assert.False(t, found)
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(10 * time.Millisecond)
	c.Set("k", []byte("data"))

	_, found := c.Get("k")
	require.True(t, found)

	time.Sleep(20 * time.Millisecond)
	_, found = c.Get("k")
	assert.False(t, found)
}

func TestCacheClearAndSize(t *testing.T) {
	c := NewCache(time.Minute)
	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	assert.Equal(t, 2, c.Size())

	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func cacheRouter(t *testing.T, c *Cache) (*gin.Engine, *int) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	handlerCalls := 0
	r := gin.New()
	r.Use(c.Middleware(monitoring.NewMetrics()))
	r.POST("/api/v1/analyze", func(ctx *gin.Context) {
		handlerCalls++
		ctx.JSON(http.StatusOK, gin.H{"calls": handlerCalls})
	})
	r.POST("/api/v1/other", func(ctx *gin.Context) {
		handlerCalls++
		ctx.JSON(http.StatusOK, gin.H{"calls": handlerCalls})
	})
	return r, &handlerCalls
}

func TestMiddleware_ServesRepeatBodiesFromCache(t *testing.T) {
	c := NewCache(time.Minute)
	r, calls := cacheRouter(t, c)

	body := []byte(`{"content":"some text"}`)

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", bytes.NewReader(body))
	r.ServeHTTP(first, req)
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/analyze", bytes.NewReader(body))
	r.ServeHTTP(second, req)
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t, 1, *calls, "second request must be served from cache")
	assert.Equal(t, first.Body.String(), second.Body.String())

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats["hits"])
	assert.Equal(t, uint64(1), stats["misses"])
}

func TestMiddleware_DistinctBodiesMiss(t *testing.T) {
	c := NewCache(time.Minute)
	r, calls := cacheRouter(t, c)

	for _, body := range []string{`{"content":"first"}`, `{"content":"second"}`} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", bytes.NewReader([]byte(body)))
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, 2, *calls)
}

func TestMiddleware_IgnoresOtherRoutes(t *testing.T) {
	c := NewCache(time.Minute)
	r, calls := cacheRouter(t, c)

	body := []byte(`{"content":"same"}`)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/other", bytes.NewReader(body))
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, 2, *calls)
	assert.Equal(t, 0, c.Size())
}
