package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/walletledger/pkg/cache"
	"github.com/wyfcoding/walletledger/pkg/contextx"
	"github.com/wyfcoding/walletledger/pkg/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newCache(t *testing.T) *cache.RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	return cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func post(r http.Handler, path, idemKey string) *httptest.ResponseRecorder {
	return postBody(r, path, idemKey, `{}`)
}

func postBody(r http.Handler, path, idemKey, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if idemKey != "" {
		req.Header.Set(HeaderIdempotencyKey, idemKey)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	t.Parallel()

	calls := 0
	r := gin.New()
	r.Use(Idempotency(newCache(t), time.Minute))
	r.POST("/transfers", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"call": calls})
	})

	first := post(r, "/transfers", "key-1")
	second := post(r, "/transfers", "key-1")

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(HeaderIdempotentReplay))

	post(r, "/transfers", "key-2")
	post(r, "/transfers", "")
	assert.Equal(t, 3, calls)
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	t.Parallel()

	calls := 0
	r := gin.New()
	r.Use(Idempotency(newCache(t), time.Minute))
	r.POST("/transfers", func(c *gin.Context) {
		calls++
		if calls == 1 {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db down"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})

	assert.Equal(t, http.StatusInternalServerError, post(r, "/transfers", "retry").Code)
	assert.Equal(t, http.StatusCreated, post(r, "/transfers", "retry").Code)
	assert.Equal(t, 2, calls)
}

func TestIdempotencyRejectsKeyReuseWithDifferentBody(t *testing.T) {
	t.Parallel()

	var bodies []string
	r := gin.New()
	r.Use(Idempotency(newCache(t), time.Minute))
	r.POST("/transfers", func(c *gin.Context) {
		raw, err := c.GetRawData()
		require.NoError(t, err)
		bodies = append(bodies, string(raw))
		c.JSON(http.StatusCreated, gin.H{"n": len(bodies)})
	})

	alice := `{"from_account":"A","to_account":"C","amount":"5"}`
	bob := `{"from_account":"B","to_account":"C","amount":"7"}`

	assert.Equal(t, http.StatusCreated, postBody(r, "/transfers", "1", alice).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, postBody(r, "/transfers", "1", bob).Code)
	replay := postBody(r, "/transfers", "1", alice)
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "true", replay.Header().Get(HeaderIdempotentReplay))

	// 处理器读到的是完整请求体，且只执行了一次
	assert.Equal(t, []string{alice}, bodies)
}

func TestIdempotencyReleasesKeyOnPanic(t *testing.T) {
	t.Parallel()

	calls := 0
	r := gin.New()
	r.Use(GinRecoveryMiddleware(), Idempotency(newCache(t), time.Minute))
	r.POST("/transfers", func(c *gin.Context) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})

	assert.Equal(t, http.StatusInternalServerError, post(r, "/transfers", "retry").Code)
	assert.Equal(t, http.StatusCreated, post(r, "/transfers", "retry").Code)
	assert.Equal(t, 2, calls)
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.Use(GinLoggingMiddleware(nil), GinRecoveryMiddleware())
	r.GET("/panic", func(*gin.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "req-42")
	assert.Equal(t, "req-42", rec.Header().Get(HeaderRequestID))
}

func TestLoggingMiddlewarePropagatesIDs(t *testing.T) {
	t.Parallel()

	var seenRequest, seenTrace string
	r := gin.New()
	r.Use(GinLoggingMiddleware(nil))
	r.GET("/ping", func(c *gin.Context) {
		seenRequest = contextx.RequestID(c.Request.Context())
		seenTrace = contextx.TraceID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderTraceID, "trace-1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.NotEmpty(t, seenRequest)
	assert.Equal(t, "trace-1", seenTrace)
}

type stubLimiter struct {
	allowed bool
	err     error
}

func (s stubLimiter) Allow(context.Context, string, ratelimit.Limit) (*ratelimit.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &ratelimit.Result{Allowed: s.allowed, RetryAfter: 2 * time.Second}, nil
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		limiter ratelimit.RateLimiter
		want    int
	}{
		{name: "allowed", limiter: stubLimiter{allowed: true}, want: http.StatusOK},
		{name: "rejected", limiter: stubLimiter{allowed: false}, want: http.StatusTooManyRequests},
		{name: "fail open", limiter: stubLimiter{err: errors.New("redis down")}, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := gin.New()
			r.Use(RateLimitMiddleware(tt.limiter, ratelimit.PerSecond(10, 0), nil))
			r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
			require.Equal(t, tt.want, rec.Code)
		})
	}
}

type keyRecorder struct {
	keys []string
}

func (k *keyRecorder) Allow(_ context.Context, key string, _ ratelimit.Limit) (*ratelimit.Result, error) {
	k.keys = append(k.keys, key)
	return &ratelimit.Result{Allowed: true}, nil
}

func TestRateLimitAccountKey(t *testing.T) {
	t.Parallel()

	rec := &keyRecorder{}
	r := gin.New()
	r.Use(RateLimitMiddleware(rec, ratelimit.PerSecond(5, 5), AccountKey))
	r.POST("/accounts/:id/withdraw", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/transfers", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/accounts/ACC-1/withdraw", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
	req = httptest.NewRequest(http.MethodPost, "/transfers", nil)
	req.RemoteAddr = "10.0.0.7:1234"
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, []string{"ratelimit:account:ACC-1", "ratelimit:10.0.0.7"}, rec.keys)
}
