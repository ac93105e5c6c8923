package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/walletledger/pkg/cache"
	"github.com/wyfcoding/walletledger/pkg/logger"
)

const (
	// HeaderIdempotencyKey 客户端提供的幂等键
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplay 标记响应来自缓存
	HeaderIdempotentReplay = "Idempotent-Replayed"
)

// storedResponse Status 为 0 表示请求仍在执行
type storedResponse struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency 对带 Idempotency-Key 的写请求去重：
// 首次请求占位并执行，非 5xx 响应连同请求体摘要被保存，之后同键同请求体的请求直接重放；
// 同键但请求体不同返回 422，执行中的同键请求返回 409。
// 处理器 panic 或返回 5xx 时释放占位，允许重试。
func Idempotency(rc *cache.RedisCache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		idemKey := c.GetHeader(HeaderIdempotencyKey)
		if idemKey == "" || c.Request.Method == http.MethodGet {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		fingerprint, err := fingerprintBody(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}
		key := "idem:" + c.Request.Method + ":" + c.Request.URL.Path + ":" + idemKey

		acquired, err := rc.SetNX(ctx, key, inflight(fingerprint), ttl)
		if err != nil {
			// Redis 不可用时不阻断资金操作，失去去重保护
			logger.Warn(ctx, "idempotency store unavailable", "error", err)
			c.Next()
			return
		}

		if !acquired {
			var stored storedResponse
			hit, err := rc.GetJSON(ctx, key, &stored)
			switch {
			case err != nil || !hit:
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request with this idempotency key is in progress"})
			case stored.Fingerprint != fingerprint:
				c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "idempotency key was already used with a different request"})
			case stored.Status == 0:
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request with this idempotency key is in progress"})
			default:
				c.Header(HeaderIdempotentReplay, "true")
				c.Data(stored.Status, stored.ContentType, stored.Body)
				c.Abort()
			}
			return
		}

		release := func() {
			if err := rc.Delete(ctx, key); err != nil {
				logger.Warn(ctx, "failed to release idempotency key", "key", key, "error", err)
			}
		}
		defer func() {
			if r := recover(); r != nil {
				release()
				panic(r)
			}
		}()

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		if status >= http.StatusInternalServerError {
			release()
			return
		}

		stored := storedResponse{
			Fingerprint: fingerprint,
			Status:      status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.buf.Bytes(),
		}
		if err := rc.SetJSON(ctx, key, stored, ttl); err != nil {
			logger.Warn(ctx, "failed to store idempotent response", "key", key, "error", err)
		}
	}
}

// fingerprintBody 计算请求体的 SHA-256 并把请求体放回供处理器读取
func fingerprintBody(c *gin.Context) (string, error) {
	var body []byte
	if c.Request.Body != nil {
		var err error
		body, err = io.ReadAll(c.Request.Body)
		if err != nil {
			return "", err
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}

func inflight(fingerprint string) string {
	data, _ := json.Marshal(storedResponse{Fingerprint: fingerprint})
	return string(data)
}
