// Package contextx 提供请求级上下文键：事务句柄、请求 ID、追踪 ID
package contextx

import "context"

type ctxKey int

const (
	txKey ctxKey = iota
	requestIDKey
	traceIDKey
	spanIDKey
)

// WithTx 把事务句柄放入 context，仓储层通过 GetTx 取出并复用同一事务
func WithTx(ctx context.Context, tx any) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

// GetTx 取出事务句柄，没有时返回 nil
func GetTx(ctx context.Context) any {
	if ctx == nil {
		return nil
	}
	return ctx.Value(txKey)
}

// WithRequestID 写入请求 ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID 读取请求 ID
func RequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithTraceID 写入追踪 ID
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

// TraceID 读取追踪 ID
func TraceID(ctx context.Context) string {
	return stringValue(ctx, traceIDKey)
}

// WithSpanID 写入 span ID
func WithSpanID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, spanIDKey, id)
}

// SpanID 读取 span ID
func SpanID(ctx context.Context) string {
	return stringValue(ctx, spanIDKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
