package logging

import (
	"context"
)

type contextKey string

const (
	traceIDKey     contextKey = "trace_id"
	messageIDKey   contextKey = "message_id"
	serviceNameKey contextKey = "service_name"
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, messageIDKey, messageID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, serviceNameKey, serviceName)
}

func GetServiceName(ctx context.Context) string {
	return stringValue(ctx, serviceNameKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetLogFields flattens the context correlation values into zap
// sugared key-value pairs, skipping anything unset.
func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 6)
	for _, key := range []contextKey{traceIDKey, messageIDKey, serviceNameKey} {
		if v := stringValue(ctx, key); v != "" {
			fields = append(fields, string(key), v)
		}
	}
	return fields
}
