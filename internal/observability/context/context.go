// Package context carries correlation identifiers across request and job boundaries.
package context

import (
	"context"
	"strings"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	jobIDKey
	jobTypeKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithJob tags ctx with the queue job being processed.
func WithJob(ctx context.Context, jobID, jobType string) context.Context {
	ctx = context.WithValue(ctx, jobIDKey, strings.TrimSpace(jobID))
	return context.WithValue(ctx, jobTypeKey, strings.TrimSpace(jobType))
}

func JobFromContext(ctx context.Context) (jobID, jobType string) {
	return stringValue(ctx, jobIDKey), stringValue(ctx, jobTypeKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
