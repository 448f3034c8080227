// Package requestcontext carries request-scoped values (request id, caller subject
// and request time) on a context.Context so services and stores can read them
// without importing net/http.
package requestcontext

import (
	"context"
	"time"
)

type key int

const (
	requestIDKey key = iota
	subjectKey
	requestTimeKey
)

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// Subject is the verified bearer token subject, empty on unauthenticated requests.
func Subject(ctx context.Context) string {
	sub, _ := ctx.Value(subjectKey).(string)
	return sub
}

func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// Now returns the time pinned by the request time middleware, or time.Now outside
// of a request (snapshot loop, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, t)
}
