package log

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// contextKey is a private key type for storing RequestContext
type contextKey string

const requestContextKey contextKey = "tux_request_context"

// RequestContext carries request tracing information through the
// admin HTTP pipeline.
type RequestContext struct {
	RequestID string    // short base36 id, e.g. mgrn0zfqda
	Operator  string    // authenticated admin identity, if any
	StartTime time.Time // request start time
}

var (
	randSource = rand.NewSource(time.Now().UnixNano())
	randMutex  sync.Mutex
	// base36 charset (lowercase letters + digits)
	base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// GenerateRequestID generates a 10 character random request id.
func GenerateRequestID() string {
	randMutex.Lock()
	defer randMutex.Unlock()

	b := make([]byte, 10)
	for i := range b {
		b[i] = base36Chars[randSource.Int63()%36]
	}
	return string(b)
}

// WithRequestContext injects a RequestContext into the Context.
// Called by the logging middleware for the whole request lifetime.
func WithRequestContext(ctx context.Context, requestID, operator string) context.Context {
	reqCtx := &RequestContext{
		RequestID: requestID,
		Operator:  operator,
		StartTime: time.Now(),
	}
	return context.WithValue(ctx, requestContextKey, reqCtx)
}

// GetRequestContext extracts the RequestContext from the Context,
// returning a default when none is present so callers never nil-check.
func GetRequestContext(ctx context.Context) *RequestContext {
	if ctx == nil {
		return &RequestContext{RequestID: "unknown"}
	}
	if reqCtx, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
		return reqCtx
	}
	return &RequestContext{RequestID: "unknown"}
}

// GetRequestID extracts the request id from the Context.
func GetRequestID(ctx context.Context) string {
	return GetRequestContext(ctx).RequestID
}

// GetElapsedTime returns how long the request has been running, in
// milliseconds.
func GetElapsedTime(ctx context.Context) int64 {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.StartTime.IsZero() {
		return 0
	}
	return time.Since(reqCtx.StartTime).Milliseconds()
}
