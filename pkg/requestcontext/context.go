// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets these values; services read them. Keeping the package free
// of net/http lets domain services stay importable from workers and tests
// without pulling in transport code.
//
// Usage in services (read values):
//
//	actorID := requestcontext.ActorID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithActorID(ctx, reviewerID)
package requestcontext

import (
	"context"
	"time"

	id "veriflow/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	actorIDKey     struct{}
	sourceAddrKey  struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for tests that need raw context.WithValue.
var (
	ContextKeyActorID     = actorIDKey{}
	ContextKeySourceAddr  = sourceAddrKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// ActorID retrieves the authenticated reviewer ID from the context.
// Returns the zero value (nil UUID) if not set.
func ActorID(ctx context.Context) id.ReviewerID {
	if actorID, ok := ctx.Value(ContextKeyActorID).(id.ReviewerID); ok {
		return actorID
	}
	return id.ReviewerID{}
}

// WithActorID injects a reviewer ID into the context.
func WithActorID(ctx context.Context, actorID id.ReviewerID) context.Context {
	return context.WithValue(ctx, ContextKeyActorID, actorID)
}

// SourceAddr retrieves the caller's network address from the context.
// Token redemptions record it alongside the redeemed token.
func SourceAddr(ctx context.Context) string {
	if addr, ok := ctx.Value(ContextKeySourceAddr).(string); ok {
		return addr
	}
	return ""
}

// WithSourceAddr injects the caller's network address into a context.
func WithSourceAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, ContextKeySourceAddr, addr)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, CLI, tests that don't care).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins a specific time in a context. Used by the request-time
// middleware, by batch workers that want one consistent timestamp, and by
// tests that need a deterministic clock.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
