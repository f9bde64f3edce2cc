package testutil

import (
	"context"
	"net/http"
	"time"

	id "veriflow/pkg/domain"
	"veriflow/pkg/requestcontext"
)

// WithReviewer adds a reviewer ID to the request context, simulating what the
// auth middleware would do for authenticated requests. An invalid ID is
// silently ignored.
func WithReviewer(req *http.Request, reviewerID string) *http.Request {
	if parsed, err := id.ParseReviewerID(reviewerID); err == nil {
		return req.WithContext(requestcontext.WithActorID(req.Context(), parsed))
	}
	return req
}

// WithRequestTime pins the request-scoped clock, like the request-time
// middleware does in production.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
