package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	id "veriflow/pkg/domain"
	"veriflow/pkg/requestcontext"
)

// ReviewerClaims carries the validated reviewer identity.
type ReviewerClaims struct {
	ReviewerID string
	Name       string
}

// JWTValidator validates reviewer bearer tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*ReviewerClaims, error)
}

// RequireReviewer guards the review endpoints. A valid bearer token puts the
// reviewer ID into the request context; everything else gets a 401.
func RequireReviewer(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access, missing bearer token",
					"request_id", GetRequestID(ctx))
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access, invalid token",
					"error", err, "request_id", GetRequestID(ctx))
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			reviewerID, err := id.ParseReviewerID(claims.ReviewerID)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access, malformed reviewer id",
					"error", err, "request_id", GetRequestID(ctx))
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithActorID(ctx, reviewerID)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
