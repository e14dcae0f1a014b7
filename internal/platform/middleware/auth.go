package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	id "clicr/pkg/domain"
	dErrors "clicr/pkg/domain-errors"
	"clicr/pkg/platform/httputil"
	"clicr/pkg/requestcontext"
)

// TokenValidator defines the interface for resolving a bearer token to a
// principal id.
type TokenValidator interface {
	ExtractUserID(tokenString string) (id.UserID, error)
}

// RequireAuth rejects requests without a valid bearer token and injects the
// resolved principal id into the request context.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			userID, err := validator.ExtractUserID(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithUserID(ctx, userID)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, description))
}
