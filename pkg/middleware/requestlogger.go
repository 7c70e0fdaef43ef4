package middleware

import (
	"log/slog"
	"net/http"

	"github.com/mabgcm/turkiyedental2-sub001/pkg/logger"
)

// RequestLogger stores a logger enriched with correlation_id, user_id and
// trace ids in the request context. Mount it after RequestLogging and
// Tracing, and again after Authenticate on authenticated groups so user_id
// is present.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if userID := UserIDFromContext(ctx); userID != "" {
				ctx = logger.WithUserID(ctx, userID)
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
