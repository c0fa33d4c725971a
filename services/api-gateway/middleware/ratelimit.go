package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
	"github.com/ramiqadoumi/go-care-tasks/pkg/telemetry"
)

// Limiter decides whether one more request fits a key's budget.
// redis.RateLimiter satisfies it.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Limit() int
}

// RateLimit enforces a per-tenant request budget. It must run after
// Authenticate. A limiter failure lets the request through.
func RateLimit(limiter Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID, err := domain.TenantFromContext(r.Context())
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			allowed, err := limiter.Allow(r.Context(), tenantID)
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request",
					slog.String("tenant_id", tenantID),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				telemetry.APIRateLimitedTotal.Inc()
				limitErr := &domain.RateLimitExceededError{Key: tenantID, Limit: limiter.Limit()}
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limitErr.Limit))
				writeError(w, http.StatusTooManyRequests, limitErr.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
