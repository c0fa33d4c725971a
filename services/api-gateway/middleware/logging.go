package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// tenantSlot lets Authenticate, which runs further in, report the tenant
// back to RequestLogger.
type tenantSlot struct{ id string }

type slotKey struct{}

func recordTenant(ctx context.Context, tenantID string) {
	if slot, ok := ctx.Value(slotKey{}).(*tenantSlot); ok {
		slot.id = tenantID
	}
}

// RequestLogger logs every HTTP request with method, path, status, duration
// and, once authenticated, the tenant.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			slot := &tenantSlot{}

			next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), slotKey{}, slot)))

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.status),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if id := chimw.GetReqID(r.Context()); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}
			if slot.id != "" {
				attrs = append(attrs, slog.String("tenant_id", slot.id))
			}
			level := slog.LevelInfo
			if rw.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(r.Context(), level, "request", attrs...)
		})
	}
}
