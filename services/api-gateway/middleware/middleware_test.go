package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
)

var secret = []byte("test-secret")

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// echoScope answers 200 with "tenant|actor" from the request context.
func echoScope() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := domain.TenantFromContext(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusTeapot)
			return
		}
		_, _ = io.WriteString(w, tenantID+"|"+domain.ActorFromContext(r.Context()))
	})
}

func bearer(t *testing.T, key []byte, tenantID, subject string) string {
	t.Helper()
	token, err := SignToken(key, tenantID, subject)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name       string
		authz      func(t *testing.T) string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "valid token",
			authz:      func(t *testing.T) string { return bearer(t, secret, "clinic-a", "nurse-1") },
			wantStatus: http.StatusOK,
			wantBody:   "clinic-a|nurse-1",
		},
		{
			name:       "missing header",
			authz:      func(*testing.T) string { return "" },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "not a bearer token",
			authz:      func(*testing.T) string { return "Basic dXNlcjpwYXNz" },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong secret",
			authz:      func(t *testing.T) string { return bearer(t, []byte("other"), "clinic-a", "nurse-1") },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "no tenant claim",
			authz:      func(t *testing.T) string { return bearer(t, secret, "", "nurse-1") },
			wantStatus: http.StatusUnauthorized,
		},
	}

	h := Authenticate(secret, discardLogger())(echoScope())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
			if authz := tt.authz(t); authz != "" {
				req.Header.Set("Authorization", authz)
			}
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

func (f *fakeLimiter) Limit() int { return 10 }

func TestRateLimit(t *testing.T) {
	tests := []struct {
		name       string
		limiter    *fakeLimiter
		wantStatus int
	}{
		{"within budget", &fakeLimiter{allow: true}, http.StatusOK},
		{"over budget", &fakeLimiter{allow: false}, http.StatusTooManyRequests},
		{"limiter down fails open", &fakeLimiter{err: errors.New("redis down")}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RateLimit(tt.limiter, discardLogger())(echoScope())
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(domain.WithTenant(req.Context(), "clinic-a"))
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, []string{"clinic-a"}, tt.limiter.keys, "budget is keyed by tenant")
		})
	}
}

func TestRateLimit_RequiresTenant(t *testing.T) {
	limiter := &fakeLimiter{allow: true}
	h := RateLimit(limiter, discardLogger())(echoScope())
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, limiter.keys)
}

func TestRequestLogger_RecordsTenant(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := RequestLogger(logger)(Authenticate(secret, logger)(echoScope()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	req.Header.Set("Authorization", bearer(t, secret, "clinic-a", "nurse-1"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	assert.Contains(t, line, `"msg":"request"`)
	assert.Contains(t, line, `"tenant_id":"clinic-a"`)
	assert.Contains(t, line, `"status":200`)
}

func TestMaxBodySize(t *testing.T) {
	h := MaxBodySize(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
		}
	}))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
