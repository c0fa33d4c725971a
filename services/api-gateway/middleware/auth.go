package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
)

// Claims is the bearer token payload. Subject is the acting user.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
}

// Authenticate verifies an HS256 bearer token and scopes the request to the
// token's tenant and subject. Requests without a valid token, or whose token
// carries no tenant, are answered 401.
func Authenticate(secret []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			claims := &Claims{}
			if _, err := parser.ParseWithClaims(token, claims, keyFunc); err != nil {
				logger.Debug("rejected token", slog.String("error", err.Error()))
				writeError(w, http.StatusUnauthorized, "invalid credentials")
				return
			}
			if claims.TenantID == "" {
				writeError(w, http.StatusUnauthorized, domain.ErrMissingTenant.Error())
				return
			}

			ctx := domain.WithTenant(r.Context(), claims.TenantID)
			if claims.Subject != "" {
				ctx = domain.WithActor(ctx, claims.Subject)
			}
			recordTenant(ctx, claims.TenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SignToken issues an HS256 token for tenantID and subject. Used by tests
// and local tooling.
func SignToken(secret []byte, tenantID, subject string) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("empty signing secret")
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
		TenantID:         tenantID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
