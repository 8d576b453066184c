package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	dErrors "irrl/pkg/domain-errors"
	"irrl/pkg/platform/httputil"
	"irrl/pkg/requestcontext"
)

// AdminClaims is what the resolver management endpoints expect inside a
// bearer token.
type AdminClaims struct {
	Subject string `json:"sub"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// RequireAdmin guards mutating resolver endpoints. Tokens are HMAC-signed
// with the shared secret and must carry role "admin".
func RequireAdmin(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	keyFunc := func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", token.Method.Alg())
		}
		return []byte(secret), nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			claims := &AdminClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, keyFunc,
				jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
			if err != nil || !token.Valid {
				logger.WarnContext(r.Context(), "rejected admin token",
					"error", err,
					"request_id", requestcontext.RequestID(r.Context()))
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}
			if claims.Role != "admin" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin role required"))
				return
			}

			ctx := requestcontext.WithActor(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
