package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/utafrali/ordersaga/pkg/errors"
	"github.com/utafrali/ordersaga/pkg/httputil"
)

type contextKey string

const subjectKey contextKey = "subject"

// RequireRole accepts HS256 bearer tokens signed with secret whose "role"
// claim equals role. The token subject is stored in the request context.
func RequireRole(secret, role string, l *slog.Logger) func(http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	key := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			scheme, tokenString, ok := strings.Cut(header, " ")
			if header == "" || !ok || !strings.EqualFold(scheme, "bearer") {
				httputil.WriteError(w, r, apperrors.Unauthorized("missing bearer token"), l)
				return
			}

			claims := jwt.MapClaims{}
			token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
				return key, nil
			})
			if err != nil || !token.Valid {
				l.WarnContext(r.Context(), "rejected token",
					slog.String("path", r.URL.Path),
					slog.String("error", errString(err)),
				)
				httputil.WriteError(w, r, apperrors.Unauthorized("invalid or expired token"), l)
				return
			}

			if got, _ := claims["role"].(string); got != role {
				httputil.WriteError(w, r, apperrors.Forbidden("insufficient permissions"), l)
				return
			}

			sub, _ := claims.GetSubject()
			ctx := context.WithValue(r.Context(), subjectKey, sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubjectFromContext returns the authenticated token subject or "".
func SubjectFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(subjectKey).(string); ok {
		return s
	}
	return ""
}

func errString(err error) string {
	if err != nil {
		return err.Error()
	}
	return ""
}
