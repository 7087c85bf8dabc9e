package httpadapter

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/workspace-ingest/internal/core/domain"
)

type ownerContextKey struct{}

func ownerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerContextKey{}).(string)
	return owner
}

// authenticated resolves the caller from an HS256 bearer token; the "sub" claim is the owner id.
func (rt *Router) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := rt.ownerFromBearer(r.Header.Get("Authorization"))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="workspace-ingest"`)
			writeError(w, domain.WrapError(domain.ErrUnauthorized, "authenticate", err))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ownerContextKey{}, owner)))
	})
}

func (rt *Router) ownerFromBearer(headerValue string) (string, error) {
	if len(rt.jwtSecret) == 0 {
		return "", errors.New("authentication is not configured")
	}
	headerValue = strings.TrimSpace(headerValue)
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(headerValue, bearerPrefix) {
		return "", errors.New("bearer token is required")
	}
	raw := strings.TrimSpace(strings.TrimPrefix(headerValue, bearerPrefix))

	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return rt.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	subject, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("token subject is empty")
	}
	return subject, nil
}
