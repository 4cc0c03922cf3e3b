package middleware

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/alferius/hw05-final/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const viewerCtxKey = contextKey("viewer")

// RequireAuth rejects requests without a valid Bearer token and puts the
// authenticated viewer into the request context.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		viewer, err := viewerFromRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), viewerCtxKey, viewer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithViewer resolves the viewer when a valid token is present and falls
// back to the anonymous viewer otherwise. Used on public pages where the
// viewer identity only affects display flags (is_edit, following).
func WithViewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		viewer, err := viewerFromRequest(r)
		if err != nil {
			viewer = models.Anonymous()
		}
		ctx := context.WithValue(r.Context(), viewerCtxKey, viewer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func viewerFromRequest(r *http.Request) (models.Viewer, error) {
	jwtSecret := []byte(os.Getenv("JWT_SECRET"))
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return models.Anonymous(), errors.New("missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return models.Anonymous(), errors.New("invalid Authorization header")
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return models.Anonymous(), errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Anonymous(), errors.New("invalid token claims")
	}

	authorID, ok := claims["author_id"].(string)
	if !ok || authorID == "" {
		return models.Anonymous(), errors.New("invalid author_id in token")
	}

	return models.AuthenticatedViewer(authorID), nil
}

// ViewerFromContext extracts the viewer placed by RequireAuth/WithViewer.
// The anonymous viewer is returned for handlers mounted without either.
func ViewerFromContext(ctx context.Context) models.Viewer {
	if v, ok := ctx.Value(viewerCtxKey).(models.Viewer); ok {
		return v
	}
	return models.Anonymous()
}
