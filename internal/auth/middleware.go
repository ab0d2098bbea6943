package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey struct{}

var userContextKey contextKey

// UserFromContext returns the authenticated user attached by the middleware.
func UserFromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(userContextKey).(User)
	return user, ok
}

// RequireAuth rejects with 401 unless the request carries a valid bearer
// access token naming an existing user. Every failure mode, including an
// unexpected store error, collapses to 401: auth failures are never
// distinguishable from server errors here.
func RequireAuth(service *Service, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Access token is required")
			return
		}

		claims, err := service.VerifyAccessToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired access token")
			return
		}

		user, err := service.GetUserByID(r.Context(), claims.UserID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Authentication failed")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	})
}

// OptionalAuth attaches the user when a valid token is present and proceeds
// anonymously on any failure. It never rejects.
func OptionalAuth(service *Service, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := service.VerifyAccessToken(token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		user, err := service.GetUserByID(r.Context(), claims.UserID)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	})
}

// RequireOwner answers whether the request may act on a resource owned by
// ownerID, writing 401 or 403 when it may not. Pure comparison, no I/O.
func RequireOwner(w http.ResponseWriter, r *http.Request, ownerID string) bool {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Access token is required")
		return false
	}
	if user.ID != ownerID {
		writeError(w, http.StatusForbidden, "You do not have access to this resource")
		return false
	}

	return true
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}
