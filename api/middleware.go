/*
middleware.go - Role-gated access via JWT bearer tokens

PURPOSE:
  The monthly review workflow needs a role boundary: staff submit their own
  month, only admins approve or reject. Tokens are issued elsewhere (the
  identity side of the platform); this middleware only verifies the HS256
  signature and reads the "sub" and "role" claims.

DEV MODE:
  With an empty secret the middleware passes every request through with an
  admin identity, which keeps local development and tests friction-free.
  Full authentication is out of scope here.
*/
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const (
	ctxActorID ctxKey = "actor_id"
	ctxRole    ctxKey = "role"
)

const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// Auth verifies the bearer token and stashes the actor id and role in the
// request context. Empty secret disables verification (dev mode).
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				ctx := context.WithValue(r.Context(), ctxActorID, "dev")
				ctx = context.WithValue(ctx, ctxRole, RoleAdmin)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
				return
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims := jwt.MapClaims{}
			tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				writeError(w, http.StatusUnauthorized, "Invalid token", err)
				return
			}

			sub, _ := claims["sub"].(string)
			role, _ := claims["role"].(string)
			ctx := context.WithValue(r.Context(), ctxActorID, sub)
			ctx = context.WithValue(ctx, ctxRole, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects requests whose token role is not in the allowed set.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, _ := r.Context().Value(ctxRole).(string)
			if !allowed[role] {
				writeError(w, http.StatusForbidden, "Forbidden", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// actorID returns the authenticated actor, or "unknown" outside Auth.
func actorID(r *http.Request) string {
	if id, ok := r.Context().Value(ctxActorID).(string); ok && id != "" {
		return id
	}
	return "unknown"
}
