package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/dispatchly/ledger-api/internal/domain/entity"
	"github.com/dispatchly/ledger-api/internal/pkg/jwt"
	"github.com/dispatchly/ledger-api/internal/pkg/response"
)

type contextKey string

const (
	EntityKey  contextKey = "entity"
	EmailKey   contextKey = "email"
	RequestKey contextKey = "request_id"
)

// Auth returns middleware that validates JWT and resolves the calling entity
func Auth(jwtService *jwt.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := jwtService.ValidateAccessToken(parts[1])
			if err != nil {
				if err == jwt.ErrExpiredToken {
					response.Unauthorized(w, "Token expired")
				} else {
					response.Unauthorized(w, "Invalid token")
				}
				return
			}

			entityType, err := entity.ParseType(claims.EntityType)
			if err != nil {
				response.Forbidden(w, "Token does not belong to a wallet holder")
				return
			}

			ctx := context.WithValue(r.Context(), EntityKey, entity.NewRef(claims.EntityID, entityType))
			ctx = context.WithValue(ctx, EmailKey, claims.Email)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetEntity extracts the authenticated entity from context
func GetEntity(ctx context.Context) (entity.Ref, bool) {
	ref, ok := ctx.Value(EntityKey).(entity.Ref)
	return ref, ok && ref.Valid()
}

// GetEmail extracts the authenticated entity's email from context
func GetEmail(ctx context.Context) string {
	if email, ok := ctx.Value(EmailKey).(string); ok {
		return email
	}
	return ""
}

// WithEntity attaches an entity to ctx as Auth would.
func WithEntity(ctx context.Context, ref entity.Ref, email string) context.Context {
	ctx = context.WithValue(ctx, EntityKey, ref)
	return context.WithValue(ctx, EmailKey, email)
}
