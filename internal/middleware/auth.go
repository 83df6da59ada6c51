// Package middleware hosts authentication, logging, and rate limiting middleware.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"reelpass/pkg/logger"
)

// contextKey avoids collisions when storing values in request contexts.
type contextKey string

const (
	ctxUserIDKey   contextKey = "user_id"
	ctxEmailKey    contextKey = "email"
	ctxUserTypeKey contextKey = "user_type"
	ctxTokenKey    contextKey = "token"
)

// Token is the verified bearer token of the current request.
type Token struct {
	Raw       string
	ExpiresAt time.Time
}

// TokenBlacklist reports revoked bearer tokens.
type TokenBlacklist interface {
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

// AuthMiddleware validates bearer JWTs issued by the identity provider and
// injects the caller identity into the context.
type AuthMiddleware struct {
	jwtSecret string
	blacklist TokenBlacklist
	logger    logger.Logger
}

// NewAuthMiddleware constructs an AuthMiddleware. blacklist may be nil.
func NewAuthMiddleware(secret string, blacklist TokenBlacklist, log logger.Logger) *AuthMiddleware {
	if log == nil {
		log = logger.NewNop()
	}
	return &AuthMiddleware{jwtSecret: secret, blacklist: blacklist, logger: log}
}

// Authenticate enforces bearer auth and populates user details on the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if strings.TrimSpace(authHeader) == "" {
			unauthenticated(w, "Authorization header required")
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			unauthenticated(w, "Invalid authorization format")
			return
		}
		tokenString := parts[1]

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(m.jwtSecret), nil
		}, jwt.WithLeeway(5*time.Second))
		if err != nil || !token.Valid {
			unauthenticated(w, "Invalid token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			unauthenticated(w, "Invalid token claims")
			return
		}

		userIDStr, ok := claims["user_id"].(string)
		if !ok {
			unauthenticated(w, "Invalid user ID in token")
			return
		}
		userID, err := uuid.Parse(userIDStr)
		if err != nil || userID == uuid.Nil {
			unauthenticated(w, "Invalid user ID format")
			return
		}

		if m.blacklist != nil {
			revoked, err := m.blacklist.IsBlacklisted(r.Context(), tokenString)
			if err != nil {
				m.logger.Warn("Token blacklist lookup failed", map[string]interface{}{
					"error":      err.Error(),
					"request_id": RequestIDFromContext(r.Context()),
				})
			}
			if revoked {
				unauthenticated(w, "Token revoked")
				return
			}
		}

		ctx := context.WithValue(r.Context(), ctxUserIDKey, userID)
		tok := Token{Raw: tokenString}
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			tok.ExpiresAt = exp.Time
		}
		ctx = context.WithValue(ctx, ctxTokenKey, tok)
		if email, ok := claims["email"].(string); ok {
			ctx = context.WithValue(ctx, ctxEmailKey, email)
		}
		if userType, ok := claims["user_type"].(string); ok {
			ctx = context.WithValue(ctx, ctxUserTypeKey, userType)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUserType rejects authenticated callers whose user_type claim differs.
func RequireUserType(userType string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := UserIDFromContext(r.Context()); !ok {
				unauthenticated(w, "Authentication required")
				return
			}
			if t, _ := UserTypeFromContext(r.Context()); t != userType {
				jsonError(w, http.StatusForbidden, "forbidden", "Insufficient privileges")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext returns the authenticated user's UUID from context.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	v := ctx.Value(ctxUserIDKey)
	id, ok := v.(uuid.UUID)
	return id, ok
}

// EmailFromContext returns the authenticated user's email from context.
func EmailFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(ctxEmailKey)
	s, ok := v.(string)
	return s, ok
}

// UserTypeFromContext returns the authenticated user's type from context.
func UserTypeFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(ctxUserTypeKey)
	s, ok := v.(string)
	return s, ok
}

// TokenFromContext returns the bearer token verified by Authenticate.
func TokenFromContext(ctx context.Context) (Token, bool) {
	t, ok := ctx.Value(ctxTokenKey).(Token)
	return t, ok
}

func unauthenticated(w http.ResponseWriter, message string) {
	jsonError(w, http.StatusUnauthorized, "unauthenticated", message)
}
