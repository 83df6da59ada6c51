package handler

import (
	"context"
	"net/http"
	"time"

	"reelpass/internal/middleware"
)

// noExpiryRevocation bounds the blacklist entry of a token without exp.
const noExpiryRevocation = 30 * 24 * time.Hour

// TokenRevoker blacklists bearer tokens.
type TokenRevoker interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
}

type SessionHandler struct {
	revoker TokenRevoker
	logger  Logger
	now     func() time.Time
}

func NewSessionHandler(revoker TokenRevoker, log Logger) *SessionHandler {
	return &SessionHandler{revoker: revoker, logger: log, now: time.Now}
}

// Logout revokes the caller's bearer token for the rest of its lifetime.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	tok, ok := middleware.TokenFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "Sign in to continue")
		return
	}
	ttl := noExpiryRevocation
	if !tok.ExpiresAt.IsZero() {
		ttl = tok.ExpiresAt.Sub(h.now())
	}
	if err := h.revoker.Revoke(r.Context(), tok.Raw, ttl); err != nil {
		h.logger.Error("Token revocation failed", map[string]interface{}{
			"error":      err.Error(),
			"user_id":    callerID(r),
			"request_id": middleware.RequestIDFromContext(r.Context()),
		})
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"error":     "persistence_error",
			"message":   "Temporarily unavailable, please retry",
			"retryable": true,
		})
		return
	}
	h.logger.Info("Session revoked", map[string]interface{}{"user_id": callerID(r)})
	w.WriteHeader(http.StatusNoContent)
}
