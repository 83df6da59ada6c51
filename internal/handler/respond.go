// Package handler exposes the entitlement and catalog services over HTTP/JSON.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"reelpass/internal/entitlement"
	"reelpass/internal/middleware"
	"reelpass/internal/tier"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
	maxBodyBytes    = 64 << 10
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{"error": code, "message": message})
}

func respondValidationErrors(w http.ResponseWriter, errs map[string]string) {
	respondJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":             "validation_failed",
		"validation_errors": errs,
	})
}

// respondServiceError maps the entitlement error taxonomy onto HTTP.
func respondServiceError(w http.ResponseWriter, log Logger, r *http.Request, err error) {
	var (
		notUsable *entitlement.NotUsableError
		limit     *entitlement.DeviceLimitError
		perr      *entitlement.PersistenceError
	)
	switch {
	case errors.Is(err, entitlement.ErrUnauthenticated):
		respondError(w, http.StatusUnauthorized, "unauthenticated", "Sign in to continue")
	case errors.As(err, &notUsable):
		respondJSON(w, http.StatusConflict, map[string]interface{}{
			"error":     "purchase_not_usable",
			"message":   "This purchase can no longer be played",
			"usability": notUsable.Usability,
		})
	case errors.As(err, &limit):
		respondJSON(w, http.StatusConflict, map[string]interface{}{
			"error":        "device_limit_exceeded",
			"message":      "Remove a device to watch here",
			"device_count": limit.Count,
			"max_devices":  limit.Max,
		})
	case errors.Is(err, entitlement.ErrPurchaseNotFound):
		respondError(w, http.StatusNotFound, "not_found", "Purchase not found")
	case errors.Is(err, entitlement.ErrDeviceNotFound):
		respondError(w, http.StatusNotFound, "not_found", "Device not found")
	case errors.Is(err, entitlement.ErrMovieNotFound):
		respondError(w, http.StatusNotFound, "not_found", "Movie not found")
	case errors.Is(err, entitlement.ErrMovieNotPurchasable):
		respondError(w, http.StatusConflict, "movie_not_purchasable", err.Error())
	case errors.Is(err, tier.ErrUnknownTier):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, entitlement.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request")
	case errors.As(err, &perr):
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"error":     "persistence_error",
			"message":   "Temporarily unavailable, please retry",
			"retryable": true,
		})
	default:
		log.Error("Unhandled service error", map[string]interface{}{
			"error":      err.Error(),
			"path":       r.URL.Path,
			"request_id": middleware.RequestIDFromContext(r.Context()),
		})
		respondError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

// decodeJSON reads a bounded JSON body into dst. An empty body is allowed
// when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, optional bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
	return false
}

// pathUUID parses a mux path variable, writing a 404 when it is malformed.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		respondError(w, http.StatusNotFound, "not_found", "Not found")
		return uuid.Nil, false
	}
	return id, true
}

// pagination reads limit and offset query parameters.
func pagination(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

// callerID returns the authenticated caller, or uuid.Nil. The service
// rejects uuid.Nil as unauthenticated.
func callerID(r *http.Request) uuid.UUID {
	id, _ := middleware.UserIDFromContext(r.Context())
	return id
}
