package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelpass/internal/catalog"
	"reelpass/internal/entitlement"
	"reelpass/internal/middleware"
	"reelpass/internal/repository/memory"
	"reelpass/internal/tier"
	"reelpass/pkg/domain"
	"reelpass/pkg/logger"
	"reelpass/pkg/validator"
)

const (
	secret    = "handler-test-secret"
	appOrigin = "https://app.reelpass.example"
)

// revokedTokens is both the revoker behind logout and the auth blacklist.
type revokedTokens struct {
	mu     sync.Mutex
	tokens map[string]time.Duration
	err    error
}

func (r *revokedTokens) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.tokens[token] = ttl
	return nil
}

func (r *revokedTokens) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tokens[token]
	return ok, nil
}

type server struct {
	router  *mux.Router
	revoked *revokedTokens
	store   *memory.Store
	movie   *domain.Movie
	soon    *domain.Movie
	now     time.Time
}

func newServer(t *testing.T) *server {
	t.Helper()
	s := &server{
		store:   memory.NewStore(),
		revoked: &revokedTokens{tokens: map[string]time.Duration{}},
		now:     time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}
	s.movie = &domain.Movie{ID: uuid.New(), Title: "Aavesham", Price: decimal.NewFromInt(149), Currency: "INR", Language: "Malayalam", Status: domain.MovieStatusPremiere}
	s.soon = &domain.Movie{ID: uuid.New(), Title: "Coming Up", Language: "Tamil", Status: domain.MovieStatusComingSoon}
	s.store.Movies().Put(s.movie)
	s.store.Movies().Put(s.soon)

	tiers, err := tier.NewCatalog(tier.Defaults("INR"))
	require.NoError(t, err)
	log := logger.NewNop()
	cat := catalog.NewService(s.store.Movies(), nil, 0, log)
	svc := entitlement.NewService(s.store.Purchases(), s.store.Devices(), cat, tiers, nil, log, entitlement.Options{
		Now: func() time.Time { return s.now },
	})

	s.router = mux.NewRouter()
	s.router.Use(middleware.CORS([]string{appOrigin}))
	Routes{
		Entitlement: NewEntitlementHandler(svc, validator.New(), log),
		Catalog:     NewCatalogHandler(cat, tiers, log),
		System:      NewSystemHandler(log, Check{Name: "store", Ping: func(context.Context) error { return nil }}),
		Session:     NewSessionHandler(s.revoked, log),
		Auth:        middleware.NewAuthMiddleware(secret, s.revoked, log).Authenticate,
	}.Register(s.router)
	return s
}

func token(t *testing.T, userID uuid.UUID, userType string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":   userID.String(),
		"user_type": userType,
		"exp":       time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func (s *server) do(t *testing.T, method, path, bearer string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func (s *server) createPurchase(t *testing.T, bearer string, maxDevices int) string {
	t.Helper()
	w, body := s.do(t, http.MethodPost, "/api/v1/purchases", bearer, map[string]interface{}{
		"movie_id":    s.movie.ID,
		"max_devices": maxDevices,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return body["id"].(string)
}

func TestPublicRoutes(t *testing.T) {
	s := newServer(t)

	w, body := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])

	w, body = s.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", body["status"])

	w, body = s.do(t, http.MethodGet, "/api/v1/tiers", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["tiers"], 3)

	w, body = s.do(t, http.MethodGet, "/api/v1/movies?language=malayalam", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["movies"], 1)

	w, _ = s.do(t, http.MethodGet, "/api/v1/movies?status=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = s.do(t, http.MethodGet, "/api/v1/movies/"+s.movie.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Aavesham", body["title"])

	w, _ = s.do(t, http.MethodGet, "/api/v1/movies/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreatePurchase(t *testing.T) {
	s := newServer(t)
	bearer := token(t, uuid.New(), "viewer")

	w, body := s.do(t, http.MethodPost, "/api/v1/purchases", "", map[string]interface{}{"movie_id": s.movie.ID, "max_devices": 1})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthenticated", body["error"])

	w, body = s.do(t, http.MethodPost, "/api/v1/purchases", bearer, map[string]interface{}{"max_devices": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["validation_errors"], "movie_id")

	w, body = s.do(t, http.MethodPost, "/api/v1/purchases", bearer, map[string]interface{}{"movie_id": s.movie.ID, "tier_id": "platinum"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", body["error"])

	w, body = s.do(t, http.MethodPost, "/api/v1/purchases", bearer, map[string]interface{}{"movie_id": s.soon.ID, "tier_id": "single"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "movie_not_purchasable", body["error"])

	w, body = s.do(t, http.MethodPost, "/api/v1/purchases", bearer, map[string]interface{}{"movie_id": s.movie.ID, "tier_id": "family"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, float64(3), body["max_devices"])
	assert.Equal(t, s.now.Add(30*24*time.Hour).Format(time.RFC3339), body["expires_at"])
}

func TestDeviceLimitScenario(t *testing.T) {
	s := newServer(t)
	bearer := token(t, uuid.New(), "viewer")
	id := s.createPurchase(t, bearer, 1)

	w, body := s.do(t, http.MethodPost, "/api/v1/purchases/"+id+"/devices", bearer, map[string]interface{}{
		"device_fingerprint": "fp1_mac_book",
		"device_name":        "Mac",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, float64(1), body["device_count"])
	device := body["device"].(map[string]interface{})

	w, body = s.do(t, http.MethodPost, "/api/v1/purchases/"+id+"/devices", bearer, map[string]interface{}{
		"device_fingerprint": "fp1_mac_book",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "reused", body["outcome"])

	w, body = s.do(t, http.MethodPost, "/api/v1/purchases/"+id+"/devices", bearer, map[string]interface{}{
		"device_fingerprint": "fp2_gaming_pc",
	})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "device_limit_exceeded", body["error"])
	assert.Equal(t, float64(1), body["device_count"])
	assert.Equal(t, float64(1), body["max_devices"])

	w, _ = s.do(t, http.MethodDelete, "/api/v1/purchases/"+id+"/devices/"+device["id"].(string), bearer, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, body = s.do(t, http.MethodPost, "/api/v1/purchases/"+id+"/devices", bearer, map[string]interface{}{
		"signals": map[string]interface{}{"language": "en-IN", "screen_width": 1920, "screen_height": 1080},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "Windows PC", body["device"].(map[string]interface{})["device_name"])

	w, body = s.do(t, http.MethodGet, "/api/v1/purchases/"+id+"/devices", bearer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["devices"], 1)

	w, body = s.do(t, http.MethodPost, "/api/v1/purchases/"+id+"/devices", bearer, map[string]interface{}{
		"device_fingerprint": "bad fingerprint!",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["validation_errors"], "device_fingerprint")
}

func TestPlaybackLifecycle(t *testing.T) {
	s := newServer(t)
	bearer := token(t, uuid.New(), "viewer")
	id := s.createPurchase(t, bearer, 2)

	w, body := s.do(t, http.MethodPost, "/api/v1/purchases/"+id+"/authorize", bearer, map[string]interface{}{
		"device_fingerprint": "fp_living_room_tv",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "in_progress", body["usability"])
	assert.Equal(t, false, body["already_started"])
	expires := body["purchase"].(map[string]interface{})["playback_expires_at"]
	assert.Equal(t, s.now.Add(48*time.Hour).Format(time.RFC3339), expires)

	s.now = s.now.Add(time.Hour)
	w, body = s.do(t, http.MethodPost, "/api/v1/purchases/"+id+"/playback", bearer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["already_started"])
	assert.Equal(t, expires, body["purchase"].(map[string]interface{})["playback_expires_at"])

	s.now = s.now.Add(48 * time.Hour)
	w, body = s.do(t, http.MethodGet, "/api/v1/purchases/"+id, bearer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "playback_window_expired", body["usability"])

	w, body = s.do(t, http.MethodPost, "/api/v1/purchases/"+id+"/authorize", bearer, map[string]interface{}{
		"device_fingerprint": "fp_living_room_tv",
	})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "purchase_not_usable", body["error"])
	assert.Equal(t, "playback_window_expired", body["usability"])
}

func TestOwnershipAndListing(t *testing.T) {
	s := newServer(t)
	owner := token(t, uuid.New(), "viewer")
	other := token(t, uuid.New(), "viewer")
	id := s.createPurchase(t, owner, 1)

	w, _ := s.do(t, http.MethodGet, "/api/v1/purchases/"+id, other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/purchases/not-a-uuid", owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body := s.do(t, http.MethodGet, "/api/v1/purchases?limit=500", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["purchases"], 1)
	assert.Equal(t, float64(maxPageSize), body["limit"])
}

func TestAdminRevoke(t *testing.T) {
	s := newServer(t)
	viewer := token(t, uuid.New(), "viewer")
	admin := token(t, uuid.New(), "admin")
	id := s.createPurchase(t, viewer, 1)

	w, _ := s.do(t, http.MethodPost, "/api/v1/admin/purchases/"+id+"/revoke", viewer, map[string]string{"reason": "refund"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/admin/purchases/"+id+"/revoke", admin, map[string]string{"reason": "refund"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/admin/purchases/"+uuid.NewString()+"/revoke", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body := s.do(t, http.MethodGet, "/api/v1/purchases/"+id, viewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "revoked", body["usability"])
}

func TestRespondServiceError_Persistence(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	respondServiceError(w, logger.NewNop(), r, &entitlement.PersistenceError{Op: "find_purchase", Err: context.DeadlineExceeded})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "persistence_error")

	w = httptest.NewRecorder()
	respondServiceError(w, logger.NewNop(), r, errors.New("unexpected"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestReady_Outage(t *testing.T) {
	h := NewSystemHandler(logger.NewNop(), Check{Name: "postgres", Ping: func(context.Context) error {
		return errors.New("connection refused")
	}})
	w := httptest.NewRecorder()
	h.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "outage")
}

func TestPreflight(t *testing.T) {
	s := newServer(t)

	for _, path := range []string{"/api/v1/purchases", "/api/v1/purchases/" + uuid.NewString() + "/devices", "/api/v1/movies"} {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		req.Header.Set("Origin", appOrigin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Authorization, Idempotency-Key")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code, path)
		assert.Equal(t, appOrigin, w.Header().Get("Access-Control-Allow-Origin"), path)
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
	}

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/purchases", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCrossOriginRequestCarriesCORSHeaders(t *testing.T) {
	s := newServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tiers", nil)
	req.Header.Set("Origin", appOrigin)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, appOrigin, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestLogout(t *testing.T) {
	s := newServer(t)
	bearer := token(t, uuid.New(), "viewer")

	w, _ := s.do(t, http.MethodPost, "/api/v1/session/logout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/purchases", bearer, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/session/logout", bearer, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	ttl := s.revoked.tokens[bearer]
	assert.True(t, ttl > 59*time.Minute && ttl <= time.Hour, ttl.String())

	w, body := s.do(t, http.MethodGet, "/api/v1/purchases", bearer, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthenticated", body["error"])
}

func TestLogout_RevokerDown(t *testing.T) {
	s := newServer(t)
	s.revoked.err = errors.New("redis down")
	bearer := token(t, uuid.New(), "viewer")

	w, body := s.do(t, http.MethodPost, "/api/v1/session/logout", bearer, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "persistence_error", body["error"])
}
