package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"reelpass/pkg/errors"
	"reelpass/pkg/logger"
)

const (
	maxIdempotencyKeyLen = 128
	maxCapturedBody      = 1 << 20
)

// IdempotencyMiddleware enforces Idempotency-Key usage for unsafe methods and
// replays the first response for a repeated key.
type IdempotencyMiddleware struct {
	cache  *redis.Client
	ttl    time.Duration
	wait   time.Duration
	logger logger.Logger
}

// NewIdempotencyMiddleware constructs an IdempotencyMiddleware with a TTL.
func NewIdempotencyMiddleware(cache *redis.Client, ttl time.Duration, log logger.Logger) *IdempotencyMiddleware {
	if log == nil {
		log = logger.NewNop()
	}
	return &IdempotencyMiddleware{
		cache:  cache,
		ttl:    ttl,
		wait:   5 * time.Second,
		logger: log,
	}
}

// Require blocks duplicate POST/PUT/PATCH/DELETE requests with the same key.
// Keys are scoped to the authenticated caller, so it must run after
// Authenticate. It expects the header: Idempotency-Key.
func (m *IdempotencyMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodPut &&
			r.Method != http.MethodPatch && r.Method != http.MethodDelete {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("Idempotency-Key")
		if key == "" || len(key) > maxIdempotencyKeyLen {
			jsonError(w, http.StatusBadRequest, "invalid_request", "Idempotency-Key header required")
			return
		}

		scope := "anonymous"
		if userID, ok := UserIDFromContext(r.Context()); ok && userID != uuid.Nil {
			scope = userID.String()
		}
		dataKey := fmt.Sprintf("reelpass:idempotency:data:%s:%s:%s:%s", scope, r.Method, r.URL.Path, key)
		lockKey := fmt.Sprintf("reelpass:idempotency:lock:%s:%s:%s:%s", scope, r.Method, r.URL.Path, key)
		fields := map[string]interface{}{
			"idempotency_key": key,
			"path":            r.URL.Path,
			"request_id":      RequestIDFromContext(r.Context()),
		}

		// Fast path: cached response exists
		if m.replayCached(w, r, dataKey) {
			m.logger.Debug("Idempotent replay", fields)
			return
		}

		requestID := RequestIDFromContext(r.Context())
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ok, err := m.cache.SetNX(r.Context(), lockKey, requestID, m.ttl).Result()
		if err != nil {
			fields["error"] = err.Error()
			m.logger.Error("Idempotency lock failed", fields)
			jsonError(w, http.StatusServiceUnavailable, "persistence_error", "Idempotency store unavailable")
			return
		}

		if !ok {
			// Another request in flight; wait for it to complete.
			deadline := time.Now().Add(m.wait)
			for time.Now().Before(deadline) {
				select {
				case <-r.Context().Done():
					return
				case <-time.After(100 * time.Millisecond):
				}
				if m.replayCached(w, r, dataKey) {
					m.logger.Debug("Idempotent replay after wait", fields)
					return
				}
			}
			m.logger.Warn("Idempotency conflict", fields)
			jsonError(w, http.StatusConflict, "duplicate_request", errors.ErrDuplicateRequest.Error())
			return
		}
		defer m.cache.Del(r.Context(), lockKey)

		cw := newCaptureWriter(w, maxCapturedBody)
		next.ServeHTTP(cw, r)

		if err := m.cacheResponse(r, dataKey, cw); err != nil {
			fields["error"] = err.Error()
			m.logger.Warn("Idempotency response not cached", fields)
		}
	})
}

type capturedResponse struct {
	Status  int               `json:"status"`
	Body    []byte            `json:"body"`
	Headers map[string]string `json:"headers"`
}

func (m *IdempotencyMiddleware) replayCached(w http.ResponseWriter, r *http.Request, dataKey string) bool {
	payload, err := m.cache.Get(r.Context(), dataKey).Bytes()
	if err != nil {
		return false
	}

	var cr capturedResponse
	if err := json.Unmarshal(payload, &cr); err != nil {
		return false
	}

	for k, v := range cr.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(cr.Status)
	_, _ = w.Write(cr.Body)
	return true
}

// cacheResponse stores the response unless it signals a retryable failure.
func (m *IdempotencyMiddleware) cacheResponse(r *http.Request, dataKey string, cw *captureWriter) error {
	if cw.status == 0 || cw.status >= http.StatusInternalServerError || cw.truncated {
		return nil
	}

	payload, err := json.Marshal(capturedResponse{
		Status:  cw.status,
		Body:    cw.buf,
		Headers: cw.headers,
	})
	if err != nil {
		return err
	}
	return m.cache.Set(r.Context(), dataKey, payload, m.ttl).Err()
}

type captureWriter struct {
	http.ResponseWriter
	buf       []byte
	limit     int
	truncated bool
	status    int
	headers   map[string]string
}

func newCaptureWriter(w http.ResponseWriter, limit int) *captureWriter {
	return &captureWriter{
		ResponseWriter: w,
		buf:            make([]byte, 0, 1024),
		limit:          limit,
		headers:        make(map[string]string),
	}
}

func (w *captureWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	for k, v := range w.ResponseWriter.Header() {
		if len(v) > 0 {
			w.headers[k] = v[0]
		}
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	if space := w.limit - len(w.buf); space < len(p) {
		w.truncated = true
		if space > 0 {
			w.buf = append(w.buf, p[:space]...)
		}
	} else {
		w.buf = append(w.buf, p...)
	}
	return w.ResponseWriter.Write(p)
}
