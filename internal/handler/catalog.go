package handler

import (
	"errors"
	"net/http"
	"strings"

	"reelpass/internal/catalog"
	"reelpass/internal/tier"
	"reelpass/pkg/domain"
	pkgerrors "reelpass/pkg/errors"
)

type CatalogHandler struct {
	catalog *catalog.Service
	tiers   *tier.Catalog
	logger  Logger
}

func NewCatalogHandler(c *catalog.Service, tiers *tier.Catalog, log Logger) *CatalogHandler {
	return &CatalogHandler{catalog: c, tiers: tiers, logger: log}
}

// ListTiers returns the purchase tiers, smallest device ceiling first.
func (h *CatalogHandler) ListTiers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"tiers": h.tiers.List()})
}

func (h *CatalogHandler) ListMovies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := pagination(r)
	f := domain.MovieFilter{
		Status:   domain.MovieStatus(strings.ToLower(q.Get("status"))),
		Genre:    q.Get("genre"),
		Language: q.Get("language"),
		State:    q.Get("state"),
		Query:    q.Get("q"),
		Limit:    limit,
		Offset:   offset,
	}
	switch f.Status {
	case "", domain.MovieStatusPremiere, domain.MovieStatusComingSoon, domain.MovieStatusLibrary:
	default:
		respondValidationErrors(w, map[string]string{"status": "must be one of premiere, coming_soon, library"})
		return
	}

	movies, err := h.catalog.ListMovies(r.Context(), f)
	if err != nil {
		h.logger.Error("Failed to list movies", map[string]interface{}{"error": err.Error()})
		respondError(w, http.StatusServiceUnavailable, "persistence_error", "Temporarily unavailable, please retry")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"movies": movies,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *CatalogHandler) GetMovie(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	m, err := h.catalog.GetMovie(r.Context(), id)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrMovieNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "Movie not found")
			return
		}
		h.logger.Error("Failed to get movie", map[string]interface{}{"error": err.Error(), "movie_id": id})
		respondError(w, http.StatusServiceUnavailable, "persistence_error", "Temporarily unavailable, please retry")
		return
	}
	respondJSON(w, http.StatusOK, m)
}
