// Package catalog is the read-only view of purchasable titles.
package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"reelpass/pkg/cache"
	"reelpass/pkg/domain"
	"reelpass/pkg/errors"
	"reelpass/pkg/logger"
)

const maxPageSize = 100

// Repository reads catalog entries from the backing store.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Movie, error)
	List(ctx context.Context, f domain.MovieFilter) ([]*domain.Movie, error)
}

// Cache stores serialised movies. Get returns an error on a miss.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Service struct {
	repo   Repository
	cache  Cache
	ttl    time.Duration
	logger logger.Logger
}

// NewService constructs a catalog Service. A nil cache disables caching.
func NewService(repo Repository, cache Cache, ttl time.Duration, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{repo: repo, cache: cache, ttl: ttl, logger: log}
}

func movieKey(id uuid.UUID) string {
	return "movie:" + id.String()
}

// GetMovie returns a movie, trying the cache first.
func (s *Service) GetMovie(ctx context.Context, id uuid.UUID) (*domain.Movie, error) {
	key := movieKey(id)
	if s.cache != nil {
		var m domain.Movie
		err := s.cache.Get(ctx, key, &m)
		if err == nil {
			return &m, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("Catalog cache read failed", map[string]interface{}{
				"movie_id": id,
				"error":    err.Error(),
			})
		}
	}

	m, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, errors.ErrMovieNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to get movie")
	}

	if s.cache != nil && s.ttl > 0 {
		if err := s.cache.Set(ctx, key, m, s.ttl); err != nil {
			s.logger.Warn("Catalog cache write failed", map[string]interface{}{
				"movie_id": id,
				"error":    err.Error(),
			})
		}
	}
	return m, nil
}

// ListMovies returns catalog entries matching f, ordered by title.
func (s *Service) ListMovies(ctx context.Context, f domain.MovieFilter) ([]*domain.Movie, error) {
	if f.Limit <= 0 || f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	movies, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list movies")
	}
	return movies, nil
}

// Invalidate drops the cached copy of a movie.
func (s *Service) Invalidate(ctx context.Context, id uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, movieKey(id))
}
