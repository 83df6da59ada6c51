package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"reelpass/pkg/domain"
	"reelpass/pkg/errors"
)

const movieColumns = `id, title, poster_url, price, currency, genre, language, state,
	status, premiere_at, release_at, available_until, created_at, updated_at`

// MovieRepository is a read-only view of the catalog.
type MovieRepository struct {
	db *sqlx.DB
}

func NewMovieRepository(db *sqlx.DB) *MovieRepository {
	return &MovieRepository{db: db}
}

func (r *MovieRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Movie, error) {
	m := &domain.Movie{}
	query := `SELECT ` + movieColumns + ` FROM catalog_schema.movies WHERE id = $1`
	err := r.db.GetContext(ctx, m, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrMovieNotFound
		}
		return nil, errors.Wrap(err, "failed to find movie by id")
	}
	return m, nil
}

func (r *MovieRepository) List(ctx context.Context, f domain.MovieFilter) ([]*domain.Movie, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Genre != "" {
		add("LOWER(genre) = LOWER($%d)", f.Genre)
	}
	if f.Language != "" {
		add("LOWER(language) = LOWER($%d)", f.Language)
	}
	if f.State != "" {
		add("LOWER(state) = LOWER($%d)", f.State)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		add("title ILIKE $%d", "%"+q+"%")
	}

	query := `SELECT ` + movieColumns + ` FROM catalog_schema.movies`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY title LIMIT $` + fmt.Sprint(len(args)+1) + ` OFFSET $` + fmt.Sprint(len(args)+2)
	args = append(args, limit, f.Offset)

	movies := []*domain.Movie{}
	if err := r.db.SelectContext(ctx, &movies, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list movies")
	}
	return movies, nil
}
