package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"reelpass/pkg/domain"
)

// CacheNamespace prefixes every catalog cache key in Redis.
const CacheNamespace = "reelpass"

var demoNamespace = uuid.MustParse("6f1c2d4e-8a0b-4c3d-9e5f-7a6b5c4d3e2f")

// DemoMovies is the local development catalog. Ids derive from titles, so
// reseeding updates rows in place.
func DemoMovies(currency string, now time.Time) []*domain.Movie {
	now = now.UTC()
	premiere := now.Add(-24 * time.Hour)
	soon := now.Add(14 * 24 * time.Hour)
	return []*domain.Movie{
		demoMovie("Kaathal Diaries", "Drama", "Malayalam", "KL", domain.MovieStatusPremiere, 149, &premiere, currency, now),
		demoMovie("Monsoon Relay", "Thriller", "Tamil", "TN", domain.MovieStatusPremiere, 199, &premiere, currency, now),
		demoMovie("Old Harbour", "Comedy", "Malayalam", "KL", domain.MovieStatusLibrary, 79, nil, currency, now),
		demoMovie("Night Market", "Action", "Telugu", "TS", domain.MovieStatusComingSoon, 249, &soon, currency, now),
	}
}

func demoMovie(title, genre, language, state string, status domain.MovieStatus, price int64, premiereAt *time.Time, currency string, now time.Time) *domain.Movie {
	return &domain.Movie{
		ID:         uuid.NewSHA1(demoNamespace, []byte(title)),
		Title:      title,
		Price:      decimal.NewFromInt(price),
		Currency:   currency,
		Genre:      genre,
		Language:   language,
		State:      state,
		Status:     status,
		PremiereAt: premiereAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
