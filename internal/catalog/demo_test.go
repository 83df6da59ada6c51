package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelpass/internal/repository/memory"
	"reelpass/pkg/domain"
)

func TestDemoMovies(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	a := DemoMovies("INR", now)
	b := DemoMovies("USD", now.Add(time.Hour))
	require.Len(t, b, len(a))

	purchasable := 0
	for i, m := range a {
		assert.Equal(t, m.ID, b[i].ID, "ids stay stable across seeds")
		assert.Equal(t, "INR", m.Currency)
		if m.Status.Purchasable() {
			purchasable++
		}
	}
	assert.Greater(t, purchasable, 0)
}

func TestDemoMovies_ServeFromMemoryStore(t *testing.T) {
	store := memory.NewStore()
	for _, m := range DemoMovies("INR", time.Now()) {
		store.Movies().Put(m)
	}
	svc := NewService(store.Movies(), nil, 0, nil)

	premieres, err := svc.ListMovies(context.Background(), domain.MovieFilter{Status: domain.MovieStatusPremiere})
	require.NoError(t, err)
	require.NotEmpty(t, premieres)

	m, err := svc.GetMovie(context.Background(), premieres[0].ID)
	require.NoError(t, err)
	assert.Equal(t, premieres[0].Title, m.Title)
}
