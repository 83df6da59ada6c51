// Seeding tool for a local demo catalog.
//
// Reads DATABASE_URL and REDIS_URL via reelpass/pkg/config. Titles are keyed
// by a deterministic id, so running it twice updates rather than duplicates.
// Cached copies of seeded titles are dropped when Redis is reachable.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"reelpass/internal/catalog"
	"reelpass/internal/repository/postgres"
	"reelpass/pkg/cache"
	"reelpass/pkg/config"
	"reelpass/pkg/logger"
)

const upsertMovie = `
	INSERT INTO catalog_schema.movies (
		id, title, price, currency, genre, language, state, status, premiere_at, created_at, updated_at
	) VALUES (
		:id, :title, :price, :currency, :genre, :language, :state, :status, :premiere_at, :created_at, :updated_at
	)
	ON CONFLICT (id) DO UPDATE SET
		title = EXCLUDED.title,
		price = EXCLUDED.price,
		status = EXCLUDED.status,
		premiere_at = EXCLUDED.premiere_at,
		updated_at = EXCLUDED.updated_at`

func main() {
	log := logger.New("seed-catalog")

	cfg := config.Load()
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL environment variable is required", nil)
	}

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var movieCache catalog.Cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("Redis unavailable; cached titles expire on their own", map[string]interface{}{"error": err.Error()})
	} else {
		movieCache = cache.NewRedisCache(redisClient, catalog.CacheNamespace)
	}
	catalogService := catalog.NewService(postgres.NewMovieRepository(db), movieCache, cfg.Catalog.CacheTTL, log)

	movies := catalog.DemoMovies(cfg.Tiers.Currency, time.Now())
	for _, m := range movies {
		if _, err := db.NamedExecContext(ctx, upsertMovie, m); err != nil {
			log.Fatal("Seeding movie failed", map[string]interface{}{"title": m.Title, "error": err.Error()})
		}
		if err := catalogService.Invalidate(ctx, m.ID); err != nil {
			log.Warn("Cache invalidation failed", map[string]interface{}{"movie_id": m.ID, "error": err.Error()})
		}
		log.Info("Movie seeded", map[string]interface{}{"id": m.ID, "title": m.Title, "status": m.Status})
	}

	fmt.Printf("OK: %d movies seeded\n", len(movies))
}
