// ==============================================================================
// ENTITLEMENT SERVICE MAIN - cmd/entitlement/main.go
// ==============================================================================
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"reelpass/internal/catalog"
	"reelpass/internal/entitlement"
	"reelpass/internal/handler"
	"reelpass/internal/metrics"
	"reelpass/internal/middleware"
	"reelpass/internal/repository/memory"
	"reelpass/internal/repository/postgres"
	"reelpass/internal/tier"
	"reelpass/pkg/cache"
	"reelpass/pkg/config"
	"reelpass/pkg/logger"
	"reelpass/pkg/validator"
)

type stores struct {
	purchases entitlement.PurchaseRepository
	devices   entitlement.DeviceRepository
	movies    catalog.Repository
	checks    []handler.Check
	close     func()
}

func main() {
	cfg := config.Load()
	log := logger.NewWithLevel("entitlement-service", cfg.Log.Level)

	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Starting Entitlement Service", map[string]interface{}{
		"port":         cfg.Server.Port,
		"store_driver": cfg.Store.Driver,
	})

	st := openStores(cfg, log)
	defer st.close()

	// Redis connection
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Failed to connect to Redis", map[string]interface{}{
			"error": err.Error(),
		})
	}
	log.Info("Redis connected", nil)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	tiers, err := tier.FromConfig(cfg.Tiers)
	if err != nil {
		log.Fatal("Invalid tier configuration", map[string]interface{}{"error": err.Error()})
	}

	catalogService := catalog.NewService(st.movies, cache.NewRedisCache(redisClient, catalog.CacheNamespace), cfg.Catalog.CacheTTL, log)
	entitlementService := entitlement.NewService(
		st.purchases,
		st.devices,
		catalogService,
		tiers,
		metrics.NewEntitlement(reg),
		log,
		entitlement.Options{QueryTimeout: cfg.Database.QueryTimeout},
	)

	val := validator.New()
	blacklist := middleware.NewRedisTokenBlacklist(redisClient)
	checks := append(st.checks, handler.Check{
		Name: "redis",
		Ping: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})

	r := mux.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(log).Log)

	handler.Routes{
		Entitlement: handler.NewEntitlementHandler(entitlementService, val, log),
		Catalog:     handler.NewCatalogHandler(catalogService, tiers, log),
		System:      handler.NewSystemHandler(log, checks...),
		Session:     handler.NewSessionHandler(blacklist, log),
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Auth:        middleware.NewAuthMiddleware(cfg.JWT.Secret, blacklist, log).Authenticate,
		Idempotency: middleware.NewIdempotencyMiddleware(redisClient, cfg.Idempotency.TTL, log).Require,
		RateLimit:   middleware.NewRateLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window, log).Limit,
	}.Register(r)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Entitlement Service started", map[string]interface{}{
			"address": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Entitlement Service...", nil)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Entitlement Service forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	log.Info("Entitlement Service stopped gracefully", nil)
}

// openStores connects the configured entitlement store.
func openStores(cfg *config.Config, log logger.Logger) stores {
	if cfg.Store.Driver == "memory" {
		s := memory.NewStore()
		demo := catalog.DemoMovies(cfg.Tiers.Currency, time.Now())
		for _, m := range demo {
			s.Movies().Put(m)
		}
		log.Warn("Using in-memory store; entitlements are lost on restart", map[string]interface{}{
			"demo_movies": len(demo),
		})
		return stores{
			purchases: s.Purchases(),
			devices:   s.Devices(),
			movies:    s.Movies(),
			close:     func() {},
		}
	}

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{
			"error": err.Error(),
		})
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	log.Info("Database connected", nil)

	return stores{
		purchases: postgres.NewPurchaseRepository(db),
		devices:   postgres.NewDeviceRepository(db),
		movies:    postgres.NewMovieRepository(db),
		checks:    []handler.Check{{Name: "postgres", Ping: db.PingContext}},
		close:     func() { _ = db.Close() },
	}
}
