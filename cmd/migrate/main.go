// ==============================================================================
// DATABASE MIGRATION - cmd/migrate/main.go
// ==============================================================================
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"reelpass/pkg/config"
	"reelpass/pkg/logger"
)

func main() {
	cfg := config.Load()
	log := logger.NewWithLevel("migrate", cfg.Log.Level)

	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL environment variable is required", nil)
	}
	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate [up|down|steps N|version|force VERSION]", nil)
	}
	source := os.Getenv("MIGRATIONS_PATH")
	if source == "" {
		source = "file://migrations"
	}

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		log.Fatal("Failed to create migration driver", map[string]interface{}{"error": err.Error()})
	}

	m, err := migrate.NewWithDatabaseInstance(source, "postgres", driver)
	if err != nil {
		log.Fatal("Failed to create migrate instance", map[string]interface{}{"error": err.Error()})
	}

	command := os.Args[1]
	switch command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		n, convErr := intArg()
		if convErr != nil {
			log.Fatal("Usage: migrate steps N", map[string]interface{}{"error": convErr.Error()})
		}
		err = m.Steps(n)
	case "force":
		v, convErr := intArg()
		if convErr != nil {
			log.Fatal("Usage: migrate force VERSION", map[string]interface{}{"error": convErr.Error()})
		}
		err = m.Force(v)
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			log.Fatal("Failed to get version", map[string]interface{}{"error": verr.Error()})
		}
		fmt.Printf("Current version: %d (dirty: %t)\n", version, dirty)
		return
	default:
		log.Fatal("Unknown command", map[string]interface{}{"command": command})
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal("Migration failed", map[string]interface{}{"command": command, "error": err.Error()})
	}
	version, dirty, _ := m.Version()
	log.Info("Migration complete", map[string]interface{}{
		"command": command,
		"version": version,
		"dirty":   dirty,
	})
}

func intArg() (int, error) {
	if len(os.Args) < 3 {
		return 0, errors.New("missing argument")
	}
	return strconv.Atoi(os.Args[2])
}
