// cmd/chaos/main.go
package main

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	_ "github.com/lib/pq"

	"toolforge/internal/config"
	"toolforge/pkg/chaos"
	"toolforge/pkg/logger"
)

func main() {
	log := logger.Must(logger.New())
	defer log.Sync()
	log = logger.Named(log, "chaos")

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	engine := chaos.NewEngine(db, log)
	engine.RegisterExperiments()

	if err := engine.RunAll(context.Background(), 30*time.Second); err != nil {
		log.Fatal("experiment suite aborted", zap.Error(err))
	}
}
