// cmd/workforce/main.go
package main

import (
	"context"
	"database/sql"
	"net/http"

	"go.uber.org/zap"

	_ "github.com/lib/pq"

	"toolforge/internal/config"
	"toolforge/internal/workforce"
	"toolforge/pkg/eventstore"
	"toolforge/pkg/logger"
	"toolforge/pkg/tracing"
)

func main() {
	log := logger.Must(logger.New())
	defer log.Sync()
	log = logger.Named(log, "workforce")

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	shutdownTracing, err := tracing.Init(context.Background(), "toolforge-workforce", cfg.Tracing.OTLPEndpoint)
	if err != nil {
		log.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	es := eventstore.NewEventStore(db)
	svc := workforce.NewService(es, db)
	handler := workforce.NewHandler(svc)

	log.Info("starting workforce service", zap.String("port", cfg.Server.Port))
	if err := http.ListenAndServe(":"+cfg.Server.Port, handler.Routes()); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
