// cmd/inventory/main.go
package main

import (
	"context"
	"database/sql"
	"net/http"

	"go.uber.org/zap"

	_ "github.com/lib/pq"

	"toolforge/internal/clients"
	"toolforge/internal/config"
	"toolforge/internal/inventory"
	"toolforge/internal/notify"
	"toolforge/internal/scheduler"
	"toolforge/pkg/eventstore"
	"toolforge/pkg/logger"
	"toolforge/pkg/tracing"
)

func main() {
	log := logger.Must(logger.New())
	defer log.Sync()
	log = logger.Named(log, "inventory")

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	shutdownTracing, err := tracing.Init(context.Background(), "toolforge-inventory", cfg.Tracing.OTLPEndpoint)
	if err != nil {
		log.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	var notifier notify.Notifier
	if cfg.Email.SendgridKey != "" {
		notifier = notify.NewEmailNotifier(cfg.Email.SendgridKey, cfg.Email.FromAddress, log)
		log.Info("email notifications enabled", zap.String("from", cfg.Email.FromAddress))
	} else {
		notifier = notify.NewLogNotifier(log)
	}

	es := eventstore.NewEventStore(db)
	catalogClient := clients.NewCatalogClient(cfg.Services.CatalogURL)
	workforceClient := clients.NewWorkforceClient(cfg.Services.WorkforceURL)

	svc := inventory.NewService(es, db, catalogClient, workforceClient, notifier, log)
	handler := inventory.NewHandler(svc, workforceClient)

	sweep := scheduler.New(svc, workforceClient, notifier, cfg.Sweep.CronSchedule, log)
	if err := sweep.Start(); err != nil {
		log.Fatal("failed to start overdue sweep", zap.Error(err))
	}
	defer sweep.Stop()

	log.Info("starting inventory service", zap.String("port", cfg.Server.Port))
	if err := http.ListenAndServe(":"+cfg.Server.Port, handler.Routes()); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
