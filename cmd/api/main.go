// cmd/api/main.go
package main

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"go.uber.org/zap"

	"toolforge/internal/config"
	"toolforge/pkg/logger"
)

func main() {
	log := logger.Must(logger.New())
	defer log.Sync()
	log = logger.Named(log, "api")

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	catalogURL, err := url.Parse(cfg.Services.CatalogURL)
	if err != nil {
		log.Fatal("invalid catalog service URL", zap.Error(err))
	}
	inventoryURL, err := url.Parse(cfg.Services.InventoryURL)
	if err != nil {
		log.Fatal("invalid inventory service URL", zap.Error(err))
	}
	workforceURL, err := url.Parse(cfg.Services.WorkforceURL)
	if err != nil {
		log.Fatal("invalid workforce service URL", zap.Error(err))
	}

	catalogProxy := httputil.NewSingleHostReverseProxy(catalogURL)
	inventoryProxy := httputil.NewSingleHostReverseProxy(inventoryURL)
	workforceProxy := httputil.NewSingleHostReverseProxy(workforceURL)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/catalog/", http.StripPrefix("/api/v1/catalog", catalogProxy))
	mux.Handle("/api/v1/inventory/", http.StripPrefix("/api/v1/inventory", inventoryProxy))
	mux.Handle("/api/v1/workforce/", http.StripPrefix("/api/v1/workforce", workforceProxy))

	log.Info("api gateway listening", zap.String("port", cfg.Server.Port))
	if err := http.ListenAndServe(":"+cfg.Server.Port, mux); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
