package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/object-gate/pkg/objectgate/api"
	"github.com/tendant/object-gate/pkg/objectgate/config"
	"github.com/tendant/object-gate/pkg/objectgate/presigned"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "err", err)
	}

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	logger := slog.Default()
	if !cfg.IsProduction() {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		slog.SetDefault(logger)
	}

	rt, err := cfg.Build(context.Background(), prometheus.DefaultRegisterer, logger)
	if err != nil {
		logger.Error("Failed to build object gate", "err", err)
		os.Exit(1)
	}
	defer rt.Close()

	auth := api.NewAuthenticator(cfg.JWTSecret, logger)
	if !auth.Enabled() {
		logger.Warn("JWT_SECRET not set, every request is anonymous")
	}

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)
	server.R.Handle("/metrics", promhttp.Handler())

	objectsHandler := api.NewObjectsHandler(rt.Service, logger)
	server.R.Group(func(r chi.Router) {
		if !cfg.IsProduction() {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "HEAD", "POST", "PUT", "OPTIONS"},
				AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Range", "X-Request-ID"},
				ExposedHeaders: []string{"Content-Range", "Accept-Ranges", "Content-Length"},
				MaxAge:         300,
			}))
		}
		r.Use(auth.Middleware)
		objectsHandler.Mount(r, "/api/objects")
	})

	// memory and filesystem backends take uploads themselves
	if rt.Signer != nil {
		presigned.NewHandlers(rt.Store, rt.Signer, logger).Mount(server.R)
		logger.Info("Presigned upload endpoint mounted", "prefix", rt.Signer.PathPrefix())
	}

	logger.Info("Object gate ready",
		"environment", cfg.Environment,
		"storage", cfg.StorageURL,
		"public_roots", cfg.PublicSearchPaths,
		"private_root", cfg.PrivateObjectDir)

	server.Run()
}
