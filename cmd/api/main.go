package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/fenceline/internal/adapters/http"
	natsadapter "github.com/samirrijal/fenceline/internal/adapters/nats"
	"github.com/samirrijal/fenceline/internal/adapters/postgres"
	"github.com/samirrijal/fenceline/internal/adapters/projection"
	"github.com/samirrijal/fenceline/internal/adapters/valkey"
	"github.com/samirrijal/fenceline/internal/core/boundary"
	"github.com/samirrijal/fenceline/internal/core/usecases"
	"github.com/samirrijal/fenceline/internal/pkg/config"
	"github.com/samirrijal/fenceline/internal/pkg/logging"
	"github.com/samirrijal/fenceline/internal/pkg/metrics"
	"github.com/samirrijal/fenceline/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("fenceline-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup("fenceline-api", logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown(ctx)
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Feed the DB pool gauges
	go func() {
		t := time.NewTicker(15 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				metrics.UpdateDBPoolMetrics(db.Pool.Stat())
			}
		}
	}()

	// Cache
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		log.Fatalf("valkey: %v", err)
	}
	defer cache.Close()

	// NATS JetStream publisher
	bus, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer bus.Close()

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	}

	// Boundary pipeline. Shapefile decoding rides on DuckDB's spatial
	// extension and can be switched off where that isn't available.
	var importerOpts []boundary.Option
	if cfg.Shapefile.Enabled {
		projector, err := projection.New(ctx)
		if err != nil {
			slog.Warn("shapefile reprojection unavailable, assuming WGS84 inputs", "error", err)
			importerOpts = append(importerOpts, boundary.WithShapefile(boundary.NewShapefileDecoder(nil)))
		} else {
			defer projector.Close()
			importerOpts = append(importerOpts, boundary.WithShapefile(boundary.NewShapefileDecoder(projector)))
		}
	}
	importer := boundary.NewImporter(importerOpts...)

	// Repos
	fenceRepo := postgres.NewGeofenceRepo(db)
	vehicleRepo := postgres.NewVehicleRepo(db)
	eventRepo := postgres.NewEventRepo(db)

	// Use cases
	geofenceSvc := usecases.NewGeofenceService(fenceRepo, importer, cache, bus)
	vehicleSvc := usecases.NewVehicleService(vehicleRepo, bus)
	eventSvc := usecases.NewEventService(eventRepo)

	deps := &http.Dependencies{
		Geofences: geofenceSvc,
		Vehicles:  vehicleSvc,
		Events:    eventSvc,
		NATS:      natsConn,
		DB:        db,
		Cache:     cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    12 * 1024 * 1024, // boundary uploads cap at 10 MB plus multipart framing
		AppName:      "Fenceline API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173, https://*.fenceline.io",
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
