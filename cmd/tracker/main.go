package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsadapter "github.com/samirrijal/fenceline/internal/adapters/nats"
	"github.com/samirrijal/fenceline/internal/adapters/postgres"
	"github.com/samirrijal/fenceline/internal/core/domain"
	"github.com/samirrijal/fenceline/internal/core/usecases"
	"github.com/samirrijal/fenceline/internal/pkg/config"
	"github.com/samirrijal/fenceline/internal/pkg/logging"
	"github.com/samirrijal/fenceline/internal/pkg/metrics"
)

// The tracker consumes position fixes off the stream, runs them against
// the loaded boundaries, and persists and republishes any entry/exit
// events it detects.
func main() {
	cfg, err := config.Load("fenceline-tracker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup("fenceline-tracker", logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// NATS: publisher for detected events, subscriber for the inputs
	bus, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats publisher: %v", err)
	}
	defer bus.Close()

	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats subscriber: %v", err)
	}
	defer sub.Close()

	fenceRepo := postgres.NewGeofenceRepo(db)
	eventRepo := postgres.NewEventRepo(db)

	tracker := usecases.NewTrackerService(fenceRepo, eventRepo, bus)
	if err := tracker.RefreshBoundaries(ctx); err != nil {
		log.Fatalf("load boundaries: %v", err)
	}
	slog.Info("tracker started", "boundaries", tracker.BoundaryCount())

	// Position fixes drive transition detection
	err = sub.SubscribePositions(ctx, func(ctx context.Context, pos *domain.Position) error {
		metrics.PositionsIngested.Inc()

		events, err := tracker.HandlePosition(ctx, pos)
		if err != nil {
			return err
		}
		for _, e := range events {
			metrics.GeofenceEvents.WithLabelValues(string(e.Type)).Inc()
			slog.Info("geofence event",
				"type", e.Type, "geofence", e.GeofenceID, "imei", e.IMEI)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("subscribe positions: %v", err)
	}

	// Boundary changes from the API invalidate the in-memory set
	err = sub.SubscribeBoundaryUpdates(ctx, func(ctx context.Context, geofenceID string) error {
		slog.Info("boundary updated, reloading", "geofence", geofenceID)
		return tracker.RefreshBoundaries(ctx)
	})
	if err != nil {
		log.Fatalf("subscribe boundary updates: %v", err)
	}

	// Periodic reload backstops missed boundary notices
	refreshEvery := time.Duration(cfg.Tracker.RefreshInterval) * time.Second
	ticker := time.NewTicker(refreshEvery)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			if err := tracker.RefreshBoundaries(ctx); err != nil {
				slog.Error("refresh boundaries", "error", err)
			}
		case sig := <-quit:
			slog.Info("shutting down tracker", "signal", sig.String())
			cancel()
			// Let in-flight handlers settle before the NATS drain
			time.Sleep(2 * time.Second)
			return
		case <-ctx.Done():
			return
		}
	}
}
