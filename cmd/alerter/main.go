package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/fenceline/internal/adapters/nats"
	"github.com/samirrijal/fenceline/internal/adapters/postgres"
	"github.com/samirrijal/fenceline/internal/adapters/push"
	"github.com/samirrijal/fenceline/internal/core/domain"
	"github.com/samirrijal/fenceline/internal/core/usecases"
	"github.com/samirrijal/fenceline/internal/pkg/config"
	"github.com/samirrijal/fenceline/internal/pkg/logging"
	"github.com/samirrijal/fenceline/internal/workflows"
)

const alertTaskQueue = "alert-queue"

// The alerter runs the Temporal worker for alert workflows and starts
// one workflow per geofence event coming off the stream.
func main() {
	cfg, err := config.Load("fenceline-alerter")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup("fenceline-alerter", logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	fenceRepo := postgres.NewGeofenceRepo(db)
	eventRepo := postgres.NewEventRepo(db)
	notifRepo := postgres.NewNotificationRepo(db)

	alerts := usecases.NewAlertService(fenceRepo, eventRepo, notifRepo, push.NewLogSender())

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort: cfg.Temporal.HostPort,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, alertTaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.AlertWorkflow)
	w.RegisterActivity(&workflows.AlertActivities{Alerts: alerts})

	// Geofence events off the stream start alert workflows. Workflow
	// IDs are derived from the event so redeliveries don't double-alert.
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats subscriber: %v", err)
	}
	defer sub.Close()

	err = sub.SubscribeEvents(ctx, func(ctx context.Context, event *domain.GeofenceEvent) error {
		opts := client.StartWorkflowOptions{
			ID:        "alert-" + event.ID,
			TaskQueue: alertTaskQueue,
		}
		if _, err := c.ExecuteWorkflow(ctx, opts, workflows.AlertWorkflow, workflows.AlertInput{EventID: event.ID}); err != nil {
			return fmt.Errorf("start alert workflow: %w", err)
		}
		slog.Info("alert workflow started", "event", event.ID, "geofence", event.GeofenceID)
		return nil
	})
	if err != nil {
		log.Fatalf("subscribe events: %v", err)
	}

	log.Println("alerter worker started")
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
