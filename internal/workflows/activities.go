package workflows

import (
	"context"
	"fmt"
	"log"

	"github.com/samirrijal/fenceline/internal/core/usecases"
	"github.com/samirrijal/fenceline/internal/pkg/metrics"
)

// AlertActivities holds the activity implementations for the alert workflow.
type AlertActivities struct {
	Alerts *usecases.AlertService
}

// ResolveRecipients returns the user IDs subscribed to the event's geofence.
func (a *AlertActivities) ResolveRecipients(ctx context.Context, eventID string) ([]string, error) {
	users, err := a.Alerts.ResolveRecipients(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients for event %s: %w", eventID, err)
	}
	return users, nil
}

// RecordNotification creates a pending notification and returns its code.
func (a *AlertActivities) RecordNotification(ctx context.Context, eventID, userID string) (string, error) {
	n, err := a.Alerts.RecordNotification(ctx, eventID, userID)
	if err != nil {
		return "", fmt.Errorf("record notification: %w", err)
	}
	return n.Code, nil
}

// DeliverNotification sends the push for a recorded notification.
func (a *AlertActivities) DeliverNotification(ctx context.Context, code string) error {
	if err := a.Alerts.DeliverNotification(ctx, code); err != nil {
		metrics.AlertsSent.WithLabelValues("failed").Inc()
		return fmt.Errorf("deliver notification %s: %w", code, err)
	}
	metrics.AlertsSent.WithLabelValues("sent").Inc()
	return nil
}

// RemoveNotification deletes a notification record (saga compensation / rollback).
func (a *AlertActivities) RemoveNotification(ctx context.Context, code string) error {
	if err := a.Alerts.RemoveNotification(ctx, code); err != nil {
		return fmt.Errorf("remove notification %s: %w", code, err)
	}
	log.Printf("Notification %s removed (saga compensation)", code)
	return nil
}
