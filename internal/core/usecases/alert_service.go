package usecases

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/samirrijal/fenceline/internal/core/domain"
	"github.com/samirrijal/fenceline/internal/core/ports"
)

// AlertService turns geofence events into push notifications for the
// users watching the geofence. The individual steps are exposed so the
// alert workflow can retry and compensate them independently.
type AlertService struct {
	fences        ports.GeofenceRepository
	events        ports.EventRepository
	notifications ports.NotificationRepository
	notifier      ports.NotificationService
}

// NewAlertService creates a new AlertService.
func NewAlertService(
	fences ports.GeofenceRepository,
	events ports.EventRepository,
	notifications ports.NotificationRepository,
	notifier ports.NotificationService,
) *AlertService {
	return &AlertService{
		fences:        fences,
		events:        events,
		notifications: notifications,
		notifier:      notifier,
	}
}

// ResolveRecipients returns the users subscribed to the event's geofence.
func (s *AlertService) ResolveRecipients(ctx context.Context, eventID string) ([]string, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	users, err := s.fences.ListUsers(ctx, event.GeofenceID)
	if err != nil {
		return nil, fmt.Errorf("list geofence users: %w", err)
	}
	return users, nil
}

// RecordNotification creates a pending notification with a unique
// reference code for one recipient.
func (s *AlertService) RecordNotification(ctx context.Context, eventID, userID string) (*domain.Notification, error) {
	code, err := generateAlertCode()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	n := &domain.Notification{
		EventID: eventID,
		UserID:  userID,
		Code:    code,
		Status:  domain.NotificationPending,
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	return n, nil
}

// DeliverNotification pushes the alert to the user's devices and marks
// the notification sent.
func (s *AlertService) DeliverNotification(ctx context.Context, code string) error {
	n, err := s.notifications.GetByCode(ctx, code)
	if err != nil {
		return fmt.Errorf("load notification: %w", err)
	}
	event, err := s.events.GetByID(ctx, n.EventID)
	if err != nil {
		return fmt.Errorf("load event: %w", err)
	}

	var title string
	if event.Type == domain.EventEntry {
		title = fmt.Sprintf("Vehicle entered %s", event.GeofenceTitle)
	} else {
		title = fmt.Sprintf("Vehicle left %s", event.GeofenceTitle)
	}
	body := fmt.Sprintf("Vehicle %s at %s. Ref %s.",
		event.IMEI, event.OccurredAt.Format("15:04 MST"), code)

	if err := s.notifier.SendPush(ctx, n.UserID, title, body); err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	return s.notifications.MarkSent(ctx, code)
}

// RemoveNotification deletes a notification that could not be
// delivered, so a retry starts from a clean slate.
func (s *AlertService) RemoveNotification(ctx context.Context, code string) error {
	return s.notifications.Delete(ctx, code)
}

func generateAlertCode() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "FL-" + hex.EncodeToString(b), nil
}
