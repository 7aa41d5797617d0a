package usecases_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/samirrijal/fenceline/internal/core/domain"
	"github.com/samirrijal/fenceline/internal/core/usecases"
)

// --- Mock NotificationRepository ---

type mockNotificationRepo struct {
	createFn    func(ctx context.Context, n *domain.Notification) error
	getByCodeFn func(ctx context.Context, code string) (*domain.Notification, error)
	markSentFn  func(ctx context.Context, code string) error
	deleteFn    func(ctx context.Context, code string) error
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	if m.createFn != nil {
		return m.createFn(ctx, n)
	}
	return nil
}

func (m *mockNotificationRepo) GetByCode(ctx context.Context, code string) (*domain.Notification, error) {
	if m.getByCodeFn != nil {
		return m.getByCodeFn(ctx, code)
	}
	return nil, nil
}

func (m *mockNotificationRepo) MarkSent(ctx context.Context, code string) error {
	if m.markSentFn != nil {
		return m.markSentFn(ctx, code)
	}
	return nil
}

func (m *mockNotificationRepo) Delete(ctx context.Context, code string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, code)
	}
	return nil
}

// --- Mock NotificationService ---

type mockPusher struct {
	sendPushFn func(ctx context.Context, userID, title, body string) error
}

func (m *mockPusher) SendPush(ctx context.Context, userID, title, body string) error {
	if m.sendPushFn != nil {
		return m.sendPushFn(ctx, userID, title, body)
	}
	return nil
}

// --- Tests ---

func TestAlertService_ResolveRecipients(t *testing.T) {
	events := &mockEventRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.GeofenceEvent, error) {
			return &domain.GeofenceEvent{ID: id, GeofenceID: "f-1"}, nil
		},
	}
	fences := &mockGeofenceRepo{
		listUsersFn: func(ctx context.Context, geofenceID string) ([]string, error) {
			if geofenceID != "f-1" {
				t.Errorf("expected geofence f-1, got %s", geofenceID)
			}
			return []string{"u-1", "u-2"}, nil
		},
	}

	svc := usecases.NewAlertService(fences, events, &mockNotificationRepo{}, &mockPusher{})
	users, err := svc.ResolveRecipients(context.Background(), "ev-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(users))
	}
}

func TestAlertService_RecordNotification(t *testing.T) {
	var stored *domain.Notification
	notifications := &mockNotificationRepo{
		createFn: func(ctx context.Context, n *domain.Notification) error {
			n.ID = "n-1"
			stored = n
			return nil
		},
	}

	svc := usecases.NewAlertService(&mockGeofenceRepo{}, &mockEventRepo{}, notifications, &mockPusher{})
	n, err := svc.RecordNotification(context.Background(), "ev-1", "u-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(n.Code, "FL-") || len(n.Code) != 15 {
		t.Errorf("unexpected code format: %q", n.Code)
	}
	if stored.Status != domain.NotificationPending {
		t.Errorf("expected pending status, got %s", stored.Status)
	}
	if stored.EventID != "ev-1" || stored.UserID != "u-1" {
		t.Errorf("unexpected notification: %+v", stored)
	}
}

func TestAlertService_RecordNotification_UniqueCodes(t *testing.T) {
	svc := usecases.NewAlertService(&mockGeofenceRepo{}, &mockEventRepo{}, &mockNotificationRepo{}, &mockPusher{})
	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		n, err := svc.RecordNotification(context.Background(), "ev-1", "u-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen[n.Code] {
			t.Fatalf("duplicate code %s", n.Code)
		}
		seen[n.Code] = true
	}
}

func TestAlertService_DeliverNotification(t *testing.T) {
	occurred := time.Date(2025, 6, 3, 14, 30, 0, 0, time.UTC)
	notifications := &mockNotificationRepo{
		getByCodeFn: func(ctx context.Context, code string) (*domain.Notification, error) {
			return &domain.Notification{ID: "n-1", EventID: "ev-1", UserID: "u-1", Code: code}, nil
		},
	}
	events := &mockEventRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.GeofenceEvent, error) {
			return &domain.GeofenceEvent{
				ID: id, GeofenceID: "f-1", GeofenceTitle: "Harbour",
				IMEI: "490154203237518", Type: domain.EventEntry, OccurredAt: occurred,
			}, nil
		},
	}

	var pushedTitle, pushedBody string
	pusher := &mockPusher{
		sendPushFn: func(ctx context.Context, userID, title, body string) error {
			pushedTitle, pushedBody = title, body
			return nil
		},
	}
	marked := false
	notifications.markSentFn = func(ctx context.Context, code string) error {
		marked = true
		return nil
	}

	svc := usecases.NewAlertService(&mockGeofenceRepo{}, events, notifications, pusher)
	if err := svc.DeliverNotification(context.Background(), "FL-abc123def456"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(pushedTitle, "entered Harbour") {
		t.Errorf("unexpected title: %q", pushedTitle)
	}
	if !strings.Contains(pushedBody, "490154203237518") {
		t.Errorf("body should name the vehicle: %q", pushedBody)
	}
	if !marked {
		t.Error("notification was not marked sent")
	}
}

func TestAlertService_DeliverNotification_PushFailure(t *testing.T) {
	notifications := &mockNotificationRepo{
		getByCodeFn: func(ctx context.Context, code string) (*domain.Notification, error) {
			return &domain.Notification{EventID: "ev-1", UserID: "u-1", Code: code}, nil
		},
		markSentFn: func(ctx context.Context, code string) error {
			t.Error("must not mark sent when push fails")
			return nil
		},
	}
	events := &mockEventRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.GeofenceEvent, error) {
			return &domain.GeofenceEvent{ID: id, GeofenceTitle: "Harbour", Type: domain.EventExit}, nil
		},
	}
	pusher := &mockPusher{
		sendPushFn: func(ctx context.Context, userID, title, body string) error {
			return errors.New("device unreachable")
		},
	}

	svc := usecases.NewAlertService(&mockGeofenceRepo{}, events, notifications, pusher)
	if err := svc.DeliverNotification(context.Background(), "FL-abc123def456"); err == nil {
		t.Fatal("expected push failure to surface")
	}
}

func TestAlertService_RemoveNotification(t *testing.T) {
	var removed string
	notifications := &mockNotificationRepo{
		deleteFn: func(ctx context.Context, code string) error {
			removed = code
			return nil
		},
	}

	svc := usecases.NewAlertService(&mockGeofenceRepo{}, &mockEventRepo{}, notifications, &mockPusher{})
	if err := svc.RemoveNotification(context.Background(), "FL-abc123def456"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != "FL-abc123def456" {
		t.Errorf("unexpected code: %s", removed)
	}
}
