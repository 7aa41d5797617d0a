package usecases

import (
	"context"
	"time"

	"github.com/samirrijal/fenceline/internal/core/domain"
	"github.com/samirrijal/fenceline/internal/core/ports"
)

// EventService reads back recorded geofence events.
type EventService struct {
	events ports.EventRepository
}

// NewEventService creates a new EventService.
func NewEventService(events ports.EventRepository) *EventService {
	return &EventService{events: events}
}

// ListByGeofence returns events for one geofence, newest first.
func (s *EventService) ListByGeofence(ctx context.Context, geofenceID string, since time.Time, limit int) ([]domain.GeofenceEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.events.ListByGeofence(ctx, geofenceID, since, limit)
}

// Recent returns the latest events across all geofences.
func (s *EventService) Recent(ctx context.Context, limit int) ([]domain.GeofenceEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.events.Recent(ctx, limit)
}

// Get returns a single event by id.
func (s *EventService) Get(ctx context.Context, id string) (*domain.GeofenceEvent, error) {
	return s.events.GetByID(ctx, id)
}
