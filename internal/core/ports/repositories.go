package ports

import (
	"context"
	"time"

	"github.com/samirrijal/fenceline/internal/core/domain"
)

// GeofenceRepository persists geofences and their assignments.
type GeofenceRepository interface {
	Create(ctx context.Context, fence *domain.Geofence) error
	Update(ctx context.Context, fence *domain.Geofence) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Geofence, error)
	GetByTitle(ctx context.Context, title string) (*domain.Geofence, error)
	// List returns a page of geofences, newest first, optionally
	// filtered by a case-insensitive title substring.
	List(ctx context.Context, query string, offset, limit int) ([]domain.Geofence, int, error)
	ListAll(ctx context.Context) ([]domain.Geofence, error)
	// FindContaining returns the geofences whose boundary covers the point.
	FindContaining(ctx context.Context, lat, lon float64) ([]domain.Geofence, error)

	AssignVehicle(ctx context.Context, geofenceID, imei string) error
	UnassignVehicle(ctx context.Context, geofenceID, imei string) error
	ListVehicles(ctx context.Context, geofenceID string) ([]domain.Vehicle, error)
	AssignUser(ctx context.Context, geofenceID, userID string) error
	UnassignUser(ctx context.Context, geofenceID, userID string) error
	ListUsers(ctx context.Context, geofenceID string) ([]string, error)
}

// VehicleRepository persists tracked vehicles.
type VehicleRepository interface {
	Upsert(ctx context.Context, vehicle *domain.Vehicle) error
	GetByIMEI(ctx context.Context, imei string) (*domain.Vehicle, error)
	List(ctx context.Context, limit int) ([]domain.Vehicle, error)
	UpdatePosition(ctx context.Context, imei string, loc domain.GeoPoint, seen time.Time) error
}

// EventRepository persists geofence transition events.
type EventRepository interface {
	Insert(ctx context.Context, event *domain.GeofenceEvent) error
	InsertBatch(ctx context.Context, events []domain.GeofenceEvent) error
	GetByID(ctx context.Context, id string) (*domain.GeofenceEvent, error)
	ListByGeofence(ctx context.Context, geofenceID string, since time.Time, limit int) ([]domain.GeofenceEvent, error)
	Recent(ctx context.Context, limit int) ([]domain.GeofenceEvent, error)
}

// NotificationRepository persists alert delivery records.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByCode(ctx context.Context, code string) (*domain.Notification, error)
	MarkSent(ctx context.Context, code string) error
	Delete(ctx context.Context, code string) error
}
