package ports

import (
	"context"
	"io"

	"github.com/paulmach/orb"

	"github.com/samirrijal/fenceline/internal/core/domain"
)

// BoundaryImporter turns an uploaded boundary file into a geometry.
type BoundaryImporter interface {
	Import(ctx context.Context, filename string, r io.Reader) (orb.Geometry, error)
}

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *domain.GeofenceEvent) error
	PublishBoundaryUpdated(ctx context.Context, fence *domain.Geofence) error
	PublishPosition(ctx context.Context, pos *domain.Position) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribePositions(ctx context.Context, handler func(ctx context.Context, pos *domain.Position) error) error
	SubscribeEvents(ctx context.Context, handler func(ctx context.Context, event *domain.GeofenceEvent) error) error
	SubscribeBoundaryUpdates(ctx context.Context, handler func(ctx context.Context, geofenceID string) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// NotificationService sends notifications (push, email, etc.).
type NotificationService interface {
	SendPush(ctx context.Context, userID, title, body string) error
}
