package usecases

import (
	"context"
	"fmt"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/samirrijal/fenceline/internal/core/domain"
	"github.com/samirrijal/fenceline/internal/core/ports"
)

// TrackerService turns raw position fixes into geofence entry and
// exit events. It keeps the per-vehicle inside/outside state in
// memory, so a single tracker instance must see the whole position
// stream.
type TrackerService struct {
	fences    ports.GeofenceRepository
	events    ports.EventRepository
	publisher ports.EventPublisher

	mu         sync.RWMutex
	boundaries map[string]trackedFence
	inside     map[string]bool // "<fenceID>|<imei>"
}

type trackedFence struct {
	fence domain.Geofence
	geom  orb.Geometry
}

// NewTrackerService creates a new TrackerService.
func NewTrackerService(
	fences ports.GeofenceRepository,
	events ports.EventRepository,
	publisher ports.EventPublisher,
) *TrackerService {
	return &TrackerService{
		fences:     fences,
		events:     events,
		publisher:  publisher,
		boundaries: make(map[string]trackedFence),
		inside:     make(map[string]bool),
	}
}

// RefreshBoundaries reloads every geofence boundary from the
// repository. State for geofences that no longer exist is dropped.
func (s *TrackerService) RefreshBoundaries(ctx context.Context) error {
	all, err := s.fences.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list geofences: %w", err)
	}

	next := make(map[string]trackedFence, len(all))
	for _, fence := range all {
		if fence.Boundary == nil {
			continue
		}
		next[fence.ID] = trackedFence{fence: fence, geom: fence.Boundary.Geometry()}
	}

	s.mu.Lock()
	s.boundaries = next
	for key := range s.inside {
		if _, ok := next[fenceIDOf(key)]; !ok {
			delete(s.inside, key)
		}
	}
	s.mu.Unlock()
	return nil
}

// BoundaryCount reports how many geofences are currently tracked.
func (s *TrackerService) BoundaryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.boundaries)
}

// HandlePosition evaluates one fix against every tracked boundary.
// The first fix seen for a vehicle only establishes its baseline; an
// event is emitted when a later fix crosses a boundary in the
// direction the geofence watches for.
func (s *TrackerService) HandlePosition(ctx context.Context, pos *domain.Position) ([]domain.GeofenceEvent, error) {
	point := pos.Location.Orb()

	s.mu.Lock()
	var fired []domain.GeofenceEvent
	for id, tracked := range s.boundaries {
		key := id + "|" + pos.IMEI
		now := containsPoint(tracked.geom, point)
		prev, seen := s.inside[key]
		s.inside[key] = now

		if !seen || now == prev {
			continue
		}

		var etype domain.EventType
		if now {
			etype = domain.EventEntry
		} else {
			etype = domain.EventExit
		}
		if !watches(tracked.fence.Type, etype) {
			continue
		}

		fired = append(fired, domain.GeofenceEvent{
			GeofenceID:    id,
			GeofenceTitle: tracked.fence.Title,
			IMEI:          pos.IMEI,
			Type:          etype,
			Location:      pos.Location,
			OccurredAt:    pos.RecordedAt,
		})
	}
	s.mu.Unlock()

	// A fix that crosses several boundaries at once lands as a single
	// round trip.
	if len(fired) > 1 {
		if err := s.events.InsertBatch(ctx, fired); err != nil {
			return nil, fmt.Errorf("insert geofence events: %w", err)
		}
		for i := range fired {
			_ = s.publisher.PublishEvent(ctx, &fired[i])
		}
		return fired, nil
	}

	for i := range fired {
		if err := s.events.Insert(ctx, &fired[i]); err != nil {
			return fired[:i], fmt.Errorf("insert geofence event: %w", err)
		}
		_ = s.publisher.PublishEvent(ctx, &fired[i])
	}
	return fired, nil
}

// watches reports whether a geofence of the given type cares about
// the given transition.
func watches(ftype domain.GeofenceType, etype domain.EventType) bool {
	switch ftype {
	case domain.GeofenceEntry:
		return etype == domain.EventEntry
	case domain.GeofenceExit:
		return etype == domain.EventExit
	}
	return false
}

func containsPoint(geom orb.Geometry, point orb.Point) bool {
	switch g := geom.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, point)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, point)
	}
	return false
}

func fenceIDOf(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i]
		}
	}
	return key
}
