package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/fenceline/internal/core/domain"
	"github.com/samirrijal/fenceline/internal/core/ports"
	"github.com/samirrijal/fenceline/internal/pkg/geospatial"
)

const defaultListLimit = 20

// GeofenceService handles geofence business logic: CRUD, boundary file
// imports, point lookups and assignments.
type GeofenceService struct {
	fences   ports.GeofenceRepository
	importer ports.BoundaryImporter
	cache    ports.CacheService
	bus      ports.EventPublisher
}

// NewGeofenceService creates a new GeofenceService.
func NewGeofenceService(
	fences ports.GeofenceRepository,
	importer ports.BoundaryImporter,
	cache ports.CacheService,
	bus ports.EventPublisher,
) *GeofenceService {
	return &GeofenceService{fences: fences, importer: importer, cache: cache, bus: bus}
}

// List returns a page of geofences plus the total count.
func (s *GeofenceService) List(ctx context.Context, query string, offset, limit int) ([]domain.Geofence, int, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.fences.List(ctx, query, offset, limit)
}

// Get returns a single geofence.
func (s *GeofenceService) Get(ctx context.Context, id string) (*domain.Geofence, error) {
	cacheKey := "geofences:id:" + id
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var fence domain.Geofence
			if err := json.Unmarshal(data, &fence); err == nil {
				return &fence, nil
			}
		}
	}

	fence, err := s.fences.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(fence); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 600)
		}
	}
	return fence, nil
}

// Create stores a geofence whose boundary arrives as GeoJSON directly.
func (s *GeofenceService) Create(ctx context.Context, title string, ftype domain.GeofenceType, boundary *geojson.Geometry) (*domain.Geofence, error) {
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	ftype, err := normalizeType(ftype)
	if err != nil {
		return nil, err
	}
	boundary, err = normalizeBoundary(boundary)
	if err != nil {
		return nil, err
	}

	fence := &domain.Geofence{Title: title, Type: ftype, Boundary: boundary}
	if err := s.fences.Create(ctx, fence); err != nil {
		return nil, fmt.Errorf("create geofence: %w", err)
	}

	s.invalidate(ctx, fence.ID)
	_ = s.bus.PublishBoundaryUpdated(ctx, fence)
	return fence, nil
}

// Update applies partial changes; empty fields keep their value.
func (s *GeofenceService) Update(ctx context.Context, id, title string, ftype domain.GeofenceType, boundary *geojson.Geometry) (*domain.Geofence, error) {
	fence, err := s.fences.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if title != "" {
		fence.Title = title
	}
	if ftype != "" {
		fence.Type, err = normalizeType(ftype)
		if err != nil {
			return nil, err
		}
	}
	if boundary != nil {
		fence.Boundary, err = normalizeBoundary(boundary)
		if err != nil {
			return nil, err
		}
	}

	if err := s.fences.Update(ctx, fence); err != nil {
		return nil, fmt.Errorf("update geofence: %w", err)
	}

	s.invalidate(ctx, id)
	_ = s.bus.PublishBoundaryUpdated(ctx, fence)
	return fence, nil
}

// Delete removes a geofence and its assignments.
func (s *GeofenceService) Delete(ctx context.Context, id string) error {
	if err := s.fences.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// ImportBoundary runs the upload through the boundary pipeline and
// stores the result as a new geofence.
func (s *GeofenceService) ImportBoundary(ctx context.Context, title string, ftype domain.GeofenceType, filename string, r io.Reader) (*domain.Geofence, error) {
	if title == "" {
		title = filenameTitle(filename)
	}
	ftype, err := normalizeType(ftype)
	if err != nil {
		return nil, err
	}

	geom, err := s.importer.Import(ctx, filename, r)
	if err != nil {
		return nil, err
	}

	fence := &domain.Geofence{Title: title, Type: ftype, Boundary: geojson.NewGeometry(geom)}
	if err := s.fences.Create(ctx, fence); err != nil {
		return nil, fmt.Errorf("create geofence: %w", err)
	}

	s.invalidate(ctx, fence.ID)
	_ = s.bus.PublishBoundaryUpdated(ctx, fence)
	return fence, nil
}

// PreviewBoundary runs the pipeline without persisting anything.
func (s *GeofenceService) PreviewBoundary(ctx context.Context, filename string, r io.Reader) (*geojson.Geometry, error) {
	geom, err := s.importer.Import(ctx, filename, r)
	if err != nil {
		return nil, err
	}
	return geojson.NewGeometry(geom), nil
}

// ReplaceBoundary swaps an existing geofence's boundary for one
// imported from a file.
func (s *GeofenceService) ReplaceBoundary(ctx context.Context, id, filename string, r io.Reader) (*domain.Geofence, error) {
	fence, err := s.fences.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	geom, err := s.importer.Import(ctx, filename, r)
	if err != nil {
		return nil, err
	}

	fence.Boundary = geojson.NewGeometry(geom)
	if err := s.fences.Update(ctx, fence); err != nil {
		return nil, fmt.Errorf("update geofence: %w", err)
	}

	s.invalidate(ctx, id)
	_ = s.bus.PublishBoundaryUpdated(ctx, fence)
	return fence, nil
}

// Lookup returns the geofences whose boundary covers the given point.
func (s *GeofenceService) Lookup(ctx context.Context, lat, lon float64) ([]domain.Geofence, error) {
	return s.fences.FindContaining(ctx, lat, lon)
}

// Stats derives area, perimeter and centroid measurements for a
// geofence boundary.
func (s *GeofenceService) Stats(ctx context.Context, id string) (*domain.BoundaryStats, error) {
	fence, err := s.fences.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if fence.Boundary == nil {
		return nil, fmt.Errorf("geofence has no boundary")
	}

	m := geospatial.Measure(fence.Boundary.Geometry())
	return &domain.BoundaryStats{
		AreaM2:      m.AreaM2,
		PerimeterM:  m.PerimeterM,
		Centroid:    domain.FromOrb(m.Centroid),
		RingCount:   m.Rings,
		VertexCount: m.Vertices,
	}, nil
}

// AssignVehicle links a vehicle to a geofence.
func (s *GeofenceService) AssignVehicle(ctx context.Context, geofenceID, imei string) error {
	if !domain.ValidIMEI(imei) {
		return fmt.Errorf("imei must be exactly 15 digits")
	}
	return s.fences.AssignVehicle(ctx, geofenceID, imei)
}

// UnassignVehicle removes a vehicle link.
func (s *GeofenceService) UnassignVehicle(ctx context.Context, geofenceID, imei string) error {
	return s.fences.UnassignVehicle(ctx, geofenceID, imei)
}

// ListVehicles returns the vehicles assigned to a geofence.
func (s *GeofenceService) ListVehicles(ctx context.Context, geofenceID string) ([]domain.Vehicle, error) {
	return s.fences.ListVehicles(ctx, geofenceID)
}

// AssignUser links an alert recipient to a geofence.
func (s *GeofenceService) AssignUser(ctx context.Context, geofenceID, userID string) error {
	if userID == "" {
		return fmt.Errorf("user_id is required")
	}
	return s.fences.AssignUser(ctx, geofenceID, userID)
}

// UnassignUser removes a recipient link.
func (s *GeofenceService) UnassignUser(ctx context.Context, geofenceID, userID string) error {
	return s.fences.UnassignUser(ctx, geofenceID, userID)
}

func (s *GeofenceService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Delete(ctx, "geofences:id:"+id)
	_ = s.cache.Delete(ctx, "geofences:list:default")
}

func normalizeType(ftype domain.GeofenceType) (domain.GeofenceType, error) {
	switch ftype {
	case "":
		return domain.GeofenceEntry, nil
	case domain.GeofenceEntry, domain.GeofenceExit:
		return ftype, nil
	default:
		return "", fmt.Errorf("type must be Entry or Exit")
	}
}

// normalizeBoundary validates a caller-supplied GeoJSON geometry and
// closes any open rings. Holes are allowed here; only file imports are
// restricted to exterior rings.
func normalizeBoundary(g *geojson.Geometry) (*geojson.Geometry, error) {
	if g == nil {
		return nil, fmt.Errorf("boundary is required")
	}
	switch geom := g.Geometry().(type) {
	case orb.Polygon:
		closed, err := closeRings(geom)
		if err != nil {
			return nil, err
		}
		return geojson.NewGeometry(closed), nil
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(geom))
		for i, poly := range geom {
			closed, err := closeRings(poly)
			if err != nil {
				return nil, err
			}
			out[i] = closed
		}
		return geojson.NewGeometry(out), nil
	default:
		return nil, fmt.Errorf("boundary must be a Polygon or MultiPolygon")
	}
}

func closeRings(poly orb.Polygon) (orb.Polygon, error) {
	out := make(orb.Polygon, len(poly))
	for i, ring := range poly {
		if len(ring) < 3 {
			return nil, fmt.Errorf("Boundary must have at least 3 points")
		}
		closed := make(orb.Ring, len(ring), len(ring)+1)
		copy(closed, ring)
		if closed[0] != closed[len(closed)-1] {
			closed = append(closed, closed[0])
		}
		out[i] = closed
	}
	return out, nil
}

func filenameTitle(filename string) string {
	name := filename
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' || name[i] == '\\' {
			name = name[i+1:]
			break
		}
	}
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			name = name[:i]
			break
		}
	}
	if name == "" {
		return fmt.Sprintf("Imported boundary %s", time.Now().Format("2006-01-02"))
	}
	return name
}
