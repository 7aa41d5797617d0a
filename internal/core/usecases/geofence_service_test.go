package usecases_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/fenceline/internal/core/domain"
	"github.com/samirrijal/fenceline/internal/core/usecases"
)

// --- Mock GeofenceRepository ---

type mockGeofenceRepo struct {
	createFn         func(ctx context.Context, fence *domain.Geofence) error
	updateFn         func(ctx context.Context, fence *domain.Geofence) error
	deleteFn         func(ctx context.Context, id string) error
	getByIDFn        func(ctx context.Context, id string) (*domain.Geofence, error)
	listFn           func(ctx context.Context, query string, offset, limit int) ([]domain.Geofence, int, error)
	listAllFn        func(ctx context.Context) ([]domain.Geofence, error)
	findContainingFn func(ctx context.Context, lat, lon float64) ([]domain.Geofence, error)
	assignVehicleFn  func(ctx context.Context, geofenceID, imei string) error
	listUsersFn      func(ctx context.Context, geofenceID string) ([]string, error)
}

func (m *mockGeofenceRepo) Create(ctx context.Context, fence *domain.Geofence) error {
	if m.createFn != nil {
		return m.createFn(ctx, fence)
	}
	return nil
}

func (m *mockGeofenceRepo) Update(ctx context.Context, fence *domain.Geofence) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, fence)
	}
	return nil
}

func (m *mockGeofenceRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockGeofenceRepo) GetByID(ctx context.Context, id string) (*domain.Geofence, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockGeofenceRepo) GetByTitle(ctx context.Context, title string) (*domain.Geofence, error) {
	return nil, nil
}

func (m *mockGeofenceRepo) List(ctx context.Context, query string, offset, limit int) ([]domain.Geofence, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, query, offset, limit)
	}
	return nil, 0, nil
}

func (m *mockGeofenceRepo) ListAll(ctx context.Context) ([]domain.Geofence, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil, nil
}

func (m *mockGeofenceRepo) FindContaining(ctx context.Context, lat, lon float64) ([]domain.Geofence, error) {
	if m.findContainingFn != nil {
		return m.findContainingFn(ctx, lat, lon)
	}
	return nil, nil
}

func (m *mockGeofenceRepo) AssignVehicle(ctx context.Context, geofenceID, imei string) error {
	if m.assignVehicleFn != nil {
		return m.assignVehicleFn(ctx, geofenceID, imei)
	}
	return nil
}

func (m *mockGeofenceRepo) UnassignVehicle(ctx context.Context, geofenceID, imei string) error {
	return nil
}

func (m *mockGeofenceRepo) ListVehicles(ctx context.Context, geofenceID string) ([]domain.Vehicle, error) {
	return nil, nil
}

func (m *mockGeofenceRepo) AssignUser(ctx context.Context, geofenceID, userID string) error {
	return nil
}

func (m *mockGeofenceRepo) UnassignUser(ctx context.Context, geofenceID, userID string) error {
	return nil
}

func (m *mockGeofenceRepo) ListUsers(ctx context.Context, geofenceID string) ([]string, error) {
	if m.listUsersFn != nil {
		return m.listUsersFn(ctx, geofenceID)
	}
	return nil, nil
}

// --- Mock BoundaryImporter ---

type mockImporter struct {
	importFn func(ctx context.Context, filename string, r io.Reader) (orb.Geometry, error)
}

func (m *mockImporter) Import(ctx context.Context, filename string, r io.Reader) (orb.Geometry, error) {
	if m.importFn != nil {
		return m.importFn(ctx, filename, r)
	}
	return nil, errors.New("no importer configured")
}

// --- Mock CacheService ---

type mockCache struct {
	getFn    func(ctx context.Context, key string) ([]byte, error)
	setFn    func(ctx context.Context, key string, value []byte, ttlSeconds int) error
	deleteFn func(ctx context.Context, key string) error
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, errors.New("cache miss")
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value, ttlSeconds)
	}
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, key)
	}
	return nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	publishEventFn           func(ctx context.Context, event *domain.GeofenceEvent) error
	publishBoundaryUpdatedFn func(ctx context.Context, fence *domain.Geofence) error
	publishPositionFn        func(ctx context.Context, pos *domain.Position) error
}

func (m *mockPublisher) PublishEvent(ctx context.Context, event *domain.GeofenceEvent) error {
	if m.publishEventFn != nil {
		return m.publishEventFn(ctx, event)
	}
	return nil
}

func (m *mockPublisher) PublishBoundaryUpdated(ctx context.Context, fence *domain.Geofence) error {
	if m.publishBoundaryUpdatedFn != nil {
		return m.publishBoundaryUpdatedFn(ctx, fence)
	}
	return nil
}

func (m *mockPublisher) PublishPosition(ctx context.Context, pos *domain.Position) error {
	if m.publishPositionFn != nil {
		return m.publishPositionFn(ctx, pos)
	}
	return nil
}

// --- Helpers ---

func squareBoundary() *geojson.Geometry {
	return geojson.NewGeometry(orb.Polygon{
		{{-2.95, 43.25}, {-2.90, 43.25}, {-2.90, 43.28}, {-2.95, 43.28}, {-2.95, 43.25}},
	})
}

// --- Tests ---

func TestGeofenceService_Get_CacheHit(t *testing.T) {
	fence := domain.Geofence{ID: "f-1", Title: "Depot", Type: domain.GeofenceEntry, Boundary: squareBoundary()}
	cached, _ := json.Marshal(fence)

	repo := &mockGeofenceRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Geofence, error) {
			t.Error("repository should not be hit on cache hit")
			return nil, nil
		},
	}
	cache := &mockCache{
		getFn: func(ctx context.Context, key string) ([]byte, error) {
			if key != "geofences:id:f-1" {
				t.Errorf("unexpected cache key %q", key)
			}
			return cached, nil
		},
	}

	svc := usecases.NewGeofenceService(repo, &mockImporter{}, cache, &mockPublisher{})
	got, err := svc.Get(context.Background(), "f-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Title != "Depot" {
		t.Errorf("expected Depot, got %s", got.Title)
	}
}

func TestGeofenceService_Get_CacheMiss(t *testing.T) {
	var setKey string
	var setTTL int
	repo := &mockGeofenceRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Geofence, error) {
			return &domain.Geofence{ID: id, Title: "Depot"}, nil
		},
	}
	cache := &mockCache{
		setFn: func(ctx context.Context, key string, value []byte, ttlSeconds int) error {
			setKey, setTTL = key, ttlSeconds
			return nil
		},
	}

	svc := usecases.NewGeofenceService(repo, &mockImporter{}, cache, &mockPublisher{})
	got, err := svc.Get(context.Background(), "f-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "f-9" {
		t.Errorf("expected f-9, got %s", got.ID)
	}
	if setKey != "geofences:id:f-9" || setTTL != 600 {
		t.Errorf("expected cache fill with 600s TTL, got %q/%d", setKey, setTTL)
	}
}

func TestGeofenceService_Create_ClosesOpenRing(t *testing.T) {
	var stored *domain.Geofence
	repo := &mockGeofenceRepo{
		createFn: func(ctx context.Context, fence *domain.Geofence) error {
			fence.ID = "f-1"
			stored = fence
			return nil
		},
	}

	open := geojson.NewGeometry(orb.Polygon{
		{{-2.95, 43.25}, {-2.90, 43.25}, {-2.90, 43.28}},
	})

	svc := usecases.NewGeofenceService(repo, &mockImporter{}, nil, &mockPublisher{})
	_, err := svc.Create(context.Background(), "Depot", domain.GeofenceEntry, open)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	poly, ok := stored.Boundary.Geometry().(orb.Polygon)
	if !ok {
		t.Fatalf("expected Polygon boundary, got %T", stored.Boundary.Geometry())
	}
	ring := poly[0]
	if len(ring) != 4 {
		t.Fatalf("expected ring closed to 4 points, got %d", len(ring))
	}
	if ring[0] != ring[len(ring)-1] {
		t.Error("ring is not closed")
	}
}

func TestGeofenceService_Create_TooFewPoints(t *testing.T) {
	short := geojson.NewGeometry(orb.Polygon{
		{{-2.95, 43.25}, {-2.90, 43.25}},
	})

	svc := usecases.NewGeofenceService(&mockGeofenceRepo{}, &mockImporter{}, nil, &mockPublisher{})
	_, err := svc.Create(context.Background(), "Depot", domain.GeofenceEntry, short)
	if err == nil {
		t.Fatal("expected error for 2-point ring")
	}
	if !strings.Contains(err.Error(), "at least 3 points") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestGeofenceService_Create_Validation(t *testing.T) {
	svc := usecases.NewGeofenceService(&mockGeofenceRepo{}, &mockImporter{}, nil, &mockPublisher{})

	if _, err := svc.Create(context.Background(), "", domain.GeofenceEntry, squareBoundary()); err == nil {
		t.Error("expected error for empty title")
	}
	if _, err := svc.Create(context.Background(), "Depot", "Sideways", squareBoundary()); err == nil {
		t.Error("expected error for unknown type")
	}
	if _, err := svc.Create(context.Background(), "Depot", domain.GeofenceEntry, nil); err == nil {
		t.Error("expected error for missing boundary")
	}
}

func TestGeofenceService_Create_InvalidatesCache(t *testing.T) {
	repo := &mockGeofenceRepo{
		createFn: func(ctx context.Context, fence *domain.Geofence) error {
			fence.ID = "f-1"
			return nil
		},
	}
	var deleted []string
	cache := &mockCache{
		deleteFn: func(ctx context.Context, key string) error {
			deleted = append(deleted, key)
			return nil
		},
	}
	published := false
	bus := &mockPublisher{
		publishBoundaryUpdatedFn: func(ctx context.Context, fence *domain.Geofence) error {
			published = true
			return nil
		},
	}

	svc := usecases.NewGeofenceService(repo, &mockImporter{}, cache, bus)
	if _, err := svc.Create(context.Background(), "Depot", domain.GeofenceExit, squareBoundary()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(deleted) != 2 || deleted[0] != "geofences:id:f-1" || deleted[1] != "geofences:list:default" {
		t.Errorf("unexpected cache invalidation: %v", deleted)
	}
	if !published {
		t.Error("boundary update was not published")
	}
}

func TestGeofenceService_List_ClampsLimit(t *testing.T) {
	called := false
	repo := &mockGeofenceRepo{
		listFn: func(ctx context.Context, query string, offset, limit int) ([]domain.Geofence, int, error) {
			called = true
			if limit != 20 {
				t.Errorf("expected limit clamped to 20, got %d", limit)
			}
			if offset != 0 {
				t.Errorf("expected offset clamped to 0, got %d", offset)
			}
			return nil, 0, nil
		},
	}

	svc := usecases.NewGeofenceService(repo, &mockImporter{}, nil, &mockPublisher{})
	_, _, _ = svc.List(context.Background(), "", -3, 999)
	if !called {
		t.Error("repo was not called")
	}
}

func TestGeofenceService_ImportBoundary(t *testing.T) {
	var stored *domain.Geofence
	repo := &mockGeofenceRepo{
		createFn: func(ctx context.Context, fence *domain.Geofence) error {
			fence.ID = "f-1"
			stored = fence
			return nil
		},
	}
	importer := &mockImporter{
		importFn: func(ctx context.Context, filename string, r io.Reader) (orb.Geometry, error) {
			if filename != "harbour.kml" {
				t.Errorf("expected filename harbour.kml, got %s", filename)
			}
			return orb.Polygon{
				{{-2.95, 43.25}, {-2.90, 43.25}, {-2.90, 43.28}, {-2.95, 43.25}},
			}, nil
		},
	}

	svc := usecases.NewGeofenceService(repo, importer, nil, &mockPublisher{})
	fence, err := svc.ImportBoundary(context.Background(), "", "", "harbour.kml", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fence.Title != "harbour" {
		t.Errorf("expected title derived from filename, got %q", fence.Title)
	}
	if fence.Type != domain.GeofenceEntry {
		t.Errorf("expected default type Entry, got %s", fence.Type)
	}
	if stored.Boundary.Geometry().GeoJSONType() != "Polygon" {
		t.Errorf("expected Polygon, got %s", stored.Boundary.Geometry().GeoJSONType())
	}
}

func TestGeofenceService_ImportBoundary_ErrorPassesThrough(t *testing.T) {
	sentinel := errors.New("No polygon boundary found in file or failed to parse.")
	importer := &mockImporter{
		importFn: func(ctx context.Context, filename string, r io.Reader) (orb.Geometry, error) {
			return nil, sentinel
		},
	}
	repo := &mockGeofenceRepo{
		createFn: func(ctx context.Context, fence *domain.Geofence) error {
			t.Error("nothing should be stored when import fails")
			return nil
		},
	}

	svc := usecases.NewGeofenceService(repo, importer, nil, &mockPublisher{})
	_, err := svc.ImportBoundary(context.Background(), "Depot", domain.GeofenceEntry, "bad.kml", strings.NewReader("x"))
	if !errors.Is(err, sentinel) {
		t.Errorf("expected importer error unchanged, got %v", err)
	}
}

func TestGeofenceService_PreviewBoundary_DoesNotPersist(t *testing.T) {
	repo := &mockGeofenceRepo{
		createFn: func(ctx context.Context, fence *domain.Geofence) error {
			t.Error("preview must not persist")
			return nil
		},
	}
	importer := &mockImporter{
		importFn: func(ctx context.Context, filename string, r io.Reader) (orb.Geometry, error) {
			return orb.Polygon{
				{{-2.95, 43.25}, {-2.90, 43.25}, {-2.90, 43.28}, {-2.95, 43.25}},
			}, nil
		},
	}

	svc := usecases.NewGeofenceService(repo, importer, nil, &mockPublisher{})
	geom, err := svc.PreviewBoundary(context.Background(), "harbour.kml", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if geom.Geometry().GeoJSONType() != "Polygon" {
		t.Errorf("expected Polygon, got %s", geom.Geometry().GeoJSONType())
	}
}

func TestGeofenceService_ReplaceBoundary(t *testing.T) {
	var updated *domain.Geofence
	repo := &mockGeofenceRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Geofence, error) {
			return &domain.Geofence{ID: id, Title: "Depot", Type: domain.GeofenceEntry, Boundary: squareBoundary()}, nil
		},
		updateFn: func(ctx context.Context, fence *domain.Geofence) error {
			updated = fence
			return nil
		},
	}
	importer := &mockImporter{
		importFn: func(ctx context.Context, filename string, r io.Reader) (orb.Geometry, error) {
			return orb.MultiPolygon{
				{{{-2.95, 43.25}, {-2.90, 43.25}, {-2.90, 43.28}, {-2.95, 43.25}}},
				{{{-3.05, 43.30}, {-3.00, 43.30}, {-3.00, 43.33}, {-3.05, 43.30}}},
			}, nil
		},
	}

	svc := usecases.NewGeofenceService(repo, importer, nil, &mockPublisher{})
	fence, err := svc.ReplaceBoundary(context.Background(), "f-1", "islands.zip", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fence.Title != "Depot" {
		t.Errorf("title should be preserved, got %q", fence.Title)
	}
	if updated.Boundary.Geometry().GeoJSONType() != "MultiPolygon" {
		t.Errorf("expected MultiPolygon, got %s", updated.Boundary.Geometry().GeoJSONType())
	}
}

func TestGeofenceService_AssignVehicle_BadIMEI(t *testing.T) {
	svc := usecases.NewGeofenceService(&mockGeofenceRepo{}, &mockImporter{}, nil, &mockPublisher{})
	if err := svc.AssignVehicle(context.Background(), "f-1", "12345"); err == nil {
		t.Error("expected error for short imei")
	}
	if err := svc.AssignVehicle(context.Background(), "f-1", "49015420323751a"); err == nil {
		t.Error("expected error for non-digit imei")
	}
}

func TestGeofenceService_Lookup(t *testing.T) {
	repo := &mockGeofenceRepo{
		findContainingFn: func(ctx context.Context, lat, lon float64) ([]domain.Geofence, error) {
			if lat != 43.26 || lon != -2.93 {
				t.Errorf("unexpected point %f,%f", lat, lon)
			}
			return []domain.Geofence{{ID: "f-1", Title: "Depot"}}, nil
		},
	}

	svc := usecases.NewGeofenceService(repo, &mockImporter{}, nil, &mockPublisher{})
	fences, err := svc.Lookup(context.Background(), 43.26, -2.93)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fences) != 1 || fences[0].ID != "f-1" {
		t.Errorf("unexpected result: %+v", fences)
	}
}
