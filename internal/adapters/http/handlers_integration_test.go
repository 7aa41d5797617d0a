//go:build integration
// +build integration

package http_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samirrijal/fenceline/internal/adapters/http"
	"github.com/samirrijal/fenceline/internal/adapters/postgres"
	"github.com/samirrijal/fenceline/internal/core/boundary"
	"github.com/samirrijal/fenceline/internal/core/domain"
	"github.com/samirrijal/fenceline/internal/core/usecases"
	"github.com/samirrijal/fenceline/internal/pkg/config"
)

// setupTestDB connects to the test database and returns a clean DB instance.
func setupTestDB(t *testing.T) *postgres.DB {
	cfg, err := config.Load("fenceline-test")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	dsn := cfg.Database.DSN()
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}

	db := &postgres.DB{Pool: pool}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("ping db: %v", err)
	}

	return db
}

// setupTestDeps creates dependencies with real DB and repos, no cache.
func setupTestDeps(t *testing.T, db *postgres.DB) *http.Dependencies {
	fenceRepo := postgres.NewGeofenceRepo(db)
	vehicleRepo := postgres.NewVehicleRepo(db)
	eventRepo := postgres.NewEventRepo(db)

	return &http.Dependencies{
		Geofences: usecases.NewGeofenceService(fenceRepo, boundary.NewImporter(), &mockCache{}, &mockBus{}),
		Vehicles:  usecases.NewVehicleService(vehicleRepo, &mockBus{}),
		Events:    usecases.NewEventService(eventRepo),
		DB:        db,
	}
}

const testSquareGeoJSON = `{"type":"Polygon","coordinates":[[[-2.95,43.25],[-2.90,43.25],[-2.90,43.28],[-2.95,43.28],[-2.95,43.25]]]}`

// seedTestGeofence inserts a geofence and returns its UUID. Titles get
// a timestamp suffix to dodge the unique lower(title) index.
func seedTestGeofence(t *testing.T, db *postgres.DB, title string) string {
	ctx := context.Background()
	var id string
	if err := db.Pool.QueryRow(ctx, `
		INSERT INTO geofences (title, type, boundary)
		VALUES ($1, 'Entry', ST_SetSRID(ST_GeomFromGeoJSON($2), 4326))
		RETURNING id
	`, title+"-"+time.Now().Format("20060102150405.000"), testSquareGeoJSON).Scan(&id); err != nil {
		t.Fatalf("seed geofence: %v", err)
	}
	return id
}

// TestListGeofences_Integration tests listing against a real database.
func TestListGeofences_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Pool.Close()

	seedTestGeofence(t, db, "integ-harbour")
	seedTestGeofence(t, db, "integ-depot")

	deps := setupTestDeps(t, db)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/geofences", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data       []domain.Geofence   `json:"data"`
		Pagination struct{ Total int } `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if result.Pagination.Total < 2 {
		t.Errorf("expected at least 2 geofences, got %d", result.Pagination.Total)
	}
}

// TestLookup_Integration tests the ST_Covers lookup against PostGIS.
func TestLookup_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Pool.Close()

	id := seedTestGeofence(t, db, "integ-lookup")

	deps := setupTestDeps(t, db)
	app := setupApp(deps)

	// Point inside the seeded square
	req := httptest.NewRequest("GET", "/v1/geofences/lookup?lat=43.26&lon=-2.93", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Geofences []domain.Geofence `json:"geofences"`
		Count     int               `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	found := false
	for _, f := range result.Geofences {
		if f.ID == id {
			found = true
		}
	}
	if !found {
		t.Errorf("expected seeded geofence %s in lookup result", id)
	}
}

// TestImportGeofence_Integration uploads a KML file and checks the row lands.
func TestImportGeofence_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Pool.Close()

	deps := setupTestDeps(t, db)
	app := setupApp(deps)

	title := "integ-import-" + time.Now().Format("20060102150405.000")
	body, contentType := multipartUpload(t, "harbour.kml", []byte(harbourKML), map[string]string{
		"title": title,
	})
	req := httptest.NewRequest("POST", "/v1/geofences/import", body)
	req.Header.Set("Content-Type", contentType)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var fence domain.Geofence
	if err := json.NewDecoder(resp.Body).Decode(&fence); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if fence.ID == "" {
		t.Fatal("expected geofence ID from import")
	}

	// Verify the row is readable back through the repo
	stored, err := postgres.NewGeofenceRepo(db).GetByID(context.Background(), fence.ID)
	if err != nil {
		t.Fatalf("read back imported geofence: %v", err)
	}
	if stored.Boundary == nil || stored.Boundary.Type != "Polygon" {
		t.Errorf("expected stored Polygon boundary, got %+v", stored.Boundary)
	}
}
