package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/fenceline/internal/core/domain"
)

// GeofenceRepo implements ports.GeofenceRepository with pgx. Boundaries
// are stored as PostGIS geometry and travel over the wire as GeoJSON.
type GeofenceRepo struct {
	db *DB
}

// NewGeofenceRepo creates a new GeofenceRepo.
func NewGeofenceRepo(db *DB) *GeofenceRepo {
	return &GeofenceRepo{db: db}
}

// Create inserts a geofence and fills in its generated id and timestamps.
func (r *GeofenceRepo) Create(ctx context.Context, f *domain.Geofence) error {
	boundary, err := json.Marshal(f.Boundary)
	if err != nil {
		return fmt.Errorf("marshal boundary: %w", err)
	}

	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO geofences (title, type, boundary)
		VALUES ($1, $2, ST_SetSRID(ST_GeomFromGeoJSON($3), 4326))
		RETURNING id, created_at, updated_at
	`, f.Title, f.Type, string(boundary)).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
}

// Update replaces title, type and boundary of an existing geofence.
func (r *GeofenceRepo) Update(ctx context.Context, f *domain.Geofence) error {
	boundary, err := json.Marshal(f.Boundary)
	if err != nil {
		return fmt.Errorf("marshal boundary: %w", err)
	}

	return r.db.Pool.QueryRow(ctx, `
		UPDATE geofences
		SET title = $2, type = $3,
		    boundary = ST_SetSRID(ST_GeomFromGeoJSON($4), 4326),
		    updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, f.ID, f.Title, f.Type, string(boundary)).Scan(&f.UpdatedAt)
}

// Delete removes a geofence; assignments and events cascade.
func (r *GeofenceRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM geofences WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// GetByID returns a geofence by UUID.
func (r *GeofenceRepo) GetByID(ctx context.Context, id string) (*domain.Geofence, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx, `
		SELECT id, title, type, ST_AsGeoJSON(boundary), created_at, updated_at
		FROM geofences WHERE id = $1
	`, id))
}

// GetByTitle returns a geofence by exact title.
func (r *GeofenceRepo) GetByTitle(ctx context.Context, title string) (*domain.Geofence, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx, `
		SELECT id, title, type, ST_AsGeoJSON(boundary), created_at, updated_at
		FROM geofences WHERE lower(title) = lower($1)
	`, title))
}

// List returns a page of geofences plus the unfiltered-per-query total.
func (r *GeofenceRepo) List(ctx context.Context, query string, offset, limit int) ([]domain.Geofence, int, error) {
	var total int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT count(*) FROM geofences
		WHERE $1 = '' OR title ILIKE '%' || $1 || '%'
	`, query).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, title, type, ST_AsGeoJSON(boundary), created_at, updated_at
		FROM geofences
		WHERE $1 = '' OR title ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC
		OFFSET $2 LIMIT $3
	`, query, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	fences, err := r.scanAll(rows)
	return fences, total, err
}

// ListAll returns every geofence, oldest first.
func (r *GeofenceRepo) ListAll(ctx context.Context) ([]domain.Geofence, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, title, type, ST_AsGeoJSON(boundary), created_at, updated_at
		FROM geofences
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// FindContaining returns geofences whose boundary covers the point.
func (r *GeofenceRepo) FindContaining(ctx context.Context, lat, lon float64) ([]domain.Geofence, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, title, type, ST_AsGeoJSON(boundary), created_at, updated_at
		FROM geofences
		WHERE ST_Covers(boundary, ST_SetSRID(ST_MakePoint($1, $2), 4326))
		ORDER BY title
	`, lon, lat)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// AssignVehicle links a vehicle to a geofence, idempotently.
func (r *GeofenceRepo) AssignVehicle(ctx context.Context, geofenceID, imei string) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO geofence_vehicles (geofence_id, imei)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, geofenceID, imei)
	return err
}

// UnassignVehicle removes a vehicle link.
func (r *GeofenceRepo) UnassignVehicle(ctx context.Context, geofenceID, imei string) error {
	_, err := r.db.Pool.Exec(ctx, `
		DELETE FROM geofence_vehicles WHERE geofence_id = $1 AND imei = $2
	`, geofenceID, imei)
	return err
}

// ListVehicles returns the vehicles assigned to a geofence.
func (r *GeofenceRepo) ListVehicles(ctx context.Context, geofenceID string) ([]domain.Vehicle, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT v.imei, v.label,
		       ST_Y(v.last_location::geometry), ST_X(v.last_location::geometry),
		       v.last_seen, v.created_at
		FROM vehicles v
		JOIN geofence_vehicles gv ON gv.imei = v.imei
		WHERE gv.geofence_id = $1
		ORDER BY v.imei
	`, geofenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanVehicles(rows)
}

// AssignUser subscribes a user to a geofence's alerts, idempotently.
func (r *GeofenceRepo) AssignUser(ctx context.Context, geofenceID, userID string) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO geofence_users (geofence_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, geofenceID, userID)
	return err
}

// UnassignUser removes an alert subscription.
func (r *GeofenceRepo) UnassignUser(ctx context.Context, geofenceID, userID string) error {
	_, err := r.db.Pool.Exec(ctx, `
		DELETE FROM geofence_users WHERE geofence_id = $1 AND user_id = $2
	`, geofenceID, userID)
	return err
}

// ListUsers returns the user ids subscribed to a geofence.
func (r *GeofenceRepo) ListUsers(ctx context.Context, geofenceID string) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT user_id FROM geofence_users WHERE geofence_id = $1 ORDER BY user_id
	`, geofenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *GeofenceRepo) scanOne(row pgx.Row) (*domain.Geofence, error) {
	var f domain.Geofence
	var boundary []byte
	err := row.Scan(&f.ID, &f.Title, &f.Type, &boundary, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(boundary, &f.Boundary); err != nil {
		return nil, fmt.Errorf("decode boundary: %w", err)
	}
	return &f, nil
}

func (r *GeofenceRepo) scanAll(rows pgx.Rows) ([]domain.Geofence, error) {
	var fences []domain.Geofence
	for rows.Next() {
		var f domain.Geofence
		var boundary []byte
		if err := rows.Scan(&f.ID, &f.Title, &f.Type, &boundary, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		var g geojson.Geometry
		if err := json.Unmarshal(boundary, &g); err != nil {
			return nil, fmt.Errorf("decode boundary: %w", err)
		}
		f.Boundary = &g
		fences = append(fences, f)
	}
	return fences, rows.Err()
}
