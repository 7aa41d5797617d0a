package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/fenceline/internal/core/domain"
)

// VehicleRepo implements ports.VehicleRepository.
type VehicleRepo struct {
	db *DB
}

func NewVehicleRepo(db *DB) *VehicleRepo {
	return &VehicleRepo{db: db}
}

// Upsert registers a vehicle, keeping any previously recorded position.
func (r *VehicleRepo) Upsert(ctx context.Context, v *domain.Vehicle) error {
	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO vehicles (imei, label)
		VALUES ($1, $2)
		ON CONFLICT (imei) DO UPDATE SET label = EXCLUDED.label
		RETURNING created_at
	`, v.IMEI, v.Label).Scan(&v.CreatedAt)
}

func (r *VehicleRepo) GetByIMEI(ctx context.Context, imei string) (*domain.Vehicle, error) {
	v, err := scanVehicle(r.db.Pool.QueryRow(ctx, `
		SELECT imei, label,
		       ST_Y(last_location::geometry), ST_X(last_location::geometry),
		       last_seen, created_at
		FROM vehicles WHERE imei = $1
	`, imei))
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *VehicleRepo) List(ctx context.Context, limit int) ([]domain.Vehicle, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT imei, label,
		       ST_Y(last_location::geometry), ST_X(last_location::geometry),
		       last_seen, created_at
		FROM vehicles
		ORDER BY last_seen DESC NULLS LAST, imei
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanVehicles(rows)
}

// UpdatePosition records the latest fix. Unknown vehicles are
// registered on the fly so trackers never drop positions.
func (r *VehicleRepo) UpdatePosition(ctx context.Context, imei string, loc domain.GeoPoint, seen time.Time) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO vehicles (imei, label, last_location, last_seen)
		VALUES ($1, '', ST_SetSRID(ST_MakePoint($2, $3), 4326)::geography, $4)
		ON CONFLICT (imei) DO UPDATE
		SET last_location = EXCLUDED.last_location, last_seen = EXCLUDED.last_seen
	`, imei, loc.Lon, loc.Lat, seen)
	return err
}

func scanVehicle(row pgx.Row) (*domain.Vehicle, error) {
	var v domain.Vehicle
	var lat, lon *float64
	var seen *time.Time
	if err := row.Scan(&v.IMEI, &v.Label, &lat, &lon, &seen, &v.CreatedAt); err != nil {
		return nil, err
	}
	if lat != nil && lon != nil {
		v.LastLocation = &domain.GeoPoint{Lat: *lat, Lon: *lon}
	}
	v.LastSeen = seen
	return &v, nil
}

func scanVehicles(rows pgx.Rows) ([]domain.Vehicle, error) {
	var vehicles []domain.Vehicle
	for rows.Next() {
		var v domain.Vehicle
		var lat, lon *float64
		var seen *time.Time
		if err := rows.Scan(&v.IMEI, &v.Label, &lat, &lon, &seen, &v.CreatedAt); err != nil {
			return nil, err
		}
		if lat != nil && lon != nil {
			v.LastLocation = &domain.GeoPoint{Lat: *lat, Lon: *lon}
		}
		v.LastSeen = seen
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}
