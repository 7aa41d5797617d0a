package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/fenceline/internal/core/domain"
)

// EventRepo implements ports.EventRepository.
type EventRepo struct {
	db *DB
}

func NewEventRepo(db *DB) *EventRepo {
	return &EventRepo{db: db}
}

// Insert stores one event and fills in its generated id.
func (r *EventRepo) Insert(ctx context.Context, e *domain.GeofenceEvent) error {
	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO geofence_events (geofence_id, imei, event_type, location, occurred_at)
		VALUES ($1, $2, $3, ST_SetSRID(ST_MakePoint($4, $5), 4326)::geography, $6)
		RETURNING id
	`, e.GeofenceID, e.IMEI, e.Type,
		e.Location.Lon, e.Location.Lat, e.OccurredAt).Scan(&e.ID)
}

// InsertBatch stores many events in one round trip and fills in their
// generated ids.
func (r *EventRepo) InsertBatch(ctx context.Context, events []domain.GeofenceEvent) error {
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
			INSERT INTO geofence_events (geofence_id, imei, event_type, location, occurred_at)
			VALUES ($1, $2, $3, ST_SetSRID(ST_MakePoint($4, $5), 4326)::geography, $6)
			RETURNING id
		`, e.GeofenceID, e.IMEI, e.Type,
			e.Location.Lon, e.Location.Lat, e.OccurredAt)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range events {
		if err := br.QueryRow().Scan(&events[i].ID); err != nil {
			return fmt.Errorf("batch insert: %w", err)
		}
	}
	return nil
}

func (r *EventRepo) GetByID(ctx context.Context, id string) (*domain.GeofenceEvent, error) {
	var e domain.GeofenceEvent
	err := r.db.Pool.QueryRow(ctx, `
		SELECT e.id, e.geofence_id, g.title, e.imei, e.event_type,
		       ST_Y(e.location::geometry), ST_X(e.location::geometry),
		       e.occurred_at
		FROM geofence_events e
		JOIN geofences g ON g.id = e.geofence_id
		WHERE e.id = $1
	`, id).Scan(
		&e.ID, &e.GeofenceID, &e.GeofenceTitle, &e.IMEI, &e.Type,
		&e.Location.Lat, &e.Location.Lon, &e.OccurredAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListByGeofence returns events for one geofence, newest first. A zero
// since means no lower bound.
func (r *EventRepo) ListByGeofence(ctx context.Context, geofenceID string, since time.Time, limit int) ([]domain.GeofenceEvent, error) {
	if since.IsZero() {
		since = time.Unix(0, 0)
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT e.id, e.geofence_id, g.title, e.imei, e.event_type,
		       ST_Y(e.location::geometry), ST_X(e.location::geometry),
		       e.occurred_at
		FROM geofence_events e
		JOIN geofences g ON g.id = e.geofence_id
		WHERE e.geofence_id = $1 AND e.occurred_at >= $2
		ORDER BY e.occurred_at DESC
		LIMIT $3
	`, geofenceID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Recent returns the latest events across all geofences.
func (r *EventRepo) Recent(ctx context.Context, limit int) ([]domain.GeofenceEvent, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT e.id, e.geofence_id, g.title, e.imei, e.event_type,
		       ST_Y(e.location::geometry), ST_X(e.location::geometry),
		       e.occurred_at
		FROM geofence_events e
		JOIN geofences g ON g.id = e.geofence_id
		ORDER BY e.occurred_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]domain.GeofenceEvent, error) {
	var events []domain.GeofenceEvent
	for rows.Next() {
		var e domain.GeofenceEvent
		if err := rows.Scan(
			&e.ID, &e.GeofenceID, &e.GeofenceTitle, &e.IMEI, &e.Type,
			&e.Location.Lat, &e.Location.Lon, &e.OccurredAt,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
