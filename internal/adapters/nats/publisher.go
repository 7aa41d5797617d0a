package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/fenceline/internal/core/domain"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			Name:      "FLEET",
			Subjects:  []string{"fleet.>"},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "FENCE",
			Subjects:  []string{"fence.>"},
			Retention: nats.InterestPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist — try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishPosition fans a position fix out to the tracker workers.
func (p *Publisher) PublishPosition(ctx context.Context, pos *domain.Position) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	_, err = p.js.Publish("fleet.position."+pos.IMEI, data)
	return err
}

// PublishEvent announces one geofence crossing.
func (p *Publisher) PublishEvent(ctx context.Context, event *domain.GeofenceEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.js.Publish("fence.event."+event.GeofenceID, data)
	return err
}

// boundaryNotice is what travels on fence.boundary.*: consumers reload
// the geometry from the database, so the (potentially multi-megabyte)
// boundary itself stays off the wire.
type boundaryNotice struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Type      string    `json:"type"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PublishBoundaryUpdated signals that a geofence boundary changed.
func (p *Publisher) PublishBoundaryUpdated(ctx context.Context, fence *domain.Geofence) error {
	data, err := json.Marshal(boundaryNotice{
		ID:        fence.ID,
		Title:     fence.Title,
		Type:      string(fence.Type),
		UpdatedAt: fence.UpdatedAt,
	})
	if err != nil {
		return err
	}
	_, err = p.js.Publish("fence.boundary."+fence.ID, data)
	return err
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
