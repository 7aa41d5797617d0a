package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/fenceline/internal/core/domain"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber sharing a NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
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
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribePositions feeds every position fix to the handler. Failed
// handlers trigger redelivery, up to three attempts.
func (s *Subscriber) SubscribePositions(ctx context.Context, handler func(ctx context.Context, pos *domain.Position) error) error {
	sub, err := s.js.Subscribe("fleet.position.>", func(msg *nats.Msg) {
		var pos domain.Position
		if err := json.Unmarshal(msg.Data, &pos); err != nil {
			_ = msg.Nak()
			return
		}
		if err := handler(ctx, &pos); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("position-tracker"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// SubscribeEvents feeds geofence crossings to the handler.
func (s *Subscriber) SubscribeEvents(ctx context.Context, handler func(ctx context.Context, event *domain.GeofenceEvent) error) error {
	sub, err := s.js.Subscribe("fence.event.>", func(msg *nats.Msg) {
		var event domain.GeofenceEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			_ = msg.Nak()
			return
		}
		if err := handler(ctx, &event); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("event-alerter"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// SubscribeBoundaryUpdates notifies the handler with the geofence id
// whenever a boundary is created or replaced.
func (s *Subscriber) SubscribeBoundaryUpdates(ctx context.Context, handler func(ctx context.Context, geofenceID string) error) error {
	sub, err := s.js.Subscribe("fence.boundary.>", func(msg *nats.Msg) {
		id := strings.TrimPrefix(msg.Subject, "fence.boundary.")
		if err := handler(ctx, id); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("boundary-watcher"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
