package http

import (
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/fenceline/internal/adapters/postgres"
	"github.com/samirrijal/fenceline/internal/adapters/valkey"
	"github.com/samirrijal/fenceline/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Geofences *usecases.GeofenceService
	Vehicles  *usecases.VehicleService
	Events    *usecases.EventService
	NATS      *nats.Conn
	DB        *postgres.DB
	Cache     *valkey.Cache
}
