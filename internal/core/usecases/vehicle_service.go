package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/samirrijal/fenceline/internal/core/domain"
	"github.com/samirrijal/fenceline/internal/core/ports"
)

// VehicleService manages the tracked fleet and incoming positions.
type VehicleService struct {
	vehicles  ports.VehicleRepository
	publisher ports.EventPublisher
}

// NewVehicleService creates a new VehicleService.
func NewVehicleService(vehicles ports.VehicleRepository, publisher ports.EventPublisher) *VehicleService {
	return &VehicleService{vehicles: vehicles, publisher: publisher}
}

// List returns known vehicles, most recently seen first.
func (s *VehicleService) List(ctx context.Context, limit int) ([]domain.Vehicle, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.vehicles.List(ctx, limit)
}

// Get returns a single vehicle by IMEI.
func (s *VehicleService) Get(ctx context.Context, imei string) (*domain.Vehicle, error) {
	return s.vehicles.GetByIMEI(ctx, imei)
}

// Register upserts a vehicle record.
func (s *VehicleService) Register(ctx context.Context, imei, label string) (*domain.Vehicle, error) {
	if !domain.ValidIMEI(imei) {
		return nil, fmt.Errorf("imei must be exactly 15 digits")
	}
	v := &domain.Vehicle{IMEI: imei, Label: label}
	if err := s.vehicles.Upsert(ctx, v); err != nil {
		return nil, fmt.Errorf("upsert vehicle: %w", err)
	}
	return v, nil
}

// ReportPosition records a position fix and fans it out to the
// position stream.
func (s *VehicleService) ReportPosition(ctx context.Context, pos *domain.Position) error {
	if !domain.ValidIMEI(pos.IMEI) {
		return fmt.Errorf("imei must be exactly 15 digits")
	}
	if pos.Location.Lat < -90 || pos.Location.Lat > 90 || pos.Location.Lon < -180 || pos.Location.Lon > 180 {
		return fmt.Errorf("position out of range")
	}
	if pos.RecordedAt.IsZero() {
		pos.RecordedAt = time.Now()
	}

	if err := s.vehicles.UpdatePosition(ctx, pos.IMEI, pos.Location, pos.RecordedAt); err != nil {
		return fmt.Errorf("update vehicle position: %w", err)
	}

	// Tracker instances consume the stream; delivery is best effort.
	_ = s.publisher.PublishPosition(ctx, pos)

	return nil
}
