package domain

import (
	"time"

	"github.com/paulmach/orb/geojson"
)

// GeofenceType controls which boundary transition raises an alert.
type GeofenceType string

const (
	GeofenceEntry GeofenceType = "Entry"
	GeofenceExit  GeofenceType = "Exit"
)

// Geofence is a named boundary with an alert direction. Boundary is a
// GeoJSON Polygon or MultiPolygon in WGS84 [lng, lat] order whose rings
// are closed exterior rings.
type Geofence struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Type      GeofenceType      `json:"type"`
	Boundary  *geojson.Geometry `json:"boundary"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Vehicle is a tracked unit identified by its device IMEI.
type Vehicle struct {
	IMEI         string     `json:"imei"`
	Label        string     `json:"label,omitempty"`
	LastLocation *GeoPoint  `json:"last_location,omitempty"`
	LastSeen     *time.Time `json:"last_seen,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Position is a single location report from a vehicle device. It lives
// on the bus; only its effects (vehicle state, events) are persisted.
type Position struct {
	IMEI       string    `json:"imei"`
	Location   GeoPoint  `json:"location"`
	Speed      float64   `json:"speed"` // km/h
	Heading    float64   `json:"heading,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// EventType is the boundary transition direction of an event.
type EventType string

const (
	EventEntry EventType = "entry"
	EventExit  EventType = "exit"
)

// GeofenceEvent records one vehicle crossing one geofence boundary.
type GeofenceEvent struct {
	ID            string    `json:"id"`
	GeofenceID    string    `json:"geofence_id"`
	GeofenceTitle string    `json:"geofence_title,omitempty"`
	IMEI          string    `json:"imei"`
	Type          EventType `json:"type"`
	Location      GeoPoint  `json:"location"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Notification is an alert delivery record for a geofence event.
type Notification struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	Code      string    `json:"code"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification statuses.
const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)

// BoundaryStats are derived measurements of a geofence boundary.
type BoundaryStats struct {
	AreaM2      float64  `json:"area_m2"`
	PerimeterM  float64  `json:"perimeter_m"`
	Centroid    GeoPoint `json:"centroid"`
	RingCount   int      `json:"ring_count"`
	VertexCount int      `json:"vertex_count"`
}

// ValidIMEI reports whether s is a well-formed device identifier:
// exactly 15 digits.
func ValidIMEI(s string) bool {
	if len(s) != 15 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
