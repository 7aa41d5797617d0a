package http

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/fenceline/internal/core/boundary"
	"github.com/samirrijal/fenceline/internal/core/domain"
	"github.com/samirrijal/fenceline/internal/pkg/metrics"
)

// SystemStats holds row counts across the geofencing tables.
type SystemStats struct {
	Geofences     int    `json:"geofences"`
	Vehicles      int    `json:"vehicles"`
	Events        int    `json:"events"`
	Notifications int    `json:"notifications"`
	LastImport    string `json:"last_import,omitempty"`
}

// SystemStatsHandler returns row counts from the geofencing tables.
func SystemStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.DB == nil {
			return errInternal(c, "database not available")
		}

		var stats SystemStats
		row := deps.DB.Pool.QueryRow(c.Context(), `
			SELECT
				(SELECT count(*) FROM geofences),
				(SELECT count(*) FROM vehicles),
				(SELECT count(*) FROM geofence_events),
				(SELECT count(*) FROM notifications),
				COALESCE((SELECT max(created_at)::text FROM geofences), '')
		`)
		if err := row.Scan(&stats.Geofences, &stats.Vehicles, &stats.Events,
			&stats.Notifications, &stats.LastImport); err != nil {
			return errInternal(c, err.Error())
		}

		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(stats)
	}
}

// ListGeofencesHandler returns a page of geofences.
func ListGeofencesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := c.Query("q")
		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 20)

		fences, total, err := deps.Geofences.List(c.Context(), query, offset, limit)
		if err != nil {
			return errInternal(c, err.Error())
		}

		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 100 {
			limit = 20
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: fences, Pagination: pg})
	}
}

// GetGeofenceHandler returns a single geofence by ID.
func GetGeofenceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "geofence id is required")
		}
		fence, err := deps.Geofences.Get(c.Context(), id)
		if err != nil {
			return errNotFound(c, "geofence not found")
		}
		return c.JSON(fence)
	}
}

// geofenceRequest is the JSON body for create and update.
type geofenceRequest struct {
	Title    string          `json:"title"`
	Type     string          `json:"type"`
	Boundary json.RawMessage `json:"boundary"`
}

// CreateGeofenceHandler creates a geofence from a GeoJSON boundary.
func CreateGeofenceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req geofenceRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		geom, err := decodeBoundary(req.Boundary)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		fence, err := deps.Geofences.Create(c.Context(), req.Title, domain.GeofenceType(req.Type), geom)
		if err != nil {
			return serviceError(c, err)
		}
		return c.Status(201).JSON(fence)
	}
}

// UpdateGeofenceHandler applies partial changes to a geofence.
func UpdateGeofenceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "geofence id is required")
		}

		var req geofenceRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		geom, err := decodeBoundary(req.Boundary)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		fence, err := deps.Geofences.Update(c.Context(), id, req.Title, domain.GeofenceType(req.Type), geom)
		if err != nil {
			return serviceError(c, err)
		}
		return c.JSON(fence)
	}
}

// DeleteGeofenceHandler removes a geofence.
func DeleteGeofenceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "geofence id is required")
		}
		if err := deps.Geofences.Delete(c.Context(), id); err != nil {
			return errNotFound(c, "geofence not found")
		}
		return c.SendStatus(204)
	}
}

// ImportGeofenceHandler creates a geofence from an uploaded boundary
// file (.kml, .kmz, or zipped shapefile).
func ImportGeofenceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return errBadRequest(c, "file form field is required")
		}
		title := c.FormValue("title")
		ftype := domain.GeofenceType(c.FormValue("type"))

		f, err := fh.Open()
		if err != nil {
			return errInternal(c, err.Error())
		}
		defer f.Close()

		start := time.Now()
		fence, err := deps.Geofences.ImportBoundary(c.Context(), title, ftype, fh.Filename, f)
		if err != nil {
			metrics.ObserveImport(importFormat(fh.Filename), boundary.KindOf(err).String(), time.Since(start))
			return importError(c, err)
		}
		metrics.ObserveImport(importFormat(fh.Filename), "ok", time.Since(start))

		return c.Status(201).JSON(fence)
	}
}

// PreviewImportHandler runs the boundary pipeline on an upload and
// returns the GeoJSON without persisting anything.
func PreviewImportHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return errBadRequest(c, "file form field is required")
		}

		f, err := fh.Open()
		if err != nil {
			return errInternal(c, err.Error())
		}
		defer f.Close()

		start := time.Now()
		geom, err := deps.Geofences.PreviewBoundary(c.Context(), fh.Filename, f)
		if err != nil {
			metrics.ObserveImport(importFormat(fh.Filename), boundary.KindOf(err).String(), time.Since(start))
			return importError(c, err)
		}
		metrics.ObserveImport(importFormat(fh.Filename), "ok", time.Since(start))

		return c.JSON(fiber.Map{"boundary": geom})
	}
}

// ReplaceBoundaryHandler swaps an existing geofence's boundary for one
// imported from an uploaded file.
func ReplaceBoundaryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "geofence id is required")
		}
		fh, err := c.FormFile("file")
		if err != nil {
			return errBadRequest(c, "file form field is required")
		}

		f, err := fh.Open()
		if err != nil {
			return errInternal(c, err.Error())
		}
		defer f.Close()

		start := time.Now()
		fence, err := deps.Geofences.ReplaceBoundary(c.Context(), id, fh.Filename, f)
		if err != nil {
			metrics.ObserveImport(importFormat(fh.Filename), boundary.KindOf(err).String(), time.Since(start))
			return importError(c, err)
		}
		metrics.ObserveImport(importFormat(fh.Filename), "ok", time.Since(start))

		return c.JSON(fence)
	}
}

// LookupGeofencesHandler returns the geofences covering a point.
func LookupGeofencesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Query("lat") == "" || c.Query("lon") == "" {
			return errBadRequest(c, "lat and lon are required")
		}
		lat := c.QueryFloat("lat", 0)
		lon := c.QueryFloat("lon", 0)
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return errBadRequest(c, "lat/lon out of range")
		}

		fences, err := deps.Geofences.Lookup(c.Context(), lat, lon)
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(fiber.Map{"geofences": fences, "count": len(fences)})
	}
}

// GeofenceStatsHandler returns derived boundary measurements.
func GeofenceStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "geofence id is required")
		}
		stats, err := deps.Geofences.Stats(c.Context(), id)
		if err != nil {
			return errNotFound(c, "geofence not found")
		}
		c.Set("Cache-Control", "public, max-age=300")
		return c.JSON(stats)
	}
}

// GeofenceEventsHandler returns events for one geofence.
func GeofenceEventsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "geofence id is required")
		}
		limit := c.QueryInt("limit", 50)

		var since time.Time
		if raw := c.Query("since"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return errBadRequest(c, "since must be RFC 3339")
			}
			since = t
		}

		events, err := deps.Events.ListByGeofence(c.Context(), id, since, limit)
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(events)
	}
}

// RecentEventsHandler returns the latest events across all geofences.
func RecentEventsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 50)
		events, err := deps.Events.Recent(c.Context(), limit)
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(events)
	}
}

// ListGeofenceVehiclesHandler returns vehicles assigned to a geofence.
func ListGeofenceVehiclesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "geofence id is required")
		}
		vehicles, err := deps.Geofences.ListVehicles(c.Context(), id)
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(vehicles)
	}
}

// AssignVehicleHandler links a vehicle to a geofence.
func AssignVehicleHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Geofences.AssignVehicle(c.Context(), c.Params("id"), c.Params("imei")); err != nil {
			return errBadRequest(c, err.Error())
		}
		return c.SendStatus(204)
	}
}

// UnassignVehicleHandler removes a vehicle link.
func UnassignVehicleHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Geofences.UnassignVehicle(c.Context(), c.Params("id"), c.Params("imei")); err != nil {
			return errInternal(c, err.Error())
		}
		return c.SendStatus(204)
	}
}

// AssignUserHandler subscribes a user to a geofence's alerts.
func AssignUserHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Geofences.AssignUser(c.Context(), c.Params("id"), c.Params("user")); err != nil {
			return errBadRequest(c, err.Error())
		}
		return c.SendStatus(204)
	}
}

// UnassignUserHandler removes an alert subscription.
func UnassignUserHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Geofences.UnassignUser(c.Context(), c.Params("id"), c.Params("user")); err != nil {
			return errInternal(c, err.Error())
		}
		return c.SendStatus(204)
	}
}

// ListVehiclesHandler returns the tracked fleet.
func ListVehiclesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 100)
		vehicles, err := deps.Vehicles.List(c.Context(), limit)
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(vehicles)
	}
}

// GetVehicleHandler returns a single vehicle by IMEI.
func GetVehicleHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		imei := c.Params("imei")
		if imei == "" {
			return errBadRequest(c, "vehicle imei is required")
		}
		vehicle, err := deps.Vehicles.Get(c.Context(), imei)
		if err != nil {
			return errNotFound(c, "vehicle not found")
		}
		return c.JSON(vehicle)
	}
}

// RegisterVehicleHandler registers or relabels a vehicle.
func RegisterVehicleHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			IMEI  string `json:"imei"`
			Label string `json:"label"`
		}
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		vehicle, err := deps.Vehicles.Register(c.Context(), req.IMEI, req.Label)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		return c.Status(201).JSON(vehicle)
	}
}

// ReportPositionHandler accepts a position fix and hands it to the
// tracking pipeline.
func ReportPositionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			IMEI       string    `json:"imei"`
			Lat        float64   `json:"lat"`
			Lon        float64   `json:"lon"`
			Speed      float64   `json:"speed"`
			Heading    float64   `json:"heading"`
			RecordedAt time.Time `json:"recorded_at"`
		}
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		pos := &domain.Position{
			IMEI:       req.IMEI,
			Location:   domain.GeoPoint{Lat: req.Lat, Lon: req.Lon},
			Speed:      req.Speed,
			Heading:    req.Heading,
			RecordedAt: req.RecordedAt,
		}
		if err := deps.Vehicles.ReportPosition(c.Context(), pos); err != nil {
			return errBadRequest(c, err.Error())
		}
		return c.Status(202).JSON(fiber.Map{"status": "accepted"})
	}
}

// decodeBoundary parses an optional GeoJSON geometry from a request.
func decodeBoundary(raw json.RawMessage) (*geojson.Geometry, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var g geojson.Geometry
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, errors.New("boundary must be valid GeoJSON")
	}
	return &g, nil
}

// importFormat labels a filename by extension for metrics.
func importFormat(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return "none"
	}
	return ext
}

// importError maps a boundary pipeline failure to its HTTP status,
// passing the pipeline's message through untouched.
func importError(c *fiber.Ctx, err error) error {
	msg := err.Error()
	switch boundary.KindOf(err) {
	case boundary.KindTooLarge:
		return errTooLarge(c, msg)
	case boundary.KindUnsupportedExtension:
		return errUnsupportedMedia(c, msg)
	case boundary.KindNoBoundary, boundary.KindMissingShapefile:
		return errUnprocessable(c, msg)
	case boundary.KindShapefileUnavailable:
		return errNotImplemented(c, msg)
	case boundary.KindEmptyInput, boundary.KindContainerOpen, boundary.KindXMLParse:
		return errBadRequest(c, msg)
	}
	return serviceError(c, err)
}

// serviceError distinguishes persistence failures from validation ones.
func serviceError(c *fiber.Ctx, err error) error {
	msg := err.Error()
	if strings.HasPrefix(msg, "create geofence:") || strings.HasPrefix(msg, "update geofence:") {
		return errInternal(c, msg)
	}
	return errBadRequest(c, msg)
}
