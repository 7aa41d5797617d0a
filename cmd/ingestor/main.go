// The ingestor bulk-loads geofence boundaries from a manifest of KML,
// KMZ, and zipped shapefile sources, upserting by title so re-runs
// refresh existing fences instead of duplicating them.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb/geojson"

	natsadapter "github.com/samirrijal/fenceline/internal/adapters/nats"
	"github.com/samirrijal/fenceline/internal/adapters/projection"
	"github.com/samirrijal/fenceline/internal/core/boundary"
	"github.com/samirrijal/fenceline/internal/core/domain"
	"github.com/samirrijal/fenceline/internal/pkg/config"
)

// ---------------------------------------------------------------------------
// Manifest types
// ---------------------------------------------------------------------------

type Manifest struct {
	Source     string          `json:"source"`
	Boundaries []BoundaryEntry `json:"boundaries"`
}

// BoundaryEntry names one fence to load. File is a local path or an
// http(s) URL to a .kml, .kmz, or zipped shapefile.
type BoundaryEntry struct {
	Title string `json:"title"`
	Type  string `json:"type,omitempty"` // Entry or Exit, defaults to Entry
	File  string `json:"file"`
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	cfg, err := config.Load("fenceline-ingestor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	importerOpts := []boundary.Option{}
	if cfg.Shapefile.Enabled {
		projector, err := projection.New(ctx)
		if err != nil {
			log.Printf("shapefile reprojection unavailable, assuming WGS84 inputs: %v", err)
			importerOpts = append(importerOpts, boundary.WithShapefile(boundary.NewShapefileDecoder(nil)))
		} else {
			defer projector.Close()
			importerOpts = append(importerOpts, boundary.WithShapefile(boundary.NewShapefileDecoder(projector)))
		}
	}
	importer := boundary.NewImporter(importerOpts...)

	// The bus is optional here: trackers pick up silent changes on their
	// periodic refresh, just later.
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Printf("nats unavailable, boundary notices skipped: %v", err)
		pub = nil
	} else {
		defer pub.Close()
	}

	// Load manifest
	manifestPath := "manifest.json"
	if len(os.Args) > 1 {
		manifestPath = os.Args[1]
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		log.Fatalf("read manifest: %v", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		log.Fatalf("parse manifest: %v", err)
	}

	log.Printf("Fenceline Boundary Ingestor — %d boundaries from %s", len(manifest.Boundaries), manifest.Source)

	// Filter boundaries (optional CLI arg: title list)
	titleFilter := map[string]bool{}
	if len(os.Args) > 2 {
		for _, t := range strings.Split(os.Args[2], ",") {
			titleFilter[strings.ToLower(strings.TrimSpace(t))] = true
		}
	}

	client := &http.Client{Timeout: 120 * time.Second}

	var wg sync.WaitGroup
	sem := make(chan struct{}, 4) // max 4 concurrent imports

	for _, entry := range manifest.Boundaries {
		if len(titleFilter) > 0 && !titleFilter[strings.ToLower(entry.Title)] {
			continue
		}

		wg.Add(1)
		go func(e BoundaryEntry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ingestBoundary(ctx, pool, client, importer, pub, e); err != nil {
				log.Printf("ERROR [%s]: %v", e.Title, err)
			}
		}(entry)
	}

	wg.Wait()
	log.Println("ingestion complete")
}

// ---------------------------------------------------------------------------
// Per-boundary ingestion
// ---------------------------------------------------------------------------

func ingestBoundary(ctx context.Context, pool *pgxpool.Pool, client *http.Client, importer *boundary.Importer, pub *natsadapter.Publisher, entry BoundaryEntry) error {
	if entry.Title == "" {
		return fmt.Errorf("entry with file %q has no title", entry.File)
	}

	ftype := domain.GeofenceType(entry.Type)
	if ftype == "" {
		ftype = domain.GeofenceEntry
	}
	if ftype != domain.GeofenceEntry && ftype != domain.GeofenceExit {
		return fmt.Errorf("type must be Entry or Exit, got %q", entry.Type)
	}

	data, err := fetchBoundary(ctx, client, entry.File)
	if err != nil {
		return err
	}

	log.Printf("[%s] importing %s (%d bytes)", entry.Title, entry.File, len(data))

	geom, err := importer.Import(ctx, filepath.Base(entry.File), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	gj := geojson.NewGeometry(geom)
	raw, err := json.Marshal(gj)
	if err != nil {
		return fmt.Errorf("encode boundary: %w", err)
	}

	id, err := upsertGeofence(ctx, pool, entry.Title, ftype, raw)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	log.Printf("[%s] geofence_id=%s type=%s geometry=%s", entry.Title, id, ftype, geom.GeoJSONType())

	if pub != nil {
		fence := &domain.Geofence{ID: id, Title: entry.Title, Type: ftype, Boundary: gj}
		if err := pub.PublishBoundaryUpdated(ctx, fence); err != nil {
			log.Printf("[%s] boundary notice: %v", entry.Title, err)
		}
	}

	return nil
}

// fetchBoundary reads a manifest source, downloading when it looks like
// a URL and hitting the filesystem otherwise.
func fetchBoundary(ctx context.Context, client *http.Client, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("download: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, source)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return body, nil
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// ---------------------------------------------------------------------------
// Geofence upsert
// ---------------------------------------------------------------------------

func upsertGeofence(ctx context.Context, pool *pgxpool.Pool, title string, ftype domain.GeofenceType, boundaryJSON []byte) (string, error) {
	var id string
	err := pool.QueryRow(ctx, `
		INSERT INTO geofences (title, type, boundary)
		VALUES ($1, $2, ST_SetSRID(ST_GeomFromGeoJSON($3), 4326))
		ON CONFLICT (lower(title)) DO UPDATE
		SET type = EXCLUDED.type, boundary = EXCLUDED.boundary, updated_at = now()
		RETURNING id
	`, title, string(ftype), string(boundaryJSON)).Scan(&id)
	return id, err
}
