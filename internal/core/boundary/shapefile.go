package boundary

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
)

// ShapefileSupport decodes a zipped ESRI shapefile into polygons. It is
// an optional capability: importers built without it still handle KML
// and KMZ, and .zip uploads are refused instead of crashing.
type ShapefileSupport interface {
	Decode(ctx context.Context, archive []byte) ([]orb.Polygon, error)
}

// Reprojector transforms points from a source CRS, given as .prj WKT,
// into WGS84 lng/lat.
type Reprojector interface {
	ToWGS84(ctx context.Context, srcWKT string, points []orb.Point) ([]orb.Point, error)
}

// ShapefileDecoder reads polygon records out of a zipped shapefile.
// With a nil Reprojector, or when the .prj is missing or the transform
// fails, coordinates are passed through as-is on the assumption that
// they are already WGS84. That fallback can mislocate boundaries from
// projected shapefiles shipped without a .prj; it mirrors how GIS tools
// commonly treat bare shapefiles and is deliberate.
type ShapefileDecoder struct {
	re Reprojector
}

func NewShapefileDecoder(re Reprojector) *ShapefileDecoder {
	return &ShapefileDecoder{re: re}
}

// Decode extracts the archive to a scratch directory, reads the first
// .shp member, and returns one single-ring polygon per polygon part.
// Only POLYGON (5) and POLYGONZ (15) records are considered.
func (d *ShapefileDecoder) Decode(ctx context.Context, archive []byte) ([]orb.Polygon, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, errContainerOpen(err)
	}

	dir, err := os.MkdirTemp("", "boundary-shp-")
	if err != nil {
		return nil, errContainerOpen(err)
	}
	defer os.RemoveAll(dir)

	// Member paths are flattened to their base name. Nested archives
	// stay readable and entry names can never escape the scratch dir.
	var shpPath, prjPath string
	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		base := filepath.Base(entry.Name)
		path := filepath.Join(dir, base)
		if err := extractMember(entry, path); err != nil {
			return nil, errContainerOpen(err)
		}
		lower := strings.ToLower(base)
		switch {
		case strings.HasSuffix(lower, ".shp") && shpPath == "":
			shpPath = path
		case strings.HasSuffix(lower, ".prj") && prjPath == "":
			prjPath = path
		}
	}

	if shpPath == "" {
		return nil, errMissingShapefile()
	}

	var prjWKT string
	if prjPath != "" {
		if raw, err := os.ReadFile(prjPath); err == nil {
			prjWKT = strings.TrimSpace(string(raw))
		}
	}

	rings, err := readPolygonRings(shpPath)
	if err != nil {
		// Unreadable or corrupt .shp ends up as "no boundary", the
		// same way an empty one does.
		return nil, nil
	}

	if prjWKT != "" && d.re != nil {
		rings = d.reproject(ctx, prjWKT, rings)
	}

	polys := make([]orb.Polygon, 0, len(rings))
	for _, ring := range rings {
		polys = append(polys, orb.Polygon{closeRing(ring)})
	}
	if len(polys) == 0 {
		return nil, nil
	}
	return polys, nil
}

func extractMember(entry *zip.File, path string) error {
	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func readPolygonRings(shpPath string) ([]orb.Ring, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var rings []orb.Ring
	for reader.Next() {
		_, record := reader.Shape()
		switch s := record.(type) {
		case *shp.Polygon:
			rings = append(rings, partRings(s.Parts, s.Points)...)
		case *shp.PolygonZ:
			rings = append(rings, partRings(s.Parts, s.Points)...)
		}
	}
	if err := reader.Err(); err != nil {
		return nil, err
	}
	return rings, nil
}

// partRings splits a shape's flat point array on its part offset table.
// Part i spans [parts[i], parts[i+1]), the last part runs to the end.
// Parts shorter than 3 points are dropped.
func partRings(parts []int32, points []shp.Point) []orb.Ring {
	n := len(points)
	var rings []orb.Ring
	for i := 0; i < len(parts); i++ {
		start := clampIndex(int(parts[i]), n)
		end := n
		if i < len(parts)-1 {
			end = clampIndex(int(parts[i+1]), n)
		}
		if end-start < 3 {
			continue
		}
		ring := make(orb.Ring, 0, end-start)
		for j := start; j < end; j++ {
			ring = append(ring, orb.Point{points[j].X, points[j].Y})
		}
		rings = append(rings, ring)
	}
	return rings
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// reproject runs every point through the reprojector in one batch. Any
// transform failure falls back to the untransformed coordinates.
func (d *ShapefileDecoder) reproject(ctx context.Context, srcWKT string, rings []orb.Ring) []orb.Ring {
	var flat []orb.Point
	for _, ring := range rings {
		flat = append(flat, ring...)
	}
	if len(flat) == 0 {
		return rings
	}

	out, err := d.re.ToWGS84(ctx, srcWKT, flat)
	if err != nil || len(out) != len(flat) {
		return rings
	}

	result := make([]orb.Ring, len(rings))
	idx := 0
	for i, ring := range rings {
		projected := make(orb.Ring, len(ring))
		copy(projected, out[idx:idx+len(ring)])
		idx += len(ring)
		result[i] = projected
	}
	return result
}
