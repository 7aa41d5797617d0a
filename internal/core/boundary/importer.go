package boundary

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
)

// MaxFileSize is the upload cap. Inputs are processed wholly in memory.
const MaxFileSize = 10 * 1024 * 1024

// Importer converts an uploaded boundary file (.kml, .kmz, or a zipped
// shapefile) into a WGS84 Polygon or MultiPolygon with [lng, lat] axis
// order and closed exterior rings. One call, one result; failures are
// terminal and never retried.
type Importer struct {
	shapefile ShapefileSupport
}

type Option func(*Importer)

// WithShapefile enables .zip shapefile imports.
func WithShapefile(s ShapefileSupport) Option {
	return func(i *Importer) { i.shapefile = s }
}

func NewImporter(opts ...Option) *Importer {
	imp := &Importer{}
	for _, opt := range opts {
		opt(imp)
	}
	return imp
}

// Import validates the upload, dispatches on the filename extension and
// returns the extracted geometry. The error is always a *Error whose
// Kind callers can branch on, except for reader failures.
func (imp *Importer) Import(ctx context.Context, filename string, r io.Reader) (orb.Geometry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, errEmptyInput()
	}
	if len(data) > MaxFileSize {
		return nil, errTooLarge()
	}

	var polys []orb.Polygon
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".kmz":
		polys, err = parseKMZ(data)
	case ".kml":
		polys, err = parseKML(data)
	case ".zip":
		if imp.shapefile == nil {
			return nil, errShapefileUnavailable()
		}
		polys, err = imp.shapefile.Decode(ctx, data)
	default:
		return nil, errUnsupportedExtension()
	}
	if err != nil {
		return nil, err
	}
	return aggregate(polys)
}

// aggregate picks the result shape: exactly one polygon stays a
// Polygon, two or more become a MultiPolygon in extraction order. Zero
// polygons is an error, never an empty geometry.
func aggregate(polys []orb.Polygon) (orb.Geometry, error) {
	switch len(polys) {
	case 0:
		return nil, errNoBoundary()
	case 1:
		return polys[0], nil
	default:
		return orb.MultiPolygon(polys), nil
	}
}
