package geospatial

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// Measurements summarises a boundary geometry.
type Measurements struct {
	AreaM2     float64
	PerimeterM float64
	Centroid   orb.Point
	Rings      int
	Vertices   int
}

// Measure computes geodesic area and perimeter plus ring/vertex counts
// for a Polygon or MultiPolygon. Other geometry types yield zeroes.
func Measure(g orb.Geometry) Measurements {
	var m Measurements

	switch geom := g.(type) {
	case orb.Polygon:
		m.Rings, m.Vertices = countPolygon(geom)
	case orb.MultiPolygon:
		for _, poly := range geom {
			r, v := countPolygon(poly)
			m.Rings += r
			m.Vertices += v
		}
	default:
		return m
	}

	m.AreaM2 = geo.Area(g)
	m.PerimeterM = geo.Length(g)
	m.Centroid, _ = planar.CentroidArea(g)
	return m
}

func countPolygon(poly orb.Polygon) (rings, vertices int) {
	rings = len(poly)
	for _, ring := range poly {
		vertices += len(ring)
	}
	return rings, vertices
}
