package domain

import "github.com/paulmach/orb"

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Orb converts to the orb representation, which is [lng, lat] ordered.
func (p GeoPoint) Orb() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// FromOrb builds a GeoPoint from an orb [lng, lat] point.
func FromOrb(p orb.Point) GeoPoint {
	return GeoPoint{Lat: p[1], Lon: p[0]}
}
