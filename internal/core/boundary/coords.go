package boundary

import (
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// parseCoordinates turns KML <coordinates> text into [lng, lat] points.
// Entries are separated by any whitespace (newlines included); within an
// entry the fields are comma-separated lng,lat[,alt]. Altitude is dropped.
// Entries that do not yield two parseable floats are skipped.
func parseCoordinates(text string) []orb.Point {
	var points []orb.Point
	for _, tok := range strings.Fields(text) {
		tok = strings.TrimRight(tok, ",")
		fields := strings.Split(tok, ",")
		if len(fields) < 2 {
			continue
		}
		lng, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			continue
		}
		lat, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		points = append(points, orb.Point{lng, lat})
	}
	return points
}

// closeRing appends the first point when the ring is open. Rings shorter
// than 2 points are returned unchanged; the caller rejects rings with
// fewer than 3 points before calling this.
func closeRing(ring orb.Ring) orb.Ring {
	if len(ring) < 2 {
		return ring
	}
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}
