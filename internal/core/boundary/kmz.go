package boundary

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"

	"github.com/paulmach/orb"
)

// parseKMZ opens a KMZ container and feeds the first .kml entry to the
// KML parser. An archive without any .kml entry yields no polygons.
func parseKMZ(data []byte) ([]orb.Polygon, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errContainerOpen(err)
	}

	for _, entry := range zr.File {
		if !strings.HasSuffix(strings.ToLower(entry.Name), ".kml") {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return nil, errContainerOpen(err)
		}
		kml, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, errContainerOpen(err)
		}
		return parseKML(kml)
	}

	return nil, nil
}
