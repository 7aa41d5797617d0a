package boundary

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const simpleKML = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <Placemark>
      <Polygon>
        <outerBoundaryIs>
          <LinearRing>
            <coordinates>85.3,27.7 85.4,27.7 85.4,27.8 85.3,27.7</coordinates>
          </LinearRing>
        </outerBoundaryIs>
      </Polygon>
    </Placemark>
  </Document>
</kml>`

func TestParseKML_SinglePolygon(t *testing.T) {
	polys, err := parseKML([]byte(simpleKML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(polys) != 1 {
		t.Fatalf("expected 1 polygon, got %d", len(polys))
	}

	geom, err := aggregate(polys)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	raw, err := json.Marshal(geojson.NewGeometry(geom))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"Polygon","coordinates":[[[85.3,27.7],[85.4,27.7],[85.4,27.8],[85.3,27.7]]]}`
	if string(raw) != want {
		t.Errorf("geometry mismatch:\n got %s\nwant %s", raw, want)
	}
}

func TestParseKML_BareTags(t *testing.T) {
	// No namespace declaration at all; the walker matches local names.
	kml := `<kml><Document><Placemark><Polygon><coordinates>1,1 2,1 2,2</coordinates></Polygon></Placemark></Document></kml>`
	polys, err := parseKML([]byte(kml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(polys) != 1 {
		t.Fatalf("expected 1 polygon, got %d", len(polys))
	}
}

func TestParseKML_RingClosed(t *testing.T) {
	kml := `<kml><Placemark><Polygon><coordinates>1,1 2,1 2,2</coordinates></Polygon></Placemark></kml>`
	polys, err := parseKML([]byte(kml))
	if err != nil {
		t.Fatal(err)
	}
	ring := polys[0][0]
	if len(ring) != 4 {
		t.Fatalf("expected closed 4-point ring, got %d points", len(ring))
	}
	if ring[0] != ring[3] {
		t.Errorf("ring not closed: %v != %v", ring[0], ring[3])
	}
}

func TestParseKML_TwoPlacemarks(t *testing.T) {
	kml := `<kml><Document>
	  <Placemark><Polygon><coordinates>1,1 2,1 2,2</coordinates></Polygon></Placemark>
	  <Placemark><Polygon><coordinates>5,5 6,5 6,6</coordinates></Polygon></Placemark>
	</Document></kml>`
	polys, err := parseKML([]byte(kml))
	if err != nil {
		t.Fatal(err)
	}
	if len(polys) != 2 {
		t.Fatalf("expected 2 polygons, got %d", len(polys))
	}
	if polys[0][0][0] != (orb.Point{1, 1}) || polys[1][0][0] != (orb.Point{5, 5}) {
		t.Errorf("polygon order not preserved: %v", polys)
	}
}

func TestParseKML_MultiGeometry(t *testing.T) {
	kml := `<kml><Placemark><MultiGeometry>
	  <Polygon><coordinates>1,1 2,1 2,2</coordinates></Polygon>
	  <Polygon><coordinates>5,5 6,5 6,6</coordinates></Polygon>
	</MultiGeometry></Placemark></kml>`
	polys, err := parseKML([]byte(kml))
	if err != nil {
		t.Fatal(err)
	}
	if len(polys) != 2 {
		t.Fatalf("expected 2 polygons from MultiGeometry, got %d", len(polys))
	}
}

func TestParseKML_OnlyFirstCoordinatesPerPolygon(t *testing.T) {
	// The second coordinates block is an inner boundary and must not
	// become its own polygon.
	kml := `<kml><Placemark><Polygon>
	  <outerBoundaryIs><LinearRing><coordinates>0,0 10,0 10,10 0,10</coordinates></LinearRing></outerBoundaryIs>
	  <innerBoundaryIs><LinearRing><coordinates>2,2 4,2 4,4 2,4</coordinates></LinearRing></innerBoundaryIs>
	</Polygon></Placemark></kml>`
	polys, err := parseKML([]byte(kml))
	if err != nil {
		t.Fatal(err)
	}
	if len(polys) != 1 {
		t.Fatalf("expected 1 polygon, got %d", len(polys))
	}
	if len(polys[0]) != 1 {
		t.Fatalf("expected exterior ring only, got %d rings", len(polys[0]))
	}
	if polys[0][0][0] != (orb.Point{0, 0}) {
		t.Errorf("wrong ring selected as exterior: %v", polys[0][0])
	}
}

func TestParseKML_UnknownTagsPruned(t *testing.T) {
	// A Polygon buried under a non-container tag is not reachable.
	kml := `<kml><Document><Style><Polygon><coordinates>1,1 2,1 2,2</coordinates></Polygon></Style></Document></kml>`
	polys, err := parseKML([]byte(kml))
	if err != nil {
		t.Fatal(err)
	}
	if len(polys) != 0 {
		t.Errorf("expected pruned traversal to find nothing, got %d polygons", len(polys))
	}
}

func TestParseKML_ShortRingDropped(t *testing.T) {
	kml := `<kml><Placemark><Polygon><coordinates>1,1 2,2</coordinates></Polygon></Placemark></kml>`
	polys, err := parseKML([]byte(kml))
	if err != nil {
		t.Fatal(err)
	}
	if len(polys) != 0 {
		t.Errorf("expected 2-point ring to be dropped, got %d polygons", len(polys))
	}
}

func TestParseKML_NoPolygons(t *testing.T) {
	kml := `<kml><Document><Placemark><name>just a label</name></Placemark></Document></kml>`
	polys, err := parseKML([]byte(kml))
	if err != nil {
		t.Fatalf("well-formed document must not error: %v", err)
	}
	if len(polys) != 0 {
		t.Errorf("expected no polygons, got %d", len(polys))
	}
}

func TestParseKML_Malformed(t *testing.T) {
	_, err := parseKML([]byte(`<kml><Document>`))
	if err == nil {
		t.Fatal("expected error for truncated XML")
	}
	if KindOf(err) != KindXMLParse {
		t.Errorf("expected KindXMLParse, got %v", KindOf(err))
	}
}

func TestParseKML_AltitudeDiscarded(t *testing.T) {
	kml := `<kml><Placemark><Polygon><coordinates>85.3,27.7,1200 85.4,27.7,1300 85.4,27.8,1250</coordinates></Polygon></Placemark></kml>`
	polys, err := parseKML([]byte(kml))
	if err != nil {
		t.Fatal(err)
	}
	if got := polys[0][0][0]; got != (orb.Point{85.3, 27.7}) {
		t.Errorf("altitude leaked into point: %v", got)
	}
}
