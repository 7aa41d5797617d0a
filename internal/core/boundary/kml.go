package boundary

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"

	"github.com/paulmach/orb"
)

// nodeKind classifies a KML element by its namespace-free local name.
// Only container kinds are recursed into, which bounds the walk to the
// branches that can actually carry geometry.
type nodeKind int

const (
	nodePolygon nodeKind = iota
	nodeMultiGeometry
	nodeContainer
	nodeOther
)

func classifyTag(local string) nodeKind {
	switch local {
	case "Polygon":
		return nodePolygon
	case "MultiGeometry":
		return nodeMultiGeometry
	case "Placemark", "Document", "Folder", "kml":
		return nodeContainer
	default:
		return nodeOther
	}
}

// kmlElement is a minimal parsed XML node. Tags are stored by local name
// only, so namespaced and bare documents walk identically.
type kmlElement struct {
	local    string
	text     []byte
	children []*kmlElement
}

func decodeKMLTree(data []byte) (*kmlElement, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var root *kmlElement
	var stack []*kmlElement

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &kmlElement{local: t.Name.Local}
			if len(stack) == 0 {
				if root == nil {
					root = el
				}
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				cur := stack[len(stack)-1]
				cur.text = append(cur.text, t...)
			}
		}
	}

	if root == nil {
		return nil, errors.New("document has no root element")
	}
	return root, nil
}

// parseKML extracts one single-ring polygon per <Polygon> element found
// anywhere in the document. A nil error with an empty result means the
// document was well-formed but carried no polygon.
func parseKML(data []byte) ([]orb.Polygon, error) {
	root, err := decodeKMLTree(data)
	if err != nil {
		return nil, errXMLParse(err)
	}
	return collectPolygons(root, nil), nil
}

func collectPolygons(el *kmlElement, polys []orb.Polygon) []orb.Polygon {
	switch classifyTag(el.local) {
	case nodePolygon:
		// Only the first coordinates block with text counts: it is the
		// exterior ring. Inner boundaries are not imported.
		if text, ok := firstCoordinates(el); ok {
			ring := orb.Ring(parseCoordinates(text))
			if len(ring) >= 3 {
				polys = append(polys, orb.Polygon{closeRing(ring)})
			}
		}
	case nodeMultiGeometry, nodeContainer:
		for _, child := range el.children {
			polys = collectPolygons(child, polys)
		}
	case nodeOther:
		// pruned
	}
	return polys
}

func firstCoordinates(el *kmlElement) (string, bool) {
	if el.local == "coordinates" && len(el.text) > 0 {
		return string(el.text), true
	}
	for _, child := range el.children {
		if text, ok := firstCoordinates(child); ok {
			return text, true
		}
	}
	return "", false
}
