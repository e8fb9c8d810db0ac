package style

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Overlay is the polygon collection drawn above the basemap. Bound is also
// published as the collection bbox.
type Overlay struct {
	Collection *geojson.FeatureCollection
	Bound      orb.Bound
}

// LoadOverlay reads a GeoJSON feature collection. Features without polygon
// geometry are rejected.
func LoadOverlay(path string) (*Overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read overlay: %w", err)
	}
	return ParseOverlay(data)
}

// ParseOverlay parses a GeoJSON feature collection of polygons
func ParseOverlay(data []byte) (*Overlay, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("invalid overlay GeoJSON: %w", err)
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("overlay has no features")
	}

	var bound orb.Bound
	for i, f := range fc.Features {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			return nil, fmt.Errorf("overlay feature %d is a %s, want Polygon or MultiPolygon", i, geometryType(f.Geometry))
		}

		if i == 0 {
			bound = f.Geometry.Bound()
		} else {
			bound = bound.Union(f.Geometry.Bound())
		}
	}

	fc.BBox = geojson.NewBBox(bound)
	return &Overlay{Collection: fc, Bound: bound}, nil
}

// MarshalJSON encodes the overlay as a GeoJSON feature collection
func (o *Overlay) MarshalJSON() ([]byte, error) {
	return o.Collection.MarshalJSON()
}

func geometryType(g orb.Geometry) string {
	if g == nil {
		return "null geometry"
	}
	return g.GeoJSONType()
}
