package style

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiesman99/demtile/pkg/dem"
)

func testBuilder(overlay string, enc dem.Encoding) *Builder {
	return NewBuilder(Options{
		TerrainTiles:   "http://localhost:8080/tiles/{z}/{x}/{y}.png",
		TerrainMaxZoom: 14,
		Encoding:       enc,
		Exaggeration:   1.5,
		Center:         [2]float64{139.3491813, 35.3273838},
		Zoom:           10,
		OverlayURL:     overlay,
	})
}

func TestStyle_Basemap(t *testing.T) {
	b := testBuilder("", dem.DefaultEncoding())
	assert.Equal(t, []string{"osm", "gsi-std", "gsi-pale", "gsi-photo", "cs-kanagawa", "cs-shizuoka"}, b.Names())

	st, err := b.Style("gsi-pale")
	require.NoError(t, err)

	assert.Equal(t, 8, st.Version)
	require.Len(t, st.Layers, 1)
	assert.Equal(t, "gsi-pale-tiles", st.Layers[0].Source)
	assert.Equal(t, []string{"https://cyberjapandata.gsi.go.jp/xyz/pale/{z}/{x}/{y}.png"}, st.Sources["gsi-pale-tiles"].Tiles)

	terrain := st.Sources[TerrainSourceID]
	assert.Equal(t, "raster-dem", terrain.Type)
	assert.Equal(t, "mapbox", terrain.Encoding)
	assert.Equal(t, 14, terrain.MaxZoom)
	assert.Equal(t, []string{"http://localhost:8080/tiles/{z}/{x}/{y}.png"}, terrain.Tiles)
	require.NotNil(t, st.Terrain)
	assert.Equal(t, 1.5, st.Terrain.Exaggeration)
}

func TestStyle_Unknown(t *testing.T) {
	_, err := testBuilder("", dem.DefaultEncoding()).Style("watercolor")
	assert.True(t, errors.Is(err, ErrUnknownBasemap))
}

func TestStyle_Overlay(t *testing.T) {
	st, err := testBuilder("/api/v1/overlay.geojson", dem.DefaultEncoding()).Style("osm")
	require.NoError(t, err)

	require.Len(t, st.Layers, 2)
	assert.Equal(t, OverlayLayerID, st.Layers[1].ID)
	assert.Equal(t, "line", st.Layers[1].Type)
	assert.Equal(t, "navy", st.Layers[1].Paint["line-color"])
	assert.Equal(t, "/api/v1/overlay.geojson", st.Sources[OverlaySourceID].Data)
}

func TestStyle_CustomEncoding(t *testing.T) {
	enc := dem.DefaultEncoding()
	enc.TargetOffset = 500
	enc.TargetStep = 1

	src := testBuilder("", enc).TerrainSource()
	assert.Equal(t, "custom", src.Encoding)
	assert.Equal(t, 65536.0, *src.RedFactor)
	assert.Equal(t, 256.0, *src.GreenFactor)
	assert.Equal(t, 1.0, *src.BlueFactor)
	assert.Equal(t, 500.0, *src.BaseShift)
	assert.Equal(t, 256, src.TileSize)
}

// unpack decodes a pixel the way a raster-dem renderer does with the source settings
func unpack(t *testing.T, src Source, r, g, b uint8) float64 {
	t.Helper()
	if src.Encoding == "mapbox" {
		return float64(r)*6553.6 + float64(g)*25.6 + float64(b)*0.1 - 10000
	}
	require.Equal(t, "custom", src.Encoding)
	return float64(r)**src.RedFactor + float64(g)**src.GreenFactor + float64(b)**src.BlueFactor - *src.BaseShift
}

func TestTerrainSource_RendererRoundTrip(t *testing.T) {
	custom := dem.DefaultEncoding()
	custom.MinElevation = -500
	custom.TargetOffset = 500
	custom.TargetStep = 1

	testCases := []struct {
		name      string
		enc       dem.Encoding
		elevation float64
	}{
		{"Default sea level", dem.DefaultEncoding(), 0},
		{"Default Fuji", dem.DefaultEncoding(), 3776},
		{"Custom", custom, 100},
		{"Custom below sea level", custom, -42},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			src := testBuilder("", tc.enc).TerrainSource()
			r, g, b := tc.enc.Encode(tc.elevation)
			assert.InDelta(t, tc.elevation, unpack(t, src, r, g, b), tc.enc.TargetStep+1e-6)
		})
	}
}

func TestTerrainSource_TileSize(t *testing.T) {
	b := NewBuilder(Options{
		TerrainTiles: "http://localhost:8080/tiles/{z}/{x}/{y}.png",
		TileSize:     512,
		Encoding:     dem.DefaultEncoding(),
	})
	assert.Equal(t, 512, b.TerrainSource().TileSize)

	st, err := b.Style("osm")
	require.NoError(t, err)
	assert.Equal(t, 512, st.Sources[TerrainSourceID].TileSize)
}

func TestStyle_JSON(t *testing.T) {
	st, err := testBuilder("", dem.DefaultEncoding()).Style("osm")
	require.NoError(t, err)

	data, err := json.Marshal(st)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, float64(8), doc["version"])
	assert.Equal(t, map[string]any{"source": TerrainSourceID, "exaggeration": 1.5}, doc["terrain"])
}

func TestTileJSON(t *testing.T) {
	tj := testBuilder("", dem.DefaultEncoding()).TileJSON("1.0.0")
	assert.Equal(t, "3.0.0", tj.Tilejson)
	assert.Equal(t, 14, tj.Maxzoom)
	require.NotNil(t, tj.Encoding)
	assert.Equal(t, 10000.0, tj.Encoding.Offset)
	assert.Equal(t, 0.1, tj.Encoding.Step)
}

func TestParseOverlay(t *testing.T) {
	ov, err := ParseOverlay([]byte(`{
		"type": "FeatureCollection",
		"features": [
			{"type": "Feature", "properties": {"name": "a"},
			 "geometry": {"type": "Polygon", "coordinates": [[[139,35],[140,35],[140,36],[139,35]]]}},
			{"type": "Feature", "properties": {"name": "b"},
			 "geometry": {"type": "Polygon", "coordinates": [[[138,34],[139,34],[139,35],[138,34]]]}}
		]
	}`))
	require.NoError(t, err)
	assert.Len(t, ov.Collection.Features, 2)
	assert.Equal(t, 138.0, ov.Bound.Min[0])
	assert.Equal(t, 36.0, ov.Bound.Max[1])
	assert.Equal(t, []float64{138, 34, 140, 36}, []float64(ov.Collection.BBox))

	_, err = ParseOverlay([]byte(`{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]}}]}`))
	assert.Error(t, err)

	_, err = ParseOverlay([]byte(`{"type":"FeatureCollection","features":[]}`))
	assert.Error(t, err)

	_, err = ParseOverlay([]byte(`not json`))
	assert.Error(t, err)
}
