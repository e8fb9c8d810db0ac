package style

import "github.com/kiesman99/demtile/pkg/dem"

// TileJSON describes the terrain tile set
type TileJSON struct {
	Tilejson    string    `json:"tilejson"`
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	Version     string    `json:"version,omitempty"`
	Attribution string    `json:"attribution,omitempty"`
	Scheme      string    `json:"scheme"`
	Tiles       []string  `json:"tiles"`
	Minzoom     int       `json:"minzoom"`
	Maxzoom     int       `json:"maxzoom"`
	Bounds      []float64 `json:"bounds,omitempty"`
	Center      []float64 `json:"center,omitempty"`

	// Non-standard: how the raster-dem pixels decode to metres
	Encoding *TileEncoding `json:"encoding,omitempty"`
}

// TileEncoding documents the pixel encoding of a raster-dem tile set
type TileEncoding struct {
	Offset       float64 `json:"offset"`
	Step         float64 `json:"step"`
	MinElevation float64 `json:"min_elevation"`
	MaxElevation float64 `json:"max_elevation"`
}

// TileJSON returns the TileJSON document of the terrain source
func (b *Builder) TileJSON(version string) TileJSON {
	src := b.TerrainSource()
	return TileJSON{
		Tilejson:    "3.0.0",
		Name:        TerrainSourceID,
		Description: "GSI elevation tiles re-encoded as raster-DEM",
		Version:     version,
		Attribution: src.Attribution,
		Scheme:      "xyz",
		Tiles:       src.Tiles,
		Minzoom:     0,
		Maxzoom:     src.MaxZoom,
		Bounds:      []float64{-180, -85.0511, 180, 85.0511},
		Center:      []float64{b.opts.Center[0], b.opts.Center[1], b.opts.Zoom},
		Encoding:    tileEncoding(b.opts.Encoding),
	}
}

func tileEncoding(enc dem.Encoding) *TileEncoding {
	return &TileEncoding{
		Offset:       enc.TargetOffset,
		Step:         enc.TargetStep,
		MinElevation: enc.MinElevation,
		MaxElevation: enc.MaxElevation,
	}
}
