// Package style builds the MapLibre style documents served alongside the terrain tiles.
package style

import (
	"errors"
	"fmt"

	"github.com/kiesman99/demtile/pkg/dem"
)

// ErrUnknownBasemap is returned for a basemap name that is not configured
var ErrUnknownBasemap = errors.New("unknown basemap")

// Source and layer identifiers shared by every style
const (
	TerrainSourceID = "gsi-terrain"
	OverlaySourceID = "ryuiki-geojson"
	OverlayLayerID  = "ryuiki-line"
)

const gsiAttribution = `<a href="https://maps.gsi.go.jp/development/ichiran.html" target="_blank">地理院タイル</a>`

// Basemap is a raster tile layer shown under the terrain
type Basemap struct {
	Name        string
	Tiles       []string
	TileSize    int
	MinZoom     int
	MaxZoom     int
	Attribution string
}

// DefaultBasemaps returns the basemaps offered by the map page
func DefaultBasemaps() []Basemap {
	return []Basemap{
		{
			Name:        "osm",
			Tiles:       []string{"https://tile.openstreetmap.jp/{z}/{x}/{y}.png"},
			TileSize:    256,
			MaxZoom:     22,
			Attribution: `© <a href="https://www.openstreetmap.org/copyright" target="_blank">OpenStreetMap</a> contributors`,
		},
		{
			Name:        "gsi-std",
			Tiles:       []string{"https://cyberjapandata.gsi.go.jp/xyz/std/{z}/{x}/{y}.png"},
			TileSize:    256,
			MaxZoom:     18,
			Attribution: gsiAttribution,
		},
		{
			Name:        "gsi-pale",
			Tiles:       []string{"https://cyberjapandata.gsi.go.jp/xyz/pale/{z}/{x}/{y}.png"},
			TileSize:    256,
			MaxZoom:     18,
			Attribution: gsiAttribution,
		},
		{
			Name:        "gsi-photo",
			Tiles:       []string{"https://cyberjapandata.gsi.go.jp/xyz/seamlessphoto/{z}/{x}/{y}.jpg"},
			TileSize:    256,
			MaxZoom:     18,
			Attribution: gsiAttribution,
		},
		{
			Name:        "cs-kanagawa",
			Tiles:       []string{"https://shiworks.xsrv.jp/raster-tiles/pref-kanagawa/kanagawapc-cs-tiles/{z}/{x}/{y}.png"},
			TileSize:    256,
			MinZoom:     4,
			MaxZoom:     18,
			Attribution: "CSマップ神奈川",
		},
		{
			Name:        "cs-shizuoka",
			Tiles:       []string{"https://shiworks.xsrv.jp/raster-tiles/pref-shizuoka/shizuoka-cs-tiles/{z}/{x}/{y}.png"},
			TileSize:    256,
			MinZoom:     10,
			MaxZoom:     18,
			Attribution: "CSマップ静岡",
		},
	}
}

// Style is a MapLibre style document (version 8)
type Style struct {
	Version int               `json:"version"`
	Name    string            `json:"name,omitempty"`
	Center  []float64         `json:"center,omitempty"`
	Zoom    float64           `json:"zoom"`
	Pitch   float64           `json:"pitch"`
	Bearing float64           `json:"bearing"`
	Sources map[string]Source `json:"sources"`
	Layers  []Layer           `json:"layers"`
	Terrain *Terrain          `json:"terrain,omitempty"`
}

// Source is a style source. Only the fields used by demtile are modelled.
type Source struct {
	Type        string   `json:"type"`
	Tiles       []string `json:"tiles,omitempty"`
	Data        string   `json:"data,omitempty"`
	TileSize    int      `json:"tileSize,omitempty"`
	MinZoom     int      `json:"minzoom,omitempty"`
	MaxZoom     int      `json:"maxzoom,omitempty"`
	Attribution string   `json:"attribution,omitempty"`

	// raster-dem only
	Encoding    string   `json:"encoding,omitempty"`
	RedFactor   *float64 `json:"redFactor,omitempty"`
	GreenFactor *float64 `json:"greenFactor,omitempty"`
	BlueFactor  *float64 `json:"blueFactor,omitempty"`
	BaseShift   *float64 `json:"baseShift,omitempty"`
}

// Layer is a style layer
type Layer struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Source  string         `json:"source"`
	MinZoom int            `json:"minzoom,omitempty"`
	MaxZoom int            `json:"maxzoom,omitempty"`
	Layout  map[string]any `json:"layout,omitempty"`
	Paint   map[string]any `json:"paint,omitempty"`
}

// Terrain enables 3D terrain from a raster-dem source
type Terrain struct {
	Source       string  `json:"source"`
	Exaggeration float64 `json:"exaggeration"`
}

// Options configures a Builder
type Options struct {
	Basemaps       []Basemap
	TerrainTiles   string // tile URL template of the transcoded terrain
	TerrainMaxZoom int
	TileSize       int // pixel size of the terrain tiles, 256 when unset
	Encoding       dem.Encoding
	Exaggeration   float64
	Center         [2]float64 // lon, lat
	Zoom           float64
	OverlayURL     string // empty disables the overlay layer
}

// Builder creates style documents for the configured basemaps
type Builder struct {
	opts     Options
	basemaps map[string]Basemap
	names    []string
}

// NewBuilder creates a style builder
func NewBuilder(opts Options) *Builder {
	if len(opts.Basemaps) == 0 {
		opts.Basemaps = DefaultBasemaps()
	}
	if opts.TileSize <= 0 {
		opts.TileSize = 256
	}

	b := &Builder{
		opts:     opts,
		basemaps: make(map[string]Basemap, len(opts.Basemaps)),
	}
	for _, bm := range opts.Basemaps {
		if _, dup := b.basemaps[bm.Name]; !dup {
			b.names = append(b.names, bm.Name)
		}
		b.basemaps[bm.Name] = bm
	}
	return b
}

// Names lists the available basemaps in configuration order
func (b *Builder) Names() []string {
	return append([]string(nil), b.names...)
}

// Style builds the style document for the named basemap
func (b *Builder) Style(name string) (*Style, error) {
	bm, ok := b.basemaps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBasemap, name)
	}

	tileSize := bm.TileSize
	if tileSize == 0 {
		tileSize = 256
	}

	baseID := name + "-tiles"
	st := &Style{
		Version: 8,
		Name:    name,
		Center:  []float64{b.opts.Center[0], b.opts.Center[1]},
		Zoom:    b.opts.Zoom,
		Sources: map[string]Source{
			baseID: {
				Type:        "raster",
				Tiles:       bm.Tiles,
				TileSize:    tileSize,
				MinZoom:     bm.MinZoom,
				MaxZoom:     bm.MaxZoom,
				Attribution: bm.Attribution,
			},
			TerrainSourceID: b.TerrainSource(),
		},
		Layers: []Layer{
			{
				ID:      name + "-layer",
				Type:    "raster",
				Source:  baseID,
				MinZoom: bm.MinZoom,
				MaxZoom: bm.MaxZoom,
			},
		},
		Terrain: &Terrain{
			Source:       TerrainSourceID,
			Exaggeration: b.opts.Exaggeration,
		},
	}

	if b.opts.OverlayURL != "" {
		st.Sources[OverlaySourceID] = Source{
			Type: "geojson",
			Data: b.opts.OverlayURL,
		}
		st.Layers = append(st.Layers, Layer{
			ID:     OverlayLayerID,
			Type:   "line",
			Source: OverlaySourceID,
			Layout: map[string]any{},
			Paint: map[string]any{
				"line-color": "navy",
				"line-width": 2,
			},
		})
	}

	return st, nil
}

// TerrainSource returns the raster-dem source pointing at the transcoded tiles
func (b *Builder) TerrainSource() Source {
	src := Source{
		Type:        "raster-dem",
		Tiles:       []string{b.opts.TerrainTiles},
		TileSize:    b.opts.TileSize,
		MaxZoom:     b.opts.TerrainMaxZoom,
		Attribution: `<a href="https://maps.gsi.go.jp/development/ichiran.html" target="_blank">地理院標高タイル</a>`,
	}

	enc := b.opts.Encoding
	if enc.TargetOffset == dem.DefaultTargetOffset && enc.TargetStep == dem.DefaultTargetStep {
		src.Encoding = "mapbox"
		return src
	}

	red, green, blue := 65536*enc.TargetStep, 256*enc.TargetStep, enc.TargetStep
	shift := enc.TargetOffset
	src.Encoding = "custom"
	src.RedFactor = &red
	src.GreenFactor = &green
	src.BlueFactor = &blue
	src.BaseShift = &shift
	return src
}
