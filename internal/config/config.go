// Package config maps viper settings onto typed configuration.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kiesman99/demtile/pkg/dem"
	"github.com/kiesman99/demtile/pkg/tile"
)

// Config is the complete demtile configuration
type Config struct {
	Encoding dem.Encoding   `mapstructure:"encoding"`
	Tile     TileConfig     `mapstructure:"tile"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Server   ServerConfig   `mapstructure:"server"`
	Style    StyleConfig    `mapstructure:"style"`
	Export   ExportConfig   `mapstructure:"export"`
	Log      LogConfig      `mapstructure:"log"`
}

type TileConfig struct {
	Size      int `mapstructure:"size"`
	MaxPixels int `mapstructure:"max_pixels"`
}

type UpstreamConfig struct {
	Scheme    string            `mapstructure:"scheme"`
	Prefix    string            `mapstructure:"prefix"`
	UserAgent string            `mapstructure:"user_agent"`
	Timeout   time.Duration     `mapstructure:"timeout"`
	Headers   map[string]string `mapstructure:"headers"`
}

type ServerConfig struct {
	Bind      string        `mapstructure:"bind"`
	Port      int           `mapstructure:"port"`
	Timeout   time.Duration `mapstructure:"timeout"`
	PublicURL string        `mapstructure:"public_url"`
}

type StyleConfig struct {
	Center         string  `mapstructure:"center"`
	Zoom           float64 `mapstructure:"zoom"`
	Exaggeration   float64 `mapstructure:"exaggeration"`
	TerrainMaxZoom int     `mapstructure:"terrain_maxzoom"`
	Overlay        string  `mapstructure:"overlay"`
}

type ExportConfig struct {
	Workers int `mapstructure:"workers"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	enc := dem.DefaultEncoding()
	v.SetDefault("encoding.min_elevation", enc.MinElevation)
	v.SetDefault("encoding.max_elevation", enc.MaxElevation)
	v.SetDefault("encoding.source_step", enc.SourceStep)
	v.SetDefault("encoding.target_offset", enc.TargetOffset)
	v.SetDefault("encoding.target_step", enc.TargetStep)

	v.SetDefault("tile.size", tile.DefaultSize)
	v.SetDefault("tile.max_pixels", dem.DefaultMaxPixels)

	v.SetDefault("upstream.scheme", tile.DefaultScheme)
	v.SetDefault("upstream.prefix", tile.DefaultPrefix)
	v.SetDefault("upstream.user_agent", tile.DefaultUserAgent)
	v.SetDefault("upstream.timeout", 30*time.Second)

	v.SetDefault("server.bind", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("server.public_url", "")

	// Hiratsuka station
	v.SetDefault("style.center", "139.3491813,35.3273838")
	v.SetDefault("style.zoom", 10)
	v.SetDefault("style.exaggeration", 1.5)
	v.SetDefault("style.terrain_maxzoom", 14)
	v.SetDefault("style.overlay", "")

	v.SetDefault("export.workers", 4)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// Load unmarshals and validates the configuration held by v
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values demtile cannot work with
func (c *Config) Validate() error {
	if err := c.Encoding.Validate(); err != nil {
		return fmt.Errorf("encoding: %w", err)
	}
	if c.Tile.Size <= 0 {
		return fmt.Errorf("tile.size must be positive, got %d", c.Tile.Size)
	}
	if c.Upstream.Prefix == "" {
		return fmt.Errorf("upstream.prefix is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port)
	}
	if _, _, err := c.Style.CenterPoint(); err != nil {
		return err
	}
	if c.Export.Workers <= 0 {
		return fmt.Errorf("export.workers must be positive, got %d", c.Export.Workers)
	}
	return nil
}

// Resolver returns the custom-scheme resolver for the upstream endpoint
func (c *Config) Resolver() tile.Resolver {
	return tile.Resolver{Scheme: c.Upstream.Scheme, Prefix: c.Upstream.Prefix}
}

// Transcoder returns a transcoder for the configured encoding
func (c *Config) Transcoder() *dem.Transcoder {
	t := dem.NewTranscoder(c.Encoding)
	if c.Tile.MaxPixels > 0 {
		t.MaxPixels = c.Tile.MaxPixels
	}
	return t
}

// CenterPoint parses the "lon,lat" map center
func (s StyleConfig) CenterPoint() (lon, lat float64, err error) {
	parts := strings.Split(s.Center, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("style.center must be 'lon,lat', got %q", s.Center)
	}

	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude in style.center: %v", err)
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude in style.center: %v", err)
	}

	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("style.center %q is out of range", s.Center)
	}
	return lon, lat, nil
}
