package dem

import (
	"fmt"
	"math"
)

// Default encoding constants for GSI dem_png sources and the raster-DEM target
const (
	DefaultMinElevation = 0.0
	DefaultMaxElevation = 4000.0
	DefaultSourceStep   = 0.01
	DefaultTargetOffset = 10000.0
	DefaultTargetStep   = 0.1
)

const (
	// maxEncoded is the largest value three 8-bit channels can hold
	maxEncoded = 1<<24 - 1

	// signedSpan reinterprets the upper half of the 24-bit range as negative
	signedSpan = 1 << 24
)

// Encoding holds the parameters of the source and target elevation encodings
type Encoding struct {
	MinElevation float64 `mapstructure:"min_elevation"`
	MaxElevation float64 `mapstructure:"max_elevation"`
	SourceStep   float64 `mapstructure:"source_step"`
	TargetOffset float64 `mapstructure:"target_offset"`
	TargetStep   float64 `mapstructure:"target_step"`
}

// DefaultEncoding returns the GSI to raster-DEM encoding used by the GSI terrain source
func DefaultEncoding() Encoding {
	return Encoding{
		MinElevation: DefaultMinElevation,
		MaxElevation: DefaultMaxElevation,
		SourceStep:   DefaultSourceStep,
		TargetOffset: DefaultTargetOffset,
		TargetStep:   DefaultTargetStep,
	}
}

// Validate checks that the encoding can be applied
func (e Encoding) Validate() error {
	for name, v := range map[string]float64{
		"min_elevation": e.MinElevation,
		"max_elevation": e.MaxElevation,
		"source_step":   e.SourceStep,
		"target_offset": e.TargetOffset,
		"target_step":   e.TargetStep,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be a finite number", name)
		}
	}

	if e.MinElevation > e.MaxElevation {
		return fmt.Errorf("min_elevation (%g) must not exceed max_elevation (%g)", e.MinElevation, e.MaxElevation)
	}
	if e.SourceStep <= 0 {
		return fmt.Errorf("source_step must be positive, got %g", e.SourceStep)
	}
	if e.TargetStep <= 0 {
		return fmt.Errorf("target_step must be positive, got %g", e.TargetStep)
	}

	return nil
}

// IsNoData reports whether a source pixel is the GSI "no data" sentinel
func IsNoData(r, g, b uint8) bool {
	return r == 128 && g == 0 && b == 0
}

// Elevation decodes a GSI source pixel to metres, clamped to the configured range.
// The no data sentinel decodes to MinElevation.
func (e Encoding) Elevation(r, g, b uint8) float64 {
	if IsNoData(r, g, b) {
		return e.MinElevation
	}

	u := int64(r)<<16 | int64(g)<<8 | int64(b)
	if r >= 128 {
		u -= signedSpan
	}

	return e.clamp(float64(u) * e.SourceStep)
}

// Encode converts an elevation in metres into target channel values, most significant first
func (e Encoding) Encode(h float64) (uint8, uint8, uint8) {
	v := (e.clamp(h) + e.TargetOffset) / e.TargetStep
	v = math.Min(math.Max(v, 0), maxEncoded)

	// Truncation floors here since v is never negative
	n := uint32(v)
	return uint8(n >> 16), uint8(n >> 8), uint8(n)
}

// Pixel transcodes a single source pixel into a target pixel
func (e Encoding) Pixel(r, g, b uint8) (uint8, uint8, uint8) {
	return e.Encode(e.Elevation(r, g, b))
}

func (e Encoding) clamp(h float64) float64 {
	if math.IsNaN(h) {
		return e.MinElevation
	}
	return math.Min(math.Max(h, e.MinElevation), e.MaxElevation)
}
