package dem

import (
	"errors"
	"fmt"
)

// Sentinel errors for the three tile failure kinds. The typed errors below
// match them with errors.Is.
var (
	ErrTileLoad      = errors.New("tile load failure")
	ErrDecodeContext = errors.New("decode context failure")
	ErrEncode        = errors.New("encode failure")
)

// TileLoadError reports that the source tile could not be fetched or decoded
type TileLoadError struct {
	URL        string
	StatusCode int // zero when no HTTP response was received
	Err        error
}

func (e *TileLoadError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("could not load terrain tile: %v", e.Err)
	}
	return fmt.Sprintf("could not load image for terrain tile at %s: %v", e.URL, e.Err)
}

func (e *TileLoadError) Unwrap() error { return e.Err }

func (e *TileLoadError) Is(target error) bool { return target == ErrTileLoad }

// DecodeContextError reports that no decoding surface could be allocated for a tile
type DecodeContextError struct {
	Width, Height int
	Err           error
}

func (e *DecodeContextError) Error() string {
	return fmt.Sprintf("failed to acquire decoding surface for %dx%d tile: %v", e.Width, e.Height, e.Err)
}

func (e *DecodeContextError) Unwrap() error { return e.Err }

func (e *DecodeContextError) Is(target error) bool { return target == ErrDecodeContext }

// EncodeError reports that the transcoded image could not be serialized
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("failed to encode terrain tile: %v", e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

func (e *EncodeError) Is(target error) bool { return target == ErrEncode }
