package dem

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"runtime"

	"github.com/sourcegraph/conc"
)

// DefaultMaxPixels bounds the decoding surface allocated for a single tile
const DefaultMaxPixels = 4096 * 4096

var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// Transcoder converts GSI elevation tiles into raster-DEM tiles.
// A Transcoder holds no per-tile state and is safe for concurrent use.
type Transcoder struct {
	Encoding  Encoding
	MaxPixels int
	// Compression is passed to the PNG encoder
	Compression png.CompressionLevel
}

// NewTranscoder creates a transcoder for the given encoding
func NewTranscoder(enc Encoding) *Transcoder {
	return &Transcoder{
		Encoding:    enc,
		MaxPixels:   DefaultMaxPixels,
		Compression: png.DefaultCompression,
	}
}

// Transcode decodes a source PNG tile and returns the re-encoded PNG
func (t *Transcoder) Transcode(data []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := t.TranscodeReader(bytes.NewReader(data), &out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// TranscodeReader reads a source PNG tile from r and writes the re-encoded PNG to w.
// Nothing is written to w unless the whole tile was transcoded.
func (t *Transcoder) TranscodeReader(r io.Reader, w io.Writer) error {
	img, err := t.Decode(r)
	if err != nil {
		return err
	}

	dst := t.Encoding.TransformImage(img)

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: t.Compression}
	if err := enc.Encode(&buf, dst); err != nil {
		return &EncodeError{Err: err}
	}

	if _, err := buf.WriteTo(w); err != nil {
		return &EncodeError{Err: err}
	}
	return nil
}

// Decode reads a source PNG tile, checking that a surface of its size may be allocated
func (t *Transcoder) Decode(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &TileLoadError{Err: err}
	}

	if len(data) < len(pngSignature) || !bytes.Equal(data[:len(pngSignature)], pngSignature) {
		return nil, &TileLoadError{Err: errors.New("unrecognized image format")}
	}

	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &TileLoadError{Err: err}
	}

	if err := t.checkSurface(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &TileLoadError{Err: err}
	}
	return img, nil
}

func (t *Transcoder) checkSurface(width, height int) error {
	if width <= 0 || height <= 0 {
		return &DecodeContextError{Width: width, Height: height, Err: errors.New("empty image")}
	}

	limit := t.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if int64(width)*int64(height) > int64(limit) {
		return &DecodeContextError{
			Width:  width,
			Height: height,
			Err:    fmt.Errorf("exceeds limit of %d pixels", limit),
		}
	}
	return nil
}

// TransformImage transcodes every pixel of img into a new image with the same
// dimensions. Alpha is copied unchanged.
func (e Encoding) TransformImage(img image.Image) *image.NRGBA {
	dst := toNRGBA(img)
	height := dst.Rect.Dy()
	if height == 0 {
		return dst
	}

	// Pixels are independent, so rows are split into bands
	bands := runtime.GOMAXPROCS(0)
	if bands > height {
		bands = height
	}
	rowsPerBand := (height + bands - 1) / bands

	var wg conc.WaitGroup
	for y0 := 0; y0 < height; y0 += rowsPerBand {
		y1 := min(y0+rowsPerBand, height)
		wg.Go(func() {
			e.transformRows(dst, y0, y1)
		})
	}
	wg.Wait()

	return dst
}

func (e Encoding) transformRows(img *image.NRGBA, y0, y1 int) {
	width := img.Rect.Dx()
	for y := y0; y < y1; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for i := 0; i < len(row); i += 4 {
			row[i], row[i+1], row[i+2] = e.Pixel(row[i], row[i+1], row[i+2])
		}
	}
}

// toNRGBA copies img into a fresh zero-origin NRGBA buffer
func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
