package dem

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func gradientTile(size int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x % 3), G: uint8(x), B: uint8(y), A: 255})
		}
	}
	// A few sentinel and negative pixels
	img.SetNRGBA(0, 0, color.NRGBA{R: 128, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	return img
}

func TestTranscode_PreservesDimensionsAndEncodesPixels(t *testing.T) {
	tr := NewTranscoder(DefaultEncoding())

	for _, size := range []int{1, 17, 256} {
		src := gradientTile(size)
		out, err := tr.Transcode(encodePNG(t, src))
		require.NoError(t, err)

		img, err := png.Decode(bytes.NewReader(out))
		require.NoError(t, err)
		require.Equal(t, src.Bounds().Dx(), img.Bounds().Dx())
		require.Equal(t, src.Bounds().Dy(), img.Bounds().Dy())

		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				s := src.NRGBAAt(x, y)
				got := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				want := expectedPixel(tr.Encoding, s.R, s.G, s.B)
				if [3]uint8{got.R, got.G, got.B} != want || got.A != 255 {
					t.Fatalf("size %d pixel (%d,%d): got %v, want %v", size, x, y, got, want)
				}
			}
		}
	}
}

func TestTranscode_PassesAlphaThrough(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 0, G: 3, B: 232, A: 255})
	src.SetNRGBA(1, 0, color.NRGBA{R: 0, G: 3, B: 232, A: 0})

	dst := DefaultEncoding().TransformImage(src)
	assert.Equal(t, color.NRGBA{R: 1, G: 135, B: 4, A: 255}, dst.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 1, G: 135, B: 4, A: 0}, dst.NRGBAAt(1, 0))

	// The source buffer is left alone
	assert.Equal(t, color.NRGBA{R: 0, G: 3, B: 232, A: 255}, src.NRGBAAt(0, 0))
}

func TestTransformImage_NonZeroOrigin(t *testing.T) {
	src := gradientTile(8).SubImage(image.Rect(2, 3, 6, 8))
	dst := DefaultEncoding().TransformImage(src)

	assert.Equal(t, image.Rect(0, 0, 4, 5), dst.Bounds())
	s := src.(*image.NRGBA).NRGBAAt(2, 3)
	d := dst.NRGBAAt(0, 0)
	assert.Equal(t, expectedPixel(DefaultEncoding(), s.R, s.G, s.B), [3]uint8{d.R, d.G, d.B})
}

func TestTranscode_RGBSource(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range src.Pix {
		src.Pix[i] = 255
	}
	src.SetRGBA(2, 2, color.RGBA{R: 0, G: 39, B: 16, A: 255})

	out, err := NewTranscoder(DefaultEncoding()).Transcode(encodePNG(t, src))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	r, g, b, _ := img.At(2, 2).RGBA()
	assert.Equal(t, [3]uint32{1, 138, 136}, [3]uint32{r >> 8, g >> 8, b >> 8})
}

func TestTranscode_TileLoadFailure(t *testing.T) {
	tr := NewTranscoder(DefaultEncoding())

	for name, data := range map[string][]byte{
		"empty":     nil,
		"jpeg":      {0xFF, 0xD8, 0xFF, 0xE0},
		"truncated": encodePNG(t, gradientTile(16))[:40],
	} {
		t.Run(name, func(t *testing.T) {
			out, err := tr.Transcode(data)
			assert.Nil(t, out)
			assert.True(t, errors.Is(err, ErrTileLoad), "got %v", err)

			var tle *TileLoadError
			assert.True(t, errors.As(err, &tle))
		})
	}
}

func TestTranscode_DecodeContextFailure(t *testing.T) {
	tr := NewTranscoder(DefaultEncoding())
	tr.MaxPixels = 100

	out, err := tr.Transcode(encodePNG(t, gradientTile(11)))
	assert.Nil(t, out)
	require.True(t, errors.Is(err, ErrDecodeContext), "got %v", err)

	var dce *DecodeContextError
	require.True(t, errors.As(err, &dce))
	assert.Equal(t, 11, dce.Width)
	assert.Equal(t, 11, dce.Height)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestTranscode_EncodeFailure(t *testing.T) {
	tr := NewTranscoder(DefaultEncoding())

	err := tr.TranscodeReader(bytes.NewReader(encodePNG(t, gradientTile(4))), failingWriter{})
	require.True(t, errors.Is(err, ErrEncode), "got %v", err)
	assert.True(t, strings.Contains(err.Error(), "disk full"))
}

func TestTileLoadError_Message(t *testing.T) {
	err := &TileLoadError{URL: "https://example.com/xyz/dem_png/1/2/3.png", Err: errors.New("HTTP 404")}
	assert.Equal(t, "could not load image for terrain tile at https://example.com/xyz/dem_png/1/2/3.png: HTTP 404", err.Error())
	assert.False(t, errors.Is(err, ErrEncode))
}

func TestSummarize(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.SetNRGBA(0, 0, color.NRGBA{R: 128, A: 255})
	src.SetNRGBA(1, 0, color.NRGBA{R: 0, G: 3, B: 232, A: 255})
	src.SetNRGBA(0, 1, color.NRGBA{R: 0, G: 39, B: 16, A: 255})
	src.SetNRGBA(1, 1, color.NRGBA{R: 100, G: 10, B: 5, A: 255})

	st := DefaultEncoding().Summarize(src)
	assert.Equal(t, 1, st.NoData)
	assert.Equal(t, 0.0, st.Min)
	assert.Equal(t, 4000.0, st.Max)
	assert.InDelta(t, 1027.5, st.Mean, 1e-9)
}
