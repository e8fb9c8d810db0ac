package transcoder

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiesman99/demtile/pkg/dem"
	"github.com/kiesman99/demtile/pkg/tile"
)

func sourceTile(t *testing.T, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 256, 256))
	for y := 0; y < 256; y++ {
		for x := 0; x < 256; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func quietLogger() log.FieldLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

// newUpstream serves dem_png tiles; z=0 tiles block until the request is abandoned
func newUpstream(t *testing.T, data []byte) (*httptest.Server, *Loader) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/xyz/dem_png/0/"):
			<-r.Context().Done()
		case strings.HasPrefix(r.URL.Path, "/xyz/dem_png/1/"):
			w.Write([]byte("not a png"))
		case strings.HasPrefix(r.URL.Path, "/xyz/dem_png/2/"):
			http.NotFound(w, r)
		default:
			w.Header().Set("Content-Type", "image/png")
			w.Write(data)
		}
	}))
	t.Cleanup(srv.Close)

	l := New(Options{
		Resolver: tile.Resolver{Scheme: "gsidem", Prefix: srv.URL + "/xyz/dem_png/"},
		Logger:   quietLogger(),
	})
	return srv, l
}

func TestLoad_Success(t *testing.T) {
	srv, l := newUpstream(t, sourceTile(t, color.NRGBA{R: 0, G: 39, B: 16, A: 255}))

	req := l.Load(context.Background(), "gsidem://14/14552/6451.png")
	assert.Equal(t, srv.URL+"/xyz/dem_png/14/14552/6451.png", req.URL())

	out, ok := req.Wait(context.Background())
	require.True(t, ok)
	require.NoError(t, out.Err)

	img, err := png.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 256, 256), img.Bounds())

	r, g, b, _ := img.At(128, 128).RGBA()
	assert.Equal(t, [3]uint32{1, 138, 136}, [3]uint32{r >> 8, g >> 8, b >> 8})

	// The channel is closed after the single outcome
	_, more := <-req.Outcome()
	assert.False(t, more)
}

func TestLoad_TileLoadFailureCarriesResolvedURL(t *testing.T) {
	srv, l := newUpstream(t, nil)

	for _, z := range []string{"1", "2"} {
		out, ok := l.Load(context.Background(), "gsidem://"+z+"/0/0.png").Wait(context.Background())
		require.True(t, ok)
		assert.Nil(t, out.Data)
		require.True(t, errors.Is(out.Err, dem.ErrTileLoad), "got %v", out.Err)

		var tle *dem.TileLoadError
		require.True(t, errors.As(out.Err, &tle))
		assert.Equal(t, srv.URL+"/xyz/dem_png/"+z+"/0/0.png", tle.URL)
	}
}

func TestLoad_CancelDeliversNothing(t *testing.T) {
	_, l := newUpstream(t, nil)

	req := l.Load(context.Background(), "gsidem://0/0/0.png")
	time.Sleep(20 * time.Millisecond)
	req.Cancel()

	select {
	case out, ok := <-req.Outcome():
		assert.False(t, ok, "cancelled request delivered %+v", out)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled request was not released")
	}

	// Idempotent
	req.Cancel()
	req.Cancel()
}

func TestLoad_CancelAfterCompletionIsNoop(t *testing.T) {
	_, l := newUpstream(t, sourceTile(t, color.NRGBA{A: 255}))

	req := l.Load(context.Background(), "gsidem://5/3/3.png")
	out, ok := <-req.Outcome()
	require.True(t, ok)
	require.NoError(t, out.Err)

	req.Cancel()
	req.Cancel()
	_, more := <-req.Outcome()
	assert.False(t, more)
}

func TestLoad_ParentContextCancellation(t *testing.T) {
	_, l := newUpstream(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := l.Transcode(ctx, "gsidem://0/0/0.png")
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestLoad_ConcurrentRequests(t *testing.T) {
	_, l := newUpstream(t, sourceTile(t, color.NRGBA{R: 0, G: 3, B: 232, A: 255}))

	var wg sync.WaitGroup
	results := make([][]byte, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := l.Transcode(context.Background(), tile.BuildURL("gsidem://{z}/{x}/{y}.png", tile.New(6, uint32(i), 1)))
			assert.NoError(t, err)
			results[i] = data
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		assert.Equal(t, results[0], results[i])
	}
}

func TestLoadTile(t *testing.T) {
	_, l := newUpstream(t, sourceTile(t, color.NRGBA{A: 255}))

	out, ok := l.LoadTile(context.Background(), tile.New(3, 1, 1)).Wait(context.Background())
	require.True(t, ok)
	assert.NoError(t, out.Err)
	assert.True(t, strings.HasSuffix(out.URL, "/xyz/dem_png/3/1/1.png"))
}
