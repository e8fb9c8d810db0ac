package export

import (
	"bytes"
	"context"
	"database/sql"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiesman99/demtile/internal/transcoder"
	"github.com/kiesman99/demtile/pkg/dem"
	"github.com/kiesman99/demtile/pkg/tile"
)

// Around Tokyo station
var tokyo = orb.Bound{Min: orb.Point{139.70, 35.65}, Max: orb.Point{139.80, 35.72}}

func quietLogger() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func newExporter(t *testing.T, handler http.HandlerFunc) *Exporter {
	t.Helper()
	upstream := httptest.NewServer(handler)
	t.Cleanup(upstream.Close)

	loader := transcoder.New(transcoder.Options{
		Resolver: tile.Resolver{Scheme: "gsidem", Prefix: upstream.URL + "/xyz/dem_png/"},
		Logger:   quietLogger(),
	})
	return New(loader, dem.DefaultEncoding(), 3, nil, quietLogger())
}

func flatTile(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 256, 256))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 0, 3, 232, 255
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestRun_WritesTiles(t *testing.T) {
	data := flatTile(t)
	var requests atomic.Int64
	e := newExporter(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write(data)
	})

	job := Job{Bound: tokyo, MinZoom: 10, MaxZoom: 12, Output: filepath.Join(t.TempDir(), "terrain.mbtiles")}
	summary, err := e.Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, job.TileCount(), summary.Total)
	assert.Equal(t, summary.Total, summary.Written)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, int64(summary.Total), requests.Load())
	assert.NotEmpty(t, summary.ID)

	db, err := sql.Open("sqlite3", job.Output)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("select count(*) from tiles").Scan(&count))
	assert.Equal(t, summary.Total, count)

	// Rows are stored in TMS order
	first := tile.Range(tokyo, 10)[0]
	var blob []byte
	require.NoError(t, db.QueryRow(
		"select tile_data from tiles where zoom_level = ? and tile_column = ? and tile_row = ?",
		first.Z, first.X, first.FlipY()).Scan(&blob))

	img, err := png.Decode(bytes.NewReader(blob))
	require.NoError(t, err)
	got := color.NRGBAModel.Convert(img.At(0, 0)).(color.NRGBA)
	assert.Equal(t, color.NRGBA{R: 1, G: 135, B: 4, A: 255}, got)

	var format, maxzoom string
	require.NoError(t, db.QueryRow("select value from metadata where name = 'format'").Scan(&format))
	require.NoError(t, db.QueryRow("select value from metadata where name = 'maxzoom'").Scan(&maxzoom))
	assert.Equal(t, "png", format)
	assert.Equal(t, "12", maxzoom)
}

func TestRun_SkipsFailedTiles(t *testing.T) {
	data := flatTile(t)
	e := newExporter(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/dem_png/11/") {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	})

	job := Job{Bound: tokyo, MinZoom: 10, MaxZoom: 11, Output: filepath.Join(t.TempDir(), "partial.mbtiles")}
	summary, err := e.Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, tile.Count(tokyo, 11), summary.Failed)
	assert.Equal(t, tile.Count(tokyo, 10), summary.Written)
}

func TestRun_Cancelled(t *testing.T) {
	e := newExporter(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := Job{Bound: tokyo, MinZoom: 12, MaxZoom: 12, Output: filepath.Join(t.TempDir(), "cancelled.mbtiles")}
	summary, err := e.Run(ctx, job)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Equal(t, 0, summary.Written)
}

func TestRun_RefusesExistingFile(t *testing.T) {
	data := flatTile(t)
	e := newExporter(t, func(w http.ResponseWriter, r *http.Request) { w.Write(data) })

	job := Job{Bound: tokyo, MinZoom: 8, MaxZoom: 8, Output: filepath.Join(t.TempDir(), "twice.mbtiles")}
	_, err := e.Run(context.Background(), job)
	require.NoError(t, err)

	_, err = e.Run(context.Background(), job)
	assert.Error(t, err)

	job.Overwrite = true
	_, err = e.Run(context.Background(), job)
	assert.NoError(t, err)
}

func TestJobValidate(t *testing.T) {
	valid := Job{Bound: tokyo, MinZoom: 1, MaxZoom: 2, Output: "out.mbtiles"}
	require.NoError(t, valid.Validate())

	testCases := map[string]func(*Job){
		"inverted lon":   func(j *Job) { j.Bound = orb.Bound{Min: orb.Point{140, 35}, Max: orb.Point{139, 36}} },
		"polar":          func(j *Job) { j.Bound.Max[1] = 89 },
		"inverted zooms": func(j *Job) { j.MinZoom = 5 },
		"too deep":       func(j *Job) { j.MaxZoom = 30 },
		"no output":      func(j *Job) { j.Output = "" },
		"too many tiles": func(j *Job) {
			j.Bound = orb.Bound{Min: orb.Point{-180, -85}, Max: orb.Point{180, 85}}
			j.MaxZoom = 14
		},
	}

	for name, mutate := range testCases {
		t.Run(name, func(t *testing.T) {
			job := valid
			mutate(&job)
			assert.Error(t, job.Validate())
		})
	}
}
