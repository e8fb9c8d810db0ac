// Package export writes transcoded terrain tiles for an area into an MBTiles file.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"

	"github.com/cheggaaa/pb/v3"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/kiesman99/demtile/internal/transcoder"
	"github.com/kiesman99/demtile/pkg/dem"
	"github.com/kiesman99/demtile/pkg/tile"
)

// MaxTiles bounds the size of a single export job
const MaxTiles = 1 << 20

// Job describes one export
type Job struct {
	Name      string
	Bound     orb.Bound
	MinZoom   uint32
	MaxZoom   uint32
	Output    string
	Overwrite bool
}

// Summary reports what an export did
type Summary struct {
	ID      string
	Total   int
	Written int
	Failed  int
}

// Exporter loads tiles through a Loader and stores them in MBTiles files
type Exporter struct {
	loader   *transcoder.Loader
	encoding dem.Encoding
	workers  int
	progress io.Writer // nil disables the progress bar
	logger   log.FieldLogger
}

// New creates an exporter
func New(loader *transcoder.Loader, enc dem.Encoding, workers int, progress io.Writer, logger log.FieldLogger) *Exporter {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Exporter{
		loader:   loader,
		encoding: enc,
		workers:  workers,
		progress: progress,
		logger:   logger,
	}
}

// Validate checks the job before any tile is requested
func (j Job) Validate() error {
	b := j.Bound
	if b.Min[0] < -180 || b.Max[0] > 180 || b.Min[1] < -85.0511 || b.Max[1] > 85.0511 {
		return fmt.Errorf("bounding box %v is outside the web mercator extent", b)
	}
	if b.Min[0] >= b.Max[0] {
		return fmt.Errorf("min-lon must be less than max-lon")
	}
	if b.Min[1] >= b.Max[1] {
		return fmt.Errorf("min-lat must be less than max-lat")
	}
	if j.MinZoom > j.MaxZoom {
		return fmt.Errorf("min-zoom %d is greater than max-zoom %d", j.MinZoom, j.MaxZoom)
	}
	if j.MaxZoom > tile.MaxZoom {
		return fmt.Errorf("max-zoom must be at most %d", tile.MaxZoom)
	}
	if j.Output == "" {
		return fmt.Errorf("output file is required")
	}
	if n := j.TileCount(); n > MaxTiles {
		return fmt.Errorf("job covers %d tiles, more than the limit of %d", n, MaxTiles)
	}
	return nil
}

// TileCount returns the number of tiles the job covers
func (j Job) TileCount() int {
	total := 0
	for z := j.MinZoom; z <= j.MaxZoom; z++ {
		total += tile.Count(j.Bound, z)
	}
	return total
}

// Run exports every tile of the job. Individual tile failures are counted and
// logged; the job only fails on storage errors or cancellation.
func (e *Exporter) Run(ctx context.Context, job Job) (*Summary, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	summary := &Summary{ID: uuid.New().String(), Total: job.TileCount()}
	logger := e.logger.WithFields(log.Fields{"job": summary.ID, "output": job.Output})

	db, err := createMBTiles(job.Output, job.Overwrite)
	if err != nil {
		return nil, fmt.Errorf("failed to create MBTiles: %w", err)
	}
	defer db.close()

	if err := db.putMetadata(e.metadata(job)); err != nil {
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}

	var bar *pb.ProgressBar
	if e.progress != nil {
		bar = pb.New(summary.Total)
		bar.SetWriter(e.progress)
		bar.Start()
		defer bar.Finish()
	}

	var written, failed atomic.Int64
	for z := job.MinZoom; z <= job.MaxZoom; z++ {
		tiles := tile.Range(job.Bound, z)
		logger.WithFields(log.Fields{"zoom": z, "tiles": len(tiles)}).Info("exporting zoom level")

		p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError().WithMaxGoroutines(e.workers)
		for _, t := range tiles {
			p.Go(func(ctx context.Context) error {
				defer func() {
					if bar != nil {
						bar.Increment()
					}
				}()

				data, err := e.loader.Transcode(ctx, e.loader.Resolver().URL(t))
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					failed.Add(1)
					logger.WithError(err).WithField("tile", t.String()).Warn("skipping tile")
					return nil
				}

				if err := db.putTile(t, data); err != nil {
					return fmt.Errorf("failed to store tile %s: %w", t, err)
				}
				written.Add(1)
				return nil
			})
		}

		if err := p.Wait(); err != nil {
			summary.Written, summary.Failed = int(written.Load()), int(failed.Load())
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Warn("export cancelled")
			}
			return summary, err
		}
	}

	summary.Written, summary.Failed = int(written.Load()), int(failed.Load())
	logger.WithFields(log.Fields{
		"written": summary.Written,
		"failed":  summary.Failed,
	}).Info("export finished")

	return summary, nil
}

func (e *Exporter) metadata(job Job) map[string]string {
	b := job.Bound
	center := b.Center()
	name := job.Name
	if name == "" {
		name = "gsi-terrain"
	}

	encoding := "mapbox"
	if e.encoding.TargetOffset != dem.DefaultTargetOffset || e.encoding.TargetStep != dem.DefaultTargetStep {
		encoding = "custom"
	}

	return map[string]string{
		"name":        name,
		"type":        "baselayer",
		"format":      "png",
		"version":     MBTilesVersion,
		"description": "GSI elevation tiles re-encoded as raster-DEM",
		"attribution": `<a href="https://maps.gsi.go.jp/development/ichiran.html" target="_blank">地理院標高タイル</a>`,
		"bounds":      fmt.Sprintf("%f,%f,%f,%f", b.Min[0], b.Min[1], b.Max[0], b.Max[1]),
		"center":      fmt.Sprintf("%f,%f,%d", center[0], center[1], (job.MinZoom+job.MaxZoom)/2),
		"minzoom":     strconv.FormatUint(uint64(job.MinZoom), 10),
		"maxzoom":     strconv.FormatUint(uint64(job.MaxZoom), 10),
		"encoding":    encoding,
		"offset":      strconv.FormatFloat(e.encoding.TargetOffset, 'f', -1, 64),
		"step":        strconv.FormatFloat(e.encoding.TargetStep, 'f', -1, 64),
	}
}
