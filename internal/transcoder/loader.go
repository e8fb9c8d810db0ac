package transcoder

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kiesman99/demtile/pkg/dem"
	"github.com/kiesman99/demtile/pkg/tile"
)

// Options configures a Loader
type Options struct {
	Transcoder *dem.Transcoder
	Fetcher    *tile.Fetcher
	Resolver   tile.Resolver
	Logger     log.FieldLogger
}

// Outcome is the single result delivered for a tile request
type Outcome struct {
	URL  string
	Data []byte
	Err  error
}

// Loader fetches source tiles and transcodes them into raster-DEM tiles.
// Every Load is independent; the Loader holds no per-request state.
type Loader struct {
	transcoder *dem.Transcoder
	fetcher    *tile.Fetcher
	resolver   tile.Resolver
	logger     log.FieldLogger
}

// New creates a loader. Missing options fall back to the GSI defaults.
func New(opts Options) *Loader {
	l := &Loader{
		transcoder: opts.Transcoder,
		fetcher:    opts.Fetcher,
		resolver:   opts.Resolver,
		logger:     opts.Logger,
	}
	if l.transcoder == nil {
		l.transcoder = dem.NewTranscoder(dem.DefaultEncoding())
	}
	if l.fetcher == nil {
		l.fetcher = tile.NewFetcher(nil, "", nil)
	}
	if l.resolver == (tile.Resolver{}) {
		l.resolver = tile.DefaultResolver()
	}
	if l.logger == nil {
		l.logger = log.StandardLogger()
	}
	return l
}

// Resolver returns the resolver used to turn tile URLs into upstream URLs
func (l *Loader) Resolver() tile.Resolver {
	return l.resolver
}

// Request is an in-flight tile load
type Request struct {
	url     string
	cancel  context.CancelFunc
	outcome chan Outcome
	once    sync.Once
}

// Load starts fetching and transcoding the tile at url, which may use the
// custom scheme. It returns immediately.
func (l *Loader) Load(ctx context.Context, url string) *Request {
	ctx, cancel := context.WithCancel(ctx)
	req := &Request{
		url:     l.resolver.Resolve(url),
		cancel:  cancel,
		outcome: make(chan Outcome, 1),
	}

	go l.run(ctx, req)
	return req
}

// LoadTile starts loading the tile at the given address
func (l *Loader) LoadTile(ctx context.Context, t tile.Tile) *Request {
	return l.Load(ctx, l.resolver.URL(t))
}

// Transcode loads a tile and waits for it. A cancelled ctx returns ctx.Err().
func (l *Loader) Transcode(ctx context.Context, url string) ([]byte, error) {
	out, ok := l.Load(ctx, url).Wait(ctx)
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, context.Canceled
	}
	return out.Data, out.Err
}

func (l *Loader) run(ctx context.Context, req *Request) {
	defer close(req.outcome)
	defer req.cancel()

	start := time.Now()
	data, err := l.load(ctx, req.url)

	// A cancelled request delivers nothing, success or failure
	if ctx.Err() != nil {
		l.logger.WithField("url", req.url).Debug("tile request cancelled")
		return
	}

	entry := l.logger.WithFields(log.Fields{
		"url":      req.url,
		"duration": time.Since(start),
	})
	if err != nil {
		entry.WithError(err).Warn("terrain tile failed")
	} else {
		entry.WithField("bytes", len(data)).Debug("terrain tile transcoded")
	}

	req.outcome <- Outcome{URL: req.url, Data: data, Err: err}
}

func (l *Loader) load(ctx context.Context, url string) ([]byte, error) {
	src, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := l.transcoder.TranscodeReader(bytes.NewReader(src), &out); err != nil {
		var tle *dem.TileLoadError
		if errors.As(err, &tle) && tle.URL == "" {
			tle.URL = url
		}
		return nil, err
	}
	return out.Bytes(), nil
}

// URL returns the resolved upstream URL of the request
func (r *Request) URL() string {
	return r.url
}

// Outcome returns a channel that receives exactly one Outcome and is then closed.
// If the request is cancelled first, the channel is closed without a value.
func (r *Request) Outcome() <-chan Outcome {
	return r.outcome
}

// Cancel aborts the request. Cancelling a finished or already cancelled
// request does nothing.
func (r *Request) Cancel() {
	r.once.Do(r.cancel)
}

// Wait blocks until the request finishes or ctx is done. The boolean is false
// when no outcome was delivered.
func (r *Request) Wait(ctx context.Context) (Outcome, bool) {
	select {
	case out, ok := <-r.outcome:
		return out, ok
	case <-ctx.Done():
		r.Cancel()
		return Outcome{}, false
	}
}
