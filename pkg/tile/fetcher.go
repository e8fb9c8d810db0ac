package tile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kiesman99/demtile/pkg/dem"
)

// DefaultUserAgent is sent with every upstream request
const DefaultUserAgent = "demtile/1.0.0"

// Fetcher downloads source tiles
type Fetcher struct {
	client    *http.Client
	userAgent string
	headers   map[string]string
}

// NewFetcher creates a fetcher. A nil client gets a 30 second timeout.
func NewFetcher(client *http.Client, userAgent string, headers map[string]string) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Fetcher{
		client:    client,
		userAgent: userAgent,
		headers:   headers,
	}
}

// Fetch downloads a single tile. Failures are reported as *dem.TileLoadError
// carrying the URL; a cancelled ctx yields ctx.Err() unwrapped.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &dem.TileLoadError{URL: url, Err: err}
	}

	req.Header.Set("User-Agent", f.userAgent)
	for key, value := range f.headers {
		req.Header.Set(key, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &dem.TileLoadError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &dem.TileLoadError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %s", resp.Status),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &dem.TileLoadError{URL: url, StatusCode: resp.StatusCode, Err: err}
	}
	return data, nil
}
