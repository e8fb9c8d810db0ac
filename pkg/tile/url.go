package tile

import (
	"strconv"
	"strings"
)

// Default custom scheme and upstream endpoint of the GSI elevation tiles
const (
	DefaultScheme   = "gsidem"
	DefaultPrefix   = "https://cyberjapandata.gsi.go.jp/xyz/dem_png/"
	DefaultTemplate = DefaultScheme + "://{z}/{x}/{y}.png"
)

// BuildURL replaces URL template tokens
func BuildURL(template string, t Tile) string {
	url := template
	url = strings.ReplaceAll(url, "{z}", strconv.FormatUint(uint64(t.Z), 10))
	url = strings.ReplaceAll(url, "{x}", strconv.FormatUint(uint64(t.X), 10))
	url = strings.ReplaceAll(url, "{y}", strconv.FormatUint(uint64(t.Y), 10))
	// Handle {s} for subdomains (simple implementation)
	if strings.Contains(url, "{s}") {
		subdomain := string(rune('a' + (t.X+t.Y)%3))
		url = strings.ReplaceAll(url, "{s}", subdomain)
	}
	return url
}

// Resolver rewrites custom-scheme tile URLs into real upstream URLs
type Resolver struct {
	Scheme string
	Prefix string
}

// DefaultResolver maps gsidem:// onto the GSI dem_png endpoint
func DefaultResolver() Resolver {
	return Resolver{Scheme: DefaultScheme, Prefix: DefaultPrefix}
}

// Resolve returns the upstream URL for url. URLs without the custom scheme
// are returned unchanged.
func (r Resolver) Resolve(url string) string {
	if r.Scheme == "" {
		return url
	}

	rest, ok := strings.CutPrefix(url, r.Scheme+"://")
	if !ok {
		return url
	}
	return r.Prefix + rest
}

// URL returns the upstream URL of a tile
func (r Resolver) URL(t Tile) string {
	return r.Resolve(BuildURL(r.Template(), t))
}

// Template returns the custom-scheme URL template a host mapping library registers
func (r Resolver) Template() string {
	if r.Scheme == "" {
		return r.Prefix + "{z}/{x}/{y}.png"
	}
	return r.Scheme + "://{z}/{x}/{y}.png"
}
