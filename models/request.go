package models

import (
	"fmt"
	"net/url"
	"time"
)

// OutputType selects what a ScrapeResult.Data contains on success.
type OutputType string

const (
	OutputContentOnly   OutputType = "content-only"
	OutputFullHTML      OutputType = "full-html"
	OutputMetadataOnly  OutputType = "metadata-only"
)

func (o OutputType) valid() bool {
	switch o {
	case OutputContentOnly, OutputFullHTML, OutputMetadataOnly:
		return true
	default:
		return false
	}
}

// ScrapeRequest is the library-level request accepted by the engine.
// It is immutable once constructed; the engine never mutates it.
type ScrapeRequest struct {
	// URL is the target page. Required.
	URL string

	// OutputType selects the shape of a successful ScrapeResult.Data.
	// Defaults to OutputContentOnly when empty.
	OutputType OutputType

	// XPathOverride, if set, bypasses the known-sites lookup and the
	// discovery loop entirely: the engine evaluates this selector only.
	XPathOverride string

	// DisableDiscovery suppresses the discovery loop. A cold domain with
	// no stored selector and DisableDiscovery=true fails with "extraction".
	DisableDiscovery bool

	// DebugContextID is an opaque caller-supplied correlation ID. The
	// engine does not read it: it appears in no log line or event.
	DebugContextID string

	// Timeout bounds the whole scrape. Zero means the engine default
	// (config ScraperConfig.DefaultScrapeTimeout).
	Timeout time.Duration
}

// Validate checks the request without modifying it: invalid input yields
// a *ScrapeError of kind "configuration", never a panic, except for
// genuine programmer misuse (a nil pointer). An empty OutputType is valid.
func (r *ScrapeRequest) Validate() *ScrapeError {
	if r == nil {
		panic("models: nil ScrapeRequest")
	}
	if r.URL == "" {
		return NewScrapeError(KindConfiguration, "url is required", nil)
	}
	u, err := url.Parse(r.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return NewScrapeError(KindConfiguration, fmt.Sprintf("malformed url: %q", r.URL), err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return NewScrapeError(KindConfiguration, fmt.Sprintf("unsupported url scheme: %q", u.Scheme), nil)
	}
	if r.OutputType != "" && !r.OutputType.valid() {
		return NewScrapeError(KindConfiguration, fmt.Sprintf("unknown output type: %q", r.OutputType), nil)
	}
	return nil
}

// NormalizedDomain lowercases the host and strips a leading "www.",
// matching the Known-Sites Store's unique key.
func NormalizedDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	return normalizeHost(host), nil
}

func normalizeHost(host string) string {
	host = toLowerASCII(host)
	const prefix = "www."
	if len(host) > len(prefix) && host[:len(prefix)] == prefix {
		host = host[len(prefix):]
	}
	return host
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
