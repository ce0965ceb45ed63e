// Package browser defines the Browser contract the core consumes: load a
// page, read its HTML, evaluate an XPath against it, inspect candidate
// elements, detect captchas, and manage cookies. rodadapter provides the
// production go-rod implementation; this package also holds an in-memory
// fake for tests that exercise the Scrape State Machine and Discovery Loop
// without a real browser.
package browser

import (
	"context"
	"time"

	"github.com/use-agent/smartscraper/models"
)

// LoadOptions configures a page load.
type LoadOptions struct {
	Timeout   time.Duration
	UserAgent string
	Proxy     string
	Headers   map[string]string
}

// ReloadOptions configures a reload. Timeout is mandatory and must be
// respected by every implementation: a default must never silently
// override the caller-supplied value.
type ReloadOptions struct {
	Timeout   time.Duration
	WaitUntil string // e.g. "load", "domcontentloaded"; implementation-defined set
}

// Cookie mirrors the subset of cookie fields the core needs to move
// between the captcha adapter and the browser.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// Browser is the contract the Scrape State Machine and Discovery Loop
// drive a real or fake browser through. Every method takes a context so
// the caller's timeout always wins.
type Browser interface {
	LoadPage(ctx context.Context, url string, opts LoadOptions) (pageID string, err error)
	ClosePage(ctx context.Context, pageID string) error

	GetHTML(ctx context.Context, pageID string) (string, error)

	// EvaluateXPath returns the outer HTML of every element the xpath
	// matches, or nil if it matches nothing. Callers that need plain text
	// or markdown derive it from the returned HTML.
	EvaluateXPath(ctx context.Context, pageID string, xpath string) ([]string, error)

	// GetElementDetails inspects the first element xpath matches and
	// reports ElementDetails.MatchesInDocument for the full match count.
	// Returns nil if xpath matches nothing.
	GetElementDetails(ctx context.Context, pageID string, xpath string) (*models.ElementDetails, error)

	DetectCaptcha(ctx context.Context, pageID string) (models.CaptchaObservation, error)

	GetCookies(ctx context.Context, pageID string) ([]Cookie, error)
	SetCookies(ctx context.Context, pageID string, cookies []Cookie) error

	Reload(ctx context.Context, pageID string, opts ReloadOptions) error
}
