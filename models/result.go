package models

import "time"

// Method records how a successful scrape obtained its content.
type Method string

const (
	MethodKnownConfig         Method = "known-config"
	MethodDiscovered          Method = "discovered"
	MethodOverride            Method = "override"
	MethodReadabilityFallback Method = "readability-fallback"
)

// ScrapeResult is the library-level outcome of a ScrapeRequest. The engine
// always returns one of these; it never throws for operational failures.
type ScrapeResult struct {
	Success bool

	// Populated when Success is true.
	Method     Method
	XPath      string
	Data       string
	DurationMs int64

	// Populated when Success is false.
	Error *ScrapeError
}

// Failure builds a failed ScrapeResult, stamping duration from start.
func Failure(err *ScrapeError, start time.Time) *ScrapeResult {
	return &ScrapeResult{Success: false, Error: err, DurationMs: time.Since(start).Milliseconds()}
}

// Succeed builds a successful ScrapeResult, stamping duration from start.
func Succeed(method Method, xpath, data string, start time.Time) *ScrapeResult {
	return &ScrapeResult{
		Success:    true,
		Method:     method,
		XPath:      xpath,
		Data:       data,
		DurationMs: time.Since(start).Milliseconds(),
	}
}
