// Package captcha defines the Captcha contract the Scrape State Machine
// consumes, and its two production implementations: a generic submit/poll
// solver and a DataDome-style slider solver. Both share transport.go's
// Chrome-TLS-fingerprinted HTTP client.
package captcha

import (
	"context"

	"github.com/use-agent/smartscraper/models"
)

// SolveRequest bundles what a solver needs to resolve an observed
// challenge on a loaded page.
type SolveRequest struct {
	PageURL     string
	Observation models.CaptchaObservation
	Proxy       string
	UserAgent   string
}

// Solver is the contract the Scrape State Machine drives. Polling is
// bounded by ctx's deadline and must also terminate immediately on any
// fatal error indicator the remote solver returns, not only on an
// explicit terminal status field.
type Solver interface {
	SolveIfPresent(ctx context.Context, req SolveRequest) (models.CaptchaSolution, error)
}
