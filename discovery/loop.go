// Package discovery implements the Discovery Loop: ask the LLM for
// candidate main-content XPaths, validate every candidate against the
// live page in parallel, score them, and either accept a winner or feed
// the losers back to the LLM as negative feedback for another round. The
// fan-out-and-collect shape is the familiar "race N workers" pattern,
// generalized from "first success wins" to "gather all, then score."
package discovery

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/use-agent/smartscraper/browser"
	"github.com/use-agent/smartscraper/llm"
	"github.com/use-agent/smartscraper/models"
	"github.com/use-agent/smartscraper/scoring"
)

// Input bundles what one discovery run needs.
type Input struct {
	PageID        string
	URL           string
	SimplifiedDOM string
	Snippets      []string
	MaxRetries    int // total iterations is MaxRetries + 1
}

// Result is what a completed discovery run produces.
type Result struct {
	XPath string
}

type validated struct {
	xpath string
	cand  scoring.Candidate
	score float64
	err   error
}

// Run drives the loop to completion or exhaustion. br and client are
// injected so tests can supply browser.Fake and llm.Fake.
func Run(ctx context.Context, br browser.Browser, client llm.Client, weights scoring.Weights, in Input) (Result, *models.ScrapeError) {
	ledger := NewLedger()

	iterations := in.MaxRetries + 1
	for attempt := 0; attempt < iterations; attempt++ {
		candidates, err := client.SuggestXPaths(ctx, llm.SuggestRequest{
			SimplifiedDOM:  in.SimplifiedDOM,
			Snippets:       in.Snippets,
			URL:            in.URL,
			FeedbackLedger: ledger.Entries(),
		})
		if err != nil {
			return Result{}, models.NewScrapeError(models.KindLLM, "suggest_xpaths failed", err)
		}

		fresh := make([]string, 0, len(candidates))
		for _, c := range candidates {
			if c == "" || ledger.Seen(c) {
				continue
			}
			fresh = append(fresh, c)
		}
		if len(fresh) == 0 {
			continue
		}

		results := validateAll(ctx, br, in.PageID, fresh, weights)

		scores := make([]float64, len(results))
		cands := make([]scoring.Candidate, len(results))
		for i, r := range results {
			if r.err != nil {
				ledger.Record(r.xpath, fmt.Sprintf("validation error: %v", r.err))
				scores[i] = -1
				continue
			}
			cands[i] = r.cand
			scores[i] = r.score
		}

		best := scoring.Best(cands, scores)
		if best >= 0 {
			return Result{XPath: cands[best].XPath}, nil
		}

		for i, r := range results {
			if r.err == nil {
				ledger.Record(r.xpath, "scored non-passing: failed the paragraph gate or weighted factors")
			}
		}
	}

	return Result{}, models.NewScrapeError(models.KindExtraction, "discovery loop exhausted all attempts without a passing candidate", nil)
}

// validateAll fetches ElementDetails for every candidate concurrently. A
// per-candidate error never aborts the others — errgroup.Group without
// WithContext cancellation so one bad xpath doesn't sink the batch.
func validateAll(ctx context.Context, br browser.Browser, pageID string, xpaths []string, weights scoring.Weights) []validated {
	out := make([]validated, len(xpaths))
	var g errgroup.Group

	for i, xpath := range xpaths {
		i, xpath := i, xpath
		g.Go(func() error {
			details, err := br.GetElementDetails(ctx, pageID, xpath)
			if err != nil {
				out[i] = validated{xpath: xpath, err: err}
				return nil
			}
			if details == nil {
				out[i] = validated{xpath: xpath, err: fmt.Errorf("xpath matched no elements")}
				return nil
			}
			cand := scoring.Candidate{Details: details, MatchesInDocument: details.MatchesInDocument, XPath: xpath}
			out[i] = validated{xpath: xpath, cand: cand, score: scoring.Score(cand, weights)}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
