// Package llm defines the LLM contract the Discovery Loop consumes and its
// production implementation: an OpenAI-compatible chat completion client
// with three-strategy robust response parsing and exponential-backoff
// retry.
package llm

import "context"

// SuggestRequest bundles everything the LLM needs to propose candidate
// XPaths for a page's main content.
type SuggestRequest struct {
	SimplifiedDOM  string
	Snippets       []string
	URL            string
	FeedbackLedger []FeedbackEntry
}

// FeedbackEntry records one previously tried candidate and why it failed,
// accumulated across Discovery Loop iterations.
type FeedbackEntry struct {
	XPath  string
	Reason string
}

// Client is the contract the Discovery Loop drives. The production
// implementation is OpenAIClient in openai.go; Fake in fake.go is the test
// double.
type Client interface {
	SuggestXPaths(ctx context.Context, req SuggestRequest) ([]string, error)
}
