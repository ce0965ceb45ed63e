// Package readability wraps Mozilla's Readability algorithm as a
// last-resort content-extraction fallback for a domain the LLM-driven
// Discovery Loop couldn't find a passing XPath selector for. It never
// learns a selector for next time — it just gets this one request an
// answer instead of an outright extraction failure.
package readability

import (
	"log/slog"
	"net/url"
	"strings"

	goreadability "github.com/go-shiori/go-readability"
)

// MinContentLength is the minimum TextContent length, in characters,
// below which the algorithm is assumed to have failed to locate the
// main content rather than to have found a genuinely short article.
const MinContentLength = 50

// Result holds what the fallback extraction produced.
type Result struct {
	Title   string
	Content string // readability's cleaned HTML for the article body
	Text    string // plain text of Content
}

// Extract runs Mozilla Readability against rawHTML. ok is false if the
// page URL doesn't parse, the algorithm errors, or the extracted text
// falls below MinContentLength — any of which means the caller should
// treat this as "no fallback available," not propagate an error.
func Extract(rawHTML, pageURL string) (result Result, ok bool) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		slog.Warn("readability: invalid page url, skipping fallback", "url", pageURL, "error", err)
		return Result{}, false
	}

	article, err := goreadability.FromReader(strings.NewReader(rawHTML), parsed)
	if err != nil {
		slog.Warn("readability: extraction failed", "url", pageURL, "error", err)
		return Result{}, false
	}

	if len(strings.TrimSpace(article.TextContent)) < MinContentLength {
		slog.Warn("readability: extracted content too short", "url", pageURL, "length", len(article.TextContent))
		return Result{}, false
	}

	return Result{Title: article.Title, Content: article.Content, Text: article.TextContent}, true
}
