// Package scoring implements the deterministic Scoring Engine: a weighted
// linear combination of signals over a candidate selector's
// ElementDetails, gated by a hard minimum-paragraph-count rule. It takes
// pre-computed ElementDetails rather than a live DOM selection, since the
// browser adapter, not this package, is what walks the DOM; the Scoring
// Engine itself stays a pure function with no I/O and no third-party
// dependency.
package scoring

import (
	"regexp"
	"strings"

	"github.com/use-agent/smartscraper/config"
	"github.com/use-agent/smartscraper/models"
)

var descriptiveIDClassPattern = regexp.MustCompile(`(?i)article|content|body|story|main|post|entry`)

// Weights carries the tunable coefficients from config.ScoringConfig. It is
// a thin copy so the scoring package doesn't need to import the whole
// config struct through every call site.
type Weights struct {
	MinParagraphThreshold int

	SingleMatchBonus      float64
	ParagraphWeight       float64
	UnwantedTagRatioWeight float64
	SemanticTagBonus      float64
	DescriptiveIDBonus    float64
	TextDensityWeight     float64
	LinkDensityWeight     float64
	MediaPresenceBonus    float64
	XPathComplexityWeight float64
}

// FromConfig adapts a config.ScoringConfig into scoring.Weights.
func FromConfig(c config.ScoringConfig) Weights {
	return Weights{
		MinParagraphThreshold:  c.MinParagraphThreshold,
		SingleMatchBonus:       c.SingleMatchBonus,
		ParagraphWeight:        c.ParagraphWeight,
		UnwantedTagRatioWeight: c.UnwantedTagRatioWeight,
		SemanticTagBonus:       c.SemanticTagBonus,
		DescriptiveIDBonus:     c.DescriptiveIDBonus,
		TextDensityWeight:      c.TextDensityWeight,
		LinkDensityWeight:      c.LinkDensityWeight,
		MediaPresenceBonus:     c.MediaPresenceBonus,
		XPathComplexityWeight:  c.XPathComplexityWeight,
	}
}

// Candidate bundles what the Scoring Engine needs about one candidate
// selector: its element details, how many places in the document it
// matched, and the XPath string itself (for the complexity penalty).
type Candidate struct {
	Details           *models.ElementDetails
	MatchesInDocument int
	XPath             string
}

// Score computes the candidate's weighted score. A candidate that fails
// the minimum-paragraph rule scores exactly 0, unconditionally.
func Score(c Candidate, w Weights) float64 {
	d := c.Details
	if d == nil || d.TagCount("p") < w.MinParagraphThreshold {
		return 0
	}

	var score float64

	if c.MatchesInDocument == 1 {
		score += w.SingleMatchBonus
	}

	score += w.ParagraphWeight * float64(d.TagCount("p"))

	unwantedCount := d.TagCount("nav") + d.TagCount("aside") + d.TagCount("footer") + d.TagCount("header")
	if d.DescendantCount > 0 {
		unwantedRatio := float64(unwantedCount) / float64(d.DescendantCount)
		score += w.UnwantedTagRatioWeight * unwantedRatio
	}

	if isSemanticTag(d.TagName) {
		score += w.SemanticTagBonus
	}

	if descriptiveIDClassPattern.MatchString(d.ID) || descriptiveIDClassPattern.MatchString(d.Class) {
		score += w.DescriptiveIDBonus
	}

	if d.HTMLLength > 0 {
		textDensity := float64(d.TextLength) / float64(d.HTMLLength)
		score += w.TextDensityWeight * textDensity
	}

	if d.DescendantCount > 0 {
		linkDensity := float64(d.TagCount("a")) / float64(d.DescendantCount)
		score += w.LinkDensityWeight * linkDensity
	}

	if hasMedia(d) {
		score += w.MediaPresenceBonus
	}

	score += w.XPathComplexityWeight * float64(xpathComplexity(c.XPath))

	return score
}

// Passes reports whether score qualifies the candidate: strictly greater
// than 0, after the paragraph gate has already been applied by Score.
func Passes(score float64) bool {
	return score > 0
}

func isSemanticTag(tag string) bool {
	return tag == "article" || tag == "main"
}

func hasMedia(d *models.ElementDetails) bool {
	return d.TagCount("img") > 0 || d.TagCount("video") > 0 || d.TagCount("audio") > 0 || d.TagCount("picture") > 0
}

// xpathComplexity counts path segments (`/`) plus predicate clauses (`[`).
func xpathComplexity(xpath string) int {
	return strings.Count(xpath, "/") + strings.Count(xpath, "[")
}

// Best applies the tie-break rules: higher score first, then higher
// paragraph count, then lower XPath complexity, then first-encountered
// order. candidates must be in encounter order. Returns -1 if none
// passes.
func Best(candidates []Candidate, scores []float64) int {
	best := -1
	for i, s := range scores {
		if !Passes(s) {
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		if better(candidates[i], s, candidates[best], scores[best]) {
			best = i
		}
	}
	return best
}

func better(a Candidate, aScore float64, b Candidate, bScore float64) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	aParas, bParas := a.Details.TagCount("p"), b.Details.TagCount("p")
	if aParas != bParas {
		return aParas > bParas
	}
	aComplex, bComplex := xpathComplexity(a.XPath), xpathComplexity(b.XPath)
	if aComplex != bComplex {
		return aComplex < bComplex
	}
	return false // equal on every tiebreak; keep the first-encountered (b, already chosen)
}
