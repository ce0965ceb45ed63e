package scoring

import (
	"testing"

	"github.com/use-agent/smartscraper/models"
)

func defaultWeights() Weights {
	return Weights{
		MinParagraphThreshold:  5,
		SingleMatchBonus:       80,
		ParagraphWeight:        1,
		UnwantedTagRatioWeight: -75,
		SemanticTagBonus:       75,
		DescriptiveIDBonus:     30,
		TextDensityWeight:      50,
		LinkDensityWeight:      -30,
		MediaPresenceBonus:     25,
		XPathComplexityWeight:  -5,
	}
}

func TestScore_ParagraphGateZeroesScore(t *testing.T) {
	c := Candidate{
		Details: &models.ElementDetails{
			TagName:         "article",
			DescendantCount: 10,
			TextLength:      900,
			HTMLLength:      1000,
			PerTagCounts:    map[string]int{"p": 2}, // below threshold of 5
		},
		MatchesInDocument: 1,
		XPath:             "//article",
	}
	if got := Score(c, defaultWeights()); got != 0 {
		t.Errorf("Score() = %v, want exactly 0 when paragraph gate fails", got)
	}
}

func TestScore_StrongArticleCandidatePasses(t *testing.T) {
	c := Candidate{
		Details: &models.ElementDetails{
			TagName:         "article",
			ID:              "main-article",
			DescendantCount: 40,
			TextLength:      3000,
			HTMLLength:      3600,
			PerTagCounts:    map[string]int{"p": 12, "a": 2, "img": 1},
		},
		MatchesInDocument: 1,
		XPath:             "//article",
	}
	score := Score(c, defaultWeights())
	if !Passes(score) {
		t.Errorf("expected a strong article candidate to pass, score=%v", score)
	}
}

func TestScore_NavHeavyCandidateFails(t *testing.T) {
	c := Candidate{
		Details: &models.ElementDetails{
			TagName:         "div",
			DescendantCount: 50,
			TextLength:      200,
			HTMLLength:      4000,
			PerTagCounts:    map[string]int{"p": 6, "nav": 20, "footer": 10, "a": 40},
		},
		MatchesInDocument: 3,
		XPath:             "//div[@class='wrapper']/div",
	}
	score := Score(c, defaultWeights())
	if Passes(score) {
		t.Errorf("expected a nav/link-heavy wrapper to fail, score=%v", score)
	}
}

func TestScore_DeterministicForIdenticalInputs(t *testing.T) {
	c := Candidate{
		Details: &models.ElementDetails{
			TagName:         "main",
			DescendantCount: 20,
			TextLength:      1500,
			HTMLLength:      2000,
			PerTagCounts:    map[string]int{"p": 8},
		},
		MatchesInDocument: 1,
		XPath:             "//main",
	}
	w := defaultWeights()
	s1 := Score(c, w)
	s2 := Score(c, w)
	if s1 != s2 {
		t.Errorf("Score not deterministic: %v vs %v", s1, s2)
	}
}

func TestBest_TiedCandidatesKeepFirstEncountered(t *testing.T) {
	w := defaultWeights()
	candidates := []Candidate{
		{
			Details: &models.ElementDetails{TagName: "article", DescendantCount: 20, TextLength: 1000, HTMLLength: 1200, PerTagCounts: map[string]int{"p": 10}},
			MatchesInDocument: 1, XPath: "//article",
		},
		{
			Details: &models.ElementDetails{TagName: "article", DescendantCount: 20, TextLength: 1000, HTMLLength: 1200, PerTagCounts: map[string]int{"p": 10}},
			MatchesInDocument: 1, XPath: "//article",
		},
	}
	scores := []float64{Score(candidates[0], w), Score(candidates[1], w)}
	// Identical candidates: Best must deterministically pick the
	// first-encountered one.
	if got := Best(candidates, scores); got != 0 {
		t.Errorf("Best() = %d, want 0 (first-encountered) for tied candidates", got)
	}
}

func TestBest_NoPassingCandidateReturnsNegativeOne(t *testing.T) {
	w := defaultWeights()
	candidates := []Candidate{
		{Details: &models.ElementDetails{TagName: "div", PerTagCounts: map[string]int{"p": 1}}, XPath: "//div"},
	}
	scores := []float64{Score(candidates[0], w)}
	if got := Best(candidates, scores); got != -1 {
		t.Errorf("Best() = %d, want -1 when nothing passes", got)
	}
}
