package discovery

import (
	"context"
	"testing"

	"github.com/use-agent/smartscraper/browser"
	"github.com/use-agent/smartscraper/llm"
	"github.com/use-agent/smartscraper/models"
	"github.com/use-agent/smartscraper/scoring"
)

func testWeights() scoring.Weights {
	return scoring.Weights{
		MinParagraphThreshold: 5,
		SingleMatchBonus:      80,
		ParagraphWeight:       1,
		SemanticTagBonus:      75,
	}
}

func newFakeBrowserWithPage(pageID string, xpathDetails map[string]*models.ElementDetails) *browser.Fake {
	f := browser.NewFake()
	f.NewPage(pageID, &browser.FakePage{
		URL:            "https://example.com/article",
		ElementDetails: xpathDetails,
	})
	return f
}

func strongArticleDetails() *models.ElementDetails {
	return &models.ElementDetails{
		TagName:         "article",
		DescendantCount: 40,
		TextLength:      4000,
		HTMLLength:      5000,
		PerTagCounts:    map[string]int{"p": 12},
	}
}

func weakNavDetails() *models.ElementDetails {
	return &models.ElementDetails{
		TagName:         "nav",
		DescendantCount: 40,
		TextLength:      100,
		HTMLLength:      5000,
		PerTagCounts:    map[string]int{"p": 1},
	}
}

func TestRun_AcceptsFirstRoundPassingCandidate(t *testing.T) {
	pageID := "page-1"
	f := newFakeBrowserWithPage(pageID, map[string]*models.ElementDetails{
		"//article": strongArticleDetails(),
	})
	client := &llm.Fake{Responses: []llm.FakeResponse{{Candidates: []string{"//article"}}}}

	result, scrapeErr := Run(context.Background(), f, client, testWeights(), Input{
		PageID: pageID, URL: "https://example.com/article", MaxRetries: 2,
	})
	if scrapeErr != nil {
		t.Fatalf("Run: %v", scrapeErr)
	}
	if result.XPath != "//article" {
		t.Errorf("got xpath %q, want //article", result.XPath)
	}
}

func TestRun_RetriesWithFeedbackWhenFirstRoundFails(t *testing.T) {
	pageID := "page-1"
	f := newFakeBrowserWithPage(pageID, map[string]*models.ElementDetails{
		"//nav":     weakNavDetails(),
		"//article": strongArticleDetails(),
	})
	client := &llm.Fake{Responses: []llm.FakeResponse{
		{Candidates: []string{"//nav"}},
		{Candidates: []string{"//article"}},
	}}

	result, scrapeErr := Run(context.Background(), f, client, testWeights(), Input{
		PageID: pageID, URL: "https://example.com/article", MaxRetries: 2,
	})
	if scrapeErr != nil {
		t.Fatalf("Run: %v", scrapeErr)
	}
	if result.XPath != "//article" {
		t.Errorf("got xpath %q, want //article", result.XPath)
	}
	if len(client.Requests) != 2 {
		t.Fatalf("expected 2 LLM round trips, got %d", len(client.Requests))
	}
	feedback := client.Requests[1].FeedbackLedger
	if len(feedback) != 1 || feedback[0].XPath != "//nav" {
		t.Errorf("expected second round's feedback ledger to include the failed //nav candidate, got %+v", feedback)
	}
}

func TestRun_NeverRetriesTheSameCandidateTwice(t *testing.T) {
	pageID := "page-1"
	f := newFakeBrowserWithPage(pageID, map[string]*models.ElementDetails{
		"//nav": weakNavDetails(),
	})
	client := &llm.Fake{Responses: []llm.FakeResponse{
		{Candidates: []string{"//nav"}},
		{Candidates: []string{"//nav"}}, // LLM repeats itself; loop must not re-validate
	}}

	_, scrapeErr := Run(context.Background(), f, client, testWeights(), Input{
		PageID: pageID, URL: "https://example.com/article", MaxRetries: 2,
	})
	if scrapeErr == nil {
		t.Fatal("expected exhaustion error since no candidate ever passes")
	}
	if scrapeErr.Kind != models.KindExtraction {
		t.Errorf("got error kind %q, want extraction", scrapeErr.Kind)
	}
}

func TestRun_ExhaustsAfterMaxRetriesWithoutPassingCandidate(t *testing.T) {
	pageID := "page-1"
	f := newFakeBrowserWithPage(pageID, map[string]*models.ElementDetails{
		"//nav-1": weakNavDetails(),
		"//nav-2": weakNavDetails(),
		"//nav-3": weakNavDetails(),
	})
	client := &llm.Fake{Responses: []llm.FakeResponse{
		{Candidates: []string{"//nav-1"}},
		{Candidates: []string{"//nav-2"}},
		{Candidates: []string{"//nav-3"}},
	}}

	_, scrapeErr := Run(context.Background(), f, client, testWeights(), Input{
		PageID: pageID, URL: "https://example.com/article", MaxRetries: 2,
	})
	if scrapeErr == nil || scrapeErr.Kind != models.KindExtraction {
		t.Fatalf("expected extraction error after exhausting retries, got %+v", scrapeErr)
	}
	if len(client.Requests) != 3 {
		t.Errorf("expected exactly MaxRetries+1=3 LLM round trips, got %d", len(client.Requests))
	}
}
