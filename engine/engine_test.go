package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/use-agent/smartscraper/browser"
	"github.com/use-agent/smartscraper/captcha"
	"github.com/use-agent/smartscraper/config"
	"github.com/use-agent/smartscraper/eventbus"
	"github.com/use-agent/smartscraper/knownsites"
	"github.com/use-agent/smartscraper/llm"
	"github.com/use-agent/smartscraper/models"
)

func testConfig() *config.Config {
	return &config.Config{
		Scraper: config.ScraperConfig{
			DefaultScrapeTimeout: 5 * time.Second,
			NavigationTimeout:    2 * time.Second,
			CaptchaStepTimeout:   2 * time.Second,
		},
		Store: config.StoreConfig{
			MinContentChars:      20,
			RediscoveryThreshold: 2,
		},
		Scoring: config.ScoringConfig{
			MinParagraphThreshold: 2,
			SingleMatchBonus:      80,
			ParagraphWeight:       1,
			SemanticTagBonus:      75,
		},
		Simplify: config.SimplifyConfig{
			MaxInputBytes:  1 << 20,
			MaxOutputChars: 8000,
			SnippetCount:   3,
			SnippetMinChars: 0,
			SnippetMaxChars: 500,
		},
		Discovery: config.DiscoveryConfig{MaxLLMRetries: 1},
	}
}

func openTestStore(t *testing.T) *knownsites.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := knownsites.Open(filepath.Join(dir, "site_configs.jsonc"))
	if err != nil {
		t.Fatalf("knownsites.Open: %v", err)
	}
	return store
}

func TestScrape_InvalidRequestFailsWithConfigurationError(t *testing.T) {
	e := New(testConfig(), openTestStore(t), browser.NewFake(), nil, nil, nil, nil)
	result := e.Scrape(context.Background(), &models.ScrapeRequest{URL: ""}, &models.WorkerSlot{ScrapeID: "s1"})
	if result.Success || result.Error.Kind != models.KindConfiguration {
		t.Fatalf("expected configuration failure, got %+v", result)
	}
}

func TestScrape_UsesStoredSelectorWithoutCallingLLM(t *testing.T) {
	store := openTestStore(t)
	if err := store.Put(&models.SiteConfig{DomainPattern: "example.com", XPathMainContent: "//article"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	f := browser.NewFake()
	f.NewPage("https://example.com/post", &browser.FakePage{
		XPathMatches: map[string][]string{"//article": {"This is a long enough article body to pass the minimum content threshold."}},
	})

	client := &llm.Fake{}
	e := New(testConfig(), store, f, client, nil, nil, nil)

	result := e.Scrape(context.Background(), &models.ScrapeRequest{URL: "https://example.com/post"}, &models.WorkerSlot{ScrapeID: "s1", URL: "https://example.com/post"})
	if !result.Success || result.Method != models.MethodKnownConfig {
		t.Fatalf("expected known-config success, got %+v", result)
	}
	if len(client.Requests) != 0 {
		t.Errorf("expected no LLM calls when a stored selector succeeds, got %d", len(client.Requests))
	}
}

func TestScrape_DisabledDiscoveryOnColdDomainFailsWithExtraction(t *testing.T) {
	store := openTestStore(t)
	f := browser.NewFake()
	f.NewPage("https://cold.example.com/", &browser.FakePage{})

	e := New(testConfig(), store, f, &llm.Fake{}, nil, nil, nil)
	result := e.Scrape(context.Background(), &models.ScrapeRequest{URL: "https://cold.example.com/", DisableDiscovery: true}, &models.WorkerSlot{ScrapeID: "s1", URL: "https://cold.example.com/"})
	if result.Success || result.Error.Kind != models.KindExtraction {
		t.Fatalf("expected extraction failure, got %+v", result)
	}
}

func TestScrape_XPathOverrideBypassesKnownSitesLookup(t *testing.T) {
	store := openTestStore(t)
	if err := store.Put(&models.SiteConfig{DomainPattern: "example.com", XPathMainContent: "//wrong"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	f := browser.NewFake()
	f.NewPage("https://example.com/post", &browser.FakePage{
		XPathMatches: map[string][]string{"//override": {"Override content long enough to pass the threshold check here."}},
	})

	e := New(testConfig(), store, f, nil, nil, nil, nil)
	result := e.Scrape(context.Background(), &models.ScrapeRequest{URL: "https://example.com/post", XPathOverride: "//override"}, &models.WorkerSlot{ScrapeID: "s1", URL: "https://example.com/post"})
	if !result.Success || result.Method != models.MethodOverride || result.XPath != "//override" {
		t.Fatalf("expected override success, got %+v", result)
	}
}

func TestScrape_CaptchaSolvedThenReloadedBeforeExtraction(t *testing.T) {
	store := openTestStore(t)
	f := browser.NewFake()
	f.NewPage("https://blocked.example.com/", &browser.FakePage{
		Captcha:       models.CaptchaObservation{Kind: models.CaptchaGeneric, SiteKey: "abc"},
		ReloadHTML:    "<html>cleared</html>",
		ReloadCaptcha: &models.CaptchaObservation{Kind: models.CaptchaNone},
		XPathMatches: map[string][]string{
			"//article": {"Plenty of article text here to clear the minimum content threshold easily."},
		},
	})

	solver := captcha.NewFake(models.CaptchaSolution{Solved: true, UpdatedCookie: "sess=1"})
	e := New(testConfig(), store, f, nil, solver, nil, nil)

	if err := store.Put(&models.SiteConfig{DomainPattern: "blocked.example.com", XPathMainContent: "//article"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	result := e.Scrape(context.Background(), &models.ScrapeRequest{URL: "https://blocked.example.com/"}, &models.WorkerSlot{ScrapeID: "s1", URL: "https://blocked.example.com/"})
	if !result.Success {
		t.Fatalf("expected success after captcha solved, got %+v", result)
	}
	if len(solver.Requests) != 1 {
		t.Errorf("expected exactly one solver invocation, got %d", len(solver.Requests))
	}
}

func TestScrape_CaptchaStillPresentAfterReloadFailsAsTerminalCaptcha(t *testing.T) {
	store := openTestStore(t)
	f := browser.NewFake()
	f.NewPage("https://blocked.example.com/", &browser.FakePage{
		Captcha: models.CaptchaObservation{Kind: models.CaptchaGeneric, SiteKey: "abc"},
		// ReloadCaptcha left nil: the captcha observation is unchanged by
		// Reload, simulating a solver that reports success but whose
		// cookie didn't actually clear the challenge.
		XPathMatches: map[string][]string{
			"//article": {"Plenty of article text here to clear the minimum content threshold easily."},
		},
	})

	solver := captcha.NewFake(models.CaptchaSolution{Solved: true, UpdatedCookie: "sess=1"})
	e := New(testConfig(), store, f, nil, solver, nil, nil)

	if err := store.Put(&models.SiteConfig{DomainPattern: "blocked.example.com", XPathMainContent: "//article"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	result := e.Scrape(context.Background(), &models.ScrapeRequest{URL: "https://blocked.example.com/"}, &models.WorkerSlot{ScrapeID: "s1", URL: "https://blocked.example.com/"})
	if result.Success || result.Error == nil || result.Error.Kind != models.KindCaptcha {
		t.Fatalf("expected terminal captcha failure, got %+v", result)
	}
}

func TestScrape_FallsBackToReadabilityWhenDiscoveryExhausted(t *testing.T) {
	store := openTestStore(t)
	f := browser.NewFake()
	html := `<html><head><title>Fallback Article</title></head><body>
<article>
<h1>Fallback Article</h1>
<p>This paragraph exists purely to push the extracted text content past the
minimum length threshold readability applies before trusting its own output,
since short extractions are more often a sign of a wrong node than a
genuinely short article.</p>
<p>A second paragraph reinforces that this is a real article body, not a
navigation fragment or a footer full of boilerplate links.</p>
</article>
</body></html>`
	f.NewPage("https://undiscoverable.example.com/post", &browser.FakePage{HTML: html})

	// An empty llm.Fake yields no candidates on every attempt, so the
	// Discovery Loop exhausts without a passing xpath and the engine
	// must fall through to the readability fallback.
	e := New(testConfig(), store, f, &llm.Fake{}, nil, nil, nil)
	result := e.Scrape(context.Background(), &models.ScrapeRequest{URL: "https://undiscoverable.example.com/post"}, &models.WorkerSlot{ScrapeID: "s1", URL: "https://undiscoverable.example.com/post"})
	if !result.Success || result.Method != models.MethodReadabilityFallback {
		t.Fatalf("expected readability fallback success, got %+v", result)
	}
	if result.XPath != "" {
		t.Errorf("expected no xpath recorded for a readability fallback, got %q", result.XPath)
	}
}

func TestScrape_PublishesStartAndEndEvents(t *testing.T) {
	store := openTestStore(t)
	f := browser.NewFake()
	f.NewPage("https://example.com/post", &browser.FakePage{
		XPathMatches: map[string][]string{"//article": {"Enough content here to clear the configured minimum threshold value."}},
	})
	if err := store.Put(&models.SiteConfig{DomainPattern: "example.com", XPathMainContent: "//article"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	bus := eventbus.New(4)
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	e := New(testConfig(), store, f, nil, nil, nil, bus)
	e.Scrape(context.Background(), &models.ScrapeRequest{URL: "https://example.com/post"}, &models.WorkerSlot{ScrapeID: "s1", URL: "https://example.com/post"})

	first := <-ch
	second := <-ch
	if first.Type != eventbus.EventScrapeStarted || second.Type != eventbus.EventScrapeEnded {
		t.Errorf("expected started-then-ended event pair, got %v then %v", first.Type, second.Type)
	}
}

func TestScrape_ClosesPageOnEveryExitPath(t *testing.T) {
	store := openTestStore(t)
	f := browser.NewFake()
	f.NewPage("https://example.com/missing", &browser.FakePage{})

	e := New(testConfig(), store, f, nil, nil, nil, nil)
	e.Scrape(context.Background(), &models.ScrapeRequest{URL: "https://example.com/missing", DisableDiscovery: true}, &models.WorkerSlot{ScrapeID: "s1", URL: "https://example.com/missing"})

	if len(f.ClosedIDs) != 1 {
		t.Errorf("expected the page to be closed exactly once, got %d closes", len(f.ClosedIDs))
	}
}
