// Package engine implements the Scrape State Machine: the single
// process-wide orchestrator that walks a request through Validate →
// Lookup → Fetch → DetectCaptcha → SolveCaptcha → DetectCaptcha (once
// more, to confirm the solve took) → ExtractOrDiscover. Stealth/hijack/
// headers go on before navigation, and the page is released on every
// exit path, success or failure alike.
package engine

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/smartscraper/browser"
	"github.com/use-agent/smartscraper/captcha"
	"github.com/use-agent/smartscraper/config"
	"github.com/use-agent/smartscraper/discovery"
	"github.com/use-agent/smartscraper/eventbus"
	"github.com/use-agent/smartscraper/knownsites"
	"github.com/use-agent/smartscraper/llm"
	"github.com/use-agent/smartscraper/models"
	"github.com/use-agent/smartscraper/readability"
	"github.com/use-agent/smartscraper/scoring"
	"github.com/use-agent/smartscraper/simplify"
)

// markdownConverter renders extracted content HTML into LLM-friendly
// Markdown: headings, lists, links, and tables survive; script/style/
// iframe noise does not. One converter is reused across every scrape
// since it holds no per-request state.
var markdownConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(
			table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
		),
	),
)

// Engine is the process-wide singleton the Concurrency Gate dispatches
// admitted scrapes to.
type Engine struct {
	cfg            *config.Config
	store          *knownsites.Store
	br             browser.Browser
	llmClient      llm.Client
	genericSolver  captcha.Solver
	dataDomeSolver captcha.Solver
	bus            *eventbus.Bus
}

func New(cfg *config.Config, store *knownsites.Store, br browser.Browser, llmClient llm.Client, genericSolver, dataDomeSolver captcha.Solver, bus *eventbus.Bus) *Engine {
	return &Engine{
		cfg:            cfg,
		store:          store,
		br:             br,
		llmClient:      llmClient,
		genericSolver:  genericSolver,
		dataDomeSolver: dataDomeSolver,
		bus:            bus,
	}
}

// Scrape runs one request through the full state machine. It never
// panics or returns a bare error for operational failures — every
// outcome, successful or not, is reported through the returned
// ScrapeResult, per models.ScrapeResult's contract.
func (e *Engine) Scrape(ctx context.Context, req *models.ScrapeRequest, slot *models.WorkerSlot) *models.ScrapeResult {
	start := time.Now()

	// ── 1. Validate ──────────────────────────────────────────────────
	if scrapeErr := req.Validate(); scrapeErr != nil {
		return models.Failure(scrapeErr, start)
	}

	e.publish(eventbus.EventScrapeStarted, slot, "")

	result := e.run(ctx, req, start)

	errMsg := ""
	if !result.Success && result.Error != nil {
		errMsg = result.Error.Error()
	}
	e.publish(eventbus.EventScrapeEnded, slot, errMsg)

	return result
}

func (e *Engine) run(ctx context.Context, req *models.ScrapeRequest, start time.Time) *models.ScrapeResult {
	// ── 2. Lookup ────────────────────────────────────────────────────
	domain, err := models.NormalizedDomain(req.URL)
	if err != nil {
		return models.Failure(models.NewScrapeError(models.KindConfiguration, "could not derive domain from url", err), start)
	}

	var siteCfg *models.SiteConfig
	if req.XPathOverride == "" {
		siteCfg = e.store.Get(domain)
	}

	loadOpts := browser.LoadOptions{
		Timeout:   e.cfg.Scraper.NavigationTimeout,
		UserAgent: "",
		Proxy:     e.cfg.Browser.DefaultProxy,
	}
	if siteCfg != nil {
		loadOpts.UserAgent = siteCfg.UserAgentOverride
		loadOpts.Headers = siteCfg.SiteSpecificHeaders
	}

	// ── 3. Fetch ─────────────────────────────────────────────────────
	pageID, err := e.br.LoadPage(ctx, req.URL, loadOpts)
	if err != nil {
		e.recordFailure(domain)
		return models.Failure(models.NewScrapeError(models.KindNetwork, "failed to load page", err), start)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if closeErr := e.br.ClosePage(closeCtx, pageID); closeErr != nil {
			slog.Warn("engine: failed to close page", "url", req.URL, "error", closeErr)
		}
	}()

	// ── 4. DetectCaptcha ─────────────────────────────────────────────
	observation, err := e.br.DetectCaptcha(ctx, pageID)
	if err != nil {
		e.recordFailure(domain)
		return models.Failure(models.NewScrapeError(models.KindNetwork, "failed to inspect page for captchas", err), start)
	}

	// ── 5. SolveCaptcha ──────────────────────────────────────────────
	if observation.Kind != models.CaptchaNone {
		if scrapeErr := e.solveCaptcha(ctx, req, pageID, observation, loadOpts); scrapeErr != nil {
			e.recordFailure(domain)
			return models.Failure(scrapeErr, start)
		}
	}

	// ── 6. ExtractOrDiscover ─────────────────────────────────────────
	return e.extractOrDiscover(ctx, req, pageID, domain, siteCfg, start)
}

func (e *Engine) solveCaptcha(ctx context.Context, req *models.ScrapeRequest, pageID string, observation models.CaptchaObservation, loadOpts browser.LoadOptions) *models.ScrapeError {
	solveCtx, cancel := context.WithTimeout(ctx, e.cfg.Scraper.CaptchaStepTimeout)
	defer cancel()

	var solver captcha.Solver
	switch observation.Kind {
	case models.CaptchaDataDome:
		solver = e.dataDomeSolver
	default:
		solver = e.genericSolver
	}
	if solver == nil {
		return models.NewScrapeError(models.KindCaptcha, "no solver configured for observed captcha kind", nil)
	}

	solution, err := solver.SolveIfPresent(solveCtx, captcha.SolveRequest{
		PageURL:     req.URL,
		Observation: observation,
		Proxy:       loadOpts.Proxy,
		UserAgent:   loadOpts.UserAgent,
	})
	if err != nil {
		return models.NewScrapeError(models.KindCaptcha, "captcha solver request failed", err)
	}
	if !solution.Solved {
		return models.NewScrapeError(models.KindCaptcha, "captcha could not be solved: "+solution.Reason, nil)
	}

	if solution.UpdatedCookie != "" {
		if setErr := e.br.SetCookies(ctx, pageID, []browser.Cookie{{Name: "captcha-session", Value: solution.UpdatedCookie}}); setErr != nil {
			return models.NewScrapeError(models.KindCaptcha, "failed to install solver cookie", setErr)
		}
	}

	if reloadErr := e.br.Reload(ctx, pageID, browser.ReloadOptions{Timeout: e.cfg.Scraper.NavigationTimeout}); reloadErr != nil {
		return models.NewScrapeError(models.KindCaptcha, "failed to reload page after solving captcha", reloadErr)
	}

	// A solved challenge is re-checked exactly once: if the page still
	// reports a captcha after the reload, the solver's cookie didn't
	// actually clear it, and retrying further just burns solver budget.
	recheck, err := e.br.DetectCaptcha(ctx, pageID)
	if err != nil {
		return models.NewScrapeError(models.KindNetwork, "failed to re-inspect page for captchas after solving", err)
	}
	if recheck.Kind != models.CaptchaNone {
		return models.NewScrapeError(models.KindCaptcha, "captcha still present after solving and reload", nil)
	}
	return nil
}

func (e *Engine) extractOrDiscover(ctx context.Context, req *models.ScrapeRequest, pageID, domain string, siteCfg *models.SiteConfig, start time.Time) *models.ScrapeResult {
	if req.XPathOverride != "" {
		content, scrapeErr := e.evaluateAndFormat(ctx, pageID, req.XPathOverride, req.URL, req.OutputType)
		if scrapeErr != nil {
			return models.Failure(scrapeErr, start)
		}
		return models.Succeed(models.MethodOverride, req.XPathOverride, content, start)
	}

	if siteCfg != nil && siteCfg.XPathMainContent != "" {
		content, scrapeErr := e.evaluateAndFormat(ctx, pageID, siteCfg.XPathMainContent, req.URL, req.OutputType)
		if scrapeErr == nil {
			e.markSuccess(domain)
			return models.Succeed(models.MethodKnownConfig, siteCfg.XPathMainContent, content, start)
		}

		// Resolved Open Question: a stored selector whose content falls
		// below MinContentChars (or errors outright) is an extraction
		// failure, not an automatic rediscovery — rediscovery only kicks
		// in once FailureCountSinceLastSuccess has crossed
		// RediscoveryThreshold for this domain.
		e.recordFailure(domain)
		refreshed := e.store.Get(domain)
		if refreshed == nil || refreshed.FailureCountSinceLastSuccess < e.cfg.Store.RediscoveryThreshold {
			return models.Failure(scrapeErr, start)
		}
		slog.Info("engine: stored selector exceeded rediscovery threshold, running discovery", "domain", domain, "failures", refreshed.FailureCountSinceLastSuccess)
	}

	// Resolved Open Question: DisableDiscovery=true with no usable stored
	// selector fails as "extraction", the same as a cold domain with
	// discovery turned off — it never silently falls back to discovery.
	if req.DisableDiscovery || e.llmClient == nil {
		return models.Failure(models.NewScrapeError(models.KindExtraction, "no stored selector and discovery is disabled", nil), start)
	}

	return e.discover(ctx, req, pageID, domain, siteCfg, start)
}

func (e *Engine) discover(ctx context.Context, req *models.ScrapeRequest, pageID, domain string, siteCfg *models.SiteConfig, start time.Time) *models.ScrapeResult {
	html, err := e.br.GetHTML(ctx, pageID)
	if err != nil {
		e.recordFailure(domain)
		return models.Failure(models.NewScrapeError(models.KindNetwork, "failed to read page html for discovery", err), start)
	}

	var cleanupClasses []string
	if siteCfg != nil {
		cleanupClasses = siteCfg.SiteCleanupClasses
	}
	simplifier := simplify.New(e.cfg.Simplify, cleanupClasses)
	simplifiedDOM := simplifier.Simplify(html)
	snippets := simplify.ExtractSnippets(html, e.cfg.Simplify, cleanupClasses)

	result, scrapeErr := discovery.Run(ctx, e.br, e.llmClient, scoring.FromConfig(e.cfg.Scoring), discovery.Input{
		PageID:        pageID,
		URL:           req.URL,
		SimplifiedDOM: simplifiedDOM,
		Snippets:      snippets,
		MaxRetries:    e.cfg.Discovery.MaxLLMRetries,
	})
	if scrapeErr != nil {
		// No LLM-suggested XPath passed scoring for this domain. Before
		// reporting an outright failure, try Mozilla Readability's
		// heuristic extraction as a last resort: it learns nothing for
		// next time (there's no XPath to persist), but it still gets
		// this one request an answer.
		if content, ok := e.readabilityFallback(ctx, pageID, req.URL, req.OutputType); ok {
			return models.Succeed(models.MethodReadabilityFallback, "", content, start)
		}
		e.recordFailure(domain)
		return models.Failure(scrapeErr, start)
	}

	content, scrapeErr := e.evaluateAndFormat(ctx, pageID, result.XPath, req.URL, req.OutputType)
	if scrapeErr != nil {
		e.recordFailure(domain)
		return models.Failure(scrapeErr, start)
	}

	e.saveDiscoveredSelector(domain, result.XPath, siteCfg)
	return models.Succeed(models.MethodDiscovered, result.XPath, content, start)
}

// readabilityFallback runs Mozilla Readability against the page's full
// HTML. It reports ok=false (rather than an error) whenever the
// fallback itself isn't usable, since a failed fallback should surface
// the original discovery error to the caller, not a fallback-specific one.
func (e *Engine) readabilityFallback(ctx context.Context, pageID, pageURL string, outputType models.OutputType) (string, bool) {
	if outputType == models.OutputFullHTML {
		html, err := e.br.GetHTML(ctx, pageID)
		if err != nil {
			return "", false
		}
		return html, true
	}

	rawHTML, err := e.br.GetHTML(ctx, pageID)
	if err != nil {
		return "", false
	}

	article, ok := readability.Extract(rawHTML, pageURL)
	if !ok {
		return "", false
	}

	content, scrapeErr := e.formatContent(article.Content, pageURL, outputType)
	if scrapeErr != nil {
		return "", false
	}
	return content, true
}

func (e *Engine) evaluateAndFormat(ctx context.Context, pageID, xpath, pageURL string, outputType models.OutputType) (string, *models.ScrapeError) {
	if outputType == models.OutputFullHTML {
		html, err := e.br.GetHTML(ctx, pageID)
		if err != nil {
			return "", models.NewScrapeError(models.KindNetwork, "failed to read full page html", err)
		}
		return html, nil
	}

	matches, err := e.br.EvaluateXPath(ctx, pageID, xpath)
	if err != nil {
		return "", models.NewScrapeError(models.KindExtraction, "xpath evaluation failed", err)
	}
	matchedHTML := strings.Join(matches, "\n")
	return e.formatContent(matchedHTML, pageURL, outputType)
}

// formatContent turns a matched HTML fragment (from an XPath match or
// from the readability fallback) into the requested OutputType, gating
// on minimum content length first so a too-short match never reaches
// the markdown converter.
func (e *Engine) formatContent(rawHTML, pageURL string, outputType models.OutputType) (string, *models.ScrapeError) {
	plainText := strings.TrimSpace(extractPlainText(rawHTML))
	if len(plainText) < e.cfg.Store.MinContentChars {
		return "", models.NewScrapeError(models.KindExtraction, "extracted content is below the minimum length threshold", nil)
	}

	if outputType == models.OutputMetadataOnly {
		return plainText, nil
	}

	markdown, err := renderMarkdown(rawHTML, pageURL)
	if err != nil {
		slog.Warn("engine: markdown conversion failed, falling back to plain text", "error", err)
		return plainText, nil
	}
	return strings.TrimSpace(markdown), nil
}

// extractPlainText strips markup so the minimum-content-length gate measures
// reader-visible text, not HTML byte count.
func extractPlainText(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}
	return doc.Text()
}

// renderMarkdown resolves relative <a>/<img> targets against pageURL so the
// output stays self-contained once detached from the page it came from.
func renderMarkdown(rawHTML, pageURL string) (string, error) {
	domain := ""
	if u, err := url.Parse(pageURL); err == nil {
		domain = u.Scheme + "://" + u.Host
	}
	return markdownConverter.ConvertString(rawHTML, converter.WithDomain(domain))
}

func (e *Engine) saveDiscoveredSelector(domain, xpath string, existing *models.SiteConfig) {
	cfg := &models.SiteConfig{DomainPattern: domain, XPathMainContent: xpath, DiscoveredByLLM: true}
	if existing != nil {
		cfg.SiteSpecificHeaders = existing.SiteSpecificHeaders
		cfg.SiteCleanupClasses = existing.SiteCleanupClasses
		cfg.UserAgentOverride = existing.UserAgentOverride
		cfg.Notes = existing.Notes
	}
	if err := e.store.Put(cfg); err != nil {
		slog.Warn("engine: failed to persist discovered selector", "domain", domain, "error", err)
		return
	}
	if err := e.store.MarkSuccess(domain); err != nil {
		slog.Warn("engine: failed to mark success for discovered selector", "domain", domain, "error", err)
	}
}

func (e *Engine) recordFailure(domain string) {
	if err := e.store.IncrementFailure(domain); err != nil {
		slog.Warn("engine: failed to record failure", "domain", domain, "error", err)
	}
}

func (e *Engine) markSuccess(domain string) {
	if err := e.store.MarkSuccess(domain); err != nil {
		slog.Warn("engine: failed to mark success", "domain", domain, "error", err)
	}
}

func (e *Engine) publish(eventType eventbus.EventType, slot *models.WorkerSlot, errMsg string) {
	if e.bus == nil {
		return
	}
	domain, _ := models.NormalizedDomain(slot.URL)
	e.bus.Publish(eventbus.Event{
		Type:      eventType,
		ScrapeID:  slot.ScrapeID,
		Domain:    domain,
		Timestamp: time.Now(),
		Err:       errMsg,
	})
}
