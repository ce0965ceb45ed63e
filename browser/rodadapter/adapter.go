// Package rodadapter is the production implementation of browser.Browser,
// built on go-rod: launcher flags, stealth injection before navigation, a
// hijack router for blocked resource types, and a numbered-steps
// acquire/navigate/extract/release lifecycle per page. Load, evaluate, and
// reload are separate contract methods so the Scrape State Machine can
// drive DetectCaptcha and the Discovery Loop's per-candidate validation
// against an already-loaded page.
package rodadapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/smartscraper/browser"
	"github.com/use-agent/smartscraper/config"
	"github.com/use-agent/smartscraper/models"
)

var resourceTypeByName = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
}

// detailTags are the tags ElementDetails.PerTagCounts must report.
var detailTags = []string{
	"p", "a", "img", "video", "audio", "picture",
	"nav", "aside", "footer", "header", "ul", "ol",
	"h1", "h2", "h3", "h4", "h5", "h6",
}

type pageHandle struct {
	page   *rod.Page
	router *rod.HijackRouter
}

// Adapter is the go-rod backed Browser.
type Adapter struct {
	browser *rod.Browser
	cfg     config.BrowserConfig

	mu    sync.Mutex
	pages map[string]*pageHandle
	next  int64
}

var _ browser.Browser = (*Adapter)(nil)

// New launches a headless Chromium with stealth launcher flags and
// returns a ready Adapter.
func New(cfg config.BrowserConfig) (*Adapter, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.DefaultProxy != "" {
		l = l.Proxy(cfg.DefaultProxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("rodadapter: launching browser: %w", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("rodadapter: connecting to browser: %w", err)
	}

	return &Adapter{
		browser: b,
		cfg:     cfg,
		pages:   make(map[string]*pageHandle),
	}, nil
}

// Close kills the browser process. Call on shutdown.
func (a *Adapter) Close() {
	a.mu.Lock()
	for id, h := range a.pages {
		if h.router != nil {
			_ = h.router.Stop()
		}
		_ = h.page.Close()
		delete(a.pages, id)
	}
	a.mu.Unlock()
	a.browser.MustClose()
}

func (a *Adapter) LoadPage(ctx context.Context, url string, opts browser.LoadOptions) (string, error) {
	page, err := a.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("rodadapter: acquiring page: %w", err)
	}

	// Stealth injection MUST happen before Navigate.
	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		slog.Warn("rodadapter: stealth injection failed, continuing without it", "error", err)
	}

	if opts.UserAgent != "" {
		_ = proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}.Call(page)
	}
	if len(opts.Headers) > 0 {
		headers := make(proto.NetworkHeaders, len(opts.Headers))
		for k, v := range opts.Headers {
			headers[k] = gson.New(v)
		}
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: headers}.Call(page)
	}

	router := setupHijack(page, a.cfg)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultNavigationTimeout
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	p := page.Context(navCtx)

	if err := p.Navigate(url); err != nil {
		if router != nil {
			_ = router.Stop()
		}
		_ = page.Close()
		return "", fmt.Errorf("rodadapter: navigating to %s: %w", url, err)
	}
	if err := p.WaitDOMStable(domStableDiff, domStableRatio); err != nil {
		slog.Debug("rodadapter: WaitDOMStable did not converge", "url", url, "error", err)
	}

	a.mu.Lock()
	id := fmt.Sprintf("page-%d", a.next)
	a.next++
	a.pages[id] = &pageHandle{page: page, router: router}
	a.mu.Unlock()

	return id, nil
}

func (a *Adapter) ClosePage(ctx context.Context, pageID string) error {
	h, err := a.handle(pageID)
	if err != nil {
		return err
	}
	if h.router != nil {
		_ = h.router.Stop()
	}
	// Navigate away first so any in-flight JS/media on the page stops
	// before the tab is returned/closed.
	_ = h.page.Navigate("about:blank")

	a.mu.Lock()
	delete(a.pages, pageID)
	a.mu.Unlock()

	return h.page.Close()
}

func (a *Adapter) GetHTML(ctx context.Context, pageID string) (string, error) {
	h, err := a.handle(pageID)
	if err != nil {
		return "", err
	}
	html, err := h.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("rodadapter: reading HTML: %w", err)
	}
	return html, nil
}

func (a *Adapter) EvaluateXPath(ctx context.Context, pageID string, xpath string) ([]string, error) {
	h, err := a.handle(pageID)
	if err != nil {
		return nil, err
	}
	elements, err := h.page.Context(ctx).ElementsX(xpath)
	if err != nil {
		return nil, fmt.Errorf("rodadapter: evaluating xpath %q: %w", xpath, err)
	}
	if len(elements) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(elements))
	for _, el := range elements {
		outerHTML, err := el.HTML()
		if err != nil {
			continue
		}
		out = append(out, outerHTML)
	}
	return out, nil
}

func (a *Adapter) GetElementDetails(ctx context.Context, pageID string, xpath string) (*models.ElementDetails, error) {
	h, err := a.handle(pageID)
	if err != nil {
		return nil, err
	}
	elements, err := h.page.Context(ctx).ElementsX(xpath)
	if err != nil {
		return nil, fmt.Errorf("rodadapter: evaluating xpath %q: %w", xpath, err)
	}
	if len(elements) == 0 {
		return nil, nil
	}
	first := elements[0]

	details, err := elementDetailsJS(ctx, first)
	if err != nil {
		return nil, err
	}
	details.MatchesInDocument = len(elements)
	return details, nil
}

// elementDetailsJS evaluates a single JS snippet on the element to compute
// everything ElementDetails needs in one round trip: tag, id, class, text
// and HTML length, descendant count, and per-tag descendant counts for
// detailTags.
func elementDetailsJS(ctx context.Context, el *rod.Element) (*models.ElementDetails, error) {
	script := `(tags) => {
		const counts = {};
		for (const t of tags) counts[t] = this.getElementsByTagName(t).length;
		return {
			tagName: this.tagName ? this.tagName.toLowerCase() : "",
			id: this.id || "",
			class: this.className || "",
			textLength: (this.textContent || "").length,
			htmlLength: (this.outerHTML || "").length,
			descendantCount: this.getElementsByTagName("*").length,
			perTagCounts: counts,
		};
	}`
	res, err := el.Context(ctx).Eval(script, detailTags)
	if err != nil {
		return nil, fmt.Errorf("rodadapter: computing element details: %w", err)
	}

	var raw struct {
		TagName         string         `json:"tagName"`
		ID              string         `json:"id"`
		Class           string         `json:"class"`
		TextLength      int            `json:"textLength"`
		HTMLLength      int            `json:"htmlLength"`
		DescendantCount int            `json:"descendantCount"`
		PerTagCounts    map[string]int `json:"perTagCounts"`
	}
	if err := res.Value.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("rodadapter: decoding element details: %w", err)
	}

	return &models.ElementDetails{
		TagName:         raw.TagName,
		ID:              raw.ID,
		Class:           raw.Class,
		TextLength:      raw.TextLength,
		HTMLLength:      raw.HTMLLength,
		DescendantCount: raw.DescendantCount,
		PerTagCounts:    raw.PerTagCounts,
	}, nil
}

func (a *Adapter) DetectCaptcha(ctx context.Context, pageID string) (models.CaptchaObservation, error) {
	h, err := a.handle(pageID)
	if err != nil {
		return models.CaptchaObservation{}, err
	}
	html, err := h.page.Context(ctx).HTML()
	if err != nil {
		return models.CaptchaObservation{}, fmt.Errorf("rodadapter: reading HTML for captcha detection: %w", err)
	}
	return detectCaptchaInHTML(html), nil
}

// detectCaptchaInHTML is a best-effort signature match over the page's
// markup: DataDome embeds a distinctive captcha-delivery iframe; generic
// interstitials are identified by common vendor markers.
func detectCaptchaInHTML(html string) models.CaptchaObservation {
	lower := strings.ToLower(html)
	switch {
	case strings.Contains(lower, "captcha-delivery.com") || strings.Contains(lower, "datadome"):
		return models.CaptchaObservation{Kind: models.CaptchaDataDome, IframeURL: extractIframeURL(html, "captcha-delivery.com")}
	case strings.Contains(lower, "g-recaptcha") || strings.Contains(lower, "hcaptcha") || strings.Contains(lower, "cf-challenge"):
		return models.CaptchaObservation{Kind: models.CaptchaGeneric}
	default:
		return models.CaptchaObservation{Kind: models.CaptchaNone}
	}
}

func extractIframeURL(html, marker string) string {
	idx := strings.Index(html, marker)
	if idx < 0 {
		return ""
	}
	start := strings.LastIndex(html[:idx], "src=\"")
	if start < 0 {
		return ""
	}
	start += len("src=\"")
	end := strings.Index(html[start:], "\"")
	if end < 0 {
		return ""
	}
	return html[start : start+end]
}

func (a *Adapter) GetCookies(ctx context.Context, pageID string) ([]browser.Cookie, error) {
	h, err := a.handle(pageID)
	if err != nil {
		return nil, err
	}
	cookies, err := h.page.Context(ctx).Cookies(nil)
	if err != nil {
		return nil, fmt.Errorf("rodadapter: reading cookies: %w", err)
	}
	out := make([]browser.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, browser.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path})
	}
	return out, nil
}

func (a *Adapter) SetCookies(ctx context.Context, pageID string, cookies []browser.Cookie) error {
	h, err := a.handle(pageID)
	if err != nil {
		return err
	}
	for _, c := range cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}
		if _, err := (proto.NetworkSetCookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   path,
		}).Call(h.page.Context(ctx)); err != nil {
			return fmt.Errorf("rodadapter: setting cookie %s: %w", c.Name, err)
		}
	}
	return nil
}

// Reload respects opts.Timeout unconditionally: a default must never
// silently override the caller's timeout.
func (a *Adapter) Reload(ctx context.Context, pageID string, opts browser.ReloadOptions) error {
	if opts.Timeout <= 0 {
		return fmt.Errorf("rodadapter: reload requires a positive timeout")
	}
	h, err := a.handle(pageID)
	if err != nil {
		return err
	}
	reloadCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	p := h.page.Context(reloadCtx)
	if err := p.Reload(); err != nil {
		return fmt.Errorf("rodadapter: reloading page: %w", err)
	}
	if err := p.WaitDOMStable(domStableDiff, domStableRatio); err != nil {
		slog.Debug("rodadapter: WaitDOMStable did not converge after reload", "pageID", pageID, "error", err)
	}
	return nil
}

func (a *Adapter) handle(pageID string) (*pageHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, ok := a.pages[pageID]
	if !ok {
		return nil, fmt.Errorf("rodadapter: unknown page %s", pageID)
	}
	return h, nil
}
