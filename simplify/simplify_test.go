package simplify

import (
	"strings"
	"testing"

	"github.com/use-agent/smartscraper/config"
)

func testCfg() config.SimplifyConfig {
	return config.SimplifyConfig{
		MaxInputBytes:     1 << 20,
		MaxOutputChars:    8000,
		MaxTextNodeChars:  50,
		MaxSiblingRepeats: 2,
		MaxDepth:          10,
		SnippetMinChars:   100,
		SnippetMaxChars:   150,
		SnippetCount:      3,
		UnwantedClassFragments: []string{
			"ad", "advertisement", "social-share", "related-posts", "sidebar", "menu", "nav", "comment",
		},
	}
}

func TestSimplify_StripsScriptAndStyle(t *testing.T) {
	html := `<html><body><script>evil()</script><style>.x{}</style><p>hello world</p></body></html>`
	out := New(testCfg(), nil).Simplify(html)
	if strings.Contains(out, "evil") || strings.Contains(out, ".x{}") {
		t.Errorf("script/style leaked into simplified output: %q", out)
	}
	if !strings.Contains(out, "hello world") {
		t.Errorf("expected paragraph text preserved, got: %q", out)
	}
}

func TestSimplify_DropsUnwantedClassElements(t *testing.T) {
	html := `<html><body><div class="sidebar-widget">skip me</div><p>keep me</p></body></html>`
	out := New(testCfg(), nil).Simplify(html)
	if strings.Contains(out, "skip me") {
		t.Errorf("unwanted-class element leaked: %q", out)
	}
	if !strings.Contains(out, "keep me") {
		t.Errorf("expected content preserved: %q", out)
	}
}

func TestSimplify_SiteCleanupClassesAreUnioned(t *testing.T) {
	html := `<html><body><div class="promo-banner">skip me</div><p>keep me</p></body></html>`
	out := New(testCfg(), []string{"promo-banner"}).Simplify(html)
	if strings.Contains(out, "skip me") {
		t.Errorf("site-specific cleanup class not honored: %q", out)
	}
}

func TestSimplify_TruncatesLongTextNodes(t *testing.T) {
	long := strings.Repeat("a", 200)
	html := "<html><body><p>" + long + "</p></body></html>"
	out := New(testCfg(), nil).Simplify(html)
	if strings.Contains(out, long) {
		t.Error("text node was not truncated")
	}
	if !strings.Contains(out, "…") {
		t.Error("expected ellipsis marker on truncated text")
	}
}

func TestSimplify_CollapsesRepeatedSiblings(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<html><body><ul>")
	for i := 0; i < 20; i++ {
		sb.WriteString("<li>item</li>")
	}
	sb.WriteString("</ul></body></html>")

	out := New(testCfg(), nil).Simplify(sb.String())
	if strings.Count(out, "<li>item</li>") > 2 {
		t.Errorf("expected sibling collapsing to cap at 2 <li> elements, got output: %q", out)
	}
	if !strings.Contains(out, "more") {
		t.Errorf("expected a collapse count marker, got: %q", out)
	}
}

func TestSimplify_CapsTotalOutputLength(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 0; i < 500; i++ {
		sb.WriteString("<p>distinct paragraph number filler text here</p>")
	}
	sb.WriteString("</body></html>")

	cfg := testCfg()
	cfg.MaxSiblingRepeats = 1000 // disable collapsing so the cap is exercised
	out := New(cfg, nil).Simplify(sb.String())
	if len(out) > cfg.MaxOutputChars {
		t.Errorf("output length %d exceeds cap %d", len(out), cfg.MaxOutputChars)
	}
}

func TestExtractSnippets_SkipsShortAndUnwantedAncestors(t *testing.T) {
	long := strings.Repeat("word ", 30) // > 100 chars
	html := `<html><body>
		<div class="sidebar"><p>` + long + `</p></div>
		<p>too short</p>
		<p>` + long + `</p>
	</body></html>`

	snippets := ExtractSnippets(html, testCfg(), []string{"sidebar"})
	if len(snippets) != 1 {
		t.Fatalf("ExtractSnippets returned %d snippets, want 1: %v", len(snippets), snippets)
	}
}

func TestExtractSnippets_DedupesIdenticalText(t *testing.T) {
	long := strings.Repeat("word ", 30)
	html := "<html><body><p>" + long + "</p><p>" + long + "</p></body></html>"
	snippets := ExtractSnippets(html, testCfg(), nil)
	if len(snippets) != 1 {
		t.Fatalf("expected duplicate text to be deduped, got %d snippets", len(snippets))
	}
}

func TestExtractSnippets_EmptyIsAllowed(t *testing.T) {
	html := "<html><body><p>short</p></body></html>"
	snippets := ExtractSnippets(html, testCfg(), nil)
	if snippets == nil {
		return
	}
	if len(snippets) != 0 {
		t.Errorf("expected no snippets, got %v", snippets)
	}
}

func TestExtractSnippets_RespectsCountLimit(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 0; i < 10; i++ {
		sb.WriteString("<p>" + strings.Repeat("x", 120) + string(rune('a'+i)) + "</p>")
	}
	sb.WriteString("</body></html>")

	cfg := testCfg()
	snippets := ExtractSnippets(sb.String(), cfg, nil)
	if len(snippets) > cfg.SnippetCount {
		t.Errorf("got %d snippets, want at most %d", len(snippets), cfg.SnippetCount)
	}
}
