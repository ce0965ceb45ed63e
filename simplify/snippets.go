package simplify

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/smartscraper/config"
)

var snippetSelector = "p, h2, h3, li, blockquote"

// ExtractSnippets scans text-bearing elements for representative
// exemplars: the first N unique strings of at least SnippetMinChars
// characters, skipping any element with an ancestor whose class matches
// the unwanted set, truncated to ~SnippetMaxChars at a word boundary. An
// empty result is valid.
func ExtractSnippets(rawHTML string, cfg config.SimplifyConfig, unwantedClasses []string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}

	var out []string
	seen := make(map[string]bool)

	doc.Find(snippetSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if cfg.SnippetCount > 0 && len(out) >= cfg.SnippetCount {
			return false
		}
		if hasUnwantedAncestor(sel, unwantedClasses) {
			return true
		}
		text := strings.TrimSpace(sel.Text())
		if len(text) < cfg.SnippetMinChars {
			return true
		}
		if seen[text] {
			return true
		}
		seen[text] = true
		out = append(out, truncateAtWordBoundary(text, cfg.SnippetMaxChars))
		return true
	})

	return out
}

func hasUnwantedAncestor(sel *goquery.Selection, unwanted []string) bool {
	found := false
	sel.Parents().EachWithBreak(func(_ int, p *goquery.Selection) bool {
		class := strings.ToLower(p.AttrOr("class", ""))
		for _, frag := range unwanted {
			if frag != "" && strings.Contains(class, strings.ToLower(frag)) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

func truncateAtWordBoundary(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	cut := text[:max]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "…"
}
