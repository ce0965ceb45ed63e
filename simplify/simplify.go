// Package simplify prepares compact LLM input from raw page HTML: a DOM
// Simplifier that strips boilerplate and collapses repetition, and a
// Snippet Extractor that pulls representative text exemplars.
//
// The Simplifier walks the parsed *html.Node tree directly, since
// goquery's Selection API doesn't expose ordinal sibling collapsing
// cheaply, and reuses a substring-match idiom for unwanted-class
// detection.
package simplify

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/use-agent/smartscraper/config"
)

var unwantedTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "svg": true, "iframe": true,
}

// structuralChrome catches boilerplate by ARIA role and landmark tag
// rather than by class name substring, since many sites skip classes
// entirely on nav/footer chrome. Compiled once at package init; an
// invalid selector here is a programmer error, not a runtime condition.
var structuralChrome = cascadia.MustCompile(
	`nav, footer, [role="navigation"], [role="banner"], [role="contentinfo"], [role="complementary"]`,
)

var keptAttrNames = map[string]bool{
	"id": true, "class": true, "role": true, "aria-label": true,
}

// Simplifier strips boilerplate from raw HTML and renders a compact,
// tag-hierarchy-preserving string sized for an LLM prompt.
type Simplifier struct {
	cfg             config.SimplifyConfig
	unwantedClasses []string
}

// New builds a Simplifier. siteCleanupClasses come from the domain's
// SiteConfig and are unioned with the default unwanted-class set.
func New(cfg config.SimplifyConfig, siteCleanupClasses []string) *Simplifier {
	classes := append([]string{}, cfg.UnwantedClassFragments...)
	classes = append(classes, siteCleanupClasses...)
	return &Simplifier{cfg: cfg, unwantedClasses: classes}
}

// Simplify truncates rawHTML to the configured input bound, parses it, and
// renders the simplified form capped at MaxOutputChars.
func (s *Simplifier) Simplify(rawHTML string) string {
	if s.cfg.MaxInputBytes > 0 && len(rawHTML) > s.cfg.MaxInputBytes {
		rawHTML = rawHTML[:s.cfg.MaxInputBytes]
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	var buf strings.Builder
	s.renderChildren(doc, &buf, 0)

	out := buf.String()
	if s.cfg.MaxOutputChars > 0 && len(out) > s.cfg.MaxOutputChars {
		out = out[:s.cfg.MaxOutputChars]
	}
	return out
}

func (s *Simplifier) render(n *html.Node, buf *strings.Builder, depth int) {
	if s.cfg.MaxOutputChars > 0 && buf.Len() >= s.cfg.MaxOutputChars {
		return
	}

	switch n.Type {
	case html.DocumentNode:
		s.renderChildren(n, buf, depth)

	case html.ElementNode:
		if s.shouldSkip(n) {
			return
		}
		if s.cfg.MaxDepth > 0 && depth > s.cfg.MaxDepth {
			buf.WriteString("...")
			return
		}
		buf.WriteByte('<')
		buf.WriteString(n.Data)
		s.writeKeptAttrs(n, buf)
		buf.WriteByte('>')
		s.renderChildren(n, buf, depth+1)
		buf.WriteString("</")
		buf.WriteString(n.Data)
		buf.WriteByte('>')

	case html.TextNode:
		text := strings.TrimSpace(n.Data)
		if text == "" {
			return
		}
		if s.cfg.MaxTextNodeChars > 0 && len(text) > s.cfg.MaxTextNodeChars {
			text = text[:s.cfg.MaxTextNodeChars] + "…"
		}
		buf.WriteString(text)

	default:
		// Comments, doctypes: dropped.
	}
}

// renderChildren walks parent's children, collapsing runs of more than
// MaxSiblingRepeats consecutive elements sharing the same tag name into
// the first MaxSiblingRepeats plus a count marker.
func (s *Simplifier) renderChildren(parent *html.Node, buf *strings.Builder, depth int) {
	child := parent.FirstChild
	for child != nil {
		if s.cfg.MaxOutputChars > 0 && buf.Len() >= s.cfg.MaxOutputChars {
			return
		}

		if child.Type == html.ElementNode && !s.shouldSkip(child) && s.cfg.MaxSiblingRepeats > 0 {
			tag := child.Data
			runLen := 1
			next := child.NextSibling
			for next != nil && next.Type == html.ElementNode && next.Data == tag && !s.shouldSkip(next) {
				runLen++
				next = next.NextSibling
			}
			if runLen > s.cfg.MaxSiblingRepeats {
				cur := child
				for i := 0; i < s.cfg.MaxSiblingRepeats; i++ {
					s.render(cur, buf, depth)
					cur = cur.NextSibling
				}
				fmt.Fprintf(buf, "<!-- ×%d more <%s> -->", runLen-s.cfg.MaxSiblingRepeats, tag)
				child = next
				continue
			}
		}

		s.render(child, buf, depth)
		child = child.NextSibling
	}
}

func (s *Simplifier) shouldSkip(n *html.Node) bool {
	if unwantedTags[n.Data] {
		return true
	}
	if structuralChrome.Match(n) {
		return true
	}
	var class string
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden":
			return true
		case "aria-hidden":
			if a.Val == "true" {
				return true
			}
		case "class":
			class = strings.ToLower(a.Val)
		}
	}
	for _, frag := range s.unwantedClasses {
		if frag != "" && strings.Contains(class, strings.ToLower(frag)) {
			return true
		}
	}
	return false
}

func (s *Simplifier) writeKeptAttrs(n *html.Node, buf *strings.Builder) {
	for _, a := range n.Attr {
		if !keptAttrNames[a.Key] || a.Val == "" {
			continue
		}
		buf.WriteByte(' ')
		buf.WriteString(a.Key)
		buf.WriteString(`="`)
		buf.WriteString(a.Val)
		buf.WriteByte('"')
	}
}
