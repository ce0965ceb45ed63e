package readability

import "testing"

func TestExtract_InvalidURLFailsClosed(t *testing.T) {
	_, ok := Extract("<html><body><p>hello</p></body></html>", "://not-a-url")
	if ok {
		t.Fatal("expected extraction to report not-ok for an unparseable page url")
	}
}

func TestExtract_TooShortFailsClosed(t *testing.T) {
	_, ok := Extract("<html><body><p>hi</p></body></html>", "https://example.com/tiny")
	if ok {
		t.Fatal("expected extraction to report not-ok for content below MinContentLength")
	}
}

func TestExtract_RealArticleSucceeds(t *testing.T) {
	html := `<html><head><title>A long enough article</title></head><body>
<article>
<h1>A long enough article</h1>
<p>This paragraph exists purely to push the extracted text content past the
minimum length threshold that readability applies before it trusts its own
output over a raw HTML fallback, since short extractions are more often a
sign the algorithm picked the wrong node than a genuinely short article.</p>
<p>A second paragraph reinforces that this is a real article body, not a
navigation fragment or a footer full of boilerplate links.</p>
</article>
</body></html>`

	result, ok := Extract(html, "https://example.com/article")
	if !ok {
		t.Fatal("expected extraction to succeed for a realistic article body")
	}
	if len(result.Text) < MinContentLength {
		t.Errorf("expected extracted text to clear MinContentLength, got %d chars", len(result.Text))
	}
}
