package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/use-agent/smartscraper/models"
)

// FakePage is the scripted state of one loaded page in Fake.
type FakePage struct {
	URL     string
	HTML    string
	Cookies []Cookie
	Captcha models.CaptchaObservation

	// XPathMatches maps an xpath string to the outer HTML of the elements
	// it should "match" in this page. An xpath with no entry matches
	// nothing. Plain text without markup is a valid (degenerate) value.
	XPathMatches map[string][]string

	// ElementDetails maps an xpath string to the details of its first
	// match. An xpath with no entry returns nil (no match).
	ElementDetails map[string]*models.ElementDetails

	// ReloadHTML, if set, replaces HTML after the next Reload call
	// (simulating a captcha cookie having taken effect).
	ReloadHTML string

	// ReloadCaptcha, if non-nil, replaces Captcha after the next Reload
	// call. Leaving it nil means Captcha is unchanged by Reload, so a
	// test can express a captcha that persists across the post-solve
	// reload (a failed solve) as well as one that clears (set it to
	// CaptchaObservation{Kind: models.CaptchaNone}).
	ReloadCaptcha *models.CaptchaObservation
}

// Fake is an in-memory Browser used by tests. It never touches a real
// browser process; callers pre-script each page's responses via NewPage.
type Fake struct {
	mu        sync.Mutex
	pages     map[string]*FakePage
	nextID    int64
	LoadErr   error
	ClosedIDs []string
}

// NewFake returns an empty Fake with no pages registered yet.
func NewFake() *Fake {
	return &Fake{pages: make(map[string]*FakePage)}
}

// NewPage registers page content to be returned the next time LoadPage is
// called with a matching URL. It returns nothing; LoadPage assigns the pageID.
func (f *Fake) NewPage(url string, page *FakePage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page.URL = url
	f.pages[url] = page
}

func (f *Fake) LoadPage(ctx context.Context, url string, opts LoadOptions) (string, error) {
	if f.LoadErr != nil {
		return "", f.LoadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	page, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("fake browser: no scripted page for %s", url)
	}
	id := fmt.Sprintf("page-%d", atomic.AddInt64(&f.nextID, 1))
	f.pages[id] = page
	return id, nil
}

func (f *Fake) ClosePage(ctx context.Context, pageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ClosedIDs = append(f.ClosedIDs, pageID)
	delete(f.pages, pageID)
	return nil
}

func (f *Fake) GetHTML(ctx context.Context, pageID string) (string, error) {
	p, err := f.page(pageID)
	if err != nil {
		return "", err
	}
	return p.HTML, nil
}

func (f *Fake) EvaluateXPath(ctx context.Context, pageID string, xpath string) ([]string, error) {
	p, err := f.page(pageID)
	if err != nil {
		return nil, err
	}
	matches, ok := p.XPathMatches[xpath]
	if !ok {
		return nil, nil
	}
	return matches, nil
}

func (f *Fake) GetElementDetails(ctx context.Context, pageID string, xpath string) (*models.ElementDetails, error) {
	p, err := f.page(pageID)
	if err != nil {
		return nil, err
	}
	return p.ElementDetails[xpath], nil
}

func (f *Fake) DetectCaptcha(ctx context.Context, pageID string) (models.CaptchaObservation, error) {
	p, err := f.page(pageID)
	if err != nil {
		return models.CaptchaObservation{}, err
	}
	return p.Captcha, nil
}

func (f *Fake) GetCookies(ctx context.Context, pageID string) ([]Cookie, error) {
	p, err := f.page(pageID)
	if err != nil {
		return nil, err
	}
	return p.Cookies, nil
}

func (f *Fake) SetCookies(ctx context.Context, pageID string, cookies []Cookie) error {
	p, err := f.page(pageID)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p.Cookies = append(p.Cookies, cookies...)
	return nil
}

func (f *Fake) Reload(ctx context.Context, pageID string, opts ReloadOptions) error {
	p, err := f.page(pageID)
	if err != nil {
		return err
	}
	if opts.Timeout <= 0 {
		return fmt.Errorf("fake browser: reload called without a positive timeout")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ReloadHTML != "" {
		p.HTML = p.ReloadHTML
	}
	if p.ReloadCaptcha != nil {
		p.Captcha = *p.ReloadCaptcha
	}
	return nil
}

func (f *Fake) page(pageID string) (*FakePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[pageID]
	if !ok {
		return nil, fmt.Errorf("fake browser: unknown page %s", pageID)
	}
	return p, nil
}
