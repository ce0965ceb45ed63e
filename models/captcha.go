package models

// CaptchaKind identifies which interstitial challenge, if any, the Browser
// adapter observed on a loaded page.
type CaptchaKind string

const (
	CaptchaNone     CaptchaKind = "none"
	CaptchaGeneric  CaptchaKind = "generic"
	CaptchaDataDome CaptchaKind = "datadome"
)

// CaptchaObservation is what the Browser adapter reports after inspecting a
// loaded page for anti-bot interstitials.
type CaptchaObservation struct {
	Kind       CaptchaKind
	SiteKey    string
	IframeURL  string
}

// CaptchaSolution is what a Captcha adapter reports after attempting to
// resolve an observed challenge.
type CaptchaSolution struct {
	Solved        bool
	UpdatedCookie string
	Reason        string
}
