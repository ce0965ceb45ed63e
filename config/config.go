package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Gate      GateConfig
	Store     StoreConfig
	Scoring   ScoringConfig
	Simplify  SimplifyConfig
	Discovery DiscoveryConfig
	LLM       LLMConfig
	Captcha   CaptchaConfig
	EventBus  EventBusConfig
	Log       LogConfig
}

// ServerConfig controls the admin/observability HTTP shim. This is not the
// scrape API surface (out of scope for this module) — just health and the
// event stream.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is loaded from the environment but read by no component:
	// the browser adapter keeps no page pool and does not cap open tabs.
	MaxPages int // default: 10

	// DefaultProxy is the default proxy URL for all requests.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string
}

// ScraperConfig controls the per-scrape timeout budget.
type ScraperConfig struct {
	// DefaultScrapeTimeout bounds an entire Validate→...→Discovery run.
	DefaultScrapeTimeout time.Duration // default: 120s

	// NavigationTimeout is the max time for a single page.Navigate.
	NavigationTimeout time.Duration // default: 45s

	// LLMStepTimeout is loaded from the environment but not applied: a
	// suggest_xpaths call is bounded only by the whole scrape's deadline.
	LLMStepTimeout time.Duration // default: 30s

	// CaptchaStepTimeout bounds one solve_if_present attempt.
	CaptchaStepTimeout time.Duration // default: 30s

	// BlockedResourceTypes is loaded from the environment but not read by
	// the browser adapter, which always blocks its own fixed list
	// (Image, Stylesheet, Font, Media) whatever this holds.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string
}

// GateConfig controls the Concurrency Gate.
type GateConfig struct {
	MaxConcurrentWorkers int // default: 1
	MaxQueueSize         int // default: 100
}

// StoreConfig controls the Known-Sites Store.
type StoreConfig struct {
	DataDir              string // default: "./data"
	SiteConfigsFile      string // default: "site_configs.jsonc"
	MinContentChars      int    // default: 200
	RediscoveryThreshold int    // default: 2
}

// ScoringConfig controls the Scoring Engine weights. All
// fields are tunable so an operator can retune without a rebuild.
type ScoringConfig struct {
	MinParagraphThreshold int

	SingleMatchBonus      float64
	ParagraphWeight       float64
	UnwantedTagRatioWeight float64
	SemanticTagBonus      float64
	DescriptiveIDBonus    float64
	TextDensityWeight     float64
	LinkDensityWeight     float64
	MediaPresenceBonus    float64
	XPathComplexityWeight float64
}

// SimplifyConfig controls the DOM Simplifier & Snippet Extractor.
type SimplifyConfig struct {
	MaxInputBytes     int // default: 1 MiB
	MaxOutputChars    int // default: 8000
	MaxTextNodeChars  int // default: 50
	MaxSiblingRepeats int // default: 2
	MaxDepth          int // default: 10
	SnippetMinChars   int // default: 100
	SnippetMaxChars   int // default: 150
	SnippetCount      int // default: 3

	// UnwantedClassFragments are substrings of class attributes whose
	// elements are stripped from the simplified DOM. A site's
	// SiteCleanupClasses are appended to this set on top.
	UnwantedClassFragments []string
}

// DiscoveryConfig controls the Discovery Loop.
type DiscoveryConfig struct {
	MaxLLMRetries int // default: 2 (so 3 total iterations)
}

// LLMConfig controls the LLM adapter.
type LLMConfig struct {
	APIKey      string
	Model       string // default: "gpt-4o-mini"
	BaseURL     string // default: "https://api.openai.com/v1"
	MaxAttempts int    // default: 4 (first try + 3 retries, backoff 1s/2s/4s)

	// RequestsPerSecond throttles outgoing chat completion calls client-side,
	// independent of the 429 backoff, so a burst of discovery loops across
	// many domains doesn't itself trigger rate limiting.
	RequestsPerSecond float64 // default: 2
	Burst             int     // default: 2
}

// CaptchaConfig controls the captcha adapters.
type CaptchaConfig struct {
	GenericAPIKey     string
	GenericSubmitURL  string
	GenericPollURL    string
	DataDomeAPIKey    string
	DataDomeSubmitURL string
	DataDomePollURL   string
	Proxy             string
	PollInterval      time.Duration // default: 3s
}

// EventBusConfig controls the Event Bus.
type EventBusConfig struct {
	SubscriberBufferSize int // default: 32
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("SMARTSCRAPER_HOST", "0.0.0.0"),
			Port: envIntOr("SMARTSCRAPER_PORT", 8080),
			Mode: envOr("SMARTSCRAPER_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("SMARTSCRAPER_HEADLESS", true),
			MaxPages:     envIntOr("SMARTSCRAPER_MAX_PAGES", 10),
			DefaultProxy: os.Getenv("SMARTSCRAPER_PROXY"),
			NoSandbox:    envBoolOr("SMARTSCRAPER_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("SMARTSCRAPER_BROWSER_BIN"),
		},
		Scraper: ScraperConfig{
			DefaultScrapeTimeout: envDurationOr("SMARTSCRAPER_SCRAPE_TIMEOUT", 120*time.Second),
			NavigationTimeout:    envDurationOr("SMARTSCRAPER_NAV_TIMEOUT", 45*time.Second),
			LLMStepTimeout:       envDurationOr("SMARTSCRAPER_LLM_STEP_TIMEOUT", 30*time.Second),
			CaptchaStepTimeout:   envDurationOr("SMARTSCRAPER_CAPTCHA_STEP_TIMEOUT", 30*time.Second),
			BlockedResourceTypes: envSliceOr("SMARTSCRAPER_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
		},
		Gate: GateConfig{
			MaxConcurrentWorkers: envIntOr("SMARTSCRAPER_MAX_WORKERS", 1),
			MaxQueueSize:         envIntOr("SMARTSCRAPER_MAX_QUEUE_SIZE", 100),
		},
		Store: StoreConfig{
			DataDir:              envOr("SMARTSCRAPER_DATA_DIR", "./data"),
			SiteConfigsFile:      envOr("SMARTSCRAPER_SITE_CONFIGS_FILE", "site_configs.jsonc"),
			MinContentChars:      envIntOr("SMARTSCRAPER_MIN_CONTENT_CHARS", 200),
			RediscoveryThreshold: envIntOr("SMARTSCRAPER_REDISCOVERY_THRESHOLD", 2),
		},
		Scoring: ScoringConfig{
			MinParagraphThreshold:  envIntOr("SMARTSCRAPER_MIN_PARAGRAPH_THRESHOLD", 5),
			SingleMatchBonus:       envFloatOr("SMARTSCRAPER_SCORE_SINGLE_MATCH", 80),
			ParagraphWeight:        envFloatOr("SMARTSCRAPER_SCORE_PARAGRAPH_WEIGHT", 1),
			UnwantedTagRatioWeight: envFloatOr("SMARTSCRAPER_SCORE_UNWANTED_RATIO_WEIGHT", -75),
			SemanticTagBonus:       envFloatOr("SMARTSCRAPER_SCORE_SEMANTIC_TAG_BONUS", 75),
			DescriptiveIDBonus:     envFloatOr("SMARTSCRAPER_SCORE_DESCRIPTIVE_ID_BONUS", 30),
			TextDensityWeight:      envFloatOr("SMARTSCRAPER_SCORE_TEXT_DENSITY_WEIGHT", 50),
			LinkDensityWeight:      envFloatOr("SMARTSCRAPER_SCORE_LINK_DENSITY_WEIGHT", -30),
			MediaPresenceBonus:     envFloatOr("SMARTSCRAPER_SCORE_MEDIA_PRESENCE_BONUS", 25),
			XPathComplexityWeight:  envFloatOr("SMARTSCRAPER_SCORE_XPATH_COMPLEXITY_WEIGHT", -5),
		},
		Simplify: SimplifyConfig{
			MaxInputBytes:     envIntOr("SMARTSCRAPER_SIMPLIFY_MAX_INPUT_BYTES", 1<<20),
			MaxOutputChars:    envIntOr("SMARTSCRAPER_SIMPLIFY_MAX_OUTPUT_CHARS", 8000),
			MaxTextNodeChars:  envIntOr("SMARTSCRAPER_SIMPLIFY_MAX_TEXT_NODE_CHARS", 50),
			MaxSiblingRepeats: envIntOr("SMARTSCRAPER_SIMPLIFY_MAX_SIBLING_REPEATS", 2),
			MaxDepth:          envIntOr("SMARTSCRAPER_SIMPLIFY_MAX_DEPTH", 10),
			SnippetMinChars:   envIntOr("SMARTSCRAPER_SNIPPET_MIN_CHARS", 100),
			SnippetMaxChars:   envIntOr("SMARTSCRAPER_SNIPPET_MAX_CHARS", 150),
			SnippetCount:      envIntOr("SMARTSCRAPER_SNIPPET_COUNT", 3),
			UnwantedClassFragments: envSliceOr("SMARTSCRAPER_UNWANTED_CLASSES", []string{
				"ad", "advertisement", "social-share", "related-posts", "sidebar", "menu", "nav", "comment",
			}),
		},
		Discovery: DiscoveryConfig{
			MaxLLMRetries: envIntOr("SMARTSCRAPER_MAX_LLM_RETRIES", 2),
		},
		LLM: LLMConfig{
			APIKey:            os.Getenv("SMARTSCRAPER_LLM_API_KEY"),
			Model:             envOr("SMARTSCRAPER_LLM_MODEL", "gpt-4o-mini"),
			BaseURL:           envOr("SMARTSCRAPER_LLM_BASE_URL", "https://api.openai.com/v1"),
			MaxAttempts:       envIntOr("SMARTSCRAPER_LLM_MAX_ATTEMPTS", 4),
			RequestsPerSecond: envFloatOr("SMARTSCRAPER_LLM_RATE_LIMIT", 2),
			Burst:             envIntOr("SMARTSCRAPER_LLM_RATE_BURST", 2),
		},
		Captcha: CaptchaConfig{
			GenericAPIKey:     os.Getenv("SMARTSCRAPER_CAPTCHA_API_KEY"),
			GenericSubmitURL:  envOr("SMARTSCRAPER_CAPTCHA_SUBMIT_URL", "https://api.captcha-solver.example/submit"),
			GenericPollURL:    envOr("SMARTSCRAPER_CAPTCHA_POLL_URL", "https://api.captcha-solver.example/result"),
			DataDomeAPIKey:    os.Getenv("SMARTSCRAPER_DATADOME_API_KEY"),
			DataDomeSubmitURL: envOr("SMARTSCRAPER_DATADOME_SUBMIT_URL", "https://api.captcha-solver.example/datadome/submit"),
			DataDomePollURL:   envOr("SMARTSCRAPER_DATADOME_POLL_URL", "https://api.captcha-solver.example/datadome/result"),
			Proxy:             os.Getenv("SMARTSCRAPER_CAPTCHA_PROXY"),
			PollInterval:      envDurationOr("SMARTSCRAPER_CAPTCHA_POLL_INTERVAL", 3*time.Second),
		},
		EventBus: EventBusConfig{
			SubscriberBufferSize: envIntOr("SMARTSCRAPER_EVENTBUS_BUFFER", 32),
		},
		Log: LogConfig{
			Level:  envOr("SMARTSCRAPER_LOG_LEVEL", "info"),
			Format: envOr("SMARTSCRAPER_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
