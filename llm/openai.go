package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/use-agent/smartscraper/config"
	"github.com/use-agent/smartscraper/models"
)

// OpenAIClient is a lightweight OpenAI-compatible chat completion client,
// built directly on net/http: no SDK needed for a single-endpoint
// JSON-in/JSON-out call.
type OpenAIClient struct {
	httpClient *http.Client
	cfg        config.LLMConfig
	limiter    *rate.Limiter
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient builds a client from config. Pass nil for httpClient to
// use a fresh http.Client with default settings. The client self-throttles to cfg.RequestsPerSecond
// so concurrent discovery loops across many domains don't collectively
// trigger the provider's own rate limiting.
func NewOpenAIClient(httpClient *http.Client, cfg config.LLMConfig) *OpenAIClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 2
	}
	return &OpenAIClient{
		httpClient: httpClient,
		cfg:        cfg,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// SuggestXPaths calls the chat completion endpoint with temperature 0 and
// retries rate-limit responses with exponential backoff (1s, 2s, 4s; with
// the default of 4 attempts that is at most 3 retries), honoring a
// server-advised Retry-After when present.
func (c *OpenAIClient) SuggestXPaths(ctx context.Context, req SuggestRequest) ([]string, error) {
	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt()},
			{Role: "user", Content: buildUserMessage(req)},
		},
		Temperature: 0,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("llm: marshaling request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"

	maxAttempts := c.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 4
	}
	backoff := time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		content, retryAfter, rateLimited, err := c.doOnce(ctx, endpoint, payload)
		if err == nil {
			return ParseXPathCandidates(content)
		}
		lastErr = err

		if !rateLimited || attempt == maxAttempts {
			return nil, err
		}

		wait := backoff
		if retryAfter > 0 {
			wait = retryAfter
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (c *OpenAIClient) doOnce(ctx context.Context, endpoint string, payload []byte) (content string, retryAfter time.Duration, rateLimited bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", 0, false, fmt.Errorf("llm: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", 0, false, models.NewScrapeError(models.KindLLM, "llm request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, false, models.NewScrapeError(models.KindLLM, "reading llm response", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", parseRetryAfter(resp.Header.Get("Retry-After")), true, classifyError(resp.StatusCode, respBody)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, false, classifyError(resp.StatusCode, respBody)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", 0, false, models.NewScrapeError(models.KindLLM, "parsing llm response envelope", err)
	}
	if len(parsed.Choices) == 0 {
		return "", 0, false, models.NewScrapeError(models.KindLLM, "llm returned no choices", nil)
	}
	return parsed.Choices[0].Message.Content, 0, false, nil
}

func classifyError(statusCode int, body []byte) *models.ScrapeError {
	var errResp chatErrorResponse
	msg := "llm api error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	}
	return models.NewScrapeError(models.KindLLM, fmt.Sprintf("llm api returned %d", statusCode), fmt.Errorf("%s", msg))
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := time.ParseDuration(header + "s"); err == nil {
		return secs
	}
	return 0
}

func systemPrompt() string {
	return "You identify the single XPath expression that selects a web page's main content article. " +
		"Return a JSON array of candidate XPath strings, ranked best first. Return ONLY the JSON array, " +
		"no markdown fences or explanation."
}

func buildUserMessage(req SuggestRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n\n", req.URL)
	b.WriteString("Simplified DOM:\n")
	b.WriteString(req.SimplifiedDOM)
	b.WriteString("\n\nText snippets found on the page:\n")
	for _, s := range req.Snippets {
		b.WriteString("- ")
		b.WriteString(s)
		b.WriteByte('\n')
	}
	if len(req.FeedbackLedger) > 0 {
		b.WriteString("\nPreviously tried candidates and why they failed (do not repeat these):\n")
		for _, f := range req.FeedbackLedger {
			fmt.Fprintf(&b, "- %s: %s\n", f.XPath, f.Reason)
		}
	}
	return b.String()
}
