package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/use-agent/smartscraper/config"
	"github.com/use-agent/smartscraper/models"
)

// DataDomeSolver resolves a DataDome-style slider interstitial by handing
// the challenge iframe off to a third-party task solver and polling for a
// cookie.
type DataDomeSolver struct {
	httpClient *http.Client
	cfg        config.CaptchaConfig
}

var _ Solver = (*DataDomeSolver)(nil)

func NewDataDomeSolver(cfg config.CaptchaConfig) *DataDomeSolver {
	return &DataDomeSolver{httpClient: newChromeFingerprintedClient(cfg.Proxy), cfg: cfg}
}

type dataDomeTaskRequest struct {
	WebsiteURL       string `json:"website_url"`
	CaptchaIframeURL string `json:"captcha_iframe_url"`
	UserAgent        string `json:"user_agent"`
	Proxy            string `json:"proxy,omitempty"`
}

type dataDomeTaskResponse struct {
	TaskID string `json:"task_id"`
}

type dataDomeResultResponse struct {
	Status    string `json:"status"` // "pending", "ready", or an error code
	Cookie    string `json:"cookie"`
	ErrorCode string `json:"error_code"`
}

func (s *DataDomeSolver) SolveIfPresent(ctx context.Context, req SolveRequest) (models.CaptchaSolution, error) {
	if req.Observation.Kind != models.CaptchaDataDome {
		return models.CaptchaSolution{Solved: false, Reason: "no datadome captcha observed"}, nil
	}

	taskID, err := s.submitTask(ctx, req)
	if err != nil {
		return models.CaptchaSolution{}, err
	}
	return s.pollTask(ctx, taskID)
}

func (s *DataDomeSolver) submitTask(ctx context.Context, req SolveRequest) (string, error) {
	payload, err := json.Marshal(dataDomeTaskRequest{
		WebsiteURL:       req.PageURL,
		CaptchaIframeURL: req.Observation.IframeURL,
		UserAgent:        req.UserAgent,
		Proxy:            req.Proxy,
	})
	if err != nil {
		return "", fmt.Errorf("captcha: marshaling datadome task: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.DataDomeSubmitURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("captcha: building datadome submit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.cfg.DataDomeAPIKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", models.NewScrapeError(models.KindCaptcha, "datadome submit request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", models.NewScrapeError(models.KindCaptcha, "reading datadome submit response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", models.NewScrapeError(models.KindCaptcha, fmt.Sprintf("datadome submit returned %d", resp.StatusCode), nil)
	}

	var parsed dataDomeTaskResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", models.NewScrapeError(models.KindCaptcha, "parsing datadome submit response", err)
	}
	return parsed.TaskID, nil
}

func (s *DataDomeSolver) pollTask(ctx context.Context, taskID string) (models.CaptchaSolution, error) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return models.CaptchaSolution{Solved: false, Reason: "timed out waiting for datadome solver"}, nil
		case <-ticker.C:
			result, err := s.pollOnce(ctx, taskID)
			if err != nil {
				if ctx.Err() != nil {
					return models.CaptchaSolution{Solved: false, Reason: "timed out waiting for datadome solver"}, nil
				}
				return models.CaptchaSolution{}, err
			}
			switch {
			case result.Status == "ready":
				return models.CaptchaSolution{Solved: true, UpdatedCookie: result.Cookie}, nil
			case result.ErrorCode != "":
				return models.CaptchaSolution{Solved: false, Reason: "solver reported fatal error: " + result.ErrorCode}, nil
			case result.Status != "pending" && result.Status != "":
				return models.CaptchaSolution{Solved: false, Reason: "solver reported fatal error: " + result.Status}, nil
			}
		}
	}
}

func (s *DataDomeSolver) pollOnce(ctx context.Context, taskID string) (*dataDomeResultResponse, error) {
	url := s.cfg.DataDomePollURL + "?task_id=" + taskID
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("captcha: building datadome poll request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.cfg.DataDomeAPIKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, models.NewScrapeError(models.KindCaptcha, "datadome poll request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewScrapeError(models.KindCaptcha, "reading datadome poll response", err)
	}

	var parsed dataDomeResultResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, models.NewScrapeError(models.KindCaptcha, "parsing datadome poll response", err)
	}
	return &parsed, nil
}
