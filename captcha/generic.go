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

// GenericSolver submits a site key + page URL to a third-party solver and
// polls for a ready cookie.
type GenericSolver struct {
	httpClient *http.Client
	cfg        config.CaptchaConfig
}

var _ Solver = (*GenericSolver)(nil)

func NewGenericSolver(cfg config.CaptchaConfig) *GenericSolver {
	return &GenericSolver{httpClient: newChromeFingerprintedClient(cfg.Proxy), cfg: cfg}
}

type genericSubmitRequest struct {
	SiteKey string `json:"site_key"`
	PageURL string `json:"page_url"`
}

type genericSubmitResponse struct {
	TaskID string `json:"task_id"`
}

type genericPollResponse struct {
	Status        string `json:"status"` // "pending", "ready", or an error code
	Cookie        string `json:"cookie"`
	ErrorCode     string `json:"error_code"`
	TransientHint bool   `json:"transient"`
}

func (s *GenericSolver) SolveIfPresent(ctx context.Context, req SolveRequest) (models.CaptchaSolution, error) {
	if req.Observation.Kind != models.CaptchaGeneric {
		return models.CaptchaSolution{Solved: false, Reason: "no generic captcha observed"}, nil
	}

	taskID, err := s.submit(ctx, req)
	if err != nil {
		return models.CaptchaSolution{}, err
	}
	return s.poll(ctx, taskID)
}

func (s *GenericSolver) submit(ctx context.Context, req SolveRequest) (string, error) {
	payload, err := json.Marshal(genericSubmitRequest{SiteKey: req.Observation.SiteKey, PageURL: req.PageURL})
	if err != nil {
		return "", fmt.Errorf("captcha: marshaling submit request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.GenericSubmitURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("captcha: building submit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.cfg.GenericAPIKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", models.NewScrapeError(models.KindCaptcha, "captcha submit request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", models.NewScrapeError(models.KindCaptcha, "reading captcha submit response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", models.NewScrapeError(models.KindCaptcha, fmt.Sprintf("captcha submit returned %d", resp.StatusCode), nil)
	}

	var parsed genericSubmitResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", models.NewScrapeError(models.KindCaptcha, "parsing captcha submit response", err)
	}
	return parsed.TaskID, nil
}

// poll terminates immediately on any fatal error indicator the solver
// returns, an error_code field or a non-transient status, not only on
// an explicit terminal status.
func (s *GenericSolver) poll(ctx context.Context, taskID string) (models.CaptchaSolution, error) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return models.CaptchaSolution{Solved: false, Reason: "timed out waiting for captcha solver"}, nil
		case <-ticker.C:
			result, err := s.pollOnce(ctx, taskID)
			if err != nil {
				if ctx.Err() != nil {
					return models.CaptchaSolution{Solved: false, Reason: "timed out waiting for captcha solver"}, nil
				}
				return models.CaptchaSolution{}, err
			}
			switch {
			case result.Status == "ready":
				return models.CaptchaSolution{Solved: true, UpdatedCookie: result.Cookie}, nil
			case result.ErrorCode != "" && !result.TransientHint:
				return models.CaptchaSolution{Solved: false, Reason: "solver reported fatal error: " + result.ErrorCode}, nil
			case result.Status != "pending" && result.Status != "" && !result.TransientHint:
				return models.CaptchaSolution{Solved: false, Reason: "solver reported fatal error: " + result.Status}, nil
			}
			// status == "pending" (or a transient error): keep polling.
		}
	}
}

func (s *GenericSolver) pollOnce(ctx context.Context, taskID string) (*genericPollResponse, error) {
	url := s.cfg.GenericPollURL + "?task_id=" + taskID
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("captcha: building poll request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.cfg.GenericAPIKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, models.NewScrapeError(models.KindCaptcha, "captcha poll request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewScrapeError(models.KindCaptcha, "reading captcha poll response", err)
	}

	var parsed genericPollResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, models.NewScrapeError(models.KindCaptcha, "parsing captcha poll response", err)
	}
	return &parsed, nil
}
