package captcha

import (
	"context"

	"github.com/use-agent/smartscraper/models"
)

// Fake is a scripted Solver test double mirroring browser.Fake and llm.Fake.
type Fake struct {
	Solution models.CaptchaSolution
	Err      error
	Requests []SolveRequest
}

var _ Solver = (*Fake)(nil)

func NewFake(solution models.CaptchaSolution) *Fake {
	return &Fake{Solution: solution}
}

func (f *Fake) SolveIfPresent(ctx context.Context, req SolveRequest) (models.CaptchaSolution, error) {
	f.Requests = append(f.Requests, req)
	if f.Err != nil {
		return models.CaptchaSolution{}, f.Err
	}
	return f.Solution, nil
}
