package llm

import "context"

// Fake is a scripted Client for tests. Responses is consumed one at a
// time per call; once exhausted, the last entry repeats.
type Fake struct {
	Responses []FakeResponse
	calls     int
	Requests  []SuggestRequest
}

// FakeResponse is one scripted SuggestXPaths outcome.
type FakeResponse struct {
	Candidates []string
	Err        error
}

var _ Client = (*Fake)(nil)

func (f *Fake) SuggestXPaths(ctx context.Context, req SuggestRequest) ([]string, error) {
	f.Requests = append(f.Requests, req)
	if len(f.Responses) == 0 {
		return nil, nil
	}
	idx := f.calls
	if idx >= len(f.Responses) {
		idx = len(f.Responses) - 1
	}
	f.calls++
	r := f.Responses[idx]
	return r.Candidates, r.Err
}
