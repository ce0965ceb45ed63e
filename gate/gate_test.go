package gate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/use-agent/smartscraper/config"
	"github.com/use-agent/smartscraper/models"
)

func blockingHandler(release <-chan struct{}) Handler {
	return func(ctx context.Context, req *models.ScrapeRequest, slot *models.WorkerSlot) *models.ScrapeResult {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return &models.ScrapeResult{Success: true, Data: slot.ScrapeID}
	}
}

func TestGate_RejectsBeyondMaxQueueSize(t *testing.T) {
	release := make(chan struct{})
	g := New(config.GateConfig{MaxConcurrentWorkers: 1, MaxQueueSize: 1}, config.ScraperConfig{DefaultScrapeTimeout: time.Second}, blockingHandler(release))

	var wg sync.WaitGroup
	results := make([]*models.ScrapeResult, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0] = g.Submit(context.Background(), &models.ScrapeRequest{URL: "https://example.com/a"})
	}()
	go func() {
		defer wg.Done()
		results[1] = g.Submit(context.Background(), &models.ScrapeRequest{URL: "https://example.com/b"})
	}()

	time.Sleep(50 * time.Millisecond)

	result := g.Submit(context.Background(), &models.ScrapeRequest{URL: "https://example.com/c"})
	if result.Success || result.Error == nil || result.Error.Kind != models.KindOverloaded {
		t.Fatalf("expected overloaded rejection, got %+v", result)
	}

	close(release)
	wg.Wait()

	if results[0] == nil || !results[0].Success || results[1] == nil || !results[1].Success {
		t.Fatalf("expected both the running submission and the queued one to succeed, got %+v and %+v", results[0], results[1])
	}
}

// TestGate_QueueCapacityIsIndependentOfWorkerSlots verifies that running
// and queued requests are admitted against separate budgets: with one
// worker and a queue of two, one request running plus two queued behind
// it must all be admitted, and only a fourth arrival is rejected.
func TestGate_QueueCapacityIsIndependentOfWorkerSlots(t *testing.T) {
	release := make(chan struct{})
	g := New(config.GateConfig{MaxConcurrentWorkers: 1, MaxQueueSize: 2}, config.ScraperConfig{DefaultScrapeTimeout: time.Second}, blockingHandler(release))

	var wg sync.WaitGroup
	results := make([]*models.ScrapeResult, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = g.Submit(context.Background(), &models.ScrapeRequest{URL: "https://example.com/running-or-queued"})
		}(i)
	}

	time.Sleep(50 * time.Millisecond)

	rejected := g.Submit(context.Background(), &models.ScrapeRequest{URL: "https://example.com/rejected"})
	if rejected.Success || rejected.Error == nil || rejected.Error.Kind != models.KindOverloaded {
		t.Fatalf("expected the fourth arrival to be rejected as overloaded, got %+v", rejected)
	}

	close(release)
	wg.Wait()

	for i, r := range results {
		if r == nil || !r.Success {
			t.Fatalf("expected submission %d (running or queued) to succeed, got %+v", i, r)
		}
	}
}

// TestGate_CancelWhileQueuedReturnsConfigurationError verifies that a
// caller-initiated cancellation while waiting for a worker slot is
// reported as a configuration error, distinct from the server-side
// "queue is full" overload case.
func TestGate_CancelWhileQueuedReturnsConfigurationError(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	g := New(config.GateConfig{MaxConcurrentWorkers: 1, MaxQueueSize: 1}, config.ScraperConfig{DefaultScrapeTimeout: time.Second}, blockingHandler(release))

	go g.Submit(context.Background(), &models.ScrapeRequest{URL: "https://example.com/a"})
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *models.ScrapeResult, 1)
	go func() {
		done <- g.Submit(ctx, &models.ScrapeRequest{URL: "https://example.com/b"})
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	result := <-done
	if result.Success || result.Error == nil || result.Error.Kind != models.KindConfiguration {
		t.Fatalf("expected configuration error for caller cancellation, got %+v", result)
	}
}

func TestGate_AssignsUniqueScrapeIDsPerSubmission(t *testing.T) {
	release := make(chan struct{})
	close(release)
	g := New(config.GateConfig{MaxConcurrentWorkers: 2, MaxQueueSize: 10}, config.ScraperConfig{DefaultScrapeTimeout: time.Second}, blockingHandler(release))

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		result := g.Submit(context.Background(), &models.ScrapeRequest{URL: "https://example.com/same"})
		if seen[result.Data] {
			t.Fatalf("scrape_id %q reused across submissions", result.Data)
		}
		seen[result.Data] = true
	}
}

func TestGate_LimitsConcurrentActiveSlotsToMaxWorkers(t *testing.T) {
	var mu sync.Mutex
	var maxObserved int
	release := make(chan struct{})

	g := New(config.GateConfig{MaxConcurrentWorkers: 2, MaxQueueSize: 10}, config.ScraperConfig{DefaultScrapeTimeout: time.Second},
		func(ctx context.Context, req *models.ScrapeRequest, slot *models.WorkerSlot) *models.ScrapeResult {
			mu.Lock()
			if n := len(g.ActiveSlots()); n > maxObserved {
				maxObserved = n
			}
			mu.Unlock()
			<-release
			return &models.ScrapeResult{Success: true}
		})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Submit(context.Background(), &models.ScrapeRequest{URL: "https://example.com/x"})
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if maxObserved > 2 {
		t.Errorf("observed %d concurrently active slots, want at most 2", maxObserved)
	}
}
