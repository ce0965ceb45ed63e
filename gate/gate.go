// Package gate implements the Concurrency Gate: a bounded admission queue
// in front of a fixed pool of worker slots. Handles are tracked the same
// way a worker pool tracks in-flight jobs, and context cancellation
// propagates the same way a dispatcher would bail out of a race: run N
// scrapes concurrently, queue or reject the rest.
package gate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/smartscraper/config"
	"github.com/use-agent/smartscraper/models"
)

// Handler executes one admitted scrape. It must honor ctx's deadline.
type Handler func(ctx context.Context, req *models.ScrapeRequest, slot *models.WorkerSlot) *models.ScrapeResult

// Gate bounds concurrency to cfg.MaxConcurrentWorkers and rejects
// enqueues past cfg.MaxQueueSize with a KindOverloaded error rather than
// growing the queue unboundedly.
type Gate struct {
	gateCfg    config.GateConfig
	scraperCfg config.ScraperConfig
	handler    Handler

	slots   chan int // token bucket of free worker slot numbers
	pending chan struct{}

	mu     sync.Mutex
	queued int
	active map[string]*models.WorkerSlot
}

// New creates a Gate. handler is invoked for every admitted scrape; the
// gate itself knows nothing about the Scrape State Machine, only about
// admission and slot bookkeeping.
func New(gateCfg config.GateConfig, scraperCfg config.ScraperConfig, handler Handler) *Gate {
	if gateCfg.MaxConcurrentWorkers < 1 {
		gateCfg.MaxConcurrentWorkers = 1
	}
	if gateCfg.MaxQueueSize < 0 {
		gateCfg.MaxQueueSize = 0
	}

	g := &Gate{
		gateCfg:    gateCfg,
		scraperCfg: scraperCfg,
		handler:    handler,
		slots:      make(chan int, gateCfg.MaxConcurrentWorkers),
		pending:    make(chan struct{}, gateCfg.MaxQueueSize),
		active:     make(map[string]*models.WorkerSlot),
	}
	for i := 0; i < gateCfg.MaxConcurrentWorkers; i++ {
		g.slots <- i
	}
	return g
}

// Submit admits req if the queue has room, assigns it a fresh scrape_id,
// waits for a free worker slot, and runs it to completion. Queue capacity
// and worker capacity are tracked independently: a request holds its
// queue slot only until it starts running, so up to MaxConcurrentWorkers
// can run AND MaxQueueSize more can wait behind them at the same time —
// only a request arriving once both are full is rejected.
func (g *Gate) Submit(ctx context.Context, req *models.ScrapeRequest) *models.ScrapeResult {
	start := time.Now()

	select {
	case g.pending <- struct{}{}:
	default:
		return models.Failure(models.NewScrapeError(models.KindOverloaded, "queue is full", nil), start)
	}

	g.mu.Lock()
	g.queued++
	g.mu.Unlock()
	leaveQueue := func() {
		g.mu.Lock()
		g.queued--
		g.mu.Unlock()
		<-g.pending
	}

	var workerID int
	select {
	case workerID = <-g.slots:
		leaveQueue()
	case <-ctx.Done():
		leaveQueue()
		return models.Failure(models.NewScrapeError(models.KindConfiguration, "canceled while waiting for a worker slot", ctx.Err()), start)
	}
	defer func() { g.slots <- workerID }()

	scrapeID := uuid.NewString()
	slot := &models.WorkerSlot{
		WorkerID:  workerID,
		ScrapeID:  scrapeID,
		URL:       req.URL,
		StartedAt: time.Now(),
		Status:    models.WorkerActive,
	}

	g.mu.Lock()
	g.active[scrapeID] = slot
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.active, scrapeID)
		g.mu.Unlock()
	}()

	slog.Debug("gate: dispatching scrape", "scrape_id", scrapeID, "worker_id", workerID, "url", req.URL)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = g.scraperCfg.DefaultScrapeTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return g.handler(runCtx, req, slot)
}

// ActiveSlots returns a snapshot of currently running worker slots.
func (g *Gate) ActiveSlots() []models.WorkerSlot {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]models.WorkerSlot, 0, len(g.active))
	for _, s := range g.active {
		out = append(out, *s)
	}
	return out
}

// QueueDepth returns how many jobs are currently admitted but waiting on
// a worker slot (not counting ones already running).
func (g *Gate) QueueDepth() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.queued
}
