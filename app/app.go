// Package app wires together every component of the engine — browser,
// LLM, captcha solvers, the known-sites store, the event bus, and the
// Concurrency Gate — so both cmd/smartscraper (the admin HTTP shim) and
// cmd/smartscraper-mcp (the MCP tool surface) drive the same in-process
// Scrape State Machine rather than duplicating the wiring. Bring-up
// happens in the same numbered-step order every binary needs it in.
package app

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/use-agent/smartscraper/browser/rodadapter"
	"github.com/use-agent/smartscraper/captcha"
	"github.com/use-agent/smartscraper/config"
	"github.com/use-agent/smartscraper/engine"
	"github.com/use-agent/smartscraper/eventbus"
	"github.com/use-agent/smartscraper/gate"
	"github.com/use-agent/smartscraper/knownsites"
	"github.com/use-agent/smartscraper/llm"
	"github.com/use-agent/smartscraper/models"
)

// App bundles every long-lived component a binary needs.
type App struct {
	Config  *config.Config
	Store   *knownsites.Store
	Browser *rodadapter.Adapter
	Bus     *eventbus.Bus
	Gate    *gate.Gate
	Engine  *engine.Engine
}

// New brings up the known-sites store, browser, LLM client, captcha
// solvers, event bus, engine, and gate in that order. Call Close when
// done to release the browser process.
func New(cfg *config.Config) (*App, error) {
	store, err := knownsites.Open(filepath.Join(cfg.Store.DataDir, cfg.Store.SiteConfigsFile))
	if err != nil {
		return nil, err
	}

	browserAdapter, err := rodadapter.New(cfg.Browser)
	if err != nil {
		return nil, err
	}

	var llmClient llm.Client
	if cfg.LLM.APIKey != "" {
		llmClient = llm.NewOpenAIClient(&http.Client{}, cfg.LLM)
	}

	var genericSolver captcha.Solver
	if cfg.Captcha.GenericAPIKey != "" {
		genericSolver = captcha.NewGenericSolver(cfg.Captcha)
	}
	var dataDomeSolver captcha.Solver
	if cfg.Captcha.DataDomeAPIKey != "" {
		dataDomeSolver = captcha.NewDataDomeSolver(cfg.Captcha)
	}

	bus := eventbus.New(cfg.EventBus.SubscriberBufferSize)

	eng := engine.New(cfg, store, browserAdapter, llmClient, genericSolver, dataDomeSolver, bus)

	g := gate.New(cfg.Gate, cfg.Scraper, func(ctx context.Context, req *models.ScrapeRequest, slot *models.WorkerSlot) *models.ScrapeResult {
		return eng.Scrape(ctx, req, slot)
	})

	return &App{
		Config:  cfg,
		Store:   store,
		Browser: browserAdapter,
		Bus:     bus,
		Gate:    g,
		Engine:  eng,
	}, nil
}

// Close releases the browser process. The known-sites store needs no
// explicit close: every write is already fsynced before Put returns.
func (a *App) Close() {
	a.Browser.Close()
}
