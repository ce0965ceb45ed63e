package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/smartscraper/app"
	"github.com/use-agent/smartscraper/config"
	"github.com/use-agent/smartscraper/eventbus"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("smartscraper starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"maxWorkers", cfg.Gate.MaxConcurrentWorkers,
		"maxQueueSize", cfg.Gate.MaxQueueSize,
	)

	// ── 3. Wire the engine, browser, store, gate, and event bus ─────
	a, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialise application", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// ── 4. Admin/observability HTTP surface ─────────────────────────
	// Intentionally does not expose a /scrape route — driving the
	// engine is out of scope for this HTTP surface; see
	// cmd/smartscraper-mcp for the in-process MCP tool entrypoint.
	startTime := time.Now()
	router := newAdminRouter(a, startTime)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		slog.Info("admin HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("admin HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 5. Graceful shutdown ─────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("admin HTTP server forced shutdown", "error", err)
	}

	slog.Info("smartscraper stopped")
}

// newAdminRouter builds the health-check and event-stream surface. No
// scrape route is exposed; callers drive the engine through the gate
// directly (library use) or through cmd/smartscraper-mcp.
func newAdminRouter(a *app.App, startTime time.Time) *gin.Engine {
	gin.SetMode(a.Config.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/healthz", healthHandler(a, startTime))
	r.GET("/events", eventsHandler(a))

	return r
}

type healthResponse struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	QueueDepth  int    `json:"queue_depth"`
	ActiveSlots int    `json:"active_slots"`
}

func healthHandler(a *app.App, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, healthResponse{
			Status:      "healthy",
			Uptime:      time.Since(startTime).Round(time.Second).String(),
			QueueDepth:  a.Gate.QueueDepth(),
			ActiveSlots: len(a.Gate.ActiveSlots()),
		})
	}
}

// eventsHandler streams scrape lifecycle events as server-sent events for
// operators watching the worker pool from a dashboard.
func eventsHandler(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		ch, unsubscribe := a.Bus.Subscribe()
		defer unsubscribe()

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")

		c.Stream(func(w interface {
			Write([]byte) (int, error)
		}) bool {
			select {
			case event, ok := <-ch:
				if !ok {
					return false
				}
				c.SSEvent(string(event.Type), formatEvent(event))
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	}
}

func formatEvent(e eventbus.Event) map[string]any {
	out := map[string]any{
		"scrape_id": e.ScrapeID,
		"domain":    e.Domain,
		"timestamp": e.Timestamp.Format(time.RFC3339),
	}
	if e.Err != "" {
		out["error"] = e.Err
	}
	return out
}

func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
