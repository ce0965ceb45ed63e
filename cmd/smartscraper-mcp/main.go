package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/smartscraper/app"
	"github.com/use-agent/smartscraper/config"
	"github.com/use-agent/smartscraper/models"
)

func main() {
	cfg := config.Load()
	initLogger(cfg.Log)

	a, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise application: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	s := server.NewMCPServer(
		"smartscraper",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	scrapeURLTool := mcp.NewTool("scrape_url",
		mcp.WithDescription("Scrape a web page with a headless browser and return its main content, learning and reusing a per-domain XPath selector across calls."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the web page to scrape"),
		),
		mcp.WithString("output_format",
			mcp.Description("What ScrapeResult.Data contains: 'content-only' (default, the extracted article text), 'full-html' (the raw page HTML), or 'metadata-only'"),
			mcp.Enum("content-only", "full-html", "metadata-only"),
		),
		mcp.WithString("xpath_override",
			mcp.Description("Bypass the known-sites lookup and discovery loop; evaluate this XPath selector directly"),
		),
		mcp.WithBoolean("disable_discovery",
			mcp.Description("Fail instead of running the LLM-driven discovery loop when no selector is known for this domain yet"),
		),
	)
	s.AddTool(scrapeURLTool, handleScrapeURL(a))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// handleScrapeURL drives the Concurrency Gate directly — there is no HTTP
// hop to a separate API process, unlike a typical MCP-to-REST shim: this
// binary embeds the engine.
func handleScrapeURL(a *app.App) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rawURL, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		req := &models.ScrapeRequest{
			URL:              rawURL,
			OutputType:       models.OutputType(request.GetString("output_format", "")),
			XPathOverride:    request.GetString("xpath_override", ""),
			DisableDiscovery: request.GetBool("disable_discovery", false),
		}

		result := a.Gate.Submit(ctx, req)

		if !result.Success {
			msg := "scrape failed"
			if result.Error != nil {
				msg = fmt.Sprintf("[%s] %s", result.Error.Kind, result.Error.Message)
			}
			return mcp.NewToolResultError(msg), nil
		}

		text := fmt.Sprintf("Method: %s\nXPath: %s\nDuration: %dms\n\n%s",
			result.Method, result.XPath, result.DurationMs, result.Data)
		return mcp.NewToolResultText(text), nil
	}
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
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
