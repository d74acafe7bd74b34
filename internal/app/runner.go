package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sha1n/relic-gitindex/internal/config"
	"github.com/sha1n/relic-gitindex/internal/gitindex"
	mcputil "github.com/sha1n/relic-gitindex/internal/mcp"
	"github.com/spf13/pflag"
)

// ServerName is the name the MCP server reports to clients
const ServerName = "relic-gitindex"

// RunParams contains dependencies for the run function
type RunParams struct {
	LoadSettings      func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings     func(*config.Settings) error
	StartSSEServer    func(*mcp.Server, *config.Settings) error
	CreateServer      func(*config.Settings) (*mcp.Server, func(), error)
	CustomIOTransport mcp.Transport // Optional: for testing with custom IO
}

// DefaultRunParams returns production dependencies. The sync metrics and
// the /metrics endpoint share one registry.
func DefaultRunParams() RunParams {
	registry := prometheus.NewRegistry()
	return RunParams{
		LoadSettings:  config.LoadSettingsWithFlags,
		ValidSettings: config.ValidateSettings,
		StartSSEServer: func(s *mcp.Server, settings *config.Settings) error {
			return StartSSEServer(s, settings, registry)
		},
		CreateServer: func(settings *config.Settings) (*mcp.Server, func(), error) {
			return CreateMCPServer(settings, registry)
		},
	}
}

// RunWithDeps executes the server with the provided dependencies
func RunWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) error {
	// Load settings
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	// Validate settings for conflicting configurations
	if err := params.ValidSettings(settings); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Configure logging - always use stderr to avoid buffering issues
	ConfigureLogging()

	slog.Info("Starting RELIC gitindex server", "version", version)
	config.Log(settings)

	mcpServer, cleanup, err := params.CreateServer(settings)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	// Start server
	if settings.Transport == "stdio" {
		// Use custom transport if provided (for testing), otherwise use stdio
		transport := params.CustomIOTransport
		if transport == nil {
			transport = &mcp.StdioTransport{}
		}
		return mcpServer.Run(ctx, transport)
	}

	slog.Info("Starting SSE server", "host", settings.Host, "port", settings.Port)
	return params.StartSSEServer(mcpServer, settings)
}

// ConfigureLogging sends the default logger to stderr, keeping stdout free
// for the stdio transport and command output.
func ConfigureLogging() {
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))
}

// NewService opens the index service with metrics registered on registry.
// A nil registry disables metrics.
func NewService(settings *config.Settings, registry prometheus.Registerer) (*gitindex.Service, error) {
	opts := []gitindex.ServiceOption{gitindex.WithLogger(slog.Default())}
	if registry != nil {
		opts = append(opts, gitindex.WithMetrics(gitindex.NewMetrics(registry)))
	}

	svc, err := gitindex.NewService(&settings.Index, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create index service: %w", err)
	}
	return svc, nil
}

// CreateMCPServer creates the MCP server with registered tools and keeps the
// index in sync in the background until the returned cleanup is called.
func CreateMCPServer(settings *config.Settings, registry prometheus.Registerer) (*mcp.Server, func(), error) {
	svc, err := NewService(settings, registry)
	if err != nil {
		return nil, nil, err
	}

	// Sync in a background context, not tied to any request
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := svc.Run(ctx); err != nil {
			slog.Error("Index sync stopped", "error", err)
		}
	}()

	cleanup := func() {
		cancel()
		<-done
		if err := svc.Close(); err != nil {
			slog.Error("Failed to close index service", "error", err)
		}
	}

	server := mcputil.CreateServer(mcputil.ServerConfig{
		Name:    ServerName,
		Version: "1.0.0",
		Service: svc,
		Search:  settings.Search,
	})

	return server, cleanup, nil
}
