package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/relic-gitindex/internal/config"
	"github.com/sha1n/relic-gitindex/internal/gitindex"
)

// ServerConfig contains configuration for creating an MCP server
type ServerConfig struct {
	Name    string
	Version string
	Service *gitindex.Service
	Search  config.SearchSettings
}

// CreateServer creates and configures the MCP server
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	// Tools need a service to search and read from
	if cfg.Service != nil {
		gitindex.RegisterSearchTools(s, cfg.Service, cfg.Search)
		gitindex.RegisterReadTool(s, cfg.Service)
	}

	return s
}
