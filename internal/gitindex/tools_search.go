package gitindex

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/relic-gitindex/internal/config"
	"github.com/sha1n/relic-gitindex/internal/domain"
)

// SearchCodeArgument defines search_code parameters.
type SearchCodeArgument struct {
	Query      string `json:"query" jsonschema_description:"Text to find in file content; every term must match"`
	Repository string `json:"repository,omitempty" jsonschema_description:"Restrict to one repository id"`
	Page       int    `json:"page,omitempty" jsonschema_description:"1-based page number"`
	PerPage    int    `json:"per_page,omitempty" jsonschema_description:"Results per page"`
}

// SearchCommitsArgument defines search_commits parameters.
type SearchCommitsArgument struct {
	Query      string `json:"query,omitempty" jsonschema_description:"Text to find in commit messages, shas, authors and committers. Empty lists commits"`
	Repository string `json:"repository,omitempty" jsonschema_description:"Restrict to one repository id"`
	Page       int    `json:"page,omitempty" jsonschema_description:"1-based page number"`
	PerPage    int    `json:"per_page,omitempty" jsonschema_description:"Results per page"`
}

// SearchHandler handles the search_code and search_commits MCP tools.
type SearchHandler struct {
	service  *Service
	settings config.SearchSettings
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(service *Service, settings config.SearchSettings) *SearchHandler {
	return &SearchHandler{
		service:  service,
		settings: settings,
	}
}

// HandleCode executes a blob search and returns formatted results.
func (h *SearchHandler) HandleCode(ctx context.Context, req *mcp.CallToolRequest, args SearchCodeArgument) (*mcp.CallToolResult, any, error) {
	if res := h.checkReady(); res != nil {
		return res, nil, nil
	}

	if strings.TrimSpace(args.Query) == "" {
		return errorResult("Query cannot be empty"), nil, nil
	}

	results, err := h.service.Search(ctx, args.Query, h.params(SearchBlobs, args.Repository, args.Page, args.PerPage), h.settings.MaxPerPage)
	if err != nil {
		return errorResult(fmt.Sprintf("Search failed: %s", err)), nil, nil
	}

	return formatBlobResults(results.Blobs, args.Query), nil, nil
}

// HandleCommits executes a commit search and returns formatted results.
func (h *SearchHandler) HandleCommits(ctx context.Context, req *mcp.CallToolRequest, args SearchCommitsArgument) (*mcp.CallToolResult, any, error) {
	if res := h.checkReady(); res != nil {
		return res, nil, nil
	}

	results, err := h.service.Search(ctx, args.Query, h.params(SearchCommits, args.Repository, args.Page, args.PerPage), h.settings.MaxPerPage)
	if err != nil {
		return errorResult(fmt.Sprintf("Search failed: %s", err)), nil, nil
	}

	return formatCommitResults(results.Commits, args.Query), nil, nil
}

func (h *SearchHandler) checkReady() *mcp.CallToolResult {
	if !h.service.IsReady() {
		return errorResult("Search is not available. The git repositories are still being indexed. Please try again later.")
	}
	return nil
}

func (h *SearchHandler) params(mode SearchMode, repo string, page, per int) SearchParams {
	if per <= 0 {
		per = h.settings.PerPage
	}
	return SearchParams{
		Mode: mode,
		SearchOptions: SearchOptions{
			Page:         page,
			Per:          per,
			RepositoryID: strings.TrimSpace(repo),
			Highlight:    []string{domain.BlobFieldContent, domain.CommitFieldMessage},
		},
	}
}

func formatBlobResults(results domain.BlobResults, queryStr string) *mcp.CallToolResult {
	if results.Total == 0 {
		return textResult(fmt.Sprintf("No results found for query: %s", queryStr))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results for '%s':\n\n", results.Total, queryStr)

	for i, hit := range results.Hits {
		fmt.Fprintf(&sb, "### %d. %s:%s\n", i+1, hit.Blob.RID, hit.Path)
		fmt.Fprintf(&sb, "**Score**: %.4f | **Revision**: %s\n\n", hit.Score, shortSHA(hit.Blob.CommitSHA))

		if fragments := hit.Fragments[domain.BlobFieldContent]; len(fragments) > 0 {
			sb.WriteString("```\n")
			for _, fragment := range fragments {
				sb.WriteString(fragment)
				sb.WriteString("\n")
			}
			sb.WriteString("```\n")
		}
		sb.WriteString("\n")
	}

	writeRemainder(&sb, results.Total, len(results.Hits))
	return textResult(sb.String())
}

func formatCommitResults(results domain.CommitResults, queryStr string) *mcp.CallToolResult {
	if results.Total == 0 {
		if strings.TrimSpace(queryStr) == "" {
			return textResult("No commits indexed")
		}
		return textResult(fmt.Sprintf("No commits found for query: %s", queryStr))
	}

	var sb strings.Builder
	if strings.TrimSpace(queryStr) == "" {
		fmt.Fprintf(&sb, "Found %d commits:\n\n", results.Total)
	} else {
		fmt.Fprintf(&sb, "Found %d commits for '%s':\n\n", results.Total, queryStr)
	}

	for i, hit := range results.Hits {
		c := hit.Commit
		fmt.Fprintf(&sb, "### %d. %s %s\n", i+1, c.RID, c.SHA)
		fmt.Fprintf(&sb, "**Author**: %s <%s> %s\n", c.Author.Name, c.Author.Email, c.Author.Time.Format("2006-01-02 15:04:05 -0700"))
		if c.Committer.Email != c.Author.Email || c.Committer.Name != c.Author.Name {
			fmt.Fprintf(&sb, "**Committer**: %s <%s>\n", c.Committer.Name, c.Committer.Email)
		}
		fmt.Fprintf(&sb, "\n%s\n\n", strings.TrimRight(c.Message, "\n"))
	}

	writeRemainder(&sb, results.Total, len(results.Hits))
	return textResult(sb.String())
}

func writeRemainder(sb *strings.Builder, total uint64, shown int) {
	if total > uint64(shown) {
		fmt.Fprintf(sb, "... and %d more results\n", total-uint64(shown))
	}
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	res := textResult(text)
	res.IsError = true
	return res
}

// RegisterSearchTools registers the search_code and search_commits tools with
// an MCP server.
func RegisterSearchTools(server *mcp.Server, service *Service, settings config.SearchSettings) {
	handler := NewSearchHandler(service, settings)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_code",
		Description: "Search file content across indexed git repositories using full-text search",
	}, handler.HandleCode)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_commits",
		Description: "Search commit history across indexed git repositories by message, sha, author or committer",
	}, handler.HandleCommits)
}
