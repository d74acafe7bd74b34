package gitindex

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ReadArgument defines read_blob parameters.
type ReadArgument struct {
	Repository string `json:"repository" jsonschema_description:"Repository id"`
	Path       string `json:"path" jsonschema_description:"File path relative to repository root"`
	Revision   string `json:"revision,omitempty" jsonschema_description:"Commit, branch or tag to read from. Defaults to HEAD"`
}

// ReadHandler handles the read_blob MCP tool.
type ReadHandler struct {
	service *Service
}

// NewReadHandler creates a new read handler.
func NewReadHandler(service *Service) *ReadHandler {
	return &ReadHandler{
		service: service,
	}
}

// Handle reads a file from the object database and returns formatted content.
func (h *ReadHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ReadArgument) (*mcp.CallToolResult, any, error) {
	repo := strings.TrimSpace(args.Repository)
	if repo == "" {
		return errorResult("Repository cannot be empty"), nil, nil
	}
	if strings.TrimSpace(args.Path) == "" {
		return errorResult("Path cannot be empty"), nil, nil
	}

	p, err := cleanRepoPath(args.Path)
	if err != nil {
		return errorResult(fmt.Sprintf("Invalid path: %s", err)), nil, nil
	}

	blob, err := h.service.ReadBlob(repo, strings.TrimSpace(args.Revision), p)
	switch {
	case err == nil:
	case errors.Is(err, ErrUnknownRepository):
		return errorResult(fmt.Sprintf("Repository not found: %s", repo)), nil, nil
	case errors.Is(err, ErrPathNotFound):
		return errorResult(fmt.Sprintf("File not found: %s", args.Path)), nil, nil
	case errors.Is(err, ErrInvalidRevision):
		return errorResult(fmt.Sprintf("Invalid revision: %s", err)), nil, nil
	default:
		return errorResult(fmt.Sprintf("Error reading file: %s", err)), nil, nil
	}

	if blob.Binary {
		return errorResult("Cannot display binary file content"), nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**File**: `%s`\n", blob.Path)
	fmt.Fprintf(&sb, "**Repository**: %s\n", repo)
	fmt.Fprintf(&sb, "**Revision**: %s\n", blob.Revision)
	fmt.Fprintf(&sb, "**Size**: %d bytes\n\n", blob.Size)
	fmt.Fprintf(&sb, "```%s\n%s\n```", languageHint(blob.Path), blob.Text)

	return textResult(sb.String()), nil, nil
}

// cleanRepoPath normalizes a slash separated path relative to the
// repository root and rejects paths that leave it.
func cleanRepoPath(p string) (string, error) {
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("absolute paths are not allowed")
	}
	cleaned := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("path traversal is not allowed")
	}
	if cleaned == "." {
		return "", fmt.Errorf("path must name a file")
	}
	return cleaned, nil
}

var languageHints = map[string]string{
	"go":    "go",
	"py":    "python",
	"js":    "javascript",
	"ts":    "typescript",
	"java":  "java",
	"kt":    "kotlin",
	"rs":    "rust",
	"c":     "c",
	"h":     "c",
	"cc":    "cpp",
	"cpp":   "cpp",
	"cs":    "csharp",
	"rb":    "ruby",
	"sh":    "bash",
	"sql":   "sql",
	"json":  "json",
	"yaml":  "yaml",
	"yml":   "yaml",
	"toml":  "toml",
	"xml":   "xml",
	"md":    "markdown",
	"proto": "protobuf",
}

// languageHint returns the code fence language for a file path.
func languageHint(p string) string {
	base := path.Base(p)
	if strings.EqualFold(base, "Dockerfile") || strings.EqualFold(base, "Makefile") {
		return strings.ToLower(base)
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(base), "."))
	if lang, ok := languageHints[ext]; ok {
		return lang
	}
	return ext
}

// RegisterReadTool registers the read_blob tool with an MCP server.
func RegisterReadTool(server *mcp.Server, service *Service) {
	handler := NewReadHandler(service)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "read_blob",
		Description: "Read a file from an indexed git repository at a given revision",
	}, handler.Handle)
}
