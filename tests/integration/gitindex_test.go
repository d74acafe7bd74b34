package integration

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sha1n/relic-gitindex/internal/app"
	"github.com/sha1n/relic-gitindex/internal/config"
	"github.com/sha1n/relic-gitindex/internal/gitindex"
	"github.com/sha1n/relic-gitindex/tests/integration/testkit"
)

const eventually = 10 * time.Second

func loadSettings(t *testing.T, opts *testkit.FlagOptions) *config.Settings {
	t.Helper()
	settings, err := config.LoadSettingsWithFlags(testkit.NewTestFlags(t, opts))
	if err != nil {
		t.Fatalf("LoadSettingsWithFlags failed: %v", err)
	}
	if err := config.ValidateSettings(settings); err != nil {
		t.Fatalf("ValidateSettings failed: %v", err)
	}
	return settings
}

func connect(t *testing.T, transport mcp.Transport) *mcp.ClientSession {
	t.Helper()
	client := mcp.NewClient(&mcp.Implementation{Name: "integration", Version: "1.0.0"}, nil)
	cs, err := client.Connect(context.Background(), transport, nil)
	if err != nil {
		t.Fatalf("Client connect failed: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

// connectInMemory wires a client to a freshly created application server
func connectInMemory(t *testing.T, settings *config.Settings) *mcp.ClientSession {
	t.Helper()
	server, cleanup, err := app.CreateMCPServer(settings, nil)
	if err != nil {
		t.Fatalf("CreateMCPServer failed: %v", err)
	}
	t.Cleanup(cleanup)

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ss, err := server.Connect(context.Background(), serverTransport, nil)
	if err != nil {
		t.Fatalf("Server connect failed: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	return connect(t, clientTransport)
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool %s failed: %v", name, err)
	}
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String(), res.IsError
}

// awaitTool calls a tool until its text contains want
func awaitTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any, want string) string {
	t.Helper()
	deadline := time.Now().Add(eventually)
	var text string
	for time.Now().Before(deadline) {
		text, _ = callTool(t, cs, name, args)
		if strings.Contains(text, want) {
			return text
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("%s never returned %q, last result:\n%s", name, want, text)
	return ""
}

func TestEndToEnd_SSE(t *testing.T) {
	repo := gitindex.NewTestRepo(t)
	repo.WriteFile("cmd/main.go", []byte("package main\n\nfunc main() { startTurbine() }\n"))
	repo.WriteFile("README.md", []byte("# turbine\n"))
	head := repo.Commit("boot the turbine")

	settings := loadSettings(t, &testkit.FlagOptions{Repositories: []string{"turbine=" + repo.Path}})
	env := testkit.NewTestEnv(testkit.NewServerService(settings))
	props, err := env.Start()
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		if err := env.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	})
	url := props["url"].(string)

	cs := connect(t, &mcp.SSEClientTransport{Endpoint: url + "/sse"})

	text := awaitTool(t, cs, "search_code", map[string]any{"query": "startTurbine"}, "Found 1 results")
	if !strings.Contains(text, "turbine:cmd/main.go") {
		t.Errorf("Expected the matching file in:\n%s", text)
	}

	text, isErr := callTool(t, cs, "search_commits", map[string]any{"query": "turbine"})
	if isErr || !strings.Contains(text, head) {
		t.Errorf("Expected commit %s in:\n%s", head, text)
	}

	text, isErr = callTool(t, cs, "read_blob", map[string]any{"repository": "turbine", "path": "README.md"})
	if isErr || !strings.Contains(text, "# turbine") {
		t.Errorf("Unexpected read_blob result:\n%s", text)
	}

	resp, err := http.Get(url + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `relic_gitindex_documents_upserted_total{kind="blob"} 2`) {
		t.Errorf("Expected blob upsert count in metrics:\n%s", body)
	}
}

func TestEndToEnd_WatchIndexesNewCommits(t *testing.T) {
	repo := gitindex.NewTestRepo(t)
	repo.WriteFile("notes.txt", []byte("first draft\n"))
	repo.Commit("first draft")

	settings := loadSettings(t, &testkit.FlagOptions{
		Transport:    "stdio",
		Repositories: []string{"notes=" + repo.Path},
		Watch:        true,
	})
	cs := connectInMemory(t, settings)

	awaitTool(t, cs, "search_code", map[string]any{"query": "draft"}, "Found 1 results")

	repo.WriteFile("ideas.txt", []byte("a quasar powered kettle\n"))
	repo.RemoveFile("notes.txt")
	repo.Commit("swap notes for ideas")

	awaitTool(t, cs, "search_code", map[string]any{"query": "quasar"}, "notes:ideas.txt")
	awaitTool(t, cs, "search_code", map[string]any{"query": "draft"}, "No results found")
}

func TestEndToEnd_RestartResumesFromManifest(t *testing.T) {
	repo := gitindex.NewTestRepo(t)
	repo.WriteFile("a.txt", []byte("persistent marmot\n"))
	repo.Commit("add marmot")

	baseDir := filepath.Join(t.TempDir(), "index")
	opts := &testkit.FlagOptions{BaseDir: baseDir, Repositories: []string{"zoo=" + repo.Path}}

	svc, err := app.NewService(loadSettings(t, opts), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	if _, err := svc.SyncAll(context.Background()); err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	repo.WriteFile("b.txt", []byte("persistent otter\n"))
	head := repo.Commit("add otter")

	svc, err = app.NewService(loadSettings(t, opts), nil)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer func() { _ = svc.Close() }()

	results, err := svc.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if len(results) != 1 || results[0].Full || results[0].Blobs.Upserted != 1 {
		t.Errorf("Expected a one-blob delta, got %+v", results)
	}
	if state, ok := svc.Manifest().RepoState("zoo"); !ok || state.LastCommit != head {
		t.Errorf("Expected manifest at %s, got %+v", head, state)
	}

	found, err := svc.Search(context.Background(), "persistent", gitindex.SearchParams{Mode: gitindex.SearchBlobs}, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if found.Blobs.Total != 2 {
		t.Errorf("Expected both files indexed, got %d", found.Blobs.Total)
	}
}

func TestEndToEnd_SecondProcessIsLockedOut(t *testing.T) {
	opts := &testkit.FlagOptions{BaseDir: filepath.Join(t.TempDir(), "index")}
	settings := loadSettings(t, opts)
	settings.Index.SyncTimeout = 100 * time.Millisecond

	svc, err := app.NewService(settings, nil)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer func() { _ = svc.Close() }()

	if _, err := app.NewService(settings, nil); err == nil {
		t.Error("Expected the second service to be locked out")
	}
}
