package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sha1n/relic-gitindex/internal/domain"
	"github.com/sha1n/relic-gitindex/internal/gitindex"
)

func TestExecute_Version(t *testing.T) {
	err := Execute("1.0.0", "abc123", "relic-gitindex", []string{"--version"})
	if err != nil {
		t.Errorf("Expected no error for --version, got: %v", err)
	}
}

func TestExecute_Help(t *testing.T) {
	err := Execute("1.0.0", "abc123", "relic-gitindex", []string{"--help"})
	if err != nil {
		t.Errorf("Expected no error for --help, got: %v", err)
	}
}

func TestExecute_InvalidFlag(t *testing.T) {
	err := Execute("1.0.0", "abc123", "relic-gitindex", []string{"--invalid-flag"})
	if err == nil {
		t.Error("Expected error for invalid flag")
	}
}

func TestExecute_InvalidTransport(t *testing.T) {
	err := Execute("1.0.0", "abc123", "relic-gitindex", []string{"--transport", "invalid"})
	if err == nil {
		t.Fatal("Expected error for invalid transport")
	}
	if !strings.Contains(err.Error(), "transport") {
		t.Errorf("Expected error about transport, got: %v", err)
	}
}

func TestRunMain_Success(t *testing.T) {
	exitCode := -1
	mockExit := func(code int) {
		exitCode = code
	}

	// --help should succeed
	runMain([]string{"relic-gitindex", "--help"}, mockExit)

	if exitCode != -1 {
		t.Errorf("Expected no exit call for --help, got exit code: %d", exitCode)
	}
}

func TestRunMain_Failure(t *testing.T) {
	exitCode := -1
	mockExit := func(code int) {
		exitCode = code
	}

	runMain([]string{"relic-gitindex", "--invalid"}, mockExit)

	if exitCode != 1 {
		t.Errorf("Expected exit code 1 for invalid flag, got: %d", exitCode)
	}
}

// run executes the CLI against baseDir and returns its stdout
func run(t *testing.T, baseDir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand("test", "relic-gitindex")
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append(args, "--index-base-dir", baseDir))
	err := cmd.Execute()
	return out.String(), err
}

func TestSyncAndSearchCommands(t *testing.T) {
	repo := gitindex.NewTestRepo(t)
	repo.WriteFile("docs/guide.md", []byte("the frobnicator turns widgets\n"))
	first := repo.Commit("write the frobnicator guide")
	repo.WriteFile("docs/faq.md", []byte("ask about the frobnicator\n"))
	second := repo.Commit("add faq")

	baseDir := filepath.Join(t.TempDir(), "index")
	spec := "widgets=" + repo.Path

	out, err := run(t, baseDir, "sync", "-r", spec)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if !strings.Contains(out, "widgets: full sync to "+second[:12]) || !strings.Contains(out, "blobs +2") {
		t.Errorf("Unexpected sync output: %q", out)
	}

	out, err = run(t, baseDir, "sync", "-r", spec)
	if err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if !strings.Contains(out, "widgets: up to date") {
		t.Errorf("Unexpected sync output: %q", out)
	}

	out, err = run(t, baseDir, "search", "frobnicator", "--type", "blobs", "--highlight", "blob.content", "-r", spec)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	var results domain.SearchResults
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("Search output is not JSON: %v\n%s", err, out)
	}
	if results.Blobs.Total != 2 {
		t.Errorf("Expected 2 blob hits, got %d", results.Blobs.Total)
	}
	for _, hit := range results.Blobs.Hits {
		if len(hit.Fragments[domain.BlobFieldContent]) == 0 {
			t.Errorf("Expected highlighted content for %s", hit.Path)
		}
	}

	out, err = run(t, baseDir, "search", "frobnicator", "--type", "commits", "-r", spec)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !strings.Contains(out, first) {
		t.Errorf("Expected commit %s in %s", first, out)
	}
}

func TestSyncCommand_Range(t *testing.T) {
	repo := gitindex.NewTestRepo(t)
	repo.WriteFile("a.txt", []byte("alpha\n"))
	first := repo.Commit("first")
	repo.WriteFile("b.txt", []byte("beta\n"))
	second := repo.Commit("second")

	baseDir := filepath.Join(t.TempDir(), "index")
	spec := "widgets=" + repo.Path

	out, err := run(t, baseDir, "sync", "-r", spec, "--repo", "widgets", "--from", first, "--to", second, "--blobs-only")
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if !strings.Contains(out, "blobs +1 -0") || !strings.Contains(out, "commits +0") {
		t.Errorf("Unexpected sync output: %q", out)
	}
}

func TestSyncCommand_InvalidArgs(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "index")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "range without repo", args: []string{"sync", "--from", "HEAD~1"}, want: "--repo"},
		{name: "exclusive kinds", args: []string{"sync", "--blobs-only", "--commits-only"}, want: "mutually exclusive"},
		{name: "unknown repo", args: []string{"sync", "--repo", "nope"}, want: "unknown repository"},
		{name: "unknown type", args: []string{"search", "x", "--type", "tags"}, want: "unknown search mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, baseDir, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
