package gitindex

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadManifest_Missing(t *testing.T) {
	m, err := LoadManifest(filepath.Join(t.TempDir(), ManifestFilename))
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}
	if m.Version != ManifestVersion {
		t.Errorf("Version = %d, want %d", m.Version, ManifestVersion)
	}
	if len(m.Repos) != 0 {
		t.Errorf("Expected no repos, got %d", len(m.Repos))
	}
}

func TestManifest_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", ManifestFilename)
	synced := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	m := NewManifest()
	m.SetRepoState("widgets", RepoState{
		Path:        "/src/widgets",
		LastCommit:  "0123456789abcdef0123456789abcdef01234567",
		LastSynced:  synced,
		BlobCount:   12,
		CommitCount: 3,
	})
	m.UpdateLastSync()

	if err := m.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Expected temp file to be renamed away")
	}

	loaded, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}
	state, ok := loaded.RepoState("widgets")
	if !ok {
		t.Fatal("Expected widgets to be present")
	}
	if state.LastCommit != "0123456789abcdef0123456789abcdef01234567" {
		t.Errorf("LastCommit = %q", state.LastCommit)
	}
	if !state.LastSynced.Equal(synced) {
		t.Errorf("LastSynced = %v, want %v", state.LastSynced, synced)
	}
	if state.BlobCount != 12 || state.CommitCount != 3 {
		t.Errorf("Counts = %d/%d, want 12/3", state.BlobCount, state.CommitCount)
	}
	if loaded.LastSync.IsZero() {
		t.Error("Expected LastSync to be persisted")
	}
}

func TestLoadManifest_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManifestFilename)
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadManifest(path); err == nil {
		t.Error("Expected error for corrupt manifest")
	}
}

func TestLoadManifest_FutureVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManifestFilename)
	if err := os.WriteFile(path, []byte(`{"version": 99, "repos": {}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadManifest(path); err == nil {
		t.Error("Expected error for unsupported version")
	}
}

func TestManifest_SetRepoErrorKeepsLastCommit(t *testing.T) {
	m := NewManifest()
	m.SetRepoState("widgets", RepoState{Path: "/src/widgets", LastCommit: "abc"})

	m.SetRepoError("widgets", "/src/widgets", "boom")

	state, _ := m.RepoState("widgets")
	if state.LastCommit != "abc" {
		t.Errorf("LastCommit = %q, want abc", state.LastCommit)
	}
	if state.Error != "boom" {
		t.Errorf("Error = %q, want boom", state.Error)
	}

	errs := m.ReposWithErrors()
	if errs["widgets"] != "boom" || len(errs) != 1 {
		t.Errorf("ReposWithErrors = %v", errs)
	}
}

func TestManifest_RemoveStaleRepos(t *testing.T) {
	m := NewManifest()
	for _, id := range []string{"a", "b", "c"} {
		m.SetRepoState(id, RepoState{})
	}

	removed := m.RemoveStaleRepos([]string{"b"})

	if !reflect.DeepEqual(removed, []string{"a", "c"}) {
		t.Errorf("removed = %v, want [a c]", removed)
	}
	if !reflect.DeepEqual(m.RepoIDs(), []string{"b"}) {
		t.Errorf("RepoIDs = %v, want [b]", m.RepoIDs())
	}
}
