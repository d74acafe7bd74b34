package gitindex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	// ManifestVersion is the current schema version
	ManifestVersion = 1

	// ManifestFilename is the manifest filename under the base dir
	ManifestFilename = "manifest.json"
)

// Manifest records, per repository, the last commit the index was
// synchronized to. It is the only local state kept between runs.
type Manifest struct {
	Version  int                  `json:"version"`
	LastSync time.Time            `json:"last_sync"`
	Repos    map[string]RepoState `json:"repos"`
	mu       sync.RWMutex
}

// RepoState is the sync state of a single repository.
type RepoState struct {
	Path        string    `json:"path"`
	LastCommit  string    `json:"last_commit"`
	LastSynced  time.Time `json:"last_synced"`
	BlobCount   int       `json:"blob_count"`
	CommitCount int       `json:"commit_count"`
	Error       string    `json:"error,omitempty"`
}

// NewManifest creates an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{
		Version: ManifestVersion,
		Repos:   make(map[string]RepoState),
	}
}

// LoadManifest reads a manifest from disk. A missing file yields an empty
// manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewManifest(), nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if manifest.Version > ManifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d", manifest.Version)
	}
	if manifest.Repos == nil {
		manifest.Repos = make(map[string]RepoState)
	}
	manifest.Version = ManifestVersion

	return &manifest, nil
}

// Save writes the manifest to disk through a temp file and rename.
func (m *Manifest) Save(path string) error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename manifest file: %w", err)
	}
	return nil
}

// RepoState returns the state of a repository and whether it is known.
func (m *Manifest) RepoState(repoID string) (RepoState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.Repos[repoID]
	return state, ok
}

// SetRepoState replaces the state of a repository.
func (m *Manifest) SetRepoState(repoID string, state RepoState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Repos[repoID] = state
}

// SetRepoError records a failed sync without touching the last commit, so
// the next pass resumes from the last good state.
func (m *Manifest) SetRepoError(repoID, path, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.Repos[repoID]
	state.Path = path
	state.Error = msg
	m.Repos[repoID] = state
}

// RepoIDs returns the known repository ids, sorted.
func (m *Manifest) RepoIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.Repos))
	for id := range m.Repos {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RemoveStaleRepos drops repositories that are no longer configured and
// returns their ids.
func (m *Manifest) RemoveStaleRepos(configured []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	expected := make(map[string]bool, len(configured))
	for _, id := range configured {
		expected[id] = true
	}

	var removed []string
	for id := range m.Repos {
		if !expected[id] {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		delete(m.Repos, id)
	}
	sort.Strings(removed)
	return removed
}

// UpdateLastSync stamps the manifest with the current time.
func (m *Manifest) UpdateLastSync() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastSync = time.Now()
}

// ReposWithErrors returns the repositories whose last sync failed.
func (m *Manifest) ReposWithErrors() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]string)
	for id, state := range m.Repos {
		if state.Error != "" {
			result[id] = state.Error
		}
	}
	return result
}
