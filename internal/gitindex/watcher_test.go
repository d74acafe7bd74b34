package gitindex

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const watchTimeout = 3 * time.Second

func newGitDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), ".git")
	if err := os.MkdirAll(filepath.Join(dir, "refs", "heads"), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "HEAD"), []byte("ref: refs/heads/main\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return dir
}

func newTestWatcher(t *testing.T, gitDirs map[string]string) *Watcher {
	t.Helper()
	return newDebouncedWatcher(t, gitDirs, 20*time.Millisecond)
}

func newDebouncedWatcher(t *testing.T, gitDirs map[string]string, debounce time.Duration) *Watcher {
	t.Helper()
	w, err := NewWatcher(gitDirs, debounce, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func expectEvent(t *testing.T, w *Watcher, want string) {
	t.Helper()
	select {
	case got := <-w.Events():
		if got != want {
			t.Errorf("event = %q, want %q", got, want)
		}
	case <-time.After(watchTimeout):
		t.Fatalf("Timed out waiting for %q", want)
	}
}

func expectNoEvent(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case got := <-w.Events():
		t.Errorf("Unexpected event %q", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func TestWatcher_HeadChange(t *testing.T) {
	dir := newGitDir(t)
	w := newTestWatcher(t, map[string]string{"widgets": dir})

	writeFile(t, filepath.Join(dir, "HEAD"), "0123456789012345678901234567890123456789\n")
	expectEvent(t, w, "widgets")
}

func TestWatcher_BranchRefChange(t *testing.T) {
	dir := newGitDir(t)
	w := newTestWatcher(t, map[string]string{"widgets": dir})

	writeFile(t, filepath.Join(dir, "refs", "heads", "main"), "0123456789012345678901234567890123456789\n")
	expectEvent(t, w, "widgets")
}

func TestWatcher_NewBranchNamespace(t *testing.T) {
	dir := newGitDir(t)
	w := newTestWatcher(t, map[string]string{"widgets": dir})

	ns := filepath.Join(dir, "refs", "heads", "feature")
	if err := os.Mkdir(ns, 0755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	expectEvent(t, w, "widgets")

	writeFile(t, filepath.Join(ns, "login"), "0123456789012345678901234567890123456789\n")
	expectEvent(t, w, "widgets")
}

func TestWatcher_IgnoresLockAndUnrelatedFiles(t *testing.T) {
	dir := newGitDir(t)
	w := newTestWatcher(t, map[string]string{"widgets": dir})

	writeFile(t, filepath.Join(dir, "HEAD.lock"), "x")
	writeFile(t, filepath.Join(dir, "refs", "heads", "main.lock"), "x")
	writeFile(t, filepath.Join(dir, "config"), "[core]\n")
	expectNoEvent(t, w)
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	dir := newGitDir(t)
	w := newDebouncedWatcher(t, map[string]string{"widgets": dir}, 150*time.Millisecond)

	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(dir, "HEAD"), "ref: refs/heads/main\n")
	}
	expectEvent(t, w, "widgets")
	expectNoEvent(t, w)
}

func TestWatcher_MultipleRepositories(t *testing.T) {
	one, two := newGitDir(t), newGitDir(t)
	w := newTestWatcher(t, map[string]string{"one": one, "two": two})

	writeFile(t, filepath.Join(two, "packed-refs"), "# pack-refs with: peeled\n")
	expectEvent(t, w, "two")
}

func TestWatcher_MissingGitDir(t *testing.T) {
	_, err := NewWatcher(map[string]string{"x": filepath.Join(t.TempDir(), "nope")}, 0, nil)
	if err == nil {
		t.Error("Expected error for a missing git dir")
	}
}

func TestWatcher_CloseTwice(t *testing.T) {
	w, err := NewWatcher(map[string]string{"widgets": newGitDir(t)}, 0, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}
