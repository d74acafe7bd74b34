package gitindex

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"
)

func nestedStore() *fakeStore {
	s := newFakeStore()
	s.addBlob("b-readme", []byte("readme"))
	s.addBlob("b-main", []byte("package main"))
	s.addBlob("b-util", []byte("package util"))
	s.addTree("t-util", TreeEntry{Name: "util.go", OID: "b-util", Kind: EntryBlob})
	s.addTree("t-cmd",
		TreeEntry{Name: "main.go", OID: "b-main", Kind: EntryBlob},
		TreeEntry{Name: "util", OID: "t-util", Kind: EntryTree},
	)
	s.addTree("t-root",
		TreeEntry{Name: "README.md", OID: "b-readme", Kind: EntryBlob},
		TreeEntry{Name: "cmd", OID: "t-cmd", Kind: EntryTree},
		TreeEntry{Name: "vendored", OID: "c-other", Kind: EntrySubmodule},
	)
	s.addCommit("c1", "t-root", "initial")
	s.head = "c1"
	return s
}

func TestWalker_WalkSnapshot_JoinsPathsAndSkipsSubmodules(t *testing.T) {
	w := NewWalker(nestedStore())

	var got []TreeEntry
	err := w.WalkSnapshot(context.Background(), "c1", false, func(e TreeEntry) error {
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatalf("WalkSnapshot failed: %v", err)
	}

	want := []TreeEntry{
		{Name: "README.md", OID: "b-readme", Kind: EntryBlob},
		{Name: "cmd/main.go", OID: "b-main", Kind: EntryBlob},
		{Name: "cmd/util/util.go", OID: "b-util", Kind: EntryBlob},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}
}

func TestWalker_WalkSnapshot_UsesIndexForWorkingCopy(t *testing.T) {
	s := nestedStore()
	s.bare = false
	s.index = []TreeEntry{
		{Name: "staged.txt", OID: "b-staged", Kind: EntryBlob},
		{Name: "sub", OID: "c-other", Kind: EntrySubmodule},
	}

	var names []string
	collect := func(e TreeEntry) error {
		names = append(names, e.Name)
		return nil
	}

	if err := NewWalker(s).WalkSnapshot(context.Background(), "c1", true, collect); err != nil {
		t.Fatalf("WalkSnapshot failed: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"staged.txt"}) {
		t.Errorf("index walk = %v, want [staged.txt]", names)
	}

	names = nil
	if err := NewWalker(s).WalkSnapshot(context.Background(), "c1", false, collect); err != nil {
		t.Fatalf("WalkSnapshot failed: %v", err)
	}
	if len(names) != 3 {
		t.Errorf("tree walk = %v, want 3 entries", names)
	}
}

func TestWalker_WalkSnapshot_BareIgnoresIndex(t *testing.T) {
	s := nestedStore()
	s.index = []TreeEntry{{Name: "staged.txt", OID: "b-staged", Kind: EntryBlob}}

	count := 0
	err := NewWalker(s).WalkSnapshot(context.Background(), "c1", true, func(TreeEntry) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("WalkSnapshot failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected the tree to be walked, got %d entries", count)
	}
}

func TestWalker_WalkDelta_ReverseOrder(t *testing.T) {
	s := newFakeStore()
	s.diffs["a..b"] = []Delta{
		{Status: DeltaAdded, NewPath: "first"},
		{Status: DeltaModified, OldPath: "second", NewPath: "second"},
		{Status: DeltaDeleted, OldPath: "third"},
	}

	var got []string
	err := NewWalker(s).WalkDelta(context.Background(), "a", "b", func(d Delta) error {
		if d.Status == DeltaDeleted {
			got = append(got, d.OldPath)
		} else {
			got = append(got, d.NewPath)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WalkDelta failed: %v", err)
	}

	want := []string{"third", "second", "first"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestWalker_WalkDelta_StopsOnError(t *testing.T) {
	s := newFakeStore()
	s.diffs["a..b"] = []Delta{{NewPath: "x"}, {NewPath: "y"}}
	boom := errors.New("boom")

	calls := 0
	err := NewWalker(s).WalkDelta(context.Background(), "a", "b", func(Delta) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestWalker_WalkCommits_AllObjects(t *testing.T) {
	s := nestedStore()
	s.addCommit("c2", "t-root", "second")

	var shas []string
	err := NewWalker(s).WalkCommits(context.Background(), "", "", func(c Commit) error {
		shas = append(shas, c.SHA)
		return nil
	})
	if err != nil {
		t.Fatalf("WalkCommits failed: %v", err)
	}

	sort.Strings(shas)
	if !reflect.DeepEqual(shas, []string{"c1", "c2"}) {
		t.Errorf("commits = %v, want [c1 c2]", shas)
	}
}

func TestWalker_WalkCommits_Range(t *testing.T) {
	s := newFakeStore()
	s.logs["a..c"] = []Commit{{SHA: "c"}, {SHA: "b"}}

	var shas []string
	err := NewWalker(s).WalkCommits(context.Background(), "a", "c", func(c Commit) error {
		shas = append(shas, c.SHA)
		return nil
	})
	if err != nil {
		t.Fatalf("WalkCommits failed: %v", err)
	}
	if !reflect.DeepEqual(shas, []string{"c", "b"}) {
		t.Errorf("commits = %v, want [c b]", shas)
	}
}

func TestWalker_WalkCommits_RequiresTarget(t *testing.T) {
	err := NewWalker(newFakeStore()).WalkCommits(context.Background(), "a", "", func(Commit) error { return nil })
	if err == nil {
		t.Error("Expected error for a range without target")
	}
}

func TestWalker_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewWalker(nestedStore()).WalkSnapshot(ctx, "c1", false, func(TreeEntry) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestWalker_FindBlob(t *testing.T) {
	w := NewWalker(nestedStore())

	tests := []struct {
		name    string
		path    string
		wantOID string
		wantErr bool
	}{
		{name: "top level", path: "README.md", wantOID: "b-readme"},
		{name: "nested", path: "cmd/util/util.go", wantOID: "b-util"},
		{name: "leading slash", path: "/cmd/main.go", wantOID: "b-main"},
		{name: "missing", path: "cmd/nope.go", wantErr: true},
		{name: "directory", path: "cmd", wantErr: true},
		{name: "submodule", path: "vendored", wantErr: true},
		{name: "through a file", path: "README.md/x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := w.FindBlob("c1", tt.path)
			if tt.wantErr {
				if !errors.Is(err, ErrPathNotFound) {
					t.Errorf("err = %v, want ErrPathNotFound", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FindBlob failed: %v", err)
			}
			if entry.OID != tt.wantOID {
				t.Errorf("OID = %q, want %q", entry.OID, tt.wantOID)
			}
		})
	}
}
