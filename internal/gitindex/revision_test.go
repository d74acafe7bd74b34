package gitindex

import (
	"errors"
	"strings"
	"testing"
)

func TestResolveRevision(t *testing.T) {
	s := nestedStore()
	s.refs["main"] = "c1"

	tests := []struct {
		name     string
		rev      string
		want     string
		wantErrs []error
	}{
		{name: "sha", rev: "c1", want: "c1"},
		{name: "ref", rev: "main", want: "c1"},
		{name: "missing", rev: "nope", wantErrs: []error{ErrInvalidRevision, ErrRevisionNotFound}},
		{name: "tree", rev: "t-root", wantErrs: []error{ErrInvalidRevision, ErrNotACommit}},
		{name: "blob", rev: "b-readme", wantErrs: []error{ErrInvalidRevision, ErrNotACommit}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveRevision(s, ArgToRev, tt.rev)
			if len(tt.wantErrs) > 0 {
				for _, want := range tt.wantErrs {
					if !errors.Is(err, want) {
						t.Errorf("err = %v, want %v", err, want)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveRevision failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveRevision_ErrorNamesArgument(t *testing.T) {
	_, err := ResolveRevision(nestedStore(), ArgFromRev, "t-root")

	var revErr *RevisionError
	if !errors.As(err, &revErr) {
		t.Fatalf("Expected RevisionError, got %T", err)
	}
	if revErr.Arg != ArgFromRev || revErr.Kind != KindTree {
		t.Errorf("RevisionError = %+v", revErr)
	}
	if !strings.Contains(err.Error(), "from_rev") || !strings.Contains(err.Error(), "tree") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestResolveRevision_StoreFailureIsNotARevisionError(t *testing.T) {
	s := nestedStore()
	s.lookupErr = errors.New("disk on fire")

	_, err := ResolveRevision(s, ArgToRev, "c1")
	if err == nil {
		t.Fatal("Expected error")
	}
	if errors.Is(err, ErrInvalidRevision) {
		t.Errorf("Store failure must not be reported as an invalid revision: %v", err)
	}
}
