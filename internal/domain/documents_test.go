package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDocument_Type(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
		want string
	}{
		{"blob", Document{Blob: &BlobBody{Type: TypeBlob}}, TypeBlob},
		{"commit", Document{Commit: &CommitBody{Type: TypeCommit}}, TypeCommit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.doc.Type(); got != tt.want {
				t.Errorf("Type() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDocument_BlobWireShape(t *testing.T) {
	doc := Document{Blob: &BlobBody{
		Type:      TypeBlob,
		OID:       "8ab686eafeb1f44702738c8b0f24f2567c36da6d",
		RID:       "repo",
		Content:   "hello",
		CommitSHA: "c0ffee",
	}}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if _, ok := raw["commit"]; ok {
		t.Error("Blob document must not carry a commit key")
	}
	body, ok := raw["blob"]
	if !ok {
		t.Fatalf("Expected top-level blob key, got %s", data)
	}
	for _, key := range []string{"type", "oid", "rid", "content", "commit_sha"} {
		if _, ok := body[key]; !ok {
			t.Errorf("Missing blob field %q in %s", key, data)
		}
	}
	if len(body) != 5 {
		t.Errorf("Expected exactly 5 blob fields, got %d: %s", len(body), data)
	}
}

func TestDocument_CommitWireShape(t *testing.T) {
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	doc := Document{Commit: &CommitBody{
		Type:      TypeCommit,
		RID:       "repo",
		SHA:       "c0ffee",
		Author:    Signature{Name: "Ada", Email: "ada@example.com", Time: when},
		Committer: Signature{Name: "Bob", Email: "bob@example.com", Time: when},
		Message:   "Initial commit",
	}}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	body, ok := raw["commit"]
	if !ok {
		t.Fatalf("Expected top-level commit key, got %s", data)
	}
	for _, key := range []string{"type", "rid", "sha", "author", "committer", "message"} {
		if _, ok := body[key]; !ok {
			t.Errorf("Missing commit field %q in %s", key, data)
		}
	}

	author, ok := body["author"].(map[string]any)
	if !ok {
		t.Fatalf("author is not an object: %s", data)
	}
	for _, key := range []string{"name", "email", "time"} {
		if _, ok := author[key]; !ok {
			t.Errorf("Missing author field %q", key)
		}
	}
}

func TestSearchResults_EmptyShape(t *testing.T) {
	data, err := json.Marshal(SearchResults{})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if _, ok := raw["blobs"]; !ok {
		t.Error("Expected blobs key")
	}
	if _, ok := raw["commits"]; !ok {
		t.Error("Expected commits key")
	}
}
