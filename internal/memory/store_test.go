package memory

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/drover-ai/drover/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndSearch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Save(ctx, "proj", "the deploy target is us-west-2"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := s.Save(ctx, "proj", "tests run with make check"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entries, err := s.Search(ctx, "proj", "deploy target", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 match, got %d", len(entries))
	}
	if !strings.Contains(entries[0].Content, "us-west-2") {
		t.Errorf("unexpected match: %q", entries[0].Content)
	}
}

func TestSearchScopedToSubject(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Save(ctx, "alpha", "shared secret fact"); err != nil {
		t.Fatal(err)
	}

	entries, err := s.Search(ctx, "beta", "secret", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no cross-subject matches, got %d", len(entries))
	}
}

func TestSaveRejectsEmpty(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.Save(context.Background(), "proj", "   "); err == nil {
		t.Error("expected error for empty content")
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Save(ctx, "proj", "temporary fact")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, id); err == nil {
		t.Error("expected error deleting a missing entry")
	}

	n, err := s.Count(ctx, "proj")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
}

func TestToolHandler(t *testing.T) {
	s := openTestStore(t)
	h := NewToolHandler(s, "sess-1")
	ctx := context.Background()

	if !h.Handles("MemorySave") || !h.Handles("MemorySearch") {
		t.Error("handler should claim the memory tools")
	}
	if h.Handles("Read") {
		t.Error("handler should not claim file tools")
	}

	saveInput, _ := json.Marshal(map[string]string{"content": "favorite branch is main"})
	res := h.Execute(ctx, models.ToolCall{ID: "c1", Name: "MemorySave", Input: saveInput})
	if !res.Success {
		t.Fatalf("MemorySave failed: %s", res.Error)
	}
	if res.CallID != "c1" {
		t.Errorf("CallID = %q, want c1", res.CallID)
	}

	searchInput, _ := json.Marshal(map[string]string{"query": "branch"})
	res = h.Execute(ctx, models.ToolCall{ID: "c2", Name: "MemorySearch", Input: searchInput})
	if !res.Success {
		t.Fatalf("MemorySearch failed: %s", res.Error)
	}
	if !strings.Contains(res.Output, "favorite branch") {
		t.Errorf("search output = %q, want saved fact", res.Output)
	}
}

func TestToolHandlerBadInput(t *testing.T) {
	s := openTestStore(t)
	h := NewToolHandler(s, "sess-1")

	res := h.Execute(context.Background(), models.ToolCall{ID: "c1", Name: "MemorySave", Input: []byte("{bad json")})
	if res.Success {
		t.Error("expected failure for malformed input")
	}
}

func TestTranscriptIndex(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.IndexTranscript(ctx, "proj", "/tmp/transcripts/one.md"); err != nil {
		t.Fatalf("IndexTranscript failed: %v", err)
	}
	if _, err := s.IndexTranscript(ctx, "proj", "/tmp/transcripts/two.md"); err != nil {
		t.Fatalf("IndexTranscript failed: %v", err)
	}
	if _, err := s.IndexTranscript(ctx, "other", "/tmp/transcripts/three.md"); err != nil {
		t.Fatalf("IndexTranscript failed: %v", err)
	}

	records, err := s.Transcripts(ctx, "proj", 0)
	if err != nil {
		t.Fatalf("Transcripts failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	for _, r := range records {
		if r.Subject != "proj" {
			t.Errorf("record subject = %q", r.Subject)
		}
	}

	if _, err := s.IndexTranscript(ctx, "proj", ""); err == nil {
		t.Error("expected error for empty path")
	}
}
