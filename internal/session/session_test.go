package session

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/drover-ai/drover/pkg/models"
)

type fakeTransport struct {
	closed bool
}

func (f *fakeTransport) Invoke(ctx context.Context, call models.ToolCall, deadline time.Duration) models.ToolResult {
	return models.ToolResult{CallID: call.ID, Success: true}
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func TestHistoryAppendAndSnapshot(t *testing.T) {
	s := NewSession("proj")

	s.Append(models.UserMessage("hello"))
	s.Append(models.AssistantMessage("hi there"))

	hist := s.History()
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist))
	}

	// The snapshot is a copy; appending later must not mutate it.
	s.Append(models.UserMessage("more"))
	if len(hist) != 2 {
		t.Error("snapshot mutated by later append")
	}
}

func TestCompact(t *testing.T) {
	s := NewSession("proj")
	for i := 0; i < 10; i++ {
		s.Append(models.UserMessage("msg"))
	}

	s.Compact("we discussed deployment", 3)

	hist := s.History()
	if len(hist) != 4 {
		t.Fatalf("history length after compact = %d, want 4", len(hist))
	}
	if !strings.Contains(hist[0].Content, "we discussed deployment") {
		t.Errorf("first entry should be the summary, got %q", hist[0].Content)
	}
}

func TestCompactNoopWhenShort(t *testing.T) {
	s := NewSession("proj")
	s.Append(models.UserMessage("only one"))

	s.Compact("summary", 5)

	if s.Len() != 1 {
		t.Errorf("short history should be untouched, got %d entries", s.Len())
	}
}

func TestAttachTransportClosesPrevious(t *testing.T) {
	s := NewSession("proj")

	first := &fakeTransport{}
	second := &fakeTransport{}

	s.AttachTransport(first)
	s.AttachTransport(second)

	if !first.closed {
		t.Error("previous transport should be closed on replacement")
	}
	if second.closed {
		t.Error("new transport should stay open")
	}
	if s.Transport() != second {
		t.Error("Transport() should return the latest attachment")
	}
}

func TestManagerLifecycle(t *testing.T) {
	m := NewManager()

	s := m.Create("proj")
	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != s {
		t.Error("Get returned a different session")
	}

	tr := &fakeTransport{}
	s.AttachTransport(tr)

	m.Remove(s.ID)
	if !tr.closed {
		t.Error("Remove should close the transport")
	}

	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Remove = %v, want ErrNotFound", err)
	}
}

func TestSweep(t *testing.T) {
	m := NewManager()

	stale := m.Create("proj")
	stale.mu.Lock()
	stale.lastActive = time.Now().Add(-time.Hour)
	stale.mu.Unlock()

	fresh := m.Create("proj")
	fresh.Append(models.UserMessage("still here"))

	if n := m.Sweep(10 * time.Minute); n != 1 {
		t.Errorf("Sweep removed %d sessions, want 1", n)
	}
	if _, err := m.Get(fresh.ID); err != nil {
		t.Error("fresh session should survive the sweep")
	}
}

func TestTranscriptWriter(t *testing.T) {
	s := NewSession("proj")
	s.Append(models.UserMessage("deploy the service"))
	s.Append(models.AssistantMessage("running the deploy", models.ToolCall{ID: "c1", Name: "Bash"}))
	s.Append(models.ToolMessage(models.ToolResult{CallID: "c1", Success: true, Output: "done"}))

	w := NewTranscriptWriter(t.TempDir())
	path, err := w.Write(s)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("transcript missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("transcript permissions = %o, want 0600", perm)
	}

	content, _ := os.ReadFile(path)
	for _, want := range []string{"deploy the service", "tool call c1", "tool result c1"} {
		if !strings.Contains(string(content), want) {
			t.Errorf("transcript missing %q", want)
		}
	}
}
