package channel

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/drover-ai/drover/internal/memory"
	"github.com/drover-ai/drover/internal/session"
	"github.com/drover-ai/drover/internal/tools"
	"github.com/drover-ai/drover/pkg/models"
)

type recordingTransport struct {
	calls []models.ToolCall
}

func (r *recordingTransport) Invoke(ctx context.Context, call models.ToolCall, deadline time.Duration) models.ToolResult {
	r.calls = append(r.calls, call)
	return models.ToolResult{CallID: call.ID, Success: true, Output: "remote ran " + call.Name}
}

func (r *recordingTransport) Close() error { return nil }

func TestRouteLocalOnlyPrefersTransport(t *testing.T) {
	sess := session.NewSession("proj")
	transport := &recordingTransport{}
	sess.AttachTransport(transport)

	r := NewRouter(RouterConfig{
		Registry: tools.NewRegistry(),
		Local:    tools.NewExecutor(t.TempDir()),
		Session:  sess,
	})

	res := r.Route(context.Background(), models.ToolCall{ID: "c1", Name: "Bash", Input: []byte(`{"command":"true"}`)})
	if !res.Success {
		t.Fatalf("Route failed: %s", res.Error)
	}
	if len(transport.calls) != 1 {
		t.Fatal("local-only tool should go to the attached executor")
	}
	if !strings.Contains(res.Output, "remote ran Bash") {
		t.Errorf("unexpected output: %q", res.Output)
	}
}

func TestRouteLocalOnlyFallsBackInProcess(t *testing.T) {
	dir := t.TempDir()
	sess := session.NewSession("proj")

	r := NewRouter(RouterConfig{
		Registry: tools.NewRegistry(),
		Local:    tools.NewExecutor(dir),
		Session:  sess,
	})

	input, _ := json.Marshal(map[string]string{"file_path": "out.txt", "content": "hi"})
	res := r.Route(context.Background(), models.ToolCall{ID: "c1", Name: "Write", Input: input})
	if !res.Success {
		t.Fatalf("Route failed: %s", res.Error)
	}

	// The write really happened in-process.
	if _, err := os.Stat(filepath.Join(dir, "out.txt")); err != nil {
		t.Fatalf("expected out.txt to exist: %v", err)
	}
}

func TestRouteLocalOnlyNoExecutor(t *testing.T) {
	sess := session.NewSession("proj")

	r := NewRouter(RouterConfig{
		Registry: tools.NewRegistry(),
		Session:  sess,
	})

	res := r.Route(context.Background(), models.ToolCall{ID: "c1", Name: "Read", Input: []byte(`{}`)})
	if res.Success {
		t.Fatal("expected failure without any executor")
	}
	if res.CallID != "c1" {
		t.Errorf("CallID = %q, want c1", res.CallID)
	}
}

func TestRouteMemoryToolStaysServerSide(t *testing.T) {
	store, err := memory.Open(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	sess := session.NewSession("proj")
	transport := &recordingTransport{}
	sess.AttachTransport(transport)

	r := NewRouter(RouterConfig{
		Registry: tools.NewRegistry(),
		Session:  sess,
		MemoryFor: func(subject string) *memory.ToolHandler {
			return memory.NewToolHandler(store, subject)
		},
	})

	input, _ := json.Marshal(map[string]string{"content": "remember this"})
	res := r.Route(context.Background(), models.ToolCall{ID: "c1", Name: "MemorySave", Input: input})
	if !res.Success {
		t.Fatalf("Route failed: %s", res.Error)
	}
	if len(transport.calls) != 0 {
		t.Error("memory tools must not cross the channel")
	}

	n, err := store.Count(context.Background(), "proj")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("store count = %d, want 1", n)
	}
}

func TestRouteUnknownToolRefused(t *testing.T) {
	sess := session.NewSession("proj")

	r := NewRouter(RouterConfig{
		Registry: tools.NewRegistry(),
		Session:  sess,
	})

	res := r.Route(context.Background(), models.ToolCall{ID: "c1", Name: "Nonsense", Input: []byte(`{}`)})
	if res.Success {
		t.Fatal("unknown tools must be refused")
	}
}
