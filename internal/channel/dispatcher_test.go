package channel

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/drover-ai/drover/pkg/models"
)

// captureSend records outbound envelopes and lets tests answer them.
type captureSend struct {
	mu   sync.Mutex
	reqs []ToolRequest
}

func (c *captureSend) send(env Envelope) error {
	if env.Kind != KindToolRequest {
		return nil
	}
	var req ToolRequest
	if err := env.Decode(&req); err != nil {
		return err
	}
	c.mu.Lock()
	c.reqs = append(c.reqs, req)
	c.mu.Unlock()
	return nil
}

func (c *captureSend) last() ToolRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reqs[len(c.reqs)-1]
}

func TestInvokeCorrelation(t *testing.T) {
	cap := &captureSend{}
	d := NewDispatcher(cap.send)

	done := make(chan models.ToolResult, 1)
	go func() {
		done <- d.Invoke(context.Background(), models.ToolCall{ID: "tc-1", Name: "Read"}, time.Second)
	}()

	// Wait for the request to go out, then answer it.
	waitFor(t, func() bool { return d.InFlight() == 1 })
	req := cap.last()

	if req.ID == "tc-1" {
		t.Error("correlation id must be fresh, not the tool call id")
	}

	d.HandleResponse(ToolResponse{ID: req.ID, Success: true, Output: "file contents"})

	res := <-done
	if !res.Success || res.Output != "file contents" {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.CallID != "tc-1" {
		t.Errorf("result call id = %q, want tc-1", res.CallID)
	}
}

func TestInvokeTimeoutRetiresID(t *testing.T) {
	cap := &captureSend{}
	d := NewDispatcher(cap.send)

	res := d.Invoke(context.Background(), models.ToolCall{ID: "tc-1", Name: "Bash"}, 20*time.Millisecond)
	if res.Success {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(res.Error, "timed out") {
		t.Errorf("error = %q, want timeout", res.Error)
	}
	if d.InFlight() != 0 {
		t.Error("timed-out invocation should be retired")
	}

	// A late response for the retired id is silently discarded.
	d.HandleResponse(ToolResponse{ID: cap.last().ID, Success: true})
	if d.InFlight() != 0 {
		t.Error("late response must not resurrect the invocation")
	}
}

func TestInvokeContextCanceled(t *testing.T) {
	cap := &captureSend{}
	d := NewDispatcher(cap.send)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res := d.Invoke(ctx, models.ToolCall{ID: "tc-1", Name: "Bash"}, time.Minute)
	if res.Success {
		t.Fatal("expected cancellation failure")
	}
	if !strings.Contains(res.Error, "canceled") {
		t.Errorf("error = %q, want cancellation", res.Error)
	}
}

func TestCloseFailsInFlight(t *testing.T) {
	cap := &captureSend{}
	d := NewDispatcher(cap.send)

	const n = 3
	results := make(chan models.ToolResult, n)
	for i := 0; i < n; i++ {
		go func() {
			results <- d.Invoke(context.Background(), models.ToolCall{ID: "tc", Name: "Read"}, time.Minute)
		}()
	}

	waitFor(t, func() bool { return d.InFlight() == n })
	d.Close()

	for i := 0; i < n; i++ {
		res := <-results
		if res.Success {
			t.Error("in-flight invocation should fail on close")
		}
		if !strings.Contains(res.Error, "disconnected") {
			t.Errorf("error = %q, want disconnect", res.Error)
		}
	}
}

func TestInvokeAfterClose(t *testing.T) {
	d := NewDispatcher(func(Envelope) error { return nil })
	d.Close()

	res := d.Invoke(context.Background(), models.ToolCall{ID: "tc-1", Name: "Read"}, time.Second)
	if res.Success {
		t.Fatal("invoke after close must fail")
	}
}

func TestConcurrentInvokesGetDistinctIDs(t *testing.T) {
	cap := &captureSend{}
	d := NewDispatcher(cap.send)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Invoke(context.Background(), models.ToolCall{ID: "tc", Name: "Read"}, 20*time.Millisecond)
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	cap.mu.Lock()
	defer cap.mu.Unlock()
	for _, req := range cap.reqs {
		if seen[req.ID] {
			t.Fatalf("duplicate correlation id %s", req.ID)
		}
		seen[req.ID] = true
	}
	if len(seen) != n {
		t.Errorf("expected %d distinct ids, got %d", n, len(seen))
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}
