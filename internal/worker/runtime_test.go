package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/drover-ai/drover/internal/inference"
	"github.com/drover-ai/drover/internal/session"
	"github.com/drover-ai/drover/internal/tools"
	"github.com/drover-ai/drover/pkg/models"
)

// scriptedLLM replays canned responses in order.
type scriptedLLM struct {
	responses []*inference.Response
	requests  []inference.Request
	err       error
}

func (s *scriptedLLM) Complete(_ context.Context, req inference.Request) (*inference.Response, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return &inference.Response{Text: "done", StopReason: anthropic.StopReasonEndTurn}, nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

// recordingRouter records every call it sees and answers with success.
type recordingRouter struct {
	calls []models.ToolCall
}

func (r *recordingRouter) Route(_ context.Context, call models.ToolCall) models.ToolResult {
	r.calls = append(r.calls, call)
	return models.ToolResult{CallID: call.ID, Success: true, Output: "ok"}
}

func testKinds(t *testing.T) *KindSet {
	t.Helper()
	set, err := LoadKinds()
	if err != nil {
		t.Fatalf("LoadKinds: %v", err)
	}
	return set
}

func toolUse(id, name, input string) *inference.Response {
	return &inference.Response{
		StopReason: anthropic.StopReasonToolUse,
		ToolCalls: []models.ToolCall{
			{ID: id, Name: name, Input: json.RawMessage(input)},
		},
	}
}

func TestRunFinishesOnEndTurn(t *testing.T) {
	llm := &scriptedLLM{responses: []*inference.Response{
		{Text: "the answer is 42", StopReason: anthropic.StopReasonEndTurn},
	}}
	router := &recordingRouter{}
	rt := NewRuntime(llm, tools.NewRegistry(), router, testKinds(t))

	res, err := rt.Run(context.Background(), models.AgentTask{
		ID: "t1", Kind: "direct", Input: "what is six times seven",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Fatal("expected success")
	}
	if res.Output != "the answer is 42" {
		t.Errorf("Output = %q", res.Output)
	}
	if res.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", res.Iterations)
	}
	if len(router.calls) != 0 {
		t.Errorf("direct kind routed %d tool calls", len(router.calls))
	}
}

func TestRunRoutesPermittedToolCalls(t *testing.T) {
	llm := &scriptedLLM{responses: []*inference.Response{
		toolUse("call-1", "Read", `{"file_path":"/tmp/x"}`),
		{Text: "file read", StopReason: anthropic.StopReasonEndTurn},
	}}
	router := &recordingRouter{}
	rt := NewRuntime(llm, tools.NewRegistry(), router, testKinds(t))

	res, err := rt.Run(context.Background(), models.AgentTask{
		ID: "t2", Kind: "explorer", Input: "look at /tmp/x",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if len(router.calls) != 1 || router.calls[0].Name != "Read" {
		t.Fatalf("router saw %+v", router.calls)
	}
	if len(res.ToolTrace) != 1 || !res.ToolTrace[0].Success {
		t.Fatalf("ToolTrace = %+v", res.ToolTrace)
	}

	// The second request must carry the assistant turn and the tool
	// result back to the model.
	if len(llm.requests) != 2 {
		t.Fatalf("model saw %d requests", len(llm.requests))
	}
	if got := len(llm.requests[1].Messages); got != 3 {
		t.Errorf("second request carries %d messages, want 3", got)
	}
}

func TestRunDeniesUnauthorizedToolWithoutAborting(t *testing.T) {
	// Explorers may not run Bash. The denial goes back to the model as
	// a failed tool result and the loop keeps going.
	llm := &scriptedLLM{responses: []*inference.Response{
		toolUse("call-1", "Bash", `{"command":"rm -rf /"}`),
		{Text: "understood, reading instead", StopReason: anthropic.StopReasonEndTurn},
	}}
	router := &recordingRouter{}
	rt := NewRuntime(llm, tools.NewRegistry(), router, testKinds(t))

	res, err := rt.Run(context.Background(), models.AgentTask{
		ID: "t3", Kind: "explorer", Input: "clean up",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected recovery, got %+v", res)
	}
	if len(router.calls) != 0 {
		t.Fatalf("denied call reached the router: %+v", router.calls)
	}
	if len(res.ToolTrace) != 1 || res.ToolTrace[0].Success {
		t.Fatalf("ToolTrace = %+v, want one failed entry", res.ToolTrace)
	}
}

func TestRunExhaustsIterationBudget(t *testing.T) {
	kinds, err := ParseKinds([]byte(`
kinds:
  - name: tiny
    max_iterations: 3
    tools: [Read]
`))
	if err != nil {
		t.Fatalf("ParseKinds: %v", err)
	}

	// Never stops asking for tools.
	llm := &scriptedLLM{responses: []*inference.Response{
		toolUse("c1", "Read", `{}`),
		toolUse("c2", "Read", `{}`),
		toolUse("c3", "Read", `{}`),
		toolUse("c4", "Read", `{}`),
	}}
	router := &recordingRouter{}
	rt := NewRuntime(llm, tools.NewRegistry(), router, kinds)

	res, err := rt.Run(context.Background(), models.AgentTask{ID: "t4", Kind: "tiny", Input: "loop"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure after budget exhaustion")
	}
	if res.Iterations != 3 {
		t.Errorf("Iterations = %d, want 3", res.Iterations)
	}
	if !strings.Contains(res.Err, "iterations") {
		t.Errorf("Err = %q", res.Err)
	}
}

func TestRunUnknownKind(t *testing.T) {
	rt := NewRuntime(&scriptedLLM{}, tools.NewRegistry(), &recordingRouter{}, testKinds(t))
	_, err := rt.Run(context.Background(), models.AgentTask{ID: "t5", Kind: "nonesuch"})
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestRunPropagatesInferenceError(t *testing.T) {
	llm := &scriptedLLM{err: fmt.Errorf("api offline: %w", inference.ErrUnavailable)}
	rt := NewRuntime(llm, tools.NewRegistry(), &recordingRouter{}, testKinds(t))

	_, err := rt.Run(context.Background(), models.AgentTask{ID: "t6", Kind: "direct", Input: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rt := NewRuntime(&scriptedLLM{}, tools.NewRegistry(), &recordingRouter{}, testKinds(t))
	_, err := rt.Run(ctx, models.AgentTask{ID: "t7", Kind: "direct", Input: "hi"})
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestRunSendsKindSystemPrompt(t *testing.T) {
	llm := &scriptedLLM{}
	rt := NewRuntime(llm, tools.NewRegistry(), &recordingRouter{}, testKinds(t))

	if _, err := rt.Run(context.Background(), models.AgentTask{ID: "t8", Kind: "researcher", Input: "dig"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(llm.requests) == 0 {
		t.Fatal("model never called")
	}
	kind, _ := testKinds(t).Get("researcher")
	if llm.requests[0].System != kind.SystemPrompt {
		t.Error("request did not carry the kind's system prompt")
	}
}

func TestRunAppendsToolMessagesToSession(t *testing.T) {
	llm := &scriptedLLM{responses: []*inference.Response{
		toolUse("call-1", "Read", `{"file_path":"/tmp/x"}`),
		toolUse("call-2", "Bash", `{"command":"ls"}`),
		{Text: "all read", StopReason: anthropic.StopReasonEndTurn},
	}}
	rt := NewRuntime(llm, tools.NewRegistry(), &recordingRouter{}, testKinds(t))

	sess := session.NewSession("test")
	res, err := rt.Run(session.NewContext(context.Background(), sess), models.AgentTask{
		ID: "t9", Kind: "explorer", Input: "look around",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}

	var toolMsgs []models.Message
	for _, msg := range sess.History() {
		if msg.Role == models.RoleTool {
			toolMsgs = append(toolMsgs, msg)
		}
	}
	if len(toolMsgs) != 2 {
		t.Fatalf("session carries %d tool messages, want 2", len(toolMsgs))
	}
	if toolMsgs[0].Result == nil || toolMsgs[0].Result.CallID != "call-1" {
		t.Errorf("first tool message = %+v", toolMsgs[0])
	}
	// Explorer kinds may not run Bash; the denial is history too.
	if toolMsgs[1].Result == nil || toolMsgs[1].Result.Success {
		t.Errorf("denied call should be recorded as a failed result: %+v", toolMsgs[1])
	}
}
