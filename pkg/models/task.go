package models

import "time"

// AgentTask is a single assignment handed to the worker runtime. The
// runtime is fully parameterized by these fields; behavioral
// differences between worker kinds come from data, not code.
type AgentTask struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id,omitempty"`
	Kind      string        `json:"kind"`
	Input     string        `json:"input"`
	Model     string        `json:"model,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
}

// ToolTraceEntry records one tool invocation made during a task run,
// in execution order.
type ToolTraceEntry struct {
	CallID  string `json:"call_id"`
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
}
