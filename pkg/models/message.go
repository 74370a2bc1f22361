// Package models defines the shared data types passed between the
// planner, worker runtime, tool channel, and orchestrator.
package models

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid returns true if the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Message is a single entry in a session's conversation history.
// Assistant messages may carry tool invocations the model requested;
// tool messages carry the result of exactly one of those invocations.
type Message struct {
	Role      Role        `json:"role"`
	Content   string      `json:"content"`
	ToolCalls []ToolCall  `json:"tool_calls,omitempty"`
	Result    *ToolResult `json:"result,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// UserMessage builds a user-authored message stamped with the current time.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, CreatedAt: time.Now()}
}

// AssistantMessage builds an assistant message, optionally carrying
// requested tool invocations.
func AssistantMessage(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls, CreatedAt: time.Now()}
}

// ToolMessage wraps a tool result as a history entry.
func ToolMessage(res ToolResult) Message {
	return Message{Role: RoleTool, Result: &res, CreatedAt: time.Now()}
}

// ToolCall is a model-requested tool invocation. ID correlates the
// eventual result back to this request and is unique per invocation.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the outcome of a single tool invocation. A failed
// invocation is still a result; Success false with Error set is fed
// back to the model rather than aborting the run.
type ToolResult struct {
	CallID   string            `json:"call_id"`
	Success  bool              `json:"success"`
	Output   string            `json:"output,omitempty"`
	Error    string            `json:"error,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// FailedResult builds an unsuccessful result for the given call.
func FailedResult(callID, reason string) ToolResult {
	return ToolResult{CallID: callID, Success: false, Error: reason}
}
