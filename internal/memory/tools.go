package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/drover-ai/drover/pkg/models"
)

// ToolHandler executes the memory tools against the store on behalf of
// a single subject (usually the session's memory key).
type ToolHandler struct {
	store   *Store
	subject string
}

// NewToolHandler binds the store to a subject.
func NewToolHandler(store *Store, subject string) *ToolHandler {
	return &ToolHandler{store: store, subject: subject}
}

// Handles reports whether the named tool belongs to this handler.
func (h *ToolHandler) Handles(name string) bool {
	return name == "MemorySave" || name == "MemorySearch"
}

// Execute runs one memory tool call. Failures come back as
// unsuccessful results, never as errors.
func (h *ToolHandler) Execute(ctx context.Context, call models.ToolCall) models.ToolResult {
	var res models.ToolResult
	switch call.Name {
	case "MemorySave":
		res = h.save(ctx, call.Input)
	case "MemorySearch":
		res = h.search(ctx, call.Input)
	default:
		res = models.ToolResult{Success: false, Error: fmt.Sprintf("not a memory tool: %s", call.Name)}
	}
	res.CallID = call.ID
	return res
}

func (h *ToolHandler) save(ctx context.Context, input json.RawMessage) models.ToolResult {
	var params struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("invalid parameters: %v", err)}
	}

	id, err := h.store.Save(ctx, h.subject, params.Content)
	if err != nil {
		return models.ToolResult{Success: false, Error: err.Error()}
	}
	return models.ToolResult{Success: true, Output: fmt.Sprintf("Remembered (id %s)", id)}
}

func (h *ToolHandler) search(ctx context.Context, input json.RawMessage) models.ToolResult {
	var params struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("invalid parameters: %v", err)}
	}

	entries, err := h.store.Search(ctx, h.subject, params.Query, params.Limit)
	if err != nil {
		return models.ToolResult{Success: false, Error: err.Error()}
	}
	if len(entries) == 0 {
		return models.ToolResult{Success: true, Output: "No matching memories"}
	}

	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "- %s (%s)\n", e.Content, e.CreatedAt.Format("2006-01-02"))
	}
	return models.ToolResult{Success: true, Output: sb.String()}
}
