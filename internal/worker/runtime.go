package worker

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/rs/zerolog"

	"github.com/drover-ai/drover/internal/inference"
	"github.com/drover-ai/drover/internal/logging"
	"github.com/drover-ai/drover/internal/session"
	"github.com/drover-ai/drover/internal/tools"
	"github.com/drover-ai/drover/pkg/models"
)

// ToolRouter executes one tool call on whichever side it belongs.
// The channel package provides the production implementation.
type ToolRouter interface {
	Route(ctx context.Context, call models.ToolCall) models.ToolResult
}

// Result is the outcome of one task run.
type Result struct {
	Success    bool
	Output     string
	Iterations int
	ToolTrace  []models.ToolTraceEntry
	// Err describes a within-budget failure (the model could not
	// finish). Infrastructure failures come back as Go errors instead.
	Err string
}

// Runtime is the single generic worker loop. It is parameterized
// entirely by the task's kind record.
type Runtime struct {
	llm      inference.Completer
	registry *tools.Registry
	router   ToolRouter
	kinds    *KindSet
	log      zerolog.Logger
}

// NewRuntime wires a runtime.
func NewRuntime(llm inference.Completer, registry *tools.Registry, router ToolRouter, kinds *KindSet) *Runtime {
	return &Runtime{
		llm:      llm,
		registry: registry,
		router:   router,
		kinds:    kinds,
		log:      logging.For("worker"),
	}
}

// Kinds returns the runtime's kind catalog.
func (r *Runtime) Kinds() *KindSet {
	return r.kinds
}

// Run executes one task to completion. Errors are reserved for
// infrastructure trouble (unknown kind, inference outage, timeout);
// everything the model can recover from is fed back into the loop,
// including calls to tools the kind does not permit.
func (r *Runtime) Run(ctx context.Context, task models.AgentTask) (*Result, error) {
	kind, err := r.kinds.Get(task.Kind)
	if err != nil {
		return nil, err
	}

	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	log := r.log.With().Str("task", task.ID).Str("kind", kind.Name).Logger()
	log.Debug().Msg("task started")

	// Tool traffic is recorded on the calling session's history as it
	// happens, not just the terminal output.
	sess, _ := session.FromContext(ctx)

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(task.Input)),
	}
	toolParams := r.registry.Params(kind.Tools)

	result := &Result{}
	var lastText string

	for result.Iterations < kind.MaxIterations {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("task %s: %w", task.ID, ctx.Err())
		}
		result.Iterations++

		resp, err := r.llm.Complete(ctx, inference.Request{
			Model:    anthropic.Model(task.Model),
			System:   kind.SystemPrompt,
			Messages: messages,
			Tools:    toolParams,
		})
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", task.ID, err)
		}

		lastText = resp.Text

		if resp.Done() {
			result.Success = true
			result.Output = resp.Text
			log.Debug().Int("iterations", result.Iterations).Msg("task finished")
			return result, nil
		}

		var assistantBlocks []anthropic.ContentBlockParamUnion
		var toolResultBlocks []anthropic.ContentBlockParamUnion

		if resp.Text != "" {
			assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(resp.Text))
		}

		for _, call := range resp.ToolCalls {
			assistantBlocks = append(assistantBlocks,
				anthropic.NewToolUseBlock(call.ID, call.Input, call.Name))

			toolResult := r.invoke(ctx, kind, call)
			result.ToolTrace = append(result.ToolTrace, models.ToolTraceEntry{
				CallID:  call.ID,
				Tool:    call.Name,
				Success: toolResult.Success,
			})
			if sess != nil {
				sess.Append(models.ToolMessage(toolResult))
			}

			content := toolResult.Output
			if !toolResult.Success {
				content = toolResult.Error
			}
			toolResultBlocks = append(toolResultBlocks,
				anthropic.NewToolResultBlock(call.ID, content, !toolResult.Success))
		}

		if len(assistantBlocks) == 0 {
			// A turn with neither text nor tool calls cannot advance.
			break
		}

		messages = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))
		if len(toolResultBlocks) > 0 {
			messages = append(messages, anthropic.NewUserMessage(toolResultBlocks...))
		}
	}

	result.Success = false
	result.Output = lastText
	result.Err = fmt.Sprintf("gave up after %d iterations", result.Iterations)
	log.Warn().Int("iterations", result.Iterations).Msg("task exhausted iteration budget")
	return result, nil
}

// invoke enforces the kind's tool permissions before routing. A denied
// call produces a failure result the model sees and can adapt to.
func (r *Runtime) invoke(ctx context.Context, kind *Kind, call models.ToolCall) models.ToolResult {
	if !kind.Permits(call.Name) {
		r.log.Warn().Str("kind", kind.Name).Str("tool", call.Name).Msg("unauthorized tool call")
		return models.FailedResult(call.ID,
			fmt.Sprintf("tool %s is not permitted for %s workers", call.Name, kind.Name))
	}
	return r.router.Route(ctx, call)
}
