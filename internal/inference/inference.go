package inference

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/drover-ai/drover/pkg/models"
)

// ErrUnavailable is returned once retries against the inference
// backend are exhausted.
var ErrUnavailable = errors.New("inference backend unavailable")

// Request is a single completion request.
type Request struct {
	Model     anthropic.Model
	System    string
	Messages  []anthropic.MessageParam
	Tools     []anthropic.ToolUnionParam
	MaxTokens int64
}

// Response carries the text and any tool invocations the model produced.
type Response struct {
	Text       string
	ToolCalls  []models.ToolCall
	StopReason anthropic.StopReason
	TokensIn   int64
	TokensOut  int64
}

// Done reports whether the model finished its turn without requesting
// more tool work.
func (r *Response) Done() bool {
	return r.StopReason == anthropic.StopReasonEndTurn
}

// Completer is the completion surface the planner, workers, and
// orchestrator depend on.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Complete sends one request to the API, retrying transient failures.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_5_20250929
	}
	if c.bedrock {
		model = translateModelForBedrock(model)
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  req.Messages,
		Tools:     req.Tools,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := c.callWithRetry(ctx, params)
	if err != nil {
		return nil, err
	}

	c.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	out := &Response{
		StopReason: resp.StopReason,
		TokensIn:   resp.Usage.InputTokens,
		TokensOut:  resp.Usage.OutputTokens,
	}

	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Text += variant.Text
		case anthropic.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, models.ToolCall{
				ID:    variant.ID,
				Name:  variant.Name,
				Input: variant.Input,
			})
		}
	}

	return out, nil
}
