package channel

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/drover-ai/drover/internal/logging"
	"github.com/drover-ai/drover/pkg/models"
)

// sendFunc writes one envelope to the peer. The server wires this to
// the connection's serialized writer.
type sendFunc func(Envelope) error

// Dispatcher is the reasoning-side end of one executor connection. It
// correlates tool requests with responses by id and guarantees every
// Invoke returns exactly one result: the response, a timeout failure,
// or a disconnect failure.
type Dispatcher struct {
	send sendFunc
	log  zerolog.Logger

	mu      sync.Mutex
	pending map[string]chan ToolResponse
	closed  bool
}

// NewDispatcher creates a dispatcher writing through send.
func NewDispatcher(send sendFunc) *Dispatcher {
	return &Dispatcher{
		send:    send,
		log:     logging.For("channel"),
		pending: make(map[string]chan ToolResponse),
	}
}

// Invoke sends one tool request and blocks for its response. The
// deadline bounds the round trip; a late response after the deadline
// is discarded by HandleResponse. Invoke never returns an error: tool
// trouble is reported through the result so it can be fed back to the
// model.
func (d *Dispatcher) Invoke(ctx context.Context, call models.ToolCall, deadline time.Duration) models.ToolResult {
	id := uuid.NewString()
	respCh := make(chan ToolResponse, 1)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return models.FailedResult(call.ID, "executor disconnected")
	}
	d.pending[id] = respCh
	d.mu.Unlock()

	if deadline <= 0 {
		deadline = 2 * time.Minute
	}

	env, err := NewEnvelope(KindToolRequest, ToolRequest{
		ID:         id,
		Name:       call.Name,
		Input:      call.Input,
		DeadlineMS: deadline.Milliseconds(),
	})
	if err == nil {
		err = d.send(env)
	}
	if err != nil {
		d.retire(id)
		return models.FailedResult(call.ID, "sending tool request: "+err.Error())
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		return models.ToolResult{
			CallID:  call.ID,
			Success: resp.Success,
			Output:  resp.Output,
			Error:   resp.Error,
		}
	case <-timer.C:
		d.retire(id)
		return models.FailedResult(call.ID, "tool invocation timed out after "+deadline.String())
	case <-ctx.Done():
		d.retire(id)
		return models.FailedResult(call.ID, "tool invocation canceled: "+ctx.Err().Error())
	}
}

// HandleResponse routes an inbound response to its waiting Invoke.
// Responses for retired or unknown ids are discarded.
func (d *Dispatcher) HandleResponse(resp ToolResponse) {
	d.mu.Lock()
	ch, ok := d.pending[resp.ID]
	if ok {
		delete(d.pending, resp.ID)
	}
	d.mu.Unlock()

	if !ok {
		d.log.Debug().Str("id", resp.ID).Msg("discarding response for retired invocation")
		return
	}
	ch <- resp
}

// InFlight returns the number of unanswered invocations.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close fails every in-flight invocation with a disconnect result and
// rejects future invokes. Safe to call more than once.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	pending := d.pending
	d.pending = make(map[string]chan ToolResponse)
	d.mu.Unlock()

	for id, ch := range pending {
		ch <- ToolResponse{ID: id, Success: false, Error: "executor disconnected"}
	}
	return nil
}

func (d *Dispatcher) retire(id string) {
	d.mu.Lock()
	delete(d.pending, id)
	d.mu.Unlock()
}
