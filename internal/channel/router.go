package channel

import (
	"context"
	"time"

	"github.com/drover-ai/drover/internal/memory"
	"github.com/drover-ai/drover/internal/session"
	"github.com/drover-ai/drover/internal/tools"
	"github.com/drover-ai/drover/pkg/models"
)

// Router decides where each tool call executes: local-only tools run
// on the requester's machine (directly in single-machine mode, over
// the channel when a remote executor is attached), memory tools run
// next to the store, and everything unknown is refused.
type Router struct {
	registry *tools.Registry
	// local is the in-process executor. Nil on a server whose clients
	// hold the filesystem.
	local *tools.Executor
	// memoryFor builds the memory handler for a session's memory key.
	// Nil when no memory store is configured.
	memoryFor func(subject string) *memory.ToolHandler
	sess      *session.Session
	timeout   time.Duration
}

// RouterConfig wires a Router.
type RouterConfig struct {
	Registry  *tools.Registry
	Local     *tools.Executor
	MemoryFor func(subject string) *memory.ToolHandler
	Session   *session.Session
	// InvokeTimeout bounds one remote round trip.
	InvokeTimeout time.Duration
}

// NewRouter creates a router. With Session set it serves exactly that
// session; left nil, each call's session is taken from the context,
// which lets one router serve every session of a server process.
func NewRouter(cfg RouterConfig) *Router {
	timeout := cfg.InvokeTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Router{
		registry:  cfg.Registry,
		local:     cfg.Local,
		memoryFor: cfg.MemoryFor,
		sess:      cfg.Session,
		timeout:   timeout,
	}
}

// Route executes one tool call on the correct side and always returns
// a result carrying the call's id.
func (r *Router) Route(ctx context.Context, call models.ToolCall) models.ToolResult {
	sess := r.sess
	if sess == nil {
		sess, _ = session.FromContext(ctx)
	}

	if r.memoryFor != nil && sess != nil {
		if h := r.memoryFor(sess.MemoryKey); h.Handles(call.Name) {
			return h.Execute(ctx, call)
		}
	}

	if r.registry.IsLocalOnly(call.Name) {
		if sess != nil {
			if transport := sess.Transport(); transport != nil {
				return transport.Invoke(ctx, call, r.timeout)
			}
		}
		if r.local != nil {
			return r.local.Execute(ctx, call)
		}
		return models.FailedResult(call.ID, "no local executor available for tool "+call.Name)
	}

	// Either-side tools without a dedicated handler run in-process
	// when possible.
	if r.local != nil {
		return r.local.Execute(ctx, call)
	}
	return models.FailedResult(call.ID, "no executor available for tool "+call.Name)
}
