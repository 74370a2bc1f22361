package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/drover-ai/drover/internal/inference"
	"github.com/drover-ai/drover/internal/logging"
	"github.com/drover-ai/drover/internal/planner"
	"github.com/drover-ai/drover/internal/regulator"
	"github.com/drover-ai/drover/internal/session"
	"github.com/drover-ai/drover/internal/worker"
	"github.com/drover-ai/drover/pkg/models"
)

// ErrSupervisionLimit marks a request whose repair budget ran out.
var ErrSupervisionLimit = errors.New("supervision rounds exhausted")

// ErrStopped marks a request interrupted by an external stop signal.
var ErrStopped = errors.New("stopped by signal")

// StageError names the stage a terminal failure came from: routing,
// planning, execution, or supervision.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// Config wires an orchestrator.
type Config struct {
	Regulator *regulator.Regulator
	Planner   *planner.Planner
	Runtime   *worker.Runtime
	// ModelFor picks a model id for a complexity level.
	ModelFor func(models.Complexity) string
	// MaxRounds is the shared repair budget per request.
	MaxRounds int
	// TaskTimeout bounds a single worker run.
	TaskTimeout time.Duration
	EventBuffer int
	// Control is optional; when set, stop and pause signals are
	// honored between waves and supervision rounds.
	Control *Controller
	// Recall surfaces stored memory relevant to a request. When set,
	// its results are folded into the first turn of each session. The
	// subject is the session's memory key.
	Recall func(ctx context.Context, subject, query string) string
	// Compactor summarizes older history once a session outgrows
	// CompactAfter messages. Optional; without it history grows
	// unbounded.
	Compactor    inference.Completer
	CompactAfter int
}

// Orchestrator is the top level request router. A request moves
// through routing, then either a direct worker run or planned wave
// execution, then bounded supervision, and always ends in a terminal
// result.
type Orchestrator struct {
	reg          *regulator.Regulator
	planner      *planner.Planner
	runtime      *worker.Runtime
	modelFor     func(models.Complexity) string
	maxRounds    int
	taskTimeout  time.Duration
	emitter      *Emitter
	control      *Controller
	recall       func(ctx context.Context, subject, query string) string
	compactor    inference.Completer
	compactAfter int
	log          zerolog.Logger
}

// New builds an orchestrator from its parts.
func New(cfg Config) *Orchestrator {
	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 3
	}
	modelFor := cfg.ModelFor
	if modelFor == nil {
		modelFor = func(models.Complexity) string { return "" }
	}
	compactAfter := cfg.CompactAfter
	if compactAfter <= 0 {
		compactAfter = 40
	}
	return &Orchestrator{
		reg:          cfg.Regulator,
		planner:      cfg.Planner,
		runtime:      cfg.Runtime,
		modelFor:     modelFor,
		maxRounds:    maxRounds,
		taskTimeout:  cfg.TaskTimeout,
		emitter:      NewEmitter(cfg.EventBuffer),
		control:      cfg.Control,
		recall:       cfg.Recall,
		compactor:    cfg.Compactor,
		compactAfter: compactAfter,
		log:          logging.For("orchestrator"),
	}
}

// Events exposes the progress stream for a CLI or test subscriber.
func (o *Orchestrator) Events() <-chan Event {
	return o.emitter.Events()
}

// HandleChat runs one user request to a terminal result. It satisfies
// the channel server's chat handler contract.
func (o *Orchestrator) HandleChat(ctx context.Context, sess *session.Session, content string) (string, error) {
	firstTurn := sess.Len() == 0
	sess.Append(models.UserMessage(content))

	res := ResolveIntent(content)
	if firstTurn && o.recall != nil {
		if recalled := o.recall(ctx, sess.MemoryKey, res.Request); recalled != "" {
			res.Request = "Notes from previous sessions:\n" + recalled + "\n\n" + res.Request
		}
	}
	o.log.Info().Str("session", sess.ID).Str("intent", string(res.Intent)).Str("source", res.Source).Msg("request routed")
	o.emitter.Emit(Event{
		Type:      EventRouted,
		SessionID: sess.ID,
		Intent:    res.Intent,
		Message:   res.Source,
	})

	var output string
	var err error
	if res.Intent == IntentPlan {
		output, err = o.runPlanned(ctx, sess, res.Request)
	} else {
		output, err = o.runDirect(ctx, sess, res)
	}

	o.emitter.Emit(Event{Type: EventDone, SessionID: sess.ID, Intent: res.Intent, Err: err})
	if err != nil {
		return "", err
	}
	sess.Append(models.AssistantMessage(output))
	o.maybeCompact(ctx, sess)
	return output, nil
}

// compactKeep is how many recent messages survive a compaction pass.
const compactKeep = 6

// maybeCompact folds older history into a one message summary once the
// session outgrows the compaction threshold. Failures leave the
// history untouched; a long session beats a lost one.
func (o *Orchestrator) maybeCompact(ctx context.Context, sess *session.Session) {
	if o.compactor == nil || sess.Len() <= o.compactAfter {
		return
	}

	history := sess.History()
	if len(history) <= compactKeep {
		return
	}
	older := history[:len(history)-compactKeep]
	var b strings.Builder
	for _, msg := range older {
		if msg.Content == "" {
			continue
		}
		b.WriteString(string(msg.Role) + ": " + msg.Content + "\n")
	}

	resp, err := o.compactor.Complete(ctx, inference.Request{
		Model:  anthropic.Model(o.modelFor(models.ComplexitySimple)),
		System: "Summarize the conversation below in a few sentences. Keep decisions, file paths, and unresolved items.",
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(b.String())),
		},
		MaxTokens: 1024,
	})
	if err != nil || resp.Text == "" {
		o.log.Warn().Err(err).Str("session", sess.ID).Msg("history compaction failed")
		return
	}

	sess.Compact(resp.Text, compactKeep)
	o.log.Debug().Str("session", sess.ID).Int("dropped", len(older)).Msg("history compacted")
}

// runDirect acquires one slot, runs one worker, and supervises the
// result.
func (o *Orchestrator) runDirect(ctx context.Context, sess *session.Session, res Resolution) (string, error) {
	kind := res.Intent.KindFor()
	input := buildTaskInput(sess, res.Request)

	workerRes, err := o.runWorker(ctx, sess, kind, input)
	if err != nil {
		return "", stageErr("execution", err)
	}
	if workerRes.Success {
		return workerRes.Output, nil
	}

	var output string
	repairs := []repairItem{{
		kind:     "executor",
		describe: fmt.Sprintf("%s worker failed: %s", kind, workerRes.Err),
		apply:    func(out string) { output = out },
	}}
	if err := o.supervise(ctx, sess, res.Request, repairs); err != nil {
		return "", err
	}
	return output, nil
}

// runWorker does one regulated worker run.
func (o *Orchestrator) runWorker(ctx context.Context, sess *session.Session, kind, input string) (*worker.Result, error) {
	token, err := o.reg.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer token.Release()

	k, err := o.runtime.Kinds().Get(kind)
	if err != nil {
		return nil, err
	}

	task := models.AgentTask{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Kind:      kind,
		Input:     input,
		Model:     o.modelFor(k.Complexity),
		Timeout:   o.taskTimeout,
	}
	// Tool routing below the runtime finds the session through the
	// context.
	return o.runtime.Run(session.NewContext(ctx, sess), task)
}

// repairItem is one targeted follow-up a supervision round may spend
// its budget on.
type repairItem struct {
	kind     string
	describe string
	apply    func(output string)
}

// supervise spends up to maxRounds follow-up runs repairing failures.
// The budget is shared across all items of one request; a round that
// fails retries the same item next round until the budget is gone.
func (o *Orchestrator) supervise(ctx context.Context, sess *session.Session, request string, repairs []repairItem) error {
	for round := 1; len(repairs) > 0; round++ {
		if round > o.maxRounds {
			return stageErr("supervision",
				fmt.Errorf("%w after %d rounds: %s", ErrSupervisionLimit, o.maxRounds, repairs[0].describe))
		}
		if o.stopRequested() {
			return stageErr("supervision", ErrStopped)
		}

		item := repairs[0]
		o.log.Info().Str("session", sess.ID).Int("round", round).Str("failure", item.describe).Msg("supervision round")
		o.emitter.Emit(Event{
			Type:      EventSupervision,
			SessionID: sess.ID,
			Message:   fmt.Sprintf("round %d/%d: %s", round, o.maxRounds, item.describe),
		})

		input := followUpInput(sess, request, item.describe)
		res, err := o.runWorker(ctx, sess, item.kind, input)
		if err != nil {
			if ctx.Err() != nil {
				return stageErr("supervision", err)
			}
			continue
		}
		if !res.Success {
			continue
		}
		item.apply(res.Output)
		repairs = repairs[1:]
	}
	return nil
}

func (o *Orchestrator) stopRequested() bool {
	return o.control != nil && o.control.ShouldStop()
}

// buildTaskInput prepends recent conversation context so follow-up
// requests in the same session see what came before.
func buildTaskInput(sess *session.Session, request string) string {
	recent := historyContext(sess, 6)
	if recent == "" {
		return request
	}
	return "Conversation so far:\n" + recent + "\nCurrent request: " + request
}

// followUpInput frames a repair task around the specific failure.
func followUpInput(sess *session.Session, request, failure string) string {
	var b strings.Builder
	b.WriteString("A previous attempt at this request did not finish.\n")
	b.WriteString("Original request: " + request + "\n")
	b.WriteString("What went wrong: " + failure + "\n")
	if recent := historyContext(sess, 6); recent != "" {
		b.WriteString("Conversation so far:\n" + recent)
	}
	b.WriteString("Complete the request, working around the failure.")
	return b.String()
}

// historyContext renders the tail of the session history, skipping the
// in-flight user turn.
func historyContext(sess *session.Session, limit int) string {
	history := sess.History()
	if len(history) <= 1 {
		return ""
	}
	history = history[:len(history)-1]
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	var b strings.Builder
	for _, msg := range history {
		if msg.Content == "" {
			continue
		}
		b.WriteString(string(msg.Role) + ": " + msg.Content + "\n")
	}
	return b.String()
}
