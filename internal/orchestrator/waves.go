package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/drover-ai/drover/internal/graph"
	"github.com/drover-ai/drover/internal/session"
	"github.com/drover-ai/drover/pkg/models"
)

// runPlanned decomposes the request, executes the step graph in waves,
// and supervises whatever failed.
func (o *Orchestrator) runPlanned(ctx context.Context, sess *session.Session, request string) (string, error) {
	plan, err := o.planner.Decompose(ctx, request)
	if err != nil {
		return "", stageErr("planning", err)
	}
	o.log.Info().Str("session", sess.ID).Str("plan", plan.ID).Int("steps", len(plan.Steps)).Msg("plan created")
	o.emitter.Emit(Event{
		Type:      EventPlanCreated,
		SessionID: sess.ID,
		Message:   fmt.Sprintf("%d steps", len(plan.Steps)),
	})

	g := graph.New()
	if err := g.Build(plan.Steps); err != nil {
		return "", stageErr("planning", err)
	}

	if err := o.executeWaves(ctx, sess, plan, g); err != nil {
		return "", err
	}

	var repairs []repairItem
	for _, step := range plan.Steps {
		if step.Status != models.StepFailed {
			continue
		}
		step := step
		repairs = append(repairs, repairItem{
			kind:     step.Kind,
			describe: fmt.Sprintf("step %q failed: %s", step.Title, step.Error),
			apply: func(out string) {
				step.Status = models.StepDone
				step.Output = out
				step.Error = ""
			},
		})
	}
	if err := o.supervise(ctx, sess, request, repairs); err != nil {
		return "", err
	}
	return summarize(plan), nil
}

// executeWaves runs the graph frontier until every step settles. All
// steps of a wave run concurrently, each holding its own regulator
// token; the wave ends at a join barrier before the next frontier is
// computed. A failed step never aborts independent branches.
func (o *Orchestrator) executeWaves(ctx context.Context, sess *session.Session, plan *models.Plan, g *graph.StepGraph) error {
	wave := 0
	for !g.Settled() {
		if ctx.Err() != nil {
			return stageErr("execution", ctx.Err())
		}
		if o.stopRequested() {
			return stageErr("execution", ErrStopped)
		}

		ready := g.Ready()
		if len(ready) == 0 {
			// Remaining steps are unreachable; Settled should have
			// caught this, so treat it as settled.
			break
		}
		wave++

		var wg sync.WaitGroup
		for _, id := range ready {
			g.MarkRunning(id)
			wg.Add(1)
			go func(stepID string) {
				defer wg.Done()
				o.runStep(ctx, sess, g, stepID)
			}(id)
		}
		wg.Wait()

		o.emitter.Emit(Event{
			Type:      EventWaveDone,
			SessionID: sess.ID,
			Message:   fmt.Sprintf("wave %d settled", wave),
		})
	}
	return nil
}

// runStep executes one plan step behind the regulator. Failures mark
// the step failed and let the graph block its dependents.
func (o *Orchestrator) runStep(ctx context.Context, sess *session.Session, g *graph.StepGraph, stepID string) {
	step := g.Step(stepID)
	if step == nil {
		return
	}

	o.emitter.Emit(Event{
		Type:      EventStepStarted,
		SessionID: sess.ID,
		StepID:    step.ID,
		StepTitle: step.Title,
	})

	res, err := o.runWorker(ctx, sess, step.Kind, stepInput(g, step))
	switch {
	case err != nil:
		o.log.Warn().Str("step", step.ID).Err(err).Msg("step failed")
		g.MarkFailed(step.ID, err.Error())
		o.emitter.Emit(Event{Type: EventStepFailed, SessionID: sess.ID, StepID: step.ID, StepTitle: step.Title, Err: err})
	case !res.Success:
		o.log.Warn().Str("step", step.ID).Str("reason", res.Err).Msg("step failed")
		g.MarkFailed(step.ID, res.Err)
		o.emitter.Emit(Event{Type: EventStepFailed, SessionID: sess.ID, StepID: step.ID, StepTitle: step.Title, Message: res.Err})
	default:
		g.MarkDone(step.ID, res.Output)
		o.emitter.Emit(Event{Type: EventStepDone, SessionID: sess.ID, StepID: step.ID, StepTitle: step.Title})
	}
}

// stepInput frames a step task with the outputs of its predecessors.
func stepInput(g *graph.StepGraph, step *models.PlanStep) string {
	var b strings.Builder
	b.WriteString(step.Title)
	if step.Description != "" {
		b.WriteString("\n" + step.Description)
	}
	for _, predID := range g.Predecessors(step.ID) {
		pred := g.Step(predID)
		if pred == nil || pred.Output == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("\n\nResult of %q:\n%s", pred.Title, pred.Output))
	}
	return b.String()
}

// summarize composes the terminal answer from leaf step outputs, steps
// nothing else depends on. Steps that never completed are reported as
// failures rather than silently omitted.
func summarize(plan *models.Plan) string {
	hasDependent := make(map[string]bool)
	for _, s := range plan.Steps {
		for _, p := range s.Predecessors {
			hasDependent[p] = true
		}
	}

	var parts []string
	for _, s := range plan.Steps {
		if hasDependent[s.ID] || s.Status != models.StepDone || s.Output == "" {
			continue
		}
		parts = append(parts, s.Output)
	}
	if len(parts) == 0 {
		for _, s := range plan.Steps {
			if s.Status == models.StepDone && s.Output != "" {
				parts = append(parts, s.Output)
			}
		}
	}

	var incomplete []string
	for _, s := range plan.Steps {
		switch s.Status {
		case models.StepFailed:
			incomplete = append(incomplete, fmt.Sprintf("%s: %s", s.Title, s.Error))
		case models.StepBlocked:
			incomplete = append(incomplete, s.Title+": failed, a step it depends on did not complete")
		}
	}

	summary := strings.Join(parts, "\n\n")
	if len(incomplete) > 0 {
		summary += "\n\nFailed steps:\n- " + strings.Join(incomplete, "\n- ")
	}
	return summary
}
