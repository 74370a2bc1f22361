// Package graph tracks plan-step dependencies and readiness.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/drover-ai/drover/pkg/models"
)

// ErrCycleDetected indicates a circular dependency among plan steps.
var ErrCycleDetected = errors.New("circular dependency detected")

// StepGraph is a directed acyclic graph of plan steps. Edges point
// from a step to the predecessors it waits on. Step status lives on
// the models.PlanStep itself; the graph owns the transitions.
type StepGraph struct {
	mu sync.RWMutex
	// nodes maps step ID to the step itself.
	nodes map[string]*models.PlanStep
	// edges maps step ID to the IDs of its predecessors.
	edges map[string][]string
}

// New creates an empty step graph.
func New() *StepGraph {
	return &StepGraph{
		nodes: make(map[string]*models.PlanStep),
		edges: make(map[string][]string),
	}
}

// Build registers the steps and their predecessor edges. It fails if a
// step references an unknown predecessor or the edges form a cycle.
// Steps with no status are initialized to pending.
func (g *StepGraph) Build(steps []*models.PlanStep) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, step := range steps {
		if _, dup := g.nodes[step.ID]; dup {
			return fmt.Errorf("duplicate step ID %q", step.ID)
		}
		if step.Status == "" {
			step.Status = models.StepPending
		}
		g.nodes[step.ID] = step
		g.edges[step.ID] = nil
	}

	for _, step := range steps {
		for _, predID := range step.Predecessors {
			if _, exists := g.nodes[predID]; !exists {
				return fmt.Errorf("step %s waits on unknown step %s", step.ID, predID)
			}
			g.edges[step.ID] = append(g.edges[step.ID], predID)
		}
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}
	return nil
}

// HasCycle reports whether the graph contains a circular dependency.
func (g *StepGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked runs DFS coloring to find back edges. Assumes the
// lock is held. Colors: 0 white, 1 gray, 2 black.
func (g *StepGraph) hasCycleLocked() bool {
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1

		for _, predID := range g.edges[id] {
			switch colors[predID] {
			case 1:
				return true
			case 0:
				if visit(predID) {
					return true
				}
			}
		}

		colors[id] = 2
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}

// Ready returns the IDs of every pending step whose predecessors have
// all completed. The result is sorted for deterministic scheduling.
func (g *StepGraph) Ready() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for id, step := range g.nodes {
		if step.Status != models.StepPending {
			continue
		}

		satisfied := true
		for _, predID := range g.edges[id] {
			if g.nodes[predID].Status != models.StepDone {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, id)
		}
	}

	sort.Strings(ready)
	return ready
}

// MarkRunning transitions a step to running.
func (g *StepGraph) MarkRunning(stepID string) {
	g.setStatus(stepID, models.StepRunning)
}

// MarkDone transitions a step to done and records its output.
func (g *StepGraph) MarkDone(stepID, output string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if step, ok := g.nodes[stepID]; ok {
		step.Status = models.StepDone
		step.Output = output
	}
}

// MarkFailed transitions a step to failed and blocks every step that
// transitively depends on it. Blocked steps never become ready.
func (g *StepGraph) MarkFailed(stepID, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	step, ok := g.nodes[stepID]
	if !ok {
		return
	}
	step.Status = models.StepFailed
	step.Error = reason

	for _, depID := range g.dependentsLocked(stepID) {
		g.blockSubtreeLocked(depID, stepID)
	}
}

// blockSubtreeLocked marks a step and its transitive dependents blocked.
func (g *StepGraph) blockSubtreeLocked(stepID, failedID string) {
	step, ok := g.nodes[stepID]
	if !ok || step.Status.Terminal() {
		return
	}
	step.Status = models.StepBlocked
	step.Error = fmt.Sprintf("predecessor %s failed", failedID)

	for _, depID := range g.dependentsLocked(stepID) {
		g.blockSubtreeLocked(depID, failedID)
	}
}

// Step returns the step for a given ID, or nil if not found.
func (g *StepGraph) Step(stepID string) *models.PlanStep {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[stepID]
}

// Size returns the number of steps in the graph.
func (g *StepGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Settled returns true once every step is in a terminal status.
func (g *StepGraph) Settled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, step := range g.nodes {
		if !step.Status.Terminal() {
			return false
		}
	}
	return true
}

// Predecessors returns the IDs of steps the given step waits on.
func (g *StepGraph) Predecessors(stepID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[stepID]
}

// Dependents returns the IDs of steps that wait on the given step.
func (g *StepGraph) Dependents(stepID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dependentsLocked(stepID)
}

func (g *StepGraph) dependentsLocked(stepID string) []string {
	var dependents []string
	for id, preds := range g.edges {
		for _, predID := range preds {
			if predID == stepID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}

func (g *StepGraph) setStatus(stepID string, status models.StepStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if step, ok := g.nodes[stepID]; ok {
		step.Status = status
	}
}
