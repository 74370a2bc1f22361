package models

import "fmt"

// StepStatus tracks a plan step through its lifecycle.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
	// StepBlocked marks steps whose predecessors failed and which will
	// therefore never run.
	StepBlocked StepStatus = "blocked"
)

// Valid returns true if the status is one of the known values.
func (s StepStatus) Valid() bool {
	switch s {
	case StepPending, StepRunning, StepDone, StepFailed, StepBlocked:
		return true
	}
	return false
}

// Terminal returns true if a step in this status will never run again.
func (s StepStatus) Terminal() bool {
	return s == StepDone || s == StepFailed || s == StepBlocked
}

// Complexity is a coarse estimate of how much reasoning a request or
// step needs. It selects the model used for the work.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Valid returns true if the complexity is one of the known values.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex:
		return true
	}
	return false
}

// PlanStep is one unit of work inside a plan. Predecessors lists the
// IDs of steps that must reach StepDone before this one may start.
type PlanStep struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Kind         string     `json:"kind"`
	Predecessors []string   `json:"predecessors,omitempty"`
	Complexity   Complexity `json:"complexity,omitempty"`
	Status       StepStatus `json:"status"`
	Output       string     `json:"output,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Plan is an ordered decomposition of a request into dependent steps.
type Plan struct {
	ID       string      `json:"id"`
	Request  string      `json:"request"`
	Analysis string      `json:"analysis,omitempty"`
	Steps    []*PlanStep `json:"steps"`
}

// Step returns the step with the given ID, or an error if no such step
// exists in the plan.
func (p *Plan) Step(id string) (*PlanStep, error) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("plan %s has no step %q", p.ID, id)
}

// Failed returns the steps that ended in StepFailed.
func (p *Plan) Failed() []*PlanStep {
	var out []*PlanStep
	for _, s := range p.Steps {
		if s.Status == StepFailed {
			out = append(out, s)
		}
	}
	return out
}

// Settled returns true once every step is in a terminal status.
func (p *Plan) Settled() bool {
	for _, s := range p.Steps {
		if !s.Status.Terminal() {
			return false
		}
	}
	return true
}
