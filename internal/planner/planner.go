// Package planner turns a user request into a validated plan of
// dependent steps, each assigned to a worker kind.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"

	"github.com/drover-ai/drover/internal/graph"
	"github.com/drover-ai/drover/internal/inference"
	"github.com/drover-ai/drover/pkg/models"
)

// ErrInvalidPlan covers every structural defect in a produced plan:
// unparseable output, unknown step references or worker kinds, cycles.
var ErrInvalidPlan = errors.New("invalid plan")

// plannedStep is the JSON structure the model returns for one step.
type plannedStep struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Kind        string   `json:"kind"`
	DependsOn   []string `json:"depends_on"`
	Complexity  string   `json:"complexity"`
}

// Planner decomposes requests into plans.
type Planner struct {
	llm   inference.Completer
	model anthropic.Model
	// kinds is the set of worker kind names steps may be assigned to.
	kinds map[string]bool
}

// New creates a planner using the given model and permitted worker kinds.
func New(llm inference.Completer, model anthropic.Model, kinds []string) *Planner {
	allowed := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		allowed[k] = true
	}
	return &Planner{llm: llm, model: model, kinds: allowed}
}

// Decompose produces a validated plan for the request. Every returned
// plan has at least one step, acyclic dependencies, and only known
// worker kinds.
func (p *Planner) Decompose(ctx context.Context, request string) (*models.Plan, error) {
	resp, err := p.llm.Complete(ctx, inference.Request{
		Model:     p.model,
		System:    planningSystemPrompt,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(buildPlanningPrompt(request, p.kindNames())))},
		MaxTokens: 4096,
	})
	if err != nil {
		return nil, fmt.Errorf("planning request: %w", err)
	}

	steps, err := p.ParseResponse(resp.Text)
	if err != nil {
		return nil, err
	}

	plan := &models.Plan{
		ID:      uuid.NewString(),
		Request: request,
		Steps:   steps,
	}

	if err := Validate(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// ParseResponse extracts the JSON step array from model output and
// normalizes it into plan steps with sequential ids.
func (p *Planner) ParseResponse(response string) ([]*models.PlanStep, error) {
	jsonStart := strings.Index(response, "[")
	jsonEnd := strings.LastIndex(response, "]")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		return nil, fmt.Errorf("%w: no JSON array found in response", ErrInvalidPlan)
	}

	var planned []plannedStep
	if err := json.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), &planned); err != nil {
		return nil, fmt.Errorf("%w: unmarshal steps: %v", ErrInvalidPlan, err)
	}
	if len(planned) == 0 {
		return nil, fmt.Errorf("%w: empty step list", ErrInvalidPlan)
	}

	titleToID := make(map[string]string, len(planned))
	steps := make([]*models.PlanStep, len(planned))

	for i, ps := range planned {
		id := fmt.Sprintf("s%d", i+1)
		titleToID[ps.Title] = id

		kind := ps.Kind
		if !p.kinds[kind] {
			kind = "executor"
		}

		complexity := models.Complexity(ps.Complexity)
		if !complexity.Valid() {
			complexity = EstimateComplexity(ps.Description)
		}

		steps[i] = &models.PlanStep{
			ID:          id,
			Title:       ps.Title,
			Description: ps.Description,
			Kind:        kind,
			Complexity:  complexity,
			Status:      models.StepPending,
		}
	}

	for i, ps := range planned {
		for _, depTitle := range ps.DependsOn {
			depID, ok := titleToID[depTitle]
			if !ok {
				return nil, fmt.Errorf("%w: step %q depends on unknown step %q", ErrInvalidPlan, ps.Title, depTitle)
			}
			steps[i].Predecessors = append(steps[i].Predecessors, depID)
		}
	}

	return steps, nil
}

// Validate checks plan structure: non-empty, known references, no
// cycles. It builds a scratch graph for the cycle check.
func Validate(plan *models.Plan) error {
	if len(plan.Steps) == 0 {
		return fmt.Errorf("%w: plan has no steps", ErrInvalidPlan)
	}

	scratch := make([]*models.PlanStep, len(plan.Steps))
	for i, s := range plan.Steps {
		scratch[i] = &models.PlanStep{ID: s.ID, Predecessors: s.Predecessors}
	}

	if err := graph.New().Build(scratch); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	return nil
}

func (p *Planner) kindNames() []string {
	names := make([]string, 0, len(p.kinds))
	for k := range p.kinds {
		names = append(names, k)
	}
	return names
}
