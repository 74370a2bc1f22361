package planner

import (
	"fmt"
	"sort"
	"strings"
)

const planningSystemPrompt = `You are a planning assistant. You break user requests into the smallest set of concrete steps that can be delegated to specialized workers. You respond with JSON only.`

// planningPrompt is the template for step decomposition.
const planningPrompt = `Break this user request into steps sized for a single worker each.

User request:
%s

Available worker kinds: %s

Return ONLY a JSON array of steps with this exact structure (no other text):
[
  {
    "title": "Short step title",
    "description": "Detailed instructions for the worker",
    "kind": "one of the available worker kinds",
    "depends_on": ["title of prerequisite step"],
    "complexity": "simple|moderate|complex"
  }
]

Guidelines:
- Steps should be as independent as possible so they can run in parallel
- Only add depends_on entries when one step truly needs another's result first
- Use empty array [] for depends_on if there are no prerequisites
- Prefer few large steps over many trivial ones
- complexity reflects how much reasoning the step needs, not how long it runs`

func buildPlanningPrompt(request string, kinds []string) string {
	sort.Strings(kinds)
	return fmt.Sprintf(planningPrompt, request, strings.Join(kinds, ", "))
}
