package planner

import (
	"strings"

	"github.com/drover-ai/drover/pkg/models"
)

var complexMarkers = []string{
	"architect", "design", "migrate", "refactor", "rewrite",
	"distributed", "concurren", "security", "performance",
	"across the codebase", "end to end", "end-to-end",
}

var simpleMarkers = []string{
	"rename", "typo", "read", "show", "list", "print",
	"what is", "where is", "version", "format",
}

// EstimateComplexity gives a coarse complexity estimate for a request
// or step description when the model does not provide one. Keyword
// checks run before the length fallback so short but loaded requests
// still rank correctly.
func EstimateComplexity(text string) models.Complexity {
	lower := strings.ToLower(text)

	for _, marker := range complexMarkers {
		if strings.Contains(lower, marker) {
			return models.ComplexityComplex
		}
	}
	for _, marker := range simpleMarkers {
		if strings.Contains(lower, marker) {
			return models.ComplexitySimple
		}
	}

	words := len(strings.Fields(text))
	switch {
	case words < 8:
		return models.ComplexitySimple
	case words > 60:
		return models.ComplexityComplex
	default:
		return models.ComplexityModerate
	}
}
