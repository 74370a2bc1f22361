// Package orchestrator routes user requests to workers and drives
// planned execution with bounded supervision.
package orchestrator

import (
	"regexp"
	"strings"
)

// Intent is the routing decision for one request.
type Intent string

const (
	IntentExplore  Intent = "explore"
	IntentExecute  Intent = "execute"
	IntentPlan     Intent = "plan"
	IntentResearch Intent = "research"
	IntentAnswer   Intent = "answer"
)

// KindFor maps an intent to the worker kind that serves it. Plan has
// no single kind; its steps carry their own.
func (i Intent) KindFor() string {
	switch i {
	case IntentExplore:
		return "explorer"
	case IntentExecute:
		return "executor"
	case IntentResearch:
		return "researcher"
	default:
		return "direct"
	}
}

// Resolution is one resolver's answer plus how it got there.
type Resolution struct {
	Intent Intent
	// Request is the text with any directive prefix stripped.
	Request string
	// Source names the resolver that decided: directive, keyword, or
	// default.
	Source string
}

// directives maps a leading /word to an intent.
var directives = map[string]Intent{
	"explore":  IntentExplore,
	"execute":  IntentExecute,
	"run":      IntentExecute,
	"plan":     IntentPlan,
	"research": IntentResearch,
	"answer":   IntentAnswer,
}

// resolveDirective handles an explicit /intent prefix from the caller.
// Directives outrank every heuristic.
func resolveDirective(request string) (Resolution, bool) {
	trimmed := strings.TrimSpace(request)
	if !strings.HasPrefix(trimmed, "/") {
		return Resolution{}, false
	}
	word, rest, _ := strings.Cut(trimmed[1:], " ")
	intent, ok := directives[strings.ToLower(word)]
	if !ok {
		return Resolution{}, false
	}
	return Resolution{
		Intent:  intent,
		Request: strings.TrimSpace(rest),
		Source:  "directive",
	}, true
}

// Keyword groups checked in priority order. Research runs first so
// "documentation for pytest" does not trip the execution keywords.
var researchKeywords = []string{
	"how do i ", "how to ", "what is ", "explain ",
	"documentation", "docs for ", "tutorial ",
	"research ", "look up ",
}

var planKeywords = []string{
	"implement ", "build a ", "create a system",
	"refactor ", "redesign ", "architect ",
}

var executeKeywords = []string{
	"run ", "execute ", "install ", "build ", "compile ",
	"test ", "npm ", "pip ", "cargo ",
	"edit ", "modify ", "change ", "update ", "fix ",
	"add to ", "remove from ", "delete from ",
	"save to file", "save file", "new file", "touch ", "echo ",
}

var exploreKeywords = []string{
	"read ", "show ", "display ", "what's in ", "what is in ",
	"find ", "search ", "look for ", "where is ",
	"list ", "ls ", "cat ",
}

var (
	createFilePattern = regexp.MustCompile(`\b(create|write|make|add)\s+(?:a\s+)?(?:\w+\s+)?(file|script)\b`)
	fileExtPattern    = regexp.MustCompile(`\b\w+\.(py|js|ts|sh|bash|rb|go|rs|java|c|cpp|h|txt|json|yaml|yml|md|html|css)\b`)
	writeVerbs        = []string{"write", "create", "make", "add", "generate"}
)

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// resolveKeywords classifies by pattern heuristics. Ties resolve to the
// earliest-matching group.
func resolveKeywords(request string) (Resolution, bool) {
	lower := strings.ToLower(request)

	var intent Intent
	switch {
	case containsAny(lower, researchKeywords):
		intent = IntentResearch
	case containsAny(lower, planKeywords):
		intent = IntentPlan
	case createFilePattern.MatchString(lower):
		intent = IntentExecute
	case fileExtPattern.MatchString(lower) && containsAny(lower, writeVerbs):
		intent = IntentExecute
	case containsAny(lower, executeKeywords):
		intent = IntentExecute
	case containsAny(lower, exploreKeywords):
		intent = IntentExplore
	default:
		return Resolution{}, false
	}

	return Resolution{Intent: intent, Request: request, Source: "keyword"}, true
}

// ResolveIntent runs the resolver chain: explicit directive, then
// keyword heuristics, then a direct-answer default.
func ResolveIntent(request string) Resolution {
	if res, ok := resolveDirective(request); ok {
		return res
	}
	if res, ok := resolveKeywords(request); ok {
		return res
	}
	return Resolution{Intent: IntentAnswer, Request: request, Source: "default"}
}
