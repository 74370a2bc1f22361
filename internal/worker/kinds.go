// Package worker runs agent tasks through a single generic runtime.
// Behavioral differences between worker kinds live entirely in data
// records: system prompt, permitted tools, model complexity, and
// iteration budget. Adding a kind is a manifest edit, not new code.
package worker

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/drover-ai/drover/pkg/models"
)

//go:embed kinds.yaml
var kindsManifest []byte

// Kind is one worker kind record.
type Kind struct {
	Name          string            `yaml:"name"`
	Description   string            `yaml:"description"`
	Complexity    models.Complexity `yaml:"complexity"`
	MaxIterations int               `yaml:"max_iterations"`
	Tools         []string          `yaml:"tools"`
	SystemPrompt  string            `yaml:"system_prompt"`
}

// Permits reports whether the kind may call the named tool.
func (k *Kind) Permits(tool string) bool {
	for _, t := range k.Tools {
		if t == tool {
			return true
		}
	}
	return false
}

// KindSet is the loaded kind catalog.
type KindSet struct {
	kinds map[string]*Kind
	order []string
}

// LoadKinds parses the embedded manifest.
func LoadKinds() (*KindSet, error) {
	return ParseKinds(kindsManifest)
}

// ParseKinds parses a kind manifest. Exposed for configurations that
// ship their own.
func ParseKinds(raw []byte) (*KindSet, error) {
	var manifest struct {
		Kinds []*Kind `yaml:"kinds"`
	}
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("worker: parsing kind manifest: %w", err)
	}
	if len(manifest.Kinds) == 0 {
		return nil, fmt.Errorf("worker: kind manifest is empty")
	}

	set := &KindSet{kinds: make(map[string]*Kind, len(manifest.Kinds))}
	for _, k := range manifest.Kinds {
		if k.Name == "" {
			return nil, fmt.Errorf("worker: kind with empty name")
		}
		if _, dup := set.kinds[k.Name]; dup {
			return nil, fmt.Errorf("worker: duplicate kind %q", k.Name)
		}
		if k.MaxIterations <= 0 {
			k.MaxIterations = 20
		}
		if !k.Complexity.Valid() {
			k.Complexity = models.ComplexityModerate
		}
		set.kinds[k.Name] = k
		set.order = append(set.order, k.Name)
	}
	return set, nil
}

// Get returns the named kind.
func (s *KindSet) Get(name string) (*Kind, error) {
	k, ok := s.kinds[name]
	if !ok {
		return nil, fmt.Errorf("worker: unknown kind %q", name)
	}
	return k, nil
}

// Names returns all kind names in manifest order.
func (s *KindSet) Names() []string {
	return append([]string(nil), s.order...)
}

// CapIterations lowers every kind's iteration budget to max. Budgets
// already under the cap keep their manifest value; max <= 0 is a no-op.
func (s *KindSet) CapIterations(max int) {
	if max <= 0 {
		return
	}
	for _, k := range s.kinds {
		if k.MaxIterations > max {
			k.MaxIterations = max
		}
	}
}
