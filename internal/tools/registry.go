// Package tools defines the tool catalog workers may call, tagged
// with where each tool is allowed to execute, plus the local executor
// that actually runs filesystem and shell tools.
package tools

import (
	"github.com/anthropics/anthropic-sdk-go"
)

// Locality says where a tool's side effects must happen.
type Locality int

const (
	// EitherSide tools touch shared state (memory, documents) and may
	// run wherever the reasoning process lives.
	EitherSide Locality = iota
	// LocalOnly tools touch the requester's filesystem or shell and
	// must execute on the requester's machine.
	LocalOnly
)

// Definition describes one callable tool.
type Definition struct {
	Name        string
	Description string
	Locality    Locality
	Schema      anthropic.ToolInputSchemaParam
}

// Registry is the tool catalog. The built-in locality classification
// can be extended (never relaxed) through configuration.
type Registry struct {
	defs      map[string]Definition
	order     []string
	localOnly map[string]bool
}

// NewRegistry builds the catalog from the built-in definitions.
// extraLocalOnly marks additional tool names as local-only.
func NewRegistry(extraLocalOnly ...string) *Registry {
	r := &Registry{
		defs:      make(map[string]Definition),
		localOnly: make(map[string]bool),
	}

	for _, def := range builtinDefinitions() {
		r.defs[def.Name] = def
		r.order = append(r.order, def.Name)
		if def.Locality == LocalOnly {
			r.localOnly[def.Name] = true
		}
	}
	for _, name := range extraLocalOnly {
		r.localOnly[name] = true
	}

	return r
}

// Lookup returns the definition for a tool name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// IsLocalOnly reports whether the named tool must run on the
// requester's machine. Unknown names are treated as local-only so a
// misconfigured tool never escapes to the wrong side.
func (r *Registry) IsLocalOnly(name string) bool {
	if r.localOnly[name] {
		return true
	}
	_, known := r.defs[name]
	return !known
}

// Names returns all tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Params returns the API tool schemas for the given permitted names,
// preserving registration order. Unknown names are skipped.
func (r *Registry) Params(permitted []string) []anthropic.ToolUnionParam {
	allowed := make(map[string]bool, len(permitted))
	for _, name := range permitted {
		allowed[name] = true
	}

	var params []anthropic.ToolUnionParam
	for _, name := range r.order {
		if !allowed[name] {
			continue
		}
		def := r.defs[name]
		params = append(params, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: def.Schema,
			},
		})
	}
	return params
}
