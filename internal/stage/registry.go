package stage

import "github.com/rotisserie/eris"

// Factory constructs a stage instance from its config and free-form settings.
// Settings come straight from the run file; factories validate them and return
// an error for anything malformed so bad configuration surfaces at assembly
// time rather than mid-run.
type Factory func(name string, cfg Config, settings map[string]string) (Stage, error)

// Registry maps technique names to stage factories.
type Registry struct {
	factories map[string]Factory
	order     []string // insertion order for deterministic iteration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under the given technique name. Re-registering a
// technique replaces the previous factory.
func (r *Registry) Register(technique string, f Factory) {
	if _, ok := r.factories[technique]; !ok {
		r.order = append(r.order, technique)
	}
	r.factories[technique] = f
}

// Build constructs a stage for the named technique.
func (r *Registry) Build(technique, name string, cfg Config, settings map[string]string) (Stage, error) {
	f, ok := r.factories[technique]
	if !ok {
		return nil, eris.Errorf("stage: unknown technique %q", technique)
	}
	return f(name, cfg, settings)
}

// Techniques returns the registered technique names in registration order.
func (r *Registry) Techniques() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
