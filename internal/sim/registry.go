package sim

import (
	"sort"

	"github.com/roach88/simkit/internal/attr"
	"github.com/roach88/simkit/internal/domain"
)

// Instance is a mutable, template-derived system instance with
// scope-qualified identity. Its property set is fixed at instantiation
// to the template's attribute set; values change, keys never do.
//
// The registry exclusively owns all instances. Handlers receive a
// reference for the duration of one invocation only and must re-look-up
// by (scope, name) on the next; references must not be cached across
// calls.
type Instance struct {
	Scope    string
	Name     string
	Template string

	template *domain.Template
	props    map[string]attr.Value
}

// Property returns the current value of an attribute.
// Fails with an UNKNOWN_ATTRIBUTE error for keys outside the template's
// attribute set.
func (in *Instance) Property(key string) (attr.Value, error) {
	v, ok := in.props[key]
	if !ok {
		return nil, newUnknownAttributeError(in.Scope, in.Name, in.Template, key)
	}
	return v, nil
}

// SetProperty mutates an attribute in place. Fails with an
// UNKNOWN_ATTRIBUTE error if key was never part of the template's
// attribute set - no implicit schema growth.
func (in *Instance) SetProperty(key string, value attr.Value) error {
	if !in.template.HasAttribute(key) {
		return newUnknownAttributeError(in.Scope, in.Name, in.Template, key)
	}
	in.props[key] = value
	return nil
}

// Properties returns a copy of the instance's property map.
// The copy keeps snapshots (traces, assertions) from aliasing live state.
func (in *Instance) Properties() map[string]attr.Value {
	out := make(map[string]attr.Value, len(in.props))
	for k, v := range in.props {
		out[k] = v
	}
	return out
}

type instanceKey struct {
	scope string
	name  string
}

// Registry is the mutable table of system instances, keyed by
// (scope, name). It consumes the Domain read-only and confines every
// side effect to the targeted instance; cross-instance effects must go
// through explicit handler logic.
type Registry struct {
	domain    *domain.Domain
	instances map[instanceKey]*Instance
}

// NewRegistry creates an empty registry over a validated domain.
func NewRegistry(d *domain.Domain) *Registry {
	return &Registry{
		domain:    d,
		instances: make(map[instanceKey]*Instance),
	}
}

// Instantiate creates a new instance of a template under a scope.
//
// Properties start as the template defaults with overrides applied on
// top; override keys must be a subset of the template's attribute set.
// All validation happens before the instance is inserted, so a failed
// attempt leaves the registry unchanged.
func (r *Registry) Instantiate(scope, templateName, name string, overrides map[string]attr.Value) (*Instance, error) {
	if !r.domain.HasScope(scope) {
		return nil, newUnknownScopeError(scope)
	}
	tmpl, ok := r.domain.Template(templateName)
	if !ok {
		return nil, newUnknownTemplateError(templateName)
	}
	key := instanceKey{scope: scope, name: name}
	if _, dup := r.instances[key]; dup {
		return nil, newDuplicateInstanceError(scope, name)
	}
	for k := range overrides {
		if !tmpl.HasAttribute(k) {
			return nil, newUnknownAttributeError(scope, name, tmpl.Name, k)
		}
	}

	props := tmpl.Defaults()
	for k, v := range overrides {
		props[k] = v
	}

	in := &Instance{
		Scope:    scope,
		Name:     name,
		Template: tmpl.Name,
		template: tmpl,
		props:    props,
	}
	r.instances[key] = in
	return in, nil
}

// Get returns the live instance under (scope, name).
// Fails with an INSTANCE_NOT_FOUND error if absent.
func (r *Registry) Get(scope, name string) (*Instance, error) {
	in, ok := r.instances[instanceKey{scope: scope, name: name}]
	if !ok {
		return nil, newInstanceNotFoundError(scope, name)
	}
	return in, nil
}

// SetProperty mutates one attribute of the instance under (scope, name).
func (r *Registry) SetProperty(scope, name, key string, value attr.Value) error {
	in, err := r.Get(scope, name)
	if err != nil {
		return err
	}
	return in.SetProperty(key, value)
}

// Delete removes the instance under (scope, name) from the registry.
// Any reference a handler retained becomes invalid; the next Get fails
// with INSTANCE_NOT_FOUND. Deletion is an explicit operation, instances
// are never destroyed implicitly.
func (r *Registry) Delete(scope, name string) error {
	key := instanceKey{scope: scope, name: name}
	if _, ok := r.instances[key]; !ok {
		return newInstanceNotFoundError(scope, name)
	}
	delete(r.instances, key)
	return nil
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	return len(r.instances)
}

// List returns all instances ordered by (scope, name) for deterministic
// iteration and snapshotting.
func (r *Registry) List() []*Instance {
	out := make([]*Instance, 0, len(r.instances))
	for _, in := range r.instances {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scope != out[j].Scope {
			return out[i].Scope < out[j].Scope
		}
		return out[i].Name < out[j].Name
	})
	return out
}
