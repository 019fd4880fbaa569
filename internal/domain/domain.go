// Package domain holds the static description a simulation runs over:
// a set of named scopes and a set of system templates with attribute
// defaults. A Domain is immutable after construction; the engine's
// instance registry consumes it read-only.
//
// Domains are validated eagerly. A malformed description fails at load
// with a ValidationError rather than surfacing later during
// instantiation.
package domain

import (
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/simkit/internal/attr"
)

// AttributeSpec declares one attribute of a template: its name and the
// default value instances start with.
type AttributeSpec struct {
	Name    string
	Default attr.Value
}

// Template describes a system archetype. Attribute order is declaration
// order and is preserved for deterministic instantiation and output.
type Template struct {
	Name       string
	Attributes []AttributeSpec

	index map[string]int // attribute name -> position
}

// Attribute returns the spec for the named attribute.
func (t *Template) Attribute(name string) (AttributeSpec, bool) {
	i, ok := t.index[name]
	if !ok {
		return AttributeSpec{}, false
	}
	return t.Attributes[i], true
}

// HasAttribute reports whether name is part of the template's attribute set.
func (t *Template) HasAttribute(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Defaults returns a fresh property map seeded from the template defaults.
// Callers own the returned map.
func (t *Template) Defaults() map[string]attr.Value {
	props := make(map[string]attr.Value, len(t.Attributes))
	for _, a := range t.Attributes {
		props[a.Name] = a.Default
	}
	return props
}

// Domain is the immutable description of scopes and templates.
type Domain struct {
	Name      string
	Scopes    []string
	Templates []Template

	scopeSet  map[string]struct{}
	templates map[string]*Template
}

// ValidationError reports a malformed or inconsistent domain description.
// Path identifies the offending element (e.g. "templates/Greenhouse").
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("invalid domain: %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("invalid domain: %s", e.Message)
}

// New constructs a validated Domain. Identifiers are NFC-normalized so
// visually identical names cannot alias distinct scopes or templates.
//
// Validation is fail-fast: the first problem found is returned.
func New(name string, scopes []string, templates []Template) (*Domain, error) {
	d := &Domain{
		Name:      norm.NFC.String(name),
		Scopes:    make([]string, 0, len(scopes)),
		Templates: make([]Template, 0, len(templates)),
		scopeSet:  make(map[string]struct{}, len(scopes)),
		templates: make(map[string]*Template, len(templates)),
	}

	for _, s := range scopes {
		s = norm.NFC.String(s)
		if s == "" {
			return nil, &ValidationError{Path: "scopes", Message: "scope name must not be empty"}
		}
		if _, dup := d.scopeSet[s]; dup {
			return nil, &ValidationError{Path: "scopes", Message: fmt.Sprintf("duplicate scope %q", s)}
		}
		d.scopeSet[s] = struct{}{}
		d.Scopes = append(d.Scopes, s)
	}

	for _, t := range templates {
		tmpl := Template{
			Name:       norm.NFC.String(t.Name),
			Attributes: make([]AttributeSpec, 0, len(t.Attributes)),
			index:      make(map[string]int, len(t.Attributes)),
		}
		if tmpl.Name == "" {
			return nil, &ValidationError{Path: "templates", Message: "template name must not be empty"}
		}
		if _, dup := d.templates[tmpl.Name]; dup {
			return nil, &ValidationError{
				Path:    "templates",
				Message: fmt.Sprintf("duplicate template %q", tmpl.Name),
			}
		}
		for _, a := range t.Attributes {
			aname := norm.NFC.String(a.Name)
			if aname == "" {
				return nil, &ValidationError{
					Path:    "templates/" + tmpl.Name,
					Message: "attribute name must not be empty",
				}
			}
			if _, dup := tmpl.index[aname]; dup {
				return nil, &ValidationError{
					Path:    "templates/" + tmpl.Name,
					Message: fmt.Sprintf("duplicate attribute %q", aname),
				}
			}
			if a.Default == nil {
				return nil, &ValidationError{
					Path:    "templates/" + tmpl.Name + "/" + aname,
					Message: "attribute default must be a resolved scalar",
				}
			}
			tmpl.index[aname] = len(tmpl.Attributes)
			tmpl.Attributes = append(tmpl.Attributes, AttributeSpec{Name: aname, Default: a.Default})
		}
		d.Templates = append(d.Templates, tmpl)
		d.templates[tmpl.Name] = &d.Templates[len(d.Templates)-1]
	}

	return d, nil
}

// HasScope reports whether the named scope is declared.
func (d *Domain) HasScope(name string) bool {
	_, ok := d.scopeSet[norm.NFC.String(name)]
	return ok
}

// Template returns the named template.
func (d *Domain) Template(name string) (*Template, bool) {
	t, ok := d.templates[norm.NFC.String(name)]
	return t, ok
}
