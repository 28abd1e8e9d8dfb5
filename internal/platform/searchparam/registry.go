// Package searchparam holds the search parameter registry: for each
// resource type, the parameters a client may search by and the stored
// fields they map to.
package searchparam

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gofhir/fhirpath"
)

// WildcardResource registers parameters that apply to every resource type.
const WildcardResource = "Resource"

// ErrInvalidDefinition is wrapped by every registry validation failure.
var ErrInvalidDefinition = errors.New("invalid search parameter definition")

// DefinitionError reports a rejected registry entry.
type DefinitionError struct {
	Resource string
	Param    string
	Reason   string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Resource, e.Param, e.Reason)
}

func (e *DefinitionError) Unwrap() error { return ErrInvalidDefinition }

// Registry is an immutable table of search parameter definitions. It is
// safe for concurrent use.
type Registry struct {
	byResource map[string]map[string]*Definition
}

// New validates defs, keyed by resource type then parameter name, and
// builds a registry from them.
func New(defs map[string]map[string]Definition) (*Registry, error) {
	r := &Registry{byResource: make(map[string]map[string]*Definition, len(defs))}
	for resourceType, params := range defs {
		table := make(map[string]*Definition, len(params))
		for name, def := range params {
			def := def
			def.Name = name
			if err := validate(resourceType, &def); err != nil {
				return nil, err
			}
			table[name] = &def
		}
		r.byResource[resourceType] = table
	}
	return r, nil
}

func validate(resourceType string, d *Definition) error {
	fail := func(format string, args ...any) error {
		return &DefinitionError{Resource: resourceType, Param: d.Name, Reason: fmt.Sprintf(format, args...)}
	}
	if d.Name == "" {
		return fail("parameter name is required")
	}
	if len(d.Paths()) == 0 {
		return fail("field or fields is required")
	}
	for _, p := range d.Paths() {
		if p == "" {
			return fail("empty field path")
		}
	}
	if !d.Type.Valid() {
		return fail("unknown type %v", d.Type)
	}
	if len(d.Target) > 0 && d.Type != TypeReference {
		return fail("target is only allowed on reference parameters, got %s", d.Type)
	}
	if d.FieldFilter != "" {
		if _, ok := d.RequiredSystem(); !ok {
			if _, err := fhirpath.Compile(d.FieldFilter); err != nil {
				return fail("fieldFilter %q: %v", d.FieldFilter, err)
			}
			return fail("fieldFilter %q: only system = '<value>' predicates are supported", d.FieldFilter)
		}
	}
	if d.Expression != "" {
		if _, err := fhirpath.Compile(d.Expression); err != nil {
			return fail("expression %q: %v", d.Expression, err)
		}
	}
	return nil
}

// Lookup returns the definition of name on resourceType, falling back to
// the wildcard resource. A missing parameter is not an error.
func (r *Registry) Lookup(resourceType, name string) (*Definition, bool) {
	if r == nil {
		return nil, false
	}
	if d, ok := r.byResource[resourceType][name]; ok {
		return d, true
	}
	d, ok := r.byResource[WildcardResource][name]
	return d, ok
}

// ForResource returns every parameter applicable to resourceType, sorted
// by name. Resource-specific definitions shadow wildcard ones.
func (r *Registry) ForResource(resourceType string) []*Definition {
	if r == nil {
		return nil
	}
	merged := make(map[string]*Definition)
	for name, d := range r.byResource[WildcardResource] {
		merged[name] = d
	}
	for name, d := range r.byResource[resourceType] {
		merged[name] = d
	}
	out := make([]*Definition, 0, len(merged))
	for _, d := range merged {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResourceTypes returns the resource types with their own parameters,
// sorted, excluding the wildcard.
func (r *Registry) ResourceTypes() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.byResource))
	for rt := range r.byResource {
		if rt == WildcardResource {
			continue
		}
		out = append(out, rt)
	}
	sort.Strings(out)
	return out
}

// Has reports whether resourceType has any registered parameters of its
// own.
func (r *Registry) Has(resourceType string) bool {
	if r == nil {
		return false
	}
	_, ok := r.byResource[resourceType]
	return ok
}
