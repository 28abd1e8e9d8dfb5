// Package fhirtypes resolves the FHIR data type and cardinality of an
// element path on a resource type.
package fhirtypes

import (
	"strings"

	"github.com/ehr/fhirsearch/pkg/fhirmodels"
)

// FieldType is the declared data shape of an element and whether it
// repeats.
type FieldType struct {
	Shape       string
	Cardinality fhirmodels.Cardinality
}

// Multi reports whether the element is declared as repeating.
func (f FieldType) Multi() bool {
	return f.Cardinality == fhirmodels.CardinalityMulti
}

// Known reports whether the field type has a shape.
func (f FieldType) Known() bool { return f.Shape != "" }

// Base resource types whose elements apply to every resource.
const (
	BaseResource       = "Resource"
	BaseDomainResource = "DomainResource"
)

// Resolver is a read-only table from (resource type, path) to FieldType.
// Build it once with NewResolver and share it across goroutines.
type Resolver struct {
	types map[string]FieldType
}

// NewResolver returns a resolver seeded with the built-in table plus any
// extra entries, keyed as "ResourceType.path". Extra entries win.
func NewResolver(extra map[string]FieldType) *Resolver {
	r := &Resolver{types: make(map[string]FieldType, len(builtin)+len(extra))}
	for k, v := range builtin {
		r.types[k] = v
	}
	for k, v := range extra {
		r.types[k] = v
	}
	return r
}

// Resolve looks up path on resourceType, then on the base resource types.
// A missing entry returns ok=false and is not an error.
func (r *Resolver) Resolve(resourceType, path string) (FieldType, bool) {
	if r == nil || path == "" {
		return FieldType{}, false
	}
	for _, rt := range []string{resourceType, BaseDomainResource, BaseResource} {
		if ft, ok := r.types[rt+"."+path]; ok {
			return ft, true
		}
	}
	return FieldType{}, false
}

// Len returns the number of entries in the table.
func (r *Resolver) Len() int { return len(r.types) }

// Key joins a resource type and element path into a table key.
func Key(resourceType, path string) string {
	return resourceType + "." + strings.TrimPrefix(path, resourceType+".")
}
