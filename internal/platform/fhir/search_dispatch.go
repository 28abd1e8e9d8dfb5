package fhir

import (
	"github.com/ehr/fhirsearch/internal/platform/fhirtypes"
	"github.com/ehr/fhirsearch/internal/platform/filter"
	"github.com/ehr/fhirsearch/internal/platform/searchparam"
)

// fragments is what a dispatcher returns: AND-combinable expressions, and
// whether the dispatcher already applied the requested negation itself.
type fragments struct {
	exprs   []filter.Expr
	negated bool
}

// ResolvedFieldType is the field type of one definition path, resolved for
// a single compile call.
type ResolvedFieldType struct {
	Path string
	fhirtypes.FieldType
	Known bool
}

// dispatchContext carries what the dispatchers need for one argument: the
// immutable definition, the per-call field type cache and the hint set.
type dispatchContext struct {
	resourceType string
	def          *searchparam.Definition
	types        *fhirtypes.Resolver
	hints        *filter.HintSet
	opts         *options
	resolved     map[string]ResolvedFieldType
	typeModifier string
}

func newDispatchContext(resourceType string, def *searchparam.Definition, types *fhirtypes.Resolver, hints *filter.HintSet, opts *options) (*dispatchContext, error) {
	switch {
	case def == nil:
		return nil, invalidConfig("", "no search parameter definition")
	case types == nil:
		return nil, invalidConfig(def.Name, "no field type resolver")
	case hints == nil:
		return nil, invalidConfig(def.Name, "no index hint set")
	case opts == nil:
		return nil, invalidConfig(def.Name, "no compiler options")
	case len(def.Paths()) == 0:
		return nil, invalidConfig(def.Name, "definition has no field path")
	}
	return &dispatchContext{
		resourceType: resourceType,
		def:          def,
		types:        types,
		hints:        hints,
		opts:         opts,
		resolved:     make(map[string]ResolvedFieldType, len(def.Paths())),
	}, nil
}

// fieldType resolves and caches the field type of path.
func (d *dispatchContext) fieldType(path string) ResolvedFieldType {
	if rf, ok := d.resolved[path]; ok {
		return rf
	}
	ft, ok := d.types.Resolve(d.resourceType, path)
	rf := ResolvedFieldType{Path: path, FieldType: ft, Known: ok}
	d.resolved[path] = rf
	return rf
}

// acrossPaths builds one expression per definition path and ORs them.
func (d *dispatchContext) acrossPaths(build func(path string) filter.Expr) filter.Expr {
	paths := d.def.Paths()
	alts := make([]filter.Expr, 0, len(paths))
	for _, p := range paths {
		if e := build(p); !e.IsEmpty() {
			alts = append(alts, e)
		}
	}
	return anyOf(alts)
}

// record drops empty expressions and adds every referenced field path to
// the hint set.
func (d *dispatchContext) record(exprs ...filter.Expr) []filter.Expr {
	out := exprs[:0]
	for _, e := range exprs {
		if e.IsEmpty() {
			continue
		}
		d.hints.AddColumns(e)
		out = append(out, e)
	}
	return out
}

func anyOf(alts []filter.Expr) filter.Expr {
	switch len(alts) {
	case 0:
		return filter.Empty()
	case 1:
		return alts[0]
	default:
		return filter.Or(alts...)
	}
}

func allOf(parts []filter.Expr) filter.Expr {
	switch len(parts) {
	case 0:
		return filter.Empty()
	case 1:
		return parts[0]
	default:
		return filter.And(parts...)
	}
}

// eqOrIn matches field against one value, or any of several.
func eqOrIn(field string, values []string) filter.Expr {
	switch len(values) {
	case 0:
		return filter.Empty()
	case 1:
		return filter.Eq(field, values[0])
	default:
		return filter.In(field, values)
	}
}
