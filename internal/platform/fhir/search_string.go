package fhir

import (
	"regexp"
	"strings"

	"github.com/ehr/fhirsearch/internal/platform/filter"
	"github.com/ehr/fhirsearch/pkg/fhirmodels"
)

// Sub-fields searched when a string parameter points at a complex type.
var stringSubfields = map[string][]string{
	fhirmodels.TypeHumanName: {"text", "family", "given", "prefix", "suffix"},
	fhirmodels.TypeAddress:   {"line", "city", "district", "state", "postalCode", "country", "text"},
}

// stringFragments matches the value, or any of a list of values, exactly.
func (d *dispatchContext) stringFragments(values []string) []filter.Expr {
	vals := normalizeTexts(expandList(values))
	if len(vals) == 0 {
		return nil
	}
	e := d.acrossPaths(func(path string) filter.Expr {
		subs := stringSubfields[d.fieldType(path).Shape]
		if len(subs) == 0 {
			return eqOrIn(path, vals)
		}
		alts := make([]filter.Expr, 0, len(subs))
		for _, s := range subs {
			alts = append(alts, eqOrIn(path+"."+s, vals))
		}
		return filter.Or(alts...)
	})
	return d.record(e)
}

// uriFragments requires exact equality for every value.
func (d *dispatchContext) uriFragments(values []string) []filter.Expr {
	out := make([]filter.Expr, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, d.acrossPaths(func(path string) filter.Expr {
			return filter.Eq(path, v)
		}))
	}
	return d.record(out...)
}

// idFragments matches logical ids. It applies negation itself, so the
// result is reported as already negated when negate is set.
func (d *dispatchContext) idFragments(values []string, negate bool) fragments {
	ids := expandList(values)
	if len(ids) == 0 {
		return fragments{negated: negate}
	}
	field := d.def.Field
	if field == "" {
		field = "id"
	}

	var e filter.Expr
	switch {
	case len(ids) == 1 && negate:
		e = filter.Ne(field, ids[0])
	case len(ids) == 1:
		e = filter.Eq(field, ids[0])
	case negate:
		e = filter.NotIn(field, ids)
	default:
		e = filter.In(field, ids)
	}
	return fragments{exprs: d.record(e), negated: negate}
}

// canonicalFragments matches canonical URLs. An unversioned URL also
// matches every stored version of it ("url|1.0").
func (d *dispatchContext) canonicalFragments(values []string) []filter.Expr {
	items := expandList(values)
	if len(items) == 0 {
		return nil
	}
	e := d.acrossPaths(func(path string) filter.Expr {
		alts := make([]filter.Expr, 0, len(items))
		for _, v := range items {
			if isURL(v) && !strings.Contains(v, "|") {
				alts = append(alts, filter.Or(
					filter.Eq(path, v),
					filter.Regex(path, "^"+regexp.QuoteMeta(v)+`\|`),
				))
				continue
			}
			alts = append(alts, filter.Eq(path, v))
		}
		return anyOf(alts)
	})
	return d.record(e)
}
