package fhir

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ehr/fhirsearch/internal/platform/filter"
	"github.com/ehr/fhirsearch/internal/platform/searchparam"
	"github.com/ehr/fhirsearch/pkg/fhirmodels"
)

// modifierFragments compiles a parameter carrying one of the modifiers
// that replace the type's own matching.
func (d *dispatchContext) modifierFragments(m SearchModifier, values []string) []filter.Expr {
	switch m {
	case ModifierMissing:
		return d.record(d.missingExpr(values))
	case ModifierContains:
		return d.record(d.containsExpr(values))
	case ModifierAbove:
		return d.record(d.boundFragments(filter.OpGt, values)...)
	case ModifierBelow:
		return d.record(d.boundFragments(filter.OpLt, values)...)
	case ModifierText:
		return d.record(d.textExpr(values))
	case ModifierIdentifier:
		return d.record(d.identifierFragments(values)...)
	}
	return nil
}

// missingExpr: true requires every path to be absent, false requires any
// path to hold a value.
func (d *dispatchContext) missingExpr(values []string) filter.Expr {
	if len(values) == 0 {
		return filter.Empty()
	}
	missing, err := strconv.ParseBool(strings.TrimSpace(values[0]))
	if err != nil {
		d.opts.logger.Debug().Str("param", d.def.Name).Str("value", values[0]).Msg("invalid :missing value, skipping")
		return filter.Empty()
	}
	paths := d.def.Paths()
	parts := make([]filter.Expr, 0, len(paths))
	for _, p := range paths {
		if missing {
			parts = append(parts, filter.Exists(p, false))
		} else {
			parts = append(parts, filter.Ne(p, nil))
		}
	}
	if missing {
		return allOf(parts)
	}
	return anyOf(parts)
}

// containsField picks the element searched by :contains.
func (d *dispatchContext) containsField(path string) string {
	rf := d.fieldType(path)
	switch rf.Shape {
	case fhirmodels.TypeCoding:
		return path + ".code"
	case fhirmodels.TypeCodeableConcept:
		return path + ".coding.code"
	case fhirmodels.TypeIdentifier, fhirmodels.TypeContactPoint:
		return path + ".value"
	case fhirmodels.TypeReference:
		return path + ".reference"
	}
	if !rf.Known && d.def.Type == searchparam.TypeReference {
		return path + ".reference"
	}
	return path
}

func (d *dispatchContext) containsExpr(values []string) filter.Expr {
	items := normalizeTexts(expandList(values))
	if len(items) == 0 {
		return filter.Empty()
	}
	return d.acrossPaths(func(path string) filter.Expr {
		field := d.containsField(path)
		alts := make([]filter.Expr, 0, len(items))
		for _, v := range items {
			alts = append(alts, filter.Regex(field, regexp.QuoteMeta(v)))
		}
		return anyOf(alts)
	})
}

// boundFragments compares each raw value with op, as used for id ranges.
func (d *dispatchContext) boundFragments(op filter.Op, values []string) []filter.Expr {
	out := make([]filter.Expr, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v == "" {
			continue
		}
		out = append(out, d.acrossPaths(func(path string) filter.Expr {
			return filter.Leaf(path, filter.Cmp(op, v))
		}))
	}
	return out
}

// textExpr prefix-matches the element text or any coding display.
func (d *dispatchContext) textExpr(values []string) filter.Expr {
	items := normalizeTexts(expandList(values))
	if len(items) == 0 {
		return filter.Empty()
	}
	return d.acrossPaths(func(path string) filter.Expr {
		alts := make([]filter.Expr, 0, 2*len(items))
		for _, v := range items {
			prefix := "^" + regexp.QuoteMeta(v)
			alts = append(alts,
				filter.Regex(path+".text", prefix),
				filter.Regex(path+".coding.display", prefix),
			)
		}
		return filter.Or(alts...)
	})
}

// identifierFragments matches the logical identifier of a reference.
func (d *dispatchContext) identifierFragments(values []string) []filter.Expr {
	out := make([]filter.Expr, 0, len(values))
	for _, raw := range values {
		t := splitToken(raw)
		out = append(out, d.acrossPaths(func(path string) filter.Expr {
			return t.match(path+".identifier", "system", "value", false)
		}))
	}
	return out
}
