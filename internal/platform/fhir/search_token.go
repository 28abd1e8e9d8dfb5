package fhir

import (
	"strconv"
	"strings"

	"github.com/ehr/fhirsearch/internal/platform/filter"
	"github.com/ehr/fhirsearch/pkg/fhirmodels"
)

// tokenValue is a parsed "[system|]code" search value. The code part may
// be a comma separated list.
type tokenValue struct {
	system    string
	hasSystem bool
	codes     []string
}

func splitToken(raw string) tokenValue {
	system, code, found := strings.Cut(strings.TrimSpace(raw), "|")
	if !found {
		return tokenValue{codes: splitList(raw)}
	}
	return tokenValue{system: system, hasSystem: true, codes: splitList(code)}
}

// systemCond constrains the system field. "|code" asks for a code without
// a system.
func (t tokenValue) systemCond(field string) filter.Expr {
	switch {
	case !t.hasSystem:
		return filter.Empty()
	case t.system == "":
		return filter.Exists(field, false)
	default:
		return filter.Eq(field, t.system)
	}
}

func (t tokenValue) codeCond(field string) filter.Expr {
	return eqOrIn(field, t.codes)
}

// match builds a system/code match on the element at field. Both
// conditions of a repeating element are matched within one element.
func (t tokenValue) match(field, systemField, codeField string, multi bool) filter.Expr {
	sys := t.systemCond(systemField)
	code := t.codeCond(codeField)
	if multi && !sys.IsEmpty() && !code.IsEmpty() {
		return filter.ElemMatch(field, sys, code)
	}
	return allOf(nonEmpty(
		t.systemCond(field+"."+systemField),
		t.codeCond(field+"."+codeField),
	))
}

func nonEmpty(exprs ...filter.Expr) []filter.Expr {
	out := exprs[:0]
	for _, e := range exprs {
		if !e.IsEmpty() {
			out = append(out, e)
		}
	}
	return out
}

// tokenFragments builds one fragment per value.
func (d *dispatchContext) tokenFragments(values []string) []filter.Expr {
	out := make([]filter.Expr, 0, len(values))
	for _, raw := range values {
		out = append(out, d.tokenExpr(d.parseToken(raw)))
	}
	return d.record(out...)
}

// parseToken parses raw and pins the system when the definition filters
// on one, as for telecom email/phone parameters.
func (d *dispatchContext) parseToken(raw string) tokenValue {
	t := splitToken(raw)
	if sys, ok := d.def.RequiredSystem(); ok {
		t.system, t.hasSystem = sys, true
	}
	return t
}

func (d *dispatchContext) tokenExpr(t tokenValue) filter.Expr {
	if len(t.codes) == 0 && !t.hasSystem {
		return filter.Empty()
	}
	return d.acrossPaths(func(path string) filter.Expr {
		rf := d.fieldType(path)
		multi := rf.Cardinality != fhirmodels.CardinalitySingle

		switch rf.Shape {
		case fhirmodels.TypeIdentifier:
			return t.match(path, "system", "value", multi)
		case fhirmodels.TypeCoding:
			return t.match(path, "system", "code", multi)
		case fhirmodels.TypeCodeableConcept:
			return t.match(path+".coding", "system", "code", true)
		case fhirmodels.TypeExtension:
			return t.match(path, "url", "valueString", multi)
		case fhirmodels.TypeContactPoint:
			if t.hasSystem && t.system != "" {
				return t.match(path, "system", "value", multi)
			}
			return t.codeCond(path + ".value")
		case fhirmodels.TypeBoolean:
			return booleanCond(path, t.codes)
		case fhirmodels.TypeCode, fhirmodels.TypeURI, fhirmodels.TypeURL, fhirmodels.TypeString,
			fhirmodels.TypeID, fhirmodels.TypeCanonical, fhirmodels.TypeMarkdown:
			return t.codeCond(path)
		default:
			alts := []filter.Expr{
				t.match(path, "system", "code", multi),
				t.match(path+".coding", "system", "code", true),
			}
			// A bare scalar carries no system to match.
			if !t.hasSystem {
				alts = append([]filter.Expr{t.codeCond(path)}, alts...)
			}
			return filter.Or(alts...)
		}
	})
}

func booleanCond(path string, codes []string) filter.Expr {
	alts := make([]filter.Expr, 0, len(codes))
	for _, c := range codes {
		b, err := strconv.ParseBool(c)
		if err != nil {
			continue
		}
		alts = append(alts, filter.Eq(path, b))
	}
	return anyOf(alts)
}

// Paths whose token parameters carry security labels.
var securityPaths = map[string]bool{
	"meta.security": true,
	"meta.tag":      true,
	"identifier":    true,
}

func (d *dispatchContext) isSecurityField() bool {
	return securityPaths[d.def.PrimaryPath()]
}

// securityFragments matches security labels. A code from an access system
// that has a precomputed access-index flag matches on "_access.<code>"
// instead of the label itself.
func (d *dispatchContext) securityFragments(values []string) []filter.Expr {
	out := make([]filter.Expr, 0, len(values))
	for _, raw := range values {
		t := d.parseToken(raw)
		if !d.usesAccessIndex(t) {
			out = append(out, d.tokenExpr(t))
			continue
		}
		alts := make([]filter.Expr, 0, len(t.codes))
		for _, code := range t.codes {
			if d.opts.accessIndex(code) {
				alts = append(alts, filter.Eq(AccessIndexField+"."+code, 1))
				continue
			}
			alts = append(alts, d.tokenExpr(tokenValue{system: t.system, hasSystem: true, codes: []string{code}}))
		}
		out = append(out, anyOf(alts))
	}
	return d.record(out...)
}

func (d *dispatchContext) usesAccessIndex(t tokenValue) bool {
	return d.opts.accessIndex != nil &&
		t.hasSystem && t.system != "" &&
		len(t.codes) > 0 &&
		d.opts.isAccessSystem(t.system)
}
