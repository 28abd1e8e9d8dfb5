package fhir

import (
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ehr/fhirsearch/internal/platform/filter"
)

var ten = decimal.NewFromInt(10)

// implicitRange returns the [lower, upper) band a number written without
// a prefix stands for: half a unit of its last significant digit either
// side. "100" covers [99.5, 100.5), "1e2" covers [50, 150).
func implicitRange(v decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	delta := decimal.New(5, v.Exponent()-1)
	return v.Sub(delta), v.Add(delta)
}

// approximateRange widens v by a tenth of its magnitude. Zero falls back
// to the implicit band.
func approximateRange(v decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	w := v.Abs().Div(ten)
	if w.IsZero() {
		return implicitRange(v)
	}
	return v.Sub(w), v.Add(w)
}

// errNumberRange rejects numbers a stored float64 cannot represent.
var errNumberRange = errors.New("number out of range")

func parseNumber(raw string) (ParsedSearch, decimal.Decimal, error) {
	ps := ParseSearchValue(strings.TrimSpace(raw))
	v, err := decimal.NewFromString(strings.TrimSpace(ps.Value))
	if err != nil {
		return ps, v, err
	}
	if math.IsInf(v.InexactFloat64(), 0) {
		return ps, v, errNumberRange
	}
	return ps, v, nil
}

// numberExpr compares field with v under the prefix.
func numberExpr(field string, prefix SearchPrefix, v decimal.Decimal) filter.Expr {
	f := func(x decimal.Decimal) float64 { return x.InexactFloat64() }
	switch prefix {
	case PrefixNe:
		return filter.Nor(numberExpr(field, PrefixEq, v))
	case PrefixLt, PrefixEb:
		return filter.Leaf(field, filter.Cmp(filter.OpLt, f(v)))
	case PrefixLe:
		return filter.Leaf(field, filter.Cmp(filter.OpLte, f(v)))
	case PrefixGt, PrefixSa:
		return filter.Leaf(field, filter.Cmp(filter.OpGt, f(v)))
	case PrefixGe:
		return filter.Leaf(field, filter.Cmp(filter.OpGte, f(v)))
	case PrefixAp:
		lo, hi := approximateRange(v)
		return filter.Leaf(field, filter.Cmp(filter.OpGte, f(lo)), filter.Cmp(filter.OpLt, f(hi)))
	default:
		lo, hi := implicitRange(v)
		return filter.Leaf(field, filter.Cmp(filter.OpGte, f(lo)), filter.Cmp(filter.OpLt, f(hi)))
	}
}

// numberFragments builds one fragment per value; a comma list inside a
// value is OR'd. Unparseable numbers are dropped.
func (d *dispatchContext) numberFragments(values []string) []filter.Expr {
	out := make([]filter.Expr, 0, len(values))
	for _, raw := range values {
		var alts []filter.Expr
		for _, item := range splitList(raw) {
			ps, v, err := parseNumber(item)
			if err != nil {
				d.skipValue(item, err)
				continue
			}
			alts = append(alts, d.acrossPaths(func(path string) filter.Expr {
				return numberExpr(path, ps.Prefix, v)
			}))
		}
		out = append(out, anyOf(alts))
	}
	return d.record(out...)
}

// quantityFragments matches "[prefix]number|system|code" against the
// value, system and code of a Quantity.
func (d *dispatchContext) quantityFragments(values []string) []filter.Expr {
	out := make([]filter.Expr, 0, len(values))
	for _, raw := range values {
		parts := strings.SplitN(strings.TrimSpace(raw), "|", 3)
		ps, v, err := parseNumber(parts[0])
		if err != nil {
			d.skipValue(raw, err)
			continue
		}
		var system, code string
		if len(parts) > 1 {
			system = parts[1]
		}
		if len(parts) > 2 {
			code = parts[2]
		}

		out = append(out, d.acrossPaths(func(path string) filter.Expr {
			unit := func(prefix string) []filter.Expr {
				var conds []filter.Expr
				if system != "" {
					conds = append(conds, filter.Eq(prefix+"system", system))
				}
				if code != "" {
					conds = append(conds, filter.Eq(prefix+"code", code))
				}
				return conds
			}
			if d.fieldType(path).Multi() && ps.Prefix != PrefixNe && (system != "" || code != "") {
				subs := append([]filter.Expr{numberExpr("value", ps.Prefix, v)}, unit("")...)
				return filter.ElemMatch(path, subs...)
			}
			conds := append([]filter.Expr{numberExpr(path+".value", ps.Prefix, v)}, unit(path+".")...)
			return allOf(conds)
		}))
	}
	return d.record(out...)
}

func (d *dispatchContext) skipValue(value string, err error) {
	d.opts.logger.Debug().
		Err(err).
		Str("resource_type", d.resourceType).
		Str("param", d.def.Name).
		Str("value", value).
		Msg("malformed search value, skipping")
}
