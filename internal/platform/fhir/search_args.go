package fhir

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/ehr/fhirsearch/internal/platform/searchparam"
)

// Args maps search parameter names, optionally with modifiers, to raw
// values. A value is a string, a list of strings (a repeated parameter), or
// a structured object (map[string]any or StructuredValue) as sent by
// structured/graphQL callers.
type Args map[string]any

// Result-control parameters that never reach the compiler.
var resultParams = map[string]bool{
	"_count":      true,
	"_offset":     true,
	"_sort":       true,
	"_format":     true,
	"_elements":   true,
	"_summary":    true,
	"_total":      true,
	"_include":    true,
	"_revinclude": true,
}

// ArgsFromValues converts URL query values into Args. Repeated keys become
// lists; result-control parameters are dropped.
func ArgsFromValues(v url.Values) Args {
	args := make(Args, len(v))
	for k, vals := range v {
		if resultParams[k] || len(vals) == 0 {
			continue
		}
		if len(vals) == 1 {
			args[k] = vals[0]
			continue
		}
		args[k] = append([]string(nil), vals...)
	}
	return args
}

// paramAliases maps legacy parameter names onto their registered names.
var paramAliases = map[string]string{
	"source":     "_source",
	"id":         "_id",
	"onset_date": "onset-date",
}

// normalizeArgs applies the legacy aliases, converts graphQL-style names
// (onset_date) to FHIR names (onset-date) when the raw name is not
// registered, and rewrites an unprefixed two-value _lastUpdated into an
// explicit range.
func (c *Compiler) normalizeArgs(resourceType string, args Args) Args {
	out := make(Args, len(args))
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := args[k]
		name, rest, _ := strings.Cut(k, ":")
		suffix := ""
		if rest != "" {
			suffix = ":" + rest
		}

		if alias, ok := paramAliases[name]; ok {
			if _, registered := c.registry.Lookup(resourceType, name); !registered {
				name = alias
			}
		} else if !strings.HasPrefix(name, "_") && strings.Contains(name, "_") {
			if _, registered := c.registry.Lookup(resourceType, name); !registered {
				name = strings.ReplaceAll(name, "_", "-")
			}
		}

		key := name + suffix
		if _, exists := out[key]; exists {
			continue
		}
		out[key] = v
	}

	if v, ok := out["_lastUpdated"]; ok {
		if pair := stringList(v); len(pair) == 2 && !hasPrefix(pair[0]) && !hasPrefix(pair[1]) {
			sort.Strings(pair)
			out["_lastUpdated"] = []string{"gt" + pair[0], "lt" + pair[1]}
		}
	}
	return out
}

func hasPrefix(v string) bool {
	return ParseSearchValue(v).Explicit
}

func stringList(v any) []string {
	switch vals := v.(type) {
	case []string:
		return append([]string(nil), vals...)
	case []any:
		out := make([]string, 0, len(vals))
		for _, x := range vals {
			s, ok := scalarString(x)
			if !ok {
				return nil
			}
			out = append(out, s)
		}
		return out
	}
	return nil
}

// StructuredValue is the object form of a search value. Range operators
// apply to date and number parameters; system/code/target/prefix build
// token, reference and quantity values.
type StructuredValue struct {
	Value     any   `mapstructure:"value"`
	Values    []any `mapstructure:"values"`
	NotEquals any   `mapstructure:"notEquals"`
	Missing   *bool `mapstructure:"missing"`

	Target string `mapstructure:"target"`
	System string `mapstructure:"system"`
	Code   string `mapstructure:"code"`
	Prefix string `mapstructure:"prefix"`

	Equals               string `mapstructure:"equals"`
	GreaterThan          string `mapstructure:"greaterThan"`
	GreaterThanOrEqualTo string `mapstructure:"greaterThanOrEqualTo"`
	LessThan             string `mapstructure:"lessThan"`
	LessThanOrEqualTo    string `mapstructure:"lessThanOrEqualTo"`
	StartsAfter          string `mapstructure:"startsAfter"`
	EndsBefore           string `mapstructure:"endsBefore"`
	Approximately        string `mapstructure:"approximately"`

	// SearchType is accepted for compatibility and otherwise ignored; the
	// registry type decides how the value is read.
	SearchType string `mapstructure:"searchType"`
}

// paramValue is a raw value normalized into the primitive grammar.
type paramValue struct {
	plain   []string
	anyOf   []string
	allOf   [][]string
	noneOf  []string
	missing *bool
}

// values flattens the positive groups, for modifiers that take a plain
// value list.
func (p paramValue) values() []string {
	out := append([]string(nil), p.plain...)
	out = append(out, p.anyOf...)
	for _, g := range p.allOf {
		out = append(out, g...)
	}
	return out
}

func (p *paramValue) merge(o paramValue) {
	p.plain = append(p.plain, o.plain...)
	p.anyOf = append(p.anyOf, o.anyOf...)
	p.allOf = append(p.allOf, o.allOf...)
	p.noneOf = append(p.noneOf, o.noneOf...)
	if o.missing != nil {
		p.missing = o.missing
	}
}

func normalizeValue(def *searchparam.Definition, raw any) (paramValue, error) {
	switch v := raw.(type) {
	case nil:
		return paramValue{}, nil
	case string:
		return paramValue{plain: []string{v}}, nil
	case []string:
		return paramValue{plain: append([]string(nil), v...)}, nil
	case []any:
		var pv paramValue
		for _, item := range v {
			if s, ok := scalarString(item); ok {
				pv.plain = append(pv.plain, s)
				continue
			}
			sub, err := normalizeValue(def, item)
			if err != nil {
				return paramValue{}, err
			}
			pv.merge(sub)
		}
		return pv, nil
	case StructuredValue:
		return normalizeStructured(def, &v)
	case *StructuredValue:
		if v == nil {
			return paramValue{}, nil
		}
		return normalizeStructured(def, v)
	case map[string]any:
		sv, err := decodeStructured(def.Name, v)
		if err != nil {
			return paramValue{}, err
		}
		return normalizeStructured(def, sv)
	default:
		if s, ok := scalarString(v); ok {
			return paramValue{plain: []string{s}}, nil
		}
		return paramValue{}, invalidValue(def.Name, fmt.Sprint(raw), fmt.Sprintf("unsupported value type %T", raw))
	}
}

func decodeStructured(param string, m map[string]any) (*StructuredValue, error) {
	var sv StructuredValue
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &sv,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, invalidConfig(param, err.Error())
	}
	if err := dec.Decode(m); err != nil {
		return nil, invalidValue(param, "", err.Error())
	}
	return &sv, nil
}

func isRangeType(t searchparam.ParamType) bool {
	return t.IsDate() || t == searchparam.TypeNumber
}

type rangeOp struct {
	prefix SearchPrefix
	value  string
}

// rangeTerms returns the operator fields as prefixed values, e.g.
// greaterThan: 2021 -> "gt2021".
func (s *StructuredValue) rangeTerms() []string {
	ops := []rangeOp{
		{PrefixEq, s.Equals},
		{PrefixGt, s.GreaterThan},
		{PrefixGe, s.GreaterThanOrEqualTo},
		{PrefixLt, s.LessThan},
		{PrefixLe, s.LessThanOrEqualTo},
		{PrefixSa, s.StartsAfter},
		{PrefixEb, s.EndsBefore},
		{PrefixAp, s.Approximately},
	}
	if ne, ok := scalarString(s.NotEquals); ok {
		ops = append(ops, rangeOp{PrefixNe, ne})
	}
	var out []string
	for _, op := range ops {
		if op.value != "" {
			out = append(out, string(op.prefix)+op.value)
		}
	}
	return out
}

// own builds the primitive value the object itself describes for token,
// reference and quantity parameters. consumed reports that Value was used.
func (s *StructuredValue) own(t searchparam.ParamType) (term string, consumed bool) {
	value, scalar := scalarString(s.Value)
	switch t {
	case searchparam.TypeToken:
		code := s.Code
		if code == "" && scalar && s.System != "" {
			code, consumed = value, true
		}
		switch {
		case s.System != "":
			return s.System + "|" + code, consumed
		case code != "":
			return code, consumed
		}
	case searchparam.TypeReference:
		if s.Target != "" && scalar && value != "" {
			return s.Target + "/" + value, true
		}
	case searchparam.TypeQuantity:
		if scalar && (s.Prefix != "" || s.System != "" || s.Code != "") {
			term := s.Prefix + value
			if s.System != "" || s.Code != "" {
				term += "|" + s.System + "|" + s.Code
			}
			return term, true
		}
	}
	return "", false
}

func normalizeStructured(def *searchparam.Definition, s *StructuredValue) (paramValue, error) {
	pv := paramValue{missing: s.Missing}

	consumed := false
	if isRangeType(def.Type) {
		switch terms := s.rangeTerms(); len(terms) {
		case 0:
		case 1:
			pv.anyOf = append(pv.anyOf, terms...)
		default:
			pv.allOf = append(pv.allOf, terms)
		}
	} else {
		var term string
		term, consumed = s.own(def.Type)
		if term != "" {
			pv.anyOf = append(pv.anyOf, term)
		}
	}

	items := append([]any(nil), s.Values...)
	if s.Value != nil && !consumed {
		items = append([]any{s.Value}, items...)
	}
	for _, item := range items {
		if str, ok := scalarString(item); ok {
			pv.anyOf = append(pv.anyOf, str)
			continue
		}
		sub, err := normalizeValue(def, item)
		if err != nil {
			return paramValue{}, err
		}
		pv.anyOf = append(pv.anyOf, sub.plain...)
		pv.merge(paramValue{anyOf: sub.anyOf, allOf: sub.allOf, noneOf: sub.noneOf, missing: sub.missing})
	}

	if s.NotEquals != nil && !isRangeType(def.Type) {
		if str, ok := scalarString(s.NotEquals); ok {
			pv.noneOf = append(pv.noneOf, str)
		} else {
			sub, err := normalizeValue(def, s.NotEquals)
			if err != nil {
				return paramValue{}, err
			}
			pv.noneOf = append(pv.noneOf, sub.values()...)
		}
	}
	return pv, nil
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case int:
		return strconv.Itoa(x), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	}
	return "", false
}
