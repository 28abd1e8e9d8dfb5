package fhir

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// SearchPrefix represents a FHIR search prefix for ordered values.
type SearchPrefix string

const (
	PrefixEq SearchPrefix = "eq"
	PrefixNe SearchPrefix = "ne"
	PrefixGt SearchPrefix = "gt"
	PrefixLt SearchPrefix = "lt"
	PrefixGe SearchPrefix = "ge"
	PrefixLe SearchPrefix = "le"
	PrefixSa SearchPrefix = "sa" // starts after
	PrefixEb SearchPrefix = "eb" // ends before
	PrefixAp SearchPrefix = "ap" // approximately
)

// SearchModifier represents a FHIR search modifier.
type SearchModifier string

const (
	ModifierExact      SearchModifier = "exact"
	ModifierContains   SearchModifier = "contains"
	ModifierText       SearchModifier = "text"
	ModifierNot        SearchModifier = "not"
	ModifierAbove      SearchModifier = "above"
	ModifierBelow      SearchModifier = "below"
	ModifierMissing    SearchModifier = "missing"
	ModifierIdentifier SearchModifier = "identifier"
)

// ParsedSearch holds a parsed search parameter value with its prefix.
type ParsedSearch struct {
	Prefix SearchPrefix
	Value  string
	// Explicit is false when no prefix was given and eq was assumed.
	Explicit bool
}

// ParseSearchValue extracts the prefix from a FHIR search value.
// Examples: "gt2023-01-01" -> (gt, "2023-01-01"), "100" -> (eq, "100")
func ParseSearchValue(raw string) ParsedSearch {
	if len(raw) >= 2 {
		prefix := SearchPrefix(strings.ToLower(raw[:2]))
		switch prefix {
		case PrefixEq, PrefixNe, PrefixGt, PrefixLt, PrefixGe, PrefixLe, PrefixSa, PrefixEb, PrefixAp:
			return ParsedSearch{Prefix: prefix, Value: raw[2:], Explicit: true}
		}
	}
	return ParsedSearch{Prefix: PrefixEq, Value: raw}
}

// ParseParamModifiers splits a parameter name from its modifiers.
// Examples: "name:exact" -> ("name", [exact]), "code:not:text" -> ("code", [not, text]),
// "code" -> ("code", nil)
func ParseParamModifiers(paramName string) (string, []SearchModifier) {
	parts := strings.Split(paramName, ":")
	if len(parts) == 1 {
		return parts[0], nil
	}
	mods := make([]SearchModifier, 0, len(parts)-1)
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		mods = append(mods, SearchModifier(p))
	}
	return parts[0], mods
}

// isResourceTypeModifier reports whether a modifier names a resource type,
// as in "subject:Patient".
func isResourceTypeModifier(m SearchModifier) bool {
	s := string(m)
	if s == "" || s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

// splitList splits a comma separated search value, dropping empty items.
func splitList(raw string) []string {
	if !strings.Contains(raw, ",") {
		if s := strings.TrimSpace(raw); s != "" {
			return []string{s}
		}
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// expandList flattens a list of raw values, splitting a lone value on
// commas. Repeated values are already a list and are not split.
func expandList(values []string) []string {
	if len(values) == 1 {
		return splitList(values[0])
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var urlRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// isURL reports whether s looks like an absolute URL.
func isURL(s string) bool {
	return urlRe.MatchString(s)
}

// normalizeText puts free-text search input into Unicode NFC so composed
// and decomposed forms match the same stored values.
func normalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func normalizeTexts(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = normalizeText(v)
	}
	return out
}
