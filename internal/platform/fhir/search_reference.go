package fhir

import (
	"regexp"
	"strings"

	"github.com/ehr/fhirsearch/internal/platform/filter"
)

var historySuffixRe = regexp.MustCompile(`/_history/[^/]*/?$`)

// referenceLiteral reduces an absolute reference URL to "Type/id".
func referenceLiteral(raw string) string {
	s := historySuffixRe.ReplaceAllString(raw, "")
	s = strings.TrimRight(s, "/")
	if !isURL(s) {
		return s
	}
	parts := strings.Split(s, "/")
	if len(parts) < 2 {
		return s
	}
	return strings.Join(parts[len(parts)-2:], "/")
}

// referenceFragments matches "<path>.reference". Bare ids are qualified by
// a type modifier or, in a list, by each declared target. A lone bare id
// matches the end of the stored reference.
func (d *dispatchContext) referenceFragments(values []string) []filter.Expr {
	items := expandList(values)
	if len(items) == 0 {
		return nil
	}

	var literals, patterns []string
	for _, item := range items {
		switch {
		case isURL(item) || strings.Contains(item, "/"):
			literals = append(literals, referenceLiteral(item))
		case d.typeModifier != "":
			literals = append(literals, d.typeModifier+"/"+item)
		case len(items) > 1 && len(d.def.Target) > 0:
			for _, t := range d.def.Target {
				literals = append(literals, t+"/"+item)
			}
		default:
			patterns = append(patterns, `(^|/)`+regexp.QuoteMeta(item)+`$`)
		}
	}

	e := d.acrossPaths(func(path string) filter.Expr {
		field := path + ".reference"
		alts := make([]filter.Expr, 0, 1+len(patterns))
		if lit := eqOrIn(field, literals); !lit.IsEmpty() {
			alts = append(alts, lit)
		}
		for _, p := range patterns {
			alts = append(alts, filter.RegexCase(field, p))
		}
		return anyOf(alts)
	})
	return d.record(e)
}
