package searchparam

import (
	"regexp"
	"strings"
)

// Definition describes how one search parameter maps onto stored
// resource fields. Definitions are shared across goroutines and must not
// be modified after the registry is built.
type Definition struct {
	Name string
	// Field is the primary element path, e.g. "birthDate" or "for".
	Field string
	// Fields, when set, lists alternative paths that are OR-combined.
	Fields []string
	Type   ParamType
	// Target lists the resource types a reference parameter may point to.
	Target []string
	// FieldFilter pins matching elements to one system, as
	// "system = 'email'" on a telecom field. Other predicates are rejected.
	FieldFilter string
	Expression  string
	Description string
}

// Paths returns the element paths the parameter is matched against.
func (d *Definition) Paths() []string {
	if len(d.Fields) > 0 {
		return d.Fields
	}
	if d.Field == "" {
		return nil
	}
	return []string{d.Field}
}

// PrimaryPath returns the first element path.
func (d *Definition) PrimaryPath() string {
	if p := d.Paths(); len(p) > 0 {
		return p[0]
	}
	return ""
}

var (
	fhirpathSystemRe = regexp.MustCompile(`^\s*system\s*=\s*'([^']*)'\s*$`)
	xpathSystemRe    = regexp.MustCompile(`^\s*\[\s*system/@value\s*=\s*'([^']*)'\s*\]\s*$`)
)

// RequiredSystem returns the system a FieldFilter pins the element to, if
// the filter is a simple system equality.
func (d *Definition) RequiredSystem() (string, bool) {
	if d.FieldFilter == "" {
		return "", false
	}
	if m := fhirpathSystemRe.FindStringSubmatch(d.FieldFilter); m != nil {
		return m[1], true
	}
	if m := xpathSystemRe.FindStringSubmatch(d.FieldFilter); m != nil {
		return m[1], true
	}
	return "", false
}

// HasTarget reports whether resourceType is one of the declared reference
// targets. An empty target list accepts anything.
func (d *Definition) HasTarget(resourceType string) bool {
	if len(d.Target) == 0 {
		return true
	}
	for _, t := range d.Target {
		if strings.EqualFold(t, resourceType) {
			return true
		}
	}
	return false
}
