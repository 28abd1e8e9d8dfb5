package filter

import (
	"fmt"
	"sort"
	"strings"
)

// Kind identifies the node type of a filter expression.
type Kind int

const (
	KindAnd Kind = iota
	KindOr
	KindNor
	KindLeaf
)

func (k Kind) String() string {
	switch k {
	case KindAnd:
		return "and"
	case KindOr:
		return "or"
	case KindNor:
		return "nor"
	case KindLeaf:
		return "leaf"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Op is a leaf comparison operator.
type Op int

const (
	OpEq Op = iota
	OpIn
	OpNotIn
	OpNe
	OpRegex
	OpGt
	OpGte
	OpLt
	OpLte
	OpExists
	OpElemMatch
	OpRegexCase
)

// Operator returns the document-store operator name, e.g. "$gte".
// Equality has no operator; it renders as the bare value.
func (o Op) Operator() string {
	switch o {
	case OpIn:
		return "$in"
	case OpNotIn:
		return "$nin"
	case OpNe:
		return "$ne"
	case OpRegex, OpRegexCase:
		return "$regex"
	case OpGt:
		return "$gt"
	case OpGte:
		return "$gte"
	case OpLt:
		return "$lt"
	case OpLte:
		return "$lte"
	case OpExists:
		return "$exists"
	case OpElemMatch:
		return "$elemMatch"
	default:
		return ""
	}
}

// Cond is one operator applied to a leaf field.
type Cond struct {
	Op    Op
	Value any
	// Elem holds the sub-conditions of an ElemMatch, each a leaf whose
	// field is relative to the array element.
	Elem []Expr
}

// Cmp builds a comparison condition.
func Cmp(op Op, v any) Cond {
	return Cond{Op: op, Value: v}
}

// Expr is a node in a filter expression tree: a boolean group (And, Or,
// Nor) over children, or a Leaf constraining one field.
//
// The zero value is an empty And, which matches everything.
type Expr struct {
	Kind     Kind
	Children []Expr
	Field    string
	Conds    []Cond
}

// Empty returns an expression with no constraints.
func Empty() Expr { return Expr{Kind: KindAnd} }

// IsEmpty reports whether the expression constrains nothing.
func (e Expr) IsEmpty() bool {
	return e.Kind != KindLeaf && len(e.Children) == 0
}

func And(children ...Expr) Expr { return group(KindAnd, children) }
func Or(children ...Expr) Expr  { return group(KindOr, children) }
func Nor(children ...Expr) Expr { return group(KindNor, children) }

func group(kind Kind, children []Expr) Expr {
	out := make([]Expr, 0, len(children))
	for _, c := range children {
		if c.IsEmpty() {
			continue
		}
		out = append(out, c)
	}
	return Expr{Kind: kind, Children: out}
}

// Leaf builds a leaf on field with the given conditions.
func Leaf(field string, conds ...Cond) Expr {
	return Expr{Kind: KindLeaf, Field: field, Conds: conds}
}

// Eq matches field == v.
func Eq(field string, v any) Expr { return Leaf(field, Cmp(OpEq, v)) }

// Ne matches field != v.
func Ne(field string, v any) Expr { return Leaf(field, Cmp(OpNe, v)) }

// In matches when field equals any of values.
func In(field string, values []string) Expr {
	return Leaf(field, Cmp(OpIn, toAny(values)))
}

// NotIn matches when field equals none of values.
func NotIn(field string, values []string) Expr {
	return Leaf(field, Cmp(OpNotIn, toAny(values)))
}

// Regex matches field against a case-insensitive regular expression.
func Regex(field, pattern string) Expr {
	return Leaf(field, Cmp(OpRegex, pattern))
}

// RegexCase matches field against a case-sensitive regular expression.
func RegexCase(field, pattern string) Expr {
	return Leaf(field, Cmp(OpRegexCase, pattern))
}

// Exists matches on the presence (or absence) of field.
func Exists(field string, exists bool) Expr {
	return Leaf(field, Cmp(OpExists, exists))
}

// ElemMatch requires all sub-conditions to hold within one element of the
// array at field. Sub-condition fields are relative to the element.
func ElemMatch(field string, subs ...Expr) Expr {
	return Leaf(field, Cond{Op: OpElemMatch, Elem: subs})
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// Walk calls fn for e and every descendant, depth first.
func Walk(e Expr, fn func(Expr)) {
	fn(e)
	for _, c := range e.Children {
		Walk(c, fn)
	}
}

// Columns returns the sorted, deduplicated dotted field paths referenced by
// the leaves of e. ElemMatch sub-fields are joined onto their array field.
func Columns(e Expr) []string {
	seen := make(map[string]struct{})
	Walk(e, func(n Expr) {
		if n.Kind != KindLeaf {
			return
		}
		collectLeafColumns(n, "", seen)
	})
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func collectLeafColumns(n Expr, prefix string, seen map[string]struct{}) {
	field := n.Field
	if prefix != "" {
		field = prefix + "." + field
	}
	hasElem := false
	for _, c := range n.Conds {
		if c.Op != OpElemMatch {
			continue
		}
		hasElem = true
		for _, sub := range c.Elem {
			collectLeafColumns(sub, field, seen)
		}
	}
	if !hasElem {
		seen[field] = struct{}{}
	}
}

// String renders a compact, deterministic form of the expression. It is
// used for logging and for structural comparison.
func (e Expr) String() string {
	var b strings.Builder
	e.write(&b)
	return b.String()
}

func (e Expr) write(b *strings.Builder) {
	if e.Kind != KindLeaf {
		b.WriteString(e.Kind.String())
		b.WriteByte('(')
		for i, c := range e.Children {
			if i > 0 {
				b.WriteByte(',')
			}
			c.write(b)
		}
		b.WriteByte(')')
		return
	}
	b.WriteString(e.Field)
	b.WriteByte('{')
	for i, c := range e.Conds {
		if i > 0 {
			b.WriteByte(',')
		}
		if c.Op == OpEq {
			b.WriteString("$eq")
		} else {
			b.WriteString(c.Op.Operator())
		}
		b.WriteByte(':')
		if c.Op == OpElemMatch {
			for j, sub := range c.Elem {
				if j > 0 {
					b.WriteByte(';')
				}
				sub.write(b)
			}
			continue
		}
		fmt.Fprintf(b, "%#v", c.Value)
		if c.Op == OpRegexCase {
			b.WriteString(`,$options:""`)
		}
	}
	b.WriteByte('}')
}
