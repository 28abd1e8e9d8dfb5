package filter

// Simplify returns an equivalent, flatter expression:
//
//   - empty groups are dropped
//   - an And nested in an And (or Or in Or) is merged into its parent
//   - duplicate children are removed
//   - an Or of equality/$in leaves on the same field becomes one $in
//   - a single-value $in becomes an equality
//   - an And or Or with one child is replaced by that child
//
// Nor groups are never merged or unwrapped.
func Simplify(e Expr) Expr {
	if e.Kind == KindLeaf {
		return simplifyLeaf(e)
	}

	children := make([]Expr, 0, len(e.Children))
	for _, c := range e.Children {
		c = Simplify(c)
		if c.IsEmpty() {
			continue
		}
		if c.Kind == e.Kind && e.Kind != KindNor {
			children = append(children, c.Children...)
			continue
		}
		children = append(children, c)
	}
	children = dedupe(children)
	if e.Kind == KindOr {
		children = mergeEqualities(children)
	}

	switch {
	case len(children) == 0:
		return Empty()
	case len(children) == 1 && e.Kind != KindNor:
		return children[0]
	}
	return Expr{Kind: e.Kind, Children: children}
}

func simplifyLeaf(e Expr) Expr {
	if len(e.Conds) != 1 || e.Conds[0].Op != OpIn {
		return e
	}
	vals := bsonArray(e.Conds[0].Value)
	if len(vals) != 1 {
		return e
	}
	return Eq(e.Field, vals[0])
}

func dedupe(children []Expr) []Expr {
	seen := make(map[string]struct{}, len(children))
	out := children[:0]
	for _, c := range children {
		k := c.String()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}

// mergeEqualities folds same-field scalar equality and $in leaves of an Or
// into one $in leaf, kept at the position of the first one.
func mergeEqualities(children []Expr) []Expr {
	type bucket struct {
		pos    int
		count  int
		values []any
	}
	buckets := make(map[string]*bucket)
	for i, c := range children {
		vals, ok := equalityValues(c)
		if !ok {
			continue
		}
		b, exists := buckets[c.Field]
		if !exists {
			b = &bucket{pos: i}
			buckets[c.Field] = b
		}
		b.count++
		b.values = appendUnique(b.values, vals...)
	}

	out := make([]Expr, 0, len(children))
	for i, c := range children {
		if _, ok := equalityValues(c); !ok {
			out = append(out, c)
			continue
		}
		b := buckets[c.Field]
		if b.count == 1 {
			out = append(out, c)
			continue
		}
		if b.pos != i {
			continue
		}
		out = append(out, Leaf(c.Field, Cmp(OpIn, b.values)))
	}
	return out
}

func equalityValues(e Expr) ([]any, bool) {
	if e.Kind != KindLeaf || len(e.Conds) != 1 {
		return nil, false
	}
	c := e.Conds[0]
	switch c.Op {
	case OpEq:
		if !isScalar(c.Value) {
			return nil, false
		}
		return []any{c.Value}, true
	case OpIn:
		return []any(bsonArray(c.Value)), true
	}
	return nil, false
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int32, int64, float64:
		return true
	}
	return false
}

func appendUnique(dst []any, vals ...any) []any {
	for _, v := range vals {
		dup := false
		for _, d := range dst {
			if d == v {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}
