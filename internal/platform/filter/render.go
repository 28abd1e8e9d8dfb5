package filter

import (
	"go.mongodb.org/mongo-driver/bson"
)

// RegexOptions are the options attached to a case-insensitive $regex.
// A case-sensitive $regex renders without options.
const RegexOptions = "i"

// Document renders e as an ordered BSON document suitable for a
// collection Find. An empty expression renders as {}.
func Document(e Expr) bson.D {
	if e.IsEmpty() {
		return bson.D{}
	}
	if e.Kind == KindLeaf {
		return bson.D{{Key: e.Field, Value: condDocument(e.Conds)}}
	}
	arr := make(bson.A, 0, len(e.Children))
	for _, c := range e.Children {
		arr = append(arr, Document(c))
	}
	return bson.D{{Key: "$" + e.Kind.String(), Value: arr}}
}

func condDocument(conds []Cond) any {
	if len(conds) == 1 && conds[0].Op == OpEq {
		return conds[0].Value
	}
	d := bson.D{}
	for _, c := range conds {
		switch c.Op {
		case OpEq:
			d = append(d, bson.E{Key: "$eq", Value: c.Value})
		case OpRegex:
			d = append(d, bson.E{Key: "$regex", Value: c.Value}, bson.E{Key: "$options", Value: RegexOptions})
		case OpIn, OpNotIn:
			d = append(d, bson.E{Key: c.Op.Operator(), Value: bsonArray(c.Value)})
		case OpElemMatch:
			sub := bson.D{}
			for _, s := range c.Elem {
				sub = append(sub, Document(s)...)
			}
			d = append(d, bson.E{Key: "$elemMatch", Value: sub})
		default:
			d = append(d, bson.E{Key: c.Op.Operator(), Value: c.Value})
		}
	}
	return d
}

// Map renders e as an unordered BSON map. It is mostly useful for
// comparing expressions structurally.
func Map(e Expr) bson.M {
	if e.IsEmpty() {
		return bson.M{}
	}
	if e.Kind == KindLeaf {
		return bson.M{e.Field: condMap(e.Conds)}
	}
	arr := make(bson.A, 0, len(e.Children))
	for _, c := range e.Children {
		arr = append(arr, Map(c))
	}
	return bson.M{"$" + e.Kind.String(): arr}
}

func condMap(conds []Cond) any {
	if len(conds) == 1 && conds[0].Op == OpEq {
		return conds[0].Value
	}
	m := bson.M{}
	for _, c := range conds {
		switch c.Op {
		case OpEq:
			m["$eq"] = c.Value
		case OpRegex:
			m["$regex"] = c.Value
			m["$options"] = RegexOptions
		case OpIn, OpNotIn:
			m[c.Op.Operator()] = bsonArray(c.Value)
		case OpElemMatch:
			sub := bson.M{}
			for _, s := range c.Elem {
				for k, v := range Map(s) {
					sub[k] = v
				}
			}
			m["$elemMatch"] = sub
		default:
			m[c.Op.Operator()] = c.Value
		}
	}
	return m
}

func bsonArray(v any) bson.A {
	switch vals := v.(type) {
	case []any:
		return bson.A(vals)
	case []string:
		out := make(bson.A, len(vals))
		for i, s := range vals {
			out[i] = s
		}
		return out
	case bson.A:
		return vals
	default:
		return bson.A{v}
	}
}

// MarshalExtJSON renders e as MongoDB extended JSON. Relaxed mode prints
// numbers and dates in their natural JSON forms.
func MarshalExtJSON(e Expr, canonical bool) ([]byte, error) {
	return bson.MarshalExtJSON(Document(e), canonical, false)
}
