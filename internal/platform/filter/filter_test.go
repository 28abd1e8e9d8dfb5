package filter

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// ---------------------------------------------------------------------------
// Rendering tests
// ---------------------------------------------------------------------------

func TestMap_Equality(t *testing.T) {
	got := Map(Eq("for.reference", "Patient/1234"))
	want := bson.M{"for.reference": "Patient/1234"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Map = %v, want %v", got, want)
	}
}

func TestMap_Range(t *testing.T) {
	got := Map(Leaf("value", Cmp(OpGte, 99.5), Cmp(OpLt, 100.5)))
	want := bson.M{"value": bson.M{"$gte": 99.5, "$lt": 100.5}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Map = %v, want %v", got, want)
	}
}

func TestMap_RegexCarriesOptions(t *testing.T) {
	got := Map(Regex("name.family", "^smi"))
	want := bson.M{"name.family": bson.M{"$regex": "^smi", "$options": "i"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Map = %v, want %v", got, want)
	}
}

func TestRegexCase_RendersWithoutOptions(t *testing.T) {
	e := RegexCase("subject.reference", "(^|/)abc$")
	if got, want := Map(e), (bson.M{"subject.reference": bson.M{"$regex": "(^|/)abc$"}}); !reflect.DeepEqual(got, want) {
		t.Errorf("Map = %v, want %v", got, want)
	}
	if got, want := Document(e), (bson.D{{Key: "subject.reference", Value: bson.D{{Key: "$regex", Value: "(^|/)abc$"}}}}); !reflect.DeepEqual(got, want) {
		t.Errorf("Document = %v, want %v", got, want)
	}
	if Regex("f", "x").String() == RegexCase("f", "x").String() {
		t.Error("case-sensitive and case-insensitive regex leaves should print differently")
	}
}

func TestMap_InAndNotIn(t *testing.T) {
	got := Map(In("id", []string{"a", "b"}))
	want := bson.M{"id": bson.M{"$in": bson.A{"a", "b"}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Map(In) = %v, want %v", got, want)
	}

	got = Map(NotIn("id", []string{"a"}))
	want = bson.M{"id": bson.M{"$nin": bson.A{"a"}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Map(NotIn) = %v, want %v", got, want)
	}
}

func TestMap_ElemMatch(t *testing.T) {
	got := Map(ElemMatch("identifier", Eq("system", "urn:mrn"), Eq("value", "123")))
	want := bson.M{"identifier": bson.M{"$elemMatch": bson.M{"system": "urn:mrn", "value": "123"}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Map = %v, want %v", got, want)
	}
}

func TestMap_Groups(t *testing.T) {
	e := And(Eq("a", 1), Or(Eq("b", 2), Nor(Exists("c", true))))
	got := Map(e)
	want := bson.M{"$and": bson.A{
		bson.M{"a": 1},
		bson.M{"$or": bson.A{
			bson.M{"b": 2},
			bson.M{"$nor": bson.A{bson.M{"c": bson.M{"$exists": true}}}},
		}},
	}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Map = %v, want %v", got, want)
	}
}

func TestDocument_EmptyExpression(t *testing.T) {
	if d := Document(Empty()); len(d) != 0 {
		t.Errorf("Document(Empty()) = %v, want {}", d)
	}
	if d := Document(Expr{}); len(d) != 0 {
		t.Errorf("Document(zero) = %v, want {}", d)
	}
}

func TestDocument_PreservesConditionOrder(t *testing.T) {
	d := Document(Leaf("v", Cmp(OpGte, 1), Cmp(OpLt, 2)))
	inner, ok := d[0].Value.(bson.D)
	if !ok {
		t.Fatalf("leaf value type = %T, want bson.D", d[0].Value)
	}
	if inner[0].Key != "$gte" || inner[1].Key != "$lt" {
		t.Errorf("keys = %s,%s, want $gte,$lt", inner[0].Key, inner[1].Key)
	}
}

func TestMarshalExtJSON_Relaxed(t *testing.T) {
	ts := time.Date(2021, 9, 22, 0, 0, 0, 0, time.UTC)
	out, err := MarshalExtJSON(And(Leaf("recorded", Cmp(OpLt, ts)), Eq("_access.medstar", 1)), false)
	if err != nil {
		t.Fatalf("MarshalExtJSON: %v", err)
	}
	s := string(out)
	if !strings.Contains(s, `"$date":"2021-09-22T00:00:00Z"`) {
		t.Errorf("output %s missing relaxed date", s)
	}
	if !strings.Contains(s, `"_access.medstar":1`) {
		t.Errorf("output %s missing access leaf", s)
	}
}

// ---------------------------------------------------------------------------
// Simplify tests
// ---------------------------------------------------------------------------

func TestSimplify_CollapsesSingleChild(t *testing.T) {
	got := Simplify(And(Eq("for.reference", "Patient/1")))
	if got.Kind != KindLeaf || got.Field != "for.reference" {
		t.Errorf("Simplify = %s, want leaf", got)
	}
}

func TestSimplify_KeepsSingleChildNor(t *testing.T) {
	got := Simplify(Nor(Eq("a", "x")))
	if got.Kind != KindNor || len(got.Children) != 1 {
		t.Errorf("Simplify = %s, want nor with one child", got)
	}
}

func TestSimplify_FlattensNestedGroups(t *testing.T) {
	got := Simplify(And(Eq("a", "1"), And(Eq("b", "2"), And(Eq("c", "3")))))
	if got.Kind != KindAnd || len(got.Children) != 3 {
		t.Errorf("Simplify = %s, want flat and of 3", got)
	}
}

func TestSimplify_DropsEmptyAndDuplicates(t *testing.T) {
	got := Simplify(And(Eq("a", "1"), Empty(), Or(), Eq("a", "1"), Eq("b", "2")))
	want := And(Eq("a", "1"), Eq("b", "2"))
	if got.String() != want.String() {
		t.Errorf("Simplify = %s, want %s", got, want)
	}
}

func TestSimplify_OrOfEqualitiesBecomesIn(t *testing.T) {
	got := Simplify(Or(Eq("code", "a"), Eq("code", "b"), In("code", []string{"b", "c"})))
	want := bson.M{"code": bson.M{"$in": bson.A{"a", "b", "c"}}}
	if !reflect.DeepEqual(Map(got), want) {
		t.Errorf("Simplify = %v, want %v", Map(got), want)
	}
}

func TestSimplify_OrMixedFieldsUntouched(t *testing.T) {
	got := Simplify(Or(Eq("a", "1"), Eq("b", "2")))
	if got.Kind != KindOr || len(got.Children) != 2 {
		t.Errorf("Simplify = %s, want or of 2", got)
	}
}

func TestSimplify_SingleValueInBecomesEq(t *testing.T) {
	got := Map(Simplify(In("id", []string{"a"})))
	want := bson.M{"id": "a"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Simplify = %v, want %v", got, want)
	}
}

func TestSimplify_AllEmpty(t *testing.T) {
	if got := Simplify(And(Or(), And())); !got.IsEmpty() {
		t.Errorf("Simplify = %s, want empty", got)
	}
}

// ---------------------------------------------------------------------------
// Columns / HintSet tests
// ---------------------------------------------------------------------------

func TestColumns(t *testing.T) {
	e := And(
		ElemMatch("code.coding", Eq("system", "loinc"), Eq("code", "1234-5")),
		Or(Eq("subject.reference", "Patient/1"), Regex("subject.reference", "1$")),
		Eq("id", "x"),
	)
	got := Columns(e)
	want := []string{"code.coding.code", "code.coding.system", "id", "subject.reference"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Columns = %v, want %v", got, want)
	}
}

func TestHintSet(t *testing.T) {
	h := NewHintSet()
	h.Add("b", "a", "", "b")
	h.AddColumns(Eq("c", 1))
	if h.Len() != 3 {
		t.Errorf("Len = %d, want 3", h.Len())
	}
	if !h.Has("a") || h.Has("") {
		t.Error("Has mismatch")
	}
	if got := h.Sorted(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("Sorted = %v", got)
	}

	var nilSet *HintSet
	if nilSet.Len() != 0 || nilSet.Has("a") || nilSet.Sorted() != nil {
		t.Error("nil HintSet should behave as empty")
	}
}

func TestString_Deterministic(t *testing.T) {
	e := And(Eq("a", "1"), Leaf("b", Cmp(OpGt, 2.5)))
	if e.String() != e.String() {
		t.Error("String should be deterministic")
	}
	if !strings.HasPrefix(e.String(), "and(") {
		t.Errorf("String = %s", e.String())
	}
}
