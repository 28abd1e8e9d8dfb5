package searchparam

import (
	"errors"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// ParamType tests
// ---------------------------------------------------------------------------

func TestParseParamType(t *testing.T) {
	tests := []struct {
		in   string
		want ParamType
	}{
		{"string", TypeString},
		{"token", TypeToken},
		{"dateTime", TypeDateTime},
		{"datetime", TypeDateTime},
		{"period", TypePeriod},
		{"canonical", TypeCanonical},
	}
	for _, tt := range tests {
		got, err := ParseParamType(tt.in)
		if err != nil {
			t.Errorf("ParseParamType(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseParamType(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseParamType("composite"); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestParamType_Helpers(t *testing.T) {
	if !TypeTiming.IsDate() || TypeNumber.IsDate() {
		t.Error("IsDate mismatch")
	}
	if ParamType(0).Valid() {
		t.Error("zero ParamType should be invalid")
	}
	if got := ParamType(99).String(); got != "ParamType(99)" {
		t.Errorf("String = %q", got)
	}

	var pt ParamType
	if err := pt.UnmarshalText([]byte("reference")); err != nil || pt != TypeReference {
		t.Errorf("UnmarshalText = %v, %v", pt, err)
	}
	b, err := TypeQuantity.MarshalText()
	if err != nil || string(b) != "quantity" {
		t.Errorf("MarshalText = %q, %v", b, err)
	}
}

// ---------------------------------------------------------------------------
// Definition tests
// ---------------------------------------------------------------------------

func TestDefinition_Paths(t *testing.T) {
	d := &Definition{Field: "code"}
	if got := d.Paths(); len(got) != 1 || got[0] != "code" {
		t.Errorf("Paths = %v", got)
	}
	d = &Definition{Field: "code", Fields: []string{"code", "component.code"}}
	if got := d.Paths(); len(got) != 2 {
		t.Errorf("Paths = %v, want 2 paths", got)
	}
	if d.PrimaryPath() != "code" {
		t.Errorf("PrimaryPath = %q", d.PrimaryPath())
	}
	if (&Definition{}).PrimaryPath() != "" {
		t.Error("empty definition should have no primary path")
	}
}

func TestDefinition_RequiredSystem(t *testing.T) {
	tests := []struct {
		filter string
		want   string
		ok     bool
	}{
		{"system = 'email'", "email", true},
		{"system='phone'", "phone", true},
		{"[system/@value='email']", "email", true},
		{"use = 'home'", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		d := &Definition{FieldFilter: tt.filter}
		got, ok := d.RequiredSystem()
		if got != tt.want || ok != tt.ok {
			t.Errorf("RequiredSystem(%q) = %q,%v want %q,%v", tt.filter, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDefinition_HasTarget(t *testing.T) {
	d := &Definition{Target: []string{"Patient", "Group"}}
	if !d.HasTarget("patient") || d.HasTarget("Device") {
		t.Error("HasTarget mismatch")
	}
	if !(&Definition{}).HasTarget("Anything") {
		t.Error("empty target list should accept any type")
	}
}

// ---------------------------------------------------------------------------
// Registry tests
// ---------------------------------------------------------------------------

const testRegistry = `
resources:
  Resource:
    _id: {field: id, type: id}
    _tag: {field: meta.tag, type: token}
  Patient:
    _tag: {field: meta.tag, type: string}
    birthdate: {field: birthDate, type: date}
    email: {field: telecom, type: token, fieldFilter: "system = 'email'"}
    general-practitioner: {field: generalPractitioner, type: reference, target: [Practitioner]}
`

func TestLoad_LookupAndWildcard(t *testing.T) {
	r, err := Load(strings.NewReader(testRegistry))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	d, ok := r.Lookup("Patient", "birthdate")
	if !ok || d.Field != "birthDate" || d.Type != TypeDate || d.Name != "birthdate" {
		t.Errorf("Lookup(Patient, birthdate) = %+v, %v", d, ok)
	}

	d, ok = r.Lookup("Observation", "_id")
	if !ok || d.Type != TypeID {
		t.Errorf("wildcard Lookup(Observation, _id) = %+v, %v", d, ok)
	}

	d, ok = r.Lookup("Patient", "_tag")
	if !ok || d.Type != TypeString {
		t.Errorf("resource entry should shadow wildcard, got %+v", d)
	}

	if _, ok := r.Lookup("Patient", "nope"); ok {
		t.Error("unknown parameter should not resolve")
	}
}

func TestRegistry_ForResourceSortedAndMerged(t *testing.T) {
	r, err := Load(strings.NewReader(testRegistry))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defs := r.ForResource("Patient")
	var names []string
	for _, d := range defs {
		names = append(names, d.Name)
	}
	want := "_id,_tag,birthdate,email,general-practitioner"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("ForResource names = %s, want %s", got, want)
	}
	for _, d := range defs {
		if d.Name == "_tag" && d.Type != TypeString {
			t.Error("ForResource should prefer the resource-specific _tag")
		}
	}

	if got := r.ResourceTypes(); len(got) != 1 || got[0] != "Patient" {
		t.Errorf("ResourceTypes = %v", got)
	}
	if !r.Has("Patient") || r.Has("Observation") {
		t.Error("Has mismatch")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing field", "resources:\n  Patient:\n    x: {type: string}\n"},
		{"unknown type", "resources:\n  Patient:\n    x: {field: a, type: composite}\n"},
		{"target on token", "resources:\n  Patient:\n    x: {field: a, type: token, target: [Patient]}\n"},
		{"bad fieldFilter", "resources:\n  Patient:\n    x: {field: a, type: token, fieldFilter: \"system = = \"}\n"},
		{"unsupported fieldFilter", "resources:\n  Patient:\n    x: {field: telecom, type: token, fieldFilter: \"use = 'home'\"}\n"},
		{"empty fields entry", "resources:\n  Patient:\n    x: {fields: [a, \"\"], type: string}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalidDefinition) {
				t.Errorf("error %v should wrap ErrInvalidDefinition", err)
			}
			var de *DefinitionError
			if !errors.As(err, &de) || de.Param != "x" || de.Resource != "Patient" {
				t.Errorf("error %v should be a DefinitionError for Patient.x", err)
			}
		})
	}
}

func TestNew_SystemFieldFilterForms(t *testing.T) {
	for _, ff := range []string{"system = 'email'", "[system/@value='phone']"} {
		reg, err := New(map[string]map[string]Definition{
			"Patient": {"contact": {Field: "telecom", Type: TypeToken, FieldFilter: ff}},
		})
		if err != nil {
			t.Fatalf("New with fieldFilter %q: %v", ff, err)
		}
		d, _ := reg.Lookup("Patient", "contact")
		if _, ok := d.RequiredSystem(); !ok {
			t.Errorf("fieldFilter %q should pin a system", ff)
		}
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	_, err := Load(strings.NewReader("resources:\n  Patient:\n    x: {field: a, type: string, typo: 1}\n"))
	if err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile("/nonexistent/registry.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefault(t *testing.T) {
	r, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}

	tests := []struct {
		resource, param, field string
		typ                    ParamType
	}{
		{"Task", "subject", "for", TypeReference},
		{"AuditEvent", "date", "recorded", TypeInstant},
		{"AuditEvent", "_security", "meta.security", TypeToken},
		{"Patient", "email", "telecom", TypeToken},
		{"Task", "period", "executionPeriod", TypePeriod},
		{"RiskAssessment", "probability", "prediction.probabilityDecimal", TypeNumber},
		{"QuestionnaireResponse", "questionnaire", "questionnaire", TypeCanonical},
	}
	for _, tt := range tests {
		d, ok := r.Lookup(tt.resource, tt.param)
		if !ok {
			t.Errorf("%s.%s not registered", tt.resource, tt.param)
			continue
		}
		if d.PrimaryPath() != tt.field || d.Type != tt.typ {
			t.Errorf("%s.%s = %s/%v, want %s/%v", tt.resource, tt.param, d.PrimaryPath(), d.Type, tt.field, tt.typ)
		}
	}

	email, _ := r.Lookup("Patient", "email")
	if sys, ok := email.RequiredSystem(); !ok || sys != "email" {
		t.Errorf("Patient.email RequiredSystem = %q, %v", sys, ok)
	}
}
