package fhir

import (
	"encoding/json"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/ehr/fhirsearch/pkg/pagination"
)

func TestNewSearchBundle(t *testing.T) {
	resources := []bson.M{
		{"id": "1", "resourceType": "Patient"},
		{"id": "2", "resourceType": "Patient"},
	}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	bundle, err := NewSearchBundle(resources, SearchBundleParams{
		ID:       "b-1",
		BasePath: "/fhir/Patient",
		Query:    "family=smith",
		Page:     pagination.Params{Limit: 2, Offset: 0},
		Total:    10,
		Now:      now,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if bundle.ResourceType != "Bundle" {
		t.Errorf("expected resourceType Bundle, got %s", bundle.ResourceType)
	}
	if bundle.Type != "searchset" {
		t.Errorf("expected type searchset, got %s", bundle.Type)
	}
	if *bundle.Total != 10 {
		t.Errorf("expected total 10, got %d", *bundle.Total)
	}
	if !bundle.Timestamp.Equal(now) {
		t.Errorf("expected timestamp %v, got %v", now, bundle.Timestamp)
	}
	if len(bundle.Entry) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(bundle.Entry))
	}
	if bundle.Entry[0].Search == nil || bundle.Entry[0].Search.Mode != "match" {
		t.Error("expected search mode 'match'")
	}
	if bundle.Entry[1].FullURL != "/fhir/Patient/2" {
		t.Errorf("expected fullUrl /fhir/Patient/2, got %q", bundle.Entry[1].FullURL)
	}

	var res map[string]string
	if err := json.Unmarshal(bundle.Entry[0].Resource, &res); err != nil {
		t.Fatalf("failed to decode entry: %v", err)
	}
	if res["id"] != "1" {
		t.Errorf("expected entry id 1, got %q", res["id"])
	}
}

func TestNewSearchBundle_Links(t *testing.T) {
	bundle, err := NewSearchBundle(nil, SearchBundleParams{
		BasePath: "/fhir/Observation",
		Query:    "code=8867-4",
		Page:     pagination.Params{Limit: 10, Offset: 10},
		Total:    25,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	links := make(map[string]string)
	for _, l := range bundle.Link {
		links[l.Relation] = l.URL
	}
	want := map[string]string{
		"self":     "/fhir/Observation?code=8867-4&_offset=10&_count=10",
		"next":     "/fhir/Observation?code=8867-4&_offset=20&_count=10",
		"previous": "/fhir/Observation?code=8867-4&_offset=0&_count=10",
	}
	for rel, url := range want {
		if links[rel] != url {
			t.Errorf("%s: expected %q, got %q", rel, url, links[rel])
		}
	}
	if len(bundle.Entry) != 0 {
		t.Errorf("expected no entries, got %d", len(bundle.Entry))
	}
}

func TestNewSearchBundle_NoID(t *testing.T) {
	bundle, err := NewSearchBundle([]bson.M{{"resourceType": "Patient"}}, SearchBundleParams{
		BasePath: "/fhir/Patient",
		Page:     pagination.Params{Limit: 10},
		Total:    1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.Entry[0].FullURL != "" {
		t.Errorf("expected empty fullUrl, got %q", bundle.Entry[0].FullURL)
	}
}
