package pagination

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestFromContext(t *testing.T) {
	tests := []struct {
		query  string
		limit  int
		offset int
	}{
		{"", DefaultLimit, 0},
		{"_count=25&_offset=5", 25, 5},
		{"limit=50&offset=10", 50, 10},
		{"_count=7&limit=50", 7, 0},
		{"_count=500", MaxLimit, 0},
		{"_count=0", DefaultLimit, 0},
		{"_count=abc&_offset=xyz", DefaultLimit, 0},
		{"offset=-5", DefaultLimit, 0},
	}
	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/fhir/Patient?"+tt.query, nil)
			p := FromContext(e.NewContext(req, httptest.NewRecorder()))
			if p.Limit != tt.limit || p.Offset != tt.offset {
				t.Errorf("FromContext(%q) = %+v, want limit %d offset %d", tt.query, p, tt.limit, tt.offset)
			}
		})
	}
}

func TestParams_Navigation(t *testing.T) {
	tests := []struct {
		name     string
		p        Params
		total    int64
		hasNext  bool
		hasPrev  bool
		next     int
		previous int
	}{
		{"first page", New(10, 0), 35, true, false, 10, 0},
		{"middle page", New(10, 10), 35, true, true, 20, 0},
		{"last page", New(10, 30), 35, false, true, 40, 20},
		{"short offset", New(10, 4), 35, true, true, 14, 0},
		{"exact fit", New(10, 0), 10, false, false, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.HasNext(tt.total); got != tt.hasNext {
				t.Errorf("HasNext = %v, want %v", got, tt.hasNext)
			}
			if got := tt.p.HasPrevious(); got != tt.hasPrev {
				t.Errorf("HasPrevious = %v, want %v", got, tt.hasPrev)
			}
			if got := tt.p.NextOffset(); got != tt.next {
				t.Errorf("NextOffset = %d, want %d", got, tt.next)
			}
			if got := tt.p.PreviousOffset(); got != tt.previous {
				t.Errorf("PreviousOffset = %d, want %d", got, tt.previous)
			}
		})
	}
}

func TestParams_FindOptions(t *testing.T) {
	p := New(15, 45)
	if p.Skip() != 45 || p.Limit64() != 15 {
		t.Errorf("Skip/Limit64 = %d/%d, want 45/15", p.Skip(), p.Limit64())
	}
}

func TestParams_FHIRLinks(t *testing.T) {
	got := New(2, 4).FHIRLinks("/fhir/Observation", "code=1234-5", 12)
	want := []FHIRLink{
		{Relation: "self", URL: "/fhir/Observation?code=1234-5&_offset=4&_count=2"},
		{Relation: "next", URL: "/fhir/Observation?code=1234-5&_offset=6&_count=2"},
		{Relation: "previous", URL: "/fhir/Observation?code=1234-5&_offset=2&_count=2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FHIRLinks = %+v, want %+v", got, want)
	}
}

func TestParams_FHIRLinks_SinglePage(t *testing.T) {
	got := New(20, 0).FHIRLinks("/fhir/Patient", "", 3)
	want := []FHIRLink{{Relation: "self", URL: "/fhir/Patient?_offset=0&_count=20"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FHIRLinks = %+v, want %+v", got, want)
	}
}
