package fhir

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/ehr/fhirsearch/pkg/pagination"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int64        `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *BundleSearch   `json:"search,omitempty"`
}

type BundleSearch struct {
	Mode string `json:"mode,omitempty"`
}

// SearchBundleParams holds pagination and link information for a search bundle.
type SearchBundleParams struct {
	ID       string
	BasePath string
	Query    string
	Page     pagination.Params
	Total    int64
	Now      time.Time
}

// NewSearchBundle creates a searchset Bundle from stored resource
// documents. Documents that cannot be encoded are reported as an error.
func NewSearchBundle(resources []bson.M, params SearchBundleParams) (*Bundle, error) {
	entries := make([]BundleEntry, 0, len(resources))
	for i, r := range resources {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encode entry %d: %w", i, err)
		}
		entries = append(entries, BundleEntry{
			FullURL:  fullURL(r, params.BasePath),
			Resource: raw,
			Search:   &BundleSearch{Mode: "match"},
		})
	}

	links := make([]BundleLink, 0, 3)
	for _, l := range params.Page.FHIRLinks(params.BasePath, params.Query, params.Total) {
		links = append(links, BundleLink{Relation: l.Relation, URL: l.URL})
	}

	now := params.Now.UTC()
	total := params.Total
	return &Bundle{
		ResourceType: "Bundle",
		ID:           params.ID,
		Type:         "searchset",
		Total:        &total,
		Timestamp:    &now,
		Link:         links,
		Entry:        entries,
	}, nil
}

// fullURL builds "<base>/<id>" from the document's id, if it has one.
func fullURL(r bson.M, basePath string) string {
	id, ok := r["id"].(string)
	if !ok || id == "" {
		return ""
	}
	return basePath + "/" + id
}
