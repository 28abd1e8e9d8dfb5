package fhirtypes

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gofhir/fhir/r4"

	"github.com/ehr/fhirsearch/pkg/fhirmodels"
)

// LoadStructureDefinitions reads a StructureDefinition, or a Bundle of
// them, and returns field type entries keyed as "ResourceType.path".
// Only snapshot elements are used; choice elements (value[x]) expand to
// one entry per allowed type.
func LoadStructureDefinitions(r io.Reader) (map[string]FieldType, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading structure definitions: %w", err)
	}

	var probe struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decoding structure definitions: %w", err)
	}

	out := make(map[string]FieldType)
	switch probe.ResourceType {
	case "StructureDefinition":
		var sd r4.StructureDefinition
		if err := json.Unmarshal(data, &sd); err != nil {
			return nil, fmt.Errorf("decoding StructureDefinition: %w", err)
		}
		addStructureDefinition(out, &sd)
	case "Bundle":
		var bundle struct {
			Entry []struct {
				Resource json.RawMessage `json:"resource"`
			} `json:"entry"`
		}
		if err := json.Unmarshal(data, &bundle); err != nil {
			return nil, fmt.Errorf("decoding Bundle: %w", err)
		}
		for i, entry := range bundle.Entry {
			if entry.Resource == nil {
				continue
			}
			if err := json.Unmarshal(entry.Resource, &probe); err != nil {
				return nil, fmt.Errorf("decoding bundle entry %d: %w", i, err)
			}
			if probe.ResourceType != "StructureDefinition" {
				continue
			}
			var sd r4.StructureDefinition
			if err := json.Unmarshal(entry.Resource, &sd); err != nil {
				return nil, fmt.Errorf("decoding bundle entry %d: %w", i, err)
			}
			addStructureDefinition(out, &sd)
		}
	default:
		return nil, fmt.Errorf("unsupported resourceType %q, want StructureDefinition or Bundle", probe.ResourceType)
	}
	return out, nil
}

func addStructureDefinition(out map[string]FieldType, sd *r4.StructureDefinition) {
	if sd.Snapshot == nil {
		return
	}
	for i := range sd.Snapshot.Element {
		ed := &sd.Snapshot.Element[i]
		path := derefString(ed.Path)
		root, rest, found := strings.Cut(path, ".")
		if !found || rest == "" || len(ed.Type) == 0 {
			continue
		}
		card := cardinality(derefString(ed.Max))

		if strings.HasSuffix(rest, "[x]") {
			base := strings.TrimSuffix(rest, "[x]")
			for j := range ed.Type {
				code := derefString(ed.Type[j].Code)
				if code == "" {
					continue
				}
				out[root+"."+base+fhirmodels.ChoiceSuffix(code)] = FieldType{Shape: code, Cardinality: card}
			}
			continue
		}

		code := derefString(ed.Type[0].Code)
		if code == "" {
			continue
		}
		out[root+"."+rest] = FieldType{Shape: code, Cardinality: card}
	}
}

func cardinality(max string) fhirmodels.Cardinality {
	switch max {
	case "":
		return fhirmodels.CardinalityUnknown
	case "*":
		return fhirmodels.CardinalityMulti
	}
	n, err := strconv.Atoi(max)
	if err != nil {
		return fhirmodels.CardinalityUnknown
	}
	if n > 1 {
		return fhirmodels.CardinalityMulti
	}
	return fhirmodels.CardinalitySingle
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
