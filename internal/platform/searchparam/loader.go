package searchparam

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed registry.yaml
var defaultRegistry []byte

type registryFile struct {
	Resources map[string]map[string]paramEntry `yaml:"resources"`
}

type paramEntry struct {
	Field       string   `yaml:"field"`
	Fields      []string `yaml:"fields"`
	Type        string   `yaml:"type"`
	Target      []string `yaml:"target"`
	FieldFilter string   `yaml:"fieldFilter"`
	Expression  string   `yaml:"expression"`
	Description string   `yaml:"description"`
}

// Load parses a YAML registry document.
func Load(r io.Reader) (*Registry, error) {
	var f registryFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding search parameter registry: %w", err)
	}

	defs := make(map[string]map[string]Definition, len(f.Resources))
	for resourceType, params := range f.Resources {
		table := make(map[string]Definition, len(params))
		for name, e := range params {
			t, err := ParseParamType(e.Type)
			if err != nil {
				return nil, &DefinitionError{Resource: resourceType, Param: name, Reason: err.Error()}
			}
			table[name] = Definition{
				Name:        name,
				Field:       e.Field,
				Fields:      e.Fields,
				Type:        t,
				Target:      e.Target,
				FieldFilter: e.FieldFilter,
				Expression:  e.Expression,
				Description: e.Description,
			}
		}
		defs[resourceType] = table
	}
	return New(defs)
}

// LoadFile parses the YAML registry at path.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading search parameter registry: %w", err)
	}
	return Load(bytes.NewReader(data))
}

// Default returns the registry embedded in the binary.
func Default() (*Registry, error) {
	return Load(bytes.NewReader(defaultRegistry))
}
