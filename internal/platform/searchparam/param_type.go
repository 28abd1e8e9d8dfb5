package searchparam

import (
	"fmt"
	"strings"
)

// ParamType is the search grammar a parameter is matched with.
type ParamType int

const (
	TypeString    ParamType = iota + 1 // exact or list membership on the raw value
	TypeURI                            // exact equality only
	TypeID                             // resource id, list aware
	TypeToken                          // system|code pairs
	TypeDate                           // partial-precision date
	TypeDateTime                       // partial-precision dateTime
	TypeInstant                        // full-precision instant
	TypePeriod                         // start/end range
	TypeTiming                         // event list or boundsPeriod
	TypeReference                      // Type/id references
	TypeQuantity                       // number|system|code
	TypeNumber                         // implicit-precision decimal
	TypeCanonical                      // URL-shaped identifiers
)

var paramTypeNames = map[ParamType]string{
	TypeString:    "string",
	TypeURI:       "uri",
	TypeID:        "id",
	TypeToken:     "token",
	TypeDate:      "date",
	TypeDateTime:  "dateTime",
	TypeInstant:   "instant",
	TypePeriod:    "period",
	TypeTiming:    "timing",
	TypeReference: "reference",
	TypeQuantity:  "quantity",
	TypeNumber:    "number",
	TypeCanonical: "canonical",
}

// ParseParamType maps a registry type name to a ParamType. Matching is
// case-insensitive.
func ParseParamType(s string) (ParamType, error) {
	for t, name := range paramTypeNames {
		if strings.EqualFold(name, s) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown search parameter type %q", s)
}

func (t ParamType) String() string {
	if name, ok := paramTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ParamType(%d)", int(t))
}

// Valid reports whether t is one of the declared types.
func (t ParamType) Valid() bool {
	_, ok := paramTypeNames[t]
	return ok
}

// IsDate reports whether t is one of the date-family grammars.
func (t ParamType) IsDate() bool {
	switch t {
	case TypeDate, TypeDateTime, TypeInstant, TypePeriod, TypeTiming:
		return true
	}
	return false
}

// MarshalText implements encoding.TextMarshaler.
func (t ParamType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid search parameter type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ParamType) UnmarshalText(b []byte) error {
	parsed, err := ParseParamType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
