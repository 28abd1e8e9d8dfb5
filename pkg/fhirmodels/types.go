package fhirmodels

// FHIR R4 data type names used to decide how a search value is matched
// against a stored element.

// Complex data types.
const (
	TypeCoding          = "Coding"
	TypeCodeableConcept = "CodeableConcept"
	TypeIdentifier      = "Identifier"
	TypeContactPoint    = "ContactPoint"
	TypeHumanName       = "HumanName"
	TypeAddress         = "Address"
	TypePeriod          = "Period"
	TypeTiming          = "Timing"
	TypeReference       = "Reference"
	TypeQuantity        = "Quantity"
	TypeExtension       = "Extension"
	TypeMeta            = "Meta"
)

// Primitive data types.
const (
	TypeCode      = "code"
	TypeBoolean   = "boolean"
	TypeString    = "string"
	TypeURI       = "uri"
	TypeURL       = "url"
	TypeCanonical = "canonical"
	TypeID        = "id"
	TypeDate      = "date"
	TypeDateTime  = "dateTime"
	TypeInstant   = "instant"
	TypeDecimal   = "decimal"
	TypeInteger   = "integer"
	TypeMarkdown  = "markdown"
)

// Cardinality describes whether an element holds one value or a list.
type Cardinality int

const (
	CardinalityUnknown Cardinality = iota
	CardinalitySingle
	CardinalityMulti
)

func (c Cardinality) String() string {
	switch c {
	case CardinalitySingle:
		return "single"
	case CardinalityMulti:
		return "multi"
	default:
		return "unknown"
	}
}

// IsPrimitive reports whether the type name is a FHIR primitive (lowercase initial).
func IsPrimitive(typeName string) bool {
	return typeName != "" && typeName[0] >= 'a' && typeName[0] <= 'z'
}

// ChoiceSuffix returns the element name suffix for a choice type, e.g.
// "Quantity" for value[x] typed as Quantity, "DateTime" for dateTime.
func ChoiceSuffix(typeName string) string {
	if typeName == "" {
		return ""
	}
	b := []byte(typeName)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
