package fhirtypes

import m "github.com/ehr/fhirsearch/pkg/fhirmodels"

func one(shape string) FieldType  { return FieldType{Shape: shape, Cardinality: m.CardinalitySingle} }
func many(shape string) FieldType { return FieldType{Shape: shape, Cardinality: m.CardinalityMulti} }

// builtin covers the element paths used by the default search parameter
// registry. StructureDefinitions loaded at startup extend or override it.
var builtin = map[string]FieldType{
	"Resource.id":                one(m.TypeID),
	"Resource.meta":              one(m.TypeMeta),
	"Resource.meta.source":       one(m.TypeURI),
	"Resource.meta.lastUpdated":  one(m.TypeInstant),
	"Resource.meta.security":     many(m.TypeCoding),
	"Resource.meta.tag":          many(m.TypeCoding),
	"Resource.meta.profile":      many(m.TypeCanonical),
	"DomainResource.extension":   many(m.TypeExtension),
	"DomainResource.text.div":    one(m.TypeString),
	"DomainResource.text.status": one(m.TypeCode),

	"Patient.name":                 many(m.TypeHumanName),
	"Patient.name.family":          one(m.TypeString),
	"Patient.name.given":           many(m.TypeString),
	"Patient.address":              many(m.TypeAddress),
	"Patient.address.city":         one(m.TypeString),
	"Patient.address.postalCode":   one(m.TypeString),
	"Patient.birthDate":            one(m.TypeDate),
	"Patient.gender":               one(m.TypeCode),
	"Patient.active":               one(m.TypeBoolean),
	"Patient.identifier":           many(m.TypeIdentifier),
	"Patient.telecom":              many(m.TypeContactPoint),
	"Patient.generalPractitioner":  many(m.TypeReference),
	"Patient.managingOrganization": one(m.TypeReference),
	"Patient.link.other":           one(m.TypeReference),

	"Person.name":        many(m.TypeHumanName),
	"Person.telecom":     many(m.TypeContactPoint),
	"Person.identifier":  many(m.TypeIdentifier),
	"Person.birthDate":   one(m.TypeDate),
	"Person.link.target": one(m.TypeReference),

	"Observation.code":                 one(m.TypeCodeableConcept),
	"Observation.category":             many(m.TypeCodeableConcept),
	"Observation.status":               one(m.TypeCode),
	"Observation.subject":              one(m.TypeReference),
	"Observation.encounter":            one(m.TypeReference),
	"Observation.identifier":           many(m.TypeIdentifier),
	"Observation.effectiveDateTime":    one(m.TypeDateTime),
	"Observation.effectivePeriod":      one(m.TypePeriod),
	"Observation.effectiveInstant":     one(m.TypeInstant),
	"Observation.valueQuantity":        one(m.TypeQuantity),
	"Observation.valueString":          one(m.TypeString),
	"Observation.valueCodeableConcept": one(m.TypeCodeableConcept),
	"Observation.component.code":       one(m.TypeCodeableConcept),
	"Observation.component":            many("BackboneElement"),

	"Encounter.period":                 one(m.TypePeriod),
	"Encounter.status":                 one(m.TypeCode),
	"Encounter.class":                  one(m.TypeCoding),
	"Encounter.type":                   many(m.TypeCodeableConcept),
	"Encounter.subject":                one(m.TypeReference),
	"Encounter.participant.individual": one(m.TypeReference),
	"Encounter.identifier":             many(m.TypeIdentifier),

	"AuditEvent.recorded":    one(m.TypeInstant),
	"AuditEvent.agent.who":   one(m.TypeReference),
	"AuditEvent.agent.altId": one(m.TypeString),
	"AuditEvent.action":      one(m.TypeCode),
	"AuditEvent.type":        one(m.TypeCoding),
	"AuditEvent.subtype":     many(m.TypeCoding),
	"AuditEvent.entity.what": one(m.TypeReference),
	"AuditEvent.source.site": one(m.TypeString),

	"Task.for":             one(m.TypeReference),
	"Task.status":          one(m.TypeCode),
	"Task.code":            one(m.TypeCodeableConcept),
	"Task.identifier":      many(m.TypeIdentifier),
	"Task.executionPeriod": one(m.TypePeriod),
	"Task.authoredOn":      one(m.TypeDateTime),
	"Task.owner":           one(m.TypeReference),
	"Task.focus":           one(m.TypeReference),
	"Task.businessStatus":  one(m.TypeCodeableConcept),

	"Condition.onsetDateTime":  one(m.TypeDateTime),
	"Condition.code":           one(m.TypeCodeableConcept),
	"Condition.clinicalStatus": one(m.TypeCodeableConcept),
	"Condition.subject":        one(m.TypeReference),
	"Condition.recordedDate":   one(m.TypeDateTime),

	"RiskAssessment.prediction.probabilityDecimal": one(m.TypeDecimal),
	"RiskAssessment.subject":                       one(m.TypeReference),
	"RiskAssessment.occurrenceDateTime":            one(m.TypeDateTime),

	"MedicationRequest.authoredOn":                one(m.TypeDateTime),
	"MedicationRequest.status":                    one(m.TypeCode),
	"MedicationRequest.intent":                    one(m.TypeCode),
	"MedicationRequest.medicationCodeableConcept": one(m.TypeCodeableConcept),
	"MedicationRequest.medicationReference":       one(m.TypeReference),
	"MedicationRequest.subject":                   one(m.TypeReference),

	"ServiceRequest.occurrenceDateTime": one(m.TypeDateTime),
	"ServiceRequest.occurrencePeriod":   one(m.TypePeriod),
	"ServiceRequest.occurrenceTiming":   one(m.TypeTiming),
	"ServiceRequest.code":               one(m.TypeCodeableConcept),
	"ServiceRequest.status":             one(m.TypeCode),
	"ServiceRequest.subject":            one(m.TypeReference),

	"Questionnaire.url":     one(m.TypeURI),
	"Questionnaire.name":    one(m.TypeString),
	"Questionnaire.status":  one(m.TypeCode),
	"Questionnaire.version": one(m.TypeString),

	"QuestionnaireResponse.questionnaire": one(m.TypeCanonical),
	"QuestionnaireResponse.status":        one(m.TypeCode),
	"QuestionnaireResponse.subject":       one(m.TypeReference),
	"QuestionnaireResponse.authored":      one(m.TypeDateTime),

	"Practitioner.name":       many(m.TypeHumanName),
	"Practitioner.identifier": many(m.TypeIdentifier),
	"Practitioner.telecom":    many(m.TypeContactPoint),
	"Practitioner.active":     one(m.TypeBoolean),

	"Organization.name":       one(m.TypeString),
	"Organization.identifier": many(m.TypeIdentifier),
	"Organization.type":       many(m.TypeCodeableConcept),
	"Organization.partOf":     one(m.TypeReference),
	"Organization.address":    many(m.TypeAddress),

	"Group.member.entity": one(m.TypeReference),
	"Group.code":          one(m.TypeCodeableConcept),
	"Group.type":          one(m.TypeCode),

	"Consent.patient":          one(m.TypeReference),
	"Consent.status":           one(m.TypeCode),
	"Consent.category":         many(m.TypeCodeableConcept),
	"Consent.provision.period": one(m.TypePeriod),

	"Appointment.start":             one(m.TypeInstant),
	"Appointment.status":            one(m.TypeCode),
	"Appointment.participant.actor": one(m.TypeReference),

	"DocumentReference.subject":  one(m.TypeReference),
	"DocumentReference.type":     one(m.TypeCodeableConcept),
	"DocumentReference.category": many(m.TypeCodeableConcept),
	"DocumentReference.date":     one(m.TypeInstant),
}
