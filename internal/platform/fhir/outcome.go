package fhir

import (
	"errors"
	"net/http"
)

// OperationOutcome severity levels (FHIR R4 IssueSeverity).
const (
	IssueSeverityFatal       = "fatal"
	IssueSeverityError       = "error"
	IssueSeverityWarning     = "warning"
	IssueSeverityInformation = "information"
)

// OperationOutcome issue type codes (FHIR R4 IssueType).
const (
	IssueTypeInvalid      = "invalid"
	IssueTypeValue        = "value"
	IssueTypeNotFound     = "not-found"
	IssueTypeProcessing   = "processing"
	IssueTypeThrottled    = "throttled"
	IssueTypeNotSupported = "not-supported"
	IssueTypeException    = "exception"
	IssueTypeTimeout      = "timeout"
	IssueTypeTooCostly    = "too-costly"
)

// OperationOutcome represents a FHIR OperationOutcome for errors.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string   `json:"severity"`
	Code        string   `json:"code"`
	Diagnostics string   `json:"diagnostics,omitempty"`
	Expression  []string `json:"expression,omitempty"`
}

func NewOperationOutcome(severity, code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{
				Severity:    severity,
				Code:        code,
				Diagnostics: diagnostics,
			},
		},
	}
}

func ErrorOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeProcessing, diagnostics)
}

// NotSupportedOutcome reports an unknown resource type or interaction.
func NotSupportedOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeNotSupported, diagnostics)
}

// ThrottleOutcome creates a 429-style OperationOutcome indicating the server is
// rate-limiting the client. FHIR R4 uses issue type "throttled".
func ThrottleOutcome() *OperationOutcome {
	return NewOperationOutcome(
		IssueSeverityError,
		IssueTypeThrottled,
		"Rate limit exceeded. Please retry after a delay.",
	)
}

// HasErrors reports whether any issue is an error or fatal.
func (o *OperationOutcome) HasErrors() bool {
	for _, issue := range o.Issue {
		if issue.Severity == IssueSeverityError || issue.Severity == IssueSeverityFatal {
			return true
		}
	}
	return false
}

// OutcomeForError maps a compile or search error to an HTTP status and
// OperationOutcome. Bad client input is a 400; configuration problems and
// anything unexpected are a 500.
func OutcomeForError(err error) (int, *OperationOutcome) {
	var ce *CompileError
	expr := func(oo *OperationOutcome) *OperationOutcome {
		if ce != nil && ce.Param != "" {
			oo.Issue[0].Expression = []string{ce.Param}
		}
		return oo
	}
	errors.As(err, &ce)

	switch {
	case errors.Is(err, ErrInvalidParameterValue):
		return http.StatusBadRequest, expr(NewOperationOutcome(IssueSeverityError, IssueTypeValue, err.Error()))
	case errors.Is(err, ErrUnsupportedParameterType):
		return http.StatusInternalServerError, expr(NewOperationOutcome(IssueSeverityFatal, IssueTypeNotSupported, err.Error()))
	case errors.Is(err, ErrInvalidConfiguration):
		return http.StatusInternalServerError, expr(NewOperationOutcome(IssueSeverityFatal, IssueTypeException, err.Error()))
	default:
		return http.StatusInternalServerError, NewOperationOutcome(IssueSeverityError, IssueTypeException, err.Error())
	}
}
