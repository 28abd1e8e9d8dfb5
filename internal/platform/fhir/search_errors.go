package fhir

import (
	"errors"
	"fmt"
)

// Compile failures. CompileError wraps one of these with context; match
// with errors.Is.
var (
	// ErrUnsupportedParameterType means a definition carries a type no
	// dispatcher handles. It aborts the whole compile.
	ErrUnsupportedParameterType = errors.New("unsupported search parameter type")
	// ErrInvalidParameterValue means client input could not be parsed.
	ErrInvalidParameterValue = errors.New("invalid search parameter value")
	// ErrInvalidConfiguration means the compiler was built or invoked with
	// missing registry or type metadata.
	ErrInvalidConfiguration = errors.New("invalid search configuration")
)

// CompileError describes why a search parameter could not be compiled.
type CompileError struct {
	Param  string
	Value  string
	Detail string
	Err    error
}

func (e *CompileError) Error() string {
	msg := e.Err.Error()
	if e.Param != "" {
		msg = fmt.Sprintf("%s: parameter %q", msg, e.Param)
	}
	if e.Value != "" {
		msg = fmt.Sprintf("%s value %q", msg, e.Value)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *CompileError) Unwrap() error { return e.Err }

func invalidValue(param, value, detail string) error {
	return &CompileError{Param: param, Value: value, Detail: detail, Err: ErrInvalidParameterValue}
}

func invalidConfig(param, detail string) error {
	return &CompileError{Param: param, Detail: detail, Err: ErrInvalidConfiguration}
}
