// Closed error enum for the pipeline. Every rejection is terminal for
// the intent and carries structured details a caller can act on
// programmatically; there is no best-effort output.

package model

import (
	"errors"
	"fmt"
)

// Code is a machine-actionable error category.
type Code string

const (
	// Schema/compatibility: rejected before parsing.
	CodeIntentSchemaInvalid   Code = "INTENT_SCHEMA_INVALID"
	CodeIntentTypeIncompatible Code = "INTENT_TYPE_INCOMPATIBLE"

	// Targeting: rejected before generation.
	CodeTargetNotFound        Code = "TARGET_NOT_FOUND"
	CodeTargetAmbiguous       Code = "TARGET_AMBIGUOUS"
	CodeTargetSelectorInvalid Code = "TARGET_SELECTOR_INVALID"

	// Constraint: rejected after generation, content discarded.
	CodeConstraintViolation Code = "CONSTRAINT_VIOLATION"
	CodeContextExceedsLimit Code = "CONTEXT_EXCEEDS_LIMIT"

	// Structural: rejected after patch build, internal-error class.
	CodeStructureBreak        Code = "STRUCTURE_BREAK"
	CodePatchConversionFailed Code = "PATCH_CONVERSION_FAILED"

	// Upstream: rejected immediately, no retry by this engine.
	CodeGenerationFailed  Code = "LLM_GENERATION_FAILED"
	CodeVersionMismatch   Code = "VERSION_MISMATCH"
	CodeEditabilityDenied Code = "EDITABILITY_DENIED"
	CodeSecurityDenied    Code = "SECURITY_DENIED"

	// Parsing: raw document violates the supported grammar.
	CodeParseError Code = "PARSE_ERROR"
)

// EngineError is the single error type crossing package boundaries.
type EngineError struct {
	Code        Code
	Message     string
	Details     map[string]any
	Suggestions []string
	Err         error // wrapped cause, optional
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Response converts the error into the wire-level ErrorResponse.
func (e *EngineError) Response() ErrorResponse {
	return ErrorResponse{
		Code:        e.Code,
		Message:     e.Message,
		Details:     e.Details,
		Suggestions: e.Suggestions,
	}
}

// NewError creates an EngineError with structured details.
func NewError(code Code, message string) *EngineError {
	return &EngineError{Code: code, Message: message, Details: map[string]any{}}
}

// WithDetail attaches one detail key and returns the error for chaining.
func (e *EngineError) WithDetail(key string, value any) *EngineError {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// WithSuggestion appends a caller-actionable suggestion.
func (e *EngineError) WithSuggestion(s string) *EngineError {
	e.Suggestions = append(e.Suggestions, s)
	return e
}

// Wrap records the underlying cause.
func (e *EngineError) Wrap(err error) *EngineError {
	e.Err = err
	return e
}

// AsEngineError extracts an EngineError from an error chain, or nil.
func AsEngineError(err error) *EngineError {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee
	}
	return nil
}

// CodeOf returns the error code of err, or empty string if err is not
// an EngineError.
func CodeOf(err error) Code {
	if ee := AsEngineError(err); ee != nil {
		return ee.Code
	}
	return ""
}
