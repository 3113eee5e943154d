package pipeline

import (
	"errors"
	"fmt"

	"github.com/ashmay29/NL2SQL/internal/ir"
)

// Kind is the stable error classification surfaced to callers.
type Kind string

const (
	KindSchemaMissing     Kind = "schema_missing"
	KindRankerUnavailable Kind = "ranker_unavailable"
	KindLLMUnavailable    Kind = "llm_unavailable"
	KindLLMParseError     Kind = "llm_parse_error"
	KindLLMRefusal        Kind = "llm_refusal"
	KindIRInvalid         Kind = "ir_invalid"
	KindCompilerError     Kind = "compiler_error"
	KindPipelineTimeout   Kind = "pipeline_timeout"
	KindInternal          Kind = "internal"
)

// Error is a structured pipeline failure: a stable kind, a user-safe
// message, and internal detail for logs.
type Error struct {
	Kind        Kind
	Message     string
	Cause       error
	Diagnostics []ir.Diagnostic
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a structured error.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError wraps a cause with a kind and message.
func WrapError(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: err}
}

// WithDiagnostics attaches validator diagnostics.
func (e *Error) WithDiagnostics(diags []ir.Diagnostic) *Error {
	e.Diagnostics = diags
	return e
}

// KindOf classifies any error, defaulting to KindInternal.
func KindOf(err error) Kind {
	var structured *Error
	if errors.As(err, &structured) {
		return structured.Kind
	}

	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
