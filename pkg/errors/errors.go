// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for Praxis.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies Praxis errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeToolFailure indicates a tool execution failed.
	CodeToolFailure ErrorCode = "TOOL_FAILURE"

	// CodeLLMError indicates a model provider error.
	CodeLLMError ErrorCode = "LLM_ERROR"

	// CodeStepLimit indicates a run exhausted its step budget.
	CodeStepLimit ErrorCode = "STEP_LIMIT"

	// CodeDecisionPending indicates a run is suspended awaiting a human decision.
	CodeDecisionPending ErrorCode = "DECISION_PENDING"

	// CodeLoopDetected indicates a team run was stopped by loop detection.
	CodeLoopDetected ErrorCode = "LOOP_DETECTED"

	// CodeContextLost indicates context was lost (e.g., canceled mid-retry).
	CodeContextLost ErrorCode = "CONTEXT_LOST"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeSessionError indicates a session store operation failed.
	CodeSessionError ErrorCode = "SESSION_ERROR"
)

// PraxisError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type PraxisError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
}

// Error implements the error interface.
func (e *PraxisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *PraxisError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *PraxisError) MarshalJSON() ([]byte, error) {
	type Alias PraxisError
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         fmt.Sprintf("%v", e.Err),
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new PraxisError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *PraxisError {
	return &PraxisError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *PraxisError) WithContext(key string, value interface{}) *PraxisError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *PraxisError) WithAttribute(key, value string) *PraxisError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *PraxisError) WithRecoverable(recoverable bool) *PraxisError {
	e.Recoverable = recoverable
	return e
}

// AsPraxisError attempts to convert an error to a PraxisError.
// Returns the error as PraxisError if it is one, or wraps it otherwise.
func AsPraxisError(err error) *PraxisError {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*PraxisError); ok {
		return pe
	}
	return New(CodeInternal, "wrapped error", err)
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *PraxisError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}
