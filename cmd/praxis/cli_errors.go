// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/tessellate/praxis/pkg/errors"
)

// CLIError wraps PraxisError with CLI-specific formatting and hints.
type CLIError struct {
	*errors.PraxisError
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(pe *errors.PraxisError, hint string) *CLIError {
	return &CLIError{
		PraxisError: pe,
		Hint:        hint,
	}
}

// Error returns the formatted error message with hints.
func (e *CLIError) Error() string {
	if e.PraxisError == nil {
		return "unknown error"
	}

	msg := e.PraxisError.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// PrintError prints the error with appropriate formatting.
func (e *CLIError) PrintError(json bool) {
	if json {
		fmt.Fprintf(os.Stderr, `{"error":{"code":"%s","message":"%s","hint":"%s"}}%s`,
			e.PraxisError.Code,
			e.PraxisError.Message,
			e.Hint,
			"\n")
		return
	}

	fmt.Fprintf(os.Stderr, "Error [%s]: %s\n", e.PraxisError.Code, e.PraxisError.Message)
	if e.Hint != "" {
		fmt.Fprintf(os.Stderr, "  Hint: %s\n", e.Hint)
	}
}

// NewNotFoundError creates a not found error with CLI hints.
func NewNotFoundError(resource, name string) *CLIError {
	pe := errors.New(errors.CodeNotFound, fmt.Sprintf("%s '%s' not found", resource, name), nil).
		WithContext("resource", resource).
		WithContext("name", name).
		WithRecoverable(false)
	return NewCLIError(pe, fmt.Sprintf("check that the %s exists; 'praxis sessions list' shows stored sessions", resource))
}

// NewInvalidArgumentError creates an invalid argument error with CLI hints.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	pe := errors.New(errors.CodeInvalidInput, fmt.Sprintf("invalid argument: %s", reason), nil).
		WithContext("argument", arg).
		WithRecoverable(false)
	return NewCLIError(pe, "run 'praxis help' for usage information")
}

// NewConfigError creates a configuration error with CLI hints.
func NewConfigError(err error, configPath string) *CLIError {
	pe := errors.New(errors.CodeInvalidInput, "configuration error", err).
		WithContext("config_path", configPath).
		WithRecoverable(false)

	hint := "check your configuration file syntax"
	if configPath != "" {
		hint = fmt.Sprintf("check %s for syntax errors", configPath)
	}
	return NewCLIError(pe, hint)
}

// FormatErrorCode returns a user-friendly name for error codes.
func FormatErrorCode(code errors.ErrorCode) string {
	switch code {
	case errors.CodeInternal:
		return "Internal Error"
	case errors.CodeInvalidInput:
		return "Invalid Input"
	case errors.CodeNotFound:
		return "Not Found"
	case errors.CodeTimeout:
		return "Timeout"
	case errors.CodeToolFailure:
		return "Tool Failure"
	case errors.CodeLLMError:
		return "LLM Error"
	case errors.CodeStepLimit:
		return "Step Limit"
	case errors.CodeDecisionPending:
		return "Decision Pending"
	case errors.CodeLoopDetected:
		return "Loop Detected"
	case errors.CodeSessionError:
		return "Session Error"
	case errors.CodeContextLost:
		return "Context Lost"
	default:
		return string(code)
	}
}
