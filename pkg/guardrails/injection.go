// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// injectionPhrases are instruction-override attempts that show up in
// tool arguments when an upstream document or web page tries to steer
// the agent. Matched case-insensitively as substrings.
var injectionPhrases = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"disregard your instructions",
	"disregard the system prompt",
	"forget your instructions",
	"you are now",
	"reveal your system prompt",
	"print your instructions",
}

// injectionPatterns catch structural smuggling: fake role delimiters
// that imitate the chat transcript format.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)</?(system|assistant)\s*>`),
	regexp.MustCompile(`(?i)\[\s*(system|assistant)\s*\]`),
	regexp.MustCompile(`(?i)^\s*(system|assistant)\s*:`),
}

// InjectionChecker flags tool arguments that carry prompt injection
// payloads. It is a fast lexical screen, not a classifier: it catches
// the common override phrasings and fake role markers, nothing more.
type InjectionChecker struct{}

// NewInjectionChecker returns the default injection screen.
func NewInjectionChecker() *InjectionChecker { return &InjectionChecker{} }

// ID identifies the checker in block reasons and audit logs.
func (c *InjectionChecker) ID() string { return "prompt-injection" }

// CheckInput blocks when the input contains an override phrase or a
// fake role delimiter.
func (c *InjectionChecker) CheckInput(_ context.Context, input string) CheckResult {
	lower := strings.ToLower(input)
	for _, phrase := range injectionPhrases {
		if strings.Contains(lower, phrase) {
			return CheckResult{
				Blocked:     true,
				Reason:      fmt.Sprintf("injection phrase %q", phrase),
				GuardrailID: c.ID(),
			}
		}
	}
	for _, pattern := range injectionPatterns {
		if pattern.MatchString(input) {
			return CheckResult{
				Blocked:     true,
				Reason:      "role delimiter in tool arguments",
				GuardrailID: c.ID(),
			}
		}
	}
	return CheckResult{}
}

// DenyTermsChecker blocks tool arguments containing any of a fixed set
// of forbidden terms. Matching is case-insensitive.
type DenyTermsChecker struct {
	terms []string
}

// NewDenyTermsChecker builds a checker over the given terms.
func NewDenyTermsChecker(terms ...string) *DenyTermsChecker {
	lowered := make([]string, len(terms))
	for i, t := range terms {
		lowered[i] = strings.ToLower(t)
	}
	return &DenyTermsChecker{terms: lowered}
}

// ID identifies the checker in block reasons and audit logs.
func (c *DenyTermsChecker) ID() string { return "deny-terms" }

// CheckInput blocks on the first matching term.
func (c *DenyTermsChecker) CheckInput(_ context.Context, input string) CheckResult {
	lower := strings.ToLower(input)
	for _, term := range c.terms {
		if strings.Contains(lower, term) {
			return CheckResult{
				Blocked:     true,
				Reason:      fmt.Sprintf("forbidden term %q", term),
				GuardrailID: c.ID(),
			}
		}
	}
	return CheckResult{}
}
