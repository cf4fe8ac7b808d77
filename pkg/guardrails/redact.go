// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"regexp"
)

// secretPattern pairs a redaction kind with the regexp that finds it.
type secretPattern struct {
	kind    string
	pattern *regexp.Regexp
}

// secretPatterns cover credentials a tool result is most likely to
// leak: cloud keys, bearer tokens, private key blocks.
var secretPatterns = []secretPattern{
	{"aws-access-key", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{"bearer-token", regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]{20,}=*`)},
	{"api-key", regexp.MustCompile(`(?i)\b(?:api[_-]?key|secret[_-]?key|access[_-]?token)\s*[=:]\s*\S{8,}`)},
	{"private-key", regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)},
}

// piiPatterns cover personal data in the formats tools commonly return.
var piiPatterns = []secretPattern{
	{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"credit-card", regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`)},
}

// Redactor masks secrets and personal data in tool results before the
// model sees them again. Each masked span is recorded as a Redaction.
type Redactor struct {
	patterns []secretPattern
}

// NewSecretRedactor masks credentials only.
func NewSecretRedactor() *Redactor {
	return &Redactor{patterns: secretPatterns}
}

// NewPIIRedactor masks credentials and personal data.
func NewPIIRedactor() *Redactor {
	return &Redactor{patterns: append(append([]secretPattern{}, secretPatterns...), piiPatterns...)}
}

// ID identifies the filter in audit logs.
func (r *Redactor) ID() string { return "redactor" }

// FilterOutput replaces every match with a kind-tagged placeholder.
func (r *Redactor) FilterOutput(_ context.Context, output string) FilterResult {
	result := FilterResult{Content: output}
	for _, sp := range r.patterns {
		replacement := "[REDACTED:" + sp.kind + "]"
		matched := false
		result.Content = sp.pattern.ReplaceAllStringFunc(result.Content, func(string) string {
			matched = true
			return replacement
		})
		if matched {
			result.Modified = true
			result.Redactions = append(result.Redactions, Redaction{Kind: sp.kind, Replacement: replacement})
		}
	}
	return result
}
