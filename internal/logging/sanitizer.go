package logging

import (
	"regexp"
)

// credentialPatterns covers the providers the agent can be configured with
// plus generic key/secret/password assignments, which LLM replies and
// captured terminal output tend to echo back verbatim.
var credentialPatterns = []string{
	// OpenAI
	`sk-[A-Za-z0-9]{20,}`,
	// Anthropic
	`sk-ant-[a-zA-Z0-9-]{40,}`,
	// Groq
	`gsk_[A-Za-z0-9]{20,}`,
	// Mistral keys have no distinctive prefix; the generic assignment
	// patterns below catch them.
	`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`,
	`(?i)api[_-]?key["'\s:=]+[a-zA-Z0-9_-]{20,}`,
	`(?i)secret["'\s:=]+[a-zA-Z0-9_-]{20,}`,
	`(?i)password["'\s:=]+[^\s"']{8,}`,
	`(?i)token["'\s:=]+[a-zA-Z0-9_-]{20,}`,
}

var compiledCredentialPatterns = compilePatterns(credentialPatterns)

func compilePatterns(exprs []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		compiled = append(compiled, regexp.MustCompile(expr))
	}
	return compiled
}

// redactedPlaceholder replaces every credential match. Session, goal, and
// step IDs are plain UUIDs and deliberately not matched: they are the keys
// operators grep logs by.
const redactedPlaceholder = "[REDACTED]"

// Sanitizer redacts credentials from anything that reaches the log.
type Sanitizer struct {
	patterns []*regexp.Regexp
}

// NewSanitizer creates a sanitizer with the default credential patterns.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		patterns: append([]*regexp.Regexp(nil), compiledCredentialPatterns...),
	}
}

// Sanitize returns input with every credential match replaced.
func (s *Sanitizer) Sanitize(input string) string {
	result := input
	for _, pattern := range s.patterns {
		result = pattern.ReplaceAllString(result, redactedPlaceholder)
	}
	return result
}

// AddPattern registers an extra redaction pattern.
func (s *Sanitizer) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.patterns = append(s.patterns, re)
	return nil
}
