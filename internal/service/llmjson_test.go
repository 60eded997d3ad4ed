package service

import "testing"

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"prose around", `Sure! Here you go: {"a":1} hope that helps`, `{"a":1}`},
		{"markdown fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"nested", `{"a":{"b":2}}`, `{"a":{"b":2}}`},
		{"brace inside string", `{"a":"}{"}`, `{"a":"}{"}`},
		{"escaped quote", `{"a":"say \"hi\""}`, `{"a":"say \"hi\""}`},
		{"no object", "plain text", ""},
		{"unbalanced", `{"a":1`, ""},
		{"first of two", `{"a":1} {"b":2}`, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSONObject(tt.input); got != tt.want {
				t.Errorf("extractJSONObject(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTruncateHelpers(t *testing.T) {
	if got := truncateHead("abcdef", 3); got != "abc" {
		t.Errorf("truncateHead = %q", got)
	}
	if got := truncateTail("abcdef", 3); got != "def" {
		t.Errorf("truncateTail = %q", got)
	}
	if got := truncateHead("ab", 5); got != "ab" {
		t.Errorf("short truncateHead = %q", got)
	}
	if got := truncateTail("ab", 5); got != "ab" {
		t.Errorf("short truncateTail = %q", got)
	}
}
