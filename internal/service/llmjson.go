package service

import "strings"

// extractJSONObject returns the first balanced {...} object in a model
// reply, tolerating surrounding prose and markdown fences. Returns "" when
// no balanced object exists.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// truncateHead returns at most n leading bytes of s.
func truncateHead(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// truncateTail returns at most n trailing bytes of s.
func truncateTail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
