// ABOUTME: Path-template matching for API permission records
// ABOUTME: A {name} segment matches exactly one non-empty path segment

package authz

import "strings"

// MatchTemplate reports whether a request path matches a permission
// path template. Templates and paths are compared segment by segment: a
// literal segment must match exactly, and a {name} placeholder matches
// any single non-empty segment. Segment counts must agree, so
// /agents/{id} matches /agents/42 but never /agents/42/extra or /agents.
func MatchTemplate(template, path string) bool {
	if template == path {
		return true
	}
	if !strings.Contains(template, "{") {
		return false
	}

	tSegs := strings.Split(strings.Trim(template, "/"), "/")
	pSegs := strings.Split(strings.Trim(path, "/"), "/")
	if len(tSegs) != len(pSegs) {
		return false
	}
	for i, ts := range tSegs {
		if isPlaceholder(ts) {
			if pSegs[i] == "" {
				return false
			}
			continue
		}
		if ts != pSegs[i] {
			return false
		}
	}
	return true
}

func isPlaceholder(segment string) bool {
	return len(segment) >= 2 && segment[0] == '{' && segment[len(segment)-1] == '}'
}
