// ABOUTME: Topic pattern matching for dot-delimited topics.
// ABOUTME: "*" matches one segment, "**" matches zero or more segments.

package bus

import "strings"

// MatchTopic reports whether topic matches pattern. Segments are
// "."-delimited; "*" matches exactly one segment and "**" matches zero or
// more. An exact pattern matches only itself.
func MatchTopic(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	return matchSegments(strings.Split(pattern, "."), strings.Split(topic, "."))
}

func matchSegments(pattern, topic []string) bool {
	if len(pattern) == 0 {
		return len(topic) == 0
	}
	switch pattern[0] {
	case "**":
		// Try consuming zero..all remaining topic segments.
		for i := 0; i <= len(topic); i++ {
			if matchSegments(pattern[1:], topic[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(topic) > 0 && matchSegments(pattern[1:], topic[1:])
	default:
		return len(topic) > 0 && pattern[0] == topic[0] && matchSegments(pattern[1:], topic[1:])
	}
}
