package envelope

import "strings"

// Normalize replaces dotted topic notation with the broker's slash-separated wire form. The two notations are
// interchangeable everywhere else in this package; normalization happens once, at the boundary, before a topic
// touches the broker.
func Normalize(topic string) string {
	return strings.ReplaceAll(topic, ".", "/")
}

// HasPrefix reports whether topic starts with prefix on a segment boundary or exactly, after normalization. This is
// the filter the broker itself applies; wildcard resolution happens client-side on top of it.
func HasPrefix(topic, prefix string) bool {
	t, p := Normalize(topic), Normalize(prefix)
	return strings.HasPrefix(t, p)
}

// StaticPrefix returns the longest prefix of a subscription pattern that contains no wildcard segment. The bus client
// sends this prefix to the broker as the server-side filter; any remaining wildcard segments are matched locally.
//
//	"logs/**"        -> "logs/"
//	"logs/security"  -> "logs/security"
//	"api/*/detail"   -> "api/"
func StaticPrefix(pattern string) string {
	pattern = Normalize(pattern)
	segments := strings.Split(pattern, "/")
	var kept []string
	for _, seg := range segments {
		if seg == "*" || seg == "**" {
			break
		}
		kept = append(kept, seg)
	}
	prefix := strings.Join(kept, "/")
	if prefix == "" {
		return ""
	}
	// Preserve a trailing separator so "logs" doesn't spuriously match "logsx".
	if len(kept) < len(segments) {
		prefix += "/"
	}
	return prefix
}

// MatchPattern reports whether topic matches a wildcard subscription pattern. Segments are '/'-delimited; "*" matches
// exactly one segment, "**" matches zero or more segments. A pattern containing both "*" and "**" at the very same
// segment position is rejected by ValidatePattern and must never reach MatchPattern.
func MatchPattern(pattern, topic string) bool {
	pSegs := strings.Split(Normalize(pattern), "/")
	tSegs := strings.Split(Normalize(topic), "/")
	return matchSegments(pSegs, tSegs)
}

func matchSegments(pattern, topic []string) bool {
	if len(pattern) == 0 {
		return len(topic) == 0
	}

	head := pattern[0]
	switch head {
	case "**":
		if matchSegments(pattern[1:], topic) {
			return true
		}
		if len(topic) == 0 {
			return false
		}
		return matchSegments(pattern, topic[1:])
	case "*":
		if len(topic) == 0 {
			return false
		}
		return matchSegments(pattern[1:], topic[1:])
	default:
		if len(topic) == 0 || topic[0] != head {
			return false
		}
		return matchSegments(pattern[1:], topic[1:])
	}
}

// ValidatePattern rejects subscription patterns design note (9)(1) calls out as ambiguous: "*" and "**" occupying the
// same segment position within a pattern. The source this gateway is modeled on accepts such patterns without
// clarifying precedence; this implementation refuses them at subscribe time instead.
func ValidatePattern(pattern string) error {
	segs := strings.Split(Normalize(pattern), "/")
	// The only truly ambiguous shape the original source leaves undefined is a pattern where a "*" segment is
	// immediately adjacent to a "**" segment: it's unclear whether the "*" should greedily cede to "**" or bind
	// first. Every other combination has a well-defined longest-match interpretation under matchSegments.
	for i := 0; i+1 < len(segs); i++ {
		if (segs[i] == "*" && segs[i+1] == "**") || (segs[i] == "**" && segs[i+1] == "*") {
			return ErrAmbiguousPattern
		}
	}
	return nil
}
