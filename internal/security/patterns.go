package security

import (
	"encoding/json"
	"regexp"
)

// attackPattern pairs a compiled, case-insensitive regex with a short label used only in logs.
type attackPattern struct {
	label string
	re    *regexp.Regexp
}

// defaultAttackPatterns returns the compiled-once set of SQL injection, path traversal, and HTML event-handler
// fragments the filter rejects outright, per spec §4.7.
func defaultAttackPatterns() []attackPattern {
	return []attackPattern{
		{"sql_union_select", regexp.MustCompile(`(?i)\bunion\b[\s\S]{0,40}\bselect\b`)},
		{"sql_tautology", regexp.MustCompile(`(?i)'\s*or\s*'?\s*1\s*'?\s*=\s*'?\s*1`)},
		{"sql_comment_terminator", regexp.MustCompile(`(?i)(;|--)\s*(drop|delete|update|insert)\b`)},
		{"path_traversal", regexp.MustCompile(`\.\./|\.\.\\`)},
		{"html_event_handler", regexp.MustCompile(`(?i)\bon[a-z]+\s*=\s*['"]`)},
	}
}

// DetectAttackPatterns reports a KindSecurity error if the textual form of v matches any compiled attack pattern.
// v is flattened to its JSON representation and scanned as a whole, so patterns spanning quoted keys/values are
// still caught; malformed payloads that cannot be marshaled are treated as a pass-through (the size/JSON-decode
// check elsewhere in the pipeline is responsible for rejecting those).
func (f *Filter) DetectAttackPatterns(v any) error {
	text, err := textForm(v)
	if err != nil {
		return nil
	}
	for _, p := range f.patterns {
		if p.re.MatchString(text) {
			f.log.Debug().Str("pattern", p.label).Msg("attack pattern matched")
			return f.reject(reasonAttackPattern, "")
		}
	}
	return nil
}

func textForm(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
