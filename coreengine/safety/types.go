package safety

// Violation records a single rule finding. Matches carries the offending
// substrings for audit purposes; user-facing messages never echo them.
type Violation struct {
	Validator Validator `json:"validator"`
	Reason    string    `json:"reason"`
	Severity  Severity  `json:"severity"`
	Matches   []string  `json:"matches,omitempty"`
}

// ValidationResult is the outcome of running one gate's rule set over a
// piece of text. It is immutable once returned.
//
// Valid is false exactly when a high-severity violation was found. For the
// input gate SanitizedText is the query itself when valid and empty when
// blocked; for the output gate SanitizedText is always the redacted text,
// whether or not the response was blocked.
type ValidationResult struct {
	Valid         bool        `json:"valid"`
	Violations    []Violation `json:"violations"`
	SanitizedText string      `json:"sanitized_text,omitempty"`
}

// Blocked reports whether the text was rejected outright.
func (r *ValidationResult) Blocked() bool {
	return !r.Valid
}

// HighestSeverity returns the most severe violation grade present, or the
// empty severity when there are no violations.
func (r *ValidationResult) HighestSeverity() Severity {
	var highest Severity
	for _, v := range r.Violations {
		highest = MaxSeverity(highest, v.Severity)
	}
	return highest
}

// FirstOfSeverity returns the first violation with the given severity and
// whether one exists. Violations keep rule evaluation order.
func (r *ValidationResult) FirstOfSeverity(s Severity) (Violation, bool) {
	for _, v := range r.Violations {
		if v.Severity == s {
			return v, true
		}
	}
	return Violation{}, false
}

// ViolationMaps converts violations to their serialized map form for bus
// payloads and result metadata.
func ViolationMaps(violations []Violation) []map[string]any {
	maps := make([]map[string]any, 0, len(violations))
	for _, v := range violations {
		m := map[string]any{
			"validator": string(v.Validator),
			"reason":    v.Reason,
			"severity":  string(v.Severity),
		}
		if len(v.Matches) > 0 {
			m["matches"] = append([]string(nil), v.Matches...)
		}
		maps = append(maps, m)
	}
	return maps
}

// ViolationMaps converts the result's violations to their serialized form.
func (r *ValidationResult) ViolationMaps() []map[string]any {
	return ViolationMaps(r.Violations)
}

func hasHighSeverity(violations []Violation) bool {
	for _, v := range violations {
		if v.Severity == SeverityHigh {
			return true
		}
	}
	return false
}
