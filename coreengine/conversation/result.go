package conversation

// Metadata summarizes how the conversation went. Blocked marks the input
// gate only; a response withheld by the output gate keeps Blocked false
// with SafetyCheckPassed false.
type Metadata struct {
	Blocked           bool              `json:"blocked"`
	SafetyViolations  []map[string]any  `json:"safety_violations,omitempty"`
	NumMessages       int               `json:"num_messages"`
	NumSources        int               `json:"num_sources"`
	SafetyCheckPassed bool              `json:"safety_check_passed"`
	TerminationReason TerminationReason `json:"termination_reason"`
	DurationMS        int               `json:"duration_ms"`
	AdvisoryNote      string            `json:"advisory_note,omitempty"`
}

// Result is the package returned to the caller: the delivered response, the
// full transcript including the user seed entry, the extracted citations,
// and the run metadata.
type Result struct {
	Response            string    `json:"response"`
	ConversationHistory []Message `json:"conversation_history"`
	Citations           []string  `json:"citations"`
	Metadata            Metadata  `json:"metadata"`
}
