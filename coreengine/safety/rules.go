package safety

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// RedactionToken replaces every detected PII match during sanitization.
// The token matches no PII pattern, so sanitization is idempotent.
const RedactionToken = "[REDACTED]"

// Rule inspects a piece of text and reports zero or more violations.
// Implementations are pure: no I/O, no shared mutable state, safe for
// concurrent use. A rule that cannot be compiled from its configured data
// is dropped at construction time; the remaining rules still run.
type Rule interface {
	// Name identifies the validator category the rule reports under.
	Name() Validator
	// Evaluate returns all violations found in text.
	Evaluate(text string) []Violation
}

// =============================================================================
// LENGTH RULE
// =============================================================================

// LengthRule bounds query length in characters. Too short is a low-severity
// finding, too long is medium; length violations never block on their own.
type LengthRule struct {
	Min int
	Max int
}

func (r *LengthRule) Name() Validator { return ValidatorLength }

func (r *LengthRule) Evaluate(text string) []Violation {
	var violations []Violation
	length := utf8.RuneCountInString(text)
	if length < r.Min {
		violations = append(violations, Violation{
			Validator: ValidatorLength,
			Reason:    "Query too short",
			Severity:  SeverityLow,
		})
	}
	if length > r.Max {
		violations = append(violations, Violation{
			Validator: ValidatorLength,
			Reason:    "Query too long",
			Severity:  SeverityMedium,
		})
	}
	return violations
}

// =============================================================================
// LEXICON RULE
// =============================================================================

// LexiconRule matches a term list with word boundaries, case-insensitively.
// All matched terms produce ONE violation; Matches lists every matched term
// in lexicon order. When previewTerms > 0 the reason names the first few
// matched terms, otherwise the reason is the fixed text alone.
type LexiconRule struct {
	validator    Validator
	severity     Severity
	reason       string
	previewTerms int
	terms        []lexiconTerm
}

type lexiconTerm struct {
	term    string
	pattern *regexp.Regexp
}

// NewLexiconRule compiles the term list. Terms that fail to compile are
// skipped. Returns nil when no terms survive, which disables the rule.
func NewLexiconRule(validator Validator, severity Severity, reason string, previewTerms int, terms []string) *LexiconRule {
	compiled := make([]lexiconTerm, 0, len(terms))
	for _, term := range terms {
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(strings.ToLower(term)) + `\b`)
		if err != nil {
			continue
		}
		compiled = append(compiled, lexiconTerm{term: term, pattern: re})
	}
	if len(compiled) == 0 {
		return nil
	}
	return &LexiconRule{
		validator:    validator,
		severity:     severity,
		reason:       reason,
		previewTerms: previewTerms,
		terms:        compiled,
	}
}

func (r *LexiconRule) Name() Validator { return r.validator }

func (r *LexiconRule) Evaluate(text string) []Violation {
	lower := strings.ToLower(text)
	var found []string
	for _, t := range r.terms {
		if t.pattern.MatchString(lower) {
			found = append(found, t.term)
		}
	}
	if len(found) == 0 {
		return nil
	}
	reason := r.reason
	if r.previewTerms > 0 {
		preview := found
		if len(preview) > r.previewTerms {
			preview = preview[:r.previewTerms]
		}
		reason = r.reason + ": " + strings.Join(preview, ", ")
	}
	return []Violation{{
		Validator: r.validator,
		Reason:    reason,
		Severity:  r.severity,
		Matches:   found,
	}}
}

// =============================================================================
// PATTERN RULE
// =============================================================================

// PatternRule matches a list of case-insensitive regular expressions and
// stops at the first hit: one matching pattern produces one violation and
// evaluation of the remaining patterns is skipped.
type PatternRule struct {
	validator Validator
	severity  Severity
	reason    string
	patterns  []*regexp.Regexp
}

// NewPatternRule compiles the pattern list. Patterns that fail to compile
// are skipped. Returns nil when no patterns survive.
func NewPatternRule(validator Validator, severity Severity, reason string, patterns []string) *PatternRule {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			continue
		}
		compiled = append(compiled, re)
	}
	if len(compiled) == 0 {
		return nil
	}
	return &PatternRule{
		validator: validator,
		severity:  severity,
		reason:    reason,
		patterns:  compiled,
	}
}

func (r *PatternRule) Name() Validator { return r.validator }

func (r *PatternRule) Evaluate(text string) []Violation {
	for _, re := range r.patterns {
		if re.MatchString(text) {
			return []Violation{{
				Validator: r.validator,
				Reason:    r.reason,
				Severity:  r.severity,
			}}
		}
	}
	return nil
}

// =============================================================================
// PII RULE
// =============================================================================

// PIIClass pairs a PII class name with its detection pattern.
type PIIClass struct {
	Class   string
	Pattern string
}

// PIIRule detects personally identifiable information. Each matching class
// produces one high-severity violation carrying up to maxMatches offending
// substrings. The same patterns drive Sanitize.
type PIIRule struct {
	maxMatches int
	classes    []piiMatcher
}

type piiMatcher struct {
	class   string
	pattern *regexp.Regexp
}

// NewPIIRule compiles the class patterns. Classes that fail to compile are
// skipped. Returns nil when no classes survive.
func NewPIIRule(classes []PIIClass, maxMatches int) *PIIRule {
	compiled := make([]piiMatcher, 0, len(classes))
	for _, c := range classes {
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			continue
		}
		compiled = append(compiled, piiMatcher{class: c.Class, pattern: re})
	}
	if len(compiled) == 0 {
		return nil
	}
	return &PIIRule{maxMatches: maxMatches, classes: compiled}
}

func (r *PIIRule) Name() Validator { return ValidatorPII }

func (r *PIIRule) Evaluate(text string) []Violation {
	var violations []Violation
	for _, m := range r.classes {
		matches := m.pattern.FindAllString(text, -1)
		if len(matches) == 0 {
			continue
		}
		capped := matches
		if len(capped) > r.maxMatches {
			capped = capped[:r.maxMatches]
		}
		violations = append(violations, Violation{
			Validator: ValidatorPII,
			Reason:    "Contains " + m.class,
			Severity:  SeverityHigh,
			Matches:   capped,
		})
	}
	return violations
}

// Sanitize replaces every PII match in text with RedactionToken. All
// occurrences are replaced, not just the capped set reported in Matches.
func (r *PIIRule) Sanitize(text string) string {
	sanitized := text
	for _, m := range r.classes {
		sanitized = m.pattern.ReplaceAllString(sanitized, RedactionToken)
	}
	return sanitized
}

// =============================================================================
// RELEVANCE RULE
// =============================================================================

// RelevanceRule flags queries longer than minLength that contain none of
// the topic terms. Topic matching is plain substring containment, not word
// boundaries, so "ux" also matches "uxr". The finding is advisory.
type RelevanceRule struct {
	topics    []string
	minLength int
	severity  Severity
	reason    string
}

// NewRelevanceRule lowers the topic terms for containment matching.
// Returns nil when the topic list is empty, which disables the rule.
func NewRelevanceRule(topics []string, minLength int, severity Severity) *RelevanceRule {
	if len(topics) == 0 {
		return nil
	}
	lowered := make([]string, 0, len(topics))
	for _, topic := range topics {
		lowered = append(lowered, strings.ToLower(topic))
	}
	return &RelevanceRule{
		topics:    lowered,
		minLength: minLength,
		severity:  severity,
		reason:    "Query may not be related to research topics",
	}
}

func (r *RelevanceRule) Name() Validator { return ValidatorRelevance }

func (r *RelevanceRule) Evaluate(text string) []Violation {
	if utf8.RuneCountInString(text) <= r.minLength {
		return nil
	}
	lower := strings.ToLower(text)
	for _, topic := range r.topics {
		if strings.Contains(lower, topic) {
			return nil
		}
	}
	return []Violation{{
		Validator: ValidatorRelevance,
		Reason:    r.reason,
		Severity:  r.severity,
	}}
}

// =============================================================================
// DEFAULT RULE DATA
// =============================================================================

var (
	defaultToxicLexicon = []string{
		// Violence
		"kill", "murder", "attack", "harm", "hurt", "violence", "weapon",
		// Hateful content
		"hate", "racist", "sexist", "discrimination",
		// Illegal activities
		"hack", "crack", "steal", "fraud", "illegal",
		// Self-harm
		"suicide", "self-harm",
	}

	defaultInjectionPatterns = []string{
		`ignore\s+(all\s+)?previous\s+instructions?`,
		`disregard\s+(all\s+)?previous`,
		`forget\s+everything`,
		`you\s+are\s+now`,
		`act\s+as\s+if`,
		`pretend\s+you`,
		`system:\s*`,
		`<\s*system\s*>`,
		`\[system\]`,
		`sudo\s+`,
		`admin\s+mode`,
		`override\s+safety`,
		`jailbreak`,
	}

	defaultTopicLexicon = []string{
		"user", "interface", "design", "usability", "accessibility",
		"interaction", "experience", "ux", "ui", "human", "computer",
		"hci", "research", "study", "evaluation", "prototype",
		"mobile", "web", "app", "software", "system", "technology",
		"ai", "ml", "machine learning", "artificial intelligence",
		"visualization", "data", "display", "screen", "input", "output",
	}

	defaultHarmfulLexicon = []string{
		"kill", "murder", "attack", "harm", "weapon",
		"bomb", "explosive", "poison", "torture",
	}

	defaultBiasPatterns = []string{
		`\b(all|every)\s+(men|women|blacks|whites|asians)\s+(are|always)\b`,
		`\b(never|always)\s+trust\s+(men|women|people\s+from)\b`,
		`\bstereotyp(e|ing|ical)\b`,
	}

	defaultPIIClasses = []PIIClass{
		{Class: "email", Pattern: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`},
		{Class: "phone", Pattern: `\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`},
		{Class: "national_id", Pattern: `\b\d{3}-\d{2}-\d{4}\b`},
		{Class: "credit_card", Pattern: `\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`},
	}
)

// DefaultToxicLexicon returns a copy of the built-in toxic term list.
func DefaultToxicLexicon() []string {
	return append([]string(nil), defaultToxicLexicon...)
}

// DefaultInjectionPatterns returns a copy of the built-in injection patterns.
func DefaultInjectionPatterns() []string {
	return append([]string(nil), defaultInjectionPatterns...)
}

// DefaultTopicLexicon returns a copy of the built-in topic term list.
func DefaultTopicLexicon() []string {
	return append([]string(nil), defaultTopicLexicon...)
}

// DefaultHarmfulLexicon returns a copy of the built-in harmful term list.
func DefaultHarmfulLexicon() []string {
	return append([]string(nil), defaultHarmfulLexicon...)
}

// DefaultBiasPatterns returns a copy of the built-in bias patterns.
func DefaultBiasPatterns() []string {
	return append([]string(nil), defaultBiasPatterns...)
}

// DefaultPIIClasses returns a copy of the built-in PII classes in
// evaluation order.
func DefaultPIIClasses() []PIIClass {
	return append([]PIIClass(nil), defaultPIIClasses...)
}

// piiClassesFromOverrides builds an ordered class list from a config
// override map. Classes are sorted by name so results stay deterministic.
func piiClassesFromOverrides(patterns map[string]string) []PIIClass {
	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	classes := make([]PIIClass, 0, len(names))
	for _, name := range names {
		classes = append(classes, PIIClass{Class: name, Pattern: patterns[name]})
	}
	return classes
}
