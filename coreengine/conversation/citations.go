package conversation

import (
	"net/url"
	"regexp"
	"strings"
)

// urlPattern finds URL candidates in turn content. Candidates still have to
// survive url.Parse before they count as citations.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"{}|\\^` + "`" + `\[\]]+`)

// trailingPunctuation is sentence punctuation that ends up glued to URLs in
// prose and is not part of the address.
const trailingPunctuation = ".,;:!?)'\""

// ExtractCitations collects well-formed absolute URLs from agent turns,
// deduplicated preserving first occurrence, capped at max. The user seed
// entry never contributes citations.
func ExtractCitations(messages []Message, max int) []string {
	citations := make([]string, 0)
	if max <= 0 {
		return citations
	}

	seen := make(map[string]bool)
	for _, msg := range messages {
		if !msg.Role.IsAgent() {
			continue
		}
		for _, candidate := range urlPattern.FindAllString(msg.Content, -1) {
			cleaned := strings.TrimRight(candidate, trailingPunctuation)
			if cleaned == "" || seen[cleaned] {
				continue
			}
			parsed, err := url.Parse(cleaned)
			if err != nil || parsed.Scheme == "" || parsed.Host == "" {
				continue
			}
			seen[cleaned] = true
			citations = append(citations, cleaned)
			if len(citations) == max {
				return citations
			}
		}
	}
	return citations
}
