package provider

import "strings"

// moderationSourceKeywords identifies verdicts produced by the keyword
// fallback rather than a provider endpoint.
const moderationSourceKeywords = "keywords"

// KeywordModerator is a basic substring moderation fallback used when the
// configured provider exposes no moderation endpoint. An empty keyword list
// never flags.
type KeywordModerator struct {
	keywords []string
}

// NewKeywordModerator creates a moderator for the given keyword list.
// Matching is case-insensitive.
func NewKeywordModerator(keywords []string) *KeywordModerator {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			lowered = append(lowered, k)
		}
	}
	return &KeywordModerator{keywords: lowered}
}

// Check reports whether text contains any configured keyword.
func (m *KeywordModerator) Check(text string) Moderation {
	lowered := strings.ToLower(text)
	for _, k := range m.keywords {
		if strings.Contains(lowered, k) {
			return Moderation{Flagged: true, Source: moderationSourceKeywords}
		}
	}
	return Moderation{Flagged: false, Source: moderationSourceKeywords}
}
