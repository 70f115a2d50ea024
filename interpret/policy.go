package interpret

import (
	"strings"
)

// Policy holds the phrase lists and limits that steer the interpreter.
// The phrase lists are English and heuristic; they are configuration,
// not structure. Matching is case-insensitive substring matching.
type Policy struct {
	// HardDenials are clauses that on their own mean the reply declines to
	// recommend anything.
	HardDenials []string `yaml:"hard_denials"`

	// SoftDenials only count as a denial when a NegativeTones word is
	// also present.
	SoftDenials   []string `yaml:"soft_denials"`
	NegativeTones []string `yaml:"negative_tones"`

	// IntentPhrases mark prose that is recommending something.
	IntentPhrases []string `yaml:"intent_phrases"`

	// NameStopWords are ignored when matching item names in prose.
	NameStopWords []string `yaml:"name_stop_words"`

	// FallbackRationale is used for synthesized recommendations when the
	// item carries no explanation of its own.
	FallbackRationale string `yaml:"fallback_rationale"`

	// FallbackCount is how many top context items the fallback recommends.
	FallbackCount int `yaml:"fallback_count"`

	// MaxMentions caps recommendations extracted from prose.
	MaxMentions int `yaml:"max_mentions"`
}

// DefaultPolicy returns the built-in English policy.
func DefaultPolicy() Policy {
	return Policy{
		HardDenials: []string{
			"no laptops",
			"no systems",
			"no options",
			"no matches",
			"no matching",
			"none of the laptops",
			"none of these laptops",
			"don't have any",
			"do not have any",
			"can't find any",
			"cannot find any",
			"couldn't find any",
			"unfortunately i don't have",
		},
		SoftDenials:       []string{"closest option is", "over your budget"},
		NegativeTones:     []string{"unfortunately", "sorry", "can't", "cannot", "don't", "do not", "no "},
		IntentPhrases:     []string{"recommend", "suggest", "great choice", "perfect for", "ideal for", "best option"},
		NameStopWords:     []string{"laptop", "notebook", "the", "and"},
		FallbackRationale: "Top match based on your requirements.",
		FallbackCount:     2,
		MaxMentions:       2,
	}
}

// withDefaults fills zero fields from DefaultPolicy. A nil list keeps the
// default; an explicitly empty list disables that check.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.HardDenials == nil {
		p.HardDenials = d.HardDenials
	}
	if p.SoftDenials == nil {
		p.SoftDenials = d.SoftDenials
	}
	if p.NegativeTones == nil {
		p.NegativeTones = d.NegativeTones
	}
	if p.IntentPhrases == nil {
		p.IntentPhrases = d.IntentPhrases
	}
	if p.NameStopWords == nil {
		p.NameStopWords = d.NameStopWords
	}
	if p.FallbackRationale == "" {
		p.FallbackRationale = d.FallbackRationale
	}
	if p.FallbackCount <= 0 {
		p.FallbackCount = d.FallbackCount
	}
	if p.MaxMentions <= 0 {
		p.MaxMentions = d.MaxMentions
	}
	return p
}

// Denies reports whether reply explicitly says nothing matches. A soft clause
// only counts alongside a negative tone word, which makes that branch a
// best-effort guess rather than a reliable classification.
func (p Policy) Denies(reply string) bool {
	if reply == "" {
		return false
	}
	text := strings.ToLower(reply)
	if containsAny(text, p.HardDenials) {
		return true
	}
	return containsAny(text, p.SoftDenials) && containsAny(text, p.NegativeTones)
}

// Recommends reports whether prose uses recommendation vocabulary.
func (p Policy) Recommends(text string) bool {
	return containsAny(strings.ToLower(text), p.IntentPhrases)
}

// IsQuestion reports whether text asks something. A question is never a
// recommendation.
func IsQuestion(text string) bool {
	return strings.Contains(text, "?")
}

func containsAny(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if phrase != "" && strings.Contains(text, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}
