// Package keyword implements the lexical side of hybrid retrieval: a token to
// item index over catalogue fields and a capped per-item bonus for query terms.
package keyword

import (
	"regexp"
	"slices"
	"strings"

	"github.com/poiesic/advisor/core"
)

const (
	// BonusPerMatch is added for each matched query token.
	BonusPerMatch float32 = 0.05
	// MaxBonus caps the keyword bonus.
	MaxBonus float32 = 0.2

	minTokenLength = 3
)

var tokenPattern = regexp.MustCompile(`[a-z0-9\-\+\.]+`)

// Tokenize lower-cases text and returns its unique tokens longer than two
// characters, sorted.
func Tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	seen := make(map[string]struct{}, len(raw))
	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		if len(tok) < minTokenLength {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}
	slices.Sort(tokens)
	return tokens
}

// Index maps tokens to the set of item identifiers containing them.
// An Index is read-only after Build and safe for concurrent use.
type Index struct {
	postings map[string]map[string]struct{}
}

// Build indexes name, description, cpu, gpu, ram and storage of every item.
func Build(items []core.Item) *Index {
	idx := &Index{postings: make(map[string]map[string]struct{})}
	for _, item := range items {
		text := strings.Join([]string{item.Name, item.Description, item.CPU, item.GPU, item.RAM, item.Storage}, " ")
		for _, tok := range Tokenize(text) {
			ids, ok := idx.postings[tok]
			if !ok {
				ids = make(map[string]struct{})
				idx.postings[tok] = ids
			}
			ids[item.ID] = struct{}{}
		}
	}
	return idx
}

// Tokens returns the number of distinct indexed tokens.
func (idx *Index) Tokens() int {
	return len(idx.postings)
}

// Score returns the keyword bonus of itemID for queryTokens and the matched
// tokens in sorted order.
func (idx *Index) Score(queryTokens []string, itemID string) (float32, []string) {
	var matched []string
	for _, tok := range queryTokens {
		if _, ok := idx.postings[tok][itemID]; ok {
			matched = append(matched, tok)
		}
	}
	if len(matched) == 0 {
		return 0, nil
	}
	slices.Sort(matched)
	matched = slices.Compact(matched)
	return min(BonusPerMatch*float32(len(matched)), MaxBonus), matched
}
