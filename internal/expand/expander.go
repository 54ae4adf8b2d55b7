// Package expand widens recall by producing alternate phrasings of a query.
package expand

import (
	"fmt"
	"strings"
)

// Strategy selects how variants are produced. The set is closed: anything
// outside it behaves like StrategyNone.
type Strategy string

const (
	// StrategyNone returns the query unchanged.
	StrategyNone Strategy = "none"
	// StrategySynonyms substitutes thesaurus synonyms for content words.
	StrategySynonyms Strategy = "synonyms"
	// StrategyTemplates wraps the query in fixed question templates.
	StrategyTemplates Strategy = "templates"
)

// questionTemplates rephrase a query as alternate question forms.
// %s is the original query.
var questionTemplates = []string{
	"What is %s?",
	"%s explained",
	"Tell me about %s",
	"How does %s work?",
}

// stopwords are skipped during synonym substitution.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "be": {},
	"to": {}, "of": {}, "in": {}, "on": {}, "for": {}, "with": {}, "and": {},
	"or": {}, "at": {}, "by": {}, "it": {}, "this": {}, "that": {}, "do": {},
	"does": {}, "how": {}, "what": {}, "when": {}, "where": {}, "why": {},
}

// Expander produces query variants for one configured strategy.
type Expander struct {
	strategy  Strategy
	thesaurus map[string][]string
}

// New creates an expander. A nil thesaurus falls back to the built-in one.
func New(strategy Strategy, thesaurus map[string][]string) *Expander {
	if thesaurus == nil {
		thesaurus = defaultThesaurus
	}
	return &Expander{strategy: strategy, thesaurus: thesaurus}
}

// Expand returns up to maxVariants phrasings, the original query always
// first. It never fails: unknown strategies and queries with no usable
// substitutions degrade to [query].
func (e *Expander) Expand(query string, maxVariants int) []string {
	if maxVariants < 1 {
		maxVariants = 1
	}

	switch e.strategy {
	case StrategySynonyms:
		return e.expandSynonyms(query, maxVariants)
	case StrategyTemplates:
		return expandTemplates(query, maxVariants)
	default:
		return []string{query}
	}
}

// expandSynonyms substitutes one synonym at a time into the original query.
// Words without a thesaurus entry are left unchanged.
func (e *Expander) expandSynonyms(query string, maxVariants int) []string {
	variants := []string{query}
	if maxVariants == 1 {
		return variants
	}

	seen := map[string]struct{}{strings.ToLower(query): {}}
	words := strings.Fields(query)

	for i, word := range words {
		key := strings.ToLower(strings.Trim(word, ".,!?;:\"'"))
		if _, skip := stopwords[key]; skip {
			continue
		}
		for _, synonym := range e.thesaurus[key] {
			candidate := substituteWord(words, i, synonym)
			lower := strings.ToLower(candidate)
			if _, dup := seen[lower]; dup {
				continue
			}
			seen[lower] = struct{}{}
			variants = append(variants, candidate)
			if len(variants) >= maxVariants {
				return variants
			}
		}
	}

	return variants
}

func expandTemplates(query string, maxVariants int) []string {
	variants := []string{query}
	for _, tmpl := range questionTemplates {
		if len(variants) >= maxVariants {
			break
		}
		variants = append(variants, fmt.Sprintf(tmpl, query))
	}
	return variants
}

// substituteWord rebuilds the query with words[i] replaced by synonym.
func substituteWord(words []string, i int, synonym string) string {
	out := make([]string, len(words))
	copy(out, words)
	out[i] = synonym
	return strings.Join(out, " ")
}
