// Package vocab holds the static keyword corpus driving heuristic
// extraction: concept and tool tag vocabularies, the broad technology term
// list, organization names, and indicator words. The corpus is embedded at
// build time and immutable at runtime.
package vocab

import (
	_ "embed"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/fmatlas/lattes-harvester/internal/textnorm"
)

//go:embed vocab.yaml
var corpusYAML []byte

// Corpus is the full keyword corpus.
type Corpus struct {
	Concepts              []string `yaml:"concepts"`
	Tools                 []string `yaml:"tools"`
	TechTerms             []string `yaml:"tech_terms"`
	Companies             []string `yaml:"companies"`
	Agencies              []string `yaml:"agencies"`
	CooperationIndicators []string `yaml:"cooperation_indicators"`
	FundingIndicators     []string `yaml:"funding_indicators"`
	IndustryKeywords      []string `yaml:"industry_keywords"`
	FormalMethodsKeywords []string `yaml:"formal_methods_keywords"`
	OngoingMarkers        []string `yaml:"ongoing_markers"`
}

var (
	loadOnce sync.Once
	corpus   Corpus
)

// Load returns the embedded corpus. The embedded YAML is validated once; a
// malformed corpus is a programming error and panics at first use.
func Load() Corpus {
	loadOnce.Do(func() {
		if err := yaml.Unmarshal(corpusYAML, &corpus); err != nil {
			panic("vocab: corpus is malformed: " + err.Error())
		}
	})
	return corpus
}

// MatchTerms returns the canonical labels of every vocabulary term found in
// text. Matching is case- and accent-insensitive substring containment.
func MatchTerms(text string, terms []string) []string {
	folded := textnorm.Fold(text)
	var found []string
	for _, term := range terms {
		if strings.Contains(folded, textnorm.Fold(term)) {
			found = append(found, term)
		}
	}
	return found
}

// ContainsAny reports whether any vocabulary term occurs in text, with the
// same folding rules as MatchTerms.
func ContainsAny(text string, terms []string) bool {
	folded := textnorm.Fold(text)
	for _, term := range terms {
		if strings.Contains(folded, textnorm.Fold(term)) {
			return true
		}
	}
	return false
}

// CountOccurrences counts the vocabulary terms occurring in text. A term is
// counted once regardless of how many times it appears.
func CountOccurrences(text string, terms []string) int {
	folded := textnorm.Fold(text)
	n := 0
	for _, term := range terms {
		if strings.Contains(folded, textnorm.Fold(term)) {
			n++
		}
	}
	return n
}
