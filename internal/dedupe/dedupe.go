// Package dedupe collapses near-duplicate project candidates within one
// researcher's extraction pass. The comparison is purely lexical over
// titles; it never attempts semantic entity resolution.
package dedupe

import (
	"strings"
	"unicode/utf8"

	"github.com/fmatlas/lattes-harvester/internal/model"
	"github.com/fmatlas/lattes-harvester/internal/textnorm"
	"github.com/fmatlas/lattes-harvester/internal/vocab"
)

const (
	// containmentMinLen guards the substring rule against short generic
	// titles swallowing each other.
	containmentMinLen = 15

	// jaccardThreshold is the similarity above which two titles are
	// considered the same project.
	jaccardThreshold = 0.7

	// descriptiveLenEdge is the length lead that wins the similarity
	// tie-break outright.
	descriptiveLenEdge = 10
)

// Collapse returns the subset of candidates with near-duplicates removed,
// preferring the more descriptive variant of each collapsed group.
// Applying Collapse to its own output is a no-op.
func Collapse(candidates []model.Project) []model.Project {
	var accepted []model.Project

next:
	for _, cand := range candidates {
		for i, kept := range accepted {
			switch compare(cand, kept) {
			case keepAccepted:
				continue next
			case replaceAccepted:
				accepted[i] = cand
				continue next
			}
		}
		accepted = append(accepted, cand)
	}
	return accepted
}

type verdict int

const (
	distinct verdict = iota
	keepAccepted
	replaceAccepted
)

// compare decides whether cand duplicates kept, and if so which survives.
// Rules run in order: exact title equality, substring containment, token
// Jaccard with a descriptiveness tie-break.
func compare(cand, kept model.Project) verdict {
	candTitle := strings.ToLower(cand.Title)
	keptTitle := strings.ToLower(kept.Title)

	if candTitle == keptTitle {
		return keepAccepted
	}

	candLen := utf8.RuneCountInString(cand.Title)
	keptLen := utf8.RuneCountInString(kept.Title)

	if candLen >= containmentMinLen && keptLen >= containmentMinLen {
		if strings.Contains(candTitle, keptTitle) {
			return replaceAccepted
		}
		if strings.Contains(keptTitle, candTitle) {
			return keepAccepted
		}
	}

	if textnorm.Jaccard(cand.Title, kept.Title) > jaccardThreshold {
		if moreDescriptive(cand, kept, candLen, keptLen) {
			return replaceAccepted
		}
		return keepAccepted
	}

	return distinct
}

// moreDescriptive reports whether cand should replace kept: a clear length
// lead wins; otherwise more technology-vocabulary occurrences win; a tie
// keeps the already-accepted record.
func moreDescriptive(cand, kept model.Project, candLen, keptLen int) bool {
	if candLen >= keptLen+descriptiveLenEdge {
		return true
	}
	if keptLen >= candLen+descriptiveLenEdge {
		return false
	}
	terms := vocab.Load().TechTerms
	return vocab.CountOccurrences(cand.Title, terms) > vocab.CountOccurrences(kept.Title, terms)
}
