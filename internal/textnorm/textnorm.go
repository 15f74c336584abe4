// Package textnorm provides the pure text-normalization primitives shared by
// extraction and deduplication: accent folding, title cleanup, date parsing
// and token-set similarity.
package textnorm

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lower-cases s and strips combining diacritics, so that bilingual
// vocabulary terms match regardless of accents ("Cooperação" == "cooperacao").
func Fold(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(out)
}

var (
	spaceRe    = regexp.MustCompile(`\s+`)
	edgePunct  = "\"'“”‘’«»()[]{}.,;:–—- \t\n"
	tokenSplit = regexp.MustCompile(`[^\p{L}\p{N}+]+`)
)

// CleanTitle normalizes a candidate project title: collapses whitespace and
// trims surrounding quotes and punctuation.
func CleanTitle(s string) string {
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.Trim(s, edgePunct)
}

// TokenSet returns the set of folded word tokens of s.
func TokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range tokenSplit.Split(Fold(s), -1) {
		if tok != "" {
			set[tok] = struct{}{}
		}
	}
	return set
}

// Jaccard computes |A∩B| / |A∪B| over the folded word sets of two strings.
// Two empty strings score zero.
func Jaccard(a, b string) float64 {
	sa, sb := TokenSet(a), TokenSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 0
	}
	inter := 0
	for tok := range sa {
		if _, ok := sb[tok]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// dateLayouts maps source formats to the canonical output layout. Listed in
// decreasing specificity; the first parse wins.
var dateLayouts = []struct {
	in  string
	out string
}{
	{"02/01/2006", "2006-01-02"},
	{"2006-01-02", "2006-01-02"},
	{"01/2006", "2006-01"},
	{"2006", "2006"},
}

// ParseDate parses the locale date formats used by the source (DD/MM/YYYY,
// MM/YYYY, bare year) into a canonical ISO form: "2006-01-02", "2006-01" or
// "2006". Returns "" when nothing parses.
func ParseDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout.in, s); err == nil {
			return t.Format(layout.out)
		}
	}
	return ""
}

// Year extracts the four-digit year of a canonical or raw date string, or ""
// when absent.
func Year(s string) string {
	m := yearRe.FindString(s)
	return m
}

var yearRe = regexp.MustCompile(`(?:19|20)\d{2}`)
