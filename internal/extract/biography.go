package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/fmatlas/lattes-harvester/internal/model"
	"github.com/fmatlas/lattes-harvester/internal/textnorm"
	"github.com/fmatlas/lattes-harvester/internal/vocab"
)

// titleTemplate is one phrasing pattern whose first capture group is a
// candidate project title. Templates run in priority order over the whole
// biography.
type titleTemplate struct {
	source string
	re     *regexp.Regexp
}

// Quoted titles first, then coordinator/leadership phrasing, then the
// loose development/research-theme templates.
var titleTemplates = []titleTemplate{
	{"named-project", regexp.MustCompile(`(?i)projeto(?:\s+de\s+pesquisa)?\s+denominado\s+["“]([^"”]+)["”]`)},
	{"quoted-project", regexp.MustCompile(`(?i)projeto\s+["“]([^"”]+)["”]`)},
	{"coordinator", regexp.MustCompile(`(?i)coordenador(?:a)?(?:\s+\p{L}+)?\s+do\s+projeto\s+([^.;]+)`)},
	{"leads", regexp.MustCompile(`(?i)lidera\s+projeto\s+de\s+([^.;]+)`)},
	{"coordinates", regexp.MustCompile(`(?i)coordena\s+(?:o\s+projeto\s+)?([^.;]+)`)},
	{"development", regexp.MustCompile(`(?i)desenvolvimento\s+de\s+([^.;]+)`)},
	{"research-theme", regexp.MustCompile(`(?i)pesquisa\s+em\s+([^.;]+)`)},
}

const (
	minTitleLen = 8
	maxTitleLen = 200
)

// ValidTitle applies the acceptance filter: length within bounds and, for
// extracted (non-synthesized) titles, at least one broad technology term or
// one concept/tool term. Synthesized cooperation/funding titles are built
// around organization names and skip the vocabulary test.
func ValidTitle(title string, synthesized bool) bool {
	n := utf8.RuneCountInString(title)
	if n < minTitleLen || n > maxTitleLen {
		return false
	}
	if synthesized {
		return true
	}
	c := vocab.Load()
	return vocab.ContainsAny(title, c.TechTerms) ||
		vocab.ContainsAny(title, c.Concepts) ||
		vocab.ContainsAny(title, c.Tools)
}

// FromBiography extracts project candidates from free biography text:
// template-matched titles first, then one synthesized candidate per
// organization mentioned alongside a cooperation or funding indicator.
func FromBiography(text string) []model.Project {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c := vocab.Load()
	sentences := splitSentences(text)

	var out []model.Project
	seen := make(map[string]struct{})

	add := func(p model.Project) {
		key := textnorm.Fold(p.Title)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}

	for _, tpl := range titleTemplates {
		for _, m := range tpl.re.FindAllStringSubmatch(text, -1) {
			title := textnorm.CleanTitle(m[1])
			if !ValidTitle(title, false) {
				continue
			}
			p := model.Project{
				Title:       title,
				Description: sentenceContaining(sentences, m[1]),
			}
			finishCandidate(&p, text, c)
			add(p)
		}
	}

	// Synthesized candidates: one per organization whose sentence carries
	// the matching indicator word.
	for _, company := range vocab.MatchTerms(text, c.Companies) {
		sentence := sentenceContaining(sentences, company)
		if sentence == "" || !vocab.ContainsAny(sentence, c.CooperationIndicators) {
			continue
		}
		title := "Cooperação com " + company
		if !ValidTitle(title, true) {
			continue
		}
		p := model.Project{
			Title:               title,
			Description:         sentence,
			IndustryCooperation: company,
		}
		finishCandidate(&p, text, c)
		add(p)
	}
	for _, agency := range vocab.MatchTerms(text, c.Agencies) {
		sentence := sentenceContaining(sentences, agency)
		if sentence == "" || !vocab.ContainsAny(sentence, c.FundingIndicators) {
			continue
		}
		title := "Projeto financiado por " + agency
		if !ValidTitle(title, true) {
			continue
		}
		p := model.Project{
			Title:          title,
			Description:    sentence,
			FundingSources: agency,
		}
		finishCandidate(&p, text, c)
		add(p)
	}

	return out
}

// finishCandidate derives tags, affiliations and dates for an accepted
// candidate from its description and the surrounding text.
func finishCandidate(p *model.Project, fullText string, c vocab.Corpus) {
	scope := p.Title + " " + p.Description

	p.ConceptTags = strings.Join(vocab.MatchTerms(scope, c.Concepts), ", ")
	p.ToolTags = strings.Join(vocab.MatchTerms(scope, c.Tools), ", ")
	p.FormalMethods = vocab.ContainsAny(scope, c.FormalMethodsKeywords) ||
		p.ConceptTags != "" || p.ToolTags != ""

	if p.IndustryCooperation == "" && vocab.ContainsAny(p.Description, c.IndustryKeywords) {
		p.IndustryCooperation = strings.Join(vocab.MatchTerms(p.Description, c.Companies), ", ")
	}
	if p.FundingSources == "" {
		p.FundingSources = strings.Join(agenciesWithFunding(p.Description, c), ", ")
	}
	if m := coordinatedByRe.FindStringSubmatch(p.Description); m != nil {
		p.CoordinatorName = strings.TrimSpace(m[1])
	}
	if m := teamRe.FindStringSubmatch(p.Description); m != nil {
		p.TeamMembers = textnorm.CleanTitle(m[1])
	}

	p.StartDate, p.EndDate, p.Status = datesAround(fullText, p.Title)
}

var (
	coordinatedByRe = regexp.MustCompile(`(?i)coordenado\s+por\s+([\p{Lu}][^,.;]+)`)
	teamRe          = regexp.MustCompile(`(?i)com\s+participa[çc][ãa]o\s+de\s+([^.;]+)`)
)

func agenciesWithFunding(sentence string, c vocab.Corpus) []string {
	if !vocab.ContainsAny(sentence, c.FundingIndicators) {
		return nil
	}
	return vocab.MatchTerms(sentence, c.Agencies)
}

var sentenceEndRe = regexp.MustCompile(`[.!?]\s+`)

func splitSentences(text string) []string {
	parts := sentenceEndRe.Split(text, -1)
	out := parts[:0]
	for _, s := range parts {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// sentenceContaining finds the first sentence mentioning needle, with
// fold-insensitive matching.
func sentenceContaining(sentences []string, needle string) string {
	folded := textnorm.Fold(needle)
	for _, s := range sentences {
		if strings.Contains(textnorm.Fold(s), folded) {
			return s
		}
	}
	return ""
}
