package lattes

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/fmatlas/lattes-harvester/internal/model"
)

// PageMeta is the pagination metadata embedded in a listing document.
type PageMeta struct {
	TotalRecords int
	Offset       int
	PageSize     int
	Found        bool
}

// BuildQuery renders a search term into the service's subject-index query
// syntax. Only the first two words are indexed; the service ANDs them.
func BuildQuery(term string) string {
	words := strings.Fields(term)
	switch {
	case len(words) >= 2:
		return fmt.Sprintf("(+idx_assunto:(%s)+idx_assunto:(%s)+idx_particao:1)", words[0], words[1])
	case len(words) == 1:
		return fmt.Sprintf("(+idx_assunto:(%s)+idx_particao:1)", words[0])
	}
	return "(+idx_particao:1)"
}

// FetchListing retrieves one page of search results starting at offset.
func FetchListing(ctx context.Context, s *Session, term string, offset, pageSize int) ([]byte, error) {
	params := url.Values{
		"metodo":          {"forwardPaginaResultados"},
		"registros":       {fmt.Sprintf("%d;%d", offset, pageSize)},
		"query":           {BuildQuery(term)},
		"analise":         {"cv"},
		"tipoOrdenacao":   {"null"},
		"paginaOrigem":    {"index.do"},
		"mostrarScore":    {"true"},
		"mostrarBandeira": {"true"},
		"modoIndAdhoc":    {"null"},
	}
	body, err := s.Get(ctx, s.BaseURL()+"/busca.do", params)
	if err != nil {
		return nil, eris.Wrapf(err, "lattes: fetch listing offset %d", offset)
	}
	return body, nil
}

// Anchors invoke a javascript detail opener carrying the external id and a
// URL-ish name: abreDetalhe('K4219769E2','Some_Name',14714388,).
var detailAnchorRe = regexp.MustCompile(`abreDetalhe\('([^']+)','([^']+)'`)

// Listing counters render as "1 a 10 de 253" (shown, span end, total).
var pageMetaRe = regexp.MustCompile(`(\d+)\s+a\s+(\d+)\s+de\s+(\d+)`)

// ParseListing extracts the entity stubs and pagination metadata of one
// listing page. Anchors without a parsable opener call are skipped.
func ParseListing(html []byte, term string) ([]model.EntityStub, PageMeta, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, PageMeta{}, eris.Wrap(err, "lattes: parse listing html")
	}

	var stubs []model.EntityStub
	doc.Find(`a[href*="abreDetalhe"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		m := detailAnchorRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		name := strings.TrimSpace(a.Text())
		if name == "" {
			name = strings.ReplaceAll(m[2], "_", " ")
		}
		stub := model.EntityStub{
			ExternalID:  m[1],
			DisplayName: name,
			SearchTerm:  term,
		}
		if li := a.Closest("li"); li.Length() > 0 {
			stub.InstitutionGuess = guessInstitution(li.Text())
		}
		stubs = append(stubs, stub)
	})

	return stubs, parsePageMeta(doc.Text()), nil
}

func parsePageMeta(text string) PageMeta {
	m := pageMetaRe.FindStringSubmatch(text)
	if m == nil {
		return PageMeta{}
	}
	first, _ := strconv.Atoi(m[1])
	last, _ := strconv.Atoi(m[2])
	total, _ := strconv.Atoi(m[3])
	if first < 1 || last < first || total < last {
		return PageMeta{}
	}
	return PageMeta{
		TotalRecords: total,
		Offset:       first - 1,
		PageSize:     last - first + 1,
		Found:        true,
	}
}

var (
	degreeKeywords = []string{"doutorado", "mestrado", "mba", "graduação", "graduacao"}
	workKeywords   = []string{"professor", "trabalha", "analista", "pesquisador"}
	workPreps      = []string{" do ", " da ", " na ", " no "}
)

// guessInstitution scrapes a best-effort institution name from the free
// text of one result item. Degree lines yield the granting institution
// ("Doutorado ... pela UFPE, ..."); employment lines yield the employer
// ("Professor do Centro de Informática, ...").
func guessInstitution(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)

		if containsAnyKeyword(lower, degreeKeywords) {
			if idx := strings.Index(lower, "pela "); idx >= 0 {
				return firstSegment(line[idx+len("pela "):])
			}
		}
		if containsAnyKeyword(lower, workKeywords) {
			for _, prep := range workPreps {
				if idx := strings.Index(lower, prep); idx >= 0 {
					return firstSegment(line[idx+len(prep):])
				}
			}
		}
	}
	return ""
}

func containsAnyKeyword(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// firstSegment cuts at the first comma or period and trims.
func firstSegment(s string) string {
	if idx := strings.IndexAny(s, ",."); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
