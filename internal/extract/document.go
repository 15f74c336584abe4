// Package extract turns profile documents and free-text biographies into
// researcher attributes and structured project candidates.
package extract

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/fmatlas/lattes-harvester/internal/model"
	"github.com/fmatlas/lattes-harvester/internal/textnorm"
)

// Result is the full output of one document extraction.
type Result struct {
	// Attributes carries only the fields the document yielded; zero values
	// mean "not found" and are coalesced away at persistence time.
	Attributes model.Researcher
	Candidates []model.Project
}

// fieldSelector is one structural guess for a profile field. Selectors are
// tried in order; the first non-empty result wins.
type fieldSelector func(doc *goquery.Document) string

func cssText(selector string) fieldSelector {
	return func(doc *goquery.Document) string {
		return strings.TrimSpace(doc.Find(selector).First().Text())
	}
}

var (
	nameSelectors = []fieldSelector{
		cssText("div.nome"),
		cssText("h1"),
		cssText("h2.nome"),
	}
	institutionSelectors = []fieldSelector{
		cssText("div.instituicao"),
		cssText("span.instituicao"),
	}
	areaSelectors = []fieldSelector{
		cssText("div.area-atuacao"),
		cssText("span.area-atuacao"),
	}
	locationSelectors = []fieldSelector{
		cssText("div.endereco"),
		cssText("span.endereco"),
	}
	biographySelectors = []fieldSelector{
		cssText("p.resumo"),
		cssText("div.resumo"),
	}
)

var lastUpdateRe = regexp.MustCompile(`ultima atualizacao do curriculo em (\d{2}/\d{2}/\d{4})`)

// FromDocument parses a detail or preview document into researcher
// attributes plus the project candidates of its biography text. Missing
// fields are left empty, never an error.
func FromDocument(html []byte) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Result{}, eris.Wrap(err, "extract: parse document")
	}

	var res Result
	res.Attributes.Name = firstMatch(doc, nameSelectors)
	res.Attributes.Institution = firstMatch(doc, institutionSelectors)
	res.Attributes.Area = firstMatch(doc, areaSelectors)

	if loc := firstMatch(doc, locationSelectors); loc != "" {
		res.Attributes.City, res.Attributes.State, res.Attributes.Country = splitLocation(loc)
	}

	if m := lastUpdateRe.FindStringSubmatch(textnorm.Fold(doc.Text())); m != nil {
		res.Attributes.LastProfileUpdate = textnorm.ParseDate(m[1])
	}

	bio := firstMatch(doc, biographySelectors)
	if bio == "" {
		bio = strings.TrimSpace(doc.Find("body").Text())
	}
	res.Candidates = FromBiography(bio)

	return res, nil
}

func firstMatch(doc *goquery.Document, selectors []fieldSelector) string {
	for _, sel := range selectors {
		if v := sel(doc); v != "" {
			return v
		}
	}
	return ""
}

// splitLocation reads the comma-separated address tail from the right:
// "..., Recife, PE, Brasil" yields (city, state, country). Shorter tails
// fill from the country inward.
func splitLocation(loc string) (city, state, country string) {
	parts := strings.Split(loc, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	switch {
	case len(parts) >= 3:
		return parts[len(parts)-3], parts[len(parts)-2], parts[len(parts)-1]
	case len(parts) == 2:
		return "", parts[0], parts[1]
	case len(parts) == 1 && parts[0] != "":
		return "", "", parts[0]
	}
	return "", "", ""
}
