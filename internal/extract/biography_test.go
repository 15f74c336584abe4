package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmatlas/lattes-harvester/internal/model"
)

func titles(ps []model.Project) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Title
	}
	return out
}

func findByTitle(t *testing.T, ps []model.Project, title string) model.Project {
	t.Helper()
	for _, p := range ps {
		if p.Title == title {
			return p
		}
	}
	t.Fatalf("no candidate titled %q in %v", title, titles(ps))
	return model.Project{}
}

func TestValidTitleBoundaries(t *testing.T) {
	assert.True(t, ValidTitle("software", false), "8 chars with vocab term")
	assert.False(t, ValidTitle("softwar", false), "7 chars rejected regardless")

	long := "software " + strings.Repeat("x", 191)
	require.Len(t, long, 200)
	assert.True(t, ValidTitle(long, false))
	assert.False(t, ValidTitle(long+"x", false), "201 chars rejected")
}

func TestValidTitleRequiresVocabulary(t *testing.T) {
	assert.False(t, ValidTitle("história medieval europeia", false))
	assert.True(t, ValidTitle("verificação de protocolos", false))
	assert.True(t, ValidTitle("estudos com Alloy e FDR", false), "tool term accepted")
	// Synthesized titles skip the vocabulary test.
	assert.True(t, ValidTitle("Cooperação com Embraer", true))
}

func TestFromBiographyNamedProject(t *testing.T) {
	text := `Coordenador do projeto de pesquisa denominado "Sistemas Inteligentes para Análise de Dados".
	Desenvolve algoritmos de machine learning para processamento de linguagem natural.`

	ps := FromBiography(text)
	p := findByTitle(t, ps, "Sistemas Inteligentes para Análise de Dados")
	assert.Contains(t, p.Description, "denominado")
}

func TestFromBiographySynthesizesCooperation(t *testing.T) {
	text := "Em parceria com Microsoft, atua na área médica. Nada mais consta."

	ps := FromBiography(text)
	require.Len(t, ps, 1)
	p := ps[0]
	assert.Equal(t, "Cooperação com Microsoft", p.Title)
	assert.Equal(t, "Microsoft", p.IndustryCooperation)
	assert.Contains(t, p.Description, "parceria")
}

func TestFromBiographyCompanyWithoutIndicatorIgnored(t *testing.T) {
	text := "Trabalhou na Microsoft entre outras atividades. Nada mais consta."
	ps := FromBiography(text)
	assert.Empty(t, titles(ps))
}

func TestFromBiographySynthesizesFunding(t *testing.T) {
	text := "Projeto financiado pela FAPESP sobre temas livres. Nada mais consta."

	ps := FromBiography(text)
	p := findByTitle(t, ps, "Projeto financiado por FAPESP")
	assert.Equal(t, "FAPESP", p.FundingSources)
}

func TestFromBiographyFormalMethodsProfile(t *testing.T) {
	text := `Cooperação com Motorola desde 2002 com ênfase em geração automática de testes.
	Coordenador do projeto COMPASS de verificação formal financiado pela Comunidade Europeia (2011-2014).
	Professor do Centro de Informática da UFPE.`

	ps := FromBiography(text)
	require.NotEmpty(t, ps)

	coop := findByTitle(t, ps, "Cooperação com Motorola")
	assert.Equal(t, "Motorola", coop.IndustryCooperation)
	assert.Equal(t, model.StatusOngoing, coop.Status)
	assert.Equal(t, "2002", coop.StartDate)
	assert.Empty(t, coop.EndDate)

	var fm int
	for _, p := range ps {
		if p.FormalMethods {
			fm++
		}
	}
	assert.Positive(t, fm, "verificação formal must mark at least one candidate")
}

func TestFromBiographyDerivesTags(t *testing.T) {
	text := `Lidera projeto de verificação de modelos com as ferramentas FDR e Alloy para sistemas críticos.`

	ps := FromBiography(text)
	require.NotEmpty(t, ps)
	p := ps[0]
	assert.Contains(t, p.ConceptTags, "Verificação de Modelos")
	assert.Contains(t, p.ToolTags, "FDR")
	assert.Contains(t, p.ToolTags, "Alloy")
	assert.True(t, p.FormalMethods)
}

func TestFromBiographyCompletedRange(t *testing.T) {
	text := `Participou do projeto "Desenvolvimento de Protocolos Seguros para IoT" (2019-2022). Nada mais consta.`

	ps := FromBiography(text)
	p := findByTitle(t, ps, "Desenvolvimento de Protocolos Seguros para IoT")
	assert.Equal(t, model.StatusCompleted, p.Status)
	assert.Equal(t, "2019", p.StartDate)
	assert.Equal(t, "2022", p.EndDate)
}

func TestFromBiographyMonthYearStart(t *testing.T) {
	text := `Coordena o projeto "Verificação de Protocolos Criptográficos" iniciado em 03/2021, em andamento.`

	ps := FromBiography(text)
	p := findByTitle(t, ps, "Verificação de Protocolos Criptográficos")
	assert.Equal(t, "2021-03", p.StartDate, "month is kept, not degraded to a bare year")
	assert.Equal(t, model.StatusOngoing, p.Status)
	assert.Empty(t, p.EndDate)
}

func TestFromBiographyEmptyInput(t *testing.T) {
	assert.Empty(t, FromBiography(""))
	assert.Empty(t, FromBiography("   \n  "))
}

func TestFromBiographyDiscardsShortAndNonTechTitles(t *testing.T) {
	text := `Pesquisa em arte. Desenvolvimento de estudos sobre poesia barroca brasileira. Nada mais consta.`
	assert.Empty(t, FromBiography(text))
}
