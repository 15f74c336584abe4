package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCV = `<html><body>
<div class="nome">Ana Carolina Souza</div>
<div class="instituicao">Universidade Federal de Pernambuco</div>
<div class="area-atuacao">Ciência da Computação</div>
<div class="endereco">Centro de Informática, Av. Jornalista Aníbal Fernandes, Recife, PE, Brasil</div>
<p class="resumo">Coordenadora do projeto denominado "Verificação de Modelos para Sistemas Embarcados"
financiado pelo CNPq (2020-2023).</p>
<span>Última atualização do currículo em 10/05/2024</span>
</body></html>`

func TestFromDocument(t *testing.T) {
	res, err := FromDocument([]byte(sampleCV))
	require.NoError(t, err)

	attrs := res.Attributes
	assert.Equal(t, "Ana Carolina Souza", attrs.Name)
	assert.Equal(t, "Universidade Federal de Pernambuco", attrs.Institution)
	assert.Equal(t, "Ciência da Computação", attrs.Area)
	assert.Equal(t, "Recife", attrs.City)
	assert.Equal(t, "PE", attrs.State)
	assert.Equal(t, "Brasil", attrs.Country)
	assert.Equal(t, "2024-05-10", attrs.LastProfileUpdate)

	p := findByTitle(t, res.Candidates, "Verificação de Modelos para Sistemas Embarcados")
	assert.Equal(t, "CNPq", p.FundingSources)
}

func TestFromDocumentFallbackSelectors(t *testing.T) {
	html := `<html><body><h1>Bruno Lima</h1><div class="endereco">Brasil</div></body></html>`
	res, err := FromDocument([]byte(html))
	require.NoError(t, err)
	assert.Equal(t, "Bruno Lima", res.Attributes.Name)
	assert.Empty(t, res.Attributes.City)
	assert.Empty(t, res.Attributes.State)
	assert.Equal(t, "Brasil", res.Attributes.Country)
	assert.Empty(t, res.Attributes.LastProfileUpdate)
}

func TestFromDocumentTwoPartLocation(t *testing.T) {
	html := `<html><body><div class="endereco">PE, Brasil</div></body></html>`
	res, err := FromDocument([]byte(html))
	require.NoError(t, err)
	assert.Empty(t, res.Attributes.City)
	assert.Equal(t, "PE", res.Attributes.State)
	assert.Equal(t, "Brasil", res.Attributes.Country)
}

func TestFromDocumentMissingFieldsAreEmpty(t *testing.T) {
	res, err := FromDocument([]byte("<html><body><p>nada estruturado</p></body></html>"))
	require.NoError(t, err)
	assert.Empty(t, res.Attributes.Name)
	assert.Empty(t, res.Candidates)
}
