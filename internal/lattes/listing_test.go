package lattes

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingPage = `<html><body>
<div class="tit_form">Resultados da busca: <b>1 a 2 de 37</b></div>
<ul>
  <li>
    <a href="javascript:abreDetalhe('K4219769E2','Ana_Souza',14714388,)">Ana Souza</a>
    <br>Doutorado em Ciência da Computação pela UFPE, Brasil.
  </li>
  <li>
    <a href="javascript:abreDetalhe('K4131234A1','Bruno_Lima',22334455,)">Bruno Lima</a>
    <br>Professor do Centro de Informática, atua em métodos formais.
  </li>
  <li>
    <a href="javascript:void(0)">não é pesquisador</a>
  </li>
</ul>
</body></html>`

func TestParseListing(t *testing.T) {
	stubs, meta, err := ParseListing([]byte(listingPage), "metodos formais")
	require.NoError(t, err)

	require.Len(t, stubs, 2)
	assert.Equal(t, "K4219769E2", stubs[0].ExternalID)
	assert.Equal(t, "Ana Souza", stubs[0].DisplayName)
	assert.Equal(t, "UFPE", stubs[0].InstitutionGuess)
	assert.Equal(t, "metodos formais", stubs[0].SearchTerm)

	assert.Equal(t, "K4131234A1", stubs[1].ExternalID)
	assert.Equal(t, "Centro de Informática", stubs[1].InstitutionGuess)

	assert.True(t, meta.Found)
	assert.Equal(t, 37, meta.TotalRecords)
	assert.Equal(t, 0, meta.Offset)
	assert.Equal(t, 2, meta.PageSize)
}

func TestParseListingNoMeta(t *testing.T) {
	html := `<html><body><a href="javascript:abreDetalhe('K1','Nome_X',1,)">Nome X</a></body></html>`
	stubs, meta, err := ParseListing([]byte(html), "software")
	require.NoError(t, err)
	assert.Len(t, stubs, 1)
	assert.False(t, meta.Found)
}

func TestParseListingEmptyPage(t *testing.T) {
	stubs, meta, err := ParseListing([]byte("<html><body>Nenhum resultado</body></html>"), "x")
	require.NoError(t, err)
	assert.Empty(t, stubs)
	assert.False(t, meta.Found)
}

func TestParseListingFallbackNameFromAnchor(t *testing.T) {
	html := `<html><li><a href="javascript:abreDetalhe('K9','Carla_Mota',3,)"><img src="x.gif"></a></li></html>`
	stubs, _, err := ParseListing([]byte(html), "x")
	require.NoError(t, err)
	require.Len(t, stubs, 1)
	assert.Equal(t, "Carla Mota", stubs[0].DisplayName)
}

func TestBuildQuery(t *testing.T) {
	assert.Equal(t, "(+idx_assunto:(software)+idx_particao:1)", BuildQuery("software"))
	assert.Equal(t, "(+idx_assunto:(metodos)+idx_assunto:(formais)+idx_particao:1)", BuildQuery("metodos formais extra"))
	assert.Equal(t, "(+idx_particao:1)", BuildQuery("  "))
}

func TestParsePageMetaRejectsNonsense(t *testing.T) {
	meta := parsePageMeta("mostrando 10 a 5 de 3")
	assert.False(t, meta.Found)
}

func TestParsePageMetaMidRun(t *testing.T) {
	meta := parsePageMeta(fmt.Sprintf("Resultados %d a %d de %d", 21, 30, 253))
	assert.True(t, meta.Found)
	assert.Equal(t, 20, meta.Offset)
	assert.Equal(t, 10, meta.PageSize)
	assert.Equal(t, 253, meta.TotalRecords)
}
