package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	assert.Equal(t, "verificacao formal", Fold("Verificação Formal"))
	assert.Equal(t, "cooperacao com a industria", Fold("COOPERAÇÃO com a Indústria"))
	assert.Equal(t, "plain ascii", Fold("plain ascii"))
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t, "Verificação de Sistemas", CleanTitle(`  "Verificação   de Sistemas".  `))
	assert.Equal(t, "Projeto X", CleanTitle("“Projeto X”;"))
	assert.Equal(t, "", CleanTitle("  .,; "))
}

func TestJaccard(t *testing.T) {
	assert.InDelta(t, 1.0, Jaccard("Model Checking de Sistemas", "model checking de sistemas"), 1e-9)
	assert.InDelta(t, 0.5, Jaccard("a b c d", "a b e f"), 1e-9, "2 shared of 6 distinct")
	assert.Zero(t, Jaccard("", ""))
	assert.Zero(t, Jaccard("abc", "xyz"))
}

func TestJaccardAccentInsensitive(t *testing.T) {
	got := Jaccard("Verificação de Modelos", "verificacao de modelos")
	assert.InDelta(t, 1.0, got, 1e-9)
}

func TestParseDate(t *testing.T) {
	cases := map[string]string{
		"15/03/2021": "2021-03-15",
		"03/2021":    "2021-03",
		"2021":       "2021",
		"2021-03-15": "2021-03-15",
		"":           "",
		"não é data": "",
		"33/13/2021": "",
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseDate(in), "input %q", in)
	}
}

func TestYear(t *testing.T) {
	assert.Equal(t, "2019", Year("desde 2019"))
	assert.Equal(t, "1998", Year("1998 - 2003"))
	assert.Equal(t, "", Year("em andamento"))
}
