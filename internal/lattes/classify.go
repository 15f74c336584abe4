package lattes

import (
	"strings"

	"github.com/fmatlas/lattes-harvester/internal/textnorm"
)

// Validity classifies a fetched document.
type Validity int

const (
	// UnknownContent is neither recognizably genuine nor a challenge page.
	UnknownContent Validity = iota
	// ValidContent carries genuine profile or listing content.
	ValidContent
	// Challenge is an anti-automation interstitial.
	Challenge
)

func (v Validity) String() string {
	switch v {
	case ValidContent:
		return "valid"
	case Challenge:
		return "challenge"
	}
	return "unknown"
}

// Phrase sets are matched case- and accent-insensitively. Challenge markers
// are checked first: a challenge page sometimes quotes genuine-looking text.
var (
	challengePhrases = []string{
		"captcha",
		"recaptcha",
		"hcaptcha",
		"verificacao de seguranca",
		"acesso bloqueado",
		"too many requests",
		"checking your browser",
		"habilite o javascript",
		"prove que voce nao e um robo",
	}

	contentPhrases = []string{
		"curriculo do sistema de curriculos lattes",
		"endereco para acessar este cv",
		"ultima atualizacao do curriculo",
		"formacao academica",
		"atuacao profissional",
		"resultados da busca",
		"curriculo lattes",
	}
)

// Classify inspects a fetched document and decides whether it is genuine
// content, a challenge interstitial, or neither.
func Classify(body []byte) Validity {
	folded := textnorm.Fold(string(body))
	for _, p := range challengePhrases {
		if strings.Contains(folded, p) {
			return Challenge
		}
	}
	for _, p := range contentPhrases {
		if strings.Contains(folded, p) {
			return ValidContent
		}
	}
	return UnknownContent
}
