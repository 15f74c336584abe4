package lattes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyValidContent(t *testing.T) {
	body := []byte(`<html><body>
		<div class="nome">Fulano de Tal</div>
		<p>Última atualização do currículo em 10/05/2024</p>
	</body></html>`)
	assert.Equal(t, ValidContent, Classify(body))
}

func TestClassifyChallenge(t *testing.T) {
	body := []byte(`<html><body>
		<h1>Verificação de segurança</h1>
		<div class="g-recaptcha"></div>
	</body></html>`)
	assert.Equal(t, Challenge, Classify(body))
}

func TestClassifyChallengeWinsOverContent(t *testing.T) {
	// Interstitials sometimes quote genuine phrases in their explanation.
	body := []byte(`<html>Resolva o captcha para acessar o Currículo Lattes</html>`)
	assert.Equal(t, Challenge, Classify(body))
}

func TestClassifyUnknown(t *testing.T) {
	assert.Equal(t, UnknownContent, Classify([]byte(`<html><body>404</body></html>`)))
	assert.Equal(t, UnknownContent, Classify(nil))
}

func TestClassifyAccentInsensitive(t *testing.T) {
	// Upper-cased and accent-stripped variants still match.
	assert.Equal(t, ValidContent, Classify([]byte("ULTIMA ATUALIZACAO DO CURRICULO em 2024")))
}

func TestValidityString(t *testing.T) {
	assert.Equal(t, "valid", ValidContent.String())
	assert.Equal(t, "challenge", Challenge.String())
	assert.Equal(t, "unknown", UnknownContent.String())
}
