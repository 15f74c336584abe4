package lattes

import (
	"context"
	"net/url"
	"regexp"

	"github.com/rotisserie/eris"

	"github.com/fmatlas/lattes-harvester/internal/model"
)

// Strategy is one way of obtaining the detail document for an external id.
// Strategies share the Session's cookie state but must not rely on side
// effects of earlier strategies.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, s *Session, externalID string) ([]byte, error)
}

// PreviewStrategy fetches the lighter preview document. Previews sit
// outside the challenge layer and usually carry the full biography text.
type PreviewStrategy struct{}

func (PreviewStrategy) Name() string { return "preview" }

func (PreviewStrategy) Fetch(ctx context.Context, s *Session, externalID string) ([]byte, error) {
	return s.Get(ctx, s.BaseURL()+"/preview.do", url.Values{
		"metodo": {"apresentar"},
		"id":     {externalID},
	})
}

// DirectStrategy requests the full detail document with no preamble.
type DirectStrategy struct{}

func (DirectStrategy) Name() string { return "direct" }

func (DirectStrategy) Fetch(ctx context.Context, s *Session, externalID string) ([]byte, error) {
	return s.Get(ctx, s.BaseURL()+"/visualizacv.do", url.Values{
		"id": {externalID},
	})
}

var (
	// The preview page embeds the challenge token in links to the full view.
	tokenFieldRe = regexp.MustCompile(`tokenCaptchar=([^&"']+)`)
	// Fallback: any sufficiently long URL-safe token in the document.
	tokenLooseRe = regexp.MustCompile(`[A-Za-z0-9_-]{40,}`)
)

// ExtractToken pulls a challenge token out of a preview document, trying
// the exact field match before the loose pattern. Returns "" when neither
// matches.
func ExtractToken(body []byte) string {
	if m := tokenFieldRe.FindSubmatch(body); m != nil {
		return string(m[1])
	}
	if m := tokenLooseRe.Find(body); m != nil {
		return string(m)
	}
	return ""
}

// defaultCVForm is the fixed filter-field set the search UI submits when a
// user opens a profile. The service rejects token submissions without it.
func defaultCVForm(externalID, token string) url.Values {
	return url.Values{
		"metodo":              {"apresentar"},
		"id":                  {externalID},
		"tokenCaptchar":       {token},
		"idiomaExibicao":      {"1"},
		"tipo":                {"completo"},
		"buscarDoutores":      {"true"},
		"buscarDemais":        {"true"},
		"buscarBrasileiros":   {"true"},
		"buscarEstrangeiros":  {"true"},
		"textoBusca":          {""},
		"filtros.categoriaNivelBolsa": {""},
		"filtros.modalidadeBolsa":     {""},
		"filtros.nivelFormacao":       {""},
		"filtros.paisNacionalidade":   {""},
		"filtros.regiao":              {""},
		"filtros.atuacaoProfissional": {""},
	}
}

// TokenStrategy pulls a challenge token from the preview document and
// replays the full form submission the browser UI would send.
type TokenStrategy struct{}

func (TokenStrategy) Name() string { return "token-chain" }

func (TokenStrategy) Fetch(ctx context.Context, s *Session, externalID string) ([]byte, error) {
	preview, err := PreviewStrategy{}.Fetch(ctx, s, externalID)
	if err != nil {
		return nil, eris.Wrap(err, "lattes: token-chain preview fetch")
	}
	token := ExtractToken(preview)
	if token == "" {
		return nil, eris.Errorf("lattes: no token in preview for %s", externalID)
	}
	return s.PostForm(ctx, s.BaseURL()+"/visualizacv.do", defaultCVForm(externalID, token))
}

// AltIdentityStrategy retries the direct fetch under the alternate declared
// user agent, restoring the original identity afterward.
type AltIdentityStrategy struct{}

func (AltIdentityStrategy) Name() string { return "alt-identity" }

func (AltIdentityStrategy) Fetch(ctx context.Context, s *Session, externalID string) ([]byte, error) {
	restore := s.SwapIdentity(s.AltUserAgent())
	defer restore()
	return DirectStrategy{}.Fetch(ctx, s, externalID)
}

// MirrorStrategy fetches the canonical public profile URL served by a
// separate host that is not behind the challenge layer.
type MirrorStrategy struct{}

func (MirrorStrategy) Name() string { return "mirror" }

func (MirrorStrategy) Fetch(ctx context.Context, s *Session, externalID string) ([]byte, error) {
	return s.Get(ctx, model.ProfileURL(externalID), nil)
}
