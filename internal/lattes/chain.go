package lattes

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrChallengeBlocked means every strategy returned a challenge
// interstitial. Callers persist the bare stub and move on.
var ErrChallengeBlocked = eris.New("lattes: all access strategies challenge-blocked")

// Document is the outcome of a successful chain fetch.
type Document struct {
	Body     []byte
	Strategy string
}

// Chain tries access strategies in fixed order, stopping at the first
// document the classifier accepts as genuine content.
type Chain struct {
	strategies []Strategy
	classify   func([]byte) Validity
}

// NewChain builds the production strategy order.
func NewChain() *Chain {
	return NewChainWith(
		PreviewStrategy{},
		DirectStrategy{},
		TokenStrategy{},
		AltIdentityStrategy{},
		MirrorStrategy{},
	)
}

// NewChainWith builds a chain over an explicit strategy list.
func NewChainWith(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies, classify: Classify}
}

// FetchDetail walks the chain for one external id. A nil error guarantees a
// ValidContent document. ErrChallengeBlocked is returned when at least one
// strategy reached the service but every readable response was an
// interstitial.
func (c *Chain) FetchDetail(ctx context.Context, s *Session, externalID string) (*Document, error) {
	var (
		lastErr    error
		challenged bool
	)
	for _, st := range c.strategies {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		body, err := st.Fetch(ctx, s, externalID)
		if err != nil {
			zap.L().Debug("lattes: strategy failed, advancing",
				zap.String("strategy", st.Name()),
				zap.String("external_id", externalID),
				zap.Error(err),
			)
			lastErr = err
			continue
		}

		switch c.classify(body) {
		case ValidContent:
			return &Document{Body: body, Strategy: st.Name()}, nil
		case Challenge:
			challenged = true
			zap.L().Debug("lattes: strategy challenge-blocked",
				zap.String("strategy", st.Name()),
				zap.String("external_id", externalID),
			)
		default:
			zap.L().Debug("lattes: strategy returned unrecognized document",
				zap.String("strategy", st.Name()),
				zap.String("external_id", externalID),
				zap.Int("bytes", len(body)),
			)
		}
	}

	if challenged {
		return nil, ErrChallengeBlocked
	}
	if lastErr != nil {
		return nil, eris.Wrapf(lastErr, "lattes: all strategies failed for %s", externalID)
	}
	return nil, eris.Errorf("lattes: no usable document for %s", externalID)
}
