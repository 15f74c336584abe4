package lattes

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStrategy struct {
	name  string
	body  []byte
	err   error
	calls int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Fetch(context.Context, *Session, string) ([]byte, error) {
	s.calls++
	return s.body, s.err
}

const validBody = `<html>Currículo Lattes</html>`
const challengeBody = `<html>Por favor resolva o captcha abaixo</html>`

func TestChainShortCircuitsOnFirstValid(t *testing.T) {
	first := &stubStrategy{name: "preview", body: []byte(validBody)}
	rest := []*stubStrategy{
		{name: "direct"},
		{name: "token-chain"},
		{name: "alt-identity"},
		{name: "mirror"},
	}
	chain := NewChainWith(first, rest[0], rest[1], rest[2], rest[3])

	doc, err := chain.FetchDetail(context.Background(), nil, "K123")
	require.NoError(t, err)
	assert.Equal(t, "preview", doc.Strategy)
	assert.Equal(t, 1, first.calls)
	for _, s := range rest {
		assert.Zero(t, s.calls, "strategy %s must not run", s.name)
	}
}

func TestChainAdvancesPastChallengeAndFailure(t *testing.T) {
	blocked := &stubStrategy{name: "preview", body: []byte(challengeBody)}
	failed := &stubStrategy{name: "direct", err: errors.New("timeout")}
	ok := &stubStrategy{name: "mirror", body: []byte(validBody)}
	chain := NewChainWith(blocked, failed, ok)

	doc, err := chain.FetchDetail(context.Background(), nil, "K123")
	require.NoError(t, err)
	assert.Equal(t, "mirror", doc.Strategy)
	assert.Equal(t, 1, blocked.calls)
	assert.Equal(t, 1, failed.calls)
}

func TestChainAllChallengeBlocked(t *testing.T) {
	a := &stubStrategy{name: "preview", body: []byte(challengeBody)}
	b := &stubStrategy{name: "direct", body: []byte(challengeBody)}
	chain := NewChainWith(a, b)

	doc, err := chain.FetchDetail(context.Background(), nil, "K123")
	assert.Nil(t, doc)
	assert.ErrorIs(t, err, ErrChallengeBlocked)
}

func TestChainAllFailed(t *testing.T) {
	a := &stubStrategy{name: "preview", err: errors.New("conn refused")}
	chain := NewChainWith(a)

	doc, err := chain.FetchDetail(context.Background(), nil, "K123")
	assert.Nil(t, doc)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrChallengeBlocked)
}

func TestChainUnknownDocumentIsFailure(t *testing.T) {
	junk := &stubStrategy{name: "preview", body: []byte("<html>nada</html>")}
	chain := NewChainWith(junk)

	doc, err := chain.FetchDetail(context.Background(), nil, "K123")
	assert.Nil(t, doc)
	assert.Error(t, err)
}

func TestChainStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &stubStrategy{name: "preview", body: []byte(validBody)}
	chain := NewChainWith(s)

	_, err := chain.FetchDetail(ctx, nil, "K123")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, s.calls)
}
