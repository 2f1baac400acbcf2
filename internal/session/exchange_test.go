package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/vetfolio/authcore/internal/callback"
)

func TestStaticExchanger_IssuesRedeemableIdentity(t *testing.T) {
	e := NewStaticExchanger()
	code := &callback.ValidatedCode{Code: "abc123", CodeVerifier: "v", Nonce: "nonce-1", Provider: "idme"}

	result, err := e.Exchange(context.Background(), idmeConfig(t), code)
	require.NoError(t, err)

	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.True(t, result.Tokens.ExpiresAt.After(time.Now()))

	// The minted ID token carries the request nonce, so the downstream
	// replay check passes.
	assert.NoError(t, checkIDToken(result.Tokens.IDToken, "nonce-1", time.Now()))

	doc := gjson.ParseBytes(result.Profile)
	assert.NotEmpty(t, doc.Get("sub").String())
	assert.True(t, doc.Get("verified").Bool())
}

func TestStaticExchanger_FreshCredentialsPerExchange(t *testing.T) {
	e := NewStaticExchanger()
	code := &callback.ValidatedCode{Code: "abc123", Nonce: "n", Provider: "idme"}

	first, err := e.Exchange(context.Background(), idmeConfig(t), code)
	require.NoError(t, err)
	second, err := e.Exchange(context.Background(), idmeConfig(t), code)
	require.NoError(t, err)

	assert.NotEqual(t, first.Tokens.AccessToken, second.Tokens.AccessToken)
	assert.NotEqual(t,
		gjson.GetBytes(first.Profile, "sub").String(),
		gjson.GetBytes(second.Profile, "sub").String())
}

func TestStaticExchanger_ProfilePerProvider(t *testing.T) {
	e := NewStaticExchanger()

	google, err := e.Exchange(context.Background(), googleConfig(t),
		&callback.ValidatedCode{Code: "c", Nonce: "n", Provider: "google"})
	require.NoError(t, err)
	assert.NotEmpty(t, gjson.GetBytes(google.Profile, "given_name").String())
	assert.False(t, gjson.GetBytes(google.Profile, "verified").Exists())
}

func TestStaticExchanger_UnknownProvider(t *testing.T) {
	e := NewStaticExchanger()
	cfg := idmeConfig(t)
	cfg.ID = "myspace"

	_, err := e.Exchange(context.Background(), cfg,
		&callback.ValidatedCode{Code: "c", Nonce: "n", Provider: "myspace"})
	assert.Error(t, err)
}
