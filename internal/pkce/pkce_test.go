package pkce

import (
	"crypto/sha256"
	"encoding/base64"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var urlSafe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func TestGenerate_VerifierLengthAndAlphabet(t *testing.T) {
	for range 50 {
		a, err := Generate("idme", MethodS256)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, len(a.CodeVerifier), 43)
		assert.LessOrEqual(t, len(a.CodeVerifier), 128)
		assert.Regexp(t, urlSafe, a.CodeVerifier)
	}
}

func TestGenerate_ChallengeMatchesIndependentDerivation(t *testing.T) {
	a, err := Generate("idme", MethodS256)
	require.NoError(t, err)

	h := sha256.Sum256([]byte(a.CodeVerifier))
	expected := base64.RawURLEncoding.EncodeToString(h[:])
	assert.Equal(t, expected, a.CodeChallenge)
	assert.Equal(t, MethodS256, a.ChallengeMethod)
}

func TestGenerate_PlainMethod(t *testing.T) {
	a, err := Generate("legacy", MethodPlain)
	require.NoError(t, err)
	assert.Equal(t, a.CodeVerifier, a.CodeChallenge)
}

func TestGenerate_UnsupportedMethod(t *testing.T) {
	_, err := Generate("idme", ChallengeMethod("S512"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported code challenge method")
}

func TestGenerate_IndependentRandomness(t *testing.T) {
	a, err := Generate("idme", MethodS256)
	require.NoError(t, err)
	b, err := Generate("idme", MethodS256)
	require.NoError(t, err)

	assert.NotEqual(t, a.CodeVerifier, b.CodeVerifier)
	assert.NotEqual(t, a.State, b.State)
	assert.NotEqual(t, a.Nonce, b.Nonce)

	// State and nonce must also be independent of each other within one set.
	assert.NotEqual(t, a.State, a.Nonce)
}

func TestGenerate_RecordsProviderAndTimestamp(t *testing.T) {
	before := time.Now()
	a, err := Generate("google", MethodS256)
	require.NoError(t, err)

	assert.Equal(t, "google", a.Provider)
	assert.False(t, a.IssuedAt.Before(before))
	assert.LessOrEqual(t, a.Age(time.Now()), time.Minute)
}

func TestChallenge_S256KnownVector(t *testing.T) {
	// Appendix B of RFC 7636.
	challenge, err := Challenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk", MethodS256)
	require.NoError(t, err)
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", challenge)
}
