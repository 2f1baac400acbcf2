// Package pkce generates the one-shot artifacts that bind an
// authorization request to its return leg: the PKCE verifier/challenge
// pair (RFC 7636), the CSRF state parameter, and the OIDC nonce.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"
)

// ChallengeMethod selects how the code challenge is derived from the
// verifier.
type ChallengeMethod string

const (
	// MethodS256 is SHA-256 of the verifier, base64url encoded
	// (RFC 7636 Section 4.2). Preferred wherever the provider allows it.
	MethodS256 ChallengeMethod = "S256"

	// MethodPlain passes the verifier through unchanged. Weaker; only
	// for providers that forbid hashing.
	MethodPlain ChallengeMethod = "plain"
)

const (
	// verifierBytes is the entropy drawn for the code verifier. 32 bytes
	// base64url-encode to 43 characters, the minimum verifier length
	// allowed by RFC 7636 Section 4.1 (43-128).
	verifierBytes = 32

	// stateBytes and nonceBytes size the CSRF state and replay nonce.
	stateBytes = 16
	nonceBytes = 16
)

// Artifacts is one login attempt's secret material. At most one live
// set exists per storage area; issuing a new set overwrites the
// previous one. Consumed exactly once by the callback validator, then
// deleted regardless of outcome.
type Artifacts struct {
	CodeVerifier    string          `json:"code_verifier"`
	CodeChallenge   string          `json:"code_challenge"`
	ChallengeMethod ChallengeMethod `json:"code_challenge_method"`
	State           string          `json:"state"`
	Nonce           string          `json:"nonce"`
	Provider        string          `json:"provider"`
	IssuedAt        time.Time       `json:"issued_at"`
}

// Generate draws fresh artifacts for a login attempt against the given
// provider. Every call consumes independent randomness; bytes are never
// reused across calls.
func Generate(providerID string, method ChallengeMethod) (*Artifacts, error) {
	verifier, err := randomURLSafe(verifierBytes)
	if err != nil {
		return nil, fmt.Errorf("generating code verifier: %w", err)
	}

	challenge, err := Challenge(verifier, method)
	if err != nil {
		return nil, err
	}

	state, err := randomURLSafe(stateBytes)
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}

	nonce, err := randomURLSafe(nonceBytes)
	if err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return &Artifacts{
		CodeVerifier:    verifier,
		CodeChallenge:   challenge,
		ChallengeMethod: method,
		State:           state,
		Nonce:           nonce,
		Provider:        providerID,
		IssuedAt:        time.Now(),
	}, nil
}

// Challenge derives the code challenge for a verifier under the given
// method. Exposed so tests and token-exchange implementations can
// re-derive it independently.
func Challenge(verifier string, method ChallengeMethod) (string, error) {
	switch method {
	case MethodS256:
		h := sha256.Sum256([]byte(verifier))
		return base64.RawURLEncoding.EncodeToString(h[:]), nil
	case MethodPlain:
		return verifier, nil
	default:
		return "", fmt.Errorf("unsupported code challenge method %q", method)
	}
}

// Age returns how long ago the artifacts were issued.
func (a *Artifacts) Age(now time.Time) time.Duration {
	return now.Sub(a.IssuedAt)
}

// randomURLSafe returns byteLen cryptographically random bytes encoded
// as unpadded base64url.
func randomURLSafe(byteLen int) (string, error) {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
