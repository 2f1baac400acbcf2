package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vetfolio/authcore/internal/callback"
	"github.com/vetfolio/authcore/internal/models"
	"github.com/vetfolio/authcore/internal/provider"
)

// ExchangeResult is what a token exchange resolves a validated
// authorization code into: credential material plus the raw profile
// payload the user is built from.
type ExchangeResult struct {
	Tokens models.TokenSet

	// Profile is the provider's claims/userinfo JSON. Field names vary
	// per provider and are mapped through the provider's claim paths.
	Profile []byte
}

// Exchanger resolves a validated authorization code into tokens and a
// profile. A public client cannot perform the standards-compliant
// code-for-token exchange without exposing a client secret, so the
// exchange step is injectable: the default StaticExchanger substitutes
// a fixed per-provider identity, and a backend-mediated broker can be
// swapped in without touching the session manager.
type Exchanger interface {
	Exchange(ctx context.Context, p provider.Config, code *callback.ValidatedCode) (*ExchangeResult, error)
}

// Navigator performs the outbound redirect to the provider's
// authorization endpoint. For the CLI this opens (or prints) the URL in
// the user's browser; the session manager only guarantees that all
// artifacts are durably persisted before Navigate is called.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

const (
	// staticTokenTTL is the lifetime of placeholder credentials.
	staticTokenTTL = time.Hour

	// accessTokenBytes sizes the opaque placeholder access token.
	accessTokenBytes = 32
)

// StaticExchanger is the default exchange: it issues placeholder
// credentials and a fixed per-provider profile without contacting the
// token endpoint. The ID token is minted locally with the request nonce
// so the return-leg replay check still runs end to end.
type StaticExchanger struct {
	now func() time.Time
}

// NewStaticExchanger creates the default exchanger.
func NewStaticExchanger() *StaticExchanger {
	return &StaticExchanger{now: time.Now}
}

// Exchange implements Exchanger.
func (e *StaticExchanger) Exchange(_ context.Context, p provider.Config, code *callback.ValidatedCode) (*ExchangeResult, error) {
	now := e.now()
	subject := uuid.NewString()

	idToken, err := mintIDToken(p, subject, code.Nonce, now, now.Add(staticTokenTTL))
	if err != nil {
		return nil, fmt.Errorf("minting placeholder id token: %w", err)
	}

	profile, err := staticProfile(p.ID, subject)
	if err != nil {
		return nil, err
	}

	return &ExchangeResult{
		Tokens: models.TokenSet{
			AccessToken: randomHex(accessTokenBytes),
			IDToken:     idToken,
			ExpiresAt:   now.Add(staticTokenTTL),
		},
		Profile: profile,
	}, nil
}

// staticProfile returns the fixed profile payload for a provider, in
// that provider's own claim vocabulary.
func staticProfile(providerID, subject string) ([]byte, error) {
	switch providerID {
	case "idme":
		return fmt.Appendf(nil,
			`{"sub":%q,"email":"member@id.me.example","fname":"Jordan","lname":"Rivera","verified":true,"group":"military"}`,
			subject), nil
	case "google":
		return fmt.Appendf(nil,
			`{"sub":%q,"email":"member@gmail.example","given_name":"Jordan","family_name":"Rivera","picture":"https://lh3.example/photo.jpg"}`,
			subject), nil
	case "logingov":
		return fmt.Appendf(nil,
			`{"sub":%q,"email":"member@login.gov.example","given_name":"Jordan","family_name":"Rivera","verified":true}`,
			subject), nil
	default:
		return nil, fmt.Errorf("no static profile for provider %q", providerID)
	}
}

// mintIDToken signs a short-lived placeholder ID token carrying the
// request nonce. The signing key is random and discarded: the token
// exists only so the nonce/expiry checks exercise the same path a real
// exchange would.
func mintIDToken(p provider.Config, subject, nonce string, issuedAt, expiresAt time.Time) (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"iss":   p.AuthorizationEndpoint,
		"aud":   p.ClientID,
		"sub":   subject,
		"iat":   issuedAt.Unix(),
		"exp":   expiresAt.Unix(),
		"nonce": nonce,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// randomHex generates a cryptographically random hex string of the
// given byte length.
func randomHex(byteLen int) string {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}

	return hex.EncodeToString(b)
}
