package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"

	autherrors "github.com/vetfolio/authcore/internal/errors"
	"github.com/vetfolio/authcore/internal/models"
	"github.com/vetfolio/authcore/internal/provider"
)

// resolveUser maps a provider's profile JSON onto the normalized user
// model using the provider's claim paths. Claim paths are gjson paths,
// so nested payloads ("attributes.email") work without provider-special
// code here.
func resolveUser(profile []byte, p provider.Config, now time.Time) (models.AuthUser, error) {
	if !gjson.ValidBytes(profile) {
		return models.AuthUser{}, fmt.Errorf("profile payload is not valid JSON")
	}

	doc := gjson.ParseBytes(profile)

	pick := func(path string) string {
		if path == "" {
			return ""
		}
		return doc.Get(path).String()
	}

	user := models.AuthUser{
		Subject:     pick(p.Claims.Subject),
		Email:       pick(p.Claims.Email),
		GivenName:   pick(p.Claims.GivenName),
		FamilyName:  pick(p.Claims.FamilyName),
		AvatarURL:   pick(p.Claims.Picture),
		CreatedAt:   now,
		LastLoginAt: now,
	}

	if user.Subject == "" {
		return models.AuthUser{}, fmt.Errorf("profile is missing the subject claim %q", p.Claims.Subject)
	}

	// Verification only comes from providers that can assert it. A
	// provider with no verified claim path always yields an unverified
	// user, whatever the payload says.
	if p.Claims.Verified != "" && doc.Get(p.Claims.Verified).Bool() {
		user.VeteranVerified = true
		user.VerifiedBy = p.ID
		user.AssuranceLevel = p.AssuranceLevel
	}

	return user, nil
}

// checkIDToken enforces the return-leg claims of an ID token: the nonce
// must match the one issued at login and the token must not be expired.
//
// The signature is deliberately not verified here. A public client has
// no provider keys at this layer; signature verification belongs to the
// exchanger that obtained the token over a trusted channel.
func checkIDToken(idToken, expectedNonce string, now time.Time) error {
	if idToken == "" {
		return nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return fmt.Errorf("parsing id token: %w", err)
	}

	nonce, _ := claims["nonce"].(string)
	if nonce != expectedNonce {
		return autherrors.ErrNonceMismatch
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return fmt.Errorf("reading id token expiry: %w", err)
	}
	if exp != nil && !exp.After(now) {
		return fmt.Errorf("id token expired at %s: %w", exp.Format(time.RFC3339), autherrors.ErrSessionExpired)
	}

	return nil
}
