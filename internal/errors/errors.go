// Package errors defines the error taxonomy shared across authcore.
//
// Sentinel errors are matched with errors.Is at package boundaries.
// The session manager guarantees storage is cleared and the state
// machine is in a terminal state before any of these reach a caller.
package errors

import (
	"errors"
	"fmt"
)

// Configuration errors. Fatal, no retry path.
var (
	// ErrUnknownProvider is returned when a provider ID is not in the
	// registry. Disabled providers are removed from the registry rather
	// than flagged, so they surface here too.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Protocol errors. Fatal for the current login attempt.
var (
	// ErrMissingCode means the provider redirected back without an
	// authorization code and without reporting an error.
	ErrMissingCode = errors.New("authorization code missing from callback")

	// ErrMissingArtifacts means no PKCE artifacts were found for the
	// returning callback: the login was never started in this storage
	// area, the artifacts expired, or they were already consumed.
	ErrMissingArtifacts = errors.New("no pending login attempt")

	// ErrStateMismatch means the returned state parameter did not equal
	// the one issued at login. Treated as a suspected CSRF attempt:
	// logged as a security event and never retried automatically.
	ErrStateMismatch = errors.New("state parameter mismatch")

	// ErrNonceMismatch means the ID token's nonce claim did not equal
	// the one issued at login: a replayed identity assertion.
	ErrNonceMismatch = errors.New("nonce mismatch in identity token")
)

// Storage and lifecycle errors.
var (
	// ErrDecryption covers any failure to recover an encrypted record:
	// malformed base64, truncated blob, authentication tag failure, or
	// missing key. Callers treat it as "no valid data", never as
	// partially recovered plaintext.
	ErrDecryption = errors.New("cannot decrypt stored record")

	// ErrSessionExpired is returned when a restored session's expiry has
	// passed. Routine, not user-visible; triggers a transparent logout.
	ErrSessionExpired = errors.New("session expired")
)

// ProviderError carries an error the identity provider reported on the
// callback (RFC 6749 Section 4.1.2.1). Surfaced verbatim to the caller
// for display; never retried automatically.
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("provider returned error %q", e.Code)
	}

	return fmt.Sprintf("provider returned error %q: %s", e.Code, e.Description)
}

// AsProviderError unwraps err into a *ProviderError, or nil.
func AsProviderError(err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	return nil
}
