// Package callback guards the return leg of the authorization flow. It
// parses the provider's redirect and checks it against the artifacts
// issued at login. Validation is a pure function over its inputs; all
// storage effects belong to the session manager.
package callback

import (
	"fmt"
	"net/url"

	autherrors "github.com/vetfolio/authcore/internal/errors"
	"github.com/vetfolio/authcore/internal/pkce"
)

// ValidatedCode is a successfully validated callback: the authorization
// code paired with the original verifier and nonce, ready for exchange.
type ValidatedCode struct {
	Code         string
	CodeVerifier string
	Nonce        string
	Provider     string
}

// ParseReturnURL extracts the callback parameters from a return URL.
// Providers deliver them in the query string or the URL fragment
// depending on their configured response mode; both are parsed and
// merged, with query parameters taking precedence on conflict.
func ParseReturnURL(raw string) (url.Values, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing return URL: %w", err)
	}

	params := url.Values{}

	if u.Fragment != "" {
		frag, err := url.ParseQuery(u.Fragment)
		if err == nil {
			for k, vs := range frag {
				params[k] = vs
			}
		}
	}

	// Query wins on conflict. A fragment-mode provider is not expected
	// to also set query parameters; this just resolves the ambiguity
	// deterministically.
	for k, vs := range u.Query() {
		params[k] = vs
	}

	return params, nil
}

// Validate checks returned parameters against the expected artifacts.
//
// Order matters: a provider-reported error is surfaced before anything
// else, since it implies no valid code exists even when a spurious code
// is also present. A state mismatch is a suspected CSRF attempt and is
// never retried.
func Validate(params url.Values, expected *pkce.Artifacts) (*ValidatedCode, error) {
	if errCode := params.Get("error"); errCode != "" {
		return nil, &autherrors.ProviderError{
			Code:        errCode,
			Description: params.Get("error_description"),
		}
	}

	code := params.Get("code")
	if code == "" {
		return nil, autherrors.ErrMissingCode
	}

	// A nil expected set means the artifacts could not be decrypted or
	// were already consumed; indistinguishable from forgery, so it
	// fails the same way as a wrong state.
	if expected == nil || params.Get("state") != expected.State {
		return nil, autherrors.ErrStateMismatch
	}

	return &ValidatedCode{
		Code:         code,
		CodeVerifier: expected.CodeVerifier,
		Nonce:        expected.Nonce,
		Provider:     expected.Provider,
	}, nil
}
