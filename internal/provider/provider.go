// Package provider holds the static, read-only configuration for each
// supported identity provider. Definitions are embedded at build time;
// client identifiers come from the environment. A provider without a
// client ID is removed from the registry entirely, so using it surfaces
// as an unknown provider rather than a soft "unavailable" state.
package provider

import (
	_ "embed"
	"fmt"
	"net/url"
	"sort"

	"gopkg.in/yaml.v3"

	autherrors "github.com/vetfolio/authcore/internal/errors"
	"github.com/vetfolio/authcore/internal/pkce"
)

//go:embed providers.yaml
var providersYAML []byte

// ClaimMap names the gjson paths used to pull identity fields out of a
// provider's profile payload. Claim names differ per provider (e.g.
// ID.me uses fname/lname where OIDC providers use given_name).
type ClaimMap struct {
	Subject    string `yaml:"subject"`
	Email      string `yaml:"email"`
	GivenName  string `yaml:"given_name"`
	FamilyName string `yaml:"family_name"`
	Picture    string `yaml:"picture"`

	// Verified is the path of the boolean claim asserting veteran
	// verification. Empty for providers that cannot verify.
	Verified string `yaml:"verified"`
}

// Config identifies one identity provider. Immutable; created once at
// startup and never mutated.
type Config struct {
	ID          string
	Name        string
	ClientID    string
	RedirectURL string

	AuthorizationEndpoint string
	TokenEndpoint         string
	UserinfoEndpoint      string

	Scope           string
	ResponseType    string
	ResponseMode    string
	PKCERequired    bool
	ChallengeMethod pkce.ChallengeMethod

	// AssuranceLevel is the identity-assurance tier this provider
	// asserts when verification succeeds (e.g. "ial2", "loa3").
	AssuranceLevel string

	Claims ClaimMap
	Extras Extras
}

// AuthorizationURL builds the outbound authorization request URL for a
// fresh set of PKCE artifacts.
func (c Config) AuthorizationURL(a *pkce.Artifacts) (string, error) {
	u, err := url.Parse(c.AuthorizationEndpoint)
	if err != nil {
		return "", fmt.Errorf("parsing authorization endpoint for %s: %w", c.ID, err)
	}

	q := u.Query()
	q.Set("client_id", c.ClientID)
	q.Set("redirect_uri", c.RedirectURL)
	q.Set("response_type", c.ResponseType)
	q.Set("scope", c.Scope)
	q.Set("state", a.State)
	q.Set("nonce", a.Nonce)
	q.Set("code_challenge", a.CodeChallenge)
	q.Set("code_challenge_method", string(a.ChallengeMethod))

	if c.ResponseMode != "" {
		q.Set("response_mode", c.ResponseMode)
	}

	if c.Extras != nil {
		c.Extras.apply(q)
	}

	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Registry is a pure lookup table of enabled providers.
type Registry struct {
	providers map[string]Config
}

// providerDef is the YAML shape of one embedded provider definition.
type providerDef struct {
	ID                    string   `yaml:"id"`
	Name                  string   `yaml:"name"`
	AuthorizationEndpoint string   `yaml:"authorization_endpoint"`
	TokenEndpoint         string   `yaml:"token_endpoint"`
	UserinfoEndpoint      string   `yaml:"userinfo_endpoint"`
	Scope                 string   `yaml:"scope"`
	ResponseType          string   `yaml:"response_type"`
	ResponseMode          string   `yaml:"response_mode"`
	PKCERequired          bool     `yaml:"pkce_required"`
	ChallengeMethod       string   `yaml:"challenge_method"`
	AssuranceLevel        string   `yaml:"assurance_level"`
	Claims                ClaimMap `yaml:"claims"`

	// Raw extras; converted to the provider's tagged variant.
	Prompt    string `yaml:"prompt"`
	ACRValues string `yaml:"acr_values"`
}

type providerFile struct {
	Providers []providerDef `yaml:"providers"`
}

// NewRegistry assembles the registry from the embedded definitions plus
// the environment-supplied client identifiers. redirectURL maps a
// provider ID to its registered redirect target. No network calls.
func NewRegistry(clientIDs map[string]string, redirectURL func(providerID string) string) (*Registry, error) {
	var file providerFile
	if err := yaml.Unmarshal(providersYAML, &file); err != nil {
		return nil, fmt.Errorf("parsing embedded provider definitions: %w", err)
	}

	providers := make(map[string]Config, len(file.Providers))

	for _, def := range file.Providers {
		clientID, enabled := clientIDs[def.ID]
		if !enabled {
			continue
		}

		extras, err := extrasFor(def)
		if err != nil {
			return nil, err
		}

		method := pkce.ChallengeMethod(def.ChallengeMethod)
		if _, err := pkce.Challenge("probe", method); err != nil {
			return nil, fmt.Errorf("provider %s: %w", def.ID, err)
		}

		providers[def.ID] = Config{
			ID:                    def.ID,
			Name:                  def.Name,
			ClientID:              clientID,
			RedirectURL:           redirectURL(def.ID),
			AuthorizationEndpoint: def.AuthorizationEndpoint,
			TokenEndpoint:         def.TokenEndpoint,
			UserinfoEndpoint:      def.UserinfoEndpoint,
			Scope:                 def.Scope,
			ResponseType:          def.ResponseType,
			ResponseMode:          def.ResponseMode,
			PKCERequired:          def.PKCERequired,
			ChallengeMethod:       method,
			AssuranceLevel:        def.AssuranceLevel,
			Claims:                def.Claims,
			Extras:                extras,
		}
	}

	return &Registry{providers: providers}, nil
}

// Get returns the configuration for a provider ID.
func (r *Registry) Get(providerID string) (Config, error) {
	cfg, ok := r.providers[providerID]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", autherrors.ErrUnknownProvider, providerID)
	}

	return cfg, nil
}

// IDs returns the enabled provider IDs in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}
