package provider

import (
	"fmt"
	"net/url"
)

// Extras carries provider-specific authorization parameters. Each
// provider has its own variant holding only the fields that provider
// actually uses, so an unsupported field cannot be configured by
// accident.
type Extras interface {
	apply(q url.Values)
}

// IDMeExtras holds ID.me-specific parameters.
type IDMeExtras struct {
	// ACRValues requests a minimum level of assurance.
	ACRValues string
}

func (e IDMeExtras) apply(q url.Values) {
	if e.ACRValues != "" {
		q.Set("acr_values", e.ACRValues)
	}
}

// GoogleExtras holds Google-specific parameters.
type GoogleExtras struct {
	// Prompt hints the consent screen behavior (e.g. "select_account").
	Prompt string
}

func (e GoogleExtras) apply(q url.Values) {
	if e.Prompt != "" {
		q.Set("prompt", e.Prompt)
	}
}

// LoginGovExtras holds Login.gov-specific parameters.
type LoginGovExtras struct {
	// ACRValues requests an identity assurance level
	// (e.g. "http://idmanagement.gov/ns/assurance/ial/2").
	ACRValues string
}

func (e LoginGovExtras) apply(q url.Values) {
	if e.ACRValues != "" {
		q.Set("acr_values", e.ACRValues)
	}
}

// extrasFor converts a definition's raw extra fields into the tagged
// variant for its provider, rejecting fields the provider does not use.
func extrasFor(def providerDef) (Extras, error) {
	switch def.ID {
	case "idme":
		if def.Prompt != "" {
			return nil, fmt.Errorf("provider idme does not support the prompt parameter")
		}

		return IDMeExtras{ACRValues: def.ACRValues}, nil
	case "google":
		if def.ACRValues != "" {
			return nil, fmt.Errorf("provider google does not support the acr_values parameter")
		}

		return GoogleExtras{Prompt: def.Prompt}, nil
	case "logingov":
		if def.Prompt != "" {
			return nil, fmt.Errorf("provider logingov does not support the prompt parameter")
		}

		return LoginGovExtras{ACRValues: def.ACRValues}, nil
	default:
		return nil, fmt.Errorf("unrecognized provider definition %q", def.ID)
	}
}
