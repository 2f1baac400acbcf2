// Package models defines types shared across internal packages.
package models

import "time"

// TokenSet is the credential material resolved for a login attempt.
// It is persisted only through the encrypted vault, never in the clear.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	IDToken      string    `json:"id_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AuthUser is the resolved identity behind a session. It contains no
// secrets and is persisted as a plaintext profile record so the UI can
// render it without touching the vault.
type AuthUser struct {
	Subject         string    `json:"subject"`
	Email           string    `json:"email,omitempty"`
	GivenName       string    `json:"given_name,omitempty"`
	FamilyName      string    `json:"family_name,omitempty"`
	AvatarURL       string    `json:"avatar_url,omitempty"`
	VeteranVerified bool      `json:"veteran_verified"`
	VerifiedBy      string    `json:"verified_by,omitempty"`
	AssuranceLevel  string    `json:"assurance_level,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	LastLoginAt     time.Time `json:"last_login_at"`
}

// Session is the authenticated result of a completed callback. A new
// login always produces a new Session; existing sessions are never
// mutated in place.
type Session struct {
	ID       string   `json:"id"`
	Provider string   `json:"provider"`
	Tokens   TokenSet `json:"tokens"`
	User     AuthUser `json:"user"`
}

// Expired reports whether the session's access token expiry has passed.
func (s *Session) Expired(now time.Time) bool {
	return !s.Tokens.ExpiresAt.After(now)
}
