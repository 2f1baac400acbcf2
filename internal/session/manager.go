// Package session owns the authentication state machine. Every login,
// callback, logout, and restore flows through the Manager, which is the
// only writer of authentication state; all other packages are pure or
// storage-only.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vetfolio/authcore/internal/callback"
	autherrors "github.com/vetfolio/authcore/internal/errors"
	"github.com/vetfolio/authcore/internal/models"
	"github.com/vetfolio/authcore/internal/pkce"
	"github.com/vetfolio/authcore/internal/provider"
	"github.com/vetfolio/authcore/internal/store"
	"github.com/vetfolio/authcore/internal/vault"
)

// State is the session lifecycle phase.
type State int

const (
	// StateAnonymous is the rest state: no session, no pending attempt.
	StateAnonymous State = iota

	// StateInitiating covers artifact generation up to the point the
	// browser is handed off to the provider.
	StateInitiating

	// StateAwaitingCallback means artifacts are persisted and the user
	// is at the provider. Survives process restarts.
	StateAwaitingCallback

	// StateAuthenticated means a valid session exists.
	StateAuthenticated

	// StateFailed is terminal for one attempt; the next Login leaves it.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateInitiating:
		return "initiating"
	case StateAwaitingCallback:
		return "awaiting_callback"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// artifactTTL bounds how long persisted login artifacts stay
// redeemable. A callback arriving later is treated as if no attempt
// were pending.
const artifactTTL = 10 * time.Minute

// Snapshot is the read-only view handed to subscribers and callers.
// It never carries token material.
type Snapshot struct {
	State         State
	Authenticated bool
	Provider      string
	User          *models.AuthUser
	Err           error
}

// tokenRecord is the encrypted-at-rest session credential record.
type tokenRecord struct {
	SessionID string          `json:"session_id"`
	Provider  string          `json:"provider"`
	Tokens    models.TokenSet `json:"tokens"`
}

// profileRecord is the plaintext profile record. Kept separate from
// tokens so a UI can render the signed-in user without touching the
// vault.
type profileRecord struct {
	Provider string          `json:"provider"`
	User     models.AuthUser `json:"user"`
}

// Manager drives the authentication lifecycle. All public methods are
// safe for concurrent use; subscribers are invoked outside the lock.
type Manager struct {
	registry  *provider.Registry
	vault     *vault.Vault
	store     *store.Store
	exchanger Exchanger
	navigator Navigator
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	state   State
	current *models.Session
	lastErr error
	subs    map[string]func(Snapshot)
}

// Option configures a Manager.
type Option func(*Manager)

// WithExchanger replaces the default static exchanger.
func WithExchanger(e Exchanger) Option {
	return func(m *Manager) { m.exchanger = e }
}

// WithClock replaces the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a session manager in the anonymous state. Call
// Restore to resurrect a persisted session.
func NewManager(registry *provider.Registry, v *vault.Vault, st *store.Store, nav Navigator, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		registry:  registry,
		vault:     v,
		store:     st,
		exchanger: NewStaticExchanger(),
		navigator: nav,
		logger:    logger,
		now:       time.Now,
		state:     StateAnonymous,
		subs:      make(map[string]func(Snapshot)),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Snapshot returns the current view of the session.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.snapshotLocked()
}

// Subscribe registers fn to run on every state transition and returns
// an unsubscribe function. fn must not call back into the Manager.
func (m *Manager) Subscribe(fn func(Snapshot)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.subs[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Login starts an authorization attempt against the named provider.
// Artifacts are generated, encrypted, and durably persisted before the
// navigator is invoked, so the attempt survives the process being torn
// down by the redirect. Starting a new attempt supersedes any pending
// one.
func (m *Manager) Login(ctx context.Context, providerID string) error {
	cfg, err := m.registry.Get(providerID)
	if err != nil {
		return m.fail(fmt.Errorf("login: %w", err))
	}

	m.transition(StateInitiating, nil, nil)

	artifacts, err := pkce.Generate(providerID, cfg.ChallengeMethod)
	if err != nil {
		return m.fail(fmt.Errorf("generating artifacts: %w", err))
	}

	raw, err := json.Marshal(artifacts)
	if err != nil {
		return m.fail(fmt.Errorf("encoding artifacts: %w", err))
	}

	blob, err := m.vault.Encrypt(string(raw))
	if err != nil {
		return m.fail(fmt.Errorf("sealing artifacts: %w", err))
	}

	if err := m.store.SetArtifacts(blob); err != nil {
		return m.fail(fmt.Errorf("persisting artifacts: %w", err))
	}

	authURL, err := cfg.AuthorizationURL(artifacts)
	if err != nil {
		return m.fail(fmt.Errorf("building authorization URL: %w", err))
	}

	m.transition(StateAwaitingCallback, nil, nil)
	m.logger.Info("login initiated", "provider", providerID, "state", artifacts.State)

	if err := m.navigator.Navigate(ctx, authURL); err != nil {
		return m.fail(fmt.Errorf("navigating to provider: %w", err))
	}

	return nil
}

// HandleCallback processes the provider's return redirect. On success
// the session is persisted (tokens encrypted, profile in the clear) and
// the state becomes Authenticated. On any failure the pending artifacts
// are destroyed, the state becomes Failed, and the error is returned;
// an attempt is redeemable exactly once.
func (m *Manager) HandleCallback(ctx context.Context, providerID, returnURL string) (*models.Session, error) {
	cfg, err := m.registry.Get(providerID)
	if err != nil {
		return nil, m.failAttempt(err)
	}

	artifacts, err := m.loadArtifacts(providerID)
	if err != nil {
		return nil, m.failAttempt(err)
	}

	params, err := callback.ParseReturnURL(returnURL)
	if err != nil {
		return nil, m.failAttempt(err)
	}

	code, err := callback.Validate(params, artifacts)
	if err != nil {
		if errors.Is(err, autherrors.ErrStateMismatch) {
			m.logger.Warn("state mismatch on callback, possible CSRF", "provider", providerID)
		}

		return nil, m.failAttempt(err)
	}

	result, err := m.exchanger.Exchange(ctx, cfg, code)
	if err != nil {
		return nil, m.failAttempt(fmt.Errorf("exchanging code: %w", err))
	}

	if err := checkIDToken(result.Tokens.IDToken, code.Nonce, m.now()); err != nil {
		return nil, m.failAttempt(err)
	}

	user, err := resolveUser(result.Profile, cfg, m.now())
	if err != nil {
		return nil, m.failAttempt(fmt.Errorf("resolving profile: %w", err))
	}

	session := &models.Session{
		ID:       uuid.NewString(),
		Provider: providerID,
		Tokens:   result.Tokens,
		User:     user,
	}

	if err := m.persistSession(session); err != nil {
		return nil, m.failAttempt(err)
	}

	// The attempt is consumed; a replayed redirect now finds nothing.
	if err := m.store.DeleteArtifacts(); err != nil {
		m.logger.Warn("clearing consumed artifacts", "error", err)
	}

	m.transition(StateAuthenticated, session, nil)
	m.logger.Info("session established",
		"provider", providerID,
		"subject", user.Subject,
		"verified", user.VeteranVerified)

	return session, nil
}

// Logout destroys the session, all persisted records, and the vault
// key in that storage area, then returns to the anonymous state.
// Idempotent: logging out while anonymous is a no-op transition.
func (m *Manager) Logout(ctx context.Context) error {
	_ = ctx

	if err := m.vault.ClearKey(); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	if err := m.store.Wipe(); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	m.transition(StateAnonymous, nil, nil)
	m.logger.Info("logged out")

	return nil
}

// Restore resurrects a persisted session on startup. An absent record
// leaves the manager anonymous; an undecryptable or expired record is
// silently converted into a full logout so no stale material survives.
// Restore never returns an error the caller must act on.
func (m *Manager) Restore(ctx context.Context) {
	blob := m.store.Tokens()
	if blob == "" {
		return
	}

	raw, err := m.vault.Decrypt(blob)
	if err != nil {
		m.logger.Warn("stored session unreadable, clearing", "error", err)
		m.discard(ctx)
		return
	}

	var rec tokenRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		m.logger.Warn("stored session malformed, clearing", "error", err)
		m.discard(ctx)
		return
	}

	session := &models.Session{
		ID:       rec.SessionID,
		Provider: rec.Provider,
		Tokens:   rec.Tokens,
	}

	if session.Expired(m.now()) {
		m.logger.Info("stored session expired, clearing", "provider", rec.Provider)
		m.discard(ctx)
		return
	}

	var prof profileRecord
	if err := json.Unmarshal(m.store.Profile(), &prof); err != nil {
		m.logger.Warn("stored profile unreadable, clearing", "error", err)
		m.discard(ctx)
		return
	}

	session.User = prof.User

	m.transition(StateAuthenticated, session, nil)
	m.logger.Info("session restored", "provider", rec.Provider, "subject", prof.User.Subject)
}

// loadArtifacts reads, decrypts, and validates the pending artifacts.
// Absent, unreadable, expired, or cross-provider artifacts all resolve
// to protocol errors; the raw failure details go to the log, not the
// caller.
func (m *Manager) loadArtifacts(providerID string) (*pkce.Artifacts, error) {
	blob := m.store.Artifacts()
	if blob == "" {
		return nil, autherrors.ErrMissingArtifacts
	}

	raw, err := m.vault.Decrypt(blob)
	if err != nil {
		m.logger.Warn("pending artifacts unreadable", "error", err)
		return nil, autherrors.ErrMissingArtifacts
	}

	var artifacts pkce.Artifacts
	if err := json.Unmarshal([]byte(raw), &artifacts); err != nil {
		m.logger.Warn("pending artifacts malformed", "error", err)
		return nil, autherrors.ErrMissingArtifacts
	}

	if age := artifacts.Age(m.now()); age > artifactTTL {
		m.logger.Info("pending artifacts expired", "age", age)
		return nil, autherrors.ErrMissingArtifacts
	}

	// A callback for provider A must not redeem artifacts issued for
	// provider B.
	if artifacts.Provider != providerID {
		return nil, autherrors.ErrStateMismatch
	}

	return &artifacts, nil
}

// persistSession writes the token and profile records. Tokens go
// through the vault; the profile is stored in the clear so it can be
// read without key material.
func (m *Manager) persistSession(s *models.Session) error {
	rawTokens, err := json.Marshal(tokenRecord{
		SessionID: s.ID,
		Provider:  s.Provider,
		Tokens:    s.Tokens,
	})
	if err != nil {
		return fmt.Errorf("encoding tokens: %w", err)
	}

	blob, err := m.vault.Encrypt(string(rawTokens))
	if err != nil {
		return fmt.Errorf("sealing tokens: %w", err)
	}

	if err := m.store.SetTokens(blob); err != nil {
		return fmt.Errorf("persisting tokens: %w", err)
	}

	rawProfile, err := json.Marshal(profileRecord{Provider: s.Provider, User: s.User})
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}

	if err := m.store.SetProfile(rawProfile); err != nil {
		return fmt.Errorf("persisting profile: %w", err)
	}

	return nil
}

// failAttempt destroys the pending artifacts and moves to Failed. Every
// callback failure path runs through here so an attempt can never be
// redeemed twice.
func (m *Manager) failAttempt(err error) error {
	if derr := m.store.DeleteArtifacts(); derr != nil {
		m.logger.Warn("clearing artifacts after failure", "error", derr)
	}

	return m.fail(err)
}

// fail records err, moves to Failed, and returns err for convenience.
func (m *Manager) fail(err error) error {
	m.logger.Error("authentication failed", "error", err)
	m.transition(StateFailed, nil, err)

	return err
}

// discard performs the silent full logout used by Restore: clears the
// key and all records without surfacing errors.
func (m *Manager) discard(ctx context.Context) {
	if err := m.Logout(ctx); err != nil {
		m.logger.Warn("clearing stale session", "error", err)
	}
}

// transition updates the state under the lock, then notifies
// subscribers outside it.
func (m *Manager) transition(state State, session *models.Session, err error) {
	m.mu.Lock()

	m.state = state
	m.current = session
	m.lastErr = err

	snap := m.snapshotLocked()

	listeners := make([]func(Snapshot), 0, len(m.subs))
	for _, fn := range m.subs {
		listeners = append(listeners, fn)
	}

	m.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:         m.state,
		Authenticated: m.state == StateAuthenticated,
		Err:           m.lastErr,
	}

	if m.current != nil {
		snap.Provider = m.current.Provider
		user := m.current.User
		snap.User = &user
	}

	return snap
}
