package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("IDME_CLIENT_ID", "idme-client-1")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8417", cfg.CallbackListenAddr)
	assert.Equal(t, "http://127.0.0.1:8417", cfg.CallbackBaseURL)
	assert.Equal(t, "development", cfg.Environment)
	assert.NotEmpty(t, cfg.StorePath, "store path should default to the home directory")
	assert.False(t, cfg.IsProduction())
}

func TestLoad_NoProvidersConfigured(t *testing.T) {
	t.Setenv("IDME_CLIENT_ID", "")
	t.Setenv("GOOGLE_CLIENT_ID", "")
	t.Setenv("LOGINGOV_CLIENT_ID", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one provider client ID")
}

func TestLoad_InvalidCallbackBaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CALLBACK_BASE_URL", "ftp://example.com")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CALLBACK_BASE_URL")
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOG_LEVEL", "verbose")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}

func TestLoad_StorePathMadeAbsolute(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AUTHCORE_STORE_PATH", "relative/state.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.StorePath != "relative/state.db" && cfg.StorePath != "", "path should be resolved to absolute")
}

func TestClientIDs_OmitsDisabledProviders(t *testing.T) {
	t.Setenv("IDME_CLIENT_ID", "idme-client-1")
	t.Setenv("GOOGLE_CLIENT_ID", "google-client-1")
	t.Setenv("LOGINGOV_CLIENT_ID", "")

	cfg, err := Load()
	require.NoError(t, err)

	ids := cfg.ClientIDs()
	assert.Equal(t, "idme-client-1", ids["idme"])
	assert.Equal(t, "google-client-1", ids["google"])

	_, ok := ids["logingov"]
	assert.False(t, ok, "providers without a client ID are omitted entirely")
}

func TestRedirectURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CALLBACK_BASE_URL", "http://127.0.0.1:9000/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000/auth/idme/callback", cfg.RedirectURL("idme"))
}
