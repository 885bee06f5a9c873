package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/elite-vending/vendhub/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	// Ensure clean env
	t.Setenv("VENDHUB_BACKEND_URL", "")
	t.Setenv("VENDHUB_API_KEY", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("VENDHUB_PROFILES_DIR", "")
	t.Setenv("DATA_DIR", "")
	t.Setenv("VENDHUB_ARCHIVE_BACKEND", "")
	t.Setenv("VENDHUB_SESSION_SECRET", "")
	t.Setenv("VENDHUB_AUDIT_DB", "")

	cfg := config.Load()

	assert.Contains(t, cfg.BackendURL, "localhost")
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "profiles", cfg.ProfilesDir)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "fs", cfg.ArchiveBackend)
	assert.Equal(t, "data/audit.db", cfg.AuditDBPath)
	assert.Empty(t, cfg.APIKey)
	assert.Empty(t, cfg.SessionSecret)
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("VENDHUB_BACKEND_URL", "https://api.vendhub.example")
	t.Setenv("VENDHUB_API_KEY", "key_123")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("VENDHUB_PROFILES_DIR", "/etc/vendhub/profiles")
	t.Setenv("DATA_DIR", "/var/lib/vendhub")
	t.Setenv("VENDHUB_ARCHIVE_BACKEND", "s3")
	t.Setenv("VENDHUB_SESSION_SECRET", "s3cret")
	t.Setenv("VENDHUB_AUDIT_DB", "/var/lib/vendhub/audit.db")

	cfg := config.Load()

	assert.Equal(t, "https://api.vendhub.example", cfg.BackendURL)
	assert.Equal(t, "key_123", cfg.APIKey)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "/etc/vendhub/profiles", cfg.ProfilesDir)
	assert.Equal(t, "/var/lib/vendhub", cfg.DataDir)
	assert.Equal(t, "s3", cfg.ArchiveBackend)
	assert.Equal(t, "s3cret", cfg.SessionSecret)
	assert.Equal(t, "/var/lib/vendhub/audit.db", cfg.AuditDBPath)
}
