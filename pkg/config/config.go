// Package config loads CLI and service configuration from the environment.
package config

import "os"

// Config holds vendhub configuration.
type Config struct {
	BackendURL     string
	APIKey         string
	LogLevel       string
	ProfilesDir    string
	DataDir        string
	ArchiveBackend string
	SessionSecret  string
	AuditDBPath    string
}

// Load loads configuration from environment variables.
func Load() *Config {
	backendURL := os.Getenv("VENDHUB_BACKEND_URL")
	if backendURL == "" {
		backendURL = "http://localhost:8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	profilesDir := os.Getenv("VENDHUB_PROFILES_DIR")
	if profilesDir == "" {
		profilesDir = "profiles"
	}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	archiveBackend := os.Getenv("VENDHUB_ARCHIVE_BACKEND")
	if archiveBackend == "" {
		archiveBackend = "fs"
	}

	auditDBPath := os.Getenv("VENDHUB_AUDIT_DB")
	if auditDBPath == "" {
		auditDBPath = "data/audit.db"
	}

	return &Config{
		BackendURL:     backendURL,
		APIKey:         os.Getenv("VENDHUB_API_KEY"),
		LogLevel:       logLevel,
		ProfilesDir:    profilesDir,
		DataDir:        dataDir,
		ArchiveBackend: archiveBackend,
		SessionSecret:  os.Getenv("VENDHUB_SESSION_SECRET"),
		AuditDBPath:    auditDBPath,
	}
}
