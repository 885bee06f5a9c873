// vendhub-export creates tenant-scoped bulk exports against the vendhub
// backend and optionally archives the resulting file under the tenant's
// residency-approved storage.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/elite-vending/vendhub/pkg/artifacts"
	"github.com/elite-vending/vendhub/pkg/audit"
	"github.com/elite-vending/vendhub/pkg/auth"
	"github.com/elite-vending/vendhub/pkg/backend"
	"github.com/elite-vending/vendhub/pkg/config"
	"github.com/elite-vending/vendhub/pkg/export"
	"github.com/elite-vending/vendhub/pkg/kms"
	"github.com/elite-vending/vendhub/pkg/observability"
	"github.com/elite-vending/vendhub/pkg/residency"
	"github.com/elite-vending/vendhub/pkg/tenancy"
)

// exportableEntities are the backend entities this tool can export.
var exportableEntities = []string{"Sale", "Machine", "Location", "Product", "Route"}

func main() {
	var (
		entityName  = flag.String("entity", "", "entity to export (e.g. Sale)")
		format      = flag.String("format", "jsonl", "export format: jsonl or parquet")
		filtersJSON = flag.String("filters", "", "additional filters as a JSON object")
		exportName  = flag.String("name", "", "export file name (default: <entity>_<format>_<timestamp>)")
		token       = flag.String("token", "", "session token (default: VENDHUB_SESSION_TOKEN)")
		archive     = flag.Bool("archive", false, "download and archive the export artifact")
		timeout     = flag.Duration("timeout", 5*time.Minute, "overall timeout")
	)
	flag.Parse()

	if *entityName == "" {
		log.Fatalf("Usage: vendhub-export -entity <name> [-format jsonl|parquet] [-filters '{...}'] [-archive]")
	}

	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)

	sessionToken := *token
	if sessionToken == "" {
		sessionToken = os.Getenv("VENDHUB_SESSION_TOKEN")
	}
	if sessionToken == "" {
		log.Fatal("no session token: pass -token or set VENDHUB_SESSION_TOKEN")
	}
	if cfg.SessionSecret == "" {
		log.Fatal("VENDHUB_SESSION_SECRET is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// Audit trail persisted to sqlite.
	trail := audit.NewTrail()
	sink, err := audit.NewSQLiteSink(cfg.AuditDBPath)
	if err != nil {
		logger.Warn("audit sink unavailable, events stay in memory", "error", err)
	} else {
		defer sink.Close()
		trail.AddHandler(sink.Handle)
	}

	metrics, err := observability.NewMetrics(nil)
	if err != nil {
		logger.Warn("metrics disabled", "error", err)
	}

	// Tenant context from the session token. Every rejection lands in the
	// trail and on the counters.
	store := tenancy.NewStore(
		tenancy.WithLogger(logger),
		tenancy.WithViolationHandler(export.NewViolationRecorder(trail, metrics)),
	)
	store.Subscribe(func() {
		snap := store.Get()
		if _, err := trail.Append(audit.EventContextChanged, snap.OrgID, "", "tenant_context_changed", nil); err != nil {
			logger.Error("failed to record context change", "error", err)
		}
	})

	verifier, err := auth.NewVerifier([]byte(cfg.SessionSecret))
	if err != nil {
		log.Fatalf("auth: %v", err)
	}
	claims, err := verifier.Bind(sessionToken, store)
	if err != nil {
		log.Fatalf("session rejected: %v", err)
	}
	logger.Info("session bound", "org_id", claims.OrgID, "subject", claims.Subject)

	// Regional residency profiles.
	profiles, err := residency.LoadAllProfiles(cfg.ProfilesDir)
	if err != nil {
		logger.Warn("no residency profiles loaded", "dir", cfg.ProfilesDir, "error", err)
		profiles = map[string]*residency.Profile{}
	}
	resolver := residency.NewResolver(store,
		residency.WithProfiles(profiles),
		residency.WithResolverLogger(logger),
	)

	// Backend entities.
	httpCfg := backend.HTTPConfig{BaseURL: cfg.BackendURL, APIKey: cfg.APIKey}
	entities := make(map[string]backend.Entity, len(exportableEntities))
	for _, name := range exportableEntities {
		entities[name] = backend.NewHTTPEntity(name, httpCfg)
	}
	registry := backend.NewRegistry(entities)

	exporter := export.NewExporter(store, resolver, registry,
		export.WithAuditTrail(trail),
		export.WithMetrics(metrics),
	)

	var filters map[string]any
	if *filtersJSON != "" {
		if err := json.Unmarshal([]byte(*filtersJSON), &filters); err != nil {
			log.Fatalf("invalid -filters JSON: %v", err)
		}
	}

	result, err := exporter.CreateEntityExport(ctx, export.Request{
		EntityName: *entityName,
		Format:     *format,
		Filters:    filters,
		ExportName: *exportName,
	})
	if err != nil {
		log.Fatalf("export failed: %v", err)
	}

	fmt.Printf("export ready: %s\n", result.ExportName)
	fmt.Printf("download url: %s\n", result.DownloadURL)
	if result.ExpiresAt != "" {
		fmt.Printf("expires at:   %s\n", result.ExpiresAt)
	}

	if *archive {
		hash, err := archiveExport(ctx, cfg, result, logger)
		if err != nil {
			log.Fatalf("archive failed: %v", err)
		}
		fmt.Printf("archived as:  %s\n", hash)
	}
}

// archiveExport downloads the export file and stores it in the
// residency-pinned archive, encrypted when the residency names a kms key.
func archiveExport(ctx context.Context, cfg *config.Config, result *export.Result, logger *slog.Logger) (string, error) {
	data, err := download(ctx, result)
	if err != nil {
		return "", err
	}

	store, err := artifacts.NewStoreForResidency(ctx, result.Residency, artifacts.Options{
		Backend: artifacts.Backend(cfg.ArchiveBackend),
		DataDir: cfg.DataDir,
	})
	if err != nil {
		return "", err
	}

	if result.Residency.KMSKey != "" {
		keys, err := kms.NewLocalKeyring(filepath.Join(cfg.DataDir, "keystore.json"), result.Residency.KMSKey)
		if err != nil {
			return "", err
		}
		store, err = artifacts.NewEncryptingStore(store, keys, result.Residency,
			filepath.Join(cfg.DataDir, "archive_index.json"))
		if err != nil {
			return "", err
		}
	}

	hash, err := store.Put(ctx, data)
	if err != nil {
		return "", err
	}
	logger.Info("export archived", "hash", hash, "bytes", len(data), "backend", cfg.ArchiveBackend)
	return hash, nil
}

func download(ctx context.Context, result *export.Result) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, result.DownloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	for k, v := range result.Headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download returned %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
