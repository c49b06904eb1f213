package backend

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"kakeibo/internal/config"
	"kakeibo/internal/sheets/google"
	"kakeibo/internal/sheets/memory"
	"kakeibo/internal/sheets/upstream"
	"kakeibo/internal/snapshot"
	"kakeibo/internal/storage"
)

// Factory creates backends and snapshot storages from configuration.
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// CreateBackend builds the data backend named by cfg.Type.
func (f *Factory) CreateBackend(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case SheetsBackend:
		return f.createSheetsBackend(ctx, cfg)
	case UpstreamBackend:
		return f.createUpstreamBackend(cfg)
	default:
		return f.createMemoryBackend(cfg)
	}
}

func (f *Factory) createSheetsBackend(ctx context.Context, cfg Config) (*Result, error) {
	cli, err := google.New(ctx, google.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
		OAuth:           cfg.GoogleOAuth,
		Tabs:            cfg.Tabs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.Info("Initialized Google Sheets backend", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return &Result{Backend: cli.WithClock(cfg.clock())}, nil
}

func (f *Factory) createUpstreamBackend(cfg Config) (*Result, error) {
	up := upstream.New(cfg.UpstreamURL, cfg.UpstreamToken, cfg.httpClient()).WithClock(cfg.clock())
	if !up.Configured() {
		f.logger.Warn("Upstream backend selected without UPSTREAM_URL; requests will fail with a configuration error")
	} else {
		f.logger.Info("Initialized upstream backend")
	}
	return &Result{Backend: up}, nil
}

func (f *Factory) createMemoryBackend(cfg Config) (*Result, error) {
	store, err := memory.NewFromFile(cfg.SeedFile, cfg.clock())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory backend: %w", err)
	}
	f.logger.Info("Initialized memory backend", "seed_file", cfg.SeedFile)
	return &Result{Backend: store}, nil
}

// CreateSnapshotStorage builds the durable storage for ledger snapshots.
func (f *Factory) CreateSnapshotStorage(cfg Config) (*SnapshotResult, error) {
	switch cfg.SnapshotBackend {
	case config.SnapshotMemory:
		return &SnapshotResult{Storage: snapshot.NewMemory()}, nil
	case config.SnapshotFile:
		fs, err := snapshot.NewFile(cfg.SnapshotDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize file snapshots: %w", err)
		}
		f.logger.Info("Initialized file snapshot storage", "dir", cfg.SnapshotDir)
		return &SnapshotResult{Storage: fs}, nil
	default:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite snapshot storage", "db_path", filepath.Clean(cfg.SQLiteDBPath))
		return &SnapshotResult{Storage: repo, Cleanup: repo.Close}, nil
	}
}
