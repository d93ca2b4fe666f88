package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"path/filepath"

	"civicdesk/internal/config"
	"civicdesk/internal/engine"
	"civicdesk/internal/migrate"
	"civicdesk/internal/repo"
	"civicdesk/internal/storage"
)

// Bootstrap loads the workspace config, falling back to defaults when no
// civicdesk.yml exists, applies migrations and seeds any taxonomy entries
// that are not yet in the database.
func Bootstrap(ctx context.Context, conn *sql.DB, workspace string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if _, err := SeedTaxonomy(ctx, repo.Repo{DB: conn}, cfg.Taxonomy); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SeedTaxonomy inserts missing taxonomy rows in one transaction and reports
// how many were added.
func SeedTaxonomy(ctx context.Context, r repo.Repo, t config.Taxonomy) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	added, err := r.SeedTaxonomy(ctx, tx, t)
	if err != nil {
		return 0, fmt.Errorf("seed taxonomy: %w", err)
	}
	return added, tx.Commit()
}

// UploadRoot is the directory holding uploaded files for a workspace.
func UploadRoot(workspace string, cfg *config.Config) string {
	if filepath.IsAbs(cfg.Uploads.Dir) {
		return cfg.Uploads.Dir
	}
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, cfg.Uploads.Dir)
}

// NewEngine wires the engine with local file storage for the workspace.
func NewEngine(conn *sql.DB, cfg *config.Config, workspace string, logger *log.Logger) engine.Engine {
	eng := engine.New(conn, cfg)
	eng.Logger = logger
	eng.Storage = storage.Local{
		Root:         UploadRoot(workspace, cfg),
		BaseURL:      cfg.Uploads.BaseURL,
		MaxBytes:     cfg.Uploads.MaxBytes,
		AllowedTypes: cfg.Uploads.AllowedTypes,
	}
	return eng
}
