package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	stateDir           = ".civicdesk"
	fileName           = "civicdesk.db"
	defaultBusyTimeout = 5 * time.Second
)

type Config struct {
	Workspace string
	// BusyTimeout bounds how long a writer waits for another writer's transaction.
	BusyTimeout time.Duration
}

// Dir is the state directory inside a workspace. It holds the database.
func Dir(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, stateDir)
}

// Path returns the database file for the workspace.
func Path(workspace string) string {
	return filepath.Join(Dir(workspace), fileName)
}

// EnsureWorkspace creates the state directory when missing and returns it.
func EnsureWorkspace(workspace string) (string, error) {
	dir := Dir(workspace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}

// Open opens the workspace database. Foreign keys are enforced, the journal
// is WAL and every transaction begins IMMEDIATE, so two writers racing on
// the same case serialize on the write lock instead of failing at commit.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	params := []string{
		"_pragma=foreign_keys(1)",
		fmt.Sprintf("_pragma=busy_timeout(%d)", busy.Milliseconds()),
		"_pragma=journal_mode(WAL)",
		"_txlock=immediate",
	}
	return sql.Open("sqlite", "file:"+Path(cfg.Workspace)+"?"+strings.Join(params, "&"))
}
