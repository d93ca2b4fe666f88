package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

type Migration struct {
	Version int
	Name    string
	UpSQL   string
}

// Result describes one Migrate run.
type Result struct {
	From    int
	To      int
	Applied []string
}

func loadMigrations() ([]Migration, error) {
	entries, err := fs.Glob(migrationsFS, "sql/*.sql")
	if err != nil {
		return nil, err
	}
	var out []Migration
	for _, p := range entries {
		name := strings.TrimPrefix(p, "sql/")
		prefix, _, ok := strings.Cut(name, "_")
		v, convErr := strconv.Atoi(prefix)
		if !ok || convErr != nil {
			return nil, fmt.Errorf("migration %s: name must start with <version>_", name)
		}
		data, err := migrationsFS.ReadFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{Version: v, Name: name, UpSQL: string(data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	for i := 1; i < len(out); i++ {
		if out[i].Version == out[i-1].Version {
			return nil, fmt.Errorf("migrations %s and %s share version %d", out[i-1].Name, out[i].Name, out[i].Version)
		}
	}
	return out, nil
}

// Latest is the highest embedded schema version.
func Latest() (int, error) {
	ms, err := loadMigrations()
	if err != nil || len(ms) == 0 {
		return 0, err
	}
	return ms[len(ms)-1].Version, nil
}

// Migrate brings the schema up to Latest in a single transaction.
func Migrate(ctx context.Context, db *sql.DB) (Result, error) {
	var res Result
	ms, err := loadMigrations()
	if err != nil {
		return res, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL)`); err != nil {
		return res, fmt.Errorf("create schema_version: %w", err)
	}
	switch err := tx.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&res.From); {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return res, fmt.Errorf("init schema_version: %w", err)
		}
	case err != nil:
		return res, fmt.Errorf("read schema_version: %w", err)
	}
	res.To = res.From

	for _, m := range ms {
		if m.Version <= res.To {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			return res, fmt.Errorf("migration %s: %w", m.Name, err)
		}
		res.To = m.Version
		res.Applied = append(res.Applied, m.Name)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE schema_version SET version=?`, res.To); err != nil {
		return res, fmt.Errorf("update schema_version: %w", err)
	}
	return res, tx.Commit()
}
