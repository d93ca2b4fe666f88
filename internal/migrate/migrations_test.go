package migrate

import (
	"context"
	"testing"

	"civicdesk/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	latest, err := Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	first, err := Migrate(ctx, conn)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if first.From != 0 || first.To != latest || len(first.Applied) == 0 {
		t.Fatalf("unexpected first run: %+v (latest %d)", first, latest)
	}
	second, err := Migrate(ctx, conn)
	if err != nil {
		t.Fatalf("migrate again: %v", err)
	}
	if second.From != latest || second.To != latest || len(second.Applied) != 0 {
		t.Fatalf("second run should be a no-op: %+v", second)
	}

	var n int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM cases`).Scan(&n); err != nil {
		t.Fatalf("cases table missing: %v", err)
	}
}
