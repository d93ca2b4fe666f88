package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"civicdesk/internal/domain"
)

const apiKeyColumns = `id, user_id, COALESCE(name,''), key_hash, created_at, last_used_at, revoked_at`

// HashAPIKey is the only form of a key that is ever stored.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

func scanAPIKey(row rowScanner) (domain.APIKey, error) {
	var k domain.APIKey
	var used, revoked sql.NullString
	if err := row.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.CreatedAt, &used, &revoked); err != nil {
		if err == sql.ErrNoRows {
			return k, ErrNotFound
		}
		return k, err
	}
	k.LastUsedAt = ptrFromNull(used)
	k.RevokedAt = ptrFromNull(revoked)
	return k, nil
}

func (r Repo) InsertAPIKey(ctx context.Context, tx *sql.Tx, k domain.APIKey) error {
	for field, v := range map[string]string{"id": k.ID, "user_id": k.UserID, "key_hash": k.KeyHash} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("api key %s required", field)
		}
	}
	if k.CreatedAt == "" {
		k.CreatedAt = nowUTC()
	}
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO api_keys(id, user_id, name, key_hash, created_at) VALUES (?,?,?,?,?)`,
		k.ID, k.UserID, nullable(k.Name), k.KeyHash, k.CreatedAt)
	return err
}

// ActiveAPIKey looks a key up by hash. Revoked keys are reported as not found.
func (r Repo) ActiveAPIKey(ctx context.Context, hash string) (domain.APIKey, error) {
	return scanAPIKey(r.DB.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash=? AND revoked_at IS NULL`, hash))
}

// TouchAPIKey records that the key just authenticated a request.
func (r Repo) TouchAPIKey(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE api_keys SET last_used_at=? WHERE id=?`, nowUTC(), id)
	return err
}

// ListAPIKeys returns keys newest first, revoked ones included, optionally for one user.
func (r Repo) ListAPIKeys(ctx context.Context, userID string) ([]domain.APIKey, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys
WHERE (?='' OR user_id=?) ORDER BY created_at DESC, id DESC`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	keys := []domain.APIKey{}
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey stamps revoked_at once; the row stays for the audit trail.
func (r Repo) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE api_keys SET revoked_at=? WHERE id=? AND revoked_at IS NULL`, nowUTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("active api key %s: %w", id, ErrNotFound)
	}
	return nil
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
