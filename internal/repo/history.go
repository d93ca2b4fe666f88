package repo

import (
	"context"
	"database/sql"

	"civicdesk/internal/domain"
)

// AppendHistory inserts one ledger row. The table rejects updates and deletes.
func (r Repo) AppendHistory(ctx context.Context, tx *sql.Tx, h domain.StatusHistoryEntry) (int64, error) {
	var old any
	if h.OldStatus != nil {
		old = *h.OldStatus
	}
	res, err := r.on(tx).ExecContext(ctx, `INSERT INTO case_status_history(case_id, actor_id, old_status, new_status, note, created_at) VALUES (?,?,?,?,?,?)`,
		h.CaseID, h.ActorID, old, h.NewStatus, nullable(h.Note), h.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) ListHistory(ctx context.Context, caseID string) ([]domain.StatusHistoryEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, case_id, actor_id, old_status, new_status, COALESCE(note,''), created_at
FROM case_status_history WHERE case_id=? ORDER BY id ASC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.StatusHistoryEntry{}
	for rows.Next() {
		var h domain.StatusHistoryEntry
		var old sql.NullString
		if err := rows.Scan(&h.ID, &h.CaseID, &h.ActorID, &old, &h.NewStatus, &h.Note, &h.CreatedAt); err != nil {
			return nil, err
		}
		if old.Valid {
			s := domain.Status(old.String)
			h.OldStatus = &s
		}
		res = append(res, h)
	}
	return res, rows.Err()
}
