package repo

import (
	"context"
	"database/sql"
	"errors"

	"civicdesk/internal/domain"
)

const staffColumns = `id, user_id, role, name, COALESCE(phone,''), can_assess, can_resolve, created_at`

func scanStaff(row rowScanner) (domain.StaffProfile, error) {
	var p domain.StaffProfile
	var assess, resolve int
	err := row.Scan(&p.ID, &p.UserID, &p.Role, &p.Name, &p.Phone, &assess, &resolve, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.CanAssess = assess != 0
	p.CanResolve = resolve != 0
	return p, nil
}

func (r Repo) InsertStaff(ctx context.Context, tx *sql.Tx, p domain.StaffProfile) error {
	if p.ID == "" || p.UserID == "" {
		return errors.New("id and user_id required")
	}
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO staff_profiles(id, user_id, role, name, phone, can_assess, can_resolve, created_at) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.UserID, p.Role, p.Name, nullable(p.Phone), boolInt(p.CanAssess), boolInt(p.CanResolve), p.CreatedAt)
	return err
}

func (r Repo) GetStaff(ctx context.Context, tx *sql.Tx, id string) (domain.StaffProfile, error) {
	return scanStaff(r.on(tx).QueryRowContext(ctx, `SELECT `+staffColumns+` FROM staff_profiles WHERE id=?`, id))
}

// StaffByUser returns the profile a user holds for role.
func (r Repo) StaffByUser(ctx context.Context, tx *sql.Tx, userID string, role domain.Role) (domain.StaffProfile, error) {
	return scanStaff(r.on(tx).QueryRowContext(ctx, `SELECT `+staffColumns+` FROM staff_profiles WHERE user_id=? AND role=?`, userID, role))
}

// StaffRoles returns every profile role held by a user.
func (r Repo) StaffRoles(ctx context.Context, userID string) ([]domain.Role, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT role FROM staff_profiles WHERE user_id=?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []domain.Role
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r Repo) ListStaff(ctx context.Context, role domain.Role) ([]domain.StaffProfile, error) {
	query := `SELECT ` + staffColumns + ` FROM staff_profiles`
	var args []any
	if role != "" {
		query += ` WHERE role=?`
		args = append(args, role)
	}
	query += ` ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.StaffProfile{}
	for rows.Next() {
		p, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
