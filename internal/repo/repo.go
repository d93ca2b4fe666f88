package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"civicdesk/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// on runs against tx when one is open, otherwise against the pool.
func (r Repo) on(tx *sql.Tx) queryer {
	if tx != nil {
		return tx
	}
	return r.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

const caseColumns = `id,case_code,title,description,location_text,status,priority,channel,submitted_by,reporter_name,reporter_phone,
sector_id,sub_sector_id,community_id,smaller_community_id,suburb_id,assigned_officer_id,assigned_agent_id,assigned_task_force_id,
acknowledged_at,acknowledged_by,resolved_at,resolved_by,resolution_notes,image_urls_json,allocated_budget,allocated_resources_json,
handler_role,handler_id,created_at,updated_at`

func scanCase(row rowScanner) (domain.Case, error) {
	var c domain.Case
	var locationText, submittedBy, reporterName, reporterPhone, resolutionNotes, resourcesJSON, handlerRole, handlerID sql.NullString
	var sectorID, subSectorID, communityID, smallerID, suburbID, officerID, agentID, taskForceID sql.NullString
	var ackAt, ackBy, resolvedAt, resolvedBy sql.NullString
	var imagesJSON string
	var budget sql.NullFloat64
	err := row.Scan(&c.ID, &c.Code, &c.Title, &c.Description, &locationText, &c.Status, &c.Priority, &c.Channel, &submittedBy, &reporterName, &reporterPhone,
		&sectorID, &subSectorID, &communityID, &smallerID, &suburbID, &officerID, &agentID, &taskForceID,
		&ackAt, &ackBy, &resolvedAt, &resolvedBy, &resolutionNotes, &imagesJSON, &budget, &resourcesJSON,
		&handlerRole, &handlerID, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.LocationText = locationText.String
	c.SubmittedBy = submittedBy.String
	c.ReporterName = reporterName.String
	c.ReporterPhone = reporterPhone.String
	c.ResolutionNotes = resolutionNotes.String
	c.HandlerRole = handlerRole.String
	c.HandlerID = handlerID.String
	c.SectorID = ptrFromNull(sectorID)
	c.SubSectorID = ptrFromNull(subSectorID)
	c.CommunityID = ptrFromNull(communityID)
	c.SmallerCommunityID = ptrFromNull(smallerID)
	c.SuburbID = ptrFromNull(suburbID)
	c.AssignedOfficerID = ptrFromNull(officerID)
	c.AssignedAgentID = ptrFromNull(agentID)
	c.AssignedTaskForce = ptrFromNull(taskForceID)
	c.AcknowledgedAt = ptrFromNull(ackAt)
	c.AcknowledgedBy = ptrFromNull(ackBy)
	c.ResolvedAt = ptrFromNull(resolvedAt)
	c.ResolvedBy = ptrFromNull(resolvedBy)
	if budget.Valid {
		b := budget.Float64
		c.AllocatedBudget = &b
	}
	c.ImageURLs = decodeStrings(imagesJSON)
	if resourcesJSON.Valid {
		c.AllocatedResources = decodeStrings(resourcesJSON.String)
	}
	if c.ImageURLs == nil {
		c.ImageURLs = []string{}
	}
	return c, nil
}

func (r Repo) InsertCase(ctx context.Context, tx *sql.Tx, c domain.Case) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO cases(`+caseColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Code, c.Title, c.Description, nullable(c.LocationText), c.Status, c.Priority, c.Channel, nullable(c.SubmittedBy),
		nullable(c.ReporterName), nullable(c.ReporterPhone),
		nullableStringPtr(c.SectorID), nullableStringPtr(c.SubSectorID), nullableStringPtr(c.CommunityID), nullableStringPtr(c.SmallerCommunityID),
		nullableStringPtr(c.SuburbID), nullableStringPtr(c.AssignedOfficerID), nullableStringPtr(c.AssignedAgentID), nullableStringPtr(c.AssignedTaskForce),
		nullableStringPtr(c.AcknowledgedAt), nullableStringPtr(c.AcknowledgedBy), nullableStringPtr(c.ResolvedAt), nullableStringPtr(c.ResolvedBy),
		nullable(c.ResolutionNotes), encodeStrings(c.ImageURLs), nullableFloatPtr(c.AllocatedBudget), nullableStrings(c.AllocatedResources),
		nullable(c.HandlerRole), nullable(c.HandlerID), c.CreatedAt, c.UpdatedAt)
	return err
}

// UpdateCase writes every mutable column of c, but only while the stored
// status still equals expected. It returns false when another writer moved
// the case first.
func (r Repo) UpdateCase(ctx context.Context, tx *sql.Tx, c domain.Case, expected domain.Status) (bool, error) {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE cases SET status=?, priority=?, assigned_officer_id=?, assigned_agent_id=?, assigned_task_force_id=?,
acknowledged_at=?, acknowledged_by=?, resolved_at=?, resolved_by=?, resolution_notes=?, image_urls_json=?, allocated_budget=?, allocated_resources_json=?,
handler_role=?, handler_id=?, updated_at=? WHERE id=? AND status=?`,
		c.Status, c.Priority, nullableStringPtr(c.AssignedOfficerID), nullableStringPtr(c.AssignedAgentID), nullableStringPtr(c.AssignedTaskForce),
		nullableStringPtr(c.AcknowledgedAt), nullableStringPtr(c.AcknowledgedBy), nullableStringPtr(c.ResolvedAt), nullableStringPtr(c.ResolvedBy),
		nullable(c.ResolutionNotes), encodeStrings(c.ImageURLs), nullableFloatPtr(c.AllocatedBudget), nullableStrings(c.AllocatedResources),
		nullable(c.HandlerRole), nullable(c.HandlerID), c.UpdatedAt, c.ID, expected)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r Repo) GetCase(ctx context.Context, id string) (domain.Case, error) {
	return r.GetCaseTx(ctx, nil, id)
}

func (r Repo) GetCaseTx(ctx context.Context, tx *sql.Tx, id string) (domain.Case, error) {
	return scanCase(r.on(tx).QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id=? OR case_code=?`, id, id))
}

// CaseFilters is the query shape produced from a role's default view.
type CaseFilters struct {
	Statuses          []domain.Status
	ExcludeStatuses   []domain.Status
	Priority          string
	AssignedTaskForce string
	SubmittedBy       string
	Limit             int
	CursorCreatedAt   string
	CursorID          string
}

func (r Repo) ListCases(ctx context.Context, f CaseFilters) ([]domain.Case, error) {
	var clauses []string
	var args []any
	if len(f.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	if len(f.ExcludeStatuses) > 0 {
		clauses = append(clauses, "status NOT IN ("+placeholders(len(f.ExcludeStatuses))+")")
		for _, s := range f.ExcludeStatuses {
			args = append(args, s)
		}
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.AssignedTaskForce != "" {
		clauses = append(clauses, "assigned_task_force_id=?")
		args = append(args, f.AssignedTaskForce)
	}
	if f.SubmittedBy != "" {
		clauses = append(clauses, "submitted_by=?")
		args = append(args, f.SubmittedBy)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + caseColumns + ` FROM cases ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Case{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// NextCaseNumber increments and returns the named counter inside tx.
func (r Repo) NextCaseNumber(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	if _, err := tx.ExecContext(ctx, `INSERT INTO case_counters(name, value) VALUES (?, 1)
ON CONFLICT(name) DO UPDATE SET value = value + 1`, name); err != nil {
		return 0, fmt.Errorf("bump counter %s: %w", name, err)
	}
	var v int64
	if err := tx.QueryRowContext(ctx, `SELECT value FROM case_counters WHERE name=?`, name).Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

// CountCasesByStatus returns a status -> count map for every status present.
func (r Repo) CountCasesByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM cases GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableStrings(items []string) any {
	if len(items) == 0 {
		return nil
	}
	return encodeStrings(items)
}

func ptrFromNull(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func encodeStrings(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return string(b)
}

func decodeStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
