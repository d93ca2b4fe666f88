package repo

import (
	"context"
	"database/sql"

	"civicdesk/internal/domain"
)

// SaveAssessment inserts the case's assessment or, when one exists, replaces
// its content with a resubmission and bumps the revision.
func (r Repo) SaveAssessment(ctx context.Context, tx *sql.Tx, a domain.AssessmentReport) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO assessment_reports(id, case_id, submitted_by, summary, findings, issue_confirmed, severity,
estimated_cost, estimated_duration, required_resources_json, status, revision, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,1,?,?)
ON CONFLICT(case_id) DO UPDATE SET submitted_by=excluded.submitted_by, summary=excluded.summary, findings=excluded.findings,
issue_confirmed=excluded.issue_confirmed, severity=excluded.severity, estimated_cost=excluded.estimated_cost,
estimated_duration=excluded.estimated_duration, required_resources_json=excluded.required_resources_json, status=excluded.status,
revision=assessment_reports.revision+1, review_notes=NULL, reviewed_by=NULL, reviewed_at=NULL, updated_at=excluded.updated_at`,
		a.ID, a.CaseID, a.SubmittedBy, a.Summary, nullable(a.Findings), boolInt(a.IssueConfirmed), nullable(a.Severity),
		nullableFloatPtr(a.EstimatedCost), nullable(a.EstimatedDuration), nullableStrings(a.RequiredResources), a.Status, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) GetAssessment(ctx context.Context, tx *sql.Tx, caseID string) (domain.AssessmentReport, error) {
	var a domain.AssessmentReport
	var findings, severity, duration, resources, reviewNotes, reviewedBy, reviewedAt sql.NullString
	var cost sql.NullFloat64
	var confirmed int
	err := r.on(tx).QueryRowContext(ctx, `SELECT id, case_id, submitted_by, summary, findings, issue_confirmed, severity, estimated_cost,
estimated_duration, required_resources_json, status, revision, review_notes, reviewed_by, reviewed_at, created_at, updated_at
FROM assessment_reports WHERE case_id=?`, caseID).
		Scan(&a.ID, &a.CaseID, &a.SubmittedBy, &a.Summary, &findings, &confirmed, &severity, &cost, &duration, &resources,
			&a.Status, &a.Revision, &reviewNotes, &reviewedBy, &reviewedAt, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Findings = findings.String
	a.IssueConfirmed = confirmed != 0
	a.Severity = severity.String
	a.EstimatedDuration = duration.String
	a.RequiredResources = decodeStrings(resources.String)
	a.ReviewNotes = reviewNotes.String
	a.ReviewedBy = ptrFromNull(reviewedBy)
	a.ReviewedAt = ptrFromNull(reviewedAt)
	if cost.Valid {
		v := cost.Float64
		a.EstimatedCost = &v
	}
	return a, nil
}

func (r Repo) ReviewAssessment(ctx context.Context, tx *sql.Tx, caseID string, status domain.ReportStatus, notes, reviewer, now string) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE assessment_reports SET status=?, review_notes=?, reviewed_by=?, reviewed_at=?, updated_at=? WHERE case_id=?`,
		status, nullable(notes), reviewer, now, now, caseID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveResolution mirrors SaveAssessment for resolution reports.
func (r Repo) SaveResolution(ctx context.Context, tx *sql.Tx, s domain.ResolutionReport) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO resolution_reports(id, case_id, submitted_by, summary, work_performed, actual_cost,
before_images_json, after_images_json, requires_followup, followup_notes, status, revision, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,1,?,?)
ON CONFLICT(case_id) DO UPDATE SET submitted_by=excluded.submitted_by, summary=excluded.summary, work_performed=excluded.work_performed,
actual_cost=excluded.actual_cost, before_images_json=excluded.before_images_json, after_images_json=excluded.after_images_json,
requires_followup=excluded.requires_followup, followup_notes=excluded.followup_notes, status=excluded.status,
revision=resolution_reports.revision+1, review_notes=NULL, reviewed_by=NULL, reviewed_at=NULL, updated_at=excluded.updated_at`,
		s.ID, s.CaseID, s.SubmittedBy, s.Summary, nullable(s.WorkPerformed), nullableFloatPtr(s.ActualCost),
		nullableStrings(s.BeforeImages), nullableStrings(s.AfterImages), boolInt(s.RequiresFollowup), nullable(s.FollowupNotes),
		s.Status, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) GetResolution(ctx context.Context, tx *sql.Tx, caseID string) (domain.ResolutionReport, error) {
	var s domain.ResolutionReport
	var work, before, after, followup, reviewNotes, reviewedBy, reviewedAt sql.NullString
	var cost sql.NullFloat64
	var requiresFollowup int
	err := r.on(tx).QueryRowContext(ctx, `SELECT id, case_id, submitted_by, summary, work_performed, actual_cost, before_images_json,
after_images_json, requires_followup, followup_notes, status, revision, review_notes, reviewed_by, reviewed_at, created_at, updated_at
FROM resolution_reports WHERE case_id=?`, caseID).
		Scan(&s.ID, &s.CaseID, &s.SubmittedBy, &s.Summary, &work, &cost, &before, &after, &requiresFollowup, &followup,
			&s.Status, &s.Revision, &reviewNotes, &reviewedBy, &reviewedAt, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.WorkPerformed = work.String
	s.BeforeImages = decodeStrings(before.String)
	s.AfterImages = decodeStrings(after.String)
	s.RequiresFollowup = requiresFollowup != 0
	s.FollowupNotes = followup.String
	s.ReviewNotes = reviewNotes.String
	s.ReviewedBy = ptrFromNull(reviewedBy)
	s.ReviewedAt = ptrFromNull(reviewedAt)
	if cost.Valid {
		v := cost.Float64
		s.ActualCost = &v
	}
	return s, nil
}

func (r Repo) ReviewResolution(ctx context.Context, tx *sql.Tx, caseID string, status domain.ReportStatus, notes, reviewer, now string) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE resolution_reports SET status=?, review_notes=?, reviewed_by=?, reviewed_at=?, updated_at=? WHERE case_id=?`,
		status, nullable(notes), reviewer, now, now, caseID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
