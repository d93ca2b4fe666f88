package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"civicdesk/internal/domain"
	"civicdesk/internal/engine/auth"
	"civicdesk/internal/events"
	"civicdesk/internal/storage"
)

// ownedCase loads a case for a task force operation. Callers without a task
// force profile, or whose profile is not the assignee, get NotFound.
func (e Engine) ownedCase(ctx context.Context, tx *sql.Tx, actor Actor, id string) (domain.Case, domain.StaffProfile, error) {
	member, err := e.Auth.Profile(ctx, tx, actor.UserID, domain.RoleTaskForce)
	if err != nil {
		return domain.Case{}, member, profileErr(err, "task force profile", actor.UserID)
	}
	c, err := e.loadCase(ctx, tx, id)
	if err != nil {
		return c, member, err
	}
	if c.AssignedTaskForce == nil || *c.AssignedTaskForce != member.ID {
		return domain.Case{}, member, NotFoundError{Entity: "case", ID: id}
	}
	return c, member, nil
}

// startStage moves an owned case from one status to the next.
func (e Engine) startStage(ctx context.Context, actor Actor, id string, from, to domain.Status, note string) (CaseDetail, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CaseDetail{}, err
	}
	defer tx.Rollback()

	c, _, err := e.ownedCase(ctx, tx, actor, id)
	if err != nil {
		return CaseDetail{}, err
	}
	if err := requireStatus(c, from); err != nil {
		return CaseDetail{}, err
	}
	c.Status = to
	if err := e.transition(ctx, tx, &c, from, actor, note, nil); err != nil {
		return CaseDetail{}, err
	}
	if err := tx.Commit(); err != nil {
		return CaseDetail{}, err
	}
	return e.detail(ctx, c.ID)
}

func (e Engine) StartAssessment(ctx context.Context, actor Actor, id string) (CaseDetail, error) {
	return e.startStage(ctx, actor, id, domain.StatusAssignedToTaskForce, domain.StatusAssessmentInProgress, "Assessment started")
}

func (e Engine) StartResolution(ctx context.Context, actor Actor, id string) (CaseDetail, error) {
	return e.startStage(ctx, actor, id, domain.StatusResourcesAllocated, domain.StatusResolutionInProgress, "Resolution work started")
}

type AssessmentInput struct {
	Summary           string
	Findings          string
	IssueConfirmed    bool
	Severity          string
	EstimatedCost     *float64
	EstimatedDuration string
	RequiredResources []string
}

var severities = map[string]bool{"low": true, "medium": true, "high": true, "critical": true}

// SubmitAssessment records the field assessment and hands the case back to
// the admins. A resubmission after review replaces the previous report.
func (e Engine) SubmitAssessment(ctx context.Context, actor Actor, id string, in AssessmentInput) (CaseDetail, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CaseDetail{}, err
	}
	defer tx.Rollback()

	c, member, err := e.ownedCase(ctx, tx, actor, id)
	if err != nil {
		return CaseDetail{}, err
	}
	if !member.CanAssess {
		return CaseDetail{}, auth.ForbiddenError{Reason: "task force member is not permitted to submit assessments"}
	}
	in.Summary = strings.TrimSpace(in.Summary)
	if in.Summary == "" {
		return CaseDetail{}, ValidationError{Field: "summary", Reason: "is required"}
	}
	if in.Severity != "" && !severities[in.Severity] {
		return CaseDetail{}, ValidationError{Field: "severity", Reason: fmt.Sprintf("unknown severity %q", in.Severity)}
	}
	if in.EstimatedCost != nil && *in.EstimatedCost < 0 {
		return CaseDetail{}, ValidationError{Field: "estimated_cost", Reason: "must not be negative"}
	}
	if err := requireStatus(c, domain.StatusAssessmentInProgress); err != nil {
		return CaseDetail{}, err
	}
	now := e.timestamp()
	if err := e.Repo.SaveAssessment(ctx, tx, domain.AssessmentReport{
		ID:                uuid.NewString(),
		CaseID:            c.ID,
		SubmittedBy:       member.ID,
		Summary:           in.Summary,
		Findings:          in.Findings,
		IssueConfirmed:    in.IssueConfirmed,
		Severity:          in.Severity,
		EstimatedCost:     in.EstimatedCost,
		EstimatedDuration: in.EstimatedDuration,
		RequiredResources: in.RequiredResources,
		Status:            domain.ReportSubmitted,
		CreatedAt:         now,
		UpdatedAt:         now,
	}); err != nil {
		return CaseDetail{}, fmt.Errorf("save assessment: %w", err)
	}
	from := c.Status
	c.Status = domain.StatusAssessmentSubmitted
	if err := e.transition(ctx, tx, &c, from, actor, "Assessment submitted", nil); err != nil {
		return CaseDetail{}, err
	}
	e.audit(ctx, tx, events.AssessmentSubmitted, c.ID, actor, events.EventPayload{"severity": in.Severity, "issue_confirmed": in.IssueConfirmed})
	if err := tx.Commit(); err != nil {
		return CaseDetail{}, err
	}
	return e.detail(ctx, c.ID)
}

type ResolutionInput struct {
	Summary          string
	WorkPerformed    string
	ActualCost       *float64
	BeforeImages     []storage.Object
	AfterImages      []storage.Object
	RequiresFollowup bool
	FollowupNotes    string
}

// SubmitResolution records completed work for admin sign-off.
func (e Engine) SubmitResolution(ctx context.Context, actor Actor, id string, in ResolutionInput) (CaseDetail, error) {
	in.Summary = strings.TrimSpace(in.Summary)
	// Files are stored before the write transaction opens so a slow store
	// never holds the database lock. The checks run again inside the tx.
	pre, _, err := e.resolutionTarget(ctx, nil, actor, id, in)
	if err != nil {
		return CaseDetail{}, err
	}
	before := e.uploadAll(ctx, in.BeforeImages, "resolutions", pre.ID+"-before")
	after := e.uploadAll(ctx, in.AfterImages, "resolutions", pre.ID+"-after")
	committed := false
	defer func() {
		if !committed {
			e.discard(ctx, append(before, after...))
		}
	}()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CaseDetail{}, err
	}
	defer tx.Rollback()

	c, member, err := e.resolutionTarget(ctx, tx, actor, id, in)
	if err != nil {
		return CaseDetail{}, err
	}
	now := e.timestamp()
	if err := e.Repo.SaveResolution(ctx, tx, domain.ResolutionReport{
		ID:               uuid.NewString(),
		CaseID:           c.ID,
		SubmittedBy:      member.ID,
		Summary:          in.Summary,
		WorkPerformed:    in.WorkPerformed,
		ActualCost:       in.ActualCost,
		BeforeImages:     before,
		AfterImages:      after,
		RequiresFollowup: in.RequiresFollowup,
		FollowupNotes:    in.FollowupNotes,
		Status:           domain.ReportSubmitted,
		CreatedAt:        now,
		UpdatedAt:        now,
	}); err != nil {
		return CaseDetail{}, fmt.Errorf("save resolution: %w", err)
	}
	from := c.Status
	c.Status = domain.StatusResolutionSubmitted
	if err := e.transition(ctx, tx, &c, from, actor, "Resolution submitted", nil); err != nil {
		return CaseDetail{}, err
	}
	e.audit(ctx, tx, events.ResolutionSubmitted, c.ID, actor, events.EventPayload{"requires_followup": in.RequiresFollowup})
	if err := tx.Commit(); err != nil {
		return CaseDetail{}, err
	}
	committed = true
	return e.detail(ctx, c.ID)
}

// resolutionTarget checks that actor may submit in for the case. tx may be nil.
func (e Engine) resolutionTarget(ctx context.Context, tx *sql.Tx, actor Actor, id string, in ResolutionInput) (domain.Case, domain.StaffProfile, error) {
	c, member, err := e.ownedCase(ctx, tx, actor, id)
	if err != nil {
		return c, member, err
	}
	if !member.CanResolve {
		return c, member, auth.ForbiddenError{Reason: "task force member is not permitted to submit resolutions"}
	}
	if in.Summary == "" {
		return c, member, ValidationError{Field: "summary", Reason: "is required"}
	}
	if in.ActualCost != nil && *in.ActualCost < 0 {
		return c, member, ValidationError{Field: "actual_cost", Reason: "must not be negative"}
	}
	return c, member, requireStatus(c, domain.StatusResolutionInProgress)
}
