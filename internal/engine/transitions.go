package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"civicdesk/internal/domain"
	"civicdesk/internal/engine/auth"
	"civicdesk/internal/events"
	"civicdesk/internal/repo"
)

type TransitionOptions struct {
	Status domain.Status
	Note   string
	// ResolutionNotes are stored when the case is resolved for the first time.
	ResolutionNotes string
}

// TransitionStatus is the generic role-gated status change used by officers
// and admins.
func (e Engine) TransitionStatus(ctx context.Context, actor Actor, id string, opts TransitionOptions) (CaseDetail, error) {
	if opts.Status == "" {
		return CaseDetail{}, ValidationError{Field: "status", Reason: "is required"}
	}
	if !opts.Status.IsValid() {
		return CaseDetail{}, ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", opts.Status)}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CaseDetail{}, err
	}
	defer tx.Rollback()

	c, err := e.loadCase(ctx, tx, id)
	if err != nil {
		return CaseDetail{}, err
	}
	from := c.Status
	if err := auth.CheckTransition(actor.Role, from, opts.Status).Require(); err != nil {
		return CaseDetail{}, err
	}
	now := e.timestamp()
	if opts.Status == domain.StatusUnderOfficerReview && c.AcknowledgedAt == nil {
		officer, err := e.Auth.Profile(ctx, tx, actor.UserID, domain.RoleOfficer)
		if err != nil {
			return CaseDetail{}, profileErr(err, "officer profile", actor.UserID)
		}
		c.AcknowledgedAt = stringPtr(now)
		c.AcknowledgedBy = stringPtr(officer.ID)
		if c.AssignedOfficerID == nil {
			c.AssignedOfficerID = stringPtr(officer.ID)
		}
	}
	if opts.Status == domain.StatusResolved {
		notes := strings.TrimSpace(opts.ResolutionNotes)
		if notes == "" {
			notes = strings.TrimSpace(opts.Note)
		}
		markResolved(&c, now, actorID(actor), notes)
	}
	c.Status = opts.Status
	if err := e.transition(ctx, tx, &c, from, actor, strings.TrimSpace(opts.Note), nil); err != nil {
		return CaseDetail{}, err
	}
	if err := tx.Commit(); err != nil {
		return CaseDetail{}, err
	}
	return e.detail(ctx, c.ID)
}

// markResolved stamps the resolution fields unless they are already set.
func markResolved(c *domain.Case, now, by, notes string) {
	if c.ResolvedAt != nil {
		return
	}
	c.ResolvedAt = stringPtr(now)
	c.ResolvedBy = stringPtr(by)
	c.ResolutionNotes = notes
}

// ForwardToAdmin hands a case from the officer inbox to the admins.
func (e Engine) ForwardToAdmin(ctx context.Context, actor Actor, id, note string) (CaseDetail, error) {
	if actor.Role != domain.RoleOfficer && !actor.Role.IsTopLevel() {
		return CaseDetail{}, auth.ForbiddenError{Reason: "only officers can forward cases to admin"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CaseDetail{}, err
	}
	defer tx.Rollback()

	c, err := e.loadCase(ctx, tx, id)
	if err != nil {
		return CaseDetail{}, err
	}
	if err := requireStatus(c, domain.StatusSubmitted, domain.StatusUnderOfficerReview); err != nil {
		return CaseDetail{}, err
	}
	from := c.Status
	if err := auth.CheckTransition(actor.Role, from, domain.StatusForwardedToAdmin).Require(); err != nil {
		return CaseDetail{}, err
	}
	note = strings.TrimSpace(note)
	if note == "" {
		note = "Forwarded to admin"
	}
	c.Status = domain.StatusForwardedToAdmin
	if err := e.transition(ctx, tx, &c, from, actor, note, nil); err != nil {
		return CaseDetail{}, err
	}
	if err := tx.Commit(); err != nil {
		return CaseDetail{}, err
	}
	return e.detail(ctx, c.ID)
}

type AssignStaffOptions struct {
	OfficerID string
	AgentID   string
}

// AssignStaff points a case at an officer and/or agent profile without
// changing its status.
func (e Engine) AssignStaff(ctx context.Context, actor Actor, id string, opts AssignStaffOptions) (CaseDetail, error) {
	if err := requireTopLevel(actor, "assign staff"); err != nil {
		return CaseDetail{}, err
	}
	opts.OfficerID = strings.TrimSpace(opts.OfficerID)
	opts.AgentID = strings.TrimSpace(opts.AgentID)
	if opts.OfficerID == "" && opts.AgentID == "" {
		return CaseDetail{}, ValidationError{Field: "officer_id", Reason: "officer_id or agent_id is required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CaseDetail{}, err
	}
	defer tx.Rollback()

	c, err := e.loadCase(ctx, tx, id)
	if err != nil {
		return CaseDetail{}, err
	}
	payload := events.EventPayload{}
	if opts.OfficerID != "" {
		if _, err := e.staffWithRole(ctx, tx, opts.OfficerID, domain.RoleOfficer); err != nil {
			return CaseDetail{}, err
		}
		c.AssignedOfficerID = stringPtr(opts.OfficerID)
		payload["officer_id"] = opts.OfficerID
	}
	if opts.AgentID != "" {
		if _, err := e.staffWithRole(ctx, tx, opts.AgentID, domain.RoleAgent); err != nil {
			return CaseDetail{}, err
		}
		c.AssignedAgentID = stringPtr(opts.AgentID)
		payload["agent_id"] = opts.AgentID
	}
	if err := e.save(ctx, tx, &c, c.Status); err != nil {
		return CaseDetail{}, err
	}
	e.audit(ctx, tx, events.CaseAssigned, c.ID, actor, payload)
	if err := tx.Commit(); err != nil {
		return CaseDetail{}, err
	}
	return e.detail(ctx, c.ID)
}

// AssignToTaskForce routes a forwarded case to a task force member, or
// moves an already assigned case to another member.
func (e Engine) AssignToTaskForce(ctx context.Context, actor Actor, id, taskForceID, note string) (CaseDetail, error) {
	if err := requireTopLevel(actor, "assign cases to a task force"); err != nil {
		return CaseDetail{}, err
	}
	taskForceID = strings.TrimSpace(taskForceID)
	if taskForceID == "" {
		return CaseDetail{}, ValidationError{Field: "task_force_id", Reason: "is required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CaseDetail{}, err
	}
	defer tx.Rollback()

	c, err := e.loadCase(ctx, tx, id)
	if err != nil {
		return CaseDetail{}, err
	}
	member, err := e.staffWithRole(ctx, tx, taskForceID, domain.RoleTaskForce)
	if err != nil {
		return CaseDetail{}, err
	}
	if err := requireStatus(c, domain.StatusForwardedToAdmin, domain.StatusAssignedToTaskForce); err != nil {
		return CaseDetail{}, err
	}
	from := c.Status
	note = strings.TrimSpace(note)
	if note == "" {
		note = "Assigned to task force member " + member.Name
	}
	c.AssignedTaskForce = stringPtr(member.ID)
	c.Status = domain.StatusAssignedToTaskForce
	if err := e.transition(ctx, tx, &c, from, actor, note, events.EventPayload{"task_force_id": member.ID}); err != nil {
		return CaseDetail{}, err
	}
	if err := tx.Commit(); err != nil {
		return CaseDetail{}, err
	}
	return e.detail(ctx, c.ID)
}

// staffWithRole loads a profile by id and requires it to carry role.
func (e Engine) staffWithRole(ctx context.Context, tx *sql.Tx, profileID string, role domain.Role) (domain.StaffProfile, error) {
	p, err := e.Repo.GetStaff(ctx, tx, profileID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && p.Role != role) {
		return domain.StaffProfile{}, NotFoundError{Entity: string(role) + " profile", ID: profileID}
	}
	return p, err
}
