package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"civicdesk/internal/domain"
	"civicdesk/internal/events"
	"civicdesk/internal/repo"
)

func reviewNote(kind string, action domain.ReviewAction, notes string) string {
	var verb string
	switch action {
	case domain.ReviewApprove:
		verb = "approved"
	case domain.ReviewReject:
		verb = "rejected"
	default:
		verb = "revision requested"
	}
	note := kind + " " + verb
	if notes != "" {
		note += ": " + notes
	}
	return note
}

func validateAction(action domain.ReviewAction) error {
	if !action.IsValid() {
		return ValidationError{Field: "action", Reason: fmt.Sprintf("must be approve, reject or revision, got %q", action)}
	}
	return nil
}

// ReviewAssessment applies an admin decision to the submitted assessment.
// Approval leaves the case waiting for resource allocation; rejection or a
// revision request sends it back to the task force.
func (e Engine) ReviewAssessment(ctx context.Context, actor Actor, id string, action domain.ReviewAction, notes string) (CaseDetail, error) {
	if err := requireTopLevel(actor, "review assessments"); err != nil {
		return CaseDetail{}, err
	}
	if err := validateAction(action); err != nil {
		return CaseDetail{}, err
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
	if _, err := e.Repo.GetAssessment(ctx, tx, c.ID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CaseDetail{}, NotFoundError{Entity: "assessment report", ID: c.Code}
		}
		return CaseDetail{}, err
	}
	if err := requireStatus(c, domain.StatusAssessmentSubmitted); err != nil {
		return CaseDetail{}, err
	}
	notes = strings.TrimSpace(notes)
	if err := e.Repo.ReviewAssessment(ctx, tx, c.ID, action.ReportStatus(), notes, actorID(actor), e.timestamp()); err != nil {
		return CaseDetail{}, fmt.Errorf("review assessment: %w", err)
	}
	if action != domain.ReviewApprove {
		from := c.Status
		c.Status = domain.StatusAssessmentInProgress
		if err := e.transition(ctx, tx, &c, from, actor, reviewNote("Assessment", action, notes), nil); err != nil {
			return CaseDetail{}, err
		}
	}
	e.audit(ctx, tx, events.AssessmentReviewed, c.ID, actor, events.EventPayload{"action": action})
	if err := tx.Commit(); err != nil {
		return CaseDetail{}, err
	}
	return e.detail(ctx, c.ID)
}

// ReviewResolution applies an admin decision to the submitted resolution.
// Approval resolves the case; rejection or a revision request returns it to
// resolution_in_progress, mirroring assessment review.
func (e Engine) ReviewResolution(ctx context.Context, actor Actor, id string, action domain.ReviewAction, notes string) (CaseDetail, error) {
	if err := requireTopLevel(actor, "review resolutions"); err != nil {
		return CaseDetail{}, err
	}
	if err := validateAction(action); err != nil {
		return CaseDetail{}, err
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
	report, err := e.Repo.GetResolution(ctx, tx, c.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CaseDetail{}, NotFoundError{Entity: "resolution report", ID: c.Code}
		}
		return CaseDetail{}, err
	}
	if err := requireStatus(c, domain.StatusResolutionSubmitted); err != nil {
		return CaseDetail{}, err
	}
	notes = strings.TrimSpace(notes)
	now := e.timestamp()
	if err := e.Repo.ReviewResolution(ctx, tx, c.ID, action.ReportStatus(), notes, actorID(actor), now); err != nil {
		return CaseDetail{}, fmt.Errorf("review resolution: %w", err)
	}
	from := c.Status
	if action == domain.ReviewApprove {
		markResolved(&c, now, actorID(actor), report.Summary)
		c.Status = domain.StatusResolved
	} else {
		c.Status = domain.StatusResolutionInProgress
	}
	if err := e.transition(ctx, tx, &c, from, actor, reviewNote("Resolution", action, notes), nil); err != nil {
		return CaseDetail{}, err
	}
	e.audit(ctx, tx, events.ResolutionReviewed, c.ID, actor, events.EventPayload{"action": action})
	if err := tx.Commit(); err != nil {
		return CaseDetail{}, err
	}
	return e.detail(ctx, c.ID)
}

// AllocateResources commits a budget to an assessed case.
func (e Engine) AllocateResources(ctx context.Context, actor Actor, id string, budget float64, resources []string, note string) (CaseDetail, error) {
	if err := requireTopLevel(actor, "allocate resources"); err != nil {
		return CaseDetail{}, err
	}
	if budget <= 0 {
		return CaseDetail{}, ValidationError{Field: "budget", Reason: "must be greater than zero"}
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
	if err := requireStatus(c, domain.StatusAssessmentSubmitted); err != nil {
		return CaseDetail{}, err
	}
	if _, err := e.Repo.GetAssessment(ctx, tx, c.ID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CaseDetail{}, PreconditionError{Status: c.Status, Reason: "case has no assessment report"}
		}
		return CaseDetail{}, err
	}
	msg := fmt.Sprintf("Resources allocated. Budget: %.2f", budget)
	if note = strings.TrimSpace(note); note != "" {
		msg += ". " + note
	}
	from := c.Status
	c.AllocatedBudget = &budget
	c.AllocatedResources = resources
	c.Status = domain.StatusResourcesAllocated
	if err := e.transition(ctx, tx, &c, from, actor, msg, events.EventPayload{"budget": budget}); err != nil {
		return CaseDetail{}, err
	}
	e.audit(ctx, tx, events.ResourcesAllocated, c.ID, actor, events.EventPayload{"budget": budget, "resources": resources})
	if err := tx.Commit(); err != nil {
		return CaseDetail{}, err
	}
	return e.detail(ctx, c.ID)
}
