package auth

import (
	"civicdesk/internal/domain"
	"civicdesk/internal/repo"
)

// Scope narrows a view to the cases a caller is tied to.
type Scope int

const (
	ScopeAll Scope = iota
	ScopeAssignedTaskForce
	ScopeSubmitter
)

// View is the default slice of cases a role sees.
type View struct {
	Include []domain.Status
	Exclude []domain.Status
	// Hidden statuses stay invisible even when requested explicitly.
	Hidden []domain.Status
	Scope  Scope
}

// Subject identifies the caller for scoped views.
type Subject struct {
	UserID      string
	TaskForceID string
}

var taskForceStatuses = []domain.Status{
	domain.StatusAssignedToTaskForce,
	domain.StatusAssessmentInProgress,
	domain.StatusAssessmentSubmitted,
	domain.StatusResourcesAllocated,
	domain.StatusResolutionInProgress,
	domain.StatusResolutionSubmitted,
	domain.StatusResolved,
	domain.StatusClosed,
}

var officerInbox = []domain.Status{domain.StatusSubmitted, domain.StatusUnderOfficerReview}

var adminView = View{Exclude: officerInbox, Hidden: officerInbox, Scope: ScopeAll}

// Views maps each role to its default listing.
var Views = map[domain.Role]View{
	domain.RoleAdmin:      adminView,
	domain.RoleSuperAdmin: adminView,
	domain.RoleOfficer: {
		Include: []domain.Status{domain.StatusSubmitted, domain.StatusUnderOfficerReview, domain.StatusForwardedToAdmin},
		Scope:   ScopeAll,
	},
	domain.RoleTaskForce: {Include: taskForceStatuses, Scope: ScopeAssignedTaskForce},
}

var submitterView = View{Scope: ScopeSubmitter}

// ViewFor returns the view of role; unknown roles only see their own submissions.
func ViewFor(role domain.Role) View {
	if v, ok := Views[role]; ok {
		return v
	}
	return submitterView
}

// Filters builds the list query for this view. An explicit status list
// replaces the default slice but never the scope. ok is false when the
// result is known to be empty.
func (v View) Filters(explicit []domain.Status, subject Subject) (f repo.CaseFilters, ok bool) {
	if len(explicit) > 0 {
		for _, s := range explicit {
			if !containsStatus(v.Hidden, s) {
				f.Statuses = append(f.Statuses, s)
			}
		}
		if len(f.Statuses) == 0 {
			return repo.CaseFilters{}, false
		}
	} else {
		f.Statuses = append(f.Statuses, v.Include...)
		f.ExcludeStatuses = append(f.ExcludeStatuses, v.Exclude...)
	}
	switch v.Scope {
	case ScopeAssignedTaskForce:
		if subject.TaskForceID == "" {
			return repo.CaseFilters{}, false
		}
		f.AssignedTaskForce = subject.TaskForceID
	case ScopeSubmitter:
		if subject.UserID == "" {
			return repo.CaseFilters{}, false
		}
		f.SubmittedBy = subject.UserID
	}
	return f, true
}

// Visible reports whether a single case falls inside the view's scope and
// is not in one of its hidden statuses.
func (v View) Visible(c domain.Case, subject Subject) bool {
	if containsStatus(v.Hidden, c.Status) {
		return false
	}
	switch v.Scope {
	case ScopeAssignedTaskForce:
		return subject.TaskForceID != "" && c.AssignedTaskForce != nil && *c.AssignedTaskForce == subject.TaskForceID
	case ScopeSubmitter:
		return subject.UserID != "" && c.SubmittedBy == subject.UserID
	default:
		return true
	}
}

func containsStatus(list []domain.Status, s domain.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
