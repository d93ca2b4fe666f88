package engine

import "civicdesk/internal/domain"

// Handler is the party currently responsible for moving a case forward.
type Handler struct {
	Role      domain.Role
	ProfileID string
}

// ResolveHandler derives the responsible party from a case's status and
// assignment pointers. Admin work is not tied to a profile.
func ResolveHandler(c domain.Case) Handler {
	switch c.Status {
	case domain.StatusSubmitted, domain.StatusUnderOfficerReview:
		return Handler{Role: domain.RoleOfficer, ProfileID: deref(c.AssignedOfficerID)}
	case domain.StatusForwardedToAdmin, domain.StatusAssessmentSubmitted, domain.StatusResolutionSubmitted:
		return Handler{Role: domain.RoleAdmin}
	case domain.StatusAssignedToTaskForce, domain.StatusAssessmentInProgress,
		domain.StatusResourcesAllocated, domain.StatusResolutionInProgress:
		return Handler{Role: domain.RoleTaskForce, ProfileID: deref(c.AssignedTaskForce)}
	default:
		return Handler{}
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
