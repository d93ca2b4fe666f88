package auth

import "civicdesk/internal/domain"

// Decision is the outcome of a transition check.
type Decision struct {
	Allowed bool
	Reason  string
}

const officerDenyReason = "Officers can only review, reject, or forward issues to admin."

var officerTargets = map[domain.Status]bool{
	domain.StatusUnderOfficerReview: true,
	domain.StatusForwardedToAdmin:   true,
	domain.StatusRejected:           true,
}

// CheckTransition decides whether role may move a case from one status to
// another through the generic transition operation. Roles without a rule
// here use the dedicated task force and review operations instead.
func CheckTransition(role domain.Role, from, to domain.Status) Decision {
	if !to.IsValid() {
		return Decision{Reason: "invalid status " + string(to)}
	}
	switch {
	case role == domain.RoleOfficer:
		if officerTargets[to] {
			return Decision{Allowed: true}
		}
		return Decision{Reason: officerDenyReason}
	case role.IsTopLevel():
		return Decision{Allowed: true}
	default:
		return Decision{Reason: "role " + string(role) + " cannot change case status directly"}
	}
}

// Require converts a denied Decision into a ForbiddenError.
func (d Decision) Require() error {
	if d.Allowed {
		return nil
	}
	return ForbiddenError{Reason: d.Reason}
}
