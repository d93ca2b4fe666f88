package auth

import (
	"errors"
	"testing"

	"civicdesk/internal/domain"
)

func TestCheckTransitionOfficer(t *testing.T) {
	for _, from := range domain.Statuses {
		for _, to := range domain.Statuses {
			d := CheckTransition(domain.RoleOfficer, from, to)
			want := to == domain.StatusUnderOfficerReview || to == domain.StatusForwardedToAdmin || to == domain.StatusRejected
			if d.Allowed != want {
				t.Fatalf("officer %s -> %s: allowed=%v want %v", from, to, d.Allowed, want)
			}
			if !want && d.Reason != officerDenyReason {
				t.Fatalf("unexpected reason %q", d.Reason)
			}
		}
	}
}

func TestCheckTransitionOfficerCannotAssignTaskForce(t *testing.T) {
	err := CheckTransition(domain.RoleOfficer, domain.StatusForwardedToAdmin, domain.StatusAssignedToTaskForce).Require()
	var fe ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
}

func TestCheckTransitionTopLevelAllowsAnything(t *testing.T) {
	for _, role := range []domain.Role{domain.RoleAdmin, domain.RoleSuperAdmin} {
		for _, from := range domain.Statuses {
			for _, to := range domain.Statuses {
				if d := CheckTransition(role, from, to); !d.Allowed {
					t.Fatalf("%s %s -> %s denied: %s", role, from, to, d.Reason)
				}
			}
		}
	}
}

func TestCheckTransitionOtherRolesDenied(t *testing.T) {
	cases := []struct {
		role domain.Role
		to   domain.Status
	}{
		{domain.RoleTaskForce, domain.StatusAssessmentInProgress},
		{domain.RoleAgent, domain.StatusUnderOfficerReview},
		{domain.RolePublic, domain.StatusClosed},
		{domain.RoleWebAdmin, domain.StatusResolved},
	}
	for _, tc := range cases {
		if d := CheckTransition(tc.role, domain.StatusSubmitted, tc.to); d.Allowed {
			t.Fatalf("%s should not transition to %s", tc.role, tc.to)
		}
	}
}

func TestCheckTransitionInvalidTarget(t *testing.T) {
	d := CheckTransition(domain.RoleAdmin, domain.StatusSubmitted, domain.Status("in_progress"))
	if d.Allowed {
		t.Fatalf("invalid status must be denied")
	}
}
