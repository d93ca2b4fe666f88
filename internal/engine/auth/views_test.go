package auth

import (
	"reflect"
	"testing"

	"civicdesk/internal/domain"
)

func TestAdminViewHidesOfficerInbox(t *testing.T) {
	v := ViewFor(domain.RoleAdmin)
	f, ok := v.Filters(nil, Subject{UserID: "u1"})
	if !ok {
		t.Fatalf("admin default view should not be empty")
	}
	if len(f.Statuses) != 0 || !reflect.DeepEqual(f.ExcludeStatuses, officerInbox) {
		t.Fatalf("unexpected admin filters %+v", f)
	}
	if _, ok := v.Filters([]domain.Status{domain.StatusSubmitted}, Subject{UserID: "u1"}); ok {
		t.Fatalf("explicit submitted filter must yield empty result for admin")
	}
	f, ok = v.Filters([]domain.Status{domain.StatusUnderOfficerReview, domain.StatusResolved}, Subject{UserID: "u1"})
	if !ok || !reflect.DeepEqual(f.Statuses, []domain.Status{domain.StatusResolved}) || len(f.ExcludeStatuses) != 0 {
		t.Fatalf("unexpected explicit admin filters %+v ok=%v", f, ok)
	}
}

func TestOfficerView(t *testing.T) {
	f, ok := ViewFor(domain.RoleOfficer).Filters(nil, Subject{UserID: "u2"})
	want := []domain.Status{domain.StatusSubmitted, domain.StatusUnderOfficerReview, domain.StatusForwardedToAdmin}
	if !ok || !reflect.DeepEqual(f.Statuses, want) || f.SubmittedBy != "" {
		t.Fatalf("unexpected officer filters %+v", f)
	}
}

func TestTaskForceViewScoped(t *testing.T) {
	v := ViewFor(domain.RoleTaskForce)
	if _, ok := v.Filters(nil, Subject{UserID: "u3"}); ok {
		t.Fatalf("task force without profile must see nothing")
	}
	f, ok := v.Filters(nil, Subject{UserID: "u3", TaskForceID: "tf-1"})
	if !ok || f.AssignedTaskForce != "tf-1" || len(f.Statuses) != 8 {
		t.Fatalf("unexpected task force filters %+v", f)
	}
	f, ok = v.Filters([]domain.Status{domain.StatusRejected}, Subject{UserID: "u3", TaskForceID: "tf-1"})
	if !ok || f.AssignedTaskForce != "tf-1" {
		t.Fatalf("explicit filter must keep scope: %+v", f)
	}
}

func TestSubmitterViewForOtherRoles(t *testing.T) {
	for _, role := range []domain.Role{domain.RolePublic, domain.RoleAgent, domain.RoleWebAdmin, domain.Role("mystery")} {
		f, ok := ViewFor(role).Filters(nil, Subject{UserID: "u4"})
		if !ok || f.SubmittedBy != "u4" || len(f.Statuses) != 0 {
			t.Fatalf("%s: unexpected filters %+v", role, f)
		}
	}
}

func TestVisible(t *testing.T) {
	tf := "tf-1"
	c := domain.Case{Status: domain.StatusAssignedToTaskForce, SubmittedBy: "u4", AssignedTaskForce: &tf}
	if !ViewFor(domain.RoleAdmin).Visible(c, Subject{}) {
		t.Fatalf("admin sees cases outside the officer inbox")
	}
	for _, s := range []domain.Status{domain.StatusSubmitted, domain.StatusUnderOfficerReview} {
		inbox := domain.Case{Status: s, SubmittedBy: "u4"}
		if ViewFor(domain.RoleAdmin).Visible(inbox, Subject{}) || ViewFor(domain.RoleSuperAdmin).Visible(inbox, Subject{}) {
			t.Fatalf("admins must not see %s cases", s)
		}
		if !ViewFor(domain.RoleOfficer).Visible(inbox, Subject{}) {
			t.Fatalf("officer should see %s cases", s)
		}
	}
	if !ViewFor(domain.RoleTaskForce).Visible(c, Subject{TaskForceID: "tf-1"}) {
		t.Fatalf("assigned task force should see case")
	}
	if ViewFor(domain.RoleTaskForce).Visible(c, Subject{TaskForceID: "tf-2"}) {
		t.Fatalf("other task force must not see case")
	}
	if ViewFor(domain.RolePublic).Visible(c, Subject{UserID: "u5"}) {
		t.Fatalf("public user must only see own cases")
	}
}
