package engine_test

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"civicdesk/internal/app"
	"civicdesk/internal/db"
	"civicdesk/internal/domain"
	"civicdesk/internal/engine"
	"civicdesk/internal/engine/auth"
	"civicdesk/internal/repo"
	"civicdesk/internal/storage"
)

var (
	root    = engine.Actor{UserID: "root", Role: domain.RoleSuperAdmin}
	admin   = engine.Actor{UserID: "admin-1", Role: domain.RoleAdmin}
	officer = engine.Actor{UserID: "officer-1", Role: domain.RoleOfficer}
	tf      = engine.Actor{UserID: "tf-1", Role: domain.RoleTaskForce}
	tfOther = engine.Actor{UserID: "tf-2", Role: domain.RoleTaskForce}
	tfBasic = engine.Actor{UserID: "tf-3", Role: domain.RoleTaskForce}
	agent   = engine.Actor{UserID: "agent-1", Role: domain.RoleAgent}
	citizen = engine.Actor{UserID: "citizen-1", Role: domain.RolePublic}
)

type testEnv struct {
	Engine    engine.Engine
	Ctx       context.Context
	Officer   domain.StaffProfile
	TaskForce domain.StaffProfile
	Other     domain.StaffProfile
	Basic     domain.StaffProfile
	Agent     domain.StaffProfile
	clock     time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	cfg, err := app.Bootstrap(ctx, conn, dir)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	env := &testEnv{Ctx: ctx, clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	env.Engine = app.NewEngine(conn, cfg, dir, log.New(io.Discard, "", 0))
	env.Engine.Now = func() time.Time { return env.clock }

	staff := func(in engine.StaffInput) domain.StaffProfile {
		p, err := env.Engine.CreateStaff(ctx, root, in)
		if err != nil {
			t.Fatalf("create staff %s: %v", in.UserID, err)
		}
		return p
	}
	staff(engine.StaffInput{UserID: admin.UserID, Role: domain.RoleAdmin, Name: "Ama Admin"})
	env.Officer = staff(engine.StaffInput{UserID: officer.UserID, Role: domain.RoleOfficer, Name: "Kofi Officer"})
	env.TaskForce = staff(engine.StaffInput{UserID: tf.UserID, Role: domain.RoleTaskForce, Name: "Yaw Field", CanAssess: true, CanResolve: true})
	env.Other = staff(engine.StaffInput{UserID: tfOther.UserID, Role: domain.RoleTaskForce, Name: "Efua Field", CanAssess: true, CanResolve: true})
	env.Basic = staff(engine.StaffInput{UserID: tfBasic.UserID, Role: domain.RoleTaskForce, Name: "Kwame Helper"})
	env.Agent = staff(engine.StaffInput{UserID: agent.UserID, Role: domain.RoleAgent, Name: "Akos Agent"})
	return env
}

func (env *testEnv) tick() {
	env.clock = env.clock.Add(time.Minute)
}

func (env *testEnv) submit(t *testing.T) domain.Case {
	t.Helper()
	d, err := env.Engine.SubmitCase(env.Ctx, citizen, engine.SubmitOptions{
		Title:        "Broken streetlight",
		Description:  "Pole #12 dark",
		LocationText: "Ashanti",
		Community:    "Ashanti",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return d.Case
}

// advance drives a fresh case to target along the happy path.
func (env *testEnv) advance(t *testing.T, target domain.Status) domain.Case {
	t.Helper()
	c := env.submit(t)
	steps := []struct {
		to  domain.Status
		run func() (engine.CaseDetail, error)
	}{
		{domain.StatusUnderOfficerReview, func() (engine.CaseDetail, error) {
			return env.Engine.TransitionStatus(env.Ctx, officer, c.ID, engine.TransitionOptions{Status: domain.StatusUnderOfficerReview})
		}},
		{domain.StatusForwardedToAdmin, func() (engine.CaseDetail, error) {
			return env.Engine.ForwardToAdmin(env.Ctx, officer, c.ID, "")
		}},
		{domain.StatusAssignedToTaskForce, func() (engine.CaseDetail, error) {
			return env.Engine.AssignToTaskForce(env.Ctx, admin, c.ID, env.TaskForce.ID, "")
		}},
		{domain.StatusAssessmentInProgress, func() (engine.CaseDetail, error) {
			return env.Engine.StartAssessment(env.Ctx, tf, c.ID)
		}},
		{domain.StatusAssessmentSubmitted, func() (engine.CaseDetail, error) {
			cost := 1200.0
			return env.Engine.SubmitAssessment(env.Ctx, tf, c.ID, engine.AssessmentInput{
				Summary: "Lamp head burnt out", IssueConfirmed: true, Severity: "medium", EstimatedCost: &cost,
				RequiredResources: []string{"bucket truck", "lamp head"},
			})
		}},
		{domain.StatusResourcesAllocated, func() (engine.CaseDetail, error) {
			return env.Engine.AllocateResources(env.Ctx, admin, c.ID, 1500, []string{"bucket truck"}, "")
		}},
		{domain.StatusResolutionInProgress, func() (engine.CaseDetail, error) {
			return env.Engine.StartResolution(env.Ctx, tf, c.ID)
		}},
		{domain.StatusResolutionSubmitted, func() (engine.CaseDetail, error) {
			return env.Engine.SubmitResolution(env.Ctx, tf, c.ID, engine.ResolutionInput{Summary: "Pole replaced"})
		}},
	}
	for _, step := range steps {
		if c.Status == target {
			return c
		}
		env.tick()
		d, err := step.run()
		if err != nil {
			t.Fatalf("advance to %s: %v", step.to, err)
		}
		if d.Case.Status != step.to {
			t.Fatalf("expected %s, got %s", step.to, d.Case.Status)
		}
		c = d.Case
	}
	if c.Status != target {
		t.Fatalf("cannot advance to %s", target)
	}
	return c
}

func (env *testEnv) history(t *testing.T, id string) []domain.StatusHistoryEntry {
	t.Helper()
	h, err := env.Engine.History(env.Ctx, officer, id)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	return h
}

func TestSubmitCaseCreatesInitialHistory(t *testing.T) {
	env := newTestEnv(t)
	c := env.submit(t)
	if c.Status != domain.StatusSubmitted {
		t.Fatalf("expected submitted, got %s", c.Status)
	}
	if c.Code != "ISS-0001" {
		t.Fatalf("unexpected code %s", c.Code)
	}
	if c.Priority != domain.PriorityMedium || c.Channel != domain.ChannelPublic {
		t.Fatalf("unexpected defaults priority=%s channel=%s", c.Priority, c.Channel)
	}
	if c.CommunityID == nil {
		t.Fatalf("community Ashanti should resolve")
	}
	if c.HandlerRole != string(domain.RoleOfficer) {
		t.Fatalf("new case should wait on an officer, got %q", c.HandlerRole)
	}
	h := env.history(t, c.ID)
	if len(h) != 1 {
		t.Fatalf("expected one history entry, got %d", len(h))
	}
	if h[0].ActorID != domain.SystemActorID || h[0].OldStatus != nil || h[0].NewStatus != domain.StatusSubmitted || h[0].Note != "Report submitted" {
		t.Fatalf("unexpected initial entry %+v", h[0])
	}
	second := env.submit(t)
	if second.Code != "ISS-0002" {
		t.Fatalf("codes must be sequential, got %s", second.Code)
	}
}

func TestSubmitCaseClassification(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.Engine.SubmitCase(env.Ctx, citizen, engine.SubmitOptions{
		Title:            "Pothole",
		Description:      "Deep pothole near market",
		Sector:           "Roads and Transport",
		SubSector:        "Potholes",
		Community:        "Ashanti",
		SmallerCommunity: "Kumasi",
		Suburb:           "Adum",
		Priority:         domain.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	c := d.Case
	if c.SectorID == nil || c.SubSectorID == nil || c.CommunityID == nil || c.SmallerCommunityID == nil || c.SuburbID == nil {
		t.Fatalf("expected full classification, got %+v", c)
	}
	d, err = env.Engine.SubmitCase(env.Ctx, citizen, engine.SubmitOptions{
		Title: "Noise", Description: "Loud generator", Sector: "Noise Control", Suburb: "Nowhere",
	})
	if err != nil {
		t.Fatalf("unknown taxonomy must not fail submission: %v", err)
	}
	if d.Case.SectorID != nil || d.Case.SuburbID != nil {
		t.Fatalf("unknown names must store null")
	}
}

func TestSubmitCaseValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SubmitCase(env.Ctx, citizen, engine.SubmitOptions{Description: "x"})
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "title" {
		t.Fatalf("expected title validation error, got %v", err)
	}
	_, err = env.Engine.SubmitCase(env.Ctx, citizen, engine.SubmitOptions{Title: "x", Description: "y", Priority: "critical"})
	if !errors.As(err, &ve) || ve.Field != "priority" {
		t.Fatalf("expected priority validation error, got %v", err)
	}
}

func TestSubmitCaseChannels(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.Engine.SubmitCase(env.Ctx, agent, engine.SubmitOptions{Channel: domain.ChannelAgent, Title: "Flooding", Description: "Drain blocked"})
	if err != nil {
		t.Fatalf("agent submit: %v", err)
	}
	if d.Case.AssignedAgentID == nil || *d.Case.AssignedAgentID != env.Agent.ID {
		t.Fatalf("agent channel should assign the agent")
	}
	d, err = env.Engine.SubmitCase(env.Ctx, officer, engine.SubmitOptions{Channel: domain.ChannelOfficer, Title: "Cables", Description: "Exposed cables"})
	if err != nil {
		t.Fatalf("officer submit: %v", err)
	}
	if d.Case.AssignedOfficerID == nil || *d.Case.AssignedOfficerID != env.Officer.ID || d.Case.HandlerID != env.Officer.ID {
		t.Fatalf("officer channel should assign the officer: %+v", d.Case)
	}
	_, err = env.Engine.SubmitCase(env.Ctx, citizen, engine.SubmitOptions{Channel: domain.ChannelAgent, Title: "x", Description: "y"})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("agent channel without profile should be NotFound, got %v", err)
	}
}

func TestSubmitCaseImages(t *testing.T) {
	env := newTestEnv(t)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	d, err := env.Engine.SubmitCase(env.Ctx, citizen, engine.SubmitOptions{
		Title: "Fallen tree", Description: "Blocking the road",
		Images: []storage.Object{
			{Name: "tree.png", Data: png},
			{Name: "notes.txt", Data: []byte("not an image")},
		},
	})
	if err != nil {
		t.Fatalf("submit with images: %v", err)
	}
	if len(d.Case.ImageURLs) != 1 || !strings.HasPrefix(d.Case.ImageURLs[0], "/uploads/issues/"+d.Case.ID+"/") {
		t.Fatalf("expected one stored image, got %v", d.Case.ImageURLs)
	}
}

func TestOfficerAcknowledgeIsFirstWriteWins(t *testing.T) {
	env := newTestEnv(t)
	c := env.submit(t)
	env.tick()
	d, err := env.Engine.TransitionStatus(env.Ctx, officer, c.ID, engine.TransitionOptions{Status: domain.StatusUnderOfficerReview})
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	first := d.Case
	if first.Status != domain.StatusUnderOfficerReview || first.AcknowledgedAt == nil || *first.AcknowledgedBy != env.Officer.ID {
		t.Fatalf("acknowledgement not stamped: %+v", first)
	}
	if first.AssignedOfficerID == nil || *first.AssignedOfficerID != env.Officer.ID {
		t.Fatalf("acknowledging officer should become assigned officer")
	}
	env.tick()
	d, err = env.Engine.TransitionStatus(env.Ctx, officer, c.ID, engine.TransitionOptions{Status: domain.StatusUnderOfficerReview})
	if err != nil {
		t.Fatalf("repeat acknowledge: %v", err)
	}
	if *d.Case.AcknowledgedAt != *first.AcknowledgedAt {
		t.Fatalf("acknowledged_at overwritten: %s -> %s", *first.AcknowledgedAt, *d.Case.AcknowledgedAt)
	}
	h := env.history(t, c.ID)
	if len(h) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(h))
	}
	last := h[2]
	if *last.OldStatus != domain.StatusUnderOfficerReview || last.NewStatus != domain.StatusUnderOfficerReview || last.ActorID != officer.UserID {
		t.Fatalf("unexpected repeat entry %+v", last)
	}
}

func TestAcknowledgeRequiresOfficerProfile(t *testing.T) {
	env := newTestEnv(t)
	c := env.submit(t)
	ghost := engine.Actor{UserID: "ghost", Role: domain.RoleOfficer}
	_, err := env.Engine.TransitionStatus(env.Ctx, ghost, c.ID, engine.TransitionOptions{Status: domain.StatusUnderOfficerReview})
	var nf engine.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if len(env.history(t, c.ID)) != 1 {
		t.Fatalf("failed transition must not append history")
	}
}

func TestOfficerCannotAssignTaskForce(t *testing.T) {
	env := newTestEnv(t)
	for _, target := range []domain.Status{domain.StatusSubmitted, domain.StatusForwardedToAdmin} {
		c := env.advance(t, target)
		_, err := env.Engine.TransitionStatus(env.Ctx, officer, c.ID, engine.TransitionOptions{Status: domain.StatusAssignedToTaskForce})
		var fe auth.ForbiddenError
		if !errors.As(err, &fe) {
			t.Fatalf("from %s: expected ForbiddenError, got %v", target, err)
		}
	}
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	env := newTestEnv(t)
	c := env.submit(t)
	_, err := env.Engine.TransitionStatus(env.Ctx, admin, c.ID, engine.TransitionOptions{Status: "in_progress"})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	_, err = env.Engine.TransitionStatus(env.Ctx, tf, c.ID, engine.TransitionOptions{Status: domain.StatusClosed})
	var fe auth.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("task force must not use generic transition, got %v", err)
	}
}

func TestFullLifecycle(t *testing.T) {
	env := newTestEnv(t)
	c := env.advance(t, domain.StatusResolutionSubmitted)
	d, err := env.Engine.GetCase(env.Ctx, admin, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if d.Resolution == nil || d.Resolution.Status != domain.ReportSubmitted || d.Resolution.Summary != "Pole replaced" {
		t.Fatalf("unexpected resolution %+v", d.Resolution)
	}
	if d.Case.AllocatedBudget == nil || *d.Case.AllocatedBudget != 1500 {
		t.Fatalf("budget not recorded")
	}
	env.tick()
	d, err = env.Engine.ReviewResolution(env.Ctx, admin, c.ID, domain.ReviewApprove, "Good work")
	if err != nil {
		t.Fatalf("approve resolution: %v", err)
	}
	if d.Case.Status != domain.StatusResolved || d.Case.ResolvedAt == nil || d.Case.ResolutionNotes != "Pole replaced" {
		t.Fatalf("case not resolved: %+v", d.Case)
	}
	if d.Resolution.Status != domain.ReportApproved || d.Case.HandlerRole != "" {
		t.Fatalf("unexpected resolution state %s handler %q", d.Resolution.Status, d.Case.HandlerRole)
	}
	resolvedAt := *d.Case.ResolvedAt
	env.tick()
	d, err = env.Engine.TransitionStatus(env.Ctx, admin, c.ID, engine.TransitionOptions{Status: domain.StatusResolved, ResolutionNotes: "again"})
	if err != nil {
		t.Fatalf("re-resolve: %v", err)
	}
	if *d.Case.ResolvedAt != resolvedAt || d.Case.ResolutionNotes != "Pole replaced" {
		t.Fatalf("resolution stamp overwritten")
	}
	if _, err := env.Engine.TransitionStatus(env.Ctx, admin, c.ID, engine.TransitionOptions{Status: domain.StatusClosed}); err != nil {
		t.Fatalf("close: %v", err)
	}

	h := env.history(t, c.ID)
	if len(h) != 12 {
		t.Fatalf("expected 12 history entries, got %d", len(h))
	}
	for i := 1; i < len(h); i++ {
		if h[i].OldStatus == nil || *h[i].OldStatus != h[i-1].NewStatus {
			t.Fatalf("entry %d old_status does not chain: %+v", i, h[i])
		}
	}
	if !strings.Contains(h[6].Note, "Budget: 1500.00") {
		t.Fatalf("allocation note should record the budget, got %q", h[6].Note)
	}
}

func TestReviewAssessmentReject(t *testing.T) {
	env := newTestEnv(t)
	c := env.advance(t, domain.StatusAssessmentSubmitted)
	env.tick()
	d, err := env.Engine.ReviewAssessment(env.Ctx, admin, c.ID, domain.ReviewReject, "Photos missing")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if d.Assessment.Status != domain.ReportRejected || d.Case.Status != domain.StatusAssessmentInProgress {
		t.Fatalf("unexpected state report=%s case=%s", d.Assessment.Status, d.Case.Status)
	}
	h := env.history(t, c.ID)
	last := h[len(h)-1]
	if *last.OldStatus != domain.StatusAssessmentSubmitted || !strings.Contains(last.Note, "Photos missing") {
		t.Fatalf("unexpected reversion entry %+v", last)
	}

	env.tick()
	d, err = env.Engine.SubmitAssessment(env.Ctx, tf, c.ID, engine.AssessmentInput{Summary: "Lamp head burnt out, photos attached"})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if d.Assessment.Revision != 2 || d.Assessment.Status != domain.ReportSubmitted || d.Assessment.ReviewNotes != "" {
		t.Fatalf("resubmission should overwrite and bump revision: %+v", d.Assessment)
	}
	d, err = env.Engine.ReviewAssessment(env.Ctx, admin, c.ID, domain.ReviewApprove, "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if d.Assessment.Status != domain.ReportApproved || d.Case.Status != domain.StatusAssessmentSubmitted {
		t.Fatalf("approval must not move the case: %s", d.Case.Status)
	}
}

func TestReviewValidation(t *testing.T) {
	env := newTestEnv(t)
	c := env.advance(t, domain.StatusAssessmentSubmitted)
	_, err := env.Engine.ReviewAssessment(env.Ctx, admin, c.ID, "maybe", "")
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	_, err = env.Engine.ReviewAssessment(env.Ctx, officer, c.ID, domain.ReviewApprove, "")
	var fe auth.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
	_, err = env.Engine.ReviewResolution(env.Ctx, admin, c.ID, domain.ReviewApprove, "")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing resolution should be NotFound, got %v", err)
	}
}

func TestReviewResolutionRevisionReverts(t *testing.T) {
	env := newTestEnv(t)
	c := env.advance(t, domain.StatusResolutionSubmitted)
	env.tick()
	d, err := env.Engine.ReviewResolution(env.Ctx, admin, c.ID, domain.ReviewRevision, "Need after photos")
	if err != nil {
		t.Fatalf("revision: %v", err)
	}
	if d.Resolution.Status != domain.ReportRevisionRequested || d.Case.Status != domain.StatusResolutionInProgress {
		t.Fatalf("unexpected state report=%s case=%s", d.Resolution.Status, d.Case.Status)
	}
	if d.Case.ResolvedAt != nil {
		t.Fatalf("revision must not resolve the case")
	}
	d, err = env.Engine.SubmitResolution(env.Ctx, tf, c.ID, engine.ResolutionInput{Summary: "Pole replaced, photos attached"})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if d.Resolution.Revision != 2 || d.Case.Status != domain.StatusResolutionSubmitted {
		t.Fatalf("unexpected resubmission %+v", d.Resolution)
	}
}

func TestTaskForceOwnership(t *testing.T) {
	env := newTestEnv(t)
	c := env.advance(t, domain.StatusAssignedToTaskForce)
	_, err := env.Engine.StartAssessment(env.Ctx, tfOther, c.ID)
	var nf engine.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError for foreign task force, got %v", err)
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		t.Fatalf("ownership mismatch must not be Forbidden")
	}
	if _, err := env.Engine.GetCase(env.Ctx, tfOther, c.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("foreign task force must not read the case, got %v", err)
	}
	_, err = env.Engine.StartResolution(env.Ctx, tf, c.ID)
	var pe engine.PreconditionError
	if !errors.As(err, &pe) {
		t.Fatalf("start resolution before allocation should fail precondition, got %v", err)
	}
}

func TestSubmitAssessmentChecks(t *testing.T) {
	env := newTestEnv(t)
	c := env.advance(t, domain.StatusAssignedToTaskForce)
	if _, err := env.Engine.AssignToTaskForce(env.Ctx, admin, c.ID, env.Basic.ID, "reassign"); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if _, err := env.Engine.StartAssessment(env.Ctx, tfBasic, c.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err := env.Engine.SubmitAssessment(env.Ctx, tfBasic, c.ID, engine.AssessmentInput{Summary: "Looks bad"})
	var fe auth.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError without can_assess, got %v", err)
	}

	c = env.advance(t, domain.StatusAssessmentInProgress)
	_, err = env.Engine.SubmitAssessment(env.Ctx, tf, c.ID, engine.AssessmentInput{Summary: "   "})
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "summary" {
		t.Fatalf("expected summary ValidationError, got %v", err)
	}
}

func TestAllocateResourcesPreconditions(t *testing.T) {
	env := newTestEnv(t)
	c := env.advance(t, domain.StatusAssignedToTaskForce)
	_, err := env.Engine.AllocateResources(env.Ctx, admin, c.ID, 500, nil, "")
	var pe engine.PreconditionError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PreconditionError, got %v", err)
	}
	_, err = env.Engine.AllocateResources(env.Ctx, admin, c.ID, 0, nil, "")
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for zero budget, got %v", err)
	}
}

func TestAssignStaff(t *testing.T) {
	env := newTestEnv(t)
	c := env.submit(t)
	d, err := env.Engine.AssignStaff(env.Ctx, admin, c.ID, engine.AssignStaffOptions{OfficerID: env.Officer.ID, AgentID: env.Agent.ID})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if *d.Case.AssignedOfficerID != env.Officer.ID || *d.Case.AssignedAgentID != env.Agent.ID || d.Case.HandlerID != env.Officer.ID {
		t.Fatalf("unexpected assignment %+v", d.Case)
	}
	if d.Case.Status != domain.StatusSubmitted || len(env.history(t, c.ID)) != 1 {
		t.Fatalf("assignment must not change status or history")
	}
	_, err = env.Engine.AssignStaff(env.Ctx, admin, c.ID, engine.AssignStaffOptions{OfficerID: env.Agent.ID})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("agent profile used as officer should be NotFound, got %v", err)
	}
}

func TestListCasesByRole(t *testing.T) {
	env := newTestEnv(t)
	inbox := env.submit(t)
	forwarded := env.advance(t, domain.StatusForwardedToAdmin)
	assigned := env.advance(t, domain.StatusAssignedToTaskForce)

	ids := func(actor engine.Actor, statuses ...domain.Status) map[string]bool {
		t.Helper()
		cases, _, err := env.Engine.ListCases(env.Ctx, actor, engine.ListOptions{Statuses: statuses})
		if err != nil {
			t.Fatalf("list as %s: %v", actor.UserID, err)
		}
		out := map[string]bool{}
		for _, c := range cases {
			out[c.ID] = true
		}
		return out
	}

	got := ids(admin)
	if got[inbox.ID] || !got[forwarded.ID] || !got[assigned.ID] {
		t.Fatalf("admin view wrong: %v", got)
	}
	if len(ids(admin, domain.StatusSubmitted)) != 0 {
		t.Fatalf("admin must not see the officer inbox even when asked")
	}
	got = ids(officer)
	if !got[inbox.ID] || !got[forwarded.ID] || got[assigned.ID] {
		t.Fatalf("officer view wrong: %v", got)
	}
	got = ids(tf)
	if len(got) != 1 || !got[assigned.ID] {
		t.Fatalf("task force view wrong: %v", got)
	}
	if len(ids(tfOther)) != 0 {
		t.Fatalf("other task force must see nothing")
	}
	if len(ids(engine.Actor{UserID: "nobody", Role: domain.RoleTaskForce})) != 0 {
		t.Fatalf("task force without profile must see nothing")
	}
	if len(ids(citizen)) != 3 {
		t.Fatalf("citizen should see their three submissions")
	}
	if len(ids(engine.Actor{UserID: "stranger", Role: domain.RolePublic})) != 0 {
		t.Fatalf("stranger should see nothing")
	}
}

func TestListCasesPagination(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		env.tick()
		env.submit(t)
	}
	page, next, err := env.Engine.ListCases(env.Ctx, officer, engine.ListOptions{Limit: 2})
	if err != nil || len(page) != 2 || next == "" {
		t.Fatalf("first page: %v len=%d next=%q", err, len(page), next)
	}
	rest, next, err := env.Engine.ListCases(env.Ctx, officer, engine.ListOptions{Limit: 2, Cursor: next})
	if err != nil || len(rest) != 1 || next != "" {
		t.Fatalf("second page: %v len=%d next=%q", err, len(rest), next)
	}
	if rest[0].ID == page[0].ID || rest[0].ID == page[1].ID {
		t.Fatalf("pages overlap")
	}
	full, next, err := env.Engine.ListCases(env.Ctx, officer, engine.ListOptions{Limit: 3})
	if err != nil || len(full) != 3 || next != "" {
		t.Fatalf("exactly full last page should have no cursor: %v len=%d next=%q", err, len(full), next)
	}
	if _, _, err := env.Engine.ListCases(env.Ctx, officer, engine.ListOptions{Statuses: []domain.Status{"open"}}); err == nil {
		t.Fatalf("unknown status filter should fail")
	}
}

func TestConcurrentStartAssessment(t *testing.T) {
	env := newTestEnv(t)
	c := env.advance(t, domain.StatusAssignedToTaskForce)
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.StartAssessment(env.Ctx, tf, c.ID)
		}(i)
	}
	wg.Wait()
	ok := 0
	for _, err := range errs {
		var pe engine.PreconditionError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &pe), errors.Is(err, engine.ErrConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one success, got %d", ok)
	}
	h := env.history(t, c.ID)
	if got := h[len(h)-1].NewStatus; got != domain.StatusAssessmentInProgress || h[len(h)-2].NewStatus != domain.StatusAssignedToTaskForce {
		t.Fatalf("expected a single start entry, tail=%s", got)
	}
}

func TestResolveHandler(t *testing.T) {
	tfID, officerID := "tf-9", "off-9"
	c := domain.Case{AssignedTaskForce: &tfID, AssignedOfficerID: &officerID}
	cases := map[domain.Status]engine.Handler{
		domain.StatusSubmitted:            {Role: domain.RoleOfficer, ProfileID: officerID},
		domain.StatusForwardedToAdmin:     {Role: domain.RoleAdmin},
		domain.StatusAssessmentInProgress: {Role: domain.RoleTaskForce, ProfileID: tfID},
		domain.StatusResolutionSubmitted:  {Role: domain.RoleAdmin},
		domain.StatusClosed:               {},
	}
	for status, want := range cases {
		c.Status = status
		if got := engine.ResolveHandler(c); got != want {
			t.Fatalf("%s: got %+v want %+v", status, got, want)
		}
	}
}

func TestAdminCannotReadOfficerInboxCase(t *testing.T) {
	env := newTestEnv(t)
	c := env.submit(t)
	if _, err := env.Engine.GetCase(env.Ctx, admin, c.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("admin get of submitted case: expected not found, got %v", err)
	}
	if _, err := env.Engine.History(env.Ctx, admin, c.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("admin history of submitted case: expected not found, got %v", err)
	}
	env.tick()
	if _, err := env.Engine.ForwardToAdmin(env.Ctx, officer, c.ID, ""); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if _, err := env.Engine.GetCase(env.Ctx, admin, c.ID); err != nil {
		t.Fatalf("admin should see forwarded case: %v", err)
	}
}

// blockingStore holds every Upload until release is closed and records deletes.
type blockingStore struct {
	entered chan struct{}
	release chan struct{}

	mu       sync.Mutex
	uploaded []string
	deleted  []string
}

func (s *blockingStore) Upload(ctx context.Context, obj storage.Object, category, folder string) (string, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	url := "/uploads/" + category + "/" + folder + "/" + obj.Name
	s.mu.Lock()
	s.uploaded = append(s.uploaded, url)
	s.mu.Unlock()
	return url, nil
}

func (s *blockingStore) Delete(ctx context.Context, url string) error {
	s.mu.Lock()
	s.deleted = append(s.deleted, url)
	s.mu.Unlock()
	return nil
}

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestSlowUploadDoesNotBlockOtherWriters(t *testing.T) {
	env := newTestEnv(t)
	other := env.submit(t)
	store := &blockingStore{entered: make(chan struct{}), release: make(chan struct{})}
	env.Engine.Storage = store

	done := make(chan error, 1)
	go func() {
		_, err := env.Engine.SubmitCase(env.Ctx, citizen, engine.SubmitOptions{
			Title: "Flooded junction", Description: "Drain blocked",
			Images: []storage.Object{{Name: "junction.png", Data: pngBytes}},
		})
		done <- err
	}()
	<-store.entered

	// The upload is still in flight; a write on another case must not wait for it.
	start := time.Now()
	_, err := env.Engine.TransitionStatus(env.Ctx, officer, other.ID, engine.TransitionOptions{Status: domain.StatusUnderOfficerReview})
	elapsed := time.Since(start)
	close(store.release)
	if err != nil {
		t.Fatalf("transition during upload: %v", err)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("transition waited %s for the upload", elapsed)
	}
	if err := <-done; err != nil {
		t.Fatalf("submit with slow upload: %v", err)
	}
}

func TestSlowResolutionUploadDoesNotBlockOtherWriters(t *testing.T) {
	env := newTestEnv(t)
	c := env.advance(t, domain.StatusResolutionInProgress)
	other := env.submit(t)
	store := &blockingStore{entered: make(chan struct{}), release: make(chan struct{})}
	env.Engine.Storage = store

	done := make(chan error, 1)
	go func() {
		_, err := env.Engine.SubmitResolution(env.Ctx, tf, c.ID, engine.ResolutionInput{
			Summary:     "Pole replaced",
			AfterImages: []storage.Object{{Name: "after.png", Data: pngBytes}},
		})
		done <- err
	}()
	<-store.entered

	_, err := env.Engine.TransitionStatus(env.Ctx, officer, other.ID, engine.TransitionOptions{Status: domain.StatusUnderOfficerReview})
	close(store.release)
	if err != nil {
		t.Fatalf("transition during upload: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("submit resolution: %v", err)
	}
	d, err := env.Engine.GetCase(env.Ctx, admin, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if d.Resolution == nil || len(d.Resolution.AfterImages) != 1 || !strings.Contains(d.Resolution.AfterImages[0], c.ID+"-after") {
		t.Fatalf("expected after image keyed by case id, got %+v", d.Resolution)
	}
}

func TestFailedSubmitRemovesUploadedImages(t *testing.T) {
	env := newTestEnv(t)
	store := &blockingStore{}
	env.Engine.Storage = store
	_, err := env.Engine.SubmitCase(env.Ctx, citizen, engine.SubmitOptions{
		Channel:     domain.ChannelAgent,
		Title:       "Fallen tree",
		Description: "Blocking the road",
		Images:      []storage.Object{{Name: "tree.png", Data: pngBytes}},
	})
	var nf engine.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected missing agent profile, got %v", err)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.uploaded) != 1 || len(store.deleted) != 1 || store.deleted[0] != store.uploaded[0] {
		t.Fatalf("uploaded %v, deleted %v", store.uploaded, store.deleted)
	}
}

func TestAuditEventsUseEngineClock(t *testing.T) {
	env := newTestEnv(t)
	env.tick()
	c := env.submit(t)
	env.tick()
	if _, err := env.Engine.TransitionStatus(env.Ctx, officer, c.ID, engine.TransitionOptions{Status: domain.StatusUnderOfficerReview}); err != nil {
		t.Fatalf("transition: %v", err)
	}
	evts, err := env.Engine.Repo.EventsForEntity(env.Ctx, "case", c.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) < 2 {
		t.Fatalf("expected submit and transition events, got %d", len(evts))
	}
	want := map[string]string{
		"case.submitted":      c.CreatedAt,
		"case.status_changed": env.clock.UTC().Format(time.RFC3339),
	}
	for _, evt := range evts {
		if ts, ok := want[evt.Type]; ok && evt.TS != ts {
			t.Errorf("%s stamped %s, want %s", evt.Type, evt.TS, ts)
		}
	}
}
