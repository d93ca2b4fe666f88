package server

import (
	"civicdesk/internal/domain"
	"civicdesk/internal/engine"
	"civicdesk/internal/storage"
)

// Request payloads

// ImageUpload carries one file inline; data is base64 encoded in JSON.
type ImageUpload struct {
	Name        string `json:"name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"data"`
}

type SubmitCaseRequest struct {
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	LocationText     *string       `json:"location,omitempty"`
	Priority         *string       `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	ReporterName     *string       `json:"reporter_name,omitempty"`
	ReporterPhone    *string       `json:"reporter_phone,omitempty"`
	Sector           *string       `json:"sector,omitempty" doc:"Sector name, matched exactly"`
	SubSector        *string       `json:"sub_sector,omitempty"`
	Community        *string       `json:"community,omitempty"`
	SmallerCommunity *string       `json:"smaller_community,omitempty"`
	Suburb           *string       `json:"suburb,omitempty"`
	Images           []ImageUpload `json:"images,omitempty"`
}

type TransitionRequest struct {
	Status          string  `json:"status,omitempty" doc:"Target lifecycle status"`
	Note            *string `json:"note,omitempty"`
	ResolutionNotes *string `json:"resolution_notes,omitempty"`
}

type NoteRequest struct {
	Note *string `json:"note,omitempty"`
}

type AssignStaffRequest struct {
	OfficerID *string `json:"officer_id,omitempty"`
	AgentID   *string `json:"agent_id,omitempty"`
}

type AssignTaskForceRequest struct {
	TaskForceID string  `json:"task_force_id"`
	Note        *string `json:"note,omitempty"`
}

type SubmitAssessmentRequest struct {
	Summary           string   `json:"summary"`
	Findings          *string  `json:"findings,omitempty"`
	IssueConfirmed    bool     `json:"issue_confirmed,omitempty"`
	Severity          *string  `json:"severity,omitempty" enum:"low,medium,high,critical"`
	EstimatedCost     *float64 `json:"estimated_cost,omitempty"`
	EstimatedDuration *string  `json:"estimated_duration,omitempty"`
	RequiredResources []string `json:"required_resources,omitempty"`
}

type SubmitResolutionRequest struct {
	Summary          string        `json:"summary"`
	WorkPerformed    *string       `json:"work_performed,omitempty"`
	ActualCost       *float64      `json:"actual_cost,omitempty"`
	BeforeImages     []ImageUpload `json:"before_images,omitempty"`
	AfterImages      []ImageUpload `json:"after_images,omitempty"`
	RequiresFollowup bool          `json:"requires_followup,omitempty"`
	FollowupNotes    *string       `json:"followup_notes,omitempty"`
}

type ReviewRequest struct {
	Action string  `json:"action" doc:"approve, reject or revision"`
	Notes  *string `json:"notes,omitempty"`
}

type AllocateResourcesRequest struct {
	Budget    float64  `json:"budget"`
	Resources []string `json:"resources,omitempty"`
	Note      *string  `json:"note,omitempty"`
}

type CreateStaffRequest struct {
	UserID     string  `json:"user_id"`
	Role       string  `json:"role" enum:"agent,officer,task_force,admin"`
	Name       string  `json:"name"`
	Phone      *string `json:"phone,omitempty"`
	CanAssess  bool    `json:"can_assess,omitempty"`
	CanResolve bool    `json:"can_resolve,omitempty"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty" enum:"public,agent,officer,task_force,web_admin,admin,super_admin"`
}

// Responses

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	UserID   string                `json:"user_id"`
	Role     domain.Role           `json:"role"`
	Source   string                `json:"source"`
	Profiles []domain.StaffProfile `json:"profiles"`
}

type paginatedCases struct {
	Items      []domain.Case `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type historyResponse struct {
	CaseID string                      `json:"case_id"`
	Items  []domain.StatusHistoryEntry `json:"items"`
}

type staffList struct {
	Items []domain.StaffProfile `json:"items"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type caseOutput struct {
	Body engine.CaseDetail `json:"body"`
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func toObjects(in []ImageUpload) []storage.Object {
	if len(in) == 0 {
		return nil
	}
	out := make([]storage.Object, 0, len(in))
	for _, img := range in {
		out = append(out, storage.Object{Name: img.Name, ContentType: img.ContentType, Data: img.Data})
	}
	return out
}
