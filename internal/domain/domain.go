package domain

// SystemActorID is recorded as the actor of transitions nobody performed by hand,
// such as the initial "Report submitted" entry.
const SystemActorID = "0"

type Case struct {
	ID                 string   `json:"id"`
	Code               string   `json:"case_code"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	LocationText       string   `json:"location_text,omitempty"`
	Status             Status   `json:"status" enum:"submitted,under_officer_review,forwarded_to_admin,assigned_to_task_force,assessment_in_progress,assessment_submitted,resources_allocated,resolution_in_progress,resolution_submitted,resolved,closed,rejected"`
	Priority           Priority `json:"priority" enum:"low,medium,high,urgent"`
	Channel            Channel  `json:"channel" enum:"public,agent,officer"`
	SubmittedBy        string   `json:"submitted_by,omitempty"`
	ReporterName       string   `json:"reporter_name,omitempty"`
	ReporterPhone      string   `json:"reporter_phone,omitempty"`
	SectorID           *string  `json:"sector_id,omitempty"`
	SubSectorID        *string  `json:"sub_sector_id,omitempty"`
	CommunityID        *string  `json:"community_id,omitempty"`
	SmallerCommunityID *string  `json:"smaller_community_id,omitempty"`
	SuburbID           *string  `json:"suburb_id,omitempty"`
	AssignedOfficerID  *string  `json:"assigned_officer_id,omitempty"`
	AssignedAgentID    *string  `json:"assigned_agent_id,omitempty"`
	AssignedTaskForce  *string  `json:"assigned_task_force_id,omitempty"`
	AcknowledgedAt     *string  `json:"acknowledged_at,omitempty" format:"date-time"`
	AcknowledgedBy     *string  `json:"acknowledged_by,omitempty"`
	ResolvedAt         *string  `json:"resolved_at,omitempty" format:"date-time"`
	ResolvedBy         *string  `json:"resolved_by,omitempty"`
	ResolutionNotes    string   `json:"resolution_notes,omitempty"`
	ImageURLs          []string `json:"image_urls"`
	AllocatedBudget    *float64 `json:"allocated_budget,omitempty"`
	AllocatedResources []string `json:"allocated_resources,omitempty"`
	HandlerRole        string   `json:"handler_role,omitempty"`
	HandlerID          string   `json:"handler_id,omitempty"`
	CreatedAt          string   `json:"created_at" format:"date-time"`
	UpdatedAt          string   `json:"updated_at" format:"date-time"`
}

// StatusHistoryEntry is one row of the append-only status ledger.
type StatusHistoryEntry struct {
	ID        int64   `json:"id"`
	CaseID    string  `json:"case_id"`
	ActorID   string  `json:"actor_id"`
	OldStatus *Status `json:"old_status"`
	NewStatus Status  `json:"new_status"`
	Note      string  `json:"note,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type AssessmentReport struct {
	ID                string       `json:"id"`
	CaseID            string       `json:"case_id"`
	SubmittedBy       string       `json:"submitted_by"`
	Summary           string       `json:"summary"`
	Findings          string       `json:"findings,omitempty"`
	IssueConfirmed    bool         `json:"issue_confirmed"`
	Severity          string       `json:"severity,omitempty" enum:"low,medium,high,critical"`
	EstimatedCost     *float64     `json:"estimated_cost,omitempty"`
	EstimatedDuration string       `json:"estimated_duration,omitempty"`
	RequiredResources []string     `json:"required_resources,omitempty"`
	Status            ReportStatus `json:"status" enum:"submitted,approved,rejected,revision_requested"`
	Revision          int          `json:"revision"`
	ReviewNotes       string       `json:"review_notes,omitempty"`
	ReviewedBy        *string      `json:"reviewed_by,omitempty"`
	ReviewedAt        *string      `json:"reviewed_at,omitempty" format:"date-time"`
	CreatedAt         string       `json:"created_at" format:"date-time"`
	UpdatedAt         string       `json:"updated_at" format:"date-time"`
}

type ResolutionReport struct {
	ID               string       `json:"id"`
	CaseID           string       `json:"case_id"`
	SubmittedBy      string       `json:"submitted_by"`
	Summary          string       `json:"summary"`
	WorkPerformed    string       `json:"work_performed,omitempty"`
	ActualCost       *float64     `json:"actual_cost,omitempty"`
	BeforeImages     []string     `json:"before_images,omitempty"`
	AfterImages      []string     `json:"after_images,omitempty"`
	RequiresFollowup bool         `json:"requires_followup"`
	FollowupNotes    string       `json:"followup_notes,omitempty"`
	Status           ReportStatus `json:"status" enum:"submitted,approved,rejected,revision_requested"`
	Revision         int          `json:"revision"`
	ReviewNotes      string       `json:"review_notes,omitempty"`
	ReviewedBy       *string      `json:"reviewed_by,omitempty"`
	ReviewedAt       *string      `json:"reviewed_at,omitempty" format:"date-time"`
	CreatedAt        string       `json:"created_at" format:"date-time"`
	UpdatedAt        string       `json:"updated_at" format:"date-time"`
}

// StaffProfile is the role-scoped profile of a user. The workflow reads
// these but never creates them on its own.
type StaffProfile struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Role       Role   `json:"role" enum:"agent,officer,task_force,admin"`
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	CanAssess  bool   `json:"can_assess"`
	CanResolve bool   `json:"can_resolve"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Sector struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type SubSector struct {
	ID       string `json:"id"`
	SectorID string `json:"sector_id"`
	Name     string `json:"name"`
}

type Location struct {
	ID       string       `json:"id"`
	Kind     LocationKind `json:"kind" enum:"community,smaller_community,suburb"`
	Name     string       `json:"name"`
	ParentID *string      `json:"parent_id,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	Name       string  `json:"name,omitempty"`
	KeyHash    string  `json:"-"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	LastUsedAt *string `json:"last_used_at,omitempty" format:"date-time"`
	RevokedAt  *string `json:"revoked_at,omitempty" format:"date-time"`
}

// Active reports whether the key may still authenticate.
func (k APIKey) Active() bool { return k.RevokedAt == nil }
