package domain

// Status is the lifecycle state of a case.
type Status string

const (
	StatusSubmitted            Status = "submitted"
	StatusUnderOfficerReview   Status = "under_officer_review"
	StatusForwardedToAdmin     Status = "forwarded_to_admin"
	StatusAssignedToTaskForce  Status = "assigned_to_task_force"
	StatusAssessmentInProgress Status = "assessment_in_progress"
	StatusAssessmentSubmitted  Status = "assessment_submitted"
	StatusResourcesAllocated   Status = "resources_allocated"
	StatusResolutionInProgress Status = "resolution_in_progress"
	StatusResolutionSubmitted  Status = "resolution_submitted"
	StatusResolved             Status = "resolved"
	StatusClosed               Status = "closed"
	StatusRejected             Status = "rejected"
)

// Statuses lists every lifecycle state in workflow order.
var Statuses = []Status{
	StatusSubmitted,
	StatusUnderOfficerReview,
	StatusForwardedToAdmin,
	StatusAssignedToTaskForce,
	StatusAssessmentInProgress,
	StatusAssessmentSubmitted,
	StatusResourcesAllocated,
	StatusResolutionInProgress,
	StatusResolutionSubmitted,
	StatusResolved,
	StatusClosed,
	StatusRejected,
}

func (s Status) IsValid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further work is expected on the case.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusClosed || s == StatusRejected
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Role is the closed set of actor roles known to the workflow.
type Role string

const (
	RolePublic     Role = "public"
	RoleAgent      Role = "agent"
	RoleOfficer    Role = "officer"
	RoleTaskForce  Role = "task_force"
	RoleWebAdmin   Role = "web_admin"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RolePublic, RoleAgent, RoleOfficer, RoleTaskForce, RoleWebAdmin, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsTopLevel reports whether the role carries unrestricted workflow authority.
func (r Role) IsTopLevel() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// HasProfile reports whether users with this role are expected to own a staff profile.
func (r Role) HasProfile() bool {
	switch r {
	case RoleAgent, RoleOfficer, RoleTaskForce, RoleAdmin:
		return true
	}
	return false
}

// ParseRole maps free text onto a Role, falling back to public.
func ParseRole(s string) Role {
	r := Role(s)
	if r.IsValid() {
		return r
	}
	return RolePublic
}

// ReportStatus is the review state of an assessment or resolution report.
type ReportStatus string

const (
	ReportSubmitted         ReportStatus = "submitted"
	ReportApproved          ReportStatus = "approved"
	ReportRejected          ReportStatus = "rejected"
	ReportRevisionRequested ReportStatus = "revision_requested"
)

// ReviewAction is what an admin decides about a submitted report.
type ReviewAction string

const (
	ReviewApprove  ReviewAction = "approve"
	ReviewReject   ReviewAction = "reject"
	ReviewRevision ReviewAction = "revision"
)

func (a ReviewAction) IsValid() bool {
	switch a {
	case ReviewApprove, ReviewReject, ReviewRevision:
		return true
	}
	return false
}

// ReportStatus returns the report state an action leads to.
func (a ReviewAction) ReportStatus() ReportStatus {
	switch a {
	case ReviewApprove:
		return ReportApproved
	case ReviewReject:
		return ReportRejected
	default:
		return ReportRevisionRequested
	}
}

// Channel records which entry point created a case.
type Channel string

const (
	ChannelPublic  Channel = "public"
	ChannelAgent   Channel = "agent"
	ChannelOfficer Channel = "officer"
)

type LocationKind string

const (
	LocationCommunity        LocationKind = "community"
	LocationSmallerCommunity LocationKind = "smaller_community"
	LocationSuburb           LocationKind = "suburb"
)
