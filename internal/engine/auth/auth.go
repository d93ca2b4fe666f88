package auth

import (
	"context"
	"database/sql"
	"errors"

	"civicdesk/internal/domain"
	"civicdesk/internal/repo"
)

// ForbiddenError indicates the caller's role or profile lacks a capability.
type ForbiddenError struct {
	Reason string
}

func (e ForbiddenError) Error() string {
	if e.Reason == "" {
		return "forbidden"
	}
	return e.Reason
}

// Service resolves callers to roles and staff profiles.
type Service struct {
	Repo repo.Repo
}

// rolePrecedence orders profile roles from most to least privileged.
var rolePrecedence = []domain.Role{domain.RoleAdmin, domain.RoleOfficer, domain.RoleTaskForce, domain.RoleAgent}

// ResolveRole returns the most privileged role among the user's staff
// profiles, or public when the user has none.
func (s Service) ResolveRole(ctx context.Context, userID string) (domain.Role, error) {
	roles, err := s.Repo.StaffRoles(ctx, userID)
	if err != nil {
		return domain.RolePublic, err
	}
	held := map[domain.Role]bool{}
	for _, r := range roles {
		held[r] = true
	}
	for _, r := range rolePrecedence {
		if held[r] {
			return r, nil
		}
	}
	return domain.RolePublic, nil
}

// Profile returns the user's profile for role, or repo.ErrNotFound.
func (s Service) Profile(ctx context.Context, tx *sql.Tx, userID string, role domain.Role) (domain.StaffProfile, error) {
	if userID == "" {
		return domain.StaffProfile{}, repo.ErrNotFound
	}
	return s.Repo.StaffByUser(ctx, tx, userID, role)
}

// Subject builds the view subject for a caller. A task force member
// without a profile gets an empty TaskForceID.
func (s Service) Subject(ctx context.Context, userID string, role domain.Role) (Subject, error) {
	sub := Subject{UserID: userID}
	if role != domain.RoleTaskForce {
		return sub, nil
	}
	p, err := s.Profile(ctx, nil, userID, domain.RoleTaskForce)
	if errors.Is(err, repo.ErrNotFound) {
		return sub, nil
	}
	if err != nil {
		return sub, err
	}
	sub.TaskForceID = p.ID
	return sub, nil
}
