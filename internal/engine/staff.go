package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"civicdesk/internal/domain"
	"civicdesk/internal/events"
)

type StaffInput struct {
	UserID     string
	Role       domain.Role
	Name       string
	Phone      string
	CanAssess  bool
	CanResolve bool
}

// CreateStaff registers a staff profile. Only admins may do this.
func (e Engine) CreateStaff(ctx context.Context, actor Actor, in StaffInput) (domain.StaffProfile, error) {
	if err := requireTopLevel(actor, "manage staff"); err != nil {
		return domain.StaffProfile{}, err
	}
	in.UserID = strings.TrimSpace(in.UserID)
	in.Name = strings.TrimSpace(in.Name)
	if in.UserID == "" {
		return domain.StaffProfile{}, ValidationError{Field: "user_id", Reason: "is required"}
	}
	if in.Name == "" {
		return domain.StaffProfile{}, ValidationError{Field: "name", Reason: "is required"}
	}
	if !in.Role.HasProfile() {
		return domain.StaffProfile{}, ValidationError{Field: "role", Reason: fmt.Sprintf("role %q has no staff profile", in.Role)}
	}
	if in.Role != domain.RoleTaskForce && (in.CanAssess || in.CanResolve) {
		return domain.StaffProfile{}, ValidationError{Field: "can_assess", Reason: "capability flags apply to task force profiles only"}
	}
	p := domain.StaffProfile{
		ID:         uuid.NewString(),
		UserID:     in.UserID,
		Role:       in.Role,
		Name:       in.Name,
		Phone:      strings.TrimSpace(in.Phone),
		CanAssess:  in.CanAssess,
		CanResolve: in.CanResolve,
		CreatedAt:  e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StaffProfile{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.StaffByUser(ctx, tx, p.UserID, p.Role); err == nil {
		return domain.StaffProfile{}, PreconditionError{Reason: fmt.Sprintf("user %s already has a %s profile", p.UserID, p.Role)}
	}
	if err := e.Repo.InsertStaff(ctx, tx, p); err != nil {
		return domain.StaffProfile{}, fmt.Errorf("insert staff profile: %w", err)
	}
	if err := e.auditLog().Append(ctx, tx, events.StaffCreated, events.KindStaff, p.ID, actorID(actor), events.EventPayload{"role": p.Role, "user_id": p.UserID}); err != nil {
		e.warnf("audit %s for staff %s: %v", events.StaffCreated, p.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.StaffProfile{}, err
	}
	return p, nil
}

func (e Engine) ListStaff(ctx context.Context, actor Actor, role domain.Role) ([]domain.StaffProfile, error) {
	if err := requireTopLevel(actor, "list staff"); err != nil {
		return nil, err
	}
	if role != "" && !role.HasProfile() {
		return nil, ValidationError{Field: "role", Reason: fmt.Sprintf("role %q has no staff profile", role)}
	}
	return e.Repo.ListStaff(ctx, role)
}
