package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"civicdesk/internal/config"
	"civicdesk/internal/domain"
	"civicdesk/internal/engine/auth"
	"civicdesk/internal/events"
	"civicdesk/internal/repo"
	"civicdesk/internal/storage"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Auth    auth.Service
	Config  *config.Config
	Storage storage.Store
	Logger  *log.Logger
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Events: events.Writer{DB: db},
		Auth:   auth.Service{Repo: r},
		Config: cfg,
		Now:    time.Now,
	}
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   domain.Role
}

// CaseDetail is a case together with whichever sub-reports exist.
type CaseDetail struct {
	Case       domain.Case              `json:"case"`
	Assessment *domain.AssessmentReport `json:"assessment,omitempty"`
	Resolution *domain.ResolutionReport `json:"resolution,omitempty"`
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) warnf(format string, args ...any) {
	logger := e.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("WARNING: "+format, args...)
}

func (e Engine) cfg() *config.Config {
	if e.Config == nil {
		return config.Default()
	}
	return e.Config
}

// loadCase reads a case inside tx, mapping absence to NotFoundError.
func (e Engine) loadCase(ctx context.Context, tx *sql.Tx, id string) (domain.Case, error) {
	c, err := e.Repo.GetCaseTx(ctx, tx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return c, NotFoundError{Entity: "case", ID: id}
	}
	return c, err
}

// transition persists c, whose status has already been moved to its target,
// against the expected previous status, then appends the history row and the
// audit event. It must run inside tx.
func (e Engine) transition(ctx context.Context, tx *sql.Tx, c *domain.Case, from domain.Status, actor Actor, note string, payload events.EventPayload) error {
	if !c.Status.IsValid() {
		return ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", c.Status)}
	}
	if err := e.save(ctx, tx, c, from); err != nil {
		return err
	}
	old := from
	if _, err := e.Repo.AppendHistory(ctx, tx, domain.StatusHistoryEntry{
		CaseID:    c.ID,
		ActorID:   actorID(actor),
		OldStatus: &old,
		NewStatus: c.Status,
		Note:      note,
		CreatedAt: c.UpdatedAt,
	}); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	if payload == nil {
		payload = events.EventPayload{}
	}
	payload["from"] = from
	payload["to"] = c.Status
	if note != "" {
		payload["note"] = note
	}
	e.audit(ctx, tx, events.CaseStatusChanged, c.ID, actor, payload)
	return nil
}

// save recomputes the handler and writes c if its status is still expected.
func (e Engine) save(ctx context.Context, tx *sql.Tx, c *domain.Case, expected domain.Status) error {
	h := ResolveHandler(*c)
	c.HandlerRole, c.HandlerID = string(h.Role), h.ProfileID
	c.UpdatedAt = e.timestamp()
	ok, err := e.Repo.UpdateCase(ctx, tx, *c, expected)
	if err != nil {
		return fmt.Errorf("update case: %w", err)
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

// audit records an event; failures are logged and do not abort the operation.
func (e Engine) audit(ctx context.Context, tx *sql.Tx, evtType, caseID string, actor Actor, payload events.EventPayload) {
	if err := e.auditLog().Append(ctx, tx, evtType, events.KindCase, caseID, actorID(actor), payload); err != nil {
		e.warnf("audit %s for case %s: %v", evtType, caseID, err)
	}
}

// auditLog is the event writer stamped with the engine clock, so events,
// history rows and case timestamps agree.
func (e Engine) auditLog() events.Writer {
	w := e.Events
	w.Now = e.now
	return w
}

func actorID(a Actor) string {
	if a.UserID == "" {
		return domain.SystemActorID
	}
	return a.UserID
}

func requireTopLevel(a Actor, what string) error {
	if a.Role.IsTopLevel() {
		return nil
	}
	return auth.ForbiddenError{Reason: "only admins can " + what}
}

func requireStatus(c domain.Case, want ...domain.Status) error {
	for _, s := range want {
		if c.Status == s {
			return nil
		}
	}
	return PreconditionError{Status: c.Status, Reason: fmt.Sprintf("case %s must be %s", c.Code, joinStatuses(want))}
}

func joinStatuses(list []domain.Status) string {
	out := ""
	for i, s := range list {
		switch {
		case i == 0:
		case i == len(list)-1:
			out += " or "
		default:
			out += ", "
		}
		out += string(s)
	}
	return out
}

// detail loads a case and its sub-reports outside any transaction.
func (e Engine) detail(ctx context.Context, id string) (CaseDetail, error) {
	c, err := e.loadCase(ctx, nil, id)
	if err != nil {
		return CaseDetail{}, err
	}
	d := CaseDetail{Case: c}
	if a, err := e.Repo.GetAssessment(ctx, nil, c.ID); err == nil {
		d.Assessment = &a
	} else if !errors.Is(err, repo.ErrNotFound) {
		return d, err
	}
	if r, err := e.Repo.GetResolution(ctx, nil, c.ID); err == nil {
		d.Resolution = &r
	} else if !errors.Is(err, repo.ErrNotFound) {
		return d, err
	}
	return d, nil
}

func stringPtr(s string) *string {
	return &s
}
