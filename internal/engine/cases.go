package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"civicdesk/internal/domain"
	"civicdesk/internal/engine/auth"
	"civicdesk/internal/events"
	"civicdesk/internal/repo"
	"civicdesk/internal/storage"
)

// SubmitOptions are the inputs of a new case. Classification fields are
// free-text names resolved against the taxonomy.
type SubmitOptions struct {
	Channel          domain.Channel
	Title            string
	Description      string
	LocationText     string
	Priority         domain.Priority
	ReporterName     string
	ReporterPhone    string
	Sector           string
	SubSector        string
	Community        string
	SmallerCommunity string
	Suburb           string
	Images           []storage.Object
}

const submittedNote = "Report submitted"

// SubmitCase creates a case at submitted through one of the three entry points.
func (e Engine) SubmitCase(ctx context.Context, actor Actor, opts SubmitOptions) (CaseDetail, error) {
	opts.Title = strings.TrimSpace(opts.Title)
	opts.Description = strings.TrimSpace(opts.Description)
	if opts.Title == "" {
		return CaseDetail{}, ValidationError{Field: "title", Reason: "is required"}
	}
	if opts.Description == "" {
		return CaseDetail{}, ValidationError{Field: "description", Reason: "is required"}
	}
	cfg := e.cfg()
	if opts.Priority == "" {
		opts.Priority = domain.Priority(cfg.Cases.DefaultPriority)
	}
	if !opts.Priority.IsValid() {
		return CaseDetail{}, ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", opts.Priority)}
	}
	switch opts.Channel {
	case "":
		opts.Channel = domain.ChannelPublic
	case domain.ChannelPublic, domain.ChannelAgent, domain.ChannelOfficer:
	default:
		return CaseDetail{}, ValidationError{Field: "channel", Reason: fmt.Sprintf("unknown channel %q", opts.Channel)}
	}

	now := e.timestamp()
	c := domain.Case{
		ID:            uuid.NewString(),
		Title:         opts.Title,
		Description:   opts.Description,
		LocationText:  strings.TrimSpace(opts.LocationText),
		Status:        domain.StatusSubmitted,
		Priority:      opts.Priority,
		Channel:       opts.Channel,
		SubmittedBy:   actor.UserID,
		ReporterName:  opts.ReporterName,
		ReporterPhone: opts.ReporterPhone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	// Images go to storage before the write transaction opens, keyed by the
	// case id, so a slow store never holds the database lock.
	c.ImageURLs = e.uploadAll(ctx, opts.Images, "issues", c.ID)
	committed := false
	defer func() {
		if !committed {
			e.discard(ctx, c.ImageURLs)
		}
	}()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CaseDetail{}, err
	}
	defer tx.Rollback()

	switch opts.Channel {
	case domain.ChannelAgent:
		p, err := e.Auth.Profile(ctx, tx, actor.UserID, domain.RoleAgent)
		if err != nil {
			return CaseDetail{}, profileErr(err, "agent profile", actor.UserID)
		}
		c.AssignedAgentID = stringPtr(p.ID)
	case domain.ChannelOfficer:
		p, err := e.Auth.Profile(ctx, tx, actor.UserID, domain.RoleOfficer)
		if err != nil {
			return CaseDetail{}, profileErr(err, "officer profile", actor.UserID)
		}
		c.AssignedOfficerID = stringPtr(p.ID)
	}

	n, err := e.Repo.NextCaseNumber(ctx, tx, "cases")
	if err != nil {
		return CaseDetail{}, err
	}
	c.Code = fmt.Sprintf("%s-%0*d", cfg.Cases.CodePrefix, cfg.Cases.CodeWidth, n)
	if err := e.classify(ctx, tx, &c, opts); err != nil {
		return CaseDetail{}, err
	}
	h := ResolveHandler(c)
	c.HandlerRole, c.HandlerID = string(h.Role), h.ProfileID

	if err := e.Repo.InsertCase(ctx, tx, c); err != nil {
		return CaseDetail{}, fmt.Errorf("insert case: %w", err)
	}
	if _, err := e.Repo.AppendHistory(ctx, tx, domain.StatusHistoryEntry{
		CaseID:    c.ID,
		ActorID:   domain.SystemActorID,
		NewStatus: domain.StatusSubmitted,
		Note:      submittedNote,
		CreatedAt: now,
	}); err != nil {
		return CaseDetail{}, fmt.Errorf("append history: %w", err)
	}
	e.audit(ctx, tx, events.CaseSubmitted, c.ID, actor, events.EventPayload{
		"case_code": c.Code,
		"channel":   c.Channel,
		"priority":  c.Priority,
		"images":    len(c.ImageURLs),
	})
	if err := tx.Commit(); err != nil {
		return CaseDetail{}, err
	}
	committed = true
	return CaseDetail{Case: c}, nil
}

// classify resolves taxonomy names by exact match. Unknown names stay null.
func (e Engine) classify(ctx context.Context, tx *sql.Tx, c *domain.Case, opts SubmitOptions) error {
	lookup := func(name string, find func(string) (string, error)) (*string, error) {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, nil
		}
		id, err := find(name)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &id, nil
	}
	var err error
	if c.SectorID, err = lookup(opts.Sector, func(n string) (string, error) {
		s, err := e.Repo.SectorByName(ctx, tx, n)
		return s.ID, err
	}); err != nil {
		return err
	}
	if c.SectorID != nil {
		if c.SubSectorID, err = lookup(opts.SubSector, func(n string) (string, error) {
			s, err := e.Repo.SubSectorByName(ctx, tx, *c.SectorID, n)
			return s.ID, err
		}); err != nil {
			return err
		}
	}
	location := func(kind domain.LocationKind, parent *string) func(string) (string, error) {
		return func(n string) (string, error) {
			l, err := e.Repo.LocationByName(ctx, tx, kind, n, parent)
			return l.ID, err
		}
	}
	if c.CommunityID, err = lookup(opts.Community, location(domain.LocationCommunity, nil)); err != nil {
		return err
	}
	if c.SmallerCommunityID, err = lookup(opts.SmallerCommunity, location(domain.LocationSmallerCommunity, c.CommunityID)); err != nil {
		return err
	}
	if c.SuburbID, err = lookup(opts.Suburb, location(domain.LocationSuburb, c.SmallerCommunityID)); err != nil {
		return err
	}
	return nil
}

// uploadAll stores each image and returns the URLs that succeeded. Failures
// are logged; the submission continues without the image.
func (e Engine) uploadAll(ctx context.Context, objs []storage.Object, category, folder string) []string {
	urls := []string{}
	if len(objs) == 0 {
		return urls
	}
	if e.Storage == nil {
		e.warnf("%d image(s) for %s dropped: no file storage configured", len(objs), folder)
		return urls
	}
	for _, obj := range objs {
		url, err := e.Storage.Upload(ctx, obj, category, folder)
		if err != nil {
			e.warnf("upload %q for %s: %v", obj.Name, folder, err)
			continue
		}
		urls = append(urls, url)
	}
	return urls
}

func (e Engine) discard(ctx context.Context, urls []string) {
	if e.Storage == nil {
		return
	}
	for _, u := range urls {
		if err := e.Storage.Delete(ctx, u); err != nil {
			e.warnf("remove orphaned upload %s: %v", u, err)
		}
	}
}

func profileErr(err error, entity, userID string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return NotFoundError{Entity: entity, ID: userID}
	}
	return err
}

// ListOptions filter the caller's default view.
type ListOptions struct {
	Statuses []domain.Status
	Priority domain.Priority
	Limit    int
	Cursor   string
}

// ListCases returns the caller's default view, newest first, with a cursor
// only when another page exists.
func (e Engine) ListCases(ctx context.Context, actor Actor, opts ListOptions) ([]domain.Case, string, error) {
	for _, s := range opts.Statuses {
		if !s.IsValid() {
			return nil, "", ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)}
		}
	}
	if opts.Priority != "" && !opts.Priority.IsValid() {
		return nil, "", ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", opts.Priority)}
	}
	subject, err := e.Auth.Subject(ctx, actor.UserID, actor.Role)
	if err != nil {
		return nil, "", err
	}
	f, ok := auth.ViewFor(actor.Role).Filters(opts.Statuses, subject)
	if !ok {
		return []domain.Case{}, "", nil
	}
	f.Priority = string(opts.Priority)
	limit := normalizeLimit(opts.Limit)
	f.Limit = limit + 1
	if opts.Cursor != "" {
		ts, id, ok := strings.Cut(opts.Cursor, "|")
		if !ok || ts == "" || id == "" {
			return nil, "", ValidationError{Field: "cursor", Reason: "malformed cursor"}
		}
		f.CursorCreatedAt, f.CursorID = ts, id
	}
	cases, err := e.Repo.ListCases(ctx, f)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(cases) > limit {
		cases = cases[:limit]
		last := cases[limit-1]
		next = last.CreatedAt + "|" + last.ID
	}
	return cases, next, nil
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 200:
		return 200
	default:
		return limit
	}
}

// visible loads a case and hides it from callers outside their view scope.
func (e Engine) visible(ctx context.Context, actor Actor, id string) (domain.Case, error) {
	c, err := e.loadCase(ctx, nil, id)
	if err != nil {
		return c, err
	}
	subject, err := e.Auth.Subject(ctx, actor.UserID, actor.Role)
	if err != nil {
		return c, err
	}
	if !auth.ViewFor(actor.Role).Visible(c, subject) {
		return domain.Case{}, NotFoundError{Entity: "case", ID: id}
	}
	return c, nil
}

func (e Engine) GetCase(ctx context.Context, actor Actor, id string) (CaseDetail, error) {
	c, err := e.visible(ctx, actor, id)
	if err != nil {
		return CaseDetail{}, err
	}
	return e.detail(ctx, c.ID)
}

// History returns the status ledger of a case, oldest first.
func (e Engine) History(ctx context.Context, actor Actor, id string) ([]domain.StatusHistoryEntry, error) {
	c, err := e.visible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListHistory(ctx, c.ID)
}
