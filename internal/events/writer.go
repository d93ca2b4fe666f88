package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event types.
const (
	CaseSubmitted       = "case.submitted"
	CaseStatusChanged   = "case.status_changed"
	CaseAssigned        = "case.assigned"
	AssessmentSubmitted = "assessment.submitted"
	AssessmentReviewed  = "assessment.reviewed"
	ResolutionSubmitted = "resolution.submitted"
	ResolutionReviewed  = "resolution.reviewed"
	ResourcesAllocated  = "case.resources_allocated"
	StaffCreated        = "staff.created"
)

// Entity kinds.
const (
	KindCase  = "case"
	KindStaff = "staff"
)

const insertEvent = `INSERT INTO events(ts, type, entity_kind, entity_id, actor_id, payload_json) VALUES (?,?,?,?,?,?)`

// Writer appends to the audit log that /events and webhooks read from.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append records one event. With a non-nil tx the event commits or rolls back
// together with the change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if evtType == "" || entityKind == "" {
		return errors.New("event type and entity kind are required")
	}
	body := []byte(`{}`)
	if len(payload) > 0 {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("encode %s payload: %w", evtType, err)
		}
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	var entity any
	if entityID != "" {
		entity = entityID
	}
	args := []any{now().UTC().Format(time.RFC3339), evtType, entityKind, entity, actorID, string(body)}
	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, insertEvent, args...)
	} else {
		_, err = w.DB.ExecContext(ctx, insertEvent, args...)
	}
	return err
}
