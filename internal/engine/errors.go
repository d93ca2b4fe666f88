package engine

import (
	"errors"
	"fmt"

	"civicdesk/internal/domain"
	"civicdesk/internal/repo"
)

// NotFoundError reports a missing entity, or one the caller may not see.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e NotFoundError) Unwrap() error { return repo.ErrNotFound }

type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// PreconditionError means the case is not in a state that allows the operation.
type PreconditionError struct {
	Status domain.Status
	Reason string
}

func (e PreconditionError) Error() string { return e.Reason }

// ErrConflict is returned when another writer changed the case status first.
var ErrConflict = errors.New("case status changed concurrently; reload and retry")
