package ports

import (
	"context"
	"encoding/json"

	"github.com/avigne/Rates-And-Roles/modules/assignment/domain/types"
)

// ValueValidator checks the shape of an assignment value at create/update
// time. The store itself never introspects the payload.
type ValueValidator func(value json.RawMessage) error

type NewAssignment struct {
	Subject    types.Subject
	Value      json.RawMessage
	ValidFrom  string
	ValidUntil string
}

// AssignmentPatch carries a partial update. Nil fields are left unchanged;
// an empty *ValidUntil clears the end date back to open-ended.
type AssignmentPatch struct {
	Value      json.RawMessage
	ValidFrom  *string
	ValidUntil *string
}

type AssignmentStore interface {
	Create(ctx context.Context, tenantID string, in NewAssignment) (types.Assignment, error)
	GetByID(ctx context.Context, tenantID string, assignmentID string) (types.Assignment, error)
	ResolveCurrent(ctx context.Context, tenantID string, subject types.Subject, referenceDate string) (types.Assignment, bool, error)
	History(ctx context.Context, tenantID string, subject types.Subject) ([]types.Assignment, error)
	ListCurrent(ctx context.Context, tenantID string, referenceDate string) ([]types.Assignment, error)
	ListAll(ctx context.Context, tenantID string) ([]types.Assignment, error)
	Close(ctx context.Context, tenantID string, assignmentID string, closeDate string) (types.Assignment, error)
	Deactivate(ctx context.Context, tenantID string, assignmentID string) (types.Assignment, error)
	Update(ctx context.Context, tenantID string, assignmentID string, patch AssignmentPatch) (types.Assignment, error)
	Delete(ctx context.Context, tenantID string, assignmentID string) error
}
