package services

import (
	"context"

	"github.com/avigne/Rates-And-Roles/modules/assignment/domain/ports"
	"github.com/avigne/Rates-And-Roles/modules/assignment/domain/types"
)

// AssignmentsFacade is the public face of the resolver: it binds a store to
// the caller-supplied value validator, so the store stays payload-agnostic.
type AssignmentsFacade struct {
	store    ports.AssignmentStore
	validate ports.ValueValidator
}

func NewAssignmentsFacade(store ports.AssignmentStore, validate ports.ValueValidator) AssignmentsFacade {
	return AssignmentsFacade{store: store, validate: validate}
}

func (f AssignmentsFacade) checkValue(value []byte) error {
	if f.validate == nil {
		return nil
	}
	if err := f.validate(value); err != nil {
		if types.IsValidationError(err) {
			return err
		}
		return types.NewValidationErrorWithPayload(err.Error(), value)
	}
	return nil
}

func (f AssignmentsFacade) Create(ctx context.Context, tenantID string, in ports.NewAssignment) (types.Assignment, error) {
	if err := f.checkValue(in.Value); err != nil {
		return types.Assignment{}, err
	}
	return f.store.Create(ctx, tenantID, in)
}

func (f AssignmentsFacade) GetByID(ctx context.Context, tenantID string, assignmentID string) (types.Assignment, error) {
	return f.store.GetByID(ctx, tenantID, assignmentID)
}

func (f AssignmentsFacade) ResolveCurrent(ctx context.Context, tenantID string, subject types.Subject, referenceDate string) (types.Assignment, bool, error) {
	return f.store.ResolveCurrent(ctx, tenantID, subject, referenceDate)
}

func (f AssignmentsFacade) History(ctx context.Context, tenantID string, subject types.Subject) ([]types.Assignment, error) {
	return f.store.History(ctx, tenantID, subject)
}

func (f AssignmentsFacade) ListCurrent(ctx context.Context, tenantID string, referenceDate string) ([]types.Assignment, error) {
	return f.store.ListCurrent(ctx, tenantID, referenceDate)
}

func (f AssignmentsFacade) ListAll(ctx context.Context, tenantID string) ([]types.Assignment, error) {
	return f.store.ListAll(ctx, tenantID)
}

func (f AssignmentsFacade) Close(ctx context.Context, tenantID string, assignmentID string, closeDate string) (types.Assignment, error) {
	return f.store.Close(ctx, tenantID, assignmentID, closeDate)
}

func (f AssignmentsFacade) Deactivate(ctx context.Context, tenantID string, assignmentID string) (types.Assignment, error) {
	return f.store.Deactivate(ctx, tenantID, assignmentID)
}

func (f AssignmentsFacade) Update(ctx context.Context, tenantID string, assignmentID string, patch ports.AssignmentPatch) (types.Assignment, error) {
	if patch.Value != nil {
		if err := f.checkValue(patch.Value); err != nil {
			return types.Assignment{}, err
		}
	}
	return f.store.Update(ctx, tenantID, assignmentID, patch)
}

func (f AssignmentsFacade) Delete(ctx context.Context, tenantID string, assignmentID string) error {
	return f.store.Delete(ctx, tenantID, assignmentID)
}
