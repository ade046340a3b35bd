package persistence

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/avigne/Rates-And-Roles/modules/assignment/domain/ports"
	"github.com/avigne/Rates-And-Roles/modules/assignment/domain/types"
	"github.com/google/uuid"
)

// AssignmentMemoryStore keeps assignments per tenant and subject. It backs
// embedded and test deployments. A single mutex serializes every operation,
// so the overlap pre-check and the write it guards see the same state; the
// PG store relies on its exclusion constraint for that invariant instead.
type AssignmentMemoryStore struct {
	mu      sync.Mutex
	assigns map[string]map[string][]types.Assignment
	nowUTC  func() time.Time
}

func NewAssignmentMemoryStore() *AssignmentMemoryStore {
	return NewAssignmentMemoryStoreAt(time.Now)
}

func NewAssignmentMemoryStoreAt(now func() time.Time) *AssignmentMemoryStore {
	return &AssignmentMemoryStore{
		assigns: make(map[string]map[string][]types.Assignment),
		nowUTC:  now,
	}
}

func validateWindow(validFrom, validUntil string) error {
	if !types.ValidDate(validFrom) {
		return types.NewValidationError("invalid valid_from")
	}
	if validUntil != "" {
		if !types.ValidDate(validUntil) {
			return types.NewValidationError("invalid valid_until")
		}
		if validUntil < validFrom {
			return types.NewValidationError("valid_until before valid_from")
		}
	}
	return nil
}

func (s *AssignmentMemoryStore) findConflict(tenantID string, subject types.Subject, validFrom, validUntil string, excludeID string) (types.Assignment, bool) {
	for _, a := range s.assigns[tenantID][subject.String()] {
		if a.AssignmentID == excludeID || a.Status != types.StatusActive {
			continue
		}
		if types.RangesOverlap(a.ValidFrom, a.ValidUntil, validFrom, validUntil) {
			return a, true
		}
	}
	return types.Assignment{}, false
}

func (s *AssignmentMemoryStore) Create(_ context.Context, tenantID string, in ports.NewAssignment) (types.Assignment, error) {
	if in.Subject.IsZero() {
		return types.Assignment{}, types.NewValidationError("subject is required")
	}
	if err := validateWindow(in.ValidFrom, in.ValidUntil); err != nil {
		return types.Assignment{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if conflict, ok := s.findConflict(tenantID, in.Subject, in.ValidFrom, in.ValidUntil, ""); ok {
		return types.Assignment{}, types.NewOverlapError("validity window overlaps an active assignment", conflict)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return types.Assignment{}, err
	}
	now := s.nowUTC().UTC().Format(time.RFC3339)
	a := types.Assignment{
		AssignmentID: id.String(),
		Subject:      in.Subject,
		Value:        append([]byte(nil), in.Value...),
		ValidFrom:    in.ValidFrom,
		ValidUntil:   in.ValidUntil,
		Status:       types.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if s.assigns[tenantID] == nil {
		s.assigns[tenantID] = make(map[string][]types.Assignment)
	}
	s.assigns[tenantID][in.Subject.String()] = append(s.assigns[tenantID][in.Subject.String()], a)
	return a, nil
}

func (s *AssignmentMemoryStore) locate(tenantID string, assignmentID string) (string, int, bool) {
	for key, list := range s.assigns[tenantID] {
		for i := range list {
			if list[i].AssignmentID == assignmentID {
				return key, i, true
			}
		}
	}
	return "", 0, false
}

func (s *AssignmentMemoryStore) GetByID(_ context.Context, tenantID string, assignmentID string) (types.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, i, ok := s.locate(tenantID, assignmentID)
	if !ok {
		return types.Assignment{}, types.NewNotFoundError("assignment not found")
	}
	return s.assigns[tenantID][key][i], nil
}

func (s *AssignmentMemoryStore) ResolveCurrent(_ context.Context, tenantID string, subject types.Subject, referenceDate string) (types.Assignment, bool, error) {
	if !types.ValidDate(referenceDate) {
		return types.Assignment{}, false, types.NewValidationError("invalid reference date")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveCurrent(tenantID, subject, referenceDate)
}

// resolveCurrent assumes s.mu is held.
func (s *AssignmentMemoryStore) resolveCurrent(tenantID string, subject types.Subject, referenceDate string) (types.Assignment, bool, error) {
	var matches []types.Assignment
	for _, a := range s.assigns[tenantID][subject.String()] {
		if a.Status != types.StatusActive {
			continue
		}
		if types.RangeContains(a.ValidFrom, a.ValidUntil, referenceDate) {
			matches = append(matches, a)
		}
	}
	if len(matches) == 0 {
		return types.Assignment{}, false, nil
	}
	if len(matches) > 1 {
		// Should be unreachable while the overlap invariant holds; pick the
		// latest valid_from (legacy behavior) and flag the anomaly.
		log.Printf("assignment: overlap anomaly for subject %s at %s: %d active matches", subject, referenceDate, len(matches))
	}
	best := matches[0]
	for _, m := range matches[1:] {
		if m.ValidFrom > best.ValidFrom {
			best = m
		}
	}
	return best, true, nil
}

func (s *AssignmentMemoryStore) History(_ context.Context, tenantID string, subject types.Subject) ([]types.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := append([]types.Assignment(nil), s.assigns[tenantID][subject.String()]...)
	sortNewestFirst(out)
	return out, nil
}

func (s *AssignmentMemoryStore) ListCurrent(_ context.Context, tenantID string, referenceDate string) ([]types.Assignment, error) {
	if !types.ValidDate(referenceDate) {
		return nil, types.NewValidationError("invalid reference date")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.assigns[tenantID]))
	for key := range s.assigns[tenantID] {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []types.Assignment
	for _, key := range keys {
		list := s.assigns[tenantID][key]
		if len(list) == 0 {
			continue
		}
		a, ok, err := s.resolveCurrent(tenantID, list[0].Subject, referenceDate)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *AssignmentMemoryStore) ListAll(_ context.Context, tenantID string) ([]types.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Assignment
	for _, list := range s.assigns[tenantID] {
		out = append(out, list...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Subject != out[j].Subject {
			return out[i].Subject.String() < out[j].Subject.String()
		}
		if out[i].ValidFrom != out[j].ValidFrom {
			return out[i].ValidFrom > out[j].ValidFrom
		}
		return out[i].AssignmentID < out[j].AssignmentID
	})
	return out, nil
}

func (s *AssignmentMemoryStore) Close(_ context.Context, tenantID string, assignmentID string, closeDate string) (types.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, i, ok := s.locate(tenantID, assignmentID)
	if !ok {
		return types.Assignment{}, types.NewNotFoundError("assignment not found")
	}
	if !types.ValidDate(closeDate) {
		return types.Assignment{}, types.NewValidationError("invalid close date")
	}
	a := s.assigns[tenantID][key][i]
	if closeDate < a.ValidFrom {
		return types.Assignment{}, types.NewValidationError("close date before valid_from")
	}
	if a.Status == types.StatusActive {
		if conflict, found := s.findConflict(tenantID, a.Subject, a.ValidFrom, closeDate, a.AssignmentID); found {
			return types.Assignment{}, types.NewOverlapError("close date overlaps an active assignment", conflict)
		}
	}
	a.ValidUntil = closeDate
	a.UpdatedAt = s.nowUTC().UTC().Format(time.RFC3339)
	s.assigns[tenantID][key][i] = a
	return a, nil
}

func (s *AssignmentMemoryStore) Deactivate(_ context.Context, tenantID string, assignmentID string) (types.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, i, ok := s.locate(tenantID, assignmentID)
	if !ok {
		return types.Assignment{}, types.NewNotFoundError("assignment not found")
	}
	a := s.assigns[tenantID][key][i]
	if a.Status == types.StatusInactive {
		return a, nil
	}
	a.Status = types.StatusInactive
	a.UpdatedAt = s.nowUTC().UTC().Format(time.RFC3339)
	s.assigns[tenantID][key][i] = a
	return a, nil
}

func (s *AssignmentMemoryStore) Update(_ context.Context, tenantID string, assignmentID string, patch ports.AssignmentPatch) (types.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, i, ok := s.locate(tenantID, assignmentID)
	if !ok {
		return types.Assignment{}, types.NewNotFoundError("assignment not found")
	}
	if patch.Value == nil && patch.ValidFrom == nil && patch.ValidUntil == nil {
		return types.Assignment{}, types.NewValidationError("at least one patch field is required")
	}

	a := s.assigns[tenantID][key][i]
	if patch.Value != nil {
		a.Value = append([]byte(nil), patch.Value...)
	}
	if patch.ValidFrom != nil {
		a.ValidFrom = *patch.ValidFrom
	}
	if patch.ValidUntil != nil {
		a.ValidUntil = *patch.ValidUntil
	}
	if err := validateWindow(a.ValidFrom, a.ValidUntil); err != nil {
		return types.Assignment{}, err
	}
	if a.Status == types.StatusActive {
		if conflict, found := s.findConflict(tenantID, a.Subject, a.ValidFrom, a.ValidUntil, a.AssignmentID); found {
			return types.Assignment{}, types.NewOverlapError("validity window overlaps an active assignment", conflict)
		}
	}
	a.UpdatedAt = s.nowUTC().UTC().Format(time.RFC3339)
	s.assigns[tenantID][key][i] = a
	return a, nil
}

func (s *AssignmentMemoryStore) Delete(_ context.Context, tenantID string, assignmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, i, ok := s.locate(tenantID, assignmentID)
	if !ok {
		return types.NewNotFoundError("assignment not found")
	}
	list := s.assigns[tenantID][key]
	s.assigns[tenantID][key] = append(list[:i], list[i+1:]...)
	return nil
}

func sortNewestFirst(list []types.Assignment) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].ValidFrom != list[j].ValidFrom {
			return list[i].ValidFrom > list[j].ValidFrom
		}
		return list[i].AssignmentID < list[j].AssignmentID
	})
}
