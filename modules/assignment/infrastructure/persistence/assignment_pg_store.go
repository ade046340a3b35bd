package persistence

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/avigne/Rates-And-Roles/modules/assignment/domain/ports"
	"github.com/avigne/Rates-And-Roles/modules/assignment/domain/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AssignmentPGStore persists assignments in rates.assignments. The table
// carries a gist exclusion constraint on (tenant, subject, validity range)
// for ACTIVE rows, so a concurrent create that slips past the in-transaction
// pre-check still fails with 23P01 instead of corrupting the invariant.
type AssignmentPGStore struct {
	pool pgBeginner
}

func NewAssignmentPGStore(pool pgBeginner) ports.AssignmentStore {
	return &AssignmentPGStore{pool: pool}
}

const pgExclusionViolation = "23P01"

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation
}

const assignmentColumns = `
	  assignment_id::text,
	  subject_kind,
	  subject_key,
	  value,
	  valid_from::text,
	  COALESCE(valid_until::text, '') AS valid_until,
	  status,
	  created_at,
	  updated_at`

func scanAssignment(row pgx.Row) (types.Assignment, error) {
	var a types.Assignment
	var createdAt, updatedAt time.Time
	if err := row.Scan(
		&a.AssignmentID,
		&a.Subject.Kind,
		&a.Subject.Key,
		&a.Value,
		&a.ValidFrom,
		&a.ValidUntil,
		&a.Status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return types.Assignment{}, err
	}
	a.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	a.UpdatedAt = updatedAt.UTC().Format(time.RFC3339)
	return a, nil
}

func collectAssignments(rows pgx.Rows) ([]types.Assignment, error) {
	defer rows.Close()
	var out []types.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *AssignmentPGStore) begin(ctx context.Context, tenantID string) (pgx.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		_ = tx.Rollback(context.Background())
		return nil, err
	}
	return tx, nil
}

func nullableDate(d string) any {
	if d == "" {
		return nil
	}
	return d
}

// findConflictTx returns the ACTIVE sibling whose window intersects the
// candidate window, excluding excludeID. Inclusive bounds, NULL valid_until
// treated as unbounded.
func findConflictTx(ctx context.Context, tx pgx.Tx, tenantID string, subject types.Subject, validFrom, validUntil string, excludeID string) (types.Assignment, bool, error) {
	row := tx.QueryRow(ctx, `
	SELECT`+assignmentColumns+`
	FROM rates.assignments
	WHERE tenant_id = $1::uuid
	  AND subject_kind = $2
	  AND subject_key = $3
	  AND status = 'ACTIVE'
	  AND assignment_id::text <> $6
	  AND (valid_until IS NULL OR valid_until >= $4::date)
	  AND ($5::date IS NULL OR valid_from <= $5::date)
	ORDER BY valid_from DESC
	LIMIT 1
	`, tenantID, subject.Kind, subject.Key, validFrom, nullableDate(validUntil), excludeID)

	conflict, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Assignment{}, false, nil
		}
		return types.Assignment{}, false, err
	}
	return conflict, true, nil
}

// overlapFromExclusion re-reads the sibling behind a 23P01 so the overlap
// error carries the conflicting record. The transaction that raised the
// violation is aborted, so this needs a fresh one. The constraint already
// proved a conflict exists; a miss here only degrades the error payload.
func (s *AssignmentPGStore) overlapFromExclusion(ctx context.Context, tenantID string, subject types.Subject, validFrom, validUntil, excludeID, message string) error {
	var conflict types.Assignment
	if tx, err := s.begin(ctx, tenantID); err == nil {
		if c, found, err := findConflictTx(ctx, tx, tenantID, subject, validFrom, validUntil, excludeID); err == nil && found {
			conflict = c
		}
		_ = tx.Rollback(context.Background())
	}
	return types.NewOverlapError(message, conflict)
}

func (s *AssignmentPGStore) Create(ctx context.Context, tenantID string, in ports.NewAssignment) (types.Assignment, error) {
	if in.Subject.IsZero() {
		return types.Assignment{}, types.NewValidationError("subject is required")
	}
	if err := validateWindow(in.ValidFrom, in.ValidUntil); err != nil {
		return types.Assignment{}, err
	}

	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.Assignment{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if conflict, found, err := findConflictTx(ctx, tx, tenantID, in.Subject, in.ValidFrom, in.ValidUntil, ""); err != nil {
		return types.Assignment{}, err
	} else if found {
		return types.Assignment{}, types.NewOverlapError("validity window overlaps an active assignment", conflict)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return types.Assignment{}, err
	}

	row := tx.QueryRow(ctx, `
	INSERT INTO rates.assignments (
	  tenant_id, assignment_id, subject_kind, subject_key, value, valid_from, valid_until, status
	) VALUES ($1::uuid, $2::uuid, $3, $4, $5::jsonb, $6::date, $7::date, 'ACTIVE')
	RETURNING`+assignmentColumns+`
	`, tenantID, id.String(), in.Subject.Kind, in.Subject.Key, []byte(in.Value), in.ValidFrom, nullableDate(in.ValidUntil))

	a, err := scanAssignment(row)
	if err != nil {
		if isExclusionViolation(err) {
			return types.Assignment{}, s.overlapFromExclusion(ctx, tenantID, in.Subject, in.ValidFrom, in.ValidUntil, "", "validity window overlaps an active assignment")
		}
		return types.Assignment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.Assignment{}, err
	}
	return a, nil
}

func (s *AssignmentPGStore) getByIDTx(ctx context.Context, tx pgx.Tx, tenantID string, assignmentID string, forUpdate bool) (types.Assignment, error) {
	suffix := ""
	if forUpdate {
		suffix = " FOR UPDATE"
	}
	row := tx.QueryRow(ctx, `
	SELECT`+assignmentColumns+`
	FROM rates.assignments
	WHERE tenant_id = $1::uuid AND assignment_id::text = $2`+suffix+`
	`, tenantID, assignmentID)
	a, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Assignment{}, types.NewNotFoundError("assignment not found")
		}
		return types.Assignment{}, err
	}
	return a, nil
}

func (s *AssignmentPGStore) GetByID(ctx context.Context, tenantID string, assignmentID string) (types.Assignment, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.Assignment{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	a, err := s.getByIDTx(ctx, tx, tenantID, assignmentID, false)
	if err != nil {
		return types.Assignment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.Assignment{}, err
	}
	return a, nil
}

func (s *AssignmentPGStore) ResolveCurrent(ctx context.Context, tenantID string, subject types.Subject, referenceDate string) (types.Assignment, bool, error) {
	if !types.ValidDate(referenceDate) {
		return types.Assignment{}, false, types.NewValidationError("invalid reference date")
	}

	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.Assignment{}, false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
	SELECT`+assignmentColumns+`
	FROM rates.assignments
	WHERE tenant_id = $1::uuid
	  AND subject_kind = $2
	  AND subject_key = $3
	  AND status = 'ACTIVE'
	  AND valid_from <= $4::date
	  AND (valid_until IS NULL OR valid_until >= $4::date)
	ORDER BY valid_from DESC
	`, tenantID, subject.Kind, subject.Key, referenceDate)
	if err != nil {
		return types.Assignment{}, false, err
	}
	matches, err := collectAssignments(rows)
	if err != nil {
		return types.Assignment{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.Assignment{}, false, err
	}

	if len(matches) == 0 {
		return types.Assignment{}, false, nil
	}
	if len(matches) > 1 {
		// Should be unreachable while the exclusion constraint holds.
		log.Printf("assignment: overlap anomaly for subject %s at %s: %d active matches", subject, referenceDate, len(matches))
	}
	return matches[0], true, nil
}

func (s *AssignmentPGStore) History(ctx context.Context, tenantID string, subject types.Subject) ([]types.Assignment, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
	SELECT`+assignmentColumns+`
	FROM rates.assignments
	WHERE tenant_id = $1::uuid AND subject_kind = $2 AND subject_key = $3
	ORDER BY valid_from DESC, assignment_id::text ASC
	`, tenantID, subject.Kind, subject.Key)
	if err != nil {
		return nil, err
	}
	out, err := collectAssignments(rows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *AssignmentPGStore) ListCurrent(ctx context.Context, tenantID string, referenceDate string) ([]types.Assignment, error) {
	if !types.ValidDate(referenceDate) {
		return nil, types.NewValidationError("invalid reference date")
	}

	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
	SELECT DISTINCT ON (subject_kind, subject_key)`+assignmentColumns+`
	FROM rates.assignments
	WHERE tenant_id = $1::uuid
	  AND status = 'ACTIVE'
	  AND valid_from <= $2::date
	  AND (valid_until IS NULL OR valid_until >= $2::date)
	ORDER BY subject_kind, subject_key, valid_from DESC
	`, tenantID, referenceDate)
	if err != nil {
		return nil, err
	}
	out, err := collectAssignments(rows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *AssignmentPGStore) ListAll(ctx context.Context, tenantID string) ([]types.Assignment, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
	SELECT`+assignmentColumns+`
	FROM rates.assignments
	WHERE tenant_id = $1::uuid
	ORDER BY subject_kind, subject_key, valid_from DESC, assignment_id::text ASC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	out, err := collectAssignments(rows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *AssignmentPGStore) writeBack(ctx context.Context, tx pgx.Tx, tenantID string, a types.Assignment) (types.Assignment, error) {
	row := tx.QueryRow(ctx, `
	UPDATE rates.assignments
	SET value = $3::jsonb,
	    valid_from = $4::date,
	    valid_until = $5::date,
	    status = $6,
	    updated_at = now()
	WHERE tenant_id = $1::uuid AND assignment_id::text = $2
	RETURNING`+assignmentColumns+`
	`, tenantID, a.AssignmentID, []byte(a.Value), a.ValidFrom, nullableDate(a.ValidUntil), a.Status)
	out, err := scanAssignment(row)
	if err != nil {
		if isExclusionViolation(err) {
			return types.Assignment{}, s.overlapFromExclusion(ctx, tenantID, a.Subject, a.ValidFrom, a.ValidUntil, a.AssignmentID, "validity window overlaps an active assignment")
		}
		return types.Assignment{}, err
	}
	return out, nil
}

func (s *AssignmentPGStore) Close(ctx context.Context, tenantID string, assignmentID string, closeDate string) (types.Assignment, error) {
	if !types.ValidDate(closeDate) {
		return types.Assignment{}, types.NewValidationError("invalid close date")
	}

	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.Assignment{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	a, err := s.getByIDTx(ctx, tx, tenantID, assignmentID, true)
	if err != nil {
		return types.Assignment{}, err
	}
	if closeDate < a.ValidFrom {
		return types.Assignment{}, types.NewValidationError("close date before valid_from")
	}
	if a.Status == types.StatusActive {
		if conflict, found, err := findConflictTx(ctx, tx, tenantID, a.Subject, a.ValidFrom, closeDate, a.AssignmentID); err != nil {
			return types.Assignment{}, err
		} else if found {
			return types.Assignment{}, types.NewOverlapError("close date overlaps an active assignment", conflict)
		}
	}

	a.ValidUntil = closeDate
	out, err := s.writeBack(ctx, tx, tenantID, a)
	if err != nil {
		return types.Assignment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.Assignment{}, err
	}
	return out, nil
}

func (s *AssignmentPGStore) Deactivate(ctx context.Context, tenantID string, assignmentID string) (types.Assignment, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.Assignment{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	a, err := s.getByIDTx(ctx, tx, tenantID, assignmentID, true)
	if err != nil {
		return types.Assignment{}, err
	}
	if a.Status == types.StatusInactive {
		if err := tx.Commit(ctx); err != nil {
			return types.Assignment{}, err
		}
		return a, nil
	}

	a.Status = types.StatusInactive
	out, err := s.writeBack(ctx, tx, tenantID, a)
	if err != nil {
		return types.Assignment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.Assignment{}, err
	}
	return out, nil
}

func (s *AssignmentPGStore) Update(ctx context.Context, tenantID string, assignmentID string, patch ports.AssignmentPatch) (types.Assignment, error) {
	if patch.Value == nil && patch.ValidFrom == nil && patch.ValidUntil == nil {
		return types.Assignment{}, types.NewValidationError("at least one patch field is required")
	}

	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.Assignment{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	a, err := s.getByIDTx(ctx, tx, tenantID, assignmentID, true)
	if err != nil {
		return types.Assignment{}, err
	}
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
		if conflict, found, err := findConflictTx(ctx, tx, tenantID, a.Subject, a.ValidFrom, a.ValidUntil, a.AssignmentID); err != nil {
			return types.Assignment{}, err
		} else if found {
			return types.Assignment{}, types.NewOverlapError("validity window overlaps an active assignment", conflict)
		}
	}

	out, err := s.writeBack(ctx, tx, tenantID, a)
	if err != nil {
		return types.Assignment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.Assignment{}, err
	}
	return out, nil
}

func (s *AssignmentPGStore) Delete(ctx context.Context, tenantID string, assignmentID string) error {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	tag, err := tx.Exec(ctx, `
	DELETE FROM rates.assignments
	WHERE tenant_id = $1::uuid AND assignment_id::text = $2
	`, tenantID, assignmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return types.NewNotFoundError("assignment not found")
	}
	return tx.Commit(ctx)
}
