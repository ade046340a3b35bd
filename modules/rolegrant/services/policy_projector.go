package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/avigne/Rates-And-Roles/modules/assignment/domain/ports"
	assignmenttypes "github.com/avigne/Rates-And-Roles/modules/assignment/domain/types"
	"github.com/avigne/Rates-And-Roles/modules/rolegrant/domain/types"
	"github.com/avigne/Rates-And-Roles/pkg/authz"
	"github.com/casbin/casbin/v2"
)

// ValidateRoleGrant is the ValueValidator for role subjects: a non-empty
// permission list where every entry parses as "object:action". A plain
// predicate, unlike the CEL-backed rate validator — the injection point does
// not care how the check is built.
func ValidateRoleGrant(value json.RawMessage) error {
	g, err := types.ParseRoleGrant(value)
	if err != nil {
		return assignmenttypes.NewValidationErrorWithPayload("role grant is not a json object", value)
	}
	if len(g.Permissions) == 0 {
		return assignmenttypes.NewValidationErrorWithPayload("at least one permission is required", value)
	}
	for _, p := range g.Permissions {
		if _, _, ok := types.SplitPermission(p); !ok {
			return assignmenttypes.NewValidationErrorWithPayload(fmt.Sprintf("invalid permission %q (want object:action)", p), value)
		}
	}
	return nil
}

// PolicyProjector renders the role grants current at a reference date into
// casbin policy rows, replacing the role-permission seeding scripts of the
// legacy system.
type PolicyProjector struct {
	store ports.AssignmentStore
}

func NewPolicyProjector(store ports.AssignmentStore) PolicyProjector {
	return PolicyProjector{store: store}
}

// PolicyRows returns [subject, domain, object, action] rows for every
// permission of every role grant current at referenceDate, sorted for
// deterministic output.
func (p PolicyProjector) PolicyRows(ctx context.Context, tenantID string, referenceDate string) ([][]string, error) {
	current, err := p.store.ListCurrent(ctx, tenantID, referenceDate)
	if err != nil {
		return nil, err
	}

	domain := authz.DomainFromTenantID(tenantID)
	var rows [][]string
	for _, a := range current {
		if a.Subject.Kind != types.SubjectKindRole {
			continue
		}
		grant, err := types.ParseRoleGrant(a.Value)
		if err != nil {
			return nil, fmt.Errorf("role %q: %w", a.Subject.Key, err)
		}
		subject := authz.SubjectFromRoleSlug(a.Subject.Key)
		for _, perm := range grant.Permissions {
			object, action, ok := types.SplitPermission(perm)
			if !ok {
				return nil, fmt.Errorf("role %q: invalid permission %q", a.Subject.Key, perm)
			}
			rows = append(rows, []string{subject, domain, object, action})
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		for k := range rows[i] {
			if rows[i][k] != rows[j][k] {
				return rows[i][k] < rows[j][k]
			}
		}
		return false
	})
	return rows, nil
}

// Sync replaces the tenant's policy rows in a live enforcer with the
// projection at referenceDate. Dropping the domain first means grants closed
// or deactivated since the last sync stop granting; other tenants' rows are
// left alone.
func (p PolicyProjector) Sync(ctx context.Context, tenantID string, referenceDate string, enforcer *casbin.Enforcer) error {
	rows, err := p.PolicyRows(ctx, tenantID, referenceDate)
	if err != nil {
		return err
	}
	if _, err := enforcer.RemoveFilteredPolicy(1, authz.DomainFromTenantID(tenantID)); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := enforcer.AddPolicy(row[0], row[1], row[2], row[3]); err != nil {
			return err
		}
	}
	return nil
}
