package services

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/avigne/Rates-And-Roles/modules/assignment/domain/ports"
	assignmenttypes "github.com/avigne/Rates-And-Roles/modules/assignment/domain/types"
	"github.com/avigne/Rates-And-Roles/modules/assignment/infrastructure/persistence"
	"github.com/avigne/Rates-And-Roles/pkg/authz"
)

const testTenant = "t-demo"

func seedGrant(t *testing.T, store *persistence.AssignmentMemoryStore, role, value, from, until string) assignmenttypes.Assignment {
	t.Helper()
	a, err := store.Create(context.Background(), testTenant, ports.NewAssignment{
		Subject:    assignmenttypes.Subject{Kind: "role", Key: role},
		Value:      json.RawMessage(value),
		ValidFrom:  from,
		ValidUntil: until,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return a
}

func TestValidateRoleGrant(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		value string
		valid bool
	}{
		{"ok", `{"permissions":["rates.assignments:read","iam.role-grants:admin"]}`, true},
		{"empty list", `{"permissions":[]}`, false},
		{"missing field", `{}`, false},
		{"bad entry", `{"permissions":["no-colon"]}`, false},
		{"not an object", `"x"`, false},
	}
	for _, c := range cases {
		err := ValidateRoleGrant(json.RawMessage(c.value))
		if c.valid && err != nil {
			t.Fatalf("%s: err=%v", c.name, err)
		}
		if !c.valid && !assignmenttypes.IsValidationError(err) {
			t.Fatalf("%s: err=%v", c.name, err)
		}
	}
}

func TestPolicyRows(t *testing.T) {
	t.Parallel()
	store := persistence.NewAssignmentMemoryStore()
	p := NewPolicyProjector(store)
	ctx := context.Background()

	seedGrant(t, store, "rate-viewer", `{"permissions":["rates.ratecards:read","rates.assignments:read"]}`, "2024-01-01", "")
	seedGrant(t, store, "rate-admin", `{"permissions":["rates.assignments:admin"]}`, "2024-01-01", "")
	// Expired grants are not projected.
	seedGrant(t, store, "old-role", `{"permissions":["rates.assignments:read"]}`, "2023-01-01", "2023-12-31")
	// Rate subjects are not grants.
	if _, err := store.Create(ctx, testTenant, ports.NewAssignment{
		Subject:   assignmenttypes.Subject{Kind: "rate", Key: "g1/d1"},
		Value:     json.RawMessage(`{"hourly_rate":"25.00"}`),
		ValidFrom: "2024-01-01",
	}); err != nil {
		t.Fatal(err)
	}

	rows, err := p.PolicyRows(ctx, testTenant, "2024-08-01")
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"role:rate-admin", "t-demo", "rates.assignments", "admin"},
		{"role:rate-viewer", "t-demo", "rates.assignments", "read"},
		{"role:rate-viewer", "t-demo", "rates.ratecards", "read"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows=%v", rows)
	}
}

func TestPolicyRows_BadGrantPayload(t *testing.T) {
	t.Parallel()
	store := persistence.NewAssignmentMemoryStore()
	p := NewPolicyProjector(store)

	// The store accepts anything; validation lives in the facade. A grant
	// written without it still fails projection loudly.
	seedGrant(t, store, "broken", `{"permissions":["no-colon"]}`, "2024-01-01", "")

	if _, err := p.PolicyRows(context.Background(), testTenant, "2024-08-01"); err == nil {
		t.Fatal("expected error")
	}
}

func newTestAuthorizer(t *testing.T) *authz.Authorizer {
	t.Helper()
	dir := t.TempDir()
	model := filepath.Join(dir, "model.conf")
	policy := filepath.Join(dir, "policy.csv")
	if err := os.WriteFile(model, []byte(`
[request_definition]
r = sub, dom, obj, act

[policy_definition]
p = sub, dom, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.dom == p.dom && r.obj == p.obj && r.act == p.act
`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(policy, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := authz.NewAuthorizer(model, policy, authz.ModeEnforce)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestSync(t *testing.T) {
	t.Parallel()
	store := persistence.NewAssignmentMemoryStore()
	p := NewPolicyProjector(store)
	ctx := context.Background()
	a := newTestAuthorizer(t)

	seedGrant(t, store, "rate-viewer", `{"permissions":["rates.ratecards:read"]}`, "2024-01-01", "")

	if err := p.Sync(ctx, testTenant, "2024-08-01", a.Enforcer()); err != nil {
		t.Fatal(err)
	}

	allowed, enforced, err := a.Authorize("role:rate-viewer", "t-demo", authz.ObjectRateCards, authz.ActionRead)
	if err != nil {
		t.Fatal(err)
	}
	if !enforced || !allowed {
		t.Fatalf("allowed=%v enforced=%v", allowed, enforced)
	}

	// Re-running with unchanged grants keeps the same rows.
	if err := p.Sync(ctx, testTenant, "2024-08-01", a.Enforcer()); err != nil {
		t.Fatal(err)
	}
	if allowed, _, err := a.Authorize("role:rate-viewer", "t-demo", authz.ObjectRateCards, authz.ActionRead); err != nil || !allowed {
		t.Fatalf("allowed=%v err=%v", allowed, err)
	}
}

func TestSync_RevokedGrantStopsGranting(t *testing.T) {
	t.Parallel()
	store := persistence.NewAssignmentMemoryStore()
	p := NewPolicyProjector(store)
	ctx := context.Background()
	a := newTestAuthorizer(t)

	g := seedGrant(t, store, "rate-viewer", `{"permissions":["rates.ratecards:read"]}`, "2024-01-01", "")

	if err := p.Sync(ctx, testTenant, "2024-08-01", a.Enforcer()); err != nil {
		t.Fatal(err)
	}
	if allowed, _, err := a.Authorize("role:rate-viewer", "t-demo", authz.ObjectRateCards, authz.ActionRead); err != nil || !allowed {
		t.Fatalf("pre-close: allowed=%v err=%v", allowed, err)
	}

	// Closing the grant before the reference date must revoke on the next
	// sync, not just stop adding.
	if _, err := store.Close(ctx, testTenant, g.AssignmentID, "2024-06-30"); err != nil {
		t.Fatal(err)
	}
	if err := p.Sync(ctx, testTenant, "2024-08-01", a.Enforcer()); err != nil {
		t.Fatal(err)
	}
	if allowed, _, err := a.Authorize("role:rate-viewer", "t-demo", authz.ObjectRateCards, authz.ActionRead); err != nil || allowed {
		t.Fatalf("post-close: allowed=%v err=%v", allowed, err)
	}
}

func TestSync_LeavesOtherTenantsAlone(t *testing.T) {
	t.Parallel()
	store := persistence.NewAssignmentMemoryStore()
	p := NewPolicyProjector(store)
	ctx := context.Background()
	a := newTestAuthorizer(t)

	if _, err := a.Enforcer().AddPolicy("role:rate-viewer", "t-other", "rates.ratecards", "read"); err != nil {
		t.Fatal(err)
	}

	if err := p.Sync(ctx, testTenant, "2024-08-01", a.Enforcer()); err != nil {
		t.Fatal(err)
	}
	if allowed, _, err := a.Authorize("role:rate-viewer", "t-other", authz.ObjectRateCards, authz.ActionRead); err != nil || !allowed {
		t.Fatalf("allowed=%v err=%v", allowed, err)
	}
}
