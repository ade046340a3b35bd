package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/avigne/Rates-And-Roles/modules/assignment/infrastructure/persistence"
)

const (
	testTenantID = "7d9a2a70-0d6e-4bcb-9d7a-2a700d6e1111"
	testDomain   = "demo.localhost"
)

func writeTestConfig(t *testing.T) {
	t.Helper()
	dir := t.TempDir()

	allowlist := filepath.Join(dir, "allowlist.yaml")
	if err := os.WriteFile(allowlist, []byte(`version: 1
entrypoints:
  server:
    routes:
      - path: /health
        methods: [GET]
        route_class: ops
      - path: /healthz
        methods: [GET]
        route_class: ops
`), 0o644); err != nil {
		t.Fatal(err)
	}

	model := filepath.Join(dir, "model.conf")
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

	policy := filepath.Join(dir, "policy.csv")
	rows := []string{
		"p, role:tenant-admin, " + testTenantID + ", rates.assignments, read",
		"p, role:tenant-admin, " + testTenantID + ", rates.assignments, admin",
		"p, role:tenant-admin, " + testTenantID + ", rates.ratecards, read",
		"p, role:tenant-admin, " + testTenantID + ", iam.role-grants, read",
		"p, role:tenant-admin, " + testTenantID + ", iam.role-grants, admin",
	}
	if err := os.WriteFile(policy, []byte(strings.Join(rows, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ALLOWLIST_PATH", allowlist)
	t.Setenv("AUTHZ_MODEL_PATH", model)
	t.Setenv("AUTHZ_POLICY_PATH", policy)
	t.Setenv("AUTHZ_MODE", "enforce")
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	writeTestConfig(t)

	h, err := NewHandlerWithOptions(HandlerOptions{
		Tenants:         map[string]Tenant{testDomain: {ID: testTenantID, Domain: testDomain, Name: "Demo"}},
		AssignmentStore: persistence.NewAssignmentMemoryStore(),
		NowUTC:          func() time.Time { return time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func doJSON(t *testing.T, h http.Handler, method, target, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	req.Host = testDomain
	if role != "" {
		req.Header.Set("X-Role", role)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_HealthSkipsTenantAndAuthz(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Host = "unknown.localhost"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestHandler_UnknownTenant404(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/rates/api/assignments", nil)
	req.Host = "unknown.localhost"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var env struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Code != "tenant_not_found" {
		t.Fatalf("code=%q", env.Code)
	}
}

func TestHandler_AnonymousForbidden(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/rates/api/assignments?subject_kind=rate&subject_key=g1%2Fd1", "", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandler_RateLifecycle(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/rates/api/assignments", "tenant-admin",
		`{"subject_kind":"rate","subject_key":"g1/d1","value":{"hourly_rate":"25.00","base_salary":"3500.00"},"valid_from":"2024-01-01","valid_until":"2024-06-30"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/rates/api/assignments", "tenant-admin",
		`{"subject_kind":"rate","subject_key":"g1/d1","value":{"hourly_rate":"30.00","base_salary":"4000.00"},"valid_from":"2024-07-01"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create 2: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/rates/api/assignments?subject_kind=rate&subject_key=g1%2Fd1&as_of=2024-03-15", "tenant-admin", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resolved struct {
		Assignment struct {
			ValidFrom string `json:"valid_from"`
		} `json:"assignment"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resolved); err != nil {
		t.Fatal(err)
	}
	if resolved.Assignment.ValidFrom != "2024-01-01" {
		t.Fatalf("resolved=%+v", resolved)
	}

	rec = doJSON(t, h, http.MethodGet, "/rates/api/assignments/history?subject_kind=rate&subject_key=g1%2Fd1", "tenant-admin", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("history: status=%d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/rates/api/ratecards/statistics", "tenant-admin", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("statistics: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var stats struct {
		Statistics struct {
			TotalCount int    `json:"total_count"`
			MinRate    string `json:"min_rate"`
			MaxRate    string `json:"max_rate"`
		} `json:"statistics"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Statistics.TotalCount != 2 || stats.Statistics.MinRate != "25.00" || stats.Statistics.MaxRate != "30.00" {
		t.Fatalf("stats=%+v", stats)
	}

	rec = doJSON(t, h, http.MethodGet, "/rates/api/ratecards/current", "tenant-admin", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("current: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var current struct {
		AsOf  string `json:"as_of"`
		Rates []struct {
			ValidFrom string `json:"valid_from"`
		} `json:"rates"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &current); err != nil {
		t.Fatal(err)
	}
	if current.AsOf != "2024-08-01" || len(current.Rates) != 1 || current.Rates[0].ValidFrom != "2024-07-01" {
		t.Fatalf("current=%+v", current)
	}
}

func TestHandler_RateValidationRejected(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/rates/api/assignments", "tenant-admin",
		`{"subject_kind":"rate","subject_key":"g1/d1","value":{"hourly_rate":"-1","base_salary":"3500.00"},"valid_from":"2024-01-01"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandler_OverlapConflict(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/rates/api/assignments", "tenant-admin",
		`{"subject_kind":"rate","subject_key":"g1/d1","value":{"hourly_rate":"25.00","base_salary":"3500.00"},"valid_from":"2024-01-01"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/rates/api/assignments", "tenant-admin",
		`{"subject_kind":"rate","subject_key":"g1/d1","value":{"hourly_rate":"30.00","base_salary":"4000.00"},"valid_from":"2024-05-01"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandler_RoleGrantSyncOpensAccess(t *testing.T) {
	h := newTestHandler(t)

	// rate-viewer has no policy rows yet.
	rec := doJSON(t, h, http.MethodGet, "/rates/api/assignments?subject_kind=rate&subject_key=g1%2Fd1", "rate-viewer", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("pre-sync: status=%d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/iam/api/role-grants", "tenant-admin",
		`{"subject_kind":"role","subject_key":"rate-viewer","value":{"permissions":["rates.assignments:read"]},"valid_from":"2024-01-01"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("grant: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/iam/api/policy", "tenant-admin", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("policy: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var policy struct {
		Policy [][]string `json:"policy"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &policy); err != nil {
		t.Fatal(err)
	}
	if len(policy.Policy) != 1 || policy.Policy[0][0] != "role:rate-viewer" {
		t.Fatalf("policy=%v", policy.Policy)
	}

	rec = doJSON(t, h, http.MethodPost, "/iam/api/policy:sync", "tenant-admin", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("sync: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/rates/api/assignments?subject_kind=rate&subject_key=g1%2Fd1", "rate-viewer", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("post-sync: status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandler_SubjectKindPinnedPerFamily(t *testing.T) {
	h := newTestHandler(t)

	// A role grant pushed through the rates family skips the role-grant
	// validator; the route pin rejects it instead.
	rec := doJSON(t, h, http.MethodPost, "/rates/api/assignments", "tenant-admin",
		`{"subject_kind":"role","subject_key":"rate-admin","value":{"permissions":["rates.assignments:admin"]},"valid_from":"2024-01-01"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("rates family: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/iam/api/role-grants", "tenant-admin",
		`{"subject_kind":"rate","subject_key":"g1/d1","value":{"hourly_rate":"25.00","base_salary":"3500.00"},"valid_from":"2024-01-01"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("grants family: status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandler_RoleGrantValidation(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/iam/api/role-grants", "tenant-admin",
		`{"subject_kind":"role","subject_key":"rate-viewer","value":{"permissions":[]},"valid_from":"2024-01-01"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandler_UnknownRoute404JSON(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/rates/api/nope", "tenant-admin", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("content-type=%q", rec.Header().Get("Content-Type"))
	}
}
