package server

import (
	"net/http"
	"os"
	"strings"

	"github.com/avigne/Rates-And-Roles/internal/routing"
	"github.com/avigne/Rates-And-Roles/pkg/authz"
)

func loadAuthorizer() (*authz.Authorizer, error) {
	modelPath := os.Getenv("AUTHZ_MODEL_PATH")
	if modelPath == "" {
		var err error
		if modelPath, err = findConfigFile("config/access/model.conf"); err != nil {
			return nil, err
		}
	}
	policyPath := os.Getenv("AUTHZ_POLICY_PATH")
	if policyPath == "" {
		var err error
		if policyPath, err = findConfigFile("config/access/policy.csv"); err != nil {
			return nil, err
		}
	}

	mode, err := authz.ModeFromEnv()
	if err != nil {
		return nil, err
	}
	return authz.NewAuthorizer(modelPath, policyPath, mode)
}

type authorizer interface {
	Authorize(subject string, domain string, object string, action string) (allowed bool, enforced bool, err error)
}

func withAuthz(classifier *routing.Classifier, a authorizer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if publicPath(path) {
			next.ServeHTTP(w, r)
			return
		}

		rc := routing.RouteClassUI
		if classifier != nil {
			rc = classifier.Classify(path)
		}

		tenant, ok := currentTenant(r.Context())
		if !ok {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "tenant_missing", "tenant missing")
			return
		}

		object, action, ok := authzRequirementForRoute(r.Method, path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		roleSlug := authz.RoleAnonymous
		if s, ok := currentRole(r.Context()); ok {
			roleSlug = s
		}

		allowed, enforced, err := a.Authorize(
			authz.SubjectFromRoleSlug(roleSlug),
			authz.DomainFromTenantID(tenant.ID),
			object,
			action,
		)
		if err != nil {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "authz_error", "authz error")
			return
		}
		if enforced && !allowed {
			routing.WriteError(w, r, rc, http.StatusForbidden, "forbidden", "forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

type routeRequirement struct {
	object string
	action string
}

// apiRequirements maps path then method to the policy tuple the caller must
// satisfy. Routes absent from the map are not authz-checked here.
var apiRequirements = buildAPIRequirements()

func buildAPIRequirements() map[string]map[string]routeRequirement {
	reqs := make(map[string]map[string]routeRequirement)
	add := func(path, method, object, action string) {
		if reqs[path] == nil {
			reqs[path] = make(map[string]routeRequirement)
		}
		reqs[path][method] = routeRequirement{object: object, action: action}
	}

	// Both assignment families share the same surface: reads for read, the
	// full lifecycle for admin.
	families := []struct {
		base   string
		object string
	}{
		{"/rates/api/assignments", authz.ObjectRateAssignments},
		{"/iam/api/role-grants", authz.ObjectRoleGrants},
	}
	for _, f := range families {
		add(f.base, http.MethodGet, f.object, authz.ActionRead)
		add(f.base, http.MethodPost, f.object, authz.ActionAdmin)
		add(f.base+"/history", http.MethodGet, f.object, authz.ActionRead)
		add(f.base+"/current", http.MethodGet, f.object, authz.ActionRead)
		for _, verb := range []string{":close", ":deactivate", ":update", ":delete"} {
			add(f.base+verb, http.MethodPost, f.object, authz.ActionAdmin)
		}
	}

	add("/rates/api/ratecards/statistics", http.MethodGet, authz.ObjectRateCards, authz.ActionRead)
	add("/rates/api/ratecards/current", http.MethodGet, authz.ObjectRateCards, authz.ActionRead)
	add("/iam/api/policy", http.MethodGet, authz.ObjectRoleGrants, authz.ActionRead)
	add("/iam/api/policy:sync", http.MethodPost, authz.ObjectRoleGrants, authz.ActionAdmin)
	return reqs
}

func authzRequirementForRoute(method string, path string) (object string, action string, ok bool) {
	req, ok := apiRequirements[path][method]
	if !ok {
		return "", "", false
	}
	return req.object, req.action, true
}

func pathHasPrefixSegment(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func normalizedRoleHeader(r *http.Request) string {
	return strings.TrimSpace(strings.ToLower(r.Header.Get("X-Role")))
}
