package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avigne/Rates-And-Roles/internal/routing"
	"github.com/avigne/Rates-And-Roles/modules/assignment/domain/ports"
	assignmentpersistence "github.com/avigne/Rates-And-Roles/modules/assignment/infrastructure/persistence"
	"github.com/avigne/Rates-And-Roles/modules/assignment/presentation/controllers"
	assignmentservices "github.com/avigne/Rates-And-Roles/modules/assignment/services"
	ratecardtypes "github.com/avigne/Rates-And-Roles/modules/ratecard/domain/types"
	ratecardservices "github.com/avigne/Rates-And-Roles/modules/ratecard/services"
	rolegranttypes "github.com/avigne/Rates-And-Roles/modules/rolegrant/domain/types"
	rolegrantservices "github.com/avigne/Rates-And-Roles/modules/rolegrant/services"
	"github.com/avigne/Rates-And-Roles/pkg/authz"
)

func NewHandler() (http.Handler, error) {
	return NewHandlerWithOptions(HandlerOptions{})
}

type HandlerOptions struct {
	Tenants         map[string]Tenant
	AssignmentStore ports.AssignmentStore
	RateValidator   ports.ValueValidator
	RoleValidator   ports.ValueValidator
	Authorizer      *authz.Authorizer
	NowUTC          func() time.Time
}

func NewHandlerWithOptions(opts HandlerOptions) (http.Handler, error) {
	allowlistPath := os.Getenv("ALLOWLIST_PATH")
	if allowlistPath == "" {
		p, err := findConfigFile("config/routing/allowlist.yaml")
		if err != nil {
			return nil, err
		}
		allowlistPath = p
	}

	a, err := routing.LoadAllowlist(allowlistPath)
	if err != nil {
		return nil, err
	}

	classifier, err := routing.NewClassifier(a, "server")
	if err != nil {
		return nil, err
	}

	tenants := opts.Tenants
	if tenants == nil {
		tenants, err = loadTenants()
		if err != nil {
			return nil, err
		}
	}

	store := opts.AssignmentStore
	if store == nil {
		if os.Getenv("DATABASE_URL") == "" && os.Getenv("DB_HOST") == "" {
			store = assignmentpersistence.NewAssignmentMemoryStore()
		} else {
			pool, err := pgxpool.New(context.Background(), dbDSNFromEnv())
			if err != nil {
				return nil, err
			}
			store = assignmentpersistence.NewAssignmentPGStore(pool)
		}
	}

	rateValidator := opts.RateValidator
	if rateValidator == nil {
		expr := os.Getenv("RATE_VALIDATION_EXPR")
		if expr == "" {
			expr = ratecardservices.DefaultRateExpr
		}
		rateValidator, err = ratecardservices.NewCELValueValidator(expr)
		if err != nil {
			return nil, err
		}
	}

	roleValidator := opts.RoleValidator
	if roleValidator == nil {
		roleValidator = rolegrantservices.ValidateRoleGrant
	}

	authorizer := opts.Authorizer
	if authorizer == nil {
		authorizer, err = loadAuthorizer()
		if err != nil {
			return nil, err
		}
	}

	tenantID := func(ctx context.Context) (string, bool) {
		t, ok := currentTenant(ctx)
		return t.ID, ok
	}

	ratesController := controllers.AssignmentsController{
		TenantID:    tenantID,
		NowUTC:      opts.NowUTC,
		SubjectKind: ratecardtypes.SubjectKindRate,
		Facade:      assignmentservices.NewAssignmentsFacade(store, rateValidator),
	}
	grantsController := controllers.AssignmentsController{
		TenantID:    tenantID,
		NowUTC:      opts.NowUTC,
		SubjectKind: rolegranttypes.SubjectKindRole,
		Facade:      assignmentservices.NewAssignmentsFacade(store, roleValidator),
	}
	ratecards := ratecardservices.NewRateCardService(store)
	projector := rolegrantservices.NewPolicyProjector(store)

	router := routing.NewRouter(classifier)

	router.Handle(routing.RouteClassOps, http.MethodGet, "/health", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))
	router.Handle(routing.RouteClassOps, http.MethodGet, "/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))

	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/rates/api/assignments", http.HandlerFunc(ratesController.HandleAssignmentsAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/rates/api/assignments", http.HandlerFunc(ratesController.HandleAssignmentsAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/rates/api/assignments/history", http.HandlerFunc(ratesController.HandleAssignmentsHistoryAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/rates/api/assignments/current", http.HandlerFunc(ratesController.HandleAssignmentsCurrentAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/rates/api/assignments:close", http.HandlerFunc(ratesController.HandleAssignmentsCloseAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/rates/api/assignments:deactivate", http.HandlerFunc(ratesController.HandleAssignmentsDeactivateAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/rates/api/assignments:update", http.HandlerFunc(ratesController.HandleAssignmentsUpdateAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/rates/api/assignments:delete", http.HandlerFunc(ratesController.HandleAssignmentsDeleteAPI))

	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/rates/api/ratecards/statistics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleRateStatisticsAPI(w, r, ratecards)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/rates/api/ratecards/current", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleRateCurrentAPI(w, r, ratecards, opts.NowUTC)
	}))

	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/iam/api/role-grants", http.HandlerFunc(grantsController.HandleAssignmentsAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/iam/api/role-grants", http.HandlerFunc(grantsController.HandleAssignmentsAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/iam/api/role-grants/history", http.HandlerFunc(grantsController.HandleAssignmentsHistoryAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/iam/api/role-grants/current", http.HandlerFunc(grantsController.HandleAssignmentsCurrentAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/iam/api/role-grants:close", http.HandlerFunc(grantsController.HandleAssignmentsCloseAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/iam/api/role-grants:deactivate", http.HandlerFunc(grantsController.HandleAssignmentsDeactivateAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/iam/api/role-grants:update", http.HandlerFunc(grantsController.HandleAssignmentsUpdateAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/iam/api/role-grants:delete", http.HandlerFunc(grantsController.HandleAssignmentsDeleteAPI))

	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/iam/api/policy", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlePolicyRowsAPI(w, r, projector, opts.NowUTC)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/iam/api/policy:sync", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlePolicySyncAPI(w, r, projector, authorizer, opts.NowUTC)
	}))

	guarded := withTenantResolution(classifier, tenants, withAuthz(classifier, authorizer, router))
	return guarded, nil
}

func MustNewHandler() http.Handler {
	h, err := NewHandler()
	if err != nil {
		panic(errors.New("server: failed to build handler: " + err.Error()))
	}
	return h
}

func withTenantResolution(classifier *routing.Classifier, tenants map[string]Tenant, next http.Handler) http.Handler {
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

		t, ok := tenants[effectiveHost(r)]
		if !ok {
			routing.WriteError(w, r, rc, http.StatusNotFound, "tenant_not_found", "tenant not found")
			return
		}
		r = r.WithContext(withTenant(r.Context(), t))

		if role := normalizedRoleHeader(r); role != "" {
			r = r.WithContext(withRole(r.Context(), role))
		}

		next.ServeHTTP(w, r)
	})
}
