package authz

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/casbin/casbin/v2"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

type Mode string

const (
	ModeEnforce  Mode = "enforce"
	ModeShadow   Mode = "shadow"
	ModeDisabled Mode = "disabled"
)

// ModeFromEnv reads AUTHZ_MODE, defaulting to enforce. Disabling requires
// the extra AUTHZ_UNSAFE_ALLOW_DISABLED=1 acknowledgement.
func ModeFromEnv() (Mode, error) {
	switch mode := Mode(strings.TrimSpace(strings.ToLower(os.Getenv("AUTHZ_MODE")))); mode {
	case "", ModeEnforce:
		return ModeEnforce, nil
	case ModeShadow:
		return ModeShadow, nil
	case ModeDisabled:
		if os.Getenv("AUTHZ_UNSAFE_ALLOW_DISABLED") != "1" {
			return "", errors.New("authz: AUTHZ_MODE=disabled requires AUTHZ_UNSAFE_ALLOW_DISABLED=1")
		}
		return ModeDisabled, nil
	default:
		return "", fmt.Errorf("authz: unknown AUTHZ_MODE %q", mode)
	}
}

// Authorizer answers (subject, domain, object, action) checks against a
// casbin enforcer, with shadow and disabled modes that never block.
type Authorizer struct {
	enforcer *casbin.Enforcer
	mode     Mode
}

func NewAuthorizer(modelPath string, policyPath string, mode Mode) (*Authorizer, error) {
	enforcer, err := casbin.NewEnforcer(modelPath, fileadapter.NewAdapter(policyPath))
	if err != nil {
		return nil, fmt.Errorf("authz: %w", err)
	}
	return &Authorizer{enforcer: enforcer, mode: mode}, nil
}

// Enforcer exposes the underlying casbin enforcer so role-grant projections
// can be synced into it.
func (a *Authorizer) Enforcer() *casbin.Enforcer { return a.enforcer }

// Authorize returns the policy decision and whether that decision is
// binding. Shadow mode evaluates but never enforces; disabled mode skips
// evaluation entirely.
func (a *Authorizer) Authorize(subject string, domain string, object string, action string) (allowed bool, enforced bool, err error) {
	switch a.mode {
	case ModeDisabled:
		return true, false, nil
	case ModeEnforce, ModeShadow:
	default:
		return false, false, fmt.Errorf("authz: unknown mode %q", a.mode)
	}

	enforced = a.mode == ModeEnforce
	allowed, err = a.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return false, enforced, err
	}
	return allowed, enforced, nil
}

// SubjectFromRoleSlug renders the casbin subject for a role slug,
// defaulting to the anonymous role.
func SubjectFromRoleSlug(roleSlug string) string {
	slug := strings.ToLower(strings.TrimSpace(roleSlug))
	if slug == "" {
		slug = RoleAnonymous
	}
	return "role:" + slug
}

func DomainFromTenantID(tenantID string) string {
	return strings.ToLower(strings.TrimSpace(tenantID))
}
