package types

import (
	"encoding/json"
	"strings"
)

// SubjectKindRole is the assignment subject kind for role permission grants;
// the subject key is the role slug.
const SubjectKindRole = "role"

// RoleGrant is the assignment value payload for a role: the set of
// permissions the role carries, each "object:action".
type RoleGrant struct {
	Permissions []string `json:"permissions"`
}

func ParseRoleGrant(raw json.RawMessage) (RoleGrant, error) {
	var g RoleGrant
	if err := json.Unmarshal(raw, &g); err != nil {
		return RoleGrant{}, err
	}
	return g, nil
}

// SplitPermission splits "object:action" on the last colon, so dotted
// object names like "rates.assignments:read" stay intact.
func SplitPermission(perm string) (object string, action string, ok bool) {
	i := strings.LastIndex(perm, ":")
	if i <= 0 || i == len(perm)-1 {
		return "", "", false
	}
	return perm[:i], perm[i+1:], true
}
