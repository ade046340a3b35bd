package authz

const (
	RoleTenantAdmin = "tenant-admin"
	RoleAnonymous   = "anonymous"
)

const (
	ActionRead  = "read"
	ActionAdmin = "admin"
)

const (
	ObjectRateAssignments = "rates.assignments"
	ObjectRateCards       = "rates.ratecards"
	ObjectRoleGrants      = "iam.role-grants"
)
