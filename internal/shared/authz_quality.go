package shared

// Quality permissions declared for RBAC.
const (
	PermNCRView    = "quality.ncr.view"
	PermNCRCreate  = "quality.ncr.create"
	PermNCRResolve = "quality.ncr.resolve"
)

// QualityScopes lists all permissions related to the quality module.
func QualityScopes() []string {
	return []string{
		PermNCRView,
		PermNCRCreate,
		PermNCRResolve,
	}
}
