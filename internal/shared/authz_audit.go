package shared

// Audit permissions for RBAC enforcement.
const (
	PermAuditView = "audit.view"
)

// AuditScopes lists permissions used by audit timeline features.
func AuditScopes() []string {
	return []string{PermAuditView}
}
