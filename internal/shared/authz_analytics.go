package shared

// Analytics permissions for RBAC enforcement.
const (
	PermAnalyticsView   = "analytics.view"
	PermAnalyticsExport = "analytics.export"
)

// AnalyticsScopes returns permissions needed for the analytics dashboard.
func AnalyticsScopes() []string {
	return []string{
		PermAnalyticsView,
		PermAnalyticsExport,
	}
}
