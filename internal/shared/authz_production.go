package shared

// Production permissions declared for RBAC.
const (
	PermProductionOrderView     = "production.order.view"
	PermProductionOrderCreate   = "production.order.create"
	PermProductionOrderEdit     = "production.order.edit"
	PermProductionOrderComplete = "production.order.complete"
	PermProductionOrderCancel   = "production.order.cancel"

	PermScheduleView = "production.schedule.view"
	PermScheduleEdit = "production.schedule.edit"

	PermSortingView   = "production.sorting.view"
	PermSortingRecord = "production.sorting.record"
)

// ProductionScopes lists all permissions related to the production module.
func ProductionScopes() []string {
	return []string{
		PermProductionOrderView,
		PermProductionOrderCreate,
		PermProductionOrderEdit,
		PermProductionOrderComplete,
		PermProductionOrderCancel,
		PermScheduleView,
		PermScheduleEdit,
		PermSortingView,
		PermSortingRecord,
	}
}
