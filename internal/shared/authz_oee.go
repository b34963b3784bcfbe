package shared

// Shop floor performance permissions declared for RBAC.
const (
	PermShiftLogRecord = "oee.shift.record"
	PermShiftLogView   = "oee.shift.view"

	PermDowntimeReasonEdit = "oee.reason.edit"
)

// OEEScopes lists all permissions related to shop floor performance.
func OEEScopes() []string {
	return []string{
		PermShiftLogRecord,
		PermShiftLogView,
		PermDowntimeReasonEdit,
	}
}
