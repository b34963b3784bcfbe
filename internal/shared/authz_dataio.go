package shared

// Data import/export permissions declared for RBAC.
const (
	PermDataImport = "dataio.import"
	PermDataExport = "dataio.export"
	PermDataBackup = "dataio.backup"
)

// DataIOScopes lists all permissions related to bulk data handling.
func DataIOScopes() []string {
	return []string{
		PermDataImport,
		PermDataExport,
		PermDataBackup,
	}
}
