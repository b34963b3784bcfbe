package shared

// Master data permissions declared for RBAC.
const (
	PermCustomerView   = "masterdata.customer.view"
	PermCustomerCreate = "masterdata.customer.create"
	PermCustomerEdit   = "masterdata.customer.edit"
	PermCustomerDelete = "masterdata.customer.delete"

	PermMaterialView = "masterdata.material.view"
	PermMaterialEdit = "masterdata.material.edit"

	PermMachineView = "masterdata.machine.view"
	PermMachineEdit = "masterdata.machine.edit"

	PermMouldView = "masterdata.mould.view"
	PermMouldEdit = "masterdata.mould.edit"

	PermLocationView = "masterdata.location.view"
	PermLocationEdit = "masterdata.location.edit"

	PermSupplierView = "masterdata.supplier.view"
	PermSupplierEdit = "masterdata.supplier.edit"
)

// MasterDataScopes lists all permissions related to master data.
func MasterDataScopes() []string {
	return []string{
		PermCustomerView,
		PermCustomerCreate,
		PermCustomerEdit,
		PermCustomerDelete,
		PermMaterialView,
		PermMaterialEdit,
		PermMachineView,
		PermMachineEdit,
		PermMouldView,
		PermMouldEdit,
		PermLocationView,
		PermLocationEdit,
		PermSupplierView,
		PermSupplierEdit,
	}
}
