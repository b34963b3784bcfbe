package shared

// Sales & delivery permissions declared for RBAC.
const (
	PermSalesOrderView     = "sales.order.view"
	PermSalesOrderCreate   = "sales.order.create"
	PermSalesOrderEdit     = "sales.order.edit"
	PermSalesOrderProcess  = "sales.order.process"
	PermSalesOrderAllocate = "sales.order.allocate"
	PermSalesOrderCancel   = "sales.order.cancel"

	PermDeliveryView     = "delivery.order.view"
	PermDeliveryDispatch = "delivery.order.dispatch"
	PermDeliveryPrint    = "delivery.order.print"
)

// SalesScopes lists all permissions related to the sales module.
func SalesScopes() []string {
	return []string{
		PermSalesOrderView,
		PermSalesOrderCreate,
		PermSalesOrderEdit,
		PermSalesOrderProcess,
		PermSalesOrderAllocate,
		PermSalesOrderCancel,
	}
}

// DeliveryScopes lists all permissions related to the delivery module.
func DeliveryScopes() []string {
	return []string{
		PermDeliveryView,
		PermDeliveryDispatch,
		PermDeliveryPrint,
	}
}

// AllSalesDeliveryScopes returns all sales and delivery permissions.
func AllSalesDeliveryScopes() []string {
	return append(SalesScopes(), DeliveryScopes()...)
}
