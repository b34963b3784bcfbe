package shared

// Inventory permissions declared for RBAC.
const (
	PermItemView   = "inventory.item.view"
	PermItemCreate = "inventory.item.create"
	PermItemEdit   = "inventory.item.edit"
	PermItemDelete = "inventory.item.delete"

	PermStockReceive = "inventory.stock.receive"
	PermStockMove    = "inventory.stock.move"
	PermStockAdjust  = "inventory.stock.adjust"

	PermLedgerView = "inventory.ledger.view"
)

// InventoryScopes lists all permissions related to the inventory module.
func InventoryScopes() []string {
	return []string{
		PermItemView,
		PermItemCreate,
		PermItemEdit,
		PermItemDelete,
		PermStockReceive,
		PermStockMove,
		PermStockAdjust,
		PermLedgerView,
	}
}
