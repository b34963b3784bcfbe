package production

import (
	"context"
	"fmt"

	"github.com/mouldworks/mouldworks/internal/inventory"
)

// InventoryAdapter adapts the inventory.Service to the InventoryService
// interface required by the production service.
type InventoryAdapter struct {
	service *inventory.Service
}

// NewInventoryAdapter creates a new inventory adapter.
func NewInventoryAdapter(service *inventory.Service) *InventoryAdapter {
	return &InventoryAdapter{service: service}
}

// ReceiveProduction books moulded parts into stock as a production
// movement on the ledger.
func (a *InventoryAdapter) ReceiveProduction(ctx context.Context, input ProductionReceipt) error {
	if a.service == nil {
		return fmt.Errorf("inventory service not initialized")
	}
	_, err := a.service.Receive(ctx, inventory.ReceiveInput{
		ItemID:         input.ItemID,
		LocationID:     input.LocationID,
		Quantity:       float64(input.Quantity),
		BatchNumber:    input.BatchNumber,
		Reference:      input.Reference,
		Notes:          input.Notes,
		MovementType:   inventory.MovementProduction,
		ActorID:        input.ActorID,
		IdempotencyKey: input.IdempotencyKey,
	})
	if err != nil {
		return fmt.Errorf("receive production stock: %w", err)
	}
	return nil
}
