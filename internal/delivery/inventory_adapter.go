package delivery

import (
	"context"

	"github.com/mouldworks/mouldworks/internal/inventory"
)

// InventoryAdapter satisfies InventoryService on top of the stock ledger.
type InventoryAdapter struct {
	Inventory *inventory.Service
}

func (a *InventoryAdapter) Levels(ctx context.Context, itemID int64) ([]StockLevel, error) {
	levels, err := a.Inventory.StockLevels(ctx, itemID)
	if err != nil {
		return nil, err
	}
	out := make([]StockLevel, 0, len(levels))
	for _, level := range levels {
		out = append(out, StockLevel{LocationID: level.LocationID, Quantity: level.Quantity})
	}
	return out, nil
}

func (a *InventoryAdapter) Ship(ctx context.Context, itemID, locationID int64, quantity float64, reference string, actorID int64, idempotencyKey string) error {
	_, err := a.Inventory.Ship(ctx, inventory.ShipInput{
		ItemID:         itemID,
		LocationID:     locationID,
		Quantity:       quantity,
		Reference:      reference,
		ActorID:        actorID,
		IdempotencyKey: idempotencyKey,
	})
	return err
}
