package sales

import (
	"context"
	"fmt"

	"github.com/mouldworks/mouldworks/internal/inventory"
)

// InventoryAdapter adapts the inventory.Service to the InventoryService
// interface required by the sales service.
type InventoryAdapter struct {
	service *inventory.Service
}

// NewInventoryAdapter creates a new inventory adapter.
func NewInventoryAdapter(service *inventory.Service) *InventoryAdapter {
	return &InventoryAdapter{service: service}
}

// ItemStock loads an item's totals and per-location levels.
func (a *InventoryAdapter) ItemStock(ctx context.Context, itemID int64) (ItemStock, error) {
	if a.service == nil {
		return ItemStock{}, fmt.Errorf("inventory service not initialized")
	}
	item, err := a.service.GetItem(ctx, itemID)
	if err != nil {
		return ItemStock{}, err
	}
	levels, err := a.service.StockLevels(ctx, itemID)
	if err != nil {
		return ItemStock{}, err
	}
	stock := ItemStock{
		SKU:          item.SKU,
		Name:         item.Name,
		SellingPrice: item.SellingPrice,
		Total:        item.TotalStock,
		Levels:       make([]LevelStock, 0, len(levels)),
	}
	for _, level := range levels {
		stock.Levels = append(stock.Levels, LevelStock{
			LocationID: level.LocationID,
			Quantity:   level.Quantity,
			Allocated:  level.AllocatedQuantity,
		})
	}
	return stock, nil
}

// Allocate reserves stock in one location for an order line.
func (a *InventoryAdapter) Allocate(ctx context.Context, itemID, locationID int64, quantity float64, actorID int64) error {
	if a.service == nil {
		return fmt.Errorf("inventory service not initialized")
	}
	return a.service.Allocate(ctx, itemID, locationID, quantity, actorID)
}
