package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mouldworks/mouldworks/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateItem(ctx context.Context, item Item) (Item, error)
	GetItem(ctx context.Context, id int64) (Item, error)
	GetItemBySKU(ctx context.Context, sku string) (Item, error)
	GetItemByBarcode(ctx context.Context, barcode string) (Item, error)
	UpdateItem(ctx context.Context, id int64, item Item) error
	ListItems(ctx context.Context, filter ItemFilter) ([]Item, int, error)
	SearchItems(ctx context.Context, query string) ([]Item, error)
	LowStockItems(ctx context.Context) ([]Item, error)
	StockLevels(ctx context.Context, itemID int64) ([]StockLevel, error)
	TotalQuantity(ctx context.Context, itemID int64) (float64, error)
	Movements(ctx context.Context, filter MovementFilter) ([]StockMovement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates item master data and stock mutations. Every stock
// mutation runs inside a repeatable-read transaction with the affected
// stock levels locked, so the ledger and the levels never drift apart.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem}
}

// CreateItem validates, applies defaults and stores a new item. The sku is
// uppercased so scanner input matches regardless of label case.
func (s *Service) CreateItem(ctx context.Context, item Item, actorID int64) (Item, error) {
	item.SKU = strings.ToUpper(strings.TrimSpace(item.SKU))
	if item.UnitOfMeasure == "" {
		item.UnitOfMeasure = "pcs"
	}
	if item.ItemType == "" {
		item.ItemType = TypeFinishedGoods
	}
	if item.TargetMarginPercent == 0 {
		item.TargetMarginPercent = 30
	}
	if item.Cavities <= 0 {
		item.Cavities = 1
	}
	item.IsActive = true
	if err := validateItem(item); err != nil {
		return Item{}, err
	}
	created, err := s.repo.CreateItem(ctx, item)
	if err != nil {
		return Item{}, err
	}
	s.decorate(&created)
	s.record(ctx, actorID, "inventory.item_create", created.ID, map[string]any{"sku": created.SKU})
	return created, nil
}

// GetItem returns one item with its derived cost fields populated.
func (s *Service) GetItem(ctx context.Context, id int64) (Item, error) {
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return Item{}, err
	}
	s.decorate(&item)
	return item, nil
}

// GetItemBySKU looks an item up by its exact sku, case-insensitive.
func (s *Service) GetItemBySKU(ctx context.Context, sku string) (Item, error) {
	item, err := s.repo.GetItemBySKU(ctx, strings.TrimSpace(sku))
	if err != nil {
		return Item{}, err
	}
	s.decorate(&item)
	return item, nil
}

// GetItemByBarcode resolves a scanned barcode to an item.
func (s *Service) GetItemByBarcode(ctx context.Context, barcode string) (Item, error) {
	item, err := s.repo.GetItemByBarcode(ctx, strings.TrimSpace(barcode))
	if err != nil {
		return Item{}, err
	}
	s.decorate(&item)
	return item, nil
}

// UpdateItem validates and stores changed item fields.
func (s *Service) UpdateItem(ctx context.Context, id int64, item Item, actorID int64) error {
	item.SKU = strings.ToUpper(strings.TrimSpace(item.SKU))
	if item.Cavities <= 0 {
		item.Cavities = 1
	}
	if err := validateItem(item); err != nil {
		return err
	}
	if err := s.repo.UpdateItem(ctx, id, item); err != nil {
		return err
	}
	s.record(ctx, actorID, "inventory.item_update", id, map[string]any{"sku": item.SKU})
	return nil
}

// DeleteItem soft-deletes an item. Remaining stock is written off with
// adjustment movements in the same transaction, then the sku is renamed so
// it can be reused by a future item.
func (s *Service) DeleteItem(ctx context.Context, id int64, actorID int64) error {
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if strings.HasPrefix(item.SKU, "DELETED_") {
		return ErrNotFound
	}
	newSKU := fmt.Sprintf("DELETED_%d_%s", id, item.SKU)
	zeroed := 0
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		levels, err := tx.ListStockLevelsForUpdate(ctx, id)
		if err != nil {
			return err
		}
		for _, level := range levels {
			if level.Quantity != 0 {
				locationID := level.LocationID
				movement := StockMovement{
					ItemID:       id,
					MovementType: MovementAdjustment,
					Quantity:     -level.Quantity,
					Notes:        "item deleted, stock written off",
					UserID:       actorID,
				}
				if level.Quantity > 0 {
					movement.FromLocationID = &locationID
				} else {
					movement.ToLocationID = &locationID
				}
				if _, err := tx.InsertMovement(ctx, movement); err != nil {
					return err
				}
				zeroed++
			}
			level.Quantity = 0
			level.AllocatedQuantity = 0
			if err := tx.UpsertStockLevel(ctx, level); err != nil {
				return err
			}
		}
		return tx.MarkItemDeleted(ctx, id, newSKU)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "inventory.item_delete", id, map[string]any{
		"sku":              item.SKU,
		"locations_zeroed": zeroed,
	})
	return nil
}

// ListItems returns a filtered page of items with derived fields populated.
func (s *Service) ListItems(ctx context.Context, filter ItemFilter) ([]Item, int, error) {
	items, total, err := s.repo.ListItems(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	for i := range items {
		s.decorate(&items[i])
	}
	return items, total, nil
}

// SearchItems matches sku, name or barcode for pickers and the scanner.
func (s *Service) SearchItems(ctx context.Context, query string) ([]Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Item{}, nil
	}
	items, err := s.repo.SearchItems(ctx, query)
	if err != nil {
		return nil, err
	}
	for i := range items {
		s.decorate(&items[i])
	}
	return items, nil
}

// LowStockItems lists active items at or under their reorder threshold.
func (s *Service) LowStockItems(ctx context.Context) ([]Item, error) {
	items, err := s.repo.LowStockItems(ctx)
	if err != nil {
		return nil, err
	}
	for i := range items {
		s.decorate(&items[i])
	}
	return items, nil
}

// StockLevels returns the per-location rows for one item.
func (s *Service) StockLevels(ctx context.Context, itemID int64) ([]StockLevel, error) {
	return s.repo.StockLevels(ctx, itemID)
}

// Movements returns ledger entries, newest first, bounded by the filter.
func (s *Service) Movements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	return s.repo.Movements(ctx, filter)
}

// Receive books stock into a location. Production completions pass
// MovementProduction so the ledger separates goods-in from moulded output.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (StockMovement, error) {
	if input.ItemID == 0 || input.LocationID == 0 {
		return StockMovement{}, fmt.Errorf("inventory: item and location required: %w", ErrValidation)
	}
	if input.Quantity <= 0 {
		return StockMovement{}, ErrInvalidQuantity
	}
	movementType := input.MovementType
	if movementType == "" {
		movementType = MovementReceipt
	}
	if movementType != MovementReceipt && movementType != MovementProduction {
		return StockMovement{}, fmt.Errorf("inventory: movement type %q not valid for receive: %w", movementType, ErrValidation)
	}
	var movement StockMovement
	err := s.mutate(ctx, input.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		level, err := tx.GetStockLevelForUpdate(ctx, input.ItemID, input.LocationID)
		if err != nil && !errors.Is(err, ErrStockLevelNotFound) {
			return err
		}
		level.Quantity += input.Quantity
		if input.BatchNumber != "" {
			level.BatchNumber = input.BatchNumber
		}
		if err := tx.UpsertStockLevel(ctx, level); err != nil {
			return err
		}
		locationID := input.LocationID
		movement = StockMovement{
			ItemID:       input.ItemID,
			MovementType: movementType,
			Quantity:     input.Quantity,
			ToLocationID: &locationID,
			Reference:    input.Reference,
			BatchNumber:  input.BatchNumber,
			Notes:        input.Notes,
			UserID:       input.ActorID,
			CreatedAt:    time.Now().UTC(),
		}
		id, err := tx.InsertMovement(ctx, movement)
		if err != nil {
			return err
		}
		movement.ID = id
		return nil
	})
	if err != nil {
		return StockMovement{}, err
	}
	s.record(ctx, input.ActorID, "inventory."+string(movementType), input.ItemID, map[string]any{
		"location_id": input.LocationID,
		"quantity":    input.Quantity,
		"reference":   input.Reference,
	})
	return movement, nil
}

// Move relocates stock between two locations in one transaction. Both
// levels are locked, the source is checked, and a single ledger entry
// carries both locations.
func (s *Service) Move(ctx context.Context, input MoveInput) (StockMovement, error) {
	if input.ItemID == 0 || input.FromLocationID == 0 || input.ToLocationID == 0 {
		return StockMovement{}, fmt.Errorf("inventory: item, source and destination required: %w", ErrValidation)
	}
	if input.FromLocationID == input.ToLocationID {
		return StockMovement{}, fmt.Errorf("inventory: source and destination must differ: %w", ErrValidation)
	}
	if input.Quantity <= 0 {
		return StockMovement{}, ErrInvalidQuantity
	}
	var movement StockMovement
	err := s.mutate(ctx, input.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		source, err := tx.GetStockLevelForUpdate(ctx, input.ItemID, input.FromLocationID)
		if err != nil {
			if errors.Is(err, ErrStockLevelNotFound) {
				return ErrInsufficientStock
			}
			return err
		}
		if source.Quantity < input.Quantity {
			return ErrInsufficientStock
		}
		dest, err := tx.GetStockLevelForUpdate(ctx, input.ItemID, input.ToLocationID)
		if err != nil && !errors.Is(err, ErrStockLevelNotFound) {
			return err
		}
		source.Quantity -= input.Quantity
		dest.Quantity += input.Quantity
		if dest.BatchNumber == "" {
			dest.BatchNumber = source.BatchNumber
		}
		if err := tx.UpsertStockLevel(ctx, source); err != nil {
			return err
		}
		if err := tx.UpsertStockLevel(ctx, dest); err != nil {
			return err
		}
		fromID, toID := input.FromLocationID, input.ToLocationID
		movement = StockMovement{
			ItemID:         input.ItemID,
			MovementType:   MovementMove,
			Quantity:       input.Quantity,
			FromLocationID: &fromID,
			ToLocationID:   &toID,
			Reference:      input.Reference,
			BatchNumber:    source.BatchNumber,
			Notes:          input.Notes,
			UserID:         input.ActorID,
			CreatedAt:      time.Now().UTC(),
		}
		id, err := tx.InsertMovement(ctx, movement)
		if err != nil {
			return err
		}
		movement.ID = id
		return nil
	})
	if err != nil {
		return StockMovement{}, err
	}
	s.record(ctx, input.ActorID, "inventory.move", input.ItemID, map[string]any{
		"from_location_id": input.FromLocationID,
		"to_location_id":   input.ToLocationID,
		"quantity":         input.Quantity,
	})
	return movement, nil
}

// Adjust sets the counted quantity for an item in a location and books the
// delta as a signed adjustment. A zero delta still stamps last_count_date
// but writes no ledger entry.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (StockMovement, error) {
	if input.ItemID == 0 || input.LocationID == 0 {
		return StockMovement{}, fmt.Errorf("inventory: item and location required: %w", ErrValidation)
	}
	if input.NewQuantity < 0 {
		return StockMovement{}, ErrInvalidQuantity
	}
	if strings.TrimSpace(input.Reason) == "" {
		return StockMovement{}, fmt.Errorf("inventory: adjustment reason required: %w", ErrValidation)
	}
	var movement StockMovement
	err := s.mutate(ctx, input.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		level, err := tx.GetStockLevelForUpdate(ctx, input.ItemID, input.LocationID)
		if err != nil && !errors.Is(err, ErrStockLevelNotFound) {
			return err
		}
		now := time.Now().UTC()
		delta := input.NewQuantity - level.Quantity
		level.Quantity = input.NewQuantity
		level.LastCountDate = &now
		if err := tx.UpsertStockLevel(ctx, level); err != nil {
			return err
		}
		if delta == 0 {
			movement = StockMovement{ItemID: input.ItemID, MovementType: MovementAdjustment, Notes: input.Reason}
			return nil
		}
		locationID := input.LocationID
		movement = StockMovement{
			ItemID:       input.ItemID,
			MovementType: MovementAdjustment,
			Quantity:     delta,
			Notes:        input.Reason,
			UserID:       input.ActorID,
			CreatedAt:    now,
		}
		if delta < 0 {
			movement.FromLocationID = &locationID
		} else {
			movement.ToLocationID = &locationID
		}
		id, err := tx.InsertMovement(ctx, movement)
		if err != nil {
			return err
		}
		movement.ID = id
		return nil
	})
	if err != nil {
		return StockMovement{}, err
	}
	s.record(ctx, input.ActorID, "inventory.adjust", input.ItemID, map[string]any{
		"location_id":  input.LocationID,
		"new_quantity": input.NewQuantity,
		"reason":       input.Reason,
	})
	return movement, nil
}

// Ship issues stock out against a delivery, consuming any allocation up to
// the shipped quantity. The ledger entry is negative.
func (s *Service) Ship(ctx context.Context, input ShipInput) (StockMovement, error) {
	if input.ItemID == 0 || input.LocationID == 0 {
		return StockMovement{}, fmt.Errorf("inventory: item and location required: %w", ErrValidation)
	}
	if input.Quantity <= 0 {
		return StockMovement{}, ErrInvalidQuantity
	}
	var movement StockMovement
	err := s.mutate(ctx, input.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		level, err := tx.GetStockLevelForUpdate(ctx, input.ItemID, input.LocationID)
		if err != nil {
			if errors.Is(err, ErrStockLevelNotFound) {
				return ErrInsufficientStock
			}
			return err
		}
		if level.Quantity < input.Quantity {
			return ErrInsufficientStock
		}
		level.Quantity -= input.Quantity
		level.AllocatedQuantity -= input.Quantity
		if level.AllocatedQuantity < 0 {
			level.AllocatedQuantity = 0
		}
		if err := tx.UpsertStockLevel(ctx, level); err != nil {
			return err
		}
		locationID := input.LocationID
		movement = StockMovement{
			ItemID:         input.ItemID,
			MovementType:   MovementShipment,
			Quantity:       -input.Quantity,
			FromLocationID: &locationID,
			Reference:      input.Reference,
			BatchNumber:    level.BatchNumber,
			Notes:          input.Notes,
			UserID:         input.ActorID,
			CreatedAt:      time.Now().UTC(),
		}
		id, err := tx.InsertMovement(ctx, movement)
		if err != nil {
			return err
		}
		movement.ID = id
		return nil
	})
	if err != nil {
		return StockMovement{}, err
	}
	s.record(ctx, input.ActorID, "inventory.ship", input.ItemID, map[string]any{
		"location_id": input.LocationID,
		"quantity":    input.Quantity,
		"reference":   input.Reference,
	})
	return movement, nil
}

// Allocate reserves on-hand stock for an order. The reservation can never
// exceed the quantity actually in the location.
func (s *Service) Allocate(ctx context.Context, itemID, locationID int64, quantity float64, actorID int64) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		level, err := tx.GetStockLevelForUpdate(ctx, itemID, locationID)
		if err != nil {
			if errors.Is(err, ErrStockLevelNotFound) {
				return ErrAllocationExceedsStock
			}
			return err
		}
		if level.AllocatedQuantity+quantity > level.Quantity {
			return ErrAllocationExceedsStock
		}
		level.AllocatedQuantity += quantity
		return tx.UpsertStockLevel(ctx, level)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "inventory.allocate", itemID, map[string]any{
		"location_id": locationID,
		"quantity":    quantity,
	})
	return nil
}

// Deallocate releases a reservation, clamping at zero.
func (s *Service) Deallocate(ctx context.Context, itemID, locationID int64, quantity float64, actorID int64) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		level, err := tx.GetStockLevelForUpdate(ctx, itemID, locationID)
		if err != nil {
			if errors.Is(err, ErrStockLevelNotFound) {
				return nil
			}
			return err
		}
		level.AllocatedQuantity -= quantity
		if level.AllocatedQuantity < 0 {
			level.AllocatedQuantity = 0
		}
		return tx.UpsertStockLevel(ctx, level)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "inventory.deallocate", itemID, map[string]any{
		"location_id": locationID,
		"quantity":    quantity,
	})
	return nil
}

// mutate wraps a stock mutation with optional idempotency protection. A
// replayed key fails before the transaction opens; a failed transaction
// releases the key so the caller can retry.
func (s *Service) mutate(ctx context.Context, key string, fn func(context.Context, TxRepository) error) error {
	insertedKey := false
	if key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			return err
		}
		insertedKey = true
	}
	if err := s.repo.WithTx(ctx, fn); err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return err
	}
	return nil
}

// decorate fills the derived cost and stock fields on a loaded item.
func (s *Service) decorate(item *Item) {
	item.MaterialCostPerPart = item.MaterialCostForPart()
	item.CycleCostPerPart = item.CycleCostForPart()
	item.TotalCostPerPart = item.MaterialCostPerPart.Add(item.CycleCostPerPart)
	item.SuggestedSellingPrice = item.SuggestedPrice(item.TotalCostPerPart)
	item.IsLowStock = item.lowStock(item.TotalStock)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "item",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
}

func validateItem(item Item) error {
	if item.SKU == "" {
		return fmt.Errorf("inventory: sku required: %w", ErrValidation)
	}
	if strings.TrimSpace(item.Name) == "" {
		return fmt.Errorf("inventory: name required: %w", ErrValidation)
	}
	if !IsValidItemType(item.ItemType) {
		return fmt.Errorf("inventory: unknown item type %q: %w", item.ItemType, ErrValidation)
	}
	if item.UnitCost.IsNegative() || item.SellingPrice.IsNegative() {
		return fmt.Errorf("inventory: prices cannot be negative: %w", ErrValidation)
	}
	if item.ReorderPoint < 0 || item.MinStockLevel < 0 || item.MaxStockLevel < 0 {
		return fmt.Errorf("inventory: stock thresholds cannot be negative: %w", ErrValidation)
	}
	if item.PartWeightGrams < 0 || item.RunnerWeightGrams < 0 || item.IdealCycleTime < 0 || item.SetupTimeHours < 0 {
		return fmt.Errorf("inventory: moulding data cannot be negative: %w", ErrValidation)
	}
	if item.TargetMarginPercent < 0 {
		return fmt.Errorf("inventory: target margin cannot be negative: %w", ErrValidation)
	}
	if item.MaterialCostPerKg.IsNegative() || item.TargetMachineRate.IsNegative() {
		return fmt.Errorf("inventory: costing rates cannot be negative: %w", ErrValidation)
	}
	return nil
}
