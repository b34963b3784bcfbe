package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	items     map[int64]Item
	levels    map[string]StockLevel
	movements []StockMovement
	nextItem  int64
	nextLevel int64
	nextMove  int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		items:  make(map[int64]Item),
		levels: make(map[string]StockLevel),
	}
}

func levelKey(itemID, locationID int64) string {
	return fmt.Sprintf("%d:%d", itemID, locationID)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) CreateItem(ctx context.Context, item Item) (Item, error) {
	for _, existing := range r.items {
		if strings.EqualFold(existing.SKU, item.SKU) {
			return Item{}, ErrDuplicateSKU
		}
	}
	r.nextItem++
	item.ID = r.nextItem
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt
	r.items[item.ID] = item
	return item, nil
}

func (r *memoryRepo) GetItem(ctx context.Context, id int64) (Item, error) {
	item, ok := r.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	item.TotalStock, _ = r.TotalQuantity(ctx, id)
	return item, nil
}

func (r *memoryRepo) GetItemBySKU(ctx context.Context, sku string) (Item, error) {
	for id, item := range r.items {
		if strings.EqualFold(item.SKU, sku) {
			return r.GetItem(ctx, id)
		}
	}
	return Item{}, ErrNotFound
}

func (r *memoryRepo) GetItemByBarcode(ctx context.Context, barcode string) (Item, error) {
	for id, item := range r.items {
		if item.Barcode != "" && item.Barcode == barcode {
			return r.GetItem(ctx, id)
		}
	}
	return Item{}, ErrNotFound
}

func (r *memoryRepo) UpdateItem(ctx context.Context, id int64, item Item) error {
	existing, ok := r.items[id]
	if !ok {
		return ErrNotFound
	}
	item.ID = id
	item.CreatedAt = existing.CreatedAt
	item.UpdatedAt = time.Now()
	r.items[id] = item
	return nil
}

func (r *memoryRepo) ListItems(ctx context.Context, filter ItemFilter) ([]Item, int, error) {
	items := []Item{}
	for id, item := range r.items {
		if filter.IsActive != nil && item.IsActive != *filter.IsActive {
			continue
		}
		if filter.ItemType != "" && item.ItemType != filter.ItemType {
			continue
		}
		loaded, _ := r.GetItem(ctx, id)
		items = append(items, loaded)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SKU < items[j].SKU })
	return items, len(items), nil
}

func (r *memoryRepo) SearchItems(ctx context.Context, query string) ([]Item, error) {
	query = strings.ToUpper(query)
	items := []Item{}
	for id, item := range r.items {
		if !item.IsActive {
			continue
		}
		if strings.Contains(strings.ToUpper(item.SKU), query) ||
			strings.Contains(strings.ToUpper(item.Name), query) ||
			strings.Contains(strings.ToUpper(item.Barcode), query) {
			loaded, _ := r.GetItem(ctx, id)
			items = append(items, loaded)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SKU < items[j].SKU })
	if len(items) > 20 {
		items = items[:20]
	}
	return items, nil
}

func (r *memoryRepo) LowStockItems(ctx context.Context) ([]Item, error) {
	items := []Item{}
	for id, item := range r.items {
		if !item.IsActive {
			continue
		}
		total, _ := r.TotalQuantity(ctx, id)
		if item.lowStock(total) {
			loaded, _ := r.GetItem(ctx, id)
			items = append(items, loaded)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SKU < items[j].SKU })
	return items, nil
}

func (r *memoryRepo) StockLevels(ctx context.Context, itemID int64) ([]StockLevel, error) {
	levels := []StockLevel{}
	for _, level := range r.levels {
		if level.ItemID == itemID {
			levels = append(levels, level)
		}
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].LocationID < levels[j].LocationID })
	return levels, nil
}

func (r *memoryRepo) TotalQuantity(ctx context.Context, itemID int64) (float64, error) {
	var total float64
	for _, level := range r.levels {
		if level.ItemID == itemID {
			total += level.Quantity
		}
	}
	return total, nil
}

func (r *memoryRepo) Movements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	movements := []StockMovement{}
	for i := len(r.movements) - 1; i >= 0; i-- {
		m := r.movements[i]
		if filter.ItemID != 0 && m.ItemID != filter.ItemID {
			continue
		}
		if filter.MovementType != "" && m.MovementType != filter.MovementType {
			continue
		}
		movements = append(movements, m)
	}
	return movements, nil
}

func (tx *memoryTx) GetStockLevelForUpdate(ctx context.Context, itemID, locationID int64) (StockLevel, error) {
	if level, ok := tx.repo.levels[levelKey(itemID, locationID)]; ok {
		return level, nil
	}
	return StockLevel{ItemID: itemID, LocationID: locationID}, ErrStockLevelNotFound
}

func (tx *memoryTx) ListStockLevelsForUpdate(ctx context.Context, itemID int64) ([]StockLevel, error) {
	levels := []StockLevel{}
	for _, level := range tx.repo.levels {
		if level.ItemID == itemID {
			levels = append(levels, level)
		}
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].LocationID < levels[j].LocationID })
	return levels, nil
}

func (tx *memoryTx) UpsertStockLevel(ctx context.Context, level StockLevel) error {
	key := levelKey(level.ItemID, level.LocationID)
	if existing, ok := tx.repo.levels[key]; ok {
		level.ID = existing.ID
	} else {
		tx.repo.nextLevel++
		level.ID = tx.repo.nextLevel
	}
	level.UpdatedAt = time.Now()
	tx.repo.levels[key] = level
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m StockMovement) (int64, error) {
	tx.repo.nextMove++
	m.ID = tx.repo.nextMove
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	tx.repo.movements = append(tx.repo.movements, m)
	return m.ID, nil
}

func (tx *memoryTx) MarkItemDeleted(ctx context.Context, id int64, newSKU string) error {
	item, ok := tx.repo.items[id]
	if !ok {
		return ErrNotFound
	}
	item.SKU = newSKU
	item.IsActive = false
	tx.repo.items[id] = item
	return nil
}

// ledgerSum folds signed ledger entries for one location: moves subtract at
// the source and add at the destination, everything else carries its sign.
func ledgerSum(movements []StockMovement, locationID int64) float64 {
	var sum float64
	for _, m := range movements {
		switch {
		case m.FromLocationID != nil && m.ToLocationID != nil:
			if *m.FromLocationID == locationID {
				sum -= m.Quantity
			}
			if *m.ToLocationID == locationID {
				sum += m.Quantity
			}
		case m.ToLocationID != nil && *m.ToLocationID == locationID:
			sum += m.Quantity
		case m.FromLocationID != nil && *m.FromLocationID == locationID:
			sum += m.Quantity
		}
	}
	return sum
}

func newTestItem(t *testing.T, svc *Service, sku string) Item {
	t.Helper()
	item, err := svc.CreateItem(context.Background(), Item{SKU: sku, Name: "Test part", ItemType: TypeFinishedGoods}, 1)
	require.NoError(t, err)
	return item
}

func TestReceiveMoveShipKeepsLedgerInStep(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	item := newTestItem(t, svc, "CAP-60")

	_, err := svc.Receive(ctx, ReceiveInput{ItemID: item.ID, LocationID: 1, Quantity: 100, BatchNumber: "250825-CAP-60-001", ActorID: 1})
	require.NoError(t, err)

	movement, err := svc.Move(ctx, MoveInput{ItemID: item.ID, FromLocationID: 1, ToLocationID: 2, Quantity: 40, ActorID: 1})
	require.NoError(t, err)
	require.Equal(t, MovementMove, movement.MovementType)
	require.Equal(t, "250825-CAP-60-001", movement.BatchNumber)

	shipped, err := svc.Ship(ctx, ShipInput{ItemID: item.ID, LocationID: 2, Quantity: 30, Reference: "DEL-250825-0001", ActorID: 1})
	require.NoError(t, err)
	require.InDelta(t, -30.0, shipped.Quantity, 0.0001)

	levels, err := svc.StockLevels(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, levels, 2)
	require.InDelta(t, 60.0, levels[0].Quantity, 0.0001)
	require.InDelta(t, 10.0, levels[1].Quantity, 0.0001)

	movements, err := svc.Movements(ctx, MovementFilter{ItemID: item.ID})
	require.NoError(t, err)
	require.Len(t, movements, 3)
	for _, level := range levels {
		require.InDelta(t, level.Quantity, ledgerSum(movements, level.LocationID), 0.0001)
	}

	total, err := repo.TotalQuantity(ctx, item.ID)
	require.NoError(t, err)
	require.InDelta(t, 70.0, total, 0.0001)
}

func TestMoveRejectsInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	item := newTestItem(t, svc, "LID-90")

	_, err := svc.Receive(ctx, ReceiveInput{ItemID: item.ID, LocationID: 1, Quantity: 10, ActorID: 1})
	require.NoError(t, err)

	_, err = svc.Move(ctx, MoveInput{ItemID: item.ID, FromLocationID: 1, ToLocationID: 2, Quantity: 20, ActorID: 1})
	require.ErrorIs(t, err, ErrInsufficientStock)

	_, err = svc.Move(ctx, MoveInput{ItemID: item.ID, FromLocationID: 3, ToLocationID: 2, Quantity: 1, ActorID: 1})
	require.ErrorIs(t, err, ErrInsufficientStock)

	_, err = svc.Ship(ctx, ShipInput{ItemID: item.ID, LocationID: 1, Quantity: 20, ActorID: 1})
	require.ErrorIs(t, err, ErrInsufficientStock)

	_, err = svc.Move(ctx, MoveInput{ItemID: item.ID, FromLocationID: 1, ToLocationID: 1, Quantity: 5, ActorID: 1})
	require.ErrorIs(t, err, ErrValidation)

	// Nothing above should have touched the level.
	total, err := repo.TotalQuantity(ctx, item.ID)
	require.NoError(t, err)
	require.InDelta(t, 10.0, total, 0.0001)
}

func TestAdjustBooksDeltaAndStampsCount(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	item := newTestItem(t, svc, "TUB-2L")

	_, err := svc.Receive(ctx, ReceiveInput{ItemID: item.ID, LocationID: 1, Quantity: 50, ActorID: 1})
	require.NoError(t, err)

	movement, err := svc.Adjust(ctx, AdjustInput{ItemID: item.ID, LocationID: 1, NewQuantity: 47, Reason: "monthly count", ActorID: 2})
	require.NoError(t, err)
	require.InDelta(t, -3.0, movement.Quantity, 0.0001)
	require.Equal(t, "monthly count", movement.Notes)

	levels, err := svc.StockLevels(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, levels, 1)
	require.InDelta(t, 47.0, levels[0].Quantity, 0.0001)
	require.NotNil(t, levels[0].LastCountDate)

	// Counting the same figure again stamps the date but adds no ledger row.
	movement, err = svc.Adjust(ctx, AdjustInput{ItemID: item.ID, LocationID: 1, NewQuantity: 47, Reason: "recount", ActorID: 2})
	require.NoError(t, err)
	require.Zero(t, movement.ID)
	movements, err := svc.Movements(ctx, MovementFilter{ItemID: item.ID, MovementType: MovementAdjustment})
	require.NoError(t, err)
	require.Len(t, movements, 1)

	_, err = svc.Adjust(ctx, AdjustInput{ItemID: item.ID, LocationID: 1, NewQuantity: 40, ActorID: 2})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Adjust(ctx, AdjustInput{ItemID: item.ID, LocationID: 1, NewQuantity: -1, Reason: "bad", ActorID: 2})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAllocationBounds(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	item := newTestItem(t, svc, "CRATE-XL")

	_, err := svc.Receive(ctx, ReceiveInput{ItemID: item.ID, LocationID: 1, Quantity: 10, ActorID: 1})
	require.NoError(t, err)

	require.NoError(t, svc.Allocate(ctx, item.ID, 1, 8, 1))
	require.ErrorIs(t, svc.Allocate(ctx, item.ID, 1, 5, 1), ErrAllocationExceedsStock)
	require.ErrorIs(t, svc.Allocate(ctx, item.ID, 2, 1, 1), ErrAllocationExceedsStock)

	levels, err := svc.StockLevels(ctx, item.ID)
	require.NoError(t, err)
	require.InDelta(t, 8.0, levels[0].AllocatedQuantity, 0.0001)
	require.InDelta(t, 2.0, levels[0].Available(), 0.0001)

	// Releasing more than reserved clamps at zero.
	require.NoError(t, svc.Deallocate(ctx, item.ID, 1, 20, 1))
	levels, err = svc.StockLevels(ctx, item.ID)
	require.NoError(t, err)
	require.InDelta(t, 0.0, levels[0].AllocatedQuantity, 0.0001)
	require.InDelta(t, 10.0, levels[0].Available(), 0.0001)
}

func TestDeleteItemWritesOffStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	item := newTestItem(t, svc, "PAL-COL")

	_, err := svc.Receive(ctx, ReceiveInput{ItemID: item.ID, LocationID: 1, Quantity: 25, ActorID: 1})
	require.NoError(t, err)
	_, err = svc.Receive(ctx, ReceiveInput{ItemID: item.ID, LocationID: 2, Quantity: 5, ActorID: 1})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteItem(ctx, item.ID, 9))

	deleted, err := repo.GetItem(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("DELETED_%d_PAL-COL", item.ID), deleted.SKU)
	require.False(t, deleted.IsActive)
	require.InDelta(t, 0.0, deleted.TotalStock, 0.0001)

	movements, err := svc.Movements(ctx, MovementFilter{ItemID: item.ID, MovementType: MovementAdjustment})
	require.NoError(t, err)
	require.Len(t, movements, 2)
	levels, err := svc.StockLevels(ctx, item.ID)
	require.NoError(t, err)
	for _, level := range levels {
		require.InDelta(t, 0.0, level.Quantity, 0.0001)
		require.InDelta(t, 0.0, level.AllocatedQuantity, 0.0001)
	}

	// A second delete finds only the renamed sku.
	require.ErrorIs(t, svc.DeleteItem(ctx, item.ID, 9), ErrNotFound)
}

func TestCreateItemDefaults(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	item, err := svc.CreateItem(ctx, Item{SKU: "cap-60", Name: "60mm cap"}, 1)
	require.NoError(t, err)
	require.Equal(t, "CAP-60", item.SKU)
	require.Equal(t, "pcs", item.UnitOfMeasure)
	require.Equal(t, TypeFinishedGoods, item.ItemType)
	require.InDelta(t, 30.0, item.TargetMarginPercent, 0.0001)
	require.True(t, item.IsActive)

	_, err = svc.CreateItem(ctx, Item{SKU: "CAP-60", Name: "duplicate"}, 1)
	require.ErrorIs(t, err, ErrDuplicateSKU)

	_, err = svc.CreateItem(ctx, Item{Name: "no sku"}, 1)
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateItem(ctx, Item{SKU: "BAD-TYPE", Name: "bad", ItemType: "widget"}, 1)
	require.ErrorIs(t, err, ErrValidation)
}

func TestDerivedPartCosts(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	item, err := svc.CreateItem(ctx, Item{
		SKU:                 "BKT-10L",
		Name:                "10L bucket",
		PartWeightGrams:     45.5,
		RunnerWeightGrams:   12,
		Cavities:            4,
		IdealCycleTime:      30,
		MaterialCostPerKg:   decimal.RequireFromString("2.50"),
		TargetMachineRate:   decimal.RequireFromString("35"),
		TargetMarginPercent: 30,
	}, 1)
	require.NoError(t, err)

	loaded, err := svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	// (45.5 + 12/4) / 1000 * 2.50
	require.Equal(t, "0.1213", loaded.MaterialCostPerPart.String())
	// 35 / ((3600/30) * 4)
	require.Equal(t, "0.0729", loaded.CycleCostPerPart.String())
	require.Equal(t, "0.1942", loaded.TotalCostPerPart.String())
	// 0.1942 / 0.7
	require.Equal(t, "0.2774", loaded.SuggestedSellingPrice.String())
}

func TestLowStockThresholdPrecedence(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	reorder, err := svc.CreateItem(ctx, Item{SKU: "RE-ORDER", Name: "reorder governs", ReorderPoint: 50, MinStockLevel: 20}, 1)
	require.NoError(t, err)
	minOnly, err := svc.CreateItem(ctx, Item{SKU: "MIN-ONLY", Name: "min governs", MinStockLevel: 20}, 1)
	require.NoError(t, err)
	unbounded, err := svc.CreateItem(ctx, Item{SKU: "NO-LIMIT", Name: "never low"}, 1)
	require.NoError(t, err)

	stock := func(itemID int64, qty float64) {
		err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.UpsertStockLevel(ctx, StockLevel{ItemID: itemID, LocationID: 1, Quantity: qty})
		})
		require.NoError(t, err)
	}
	stock(reorder.ID, 45)
	stock(minOnly.ID, 21)
	stock(unbounded.ID, 0)

	low, err := svc.LowStockItems(ctx)
	require.NoError(t, err)
	require.Len(t, low, 1)
	require.Equal(t, "RE-ORDER", low[0].SKU)
	require.True(t, low[0].IsLowStock)

	stock(minOnly.ID, 19)
	low, err = svc.LowStockItems(ctx)
	require.NoError(t, err)
	require.Len(t, low, 2)
}
