package sales

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
	orders map[int64]SalesOrder
	lines  map[int64]SalesOrderLine

	nextOrder int64
	nextLine  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		orders: map[int64]SalesOrder{},
		lines:  map[int64]SalesOrderLine{},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetOrder(ctx context.Context, id int64) (SalesOrder, error) {
	o, ok := r.orders[id]
	if !ok {
		return SalesOrder{}, ErrNotFound
	}
	return o, nil
}

func (r *memoryRepo) GetLines(ctx context.Context, orderID int64) ([]SalesOrderLine, error) {
	lines := []SalesOrderLine{}
	for _, l := range r.lines {
		if l.SalesOrderID == orderID {
			lines = append(lines, l)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].LineNumber < lines[j].LineNumber })
	return lines, nil
}

func (r *memoryRepo) ListOrders(ctx context.Context, f OrderFilter) ([]SalesOrder, int, error) {
	orders := []SalesOrder{}
	for _, o := range r.orders {
		if !f.IncludeArchived && f.Status == "" && o.Status == StatusArchived {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.CustomerID > 0 && o.CustomerID != f.CustomerID {
			continue
		}
		if f.Search != "" && !strings.Contains(o.OrderNumber, f.Search) && !strings.Contains(o.CustomerPO, f.Search) {
			continue
		}
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID > orders[j].ID })
	return orders, len(orders), nil
}

func (r *memoryRepo) Search(ctx context.Context, term string, limit int) ([]SalesOrder, error) {
	orders, _, err := r.ListOrders(ctx, OrderFilter{Search: term, IncludeArchived: true})
	if err != nil {
		return nil, err
	}
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) GenerateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	prefix := "SO-" + now.Format("060102")
	count := 0
	for _, o := range t.repo.orders {
		if strings.HasPrefix(o.OrderNumber, prefix) {
			count++
		}
	}
	return fmt.Sprintf("%s-%04d", prefix, count+1), nil
}

func (t *memoryTx) CreateOrder(ctx context.Context, o SalesOrder) (SalesOrder, error) {
	t.repo.nextOrder++
	o.ID = t.repo.nextOrder
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	t.repo.orders[o.ID] = o
	return o, nil
}

func (t *memoryTx) UpdateHeader(ctx context.Context, id int64, o SalesOrder) error {
	existing, ok := t.repo.orders[id]
	if !ok {
		return ErrNotFound
	}
	existing.CustomerPO = o.CustomerPO
	existing.RequiredDate = o.RequiredDate
	existing.DeliveryName = o.DeliveryName
	existing.DeliveryAddress = o.DeliveryAddress
	existing.DeliveryCity = o.DeliveryCity
	existing.DeliveryPostcode = o.DeliveryPostcode
	existing.DeliveryMethod = o.DeliveryMethod
	existing.ShippingCost = o.ShippingCost
	existing.TaxRatePercent = o.TaxRatePercent
	existing.Notes = o.Notes
	existing.InternalNotes = o.InternalNotes
	t.repo.orders[id] = existing
	return nil
}

func (t *memoryTx) SetStatus(ctx context.Context, id int64, from, to string) (bool, error) {
	o, ok := t.repo.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	t.repo.orders[id] = o
	return true, nil
}

func (t *memoryTx) SetTotals(ctx context.Context, id int64, totals Totals, shipping decimal.Decimal, taxRate float64) error {
	o, ok := t.repo.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Subtotal = totals.Subtotal
	o.TaxAmount = totals.TaxAmount
	o.TotalAmount = totals.TotalAmount
	o.ShippingCost = shipping
	o.TaxRatePercent = taxRate
	t.repo.orders[id] = o
	return nil
}

func (t *memoryTx) DeleteOrder(ctx context.Context, id int64) error {
	if _, ok := t.repo.orders[id]; !ok {
		return ErrNotFound
	}
	delete(t.repo.orders, id)
	for lineID, l := range t.repo.lines {
		if l.SalesOrderID == id {
			delete(t.repo.lines, lineID)
		}
	}
	return nil
}

func (t *memoryTx) ArchiveFinished(ctx context.Context) (int64, error) {
	var archived int64
	for id, o := range t.repo.orders {
		if o.Status == StatusDelivered || o.Status == StatusCancelled {
			o.Status = StatusArchived
			t.repo.orders[id] = o
			archived++
		}
	}
	return archived, nil
}

func (t *memoryTx) NextLineNumber(ctx context.Context, orderID int64) (int, error) {
	max := 0
	for _, l := range t.repo.lines {
		if l.SalesOrderID == orderID && l.LineNumber > max {
			max = l.LineNumber
		}
	}
	return max + 1, nil
}

func (t *memoryTx) InsertLine(ctx context.Context, l SalesOrderLine) (SalesOrderLine, error) {
	t.repo.nextLine++
	l.ID = t.repo.nextLine
	t.repo.lines[l.ID] = l
	return l, nil
}

func (t *memoryTx) DeleteLine(ctx context.Context, orderID, lineID int64) error {
	l, ok := t.repo.lines[lineID]
	if !ok || l.SalesOrderID != orderID {
		return ErrNotFound
	}
	delete(t.repo.lines, lineID)
	return nil
}

func (t *memoryTx) GetLines(ctx context.Context, orderID int64) ([]SalesOrderLine, error) {
	return t.repo.GetLines(ctx, orderID)
}

func (t *memoryTx) AddAllocated(ctx context.Context, lineID int64, quantity float64) error {
	l, ok := t.repo.lines[lineID]
	if !ok {
		return ErrNotFound
	}
	l.QuantityAllocated += quantity
	t.repo.lines[lineID] = l
	return nil
}

func (t *memoryTx) AddShipped(ctx context.Context, lineID int64, quantity float64) error {
	l, ok := t.repo.lines[lineID]
	if !ok {
		return ErrNotFound
	}
	l.QuantityShipped += quantity
	l.QuantityAllocated -= quantity
	if l.QuantityAllocated < 0 {
		l.QuantityAllocated = 0
	}
	t.repo.lines[lineID] = l
	return nil
}

type fakeInventory struct {
	stock     map[int64]ItemStock
	allocated []string
}

func (f *fakeInventory) ItemStock(ctx context.Context, itemID int64) (ItemStock, error) {
	s, ok := f.stock[itemID]
	if !ok {
		return ItemStock{}, fmt.Errorf("item %d missing", itemID)
	}
	return s, nil
}

func (f *fakeInventory) Allocate(ctx context.Context, itemID, locationID int64, quantity float64, actorID int64) error {
	f.allocated = append(f.allocated, fmt.Sprintf("%d@%d=%.0f", itemID, locationID, quantity))
	s := f.stock[itemID]
	for i := range s.Levels {
		if s.Levels[i].LocationID == locationID {
			s.Levels[i].Allocated += quantity
		}
	}
	f.stock[itemID] = s
	return nil
}

type fakeProduction struct {
	planned map[string]struct {
		id       int64
		required int64
	}
	created []MakeToOrderRequest
	raised  map[int64]int64
}

func newFakeProduction() *fakeProduction {
	return &fakeProduction{
		planned: map[string]struct {
			id       int64
			required int64
		}{},
		raised: map[int64]int64{},
	}
}

func (f *fakeProduction) FindPlannedOrder(ctx context.Context, salesOrderID, itemID int64) (int64, int64, error) {
	key := fmt.Sprintf("%d/%d", salesOrderID, itemID)
	p, ok := f.planned[key]
	if !ok {
		return 0, 0, ErrNotFound
	}
	return p.id, p.required, nil
}

func (f *fakeProduction) CreateMakeToOrder(ctx context.Context, req MakeToOrderRequest) error {
	f.created = append(f.created, req)
	return nil
}

func (f *fakeProduction) RaiseDemand(ctx context.Context, orderID, quantity, actorID int64) error {
	f.raised[orderID] = quantity
	return nil
}

type fakeCustomers struct{}

func (fakeCustomers) Customer(ctx context.Context, id int64) (CustomerInfo, error) {
	return CustomerInfo{
		Name:             "Acme Plastics",
		DeliveryAddress:  "1 Factory Lane",
		DeliveryCity:     "Leeds",
		DeliveryPostcode: "LS1 1AA",
		IsActive:         true,
	}, nil
}

func newTestService(repo *memoryRepo) (*Service, *fakeInventory, *fakeProduction) {
	service := NewService(repo, nil)
	inv := &fakeInventory{stock: map[int64]ItemStock{}}
	prod := newFakeProduction()
	service.SetCustomerService(fakeCustomers{})
	service.SetInventoryService(inv)
	service.SetProductionService(prod)
	return service, inv, prod
}

func mustCreateOrder(t *testing.T, service *Service) SalesOrder {
	t.Helper()
	order, err := service.CreateOrder(context.Background(), CreateOrderRequest{CustomerID: 1, ActorID: 7})
	require.NoError(t, err)
	return order
}

func TestCreateOrderDefaultsFromCustomer(t *testing.T) {
	service, _, _ := newTestService(newMemoryRepo())
	order := mustCreateOrder(t, service)

	require.True(t, strings.HasPrefix(order.OrderNumber, "SO-"))
	require.Equal(t, StatusNew, order.Status)
	require.Equal(t, "Acme Plastics", order.DeliveryName)
	require.Equal(t, "LS1 1AA", order.DeliveryPostcode)
	require.InDelta(t, DefaultTaxRatePercent, order.TaxRatePercent, 0.001)
}

func TestAddLineRecalculatesTotals(t *testing.T) {
	repo := newMemoryRepo()
	service, inv, _ := newTestService(repo)
	inv.stock[10] = ItemStock{SKU: "CAP-01", Name: "Cap", SellingPrice: decimal.NewFromFloat(0.50)}
	order := mustCreateOrder(t, service)

	updated, err := service.AddLine(context.Background(), order.ID, AddLineRequest{
		ItemID:   ptr(int64(10)),
		Quantity: 1000,
	})
	require.NoError(t, err)
	require.Len(t, updated.Lines, 1)
	// 1000 x 0.50 = 500.00 goods, VAT 20% on goods.
	require.Equal(t, "500", updated.Subtotal.String())
	require.Equal(t, "100", updated.TaxAmount.String())
	require.Equal(t, "600", updated.TotalAmount.String())

	discounted, err := service.AddLine(context.Background(), order.ID, AddLineRequest{
		ItemID:          ptr(int64(10)),
		Quantity:        100,
		UnitPrice:       decimalPtr("1.00"),
		DiscountPercent: 10,
	})
	require.NoError(t, err)
	require.Equal(t, "590", discounted.Subtotal.String())
}

func TestAddLineLockedAfterDispatch(t *testing.T) {
	repo := newMemoryRepo()
	service, inv, _ := newTestService(repo)
	inv.stock[10] = ItemStock{SKU: "CAP-01", SellingPrice: decimal.NewFromFloat(1)}
	order := mustCreateOrder(t, service)

	setOrderStatus(repo, order.ID, StatusDispatched)
	_, err := service.AddLine(context.Background(), order.ID, AddLineRequest{ItemID: ptr(int64(10)), Quantity: 5})
	require.ErrorIs(t, err, ErrLinesLocked)
}

func TestStatusTransitionTable(t *testing.T) {
	repo := newMemoryRepo()
	service, _, _ := newTestService(repo)
	order := mustCreateOrder(t, service)

	_, err := service.UpdateStatus(context.Background(), order.ID, StatusDelivered, 1)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Contains(t, err.Error(), "allowed:")

	moved, err := service.UpdateStatus(context.Background(), order.ID, StatusInProduction, 1)
	require.NoError(t, err)
	require.Equal(t, StatusInProduction, moved.Status)

	setOrderStatus(repo, order.ID, StatusArchived)
	_, err = service.UpdateStatus(context.Background(), order.ID, StatusNew, 1)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestProcessRaisesAndTopsUpProduction(t *testing.T) {
	repo := newMemoryRepo()
	service, inv, prod := newTestService(repo)
	inv.stock[10] = ItemStock{SKU: "CAP-01", SellingPrice: decimal.NewFromFloat(1), Total: 200}
	inv.stock[11] = ItemStock{SKU: "LID-02", SellingPrice: decimal.NewFromFloat(2), Total: 5000}
	order := mustCreateOrder(t, service)
	_, err := service.AddLine(context.Background(), order.ID, AddLineRequest{ItemID: ptr(int64(10)), Quantity: 1000})
	require.NoError(t, err)
	_, err = service.AddLine(context.Background(), order.ID, AddLineRequest{ItemID: ptr(int64(11)), Quantity: 100})
	require.NoError(t, err)

	result, err := service.Process(context.Background(), order.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusInProduction, result.Status)
	require.Equal(t, 1, result.OrdersRaised)
	require.Equal(t, []string{"CAP-01"}, result.ShortItems)
	require.Len(t, prod.created, 1)
	require.Equal(t, int64(800), prod.created[0].Quantity)
	require.Equal(t, order.ID, prod.created[0].SalesOrderID)

	// Second pass finds the planned order and lifts it instead.
	prod.planned[fmt.Sprintf("%d/10", order.ID)] = struct {
		id       int64
		required int64
	}{id: 55, required: 500}
	result, err = service.Process(context.Background(), order.ID, 7)
	require.NoError(t, err)
	require.Equal(t, 1, result.OrdersToppedUp)
	require.Equal(t, int64(800), prod.raised[55])
}

func TestProcessFullyCoveredGoesReadyToShip(t *testing.T) {
	repo := newMemoryRepo()
	service, inv, prod := newTestService(repo)
	inv.stock[10] = ItemStock{SKU: "CAP-01", SellingPrice: decimal.NewFromFloat(1), Total: 5000}
	order := mustCreateOrder(t, service)
	_, err := service.AddLine(context.Background(), order.ID, AddLineRequest{ItemID: ptr(int64(10)), Quantity: 1000})
	require.NoError(t, err)

	result, err := service.Process(context.Background(), order.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusReadyToShip, result.Status)
	require.Empty(t, prod.created)
}

func TestAllocateGreedyAcrossLevels(t *testing.T) {
	repo := newMemoryRepo()
	service, inv, _ := newTestService(repo)
	inv.stock[10] = ItemStock{
		SKU:          "CAP-01",
		SellingPrice: decimal.NewFromFloat(1),
		Total:        700,
		Levels: []LevelStock{
			{LocationID: 1, Quantity: 500, Allocated: 0},
			{LocationID: 2, Quantity: 200, Allocated: 0},
		},
	}
	order := mustCreateOrder(t, service)
	updated, err := service.AddLine(context.Background(), order.ID, AddLineRequest{ItemID: ptr(int64(10)), Quantity: 600})
	require.NoError(t, err)
	lineID := updated.Lines[0].ID

	result, err := service.Allocate(context.Background(), order.ID, 7)
	require.NoError(t, err)
	require.True(t, result.Complete)
	require.InDelta(t, 600, result.Allocated[lineID], 0.001)
	require.Equal(t, []string{"10@1=500", "10@2=100"}, inv.allocated)

	lines, err := repo.GetLines(context.Background(), order.ID)
	require.NoError(t, err)
	require.InDelta(t, 600, lines[0].QuantityAllocated, 0.001)
}

func TestAllocatePartialWhenShort(t *testing.T) {
	repo := newMemoryRepo()
	service, inv, _ := newTestService(repo)
	inv.stock[10] = ItemStock{
		SKU:          "CAP-01",
		SellingPrice: decimal.NewFromFloat(1),
		Total:        100,
		Levels:       []LevelStock{{LocationID: 1, Quantity: 100}},
	}
	order := mustCreateOrder(t, service)
	_, err := service.AddLine(context.Background(), order.ID, AddLineRequest{ItemID: ptr(int64(10)), Quantity: 600})
	require.NoError(t, err)

	result, err := service.Allocate(context.Background(), order.ID, 7)
	require.NoError(t, err)
	require.False(t, result.Complete)
}

func TestApplyShipmentPartialThenComplete(t *testing.T) {
	repo := newMemoryRepo()
	service, inv, _ := newTestService(repo)
	inv.stock[10] = ItemStock{SKU: "CAP-01", SellingPrice: decimal.NewFromFloat(1), Total: 5000}
	order := mustCreateOrder(t, service)
	updated, err := service.AddLine(context.Background(), order.ID, AddLineRequest{ItemID: ptr(int64(10)), Quantity: 1000})
	require.NoError(t, err)
	lineID := updated.Lines[0].ID
	setOrderStatus(repo, order.ID, StatusReadyToShip)

	result, err := service.ApplyShipment(context.Background(), order.ID,
		[]ShipmentLine{{LineID: lineID, Quantity: 400}}, 7)
	require.NoError(t, err)
	require.False(t, result.Complete)
	require.Equal(t, StatusPartiallyShipped, result.Order.Status)
	require.Len(t, result.Shipped, 1)
	require.InDelta(t, 400, result.Shipped[0].Quantity, 0.001)

	// Over-asking caps at the remaining 600 and completes the order.
	result, err = service.ApplyShipment(context.Background(), order.ID,
		[]ShipmentLine{{LineID: lineID, Quantity: 900}}, 7)
	require.NoError(t, err)
	require.True(t, result.Complete)
	require.Equal(t, StatusDispatched, result.Order.Status)
	require.InDelta(t, 600, result.Shipped[0].Quantity, 0.001)

	_, err = service.ApplyShipment(context.Background(), order.ID,
		[]ShipmentLine{{LineID: lineID, Quantity: 1}}, 7)
	require.ErrorIs(t, err, ErrNotDispatchable)
}

func TestApplyShipmentRejectsWrongStatus(t *testing.T) {
	repo := newMemoryRepo()
	service, inv, _ := newTestService(repo)
	inv.stock[10] = ItemStock{SKU: "CAP-01", SellingPrice: decimal.NewFromFloat(1)}
	order := mustCreateOrder(t, service)
	updated, err := service.AddLine(context.Background(), order.ID, AddLineRequest{ItemID: ptr(int64(10)), Quantity: 10})
	require.NoError(t, err)

	_, err = service.ApplyShipment(context.Background(), order.ID,
		[]ShipmentLine{{LineID: updated.Lines[0].ID, Quantity: 10}}, 7)
	require.ErrorIs(t, err, ErrNotDispatchable)
}

func TestArchiveOnlyFinishedOrders(t *testing.T) {
	repo := newMemoryRepo()
	service, _, _ := newTestService(repo)
	order := mustCreateOrder(t, service)

	_, err := service.Archive(context.Background(), order.ID, 1)
	require.ErrorIs(t, err, ErrInvalidTransition)

	setOrderStatus(repo, order.ID, StatusDelivered)
	archived, err := service.Archive(context.Background(), order.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusArchived, archived.Status)
}

func TestArchiveFinishedBulk(t *testing.T) {
	repo := newMemoryRepo()
	service, _, _ := newTestService(repo)
	first := mustCreateOrder(t, service)
	second := mustCreateOrder(t, service)
	mustCreateOrder(t, service)
	setOrderStatus(repo, first.ID, StatusDelivered)
	setOrderStatus(repo, second.ID, StatusCancelled)

	archived, err := service.ArchiveFinished(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), archived)
}

func TestDeleteCascades(t *testing.T) {
	repo := newMemoryRepo()
	service, inv, _ := newTestService(repo)
	inv.stock[10] = ItemStock{SKU: "CAP-01", SellingPrice: decimal.NewFromFloat(1)}
	order := mustCreateOrder(t, service)
	_, err := service.AddLine(context.Background(), order.ID, AddLineRequest{ItemID: ptr(int64(10)), Quantity: 10})
	require.NoError(t, err)

	require.NoError(t, service.Delete(context.Background(), order.ID, 1))
	_, err = service.GetOrder(context.Background(), order.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.Empty(t, repo.lines)
}

func TestComputeTotalsRounding(t *testing.T) {
	lines := []SalesOrderLine{
		{QuantityOrdered: 3, UnitPrice: decimal.RequireFromString("0.333")},
	}
	totals := ComputeTotals(lines, decimal.RequireFromString("10.00"), 20)
	require.Equal(t, "1", totals.Subtotal.String())
	require.Equal(t, "2.2", totals.TaxAmount.String())
	require.Equal(t, "13.2", totals.TotalAmount.String())
}

func setOrderStatus(repo *memoryRepo, id int64, status string) {
	o := repo.orders[id]
	o.Status = status
	repo.orders[id] = o
}

func ptr[T any](v T) *T {
	return &v
}

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
