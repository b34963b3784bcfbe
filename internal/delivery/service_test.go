package delivery

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	nextID     int64
	deliveries map[int64]Delivery
	sequence   int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{nextID: 1, deliveries: map[int64]Delivery{}}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: m})
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Delivery, error) {
	d, ok := m.deliveries[id]
	if !ok {
		return Delivery{}, ErrNotFound
	}
	return d, nil
}

func (m *memoryRepo) List(_ context.Context, f ListFilter) ([]Delivery, int, error) {
	out := []Delivery{}
	for _, d := range m.deliveries {
		if f.SalesOrderID > 0 && d.SalesOrderID != f.SalesOrderID {
			continue
		}
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) GenerateNumber(_ context.Context, now time.Time) (string, error) {
	t.repo.sequence++
	return fmt.Sprintf("DEL-%s-%04d", now.Format("060102"), t.repo.sequence), nil
}

func (t *memoryTx) Insert(_ context.Context, d Delivery) (Delivery, error) {
	d.ID = t.repo.nextID
	t.repo.nextID++
	d.CreatedAt = time.Now()
	t.repo.deliveries[d.ID] = d
	return d, nil
}

func (t *memoryTx) SetDelivered(_ context.Context, id int64) (bool, error) {
	d, ok := t.repo.deliveries[id]
	if !ok || d.Status != StatusDispatched {
		return false, nil
	}
	d.Status = StatusDelivered
	t.repo.deliveries[id] = d
	return true, nil
}

func (t *memoryTx) SetSignedNote(_ context.Context, id int64, filename string) error {
	d, ok := t.repo.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.SignedNoteFile = filename
	t.repo.deliveries[id] = d
	return nil
}

type fakeSales struct {
	orders    map[int64]Order
	shipments [][]ShipmentLine
	delivered []int64
}

func (f *fakeSales) Order(_ context.Context, orderID int64) (Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	return order, nil
}

func (f *fakeSales) ApplyShipment(_ context.Context, orderID int64, lines []ShipmentLine, _ int64) error {
	f.shipments = append(f.shipments, lines)
	order := f.orders[orderID]
	for i := range order.Lines {
		for _, shipped := range lines {
			if order.Lines[i].LineID == shipped.LineID {
				order.Lines[i].QuantityShipped += shipped.Quantity
			}
		}
	}
	f.orders[orderID] = order
	return nil
}

func (f *fakeSales) MarkDelivered(_ context.Context, orderID, _ int64) error {
	f.delivered = append(f.delivered, orderID)
	return nil
}

type fakeInventory struct {
	levels map[int64][]StockLevel
	ships  []string
}

func (f *fakeInventory) Levels(_ context.Context, itemID int64) ([]StockLevel, error) {
	return f.levels[itemID], nil
}

func (f *fakeInventory) Ship(_ context.Context, itemID, locationID int64, quantity float64, _ string, _ int64, _ string) error {
	f.ships = append(f.ships, fmt.Sprintf("%d@%d=%g", itemID, locationID, quantity))
	levels := f.levels[itemID]
	for i := range levels {
		if levels[i].LocationID == locationID {
			levels[i].Quantity -= quantity
		}
	}
	f.levels[itemID] = levels
	return nil
}

func itemID(id int64) *int64 { return &id }

func newDispatchFixture() (*Service, *memoryRepo, *fakeSales, *fakeInventory) {
	repo := newMemoryRepo()
	sales := &fakeSales{orders: map[int64]Order{
		7: {
			ID:           7,
			OrderNumber:  "SO-260830-0001",
			CustomerName: "Acme Plastics",
			Status:       "ready_to_ship",
			Dispatchable: true,
			Lines: []OrderLine{
				{LineID: 1, ItemID: itemID(10), SKU: "CAP-01", QuantityOrdered: 1000},
				{LineID: 2, ItemID: itemID(11), SKU: "LID-02", QuantityOrdered: 200},
			},
		},
	}}
	inv := &fakeInventory{levels: map[int64][]StockLevel{
		10: {{LocationID: 1, Quantity: 700}, {LocationID: 2, Quantity: 500}},
		11: {{LocationID: 1, Quantity: 200}},
	}}
	svc := NewService(repo, nil, nil)
	svc.SetSalesService(sales)
	svc.SetInventoryService(inv)
	return svc, repo, sales, inv
}

func TestDispatchDeductsGreedilyAndCutsDelivery(t *testing.T) {
	svc, repo, sales, inv := newDispatchFixture()

	created, err := svc.Dispatch(context.Background(), DispatchRequest{
		OrderID: 7,
		Lines: []RequestedLine{
			{LineID: 1, Quantity: 900},
			{LineID: 2, Quantity: 200},
		},
		Carrier:     "DPD",
		NumPackages: 4,
	})
	require.NoError(t, err)
	require.Equal(t, StatusDispatched, created.Status)
	require.Equal(t, "SO-260830-0001", created.OrderNumber)
	require.Contains(t, created.DeliveryNumber, "DEL-")

	// 900 of item 10 comes 700 from location 1 then 200 from location 2.
	require.Equal(t, []string{"10@1=700", "10@2=200", "11@1=200"}, inv.ships)
	require.Len(t, sales.shipments, 1)
	require.Len(t, repo.deliveries, 1)
}

func TestDispatchCapsAtRemaining(t *testing.T) {
	svc, _, sales, _ := newDispatchFixture()
	order := sales.orders[7]
	order.Lines[0].QuantityShipped = 900
	sales.orders[7] = order

	_, err := svc.Dispatch(context.Background(), DispatchRequest{
		OrderID: 7,
		Lines:   []RequestedLine{{LineID: 1, Quantity: 5000}},
	})
	require.NoError(t, err)
	require.Equal(t, []ShipmentLine{{LineID: 1, Quantity: 100}}, sales.shipments[0])
}

func TestDispatchRejectsUnknownLine(t *testing.T) {
	svc, _, _, _ := newDispatchFixture()
	_, err := svc.Dispatch(context.Background(), DispatchRequest{
		OrderID: 7,
		Lines:   []RequestedLine{{LineID: 99, Quantity: 10}},
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestDispatchRejectsNonDispatchableOrder(t *testing.T) {
	svc, _, sales, _ := newDispatchFixture()
	order := sales.orders[7]
	order.Status = "new"
	order.Dispatchable = false
	sales.orders[7] = order

	_, err := svc.Dispatch(context.Background(), DispatchRequest{
		OrderID: 7,
		Lines:   []RequestedLine{{LineID: 1, Quantity: 100}},
	})
	require.ErrorIs(t, err, ErrNotDispatchable)
}

func TestDispatchNothingLeftToShip(t *testing.T) {
	svc, _, sales, _ := newDispatchFixture()
	order := sales.orders[7]
	order.Lines[0].QuantityShipped = 1000
	sales.orders[7] = order

	_, err := svc.Dispatch(context.Background(), DispatchRequest{
		OrderID: 7,
		Lines:   []RequestedLine{{LineID: 1, Quantity: 100}},
	})
	require.ErrorIs(t, err, ErrNothingToShip)
}

func TestDispatchFailsBeforeAnyDeductionWhenShort(t *testing.T) {
	svc, _, _, inv := newDispatchFixture()
	inv.levels[10] = []StockLevel{{LocationID: 1, Quantity: 50}}

	_, err := svc.Dispatch(context.Background(), DispatchRequest{
		OrderID: 7,
		Lines: []RequestedLine{
			{LineID: 1, Quantity: 900},
			{LineID: 2, Quantity: 200},
		},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Empty(t, inv.ships)
}

func TestDispatchSkipsStockForCustomLines(t *testing.T) {
	svc, _, sales, inv := newDispatchFixture()
	order := sales.orders[7]
	order.Lines = append(order.Lines, OrderLine{LineID: 3, SKU: "TOOLING", QuantityOrdered: 1})
	sales.orders[7] = order

	_, err := svc.Dispatch(context.Background(), DispatchRequest{
		OrderID: 7,
		Lines:   []RequestedLine{{LineID: 3, Quantity: 1}},
	})
	require.NoError(t, err)
	require.Empty(t, inv.ships)
	require.Equal(t, []ShipmentLine{{LineID: 3, Quantity: 1}}, sales.shipments[0])
}

func TestMarkDeliveredFollowsThroughToOrder(t *testing.T) {
	svc, repo, sales, _ := newDispatchFixture()
	created, err := svc.Dispatch(context.Background(), DispatchRequest{
		OrderID: 7,
		Lines:   []RequestedLine{{LineID: 1, Quantity: 1000}, {LineID: 2, Quantity: 200}},
	})
	require.NoError(t, err)

	updated, err := svc.MarkDelivered(context.Background(), created.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, updated.Status)
	require.Equal(t, []int64{7}, sales.delivered)

	// A second attempt finds nothing out for delivery.
	_, err = svc.MarkDelivered(context.Background(), created.ID, 1)
	require.ErrorIs(t, err, ErrValidation)
	require.Equal(t, StatusDelivered, repo.deliveries[created.ID].Status)
}

func TestAttachSignedNote(t *testing.T) {
	svc, repo, _, _ := newDispatchFixture()
	created, err := svc.Dispatch(context.Background(), DispatchRequest{
		OrderID: 7,
		Lines:   []RequestedLine{{LineID: 2, Quantity: 200}},
	})
	require.NoError(t, err)

	updated, err := svc.AttachSignedNote(context.Background(), created.ID, "pod-1.pdf", 1)
	require.NoError(t, err)
	require.Equal(t, "pod-1.pdf", updated.SignedNoteFile)
	require.Equal(t, "pod-1.pdf", repo.deliveries[created.ID].SignedNoteFile)

	_, err = svc.AttachSignedNote(context.Background(), created.ID, "", 1)
	require.ErrorIs(t, err, ErrValidation)
}

func TestListFiltersByOrderAndStatus(t *testing.T) {
	svc, _, sales, _ := newDispatchFixture()
	sales.orders[8] = Order{
		ID: 8, OrderNumber: "SO-260830-0002", Status: "ready_to_ship", Dispatchable: true,
		Lines: []OrderLine{{LineID: 9, ItemID: itemID(10), SKU: "CAP-01", QuantityOrdered: 50}},
	}
	_, err := svc.Dispatch(context.Background(), DispatchRequest{
		OrderID: 7, Lines: []RequestedLine{{LineID: 2, Quantity: 200}},
	})
	require.NoError(t, err)
	_, err = svc.Dispatch(context.Background(), DispatchRequest{
		OrderID: 8, Lines: []RequestedLine{{LineID: 9, Quantity: 50}},
	})
	require.NoError(t, err)

	all, total, err := svc.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, all, 2)

	forOrder, _, err := svc.List(context.Background(), ListFilter{SalesOrderID: 8})
	require.NoError(t, err)
	require.Len(t, forOrder, 1)
	require.Equal(t, int64(8), forOrder[0].SalesOrderID)
}
