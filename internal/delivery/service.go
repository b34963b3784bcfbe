package delivery

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mouldworks/mouldworks/internal/shared"
)

// OrderLine is a sales order line as despatch sees it.
type OrderLine struct {
	LineID          int64
	ItemID          *int64
	SKU             string
	Description     string
	QuantityOrdered float64
	QuantityShipped float64
	UnitPrice       decimal.Decimal
}

// Remaining is the quantity still to ship on the line.
func (l OrderLine) Remaining() float64 {
	remaining := l.QuantityOrdered - l.QuantityShipped
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Order is the despatch view of a sales order: address block plus lines.
type Order struct {
	ID               int64
	OrderNumber      string
	CustomerName     string
	CustomerPO       string
	Status           string
	Dispatchable     bool
	DeliveryName     string
	DeliveryAddress  string
	DeliveryCity     string
	DeliveryPostcode string
	DeliveryMethod   string
	Lines            []OrderLine
}

// ShipmentLine mirrors the sales module's dispatch booking input.
type ShipmentLine struct {
	LineID   int64
	Quantity float64
}

// SalesService is the order surface despatch depends on.
type SalesService interface {
	Order(ctx context.Context, orderID int64) (Order, error)
	ApplyShipment(ctx context.Context, orderID int64, lines []ShipmentLine, actorID int64) error
	MarkDelivered(ctx context.Context, orderID, actorID int64) error
}

// StockLevel is one location's on-hand quantity for greedy deduction.
type StockLevel struct {
	LocationID int64
	Quantity   float64
}

// InventoryService deducts shipped stock from the ledger.
type InventoryService interface {
	Levels(ctx context.Context, itemID int64) ([]StockLevel, error)
	Ship(ctx context.Context, itemID, locationID int64, quantity float64, reference string, actorID int64, idempotencyKey string) error
}

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	Get(ctx context.Context, id int64) (Delivery, error)
	List(ctx context.Context, f ListFilter) ([]Delivery, int, error)
}

// AuditPort records despatch actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns physical despatches: stock out, delivery paperwork and
// proof of delivery.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	sales       SalesService
	inventory   InventoryService
}

// NewService constructs the delivery service.
func NewService(repo RepositoryPort, audit AuditPort, idempotency *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idempotency}
}

// SetSalesService wires the order integration.
func (s *Service) SetSalesService(sales SalesService) {
	s.sales = sales
}

// SetInventoryService wires stock deduction.
func (s *Service) SetInventoryService(inv InventoryService) {
	s.inventory = inv
}

// Get loads one delivery.
func (s *Service) Get(ctx context.Context, id int64) (Delivery, error) {
	return s.repo.Get(ctx, id)
}

// List returns a filtered page of deliveries plus the total count.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Delivery, int, error) {
	return s.repo.List(ctx, f)
}

// Order exposes the despatch view of a sales order for pick sheets.
func (s *Service) Order(ctx context.Context, orderID int64) (Order, error) {
	if s.sales == nil {
		return Order{}, fmt.Errorf("delivery: sales service not wired")
	}
	return s.sales.Order(ctx, orderID)
}

// Dispatch sends stock out against a sales order: quantities cap at each
// line's remaining amount, stock is checked then deducted greedily across
// the item's locations, the order's lines and status move, and a
// delivery record is cut. Partial dispatches are fine; the order lands
// in partially_shipped until the last line goes.
func (s *Service) Dispatch(ctx context.Context, req DispatchRequest) (Delivery, error) {
	if s.sales == nil || s.inventory == nil {
		return Delivery{}, fmt.Errorf("delivery: sales and inventory services not wired")
	}
	order, err := s.sales.Order(ctx, req.OrderID)
	if err != nil {
		return Delivery{}, err
	}
	if !order.Dispatchable {
		return Delivery{}, ErrNotDispatchable
	}

	byLine := map[int64]OrderLine{}
	for _, line := range order.Lines {
		byLine[line.LineID] = line
	}
	shipments := []ShipmentLine{}
	stockOut := map[int64]float64{} // item id -> quantity out
	for _, requested := range req.Lines {
		line, ok := byLine[requested.LineID]
		if !ok {
			return Delivery{}, fmt.Errorf("delivery: line %d not on order: %w", requested.LineID, ErrValidation)
		}
		quantity := math.Min(requested.Quantity, line.Remaining())
		if quantity <= 0 {
			continue
		}
		shipments = append(shipments, ShipmentLine{LineID: line.LineID, Quantity: quantity})
		if line.ItemID != nil {
			stockOut[*line.ItemID] += quantity
		}
	}
	if len(shipments) == 0 {
		return Delivery{}, ErrNothingToShip
	}

	// Check the whole dispatch is covered before any stock moves.
	itemIDs := make([]int64, 0, len(stockOut))
	for itemID := range stockOut {
		itemIDs = append(itemIDs, itemID)
	}
	sort.Slice(itemIDs, func(i, j int) bool { return itemIDs[i] < itemIDs[j] })
	levelsByItem := map[int64][]StockLevel{}
	for _, itemID := range itemIDs {
		levels, err := s.inventory.Levels(ctx, itemID)
		if err != nil {
			return Delivery{}, err
		}
		onHand := 0.0
		for _, level := range levels {
			onHand += level.Quantity
		}
		if onHand < stockOut[itemID] {
			return Delivery{}, fmt.Errorf("delivery: item %d short by %.2f: %w",
				itemID, stockOut[itemID]-onHand, ErrInsufficientStock)
		}
		levelsByItem[itemID] = levels
	}
	for _, itemID := range itemIDs {
		remaining := stockOut[itemID]
		for _, level := range levelsByItem[itemID] {
			if remaining <= 0 {
				break
			}
			take := math.Min(remaining, level.Quantity)
			if take <= 0 {
				continue
			}
			key := req.IdempotencyKey
			if key != "" {
				key = fmt.Sprintf("%s:%d:%d", key, itemID, level.LocationID)
			}
			if err := s.inventory.Ship(ctx, itemID, level.LocationID, take, order.OrderNumber, req.ActorID, key); err != nil {
				return Delivery{}, fmt.Errorf("ship stock: %w", err)
			}
			remaining -= take
		}
	}

	if err := s.sales.ApplyShipment(ctx, req.OrderID, shipments, req.ActorID); err != nil {
		return Delivery{}, fmt.Errorf("apply shipment: %w", err)
	}

	now := time.Now()
	var createdBy *int64
	if req.ActorID != 0 {
		actor := req.ActorID
		createdBy = &actor
	}
	var created Delivery
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.GenerateNumber(ctx, now)
		if err != nil {
			return err
		}
		created, err = tx.Insert(ctx, Delivery{
			DeliveryNumber: number,
			SalesOrderID:   req.OrderID,
			DeliveryMethod: orDefault(req.DeliveryMethod, order.DeliveryMethod),
			Carrier:        req.Carrier,
			TrackingNumber: req.TrackingNumber,
			DriverName:     req.DriverName,
			NumPackages:    req.NumPackages,
			TotalWeightKg:  req.TotalWeightKg,
			DispatchDate:   &now,
			Status:         StatusDispatched,
			Notes:          req.Notes,
			CreatedBy:      createdBy,
		})
		return err
	})
	if err != nil {
		return Delivery{}, err
	}
	created.OrderNumber = order.OrderNumber
	created.CustomerName = order.CustomerName
	s.record(ctx, req.ActorID, "delivery.dispatch", created.ID, map[string]any{
		"delivery_number": created.DeliveryNumber,
		"order_number":    order.OrderNumber,
		"lines":           len(shipments),
	})
	return created, nil
}

// MarkDelivered records proof of arrival. The sales order follows when
// it was fully dispatched; partially shipped orders stay put.
func (s *Service) MarkDelivered(ctx context.Context, id, actorID int64) (Delivery, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return Delivery{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.SetDelivered(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("delivery: %s is not out for delivery: %w", d.DeliveryNumber, ErrValidation)
		}
		return nil
	})
	if err != nil {
		return Delivery{}, err
	}
	if s.sales != nil {
		// Best effort: a partially shipped order cannot move yet.
		_ = s.sales.MarkDelivered(ctx, d.SalesOrderID, actorID)
	}
	s.record(ctx, actorID, "delivery.delivered", id, map[string]any{"delivery_number": d.DeliveryNumber})
	return s.repo.Get(ctx, id)
}

// AttachSignedNote records the stored filename of the signed POD.
func (s *Service) AttachSignedNote(ctx context.Context, id int64, filename string, actorID int64) (Delivery, error) {
	if filename == "" {
		return Delivery{}, fmt.Errorf("delivery: filename required: %w", ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetSignedNote(ctx, id, filename)
	})
	if err != nil {
		return Delivery{}, err
	}
	s.record(ctx, actorID, "delivery.signed_note", id, map[string]any{"filename": filename})
	return s.repo.Get(ctx, id)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "delivery",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
