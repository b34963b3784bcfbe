package sales

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mouldworks/mouldworks/internal/shared"
)

// CustomerInfo carries the customer fields sales orders default from.
type CustomerInfo struct {
	Name             string
	DeliveryAddress  string
	DeliveryCity     string
	DeliveryPostcode string
	IsActive         bool
}

// CustomerService resolves customers for order creation.
type CustomerService interface {
	Customer(ctx context.Context, id int64) (CustomerInfo, error)
}

// ItemStock is the stock picture for one item: total on hand plus the
// per-location levels, in storage order.
type ItemStock struct {
	SKU          string
	Name         string
	SellingPrice decimal.Decimal
	Total        float64
	Levels       []LevelStock
}

// LevelStock is one location's share of an item's stock.
type LevelStock struct {
	LocationID int64
	Quantity   float64
	Allocated  float64
}

// Available is the unreserved portion of the level.
func (l LevelStock) Available() float64 {
	available := l.Quantity - l.Allocated
	if available < 0 {
		return 0
	}
	return available
}

// InventoryService is the stock surface sales depends on: reading
// coverage and reserving stock for orders.
type InventoryService interface {
	ItemStock(ctx context.Context, itemID int64) (ItemStock, error)
	Allocate(ctx context.Context, itemID, locationID int64, quantity float64, actorID int64) error
}

// ProductionService raises and tops up make-to-order works orders while
// processing sales shortfalls.
type ProductionService interface {
	FindPlannedOrder(ctx context.Context, salesOrderID, itemID int64) (orderID, required int64, err error)
	CreateMakeToOrder(ctx context.Context, req MakeToOrderRequest) error
	RaiseDemand(ctx context.Context, orderID, quantity, actorID int64) error
}

// MakeToOrderRequest raises a production order to cover a sales shortfall.
type MakeToOrderRequest struct {
	ItemID       int64
	SalesOrderID int64
	CustomerID   int64
	Quantity     int64
	DueDate      *time.Time
	Notes        string
	ActorID      int64
}

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (SalesOrder, error)
	GetLines(ctx context.Context, orderID int64) ([]SalesOrderLine, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]SalesOrder, int, error)
	Search(ctx context.Context, term string, limit int) ([]SalesOrder, error)
}

// AuditPort records sales actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the sales order lifecycle from entry to dispatch.
type Service struct {
	repo       RepositoryPort
	audit      AuditPort
	customers  CustomerService
	inventory  InventoryService
	production ProductionService
}

// NewService constructs the sales service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// SetCustomerService wires customer lookups.
func (s *Service) SetCustomerService(c CustomerService) {
	s.customers = c
}

// SetInventoryService wires stock coverage and reservation.
func (s *Service) SetInventoryService(inv InventoryService) {
	s.inventory = inv
}

// SetProductionService wires works order creation for shortfalls.
func (s *Service) SetProductionService(p ProductionService) {
	s.production = p
}

// CreateOrder raises a new order in status new. Blank delivery fields
// fill in from the customer record.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (SalesOrder, error) {
	if req.CustomerID == 0 {
		return SalesOrder{}, fmt.Errorf("sales: customer required: %w", ErrValidation)
	}
	order := SalesOrder{
		CustomerID:       req.CustomerID,
		CustomerPO:       req.CustomerPO,
		OrderDate:        time.Now(),
		RequiredDate:     req.RequiredDate,
		Status:           StatusNew,
		DeliveryName:     req.DeliveryName,
		DeliveryAddress:  req.DeliveryAddress,
		DeliveryCity:     req.DeliveryCity,
		DeliveryPostcode: req.DeliveryPostcode,
		DeliveryMethod:   req.DeliveryMethod,
		ShippingCost:     req.ShippingCost,
		TaxRatePercent:   DefaultTaxRatePercent,
		Notes:            req.Notes,
		InternalNotes:    req.InternalNotes,
	}
	if req.TaxRatePercent != nil {
		order.TaxRatePercent = *req.TaxRatePercent
	}
	if req.ActorID != 0 {
		actor := req.ActorID
		order.CreatedBy = &actor
	}
	if s.customers != nil {
		customer, err := s.customers.Customer(ctx, req.CustomerID)
		if err != nil {
			return SalesOrder{}, fmt.Errorf("sales: customer %d not found: %w", req.CustomerID, ErrValidation)
		}
		if !customer.IsActive {
			return SalesOrder{}, fmt.Errorf("sales: customer %q is inactive: %w", customer.Name, ErrValidation)
		}
		if order.DeliveryName == "" {
			order.DeliveryName = customer.Name
		}
		if order.DeliveryAddress == "" {
			order.DeliveryAddress = customer.DeliveryAddress
		}
		if order.DeliveryCity == "" {
			order.DeliveryCity = customer.DeliveryCity
		}
		if order.DeliveryPostcode == "" {
			order.DeliveryPostcode = customer.DeliveryPostcode
		}
		order.CustomerName = customer.Name
	}

	var created SalesOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.GenerateOrderNumber(ctx, order.OrderDate)
		if err != nil {
			return err
		}
		order.OrderNumber = number
		created, err = tx.CreateOrder(ctx, order)
		return err
	})
	if err != nil {
		return SalesOrder{}, err
	}
	created.CustomerName = order.CustomerName
	s.record(ctx, req.ActorID, "sales.order_create", created.ID, map[string]any{
		"order_number": created.OrderNumber,
		"customer_id":  created.CustomerID,
	})
	return created, nil
}

// GetOrder loads one order with its lines.
func (s *Service) GetOrder(ctx context.Context, id int64) (SalesOrder, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return SalesOrder{}, err
	}
	lines, err := s.repo.GetLines(ctx, id)
	if err != nil {
		return SalesOrder{}, err
	}
	order.Lines = lines
	return order, nil
}

// ListOrders returns a filtered page of orders plus the total count.
func (s *Service) ListOrders(ctx context.Context, f OrderFilter) ([]SalesOrder, int, error) {
	return s.repo.ListOrders(ctx, f)
}

// Search matches orders by number or customer PO, capped at 20.
func (s *Service) Search(ctx context.Context, term string) ([]SalesOrder, error) {
	if term == "" {
		return []SalesOrder{}, nil
	}
	return s.repo.Search(ctx, term, 20)
}

// UpdateOrder edits header fields and recalculates the money summary.
func (s *Service) UpdateOrder(ctx context.Context, id int64, req UpdateOrderRequest) (SalesOrder, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return SalesOrder{}, err
	}
	if order.Status == StatusArchived {
		return SalesOrder{}, TransitionError(order.Status, order.Status)
	}
	taxRate := order.TaxRatePercent
	if req.TaxRatePercent != nil {
		taxRate = *req.TaxRatePercent
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateHeader(ctx, id, SalesOrder{
			CustomerPO:       req.CustomerPO,
			RequiredDate:     req.RequiredDate,
			DeliveryName:     req.DeliveryName,
			DeliveryAddress:  req.DeliveryAddress,
			DeliveryCity:     req.DeliveryCity,
			DeliveryPostcode: req.DeliveryPostcode,
			DeliveryMethod:   req.DeliveryMethod,
			ShippingCost:     req.ShippingCost,
			TaxRatePercent:   taxRate,
			Notes:            req.Notes,
			InternalNotes:    req.InternalNotes,
		}); err != nil {
			return err
		}
		return s.recalcTotals(ctx, tx, id, req.ShippingCost, taxRate)
	})
	if err != nil {
		return SalesOrder{}, err
	}
	s.record(ctx, req.ActorID, "sales.order_update", id, map[string]any{"order_number": order.OrderNumber})
	return s.GetOrder(ctx, id)
}

// AddLine appends a line and reprices the order. Item lines default
// their unit price from the item's selling price.
func (s *Service) AddLine(ctx context.Context, orderID int64, req AddLineRequest) (SalesOrder, error) {
	if req.Quantity <= 0 {
		return SalesOrder{}, fmt.Errorf("sales: quantity must be positive: %w", ErrValidation)
	}
	if req.DiscountPercent < 0 || req.DiscountPercent > 100 {
		return SalesOrder{}, fmt.Errorf("sales: discount must be between 0 and 100: %w", ErrValidation)
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return SalesOrder{}, err
	}
	if !order.CanEditLines() {
		return SalesOrder{}, ErrLinesLocked
	}

	line := SalesOrderLine{
		SalesOrderID:    orderID,
		QuantityOrdered: req.Quantity,
		DiscountPercent: req.DiscountPercent,
	}
	switch {
	case req.IsCustomItem:
		if req.CustomDescription == "" {
			return SalesOrder{}, fmt.Errorf("sales: custom lines need a description: %w", ErrValidation)
		}
		if req.UnitPrice == nil {
			return SalesOrder{}, fmt.Errorf("sales: custom lines need a unit price: %w", ErrValidation)
		}
		line.IsCustomItem = true
		line.CustomSKU = req.CustomSKU
		line.CustomDescription = req.CustomDescription
		line.UnitPrice = *req.UnitPrice
	case req.ItemID != nil && *req.ItemID > 0:
		line.ItemID = req.ItemID
		if req.UnitPrice != nil {
			line.UnitPrice = *req.UnitPrice
		} else if s.inventory != nil {
			stock, err := s.inventory.ItemStock(ctx, *req.ItemID)
			if err != nil {
				return SalesOrder{}, fmt.Errorf("sales: item %d not found: %w", *req.ItemID, ErrValidation)
			}
			line.UnitPrice = stock.SellingPrice
			line.ItemSKU = stock.SKU
			line.ItemName = stock.Name
		}
	default:
		return SalesOrder{}, fmt.Errorf("sales: a line needs an item or custom text: %w", ErrValidation)
	}
	line.LineTotal = line.ComputeTotal()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextLineNumber(ctx, orderID)
		if err != nil {
			return err
		}
		line.LineNumber = number
		if _, err := tx.InsertLine(ctx, line); err != nil {
			return err
		}
		return s.recalcTotals(ctx, tx, orderID, order.ShippingCost, order.TaxRatePercent)
	})
	if err != nil {
		return SalesOrder{}, err
	}
	s.record(ctx, req.ActorID, "sales.order_line_add", orderID, map[string]any{
		"order_number": order.OrderNumber,
		"sku":          line.DisplaySKU(),
		"quantity":     req.Quantity,
	})
	return s.GetOrder(ctx, orderID)
}

// RemoveLine deletes a line and reprices the order.
func (s *Service) RemoveLine(ctx context.Context, orderID, lineID, actorID int64) (SalesOrder, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return SalesOrder{}, err
	}
	if !order.CanEditLines() {
		return SalesOrder{}, ErrLinesLocked
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteLine(ctx, orderID, lineID); err != nil {
			return err
		}
		return s.recalcTotals(ctx, tx, orderID, order.ShippingCost, order.TaxRatePercent)
	})
	if err != nil {
		return SalesOrder{}, err
	}
	s.record(ctx, actorID, "sales.order_line_remove", orderID, map[string]any{
		"order_number": order.OrderNumber,
		"line_id":      lineID,
	})
	return s.GetOrder(ctx, orderID)
}

// CheckStock reports coverage per stock line: required quantity, what is
// on hand, and the shortfall. Custom lines never appear.
func (s *Service) CheckStock(ctx context.Context, orderID int64) ([]StockCheckLine, error) {
	if s.inventory == nil {
		return nil, fmt.Errorf("sales: inventory service not wired")
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	checks := []StockCheckLine{}
	for _, line := range order.Lines {
		if line.IsCustomItem || line.ItemID == nil {
			continue
		}
		stock, err := s.inventory.ItemStock(ctx, *line.ItemID)
		if err != nil {
			return nil, err
		}
		required := line.Remaining()
		checks = append(checks, StockCheckLine{
			LineID:    line.ID,
			ItemID:    *line.ItemID,
			SKU:       stock.SKU,
			Name:      stock.Name,
			Required:  required,
			OnHand:    stock.Total,
			Shortfall: math.Max(0, required-stock.Total),
		})
	}
	return checks, nil
}

// Process covers the order's shortfalls with make-to-order production
// orders, topping up ones already planned, then moves the order to
// in_production when anything is short or ready_to_ship when covered.
func (s *Service) Process(ctx context.Context, orderID, actorID int64) (ProcessResult, error) {
	if s.production == nil {
		return ProcessResult{}, fmt.Errorf("sales: production service not wired")
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return ProcessResult{}, err
	}
	if order.Status != StatusNew && order.Status != StatusInProduction {
		return ProcessResult{}, TransitionError(order.Status, StatusInProduction)
	}
	checks, err := s.CheckStock(ctx, orderID)
	if err != nil {
		return ProcessResult{}, err
	}

	result := ProcessResult{ShortItems: []string{}}
	for _, check := range checks {
		if check.Shortfall <= 0 {
			continue
		}
		result.ShortItems = append(result.ShortItems, check.SKU)
		quantity := int64(math.Ceil(check.Shortfall))
		existingID, existingRequired, err := s.production.FindPlannedOrder(ctx, orderID, check.ItemID)
		switch {
		case err == nil:
			if existingRequired < quantity {
				if err := s.production.RaiseDemand(ctx, existingID, quantity, actorID); err != nil {
					return ProcessResult{}, fmt.Errorf("top up production order: %w", err)
				}
			}
			result.OrdersToppedUp++
		case errors.Is(err, ErrNotFound):
			err := s.production.CreateMakeToOrder(ctx, MakeToOrderRequest{
				ItemID:       check.ItemID,
				SalesOrderID: orderID,
				CustomerID:   order.CustomerID,
				Quantity:     quantity,
				DueDate:      order.RequiredDate,
				Notes:        "Raised for " + order.OrderNumber,
				ActorID:      actorID,
			})
			if err != nil {
				return ProcessResult{}, fmt.Errorf("raise production order: %w", err)
			}
			result.OrdersRaised++
		default:
			return ProcessResult{}, err
		}
	}

	target := StatusReadyToShip
	if len(result.ShortItems) > 0 {
		target = StatusInProduction
	}
	if err := s.setStatus(ctx, order, target); err != nil {
		return ProcessResult{}, err
	}
	result.Status = target
	s.record(ctx, actorID, "sales.order_process", orderID, map[string]any{
		"order_number": order.OrderNumber,
		"status":       target,
		"short_items":  result.ShortItems,
	})
	return result, nil
}

// Allocate greedily reserves stock for the order's open line quantities
// across each item's locations.
func (s *Service) Allocate(ctx context.Context, orderID, actorID int64) (AllocationResult, error) {
	if s.inventory == nil {
		return AllocationResult{}, fmt.Errorf("sales: inventory service not wired")
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return AllocationResult{}, err
	}
	result := AllocationResult{Allocated: map[int64]float64{}, Complete: true}
	for _, line := range order.Lines {
		if line.IsCustomItem || line.ItemID == nil {
			continue
		}
		need := line.Remaining() - line.QuantityAllocated
		if need <= 0 {
			continue
		}
		stock, err := s.inventory.ItemStock(ctx, *line.ItemID)
		if err != nil {
			return AllocationResult{}, err
		}
		levels := append([]LevelStock(nil), stock.Levels...)
		sort.Slice(levels, func(i, j int) bool { return levels[i].Available() > levels[j].Available() })
		taken := 0.0
		for _, level := range levels {
			if need <= 0 {
				break
			}
			take := math.Min(need, level.Available())
			if take <= 0 {
				continue
			}
			if err := s.inventory.Allocate(ctx, *line.ItemID, level.LocationID, take, actorID); err != nil {
				return AllocationResult{}, fmt.Errorf("allocate stock: %w", err)
			}
			need -= take
			taken += take
		}
		if taken > 0 {
			lineID := line.ID
			err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				return tx.AddAllocated(ctx, lineID, taken)
			})
			if err != nil {
				return AllocationResult{}, err
			}
			result.Allocated[lineID] = taken
		}
		if need > 0 {
			result.Complete = false
		}
	}
	s.record(ctx, actorID, "sales.order_allocate", orderID, map[string]any{
		"order_number": order.OrderNumber,
		"complete":     result.Complete,
	})
	return result, nil
}

// ApplyShipment books dispatched quantities onto the order's lines,
// capped at each line's remaining quantity, and moves the order to
// dispatched or partially_shipped. The caller deducts stock with the
// returned shipped lines.
func (s *Service) ApplyShipment(ctx context.Context, orderID int64, requested []ShipmentLine, actorID int64) (ShipmentResult, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return ShipmentResult{}, err
	}
	if !order.CanDispatch() {
		return ShipmentResult{}, ErrNotDispatchable
	}

	byLine := map[int64]SalesOrderLine{}
	for _, line := range order.Lines {
		byLine[line.ID] = line
	}
	shipped := []ShippedLine{}
	shippedByLine := map[int64]float64{}
	for _, req := range requested {
		line, ok := byLine[req.LineID]
		if !ok {
			return ShipmentResult{}, fmt.Errorf("sales: line %d not on order: %w", req.LineID, ErrValidation)
		}
		quantity := math.Min(req.Quantity, line.Remaining())
		if quantity <= 0 {
			continue
		}
		shippedByLine[line.ID] += quantity
		out := ShippedLine{LineID: line.ID, Quantity: quantity}
		if line.ItemID != nil {
			out.ItemID = *line.ItemID
			out.SKU = line.ItemSKU
		} else {
			out.SKU = line.CustomSKU
		}
		shipped = append(shipped, out)
	}
	if len(shipped) == 0 {
		return ShipmentResult{}, ErrNothingToShip
	}

	complete := true
	for _, line := range order.Lines {
		if line.Remaining()-shippedByLine[line.ID] > 0 {
			complete = false
			break
		}
	}
	target := StatusPartiallyShipped
	if complete {
		target = StatusDispatched
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for lineID, quantity := range shippedByLine {
			if err := tx.AddShipped(ctx, lineID, quantity); err != nil {
				return err
			}
		}
		ok, err := tx.SetStatus(ctx, orderID, order.Status, target)
		if err != nil {
			return err
		}
		if !ok {
			return TransitionError(order.Status, target)
		}
		return nil
	})
	if err != nil {
		return ShipmentResult{}, err
	}

	updated, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return ShipmentResult{}, err
	}
	s.record(ctx, actorID, "sales.order_dispatch", orderID, map[string]any{
		"order_number": order.OrderNumber,
		"status":       target,
		"lines":        len(shipped),
	})
	return ShipmentResult{Order: updated, Shipped: shipped, Complete: complete}, nil
}

// UpdateStatus moves the order through the transition table.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, target string, actorID int64) (SalesOrder, error) {
	if !IsValidStatus(target) {
		return SalesOrder{}, fmt.Errorf("sales: unknown status %q: %w", target, ErrValidation)
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return SalesOrder{}, err
	}
	if err := s.setStatus(ctx, order, target); err != nil {
		return SalesOrder{}, err
	}
	s.record(ctx, actorID, "sales.order_status", orderID, map[string]any{
		"order_number": order.OrderNumber,
		"from":         order.Status,
		"to":           target,
	})
	return s.GetOrder(ctx, orderID)
}

// Archive moves one delivered or cancelled order to the archive.
func (s *Service) Archive(ctx context.Context, orderID, actorID int64) (SalesOrder, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return SalesOrder{}, err
	}
	if !order.CanArchive() {
		return SalesOrder{}, TransitionError(order.Status, StatusArchived)
	}
	if err := s.setStatus(ctx, order, StatusArchived); err != nil {
		return SalesOrder{}, err
	}
	s.record(ctx, actorID, "sales.order_archive", orderID, map[string]any{"order_number": order.OrderNumber})
	return s.GetOrder(ctx, orderID)
}

// ArchiveFinished bulk-archives every delivered or cancelled order.
func (s *Service) ArchiveFinished(ctx context.Context, actorID int64) (int64, error) {
	var archived int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		archived, err = tx.ArchiveFinished(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.record(ctx, actorID, "sales.orders_archive_all", 0, map[string]any{"archived": archived})
	return archived, nil
}

// Delete hard-deletes an order with its lines and deliveries.
func (s *Service) Delete(ctx context.Context, orderID, actorID int64) error {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteOrder(ctx, orderID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "sales.order_delete", orderID, map[string]any{"order_number": order.OrderNumber})
	return nil
}

// setStatus runs the transition table then the guarded UPDATE.
func (s *Service) setStatus(ctx context.Context, order SalesOrder, target string) error {
	if order.Status == target {
		return nil
	}
	if !CanTransition(order.Status, target) {
		return TransitionError(order.Status, target)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.SetStatus(ctx, order.ID, order.Status, target)
		if err != nil {
			return err
		}
		if !ok {
			return TransitionError(order.Status, target)
		}
		return nil
	})
}

// recalcTotals reprices the order from its current lines inside tx.
func (s *Service) recalcTotals(ctx context.Context, tx TxRepository, orderID int64, shipping decimal.Decimal, taxRate float64) error {
	lines, err := tx.GetLines(ctx, orderID)
	if err != nil {
		return err
	}
	return tx.SetTotals(ctx, orderID, ComputeTotals(lines, shipping, taxRate), shipping, taxRate)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sales_order",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
}
