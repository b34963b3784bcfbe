package production

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mouldworks/mouldworks/internal/shared"
)

// InventoryService defines the stock operations production needs.
type InventoryService interface {
	ReceiveProduction(ctx context.Context, input ProductionReceipt) error
}

// ProductionReceipt books moulded parts into a stock location.
type ProductionReceipt struct {
	ItemID         int64
	LocationID     int64
	Quantity       int64
	BatchNumber    string
	Reference      string
	Notes          string
	ActorID        int64
	IdempotencyKey string
}

// MachineService flips press state as orders and jobs start and stop.
type MachineService interface {
	MarkRunning(ctx context.Context, machineID int64, mouldID *int64, actorID int64) error
	MarkIdle(ctx context.Context, machineID int64, releaseMould bool, actorID int64) error
}

// MouldService supplies cycle data for estimates and accumulates shot
// counts as orders close.
type MouldService interface {
	CycleTime(ctx context.Context, mouldID, itemID int64) (seconds float64, cavities int, err error)
	AddShots(ctx context.Context, mouldID, shots int64, actorID int64) error
}

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (ProductionOrder, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]ProductionOrder, int, error)
	UnscheduledOrders(ctx context.Context) ([]ProductionOrder, error)
	ListLogs(ctx context.Context, orderID int64) ([]ProductionLog, error)
	ItemProfile(ctx context.Context, itemID int64) (ItemProfile, error)
	GetJob(ctx context.Context, id int64) (ScheduledJob, error)
	JobsBetween(ctx context.Context, from, to time.Time) ([]ScheduledJob, error)
	ActiveMachines(ctx context.Context) ([]MachineSlot, error)
	GetTask(ctx context.Context, id int64) (SortingTask, error)
	ListTasks(ctx context.Context, f TaskFilter) ([]SortingTask, error)
	PendingCounts(ctx context.Context) (map[string]int, error)
}

// AuditPort records production actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ScheduleLocker serialises board writes for one machine-day, so two
// planners assigning sequence numbers at once cannot interleave.
type ScheduleLocker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// Service owns works orders, the schedule board and the sorting queue.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	inventory   InventoryService
	machines    MachineService
	moulds      MouldService
	locks       ScheduleLocker
}

// NewService constructs the production service.
func NewService(repo RepositoryPort, audit AuditPort, idempotency *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idempotency}
}

// SetInventoryService wires the stock integration.
func (s *Service) SetInventoryService(inv InventoryService) {
	s.inventory = inv
}

// SetMachineService wires press state control.
func (s *Service) SetMachineService(m MachineService) {
	s.machines = m
}

// SetMouldService wires tooling data.
func (s *Service) SetMouldService(m MouldService) {
	s.moulds = m
}

// SetScheduleLocker wires the distributed lock for schedule writes.
func (s *Service) SetScheduleLocker(l ScheduleLocker) {
	s.locks = l
}

// CreateOrder raises a planned works order. The mould defaults from the
// item and the priority from the due date when not given.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (ProductionOrder, error) {
	if req.ItemID == 0 {
		return ProductionOrder{}, fmt.Errorf("production: item required: %w", ErrValidation)
	}
	if req.QuantityRequired <= 0 {
		return ProductionOrder{}, fmt.Errorf("production: quantity must be positive: %w", ErrValidation)
	}
	orderType := req.OrderType
	if orderType == "" {
		orderType = MakeToStock
	}
	if orderType != MakeToStock && orderType != MakeToOrder {
		return ProductionOrder{}, fmt.Errorf("production: unknown order type %q: %w", orderType, ErrValidation)
	}
	profile, err := s.repo.ItemProfile(ctx, req.ItemID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ProductionOrder{}, fmt.Errorf("production: item %d not found or inactive: %w", req.ItemID, ErrValidation)
		}
		return ProductionOrder{}, err
	}
	mouldID := req.MouldID
	if mouldID == nil {
		mouldID = profile.DefaultMouldID
	}
	now := time.Now()
	priority := req.Priority
	if priority == 0 {
		priority = PriorityForDueDate(req.DueDate, now)
	}
	priority = clampPriority(priority)

	var createdBy *int64
	if req.ActorID != 0 {
		actor := req.ActorID
		createdBy = &actor
	}

	var created ProductionOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.GenerateOrderNumber(ctx, now)
		if err != nil {
			return err
		}
		batch, err := tx.GenerateBatchNumber(ctx, now.Format("060102")+"-"+profile.SKU)
		if err != nil {
			return err
		}
		created, err = tx.CreateOrder(ctx, ProductionOrder{
			OrderNumber:      number,
			ItemID:           req.ItemID,
			MouldID:          mouldID,
			OrderType:        orderType,
			SalesOrderID:     req.SalesOrderID,
			CustomerID:       req.CustomerID,
			QuantityRequired: req.QuantityRequired,
			Status:           OrderPlanned,
			Priority:         priority,
			DueDate:          req.DueDate,
			BatchNumber:      batch,
			Notes:            req.Notes,
			CreatedBy:        createdBy,
		})
		return err
	})
	if err != nil {
		return ProductionOrder{}, err
	}
	created.ItemSKU = profile.SKU
	created.ItemName = profile.Name
	s.record(ctx, req.ActorID, "production.order_create", created.ID, map[string]any{
		"order_number": created.OrderNumber,
		"item_id":      created.ItemID,
		"quantity":     created.QuantityRequired,
	})
	return s.decorate(created), nil
}

// GetOrder loads one order.
func (s *Service) GetOrder(ctx context.Context, id int64) (ProductionOrder, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return ProductionOrder{}, err
	}
	return s.decorate(order), nil
}

// ListOrders returns a filtered page of orders plus the total count.
func (s *Service) ListOrders(ctx context.Context, f OrderFilter) ([]ProductionOrder, int, error) {
	orders, total, err := s.repo.ListOrders(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	for i := range orders {
		orders[i] = s.decorate(orders[i])
	}
	return orders, total, nil
}

// Logs returns the shop floor log for an order.
func (s *Service) Logs(ctx context.Context, orderID int64) ([]ProductionLog, error) {
	if _, err := s.repo.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListLogs(ctx, orderID)
}

// UpdateOrder edits a planned order.
func (s *Service) UpdateOrder(ctx context.Context, id int64, req UpdateOrderRequest) (ProductionOrder, error) {
	if req.QuantityRequired <= 0 {
		return ProductionOrder{}, fmt.Errorf("production: quantity must be positive: %w", ErrValidation)
	}
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return ProductionOrder{}, err
	}
	if !order.CanEdit() {
		return ProductionOrder{}, ErrInvalidStatus
	}
	priority := req.Priority
	if priority == 0 {
		priority = order.Priority
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateOrder(ctx, id, ProductionOrder{
			MouldID:          req.MouldID,
			QuantityRequired: req.QuantityRequired,
			Priority:         clampPriority(priority),
			DueDate:          req.DueDate,
			Notes:            req.Notes,
		})
	})
	if err != nil {
		return ProductionOrder{}, err
	}
	s.record(ctx, req.ActorID, "production.order_update", id, map[string]any{"order_number": order.OrderNumber})
	return s.GetOrder(ctx, id)
}

// RaiseDemand lifts a planned order's required quantity to cover a sales
// shortfall. Quantities already at or above the demand are left alone.
func (s *Service) RaiseDemand(ctx context.Context, orderID, quantity, actorID int64) (ProductionOrder, error) {
	if quantity <= 0 {
		return ProductionOrder{}, fmt.Errorf("production: quantity must be positive: %w", ErrValidation)
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return ProductionOrder{}, err
	}
	if !order.CanEdit() {
		return ProductionOrder{}, ErrInvalidStatus
	}
	if order.QuantityRequired >= quantity {
		return s.decorate(order), nil
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.RaiseRequired(ctx, orderID, quantity)
	})
	if err != nil {
		return ProductionOrder{}, err
	}
	s.record(ctx, actorID, "production.order_demand", orderID, map[string]any{
		"order_number": order.OrderNumber,
		"quantity":     quantity,
	})
	return s.GetOrder(ctx, orderID)
}

// Start puts a planned order live on a machine.
func (s *Service) Start(ctx context.Context, orderID, machineID, actorID int64) (ProductionOrder, error) {
	if machineID == 0 {
		return ProductionOrder{}, ErrMachineRequired
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return ProductionOrder{}, err
	}
	if !order.CanStart() {
		return ProductionOrder{}, ErrInvalidStatus
	}
	now := time.Now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.StartOrder(ctx, orderID, machineID, now); err != nil {
			return err
		}
		_, err := tx.InsertLog(ctx, ProductionLog{
			OrderID:   orderID,
			MachineID: &machineID,
			UserID:    actorID,
			LogType:   LogStart,
		})
		return err
	})
	if err != nil {
		return ProductionOrder{}, err
	}
	if s.machines != nil {
		if err := s.machines.MarkRunning(ctx, machineID, order.MouldID, actorID); err != nil {
			return ProductionOrder{}, fmt.Errorf("mark machine running: %w", err)
		}
	}
	s.record(ctx, actorID, "production.order_start", orderID, map[string]any{
		"order_number": order.OrderNumber,
		"machine_id":   machineID,
	})
	return s.GetOrder(ctx, orderID)
}

// RecordQuantities books good and rejected parts against a running order.
func (s *Service) RecordQuantities(ctx context.Context, req RecordQuantitiesRequest) (ProductionOrder, error) {
	if req.QuantityGood < 0 || req.QuantityRejected < 0 {
		return ProductionOrder{}, fmt.Errorf("production: quantities cannot be negative: %w", ErrValidation)
	}
	produced := req.QuantityGood + req.QuantityRejected
	if produced == 0 {
		return ProductionOrder{}, fmt.Errorf("production: nothing to record: %w", ErrValidation)
	}
	order, err := s.repo.GetOrder(ctx, req.OrderID)
	if err != nil {
		return ProductionOrder{}, err
	}
	if !order.CanRecord() {
		return ProductionOrder{}, ErrInvalidStatus
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, _, err := tx.AddQuantities(ctx, req.OrderID, produced, req.QuantityGood, req.QuantityRejected); err != nil {
			return err
		}
		_, err := tx.InsertLog(ctx, ProductionLog{
			OrderID:   req.OrderID,
			MachineID: order.MachineID,
			UserID:    req.ActorID,
			LogType:   LogQuantityUpdate,
			Quantity:  produced,
			Notes:     req.Notes,
		})
		return err
	})
	if err != nil {
		return ProductionOrder{}, err
	}
	s.record(ctx, req.ActorID, "production.order_quantities", req.OrderID, map[string]any{
		"order_number": order.OrderNumber,
		"good":         req.QuantityGood,
		"rejected":     req.QuantityRejected,
	})
	return s.GetOrder(ctx, req.OrderID)
}

// Complete closes a running order. The machine goes idle and drops its
// mould, the mould gains the shots it just ran, and the good parts are
// optionally booked into a location under the order's batch.
func (s *Service) Complete(ctx context.Context, req CompleteOrderRequest) (ProductionOrder, error) {
	order, err := s.repo.GetOrder(ctx, req.OrderID)
	if err != nil {
		return ProductionOrder{}, err
	}
	if !order.CanComplete() {
		return ProductionOrder{}, ErrInvalidStatus
	}
	now := time.Now()
	err = s.mutate(ctx, req.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		if err := tx.CompleteOrder(ctx, req.OrderID, now); err != nil {
			return err
		}
		_, err := tx.InsertLog(ctx, ProductionLog{
			OrderID:   req.OrderID,
			MachineID: order.MachineID,
			UserID:    req.ActorID,
			LogType:   LogStop,
			Notes:     req.Notes,
		})
		return err
	})
	if err != nil {
		return ProductionOrder{}, err
	}
	if err := s.finishOnMachine(ctx, order, true, req.ActorID); err != nil {
		return ProductionOrder{}, err
	}
	if s.inventory != nil && req.ReceiveLocationID != nil && order.QuantityGood > 0 {
		err := s.inventory.ReceiveProduction(ctx, ProductionReceipt{
			ItemID:         order.ItemID,
			LocationID:     *req.ReceiveLocationID,
			Quantity:       order.QuantityGood,
			BatchNumber:    order.BatchNumber,
			Reference:      order.OrderNumber,
			Notes:          "Production completion",
			ActorID:        req.ActorID,
			IdempotencyKey: req.IdempotencyKey,
		})
		if err != nil {
			return ProductionOrder{}, fmt.Errorf("receive good parts: %w", err)
		}
	}
	s.record(ctx, req.ActorID, "production.order_complete", req.OrderID, map[string]any{
		"order_number": order.OrderNumber,
		"produced":     order.QuantityProduced,
		"good":         order.QuantityGood,
		"rejected":     order.QuantityRejected,
	})
	return s.GetOrder(ctx, req.OrderID)
}

// Cancel pulls an order out of the plan. A running order also frees its
// machine.
func (s *Service) Cancel(ctx context.Context, orderID, actorID int64) (ProductionOrder, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return ProductionOrder{}, err
	}
	if !order.CanCancel() {
		return ProductionOrder{}, ErrInvalidStatus
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.CancelOrder(ctx, orderID)
	})
	if err != nil {
		return ProductionOrder{}, err
	}
	if order.Status == OrderInProgress {
		if err := s.finishOnMachine(ctx, order, true, actorID); err != nil {
			return ProductionOrder{}, err
		}
	}
	s.record(ctx, actorID, "production.order_cancel", orderID, map[string]any{"order_number": order.OrderNumber})
	return s.GetOrder(ctx, orderID)
}

// ReportIssue logs a problem raised from the shop floor.
func (s *Service) ReportIssue(ctx context.Context, orderID int64, notes string, actorID int64) error {
	if notes == "" {
		return fmt.Errorf("production: issue description required: %w", ErrValidation)
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status == OrderCompleted || order.Status == OrderCancelled {
		return ErrInvalidStatus
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := tx.InsertLog(ctx, ProductionLog{
			OrderID:   orderID,
			MachineID: order.MachineID,
			UserID:    actorID,
			LogType:   LogIssue,
			Notes:     notes,
		})
		return err
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "production.order_issue", orderID, map[string]any{"order_number": order.OrderNumber})
	return nil
}

// finishOnMachine idles the press and, when the order closes for good,
// credits the mould with its shots. releaseMould keeps the tool in the
// press for job handoffs and drops it on order completion.
func (s *Service) finishOnMachine(ctx context.Context, order ProductionOrder, releaseMould bool, actorID int64) error {
	if s.machines != nil && order.MachineID != nil {
		if err := s.machines.MarkIdle(ctx, *order.MachineID, releaseMould, actorID); err != nil {
			return fmt.Errorf("mark machine idle: %w", err)
		}
	}
	if releaseMould && s.moulds != nil && order.MouldID != nil && order.QuantityProduced > 0 {
		shots := order.QuantityProduced / int64(s.cavitiesFor(ctx, order))
		if shots > 0 {
			if err := s.moulds.AddShots(ctx, *order.MouldID, shots, actorID); err != nil {
				return fmt.Errorf("add mould shots: %w", err)
			}
		}
	}
	return nil
}

// cavitiesFor resolves the cavity count used to turn parts into shots.
func (s *Service) cavitiesFor(ctx context.Context, order ProductionOrder) int {
	if s.moulds != nil && order.MouldID != nil {
		if _, cavities, err := s.moulds.CycleTime(ctx, *order.MouldID, order.ItemID); err == nil && cavities > 0 {
			return cavities
		}
	}
	if profile, err := s.repo.ItemProfile(ctx, order.ItemID); err == nil && profile.Cavities > 0 {
		return profile.Cavities
	}
	return 1
}

// mutate wraps a transactional change with idempotency key handling on
// the production module.
func (s *Service) mutate(ctx context.Context, key string, fn func(ctx context.Context, tx TxRepository) error) error {
	if key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "production"); err != nil {
			return err
		}
	}
	err := s.repo.WithTx(ctx, fn)
	if err != nil && key != "" && s.idempotency != nil {
		_ = s.idempotency.Delete(ctx, key)
	}
	return err
}

func (s *Service) decorate(o ProductionOrder) ProductionOrder {
	o.CompletionPercentage = o.CompletionPercent()
	return o
}

func (s *Service) decorateJob(j ScheduledJob, now time.Time) ScheduledJob {
	j.IsUrgent, j.IsWarning = j.urgency(now)
	return j
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	s.recordAs(ctx, actorID, action, "production_order", entityID, meta)
}

func (s *Service) recordAs(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
}

func clampPriority(p int) int {
	if p < 1 {
		return 1
	}
	if p > 10 {
		return 10
	}
	return p
}
