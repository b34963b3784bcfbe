package production

import (
	"errors"
	"time"
)

// ============================================================================
// Statuses
// ============================================================================

// Production order statuses.
const (
	OrderPlanned    = "planned"
	OrderInProgress = "in_progress"
	OrderCompleted  = "completed"
	OrderCancelled  = "cancelled"
)

// Order types.
const (
	MakeToStock = "make_to_stock"
	MakeToOrder = "make_to_order"
)

// Scheduled job statuses.
const (
	JobScheduled  = "scheduled"
	JobInProgress = "in_progress"
	JobCompleted  = "completed"
	JobSkipped    = "skipped"
)

// Sorting task statuses.
const (
	SortingPending    = "pending"
	SortingInProgress = "in_progress"
	SortingCompleted  = "completed"
)

// Sorting queue types.
const (
	SortCounting     = "counting"
	SortDegating     = "degating"
	SortAssembly     = "assembly"
	SortQualityCheck = "quality_check"
)

// SortingTypes lists the accepted sorting queue types.
var SortingTypes = []string{SortCounting, SortDegating, SortAssembly, SortQualityCheck}

// IsValidSortingType reports whether t is an accepted sorting queue type.
func IsValidSortingType(t string) bool {
	for _, s := range SortingTypes {
		if s == t {
			return true
		}
	}
	return false
}

// Production log types.
const (
	LogStart          = "start"
	LogStop           = "stop"
	LogQuantityUpdate = "quantity_update"
	LogIssue          = "issue"
)

// ============================================================================
// Entities
// ============================================================================

// ProductionOrder is a works order to mould a quantity of one item.
type ProductionOrder struct {
	ID               int64      `json:"id"`
	OrderNumber      string     `json:"order_number"`
	ItemID           int64      `json:"item_id"`
	MouldID          *int64     `json:"mould_id"`
	MachineID        *int64     `json:"machine_id"`
	OrderType        string     `json:"order_type"`
	SalesOrderID     *int64     `json:"sales_order_id"`
	CustomerID       *int64     `json:"customer_id"`
	QuantityRequired int64      `json:"quantity_required"`
	QuantityProduced int64      `json:"quantity_produced"`
	QuantityGood     int64      `json:"quantity_good"`
	QuantityRejected int64      `json:"quantity_rejected"`
	Status           string     `json:"status"`
	Priority         int        `json:"priority"`
	DueDate          *time.Time `json:"due_date"`
	StartDate        *time.Time `json:"start_date"`
	EndDate          *time.Time `json:"end_date"`
	BatchNumber      string     `json:"batch_number"`
	Notes            string     `json:"notes"`
	CreatedBy        *int64     `json:"created_by"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`

	// Joined from items, moulds, machines and customers on reads.
	ItemSKU      string `json:"item_sku"`
	ItemName     string `json:"item_name"`
	MouldNumber  string `json:"mould_number"`
	MachineName  string `json:"machine_name"`
	CustomerName string `json:"customer_name"`

	CompletionPercentage float64 `json:"completion_percentage"`
}

// CompletionPercent is produced over required, capped at 100.
func (o ProductionOrder) CompletionPercent() float64 {
	if o.QuantityRequired <= 0 {
		return 0
	}
	pct := float64(o.QuantityProduced) / float64(o.QuantityRequired) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// CanEdit reports whether order details may still be changed.
func (o ProductionOrder) CanEdit() bool {
	return o.Status == OrderPlanned
}

// CanStart reports whether the order may be put on a machine.
func (o ProductionOrder) CanStart() bool {
	return o.Status == OrderPlanned
}

// CanRecord reports whether shop floor quantities may be booked.
func (o ProductionOrder) CanRecord() bool {
	return o.Status == OrderInProgress
}

// CanComplete reports whether the order may be closed out.
func (o ProductionOrder) CanComplete() bool {
	return o.Status == OrderInProgress
}

// CanCancel reports whether the order may be cancelled.
func (o ProductionOrder) CanCancel() bool {
	return o.Status != OrderCompleted && o.Status != OrderCancelled
}

// PriorityForDueDate derives the default order priority from the due date.
// Tighter dates climb the queue; no due date sits at the default.
func PriorityForDueDate(due *time.Time, now time.Time) int {
	if due == nil {
		return 5
	}
	switch days := daysUntil(now, *due); {
	case days <= 1:
		return 1
	case days <= 3:
		return 2
	case days <= 7:
		return 3
	default:
		return 5
	}
}

// daysUntil counts whole calendar days from now to then.
func daysUntil(now, then time.Time) int {
	a := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(then.Year(), then.Month(), then.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// ProductionLog is one shop floor event against an order.
type ProductionLog struct {
	ID        int64     `json:"id"`
	OrderID   int64     `json:"order_id"`
	MachineID *int64    `json:"machine_id"`
	UserID    int64     `json:"user_id"`
	LogType   string    `json:"log_type"`
	Quantity  int64     `json:"quantity"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

// ScheduledJob places a production order on a machine for a day.
type ScheduledJob struct {
	ID                     int64      `json:"id"`
	ProductionOrderID      int64      `json:"production_order_id"`
	MachineID              int64      `json:"machine_id"`
	ScheduledDate          time.Time  `json:"scheduled_date"`
	SequenceOrder          int        `json:"sequence_order"`
	EstimatedDurationHours float64    `json:"estimated_duration_hours"`
	Status                 string     `json:"status"`
	ActualStart            *time.Time `json:"actual_start"`
	ActualEnd              *time.Time `json:"actual_end"`
	OutputDestination      string     `json:"output_destination"`
	CompletedBy            *int64     `json:"completed_by"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`

	// Joined from the order and its item on reads.
	OrderNumber      string     `json:"order_number"`
	OrderStatus      string     `json:"order_status"`
	ItemSKU          string     `json:"item_sku"`
	ItemName         string     `json:"item_name"`
	QuantityRequired int64      `json:"quantity_required"`
	QuantityProduced int64      `json:"quantity_produced"`
	Priority         int        `json:"priority"`
	DueDate          *time.Time `json:"due_date"`

	IsUrgent  bool `json:"is_urgent"`
	IsWarning bool `json:"is_warning"`
}

// CanMove reports whether the job may be re-slotted or removed.
func (j ScheduledJob) CanMove() bool {
	return j.Status == JobScheduled
}

// CanStart reports whether the job may go live on the press.
func (j ScheduledJob) CanStart() bool {
	return j.Status == JobScheduled
}

// CanComplete reports whether the job may record its output. A job
// skipped past the start button can still be closed out directly.
func (j ScheduledJob) CanComplete() bool {
	return j.Status == JobInProgress || j.Status == JobScheduled
}

// urgency grades the job against its order due date.
func (j ScheduledJob) urgency(now time.Time) (urgent, warning bool) {
	if j.DueDate == nil {
		return false, false
	}
	days := daysUntil(now, *j.DueDate)
	return days <= 2, days > 2 && days <= 5
}

// SortingTask is a tray of parts waiting in the sorting queue.
type SortingTask struct {
	ID                int64      `json:"id"`
	ProductionOrderID int64      `json:"production_order_id"`
	ScheduledJobID    *int64     `json:"scheduled_job_id"`
	ItemID            int64      `json:"item_id"`
	SortingType       string     `json:"sorting_type"`
	EstimatedQuantity int64      `json:"estimated_quantity"`
	ActualQuantity    int64      `json:"actual_quantity"`
	RejectedQuantity  int64      `json:"rejected_quantity"`
	LocationID        *int64     `json:"location_id"`
	Status            string     `json:"status"`
	CompletedBy       *int64     `json:"completed_by"`
	CompletedAt       *time.Time `json:"completed_at"`
	CreatedAt         time.Time  `json:"created_at"`

	// Joined on reads.
	OrderNumber string `json:"order_number"`
	BatchNumber string `json:"batch_number"`
	ItemSKU     string `json:"item_sku"`
	ItemName    string `json:"item_name"`
}

// ============================================================================
// Schedule board
// ============================================================================

// MachineSlot is one machine row on the schedule board.
type MachineSlot struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DaySchedule holds the jobs for one machine on one day.
type DaySchedule struct {
	Date time.Time      `json:"date"`
	Jobs []ScheduledJob `json:"jobs"`
}

// MachineSchedule is one machine's week of day slots.
type MachineSchedule struct {
	MachineID   int64         `json:"machine_id"`
	MachineName string        `json:"machine_name"`
	Days        []DaySchedule `json:"days"`
}

// WeekSchedule is the full machines-by-days planning grid plus the
// backlog of orders not yet on it.
type WeekSchedule struct {
	WeekStart   time.Time         `json:"week_start"`
	Days        []time.Time       `json:"days"`
	Machines    []MachineSchedule `json:"machines"`
	Unscheduled []ProductionOrder `json:"unscheduled"`
}

// ============================================================================
// Inputs and filters
// ============================================================================

// CreateOrderRequest raises a new works order.
type CreateOrderRequest struct {
	ItemID           int64
	MouldID          *int64
	OrderType        string
	SalesOrderID     *int64
	CustomerID       *int64
	QuantityRequired int64
	Priority         int
	DueDate          *time.Time
	Notes            string
	ActorID          int64
}

// UpdateOrderRequest edits a planned order.
type UpdateOrderRequest struct {
	MouldID          *int64
	QuantityRequired int64
	Priority         int
	DueDate          *time.Time
	Notes            string
	ActorID          int64
}

// RecordQuantitiesRequest books good and rejected parts against a running order.
type RecordQuantitiesRequest struct {
	OrderID          int64
	QuantityGood     int64
	QuantityRejected int64
	Notes            string
	ActorID          int64
}

// CompleteOrderRequest closes out a running order, optionally booking
// the good parts into stock.
type CompleteOrderRequest struct {
	OrderID           int64
	ReceiveLocationID *int64
	Notes             string
	ActorID           int64
	IdempotencyKey    string
}

// ScheduleJobRequest appends an order to a machine's day plan.
type ScheduleJobRequest struct {
	OrderID   int64
	MachineID int64
	Date      time.Time
	ActorID   int64
}

// MoveJobRequest re-slots a scheduled job. Sequence zero appends to the
// end of the target day.
type MoveJobRequest struct {
	JobID     int64
	MachineID int64
	Date      time.Time
	Sequence  int
	ActorID   int64
}

// CompleteJobRequest records a job's output. Exactly one destination is
// given: a sorting queue type, or a location for direct putaway.
type CompleteJobRequest struct {
	JobID            int64
	QuantityProduced int64
	SortingType      string
	LocationID       *int64
	ActorID          int64
	IdempotencyKey   string
}

// CompleteSortingRequest closes a sorting task with counted quantities.
type CompleteSortingRequest struct {
	TaskID           int64
	ActualQuantity   int64
	RejectedQuantity int64
	LocationID       int64
	ActorID          int64
	IdempotencyKey   string
}

// OrderFilter narrows the order list.
type OrderFilter struct {
	Search       string
	Status       string
	OrderType    string
	ItemID       int64
	MachineID    int64
	SalesOrderID int64
	Page         int
	Limit        int
}

// TaskFilter narrows the sorting queue.
type TaskFilter struct {
	Status      string
	SortingType string
}

// ItemProfile carries the item fields production planning needs.
type ItemProfile struct {
	SKU            string
	Name           string
	DefaultMouldID *int64
	IdealCycleTime float64
	Cavities       int
}

// ============================================================================
// Errors
// ============================================================================

var (
	ErrNotFound        = errors.New("production: not found")
	ErrValidation      = errors.New("production: validation failed")
	ErrInvalidStatus   = errors.New("production: status does not allow this operation")
	ErrMachineRequired = errors.New("production: a machine is required to start")
)
