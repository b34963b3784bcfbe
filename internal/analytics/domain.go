package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

// DashboardSummary is the front-page snapshot: stock health, what the
// presses are doing, and what needs chasing today.
type DashboardSummary struct {
	ItemCount     int             `json:"item_count"`
	LowStockCount int             `json:"low_stock_count"`
	StockValue    decimal.Decimal `json:"stock_value"`

	ActiveProduction  int `json:"active_production"`
	PlannedProduction int `json:"planned_production"`

	PendingOrders    int `json:"pending_orders"`
	ReadyToShipCount int `json:"ready_to_ship_count"`
	UrgentOrders     int `json:"urgent_orders"`

	MachineStatus           map[string]int `json:"machine_status"`
	OverdueMouldMaintenance int            `json:"overdue_mould_maintenance"`
	TodaysScheduledJobs     int            `json:"todays_scheduled_jobs"`
	PendingSortingTasks     int            `json:"pending_sorting_tasks"`

	RecentMovements []RecentMovement `json:"recent_movements"`
	RecentOrders    []RecentOrder    `json:"recent_orders"`
}

// RecentMovement is one line of the dashboard movement feed.
type RecentMovement struct {
	ID           int64     `json:"id"`
	ItemSKU      string    `json:"item_sku"`
	ItemName     string    `json:"item_name"`
	MovementType string    `json:"movement_type"`
	Quantity     float64   `json:"quantity"`
	Reference    string    `json:"reference"`
	CreatedAt    time.Time `json:"created_at"`
}

// RecentOrder is one line of the dashboard order feed.
type RecentOrder struct {
	ID           int64           `json:"id"`
	OrderNumber  string          `json:"order_number"`
	CustomerName string          `json:"customer_name"`
	Status       string          `json:"status"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	RequiredDate *time.Time      `json:"required_date"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SeriesPoint is one dated value on a chart.
type SeriesPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// CategoryCount tallies a label on a chart.
type CategoryCount struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// ChartData bundles the dashboard chart feeds.
type ChartData struct {
	ProductionLast7Days []SeriesPoint   `json:"production_last_7_days"`
	StockByCategory     []CategoryCount `json:"stock_by_category"`
	OrderStatuses       []CategoryCount `json:"order_statuses"`
}

// StockRow is one item's stock position.
type StockRow struct {
	ItemID       int64           `json:"item_id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	ItemType     string          `json:"item_type"`
	TotalStock   float64         `json:"total_stock"`
	MinStock     float64         `json:"min_stock"`
	ReorderPoint float64         `json:"reorder_point"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	StockValue   decimal.Decimal `json:"stock_value"`
}

// StockFilter narrows the stock reports.
type StockFilter struct {
	Category   string
	ItemType   string
	LocationID int64
}

// MovementRow is one line of the movement history report.
type MovementRow struct {
	ID           int64     `json:"id"`
	ItemSKU      string    `json:"item_sku"`
	ItemName     string    `json:"item_name"`
	MovementType string    `json:"movement_type"`
	Quantity     float64   `json:"quantity"`
	FromLocation string    `json:"from_location"`
	ToLocation   string    `json:"to_location"`
	Reference    string    `json:"reference"`
	BatchNumber  string    `json:"batch_number"`
	CreatedAt    time.Time `json:"created_at"`
}

// MovementFilter narrows the movement history report.
type MovementFilter struct {
	From         time.Time
	To           time.Time
	MovementType string
	ItemID       int64
}

// ProductionSummaryRow aggregates works orders per item over a range.
type ProductionSummaryRow struct {
	ItemID           int64  `json:"item_id"`
	SKU              string `json:"sku"`
	Name             string `json:"name"`
	Orders           int    `json:"orders"`
	QuantityRequired int64  `json:"quantity_required"`
	QuantityProduced int64  `json:"quantity_produced"`
	QuantityGood     int64  `json:"quantity_good"`
	QuantityRejected int64  `json:"quantity_rejected"`
}

// MachineUtilizationRow summarises one press's recent workload.
type MachineUtilizationRow struct {
	MachineID       int64  `json:"machine_id"`
	MachineName     string `json:"machine_name"`
	Status          string `json:"status"`
	ScheduledJobs   int    `json:"scheduled_jobs"`
	CompletedOrders int    `json:"completed_orders"`
	QuantityGood    int64  `json:"quantity_good"`
}

// CustomerValueRow ranks a customer by order value.
type CustomerValueRow struct {
	CustomerID int64           `json:"customer_id"`
	Name       string          `json:"name"`
	Orders     int             `json:"orders"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// OrderSummaryReport is the sales overview: status mix plus the
// customers carrying the book.
type OrderSummaryReport struct {
	StatusCounts []CategoryCount    `json:"status_counts"`
	TopCustomers []CustomerValueRow `json:"top_customers"`
}

// MouldMaintenanceRow is one tool on the maintenance report.
type MouldMaintenanceRow struct {
	MouldID               int64      `json:"mould_id"`
	MouldNumber           string     `json:"mould_number"`
	Name                  string     `json:"name"`
	NextMaintenanceDate   *time.Time `json:"next_maintenance_date"`
	ShotsSinceMaintenance int64      `json:"shots_since_maintenance"`
	IntervalShots         int64      `json:"interval_shots"`
	Overdue               bool       `json:"overdue"`
}

// NCRRow is one line of the non-conformance report.
type NCRRow struct {
	ID          int64     `json:"id"`
	NCRNumber   string    `json:"ncr_number"`
	Source      string    `json:"source"`
	Status      string    `json:"status"`
	Disposition string    `json:"disposition"`
	ItemSKU     string    `json:"item_sku"`
	Customer    string    `json:"customer"`
	Quantity    int64     `json:"quantity"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// RangeFilter bounds a report by date.
type RangeFilter struct {
	From time.Time
	To   time.Time
}
