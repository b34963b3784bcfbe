package analytics

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const movementHistoryCap = 500

// Repository runs the reporting aggregates against Postgres. Reads
// only; every write path lives in its owning module.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository backed by pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Dashboard gathers the front-page snapshot in one pass.
func (r *Repository) Dashboard(ctx context.Context, now time.Time) (DashboardSummary, error) {
	d := DashboardSummary{MachineStatus: map[string]int{}}

	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE i.min_stock_level > 0 AND COALESCE(s.total, 0) <= i.min_stock_level),
		       COALESCE(SUM(COALESCE(s.total, 0) * i.unit_cost), 0)
		FROM items i
		LEFT JOIN (
			SELECT item_id, SUM(quantity) AS total FROM stock_levels GROUP BY item_id
		) s ON s.item_id = i.id
		WHERE i.is_active`).Scan(&d.ItemCount, &d.LowStockCount, &d.StockValue)
	if err != nil {
		return d, err
	}

	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'in_progress'),
		       COUNT(*) FILTER (WHERE status = 'planned')
		FROM production_orders`).Scan(&d.ActiveProduction, &d.PlannedProduction)
	if err != nil {
		return d, err
	}

	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status IN ('new', 'in_production')),
		       COUNT(*) FILTER (WHERE status = 'ready_to_ship'),
		       COUNT(*) FILTER (WHERE required_date IS NOT NULL
		           AND required_date <= $1
		           AND status IN ('new', 'in_production', 'ready_to_ship', 'partially_shipped'))
		FROM sales_orders`, now.AddDate(0, 0, 3)).Scan(&d.PendingOrders, &d.ReadyToShipCount, &d.UrgentOrders)
	if err != nil {
		return d, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM machines WHERE is_active GROUP BY status`)
	if err != nil {
		return d, err
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return d, err
		}
		d.MachineStatus[status] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return d, err
	}

	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM moulds
		WHERE is_active AND (
			(next_maintenance_date IS NOT NULL AND next_maintenance_date < $1)
			OR (maintenance_interval_shots > 0 AND shots_since_maintenance >= maintenance_interval_shots)
		)`, now).Scan(&d.OverdueMouldMaintenance)
	if err != nil {
		return d, err
	}

	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM scheduled_jobs WHERE scheduled_date = $1 AND status <> 'skipped'`,
		now.Format("2006-01-02")).Scan(&d.TodaysScheduledJobs)
	if err != nil {
		return d, err
	}

	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM sorting_tasks WHERE status = 'pending'`).Scan(&d.PendingSortingTasks)
	if err != nil {
		return d, err
	}

	if d.RecentMovements, err = r.recentMovements(ctx, 10); err != nil {
		return d, err
	}
	if d.RecentOrders, err = r.recentOrders(ctx, 5); err != nil {
		return d, err
	}
	return d, nil
}

func (r *Repository) recentMovements(ctx context.Context, limit int) ([]RecentMovement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.id, i.sku, i.name, m.movement_type, m.quantity, m.reference, m.created_at
		FROM stock_movements m
		JOIN items i ON i.id = m.item_id
		ORDER BY m.created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []RecentMovement{}
	for rows.Next() {
		var m RecentMovement
		if err := rows.Scan(&m.ID, &m.ItemSKU, &m.ItemName, &m.MovementType, &m.Quantity, &m.Reference, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repository) recentOrders(ctx context.Context, limit int) ([]RecentOrder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT so.id, so.order_number, c.name, so.status, so.total_amount, so.required_date, so.created_at
		FROM sales_orders so
		JOIN customers c ON c.id = so.customer_id
		ORDER BY so.created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []RecentOrder{}
	for rows.Next() {
		var o RecentOrder
		if err := rows.Scan(&o.ID, &o.OrderNumber, &o.CustomerName, &o.Status, &o.TotalAmount, &o.RequiredDate, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ProductionLast7Days returns good parts booked per day for the
// trailing week, including zero days.
func (r *Repository) ProductionLast7Days(ctx context.Context, now time.Time) ([]SeriesPoint, error) {
	start := now.AddDate(0, 0, -6)
	rows, err := r.pool.Query(ctx, `
		SELECT DATE(end_date), COALESCE(SUM(quantity_good), 0)
		FROM production_orders
		WHERE status = 'completed' AND end_date >= $1
		GROUP BY DATE(end_date)`, start.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byDay := map[string]float64{}
	for rows.Next() {
		var day time.Time
		var qty float64
		if err := rows.Scan(&day, &qty); err != nil {
			return nil, err
		}
		byDay[day.Format("2006-01-02")] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	points := make([]SeriesPoint, 0, 7)
	for i := 0; i < 7; i++ {
		day := start.AddDate(0, 0, i).Format("2006-01-02")
		points = append(points, SeriesPoint{Date: day, Value: byDay[day]})
	}
	return points, nil
}

// StockByCategory sums on-hand quantity per item category.
func (r *Repository) StockByCategory(ctx context.Context) ([]CategoryCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT COALESCE(NULLIF(i.category, ''), 'uncategorised'), COALESCE(SUM(s.quantity), 0)
		FROM items i
		LEFT JOIN stock_levels s ON s.item_id = i.id
		WHERE i.is_active
		GROUP BY 1 ORDER BY 2 DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCategoryCounts(rows)
}

// OrderStatusDistribution counts live sales orders per status.
func (r *Repository) OrderStatusDistribution(ctx context.Context) ([]CategoryCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM sales_orders
		WHERE status <> 'archived'
		GROUP BY status ORDER BY 2 DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCategoryCounts(rows)
}

// StockOnHand lists every active item's position, optionally narrowed
// by category, type or location.
func (r *Repository) StockOnHand(ctx context.Context, f StockFilter) ([]StockRow, error) {
	where := ` WHERE i.is_active`
	args := []any{}
	if f.Category != "" {
		args = append(args, f.Category)
		where += ` AND i.category = $` + strconv.Itoa(len(args))
	}
	if f.ItemType != "" {
		args = append(args, f.ItemType)
		where += ` AND i.item_type = $` + strconv.Itoa(len(args))
	}
	join := `LEFT JOIN (SELECT item_id, SUM(quantity) AS total FROM stock_levels GROUP BY item_id) s ON s.item_id = i.id`
	if f.LocationID > 0 {
		args = append(args, f.LocationID)
		join = `JOIN (SELECT item_id, SUM(quantity) AS total FROM stock_levels WHERE location_id = $` +
			strconv.Itoa(len(args)) + ` GROUP BY item_id) s ON s.item_id = i.id`
	}
	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.sku, i.name, i.category, i.item_type,
		       COALESCE(s.total, 0), i.min_stock_level, i.reorder_point, i.unit_cost,
		       COALESCE(s.total, 0) * i.unit_cost
		FROM items i `+join+where+` ORDER BY i.sku`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStockRows(rows)
}

// LowStock lists items at or below their minimum level.
func (r *Repository) LowStock(ctx context.Context) ([]StockRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.sku, i.name, i.category, i.item_type,
		       COALESCE(s.total, 0), i.min_stock_level, i.reorder_point, i.unit_cost,
		       COALESCE(s.total, 0) * i.unit_cost
		FROM items i
		LEFT JOIN (SELECT item_id, SUM(quantity) AS total FROM stock_levels GROUP BY item_id) s ON s.item_id = i.id
		WHERE i.is_active AND i.min_stock_level > 0 AND COALESCE(s.total, 0) <= i.min_stock_level
		ORDER BY COALESCE(s.total, 0) / i.min_stock_level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStockRows(rows)
}

// StockValue lists items by the value tied up in them, highest first.
func (r *Repository) StockValue(ctx context.Context) ([]StockRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.sku, i.name, i.category, i.item_type,
		       COALESCE(s.total, 0), i.min_stock_level, i.reorder_point, i.unit_cost,
		       COALESCE(s.total, 0) * i.unit_cost AS value
		FROM items i
		LEFT JOIN (SELECT item_id, SUM(quantity) AS total FROM stock_levels GROUP BY item_id) s ON s.item_id = i.id
		WHERE i.is_active AND COALESCE(s.total, 0) > 0
		ORDER BY value DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStockRows(rows)
}

// MovementHistory lists stock movements, newest first, capped so the
// report cannot drag the whole table across the wire.
func (r *Repository) MovementHistory(ctx context.Context, f MovementFilter) ([]MovementRow, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if !f.From.IsZero() {
		args = append(args, f.From)
		where += ` AND m.created_at >= $` + strconv.Itoa(len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		where += ` AND m.created_at <= $` + strconv.Itoa(len(args))
	}
	if f.MovementType != "" {
		args = append(args, f.MovementType)
		where += ` AND m.movement_type = $` + strconv.Itoa(len(args))
	}
	if f.ItemID > 0 {
		args = append(args, f.ItemID)
		where += ` AND m.item_id = $` + strconv.Itoa(len(args))
	}
	args = append(args, movementHistoryCap)
	rows, err := r.pool.Query(ctx, `
		SELECT m.id, i.sku, i.name, m.movement_type, m.quantity,
		       COALESCE(lf.code, ''), COALESCE(lt.code, ''),
		       m.reference, m.batch_number, m.created_at
		FROM stock_movements m
		JOIN items i ON i.id = m.item_id
		LEFT JOIN locations lf ON lf.id = m.from_location_id
		LEFT JOIN locations lt ON lt.id = m.to_location_id`+where+`
		ORDER BY m.created_at DESC LIMIT $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []MovementRow{}
	for rows.Next() {
		var m MovementRow
		err := rows.Scan(&m.ID, &m.ItemSKU, &m.ItemName, &m.MovementType, &m.Quantity,
			&m.FromLocation, &m.ToLocation, &m.Reference, &m.BatchNumber, &m.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ProductionSummary aggregates works orders per item over a range.
func (r *Repository) ProductionSummary(ctx context.Context, f RangeFilter) ([]ProductionSummaryRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.sku, i.name, COUNT(po.id),
		       COALESCE(SUM(po.quantity_required), 0), COALESCE(SUM(po.quantity_produced), 0),
		       COALESCE(SUM(po.quantity_good), 0), COALESCE(SUM(po.quantity_rejected), 0)
		FROM production_orders po
		JOIN items i ON i.id = po.item_id
		WHERE po.created_at >= $1 AND po.created_at <= $2 AND po.status <> 'cancelled'
		GROUP BY i.id, i.sku, i.name
		ORDER BY 6 DESC`, f.From, f.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ProductionSummaryRow{}
	for rows.Next() {
		var row ProductionSummaryRow
		err := rows.Scan(&row.ItemID, &row.SKU, &row.Name, &row.Orders,
			&row.QuantityRequired, &row.QuantityProduced, &row.QuantityGood, &row.QuantityRejected)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// MachineUtilization summarises each press's workload over a range.
func (r *Repository) MachineUtilization(ctx context.Context, f RangeFilter) ([]MachineUtilizationRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.id, m.name, m.status,
		       (SELECT COUNT(*) FROM scheduled_jobs j
		        WHERE j.machine_id = m.id AND j.scheduled_date >= $1 AND j.scheduled_date <= $2),
		       (SELECT COUNT(*) FROM production_orders po
		        WHERE po.machine_id = m.id AND po.status = 'completed'
		          AND po.end_date >= $1 AND po.end_date <= $2),
		       (SELECT COALESCE(SUM(po.quantity_good), 0) FROM production_orders po
		        WHERE po.machine_id = m.id AND po.status = 'completed'
		          AND po.end_date >= $1 AND po.end_date <= $2)
		FROM machines m
		WHERE m.is_active
		ORDER BY m.display_order, m.id`, f.From, f.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []MachineUtilizationRow{}
	for rows.Next() {
		var row MachineUtilizationRow
		err := rows.Scan(&row.MachineID, &row.MachineName, &row.Status,
			&row.ScheduledJobs, &row.CompletedOrders, &row.QuantityGood)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// OrderSummary returns the sales status mix plus the top customers by
// order value over a range.
func (r *Repository) OrderSummary(ctx context.Context, f RangeFilter) (OrderSummaryReport, error) {
	report := OrderSummaryReport{}
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM sales_orders
		WHERE created_at >= $1 AND created_at <= $2
		GROUP BY status ORDER BY 2 DESC`, f.From, f.To)
	if err != nil {
		return report, err
	}
	report.StatusCounts, err = scanCategoryCounts(rows)
	rows.Close()
	if err != nil {
		return report, err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT c.id, c.name, COUNT(so.id), COALESCE(SUM(so.total_amount), 0) AS value
		FROM sales_orders so
		JOIN customers c ON c.id = so.customer_id
		WHERE so.created_at >= $1 AND so.created_at <= $2 AND so.status <> 'cancelled'
		GROUP BY c.id, c.name
		ORDER BY value DESC LIMIT 10`, f.From, f.To)
	if err != nil {
		return report, err
	}
	defer rows.Close()
	for rows.Next() {
		var row CustomerValueRow
		if err := rows.Scan(&row.CustomerID, &row.Name, &row.Orders, &row.TotalValue); err != nil {
			return report, err
		}
		report.TopCustomers = append(report.TopCustomers, row)
	}
	return report, rows.Err()
}

// MouldMaintenance lists tools overdue now or due in the next 30 days.
func (r *Repository) MouldMaintenance(ctx context.Context, now time.Time) ([]MouldMaintenanceRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, mould_number, name, next_maintenance_date,
		       shots_since_maintenance, maintenance_interval_shots,
		       (next_maintenance_date IS NOT NULL AND next_maintenance_date < $1)
		       OR (maintenance_interval_shots > 0 AND shots_since_maintenance >= maintenance_interval_shots)
		FROM moulds
		WHERE is_active AND (
			(next_maintenance_date IS NOT NULL AND next_maintenance_date <= $2)
			OR (maintenance_interval_shots > 0 AND shots_since_maintenance >= maintenance_interval_shots)
		)
		ORDER BY next_maintenance_date NULLS LAST`, now, now.AddDate(0, 0, 30))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []MouldMaintenanceRow{}
	for rows.Next() {
		var row MouldMaintenanceRow
		err := rows.Scan(&row.MouldID, &row.MouldNumber, &row.Name, &row.NextMaintenanceDate,
			&row.ShotsSinceMaintenance, &row.IntervalShots, &row.Overdue)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// NCRReport lists non-conformances raised over a range.
func (r *Repository) NCRReport(ctx context.Context, f RangeFilter) ([]NCRRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT n.id, n.ncr_number, n.source, n.status, n.disposition,
		       COALESCE(i.sku, ''), COALESCE(c.name, ''), n.quantity_affected, n.description, n.created_at
		FROM non_conformances n
		LEFT JOIN items i ON i.id = n.item_id
		LEFT JOIN customers c ON c.id = n.customer_id
		WHERE n.created_at >= $1 AND n.created_at <= $2
		ORDER BY n.created_at DESC`, f.From, f.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []NCRRow{}
	for rows.Next() {
		var row NCRRow
		err := rows.Scan(&row.ID, &row.NCRNumber, &row.Source, &row.Status, &row.Disposition,
			&row.ItemSKU, &row.Customer, &row.Quantity, &row.Description, &row.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

type countScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanCategoryCounts(rows countScanner) ([]CategoryCount, error) {
	out := []CategoryCount{}
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Label, &c.Value); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanStockRows(rows countScanner) ([]StockRow, error) {
	out := []StockRow{}
	for rows.Next() {
		var s StockRow
		err := rows.Scan(&s.ItemID, &s.SKU, &s.Name, &s.Category, &s.ItemType,
			&s.TotalStock, &s.MinStock, &s.ReorderPoint, &s.UnitCost, &s.StockValue)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
