package production

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderColumns = `po.id, po.order_number, po.item_id, po.mould_id, po.machine_id, po.order_type,
po.sales_order_id, po.customer_id, po.quantity_required, po.quantity_produced,
po.quantity_good, po.quantity_rejected, po.status, po.priority, po.due_date,
po.start_date, po.end_date, po.batch_number, po.notes, po.created_by,
po.created_at, po.updated_at,
i.sku, i.name, COALESCE(m.mould_number, ''), COALESCE(mc.name, ''), COALESCE(c.name, '')`

const orderFrom = ` FROM production_orders po
JOIN items i ON i.id = po.item_id
LEFT JOIN moulds m ON m.id = po.mould_id
LEFT JOIN machines mc ON mc.id = po.machine_id
LEFT JOIN customers c ON c.id = po.customer_id`

const jobColumns = `j.id, j.production_order_id, j.machine_id, j.scheduled_date, j.sequence_order,
j.estimated_duration_hours, j.status, j.actual_start, j.actual_end,
j.output_destination, j.completed_by, j.created_at, j.updated_at,
po.order_number, po.status, i.sku, i.name, po.quantity_required,
po.quantity_produced, po.priority, po.due_date`

const jobFrom = ` FROM scheduled_jobs j
JOIN production_orders po ON po.id = j.production_order_id
JOIN items i ON i.id = po.item_id`

const taskColumns = `t.id, t.production_order_id, t.scheduled_job_id, t.item_id, t.sorting_type,
t.estimated_quantity, t.actual_quantity, t.rejected_quantity, t.location_id,
t.status, t.completed_by, t.completed_at, t.created_at,
po.order_number, po.batch_number, i.sku, i.name`

const taskFrom = ` FROM sorting_tasks t
JOIN production_orders po ON po.id = t.production_order_id
JOIN items i ON i.id = t.item_id`

// Repository persists orders, jobs, logs and sorting tasks in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository backed by pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository is the mutation surface available inside WithTx. Status
// guards live in the UPDATE predicates so stale reads cannot push an
// order or job through a transition twice.
type TxRepository interface {
	GenerateOrderNumber(ctx context.Context, now time.Time) (string, error)
	GenerateBatchNumber(ctx context.Context, prefix string) (string, error)
	CreateOrder(ctx context.Context, o ProductionOrder) (ProductionOrder, error)
	UpdateOrder(ctx context.Context, id int64, o ProductionOrder) error
	RaiseRequired(ctx context.Context, id, quantity int64) error
	StartOrder(ctx context.Context, id, machineID int64, start time.Time) error
	AddQuantities(ctx context.Context, id, produced, good, rejected int64) (int64, int64, error)
	AddSortedQuantities(ctx context.Context, id, good, rejected int64) error
	CompleteOrder(ctx context.Context, id int64, end time.Time) error
	CancelOrder(ctx context.Context, id int64) error
	InsertLog(ctx context.Context, l ProductionLog) (int64, error)
	MaxSequence(ctx context.Context, machineID int64, date time.Time) (int, error)
	CreateJob(ctx context.Context, j ScheduledJob) (ScheduledJob, error)
	UpdateJobSlot(ctx context.Context, id, machineID int64, date time.Time, sequence int) error
	StartJob(ctx context.Context, id int64, start time.Time) error
	CompleteJob(ctx context.Context, id int64, end time.Time, destination string, completedBy int64) error
	DeleteJob(ctx context.Context, id int64) error
	CreateTask(ctx context.Context, t SortingTask) (SortingTask, error)
	StartTask(ctx context.Context, id int64) error
	CompleteTask(ctx context.Context, id, actual, rejected, locationID, completedBy int64, at time.Time) error
}

// WithTx runs fn inside a repeatable read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	txRepo := &txRepository{tx: tx}
	if err := fn(ctx, txRepo); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetOrder loads one order with its joined names.
func (r *Repository) GetOrder(ctx context.Context, id int64) (ProductionOrder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+orderFrom+` WHERE po.id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductionOrder{}, ErrNotFound
	}
	return o, err
}

// ListOrders returns a filtered page of orders plus the total match count.
func (r *Repository) ListOrders(ctx context.Context, f OrderFilter) ([]ProductionOrder, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (po.order_number ILIKE $` + n + ` OR po.batch_number ILIKE $` + n +
			` OR i.sku ILIKE $` + n + ` OR i.name ILIKE $` + n + `)`
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where += ` AND po.status = $` + strconv.Itoa(len(args))
	}
	if f.OrderType != "" {
		args = append(args, f.OrderType)
		where += ` AND po.order_type = $` + strconv.Itoa(len(args))
	}
	if f.ItemID > 0 {
		args = append(args, f.ItemID)
		where += ` AND po.item_id = $` + strconv.Itoa(len(args))
	}
	if f.MachineID > 0 {
		args = append(args, f.MachineID)
		where += ` AND po.machine_id = $` + strconv.Itoa(len(args))
	}
	if f.SalesOrderID > 0 {
		args = append(args, f.SalesOrderID)
		where += ` AND po.sales_order_id = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+orderFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+orderFrom+where+
		` ORDER BY po.created_at DESC, po.id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders := []ProductionOrder{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

// UnscheduledOrders returns open orders with no live slot on the board,
// most urgent first.
func (r *Repository) UnscheduledOrders(ctx context.Context) ([]ProductionOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+orderFrom+`
WHERE po.status IN ($1, $2)
  AND NOT EXISTS (
    SELECT 1 FROM scheduled_jobs j
    WHERE j.production_order_id = po.id AND j.status IN ($3, $4))
ORDER BY po.priority ASC, po.due_date ASC NULLS LAST, po.id ASC`,
		OrderPlanned, OrderInProgress, JobScheduled, JobInProgress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []ProductionOrder{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// ListLogs returns an order's shop floor log, newest first.
func (r *Repository) ListLogs(ctx context.Context, orderID int64) ([]ProductionLog, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, production_order_id, machine_id, user_id, log_type, quantity, notes, created_at
FROM production_logs WHERE production_order_id = $1 ORDER BY created_at DESC, id DESC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []ProductionLog{}
	for rows.Next() {
		var l ProductionLog
		if err := rows.Scan(&l.ID, &l.OrderID, &l.MachineID, &l.UserID, &l.LogType, &l.Quantity, &l.Notes, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// ItemProfile loads the planning fields for an active item.
func (r *Repository) ItemProfile(ctx context.Context, itemID int64) (ItemProfile, error) {
	var p ItemProfile
	err := r.pool.QueryRow(ctx, `SELECT sku, name, default_mould_id, ideal_cycle_time, cavities
FROM items WHERE id = $1 AND is_active = TRUE`, itemID).
		Scan(&p.SKU, &p.Name, &p.DefaultMouldID, &p.IdealCycleTime, &p.Cavities)
	if errors.Is(err, pgx.ErrNoRows) {
		return ItemProfile{}, ErrNotFound
	}
	return p, err
}

// GetJob loads one scheduled job with its order fields.
func (r *Repository) GetJob(ctx context.Context, id int64) (ScheduledJob, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+jobFrom+` WHERE j.id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ScheduledJob{}, ErrNotFound
	}
	return j, err
}

// JobsBetween returns jobs scheduled in [from, to] in board order.
func (r *Repository) JobsBetween(ctx context.Context, from, to time.Time) ([]ScheduledJob, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+jobColumns+jobFrom+`
WHERE j.scheduled_date >= $1 AND j.scheduled_date <= $2
ORDER BY j.machine_id, j.scheduled_date, j.sequence_order`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []ScheduledJob{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// ActiveMachines lists the board rows in display order.
func (r *Repository) ActiveMachines(ctx context.Context) ([]MachineSlot, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM machines WHERE is_active = TRUE ORDER BY display_order, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	machines := []MachineSlot{}
	for rows.Next() {
		var m MachineSlot
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, err
		}
		machines = append(machines, m)
	}
	return machines, rows.Err()
}

// GetTask loads one sorting task.
func (r *Repository) GetTask(ctx context.Context, id int64) (SortingTask, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+taskFrom+` WHERE t.id = $1`, id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return SortingTask{}, ErrNotFound
	}
	return t, err
}

// ListTasks returns the sorting queue oldest first.
func (r *Repository) ListTasks(ctx context.Context, f TaskFilter) ([]SortingTask, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if f.Status != "" {
		args = append(args, f.Status)
		where += ` AND t.status = $` + strconv.Itoa(len(args))
	}
	if f.SortingType != "" {
		args = append(args, f.SortingType)
		where += ` AND t.sorting_type = $` + strconv.Itoa(len(args))
	}
	rows, err := r.pool.Query(ctx, `SELECT `+taskColumns+taskFrom+where+` ORDER BY t.created_at ASC, t.id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []SortingTask{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// PendingCounts tallies the pending queue per sorting type.
func (r *Repository) PendingCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT sorting_type, COUNT(*) FROM sorting_tasks WHERE status = $1 GROUP BY sorting_type`, SortingPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var sortingType string
		var n int
		if err := rows.Scan(&sortingType, &n); err != nil {
			return nil, err
		}
		counts[sortingType] = n
	}
	return counts, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// GenerateOrderNumber allocates the next PO-yymmdd-NNNN for the day.
func (r *txRepository) GenerateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	prefix := "PO-" + now.Format("060102")
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM production_orders WHERE order_number LIKE $1`, prefix+"-%").Scan(&n)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%04d", prefix, n+1), nil
}

// GenerateBatchNumber allocates the next NNN suffix for a yymmdd-SKU prefix.
func (r *txRepository) GenerateBatchNumber(ctx context.Context, prefix string) (string, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM production_orders WHERE batch_number LIKE $1`, prefix+"-%").Scan(&n)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%03d", prefix, n+1), nil
}

func (r *txRepository) CreateOrder(ctx context.Context, o ProductionOrder) (ProductionOrder, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO production_orders
(order_number, item_id, mould_id, machine_id, order_type, sales_order_id, customer_id,
 quantity_required, quantity_produced, quantity_good, quantity_rejected, status, priority,
 due_date, start_date, end_date, batch_number, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
RETURNING id, created_at, updated_at`,
		o.OrderNumber, o.ItemID, o.MouldID, o.MachineID, o.OrderType, o.SalesOrderID, o.CustomerID,
		o.QuantityRequired, o.QuantityProduced, o.QuantityGood, o.QuantityRejected, o.Status, o.Priority,
		o.DueDate, o.StartDate, o.EndDate, o.BatchNumber, o.Notes, o.CreatedBy).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ProductionOrder{}, fmt.Errorf("production: unknown reference on order: %w", ErrValidation)
		}
		return ProductionOrder{}, err
	}
	return o, nil
}

func (r *txRepository) UpdateOrder(ctx context.Context, id int64, o ProductionOrder) error {
	tag, err := r.tx.Exec(ctx, `UPDATE production_orders SET
mould_id = $2, quantity_required = $3, priority = $4, due_date = $5, notes = $6, updated_at = NOW()
WHERE id = $1 AND status = $7`,
		id, o.MouldID, o.QuantityRequired, o.Priority, o.DueDate, o.Notes, OrderPlanned)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

// RaiseRequired lifts a planned order's required quantity. It never
// lowers it: sales processing may run repeatedly as shortfalls shrink.
func (r *txRepository) RaiseRequired(ctx context.Context, id, quantity int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE production_orders SET
quantity_required = $2, updated_at = NOW()
WHERE id = $1 AND status = $3 AND quantity_required < $2`,
		id, quantity, OrderPlanned)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

func (r *txRepository) StartOrder(ctx context.Context, id, machineID int64, start time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE production_orders SET
status = $2, machine_id = $3, start_date = $4, updated_at = NOW()
WHERE id = $1 AND status = $5`,
		id, OrderInProgress, machineID, start, OrderPlanned)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("production: unknown machine: %w", ErrValidation)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

// AddQuantities increments the tallies on a running order and reports
// the resulting produced and required counts.
func (r *txRepository) AddQuantities(ctx context.Context, id, produced, good, rejected int64) (int64, int64, error) {
	var newProduced, required int64
	err := r.tx.QueryRow(ctx, `UPDATE production_orders SET
quantity_produced = quantity_produced + $2,
quantity_good = quantity_good + $3,
quantity_rejected = quantity_rejected + $4,
updated_at = NOW()
WHERE id = $1 AND status = $5
RETURNING quantity_produced, quantity_required`,
		id, produced, good, rejected, OrderInProgress).Scan(&newProduced, &required)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, ErrInvalidStatus
	}
	return newProduced, required, err
}

// AddSortedQuantities folds sorted counts into the tallies. Sorting
// lands after the order may already be completed, so no status guard.
func (r *txRepository) AddSortedQuantities(ctx context.Context, id, good, rejected int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE production_orders SET
quantity_good = quantity_good + $2,
quantity_rejected = quantity_rejected + $3,
updated_at = NOW()
WHERE id = $1`,
		id, good, rejected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) CompleteOrder(ctx context.Context, id int64, end time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE production_orders SET
status = $2, end_date = $3, updated_at = NOW()
WHERE id = $1 AND status = $4`,
		id, OrderCompleted, end, OrderInProgress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

func (r *txRepository) CancelOrder(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE production_orders SET
status = $2, updated_at = NOW()
WHERE id = $1 AND status NOT IN ($3, $4)`,
		id, OrderCancelled, OrderCompleted, OrderCancelled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

func (r *txRepository) InsertLog(ctx context.Context, l ProductionLog) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO production_logs
(production_order_id, machine_id, user_id, log_type, quantity, notes)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		l.OrderID, l.MachineID, nullInt(l.UserID), l.LogType, l.Quantity, l.Notes).Scan(&id)
	return id, err
}

func (r *txRepository) MaxSequence(ctx context.Context, machineID int64, date time.Time) (int, error) {
	var max int
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(sequence_order), 0) FROM scheduled_jobs
WHERE machine_id = $1 AND scheduled_date = $2`, machineID, date).Scan(&max)
	return max, err
}

func (r *txRepository) CreateJob(ctx context.Context, j ScheduledJob) (ScheduledJob, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO scheduled_jobs
(production_order_id, machine_id, scheduled_date, sequence_order, estimated_duration_hours, status)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at`,
		j.ProductionOrderID, j.MachineID, j.ScheduledDate, j.SequenceOrder, j.EstimatedDurationHours, j.Status).
		Scan(&j.ID, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ScheduledJob{}, fmt.Errorf("production: unknown machine: %w", ErrValidation)
		}
		return ScheduledJob{}, err
	}
	return j, nil
}

func (r *txRepository) UpdateJobSlot(ctx context.Context, id, machineID int64, date time.Time, sequence int) error {
	tag, err := r.tx.Exec(ctx, `UPDATE scheduled_jobs SET
machine_id = $2, scheduled_date = $3, sequence_order = $4, updated_at = NOW()
WHERE id = $1 AND status = $5`,
		id, machineID, date, sequence, JobScheduled)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("production: unknown machine: %w", ErrValidation)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

func (r *txRepository) StartJob(ctx context.Context, id int64, start time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE scheduled_jobs SET
status = $2, actual_start = $3, updated_at = NOW()
WHERE id = $1 AND status = $4`,
		id, JobInProgress, start, JobScheduled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

func (r *txRepository) CompleteJob(ctx context.Context, id int64, end time.Time, destination string, completedBy int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE scheduled_jobs SET
status = $2, actual_end = $3, output_destination = $4, completed_by = $5, updated_at = NOW()
WHERE id = $1 AND status IN ($6, $7)`,
		id, JobCompleted, end, destination, nullInt(completedBy), JobInProgress, JobScheduled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

func (r *txRepository) DeleteJob(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM scheduled_jobs WHERE id = $1 AND status = $2`, id, JobScheduled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

func (r *txRepository) CreateTask(ctx context.Context, t SortingTask) (SortingTask, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO sorting_tasks
(production_order_id, scheduled_job_id, item_id, sorting_type, estimated_quantity, status)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		t.ProductionOrderID, t.ScheduledJobID, t.ItemID, t.SortingType, t.EstimatedQuantity, t.Status).
		Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return SortingTask{}, err
	}
	return t, nil
}

func (r *txRepository) StartTask(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE sorting_tasks SET status = $2 WHERE id = $1 AND status = $3`,
		id, SortingInProgress, SortingPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

func (r *txRepository) CompleteTask(ctx context.Context, id, actual, rejected, locationID, completedBy int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE sorting_tasks SET
status = $2, actual_quantity = $3, rejected_quantity = $4, location_id = $5,
completed_by = $6, completed_at = $7
WHERE id = $1 AND status <> $2`,
		id, SortingCompleted, actual, rejected, nullInt(locationID), nullInt(completedBy), at)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("production: unknown location: %w", ErrValidation)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (ProductionOrder, error) {
	var o ProductionOrder
	err := row.Scan(&o.ID, &o.OrderNumber, &o.ItemID, &o.MouldID, &o.MachineID, &o.OrderType,
		&o.SalesOrderID, &o.CustomerID, &o.QuantityRequired, &o.QuantityProduced,
		&o.QuantityGood, &o.QuantityRejected, &o.Status, &o.Priority, &o.DueDate,
		&o.StartDate, &o.EndDate, &o.BatchNumber, &o.Notes, &o.CreatedBy,
		&o.CreatedAt, &o.UpdatedAt,
		&o.ItemSKU, &o.ItemName, &o.MouldNumber, &o.MachineName, &o.CustomerName)
	return o, err
}

func scanJob(row rowScanner) (ScheduledJob, error) {
	var j ScheduledJob
	err := row.Scan(&j.ID, &j.ProductionOrderID, &j.MachineID, &j.ScheduledDate, &j.SequenceOrder,
		&j.EstimatedDurationHours, &j.Status, &j.ActualStart, &j.ActualEnd,
		&j.OutputDestination, &j.CompletedBy, &j.CreatedAt, &j.UpdatedAt,
		&j.OrderNumber, &j.OrderStatus, &j.ItemSKU, &j.ItemName, &j.QuantityRequired,
		&j.QuantityProduced, &j.Priority, &j.DueDate)
	return j, err
}

func scanTask(row rowScanner) (SortingTask, error) {
	var t SortingTask
	err := row.Scan(&t.ID, &t.ProductionOrderID, &t.ScheduledJobID, &t.ItemID, &t.SortingType,
		&t.EstimatedQuantity, &t.ActualQuantity, &t.RejectedQuantity, &t.LocationID,
		&t.Status, &t.CompletedBy, &t.CompletedAt, &t.CreatedAt,
		&t.OrderNumber, &t.BatchNumber, &t.ItemSKU, &t.ItemName)
	return t, err
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
