package costing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const quoteColumns = `q.id, q.quote_number, q.customer_id, q.item_id, q.description,
q.quantity, q.annual_volume, q.part_weight_g, q.runner_weight_g, q.cycle_time_seconds,
q.cavities, q.material_type, q.material_cost_per_kg, q.machine_rate_per_hour,
q.labour_rate_per_hour, q.setup_hours, q.secondary_ops_cost, q.overhead_percent,
q.packaging_cost_per_part, q.target_margin_percent, q.tooling_cost, q.tooling_amortization_qty,
q.material_cost_per_part, q.cycle_cost_per_part, q.setup_cost_per_part,
q.overhead_cost_per_part, q.total_cost_per_part, q.price_per_part, q.quoted_total,
q.valid_until, q.status, q.sent_at, q.sales_order_id, q.notes, q.internal_notes,
q.created_by, q.created_at, q.updated_at, COALESCE(c.name, '')`

const quoteFrom = ` FROM quotes q LEFT JOIN customers c ON c.id = q.customer_id`

const jobCostingColumns = `id, production_order_id, quote_id, quoted_cost_per_part,
quoted_total_cost, quantity_produced, actual_material_kg, material_cost_per_kg,
labour_hours, labour_rate, machine_hours, machine_rate, setup_hours, setup_rate,
scrap_quantity, scrap_cost, packaging_cost, secondary_ops_cost, overhead_allocated,
actual_selling_price, notes, created_at, updated_at`

// Repository persists quotes, job costings and rates in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository backed by pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository is the mutation surface available inside WithTx.
type TxRepository interface {
	GenerateQuoteNumber(ctx context.Context, now time.Time) (string, error)
	InsertQuote(ctx context.Context, q Quote) (Quote, error)
	UpdateQuote(ctx context.Context, q Quote) error
	SetQuoteStatus(ctx context.Context, id int64, from, to string, sentAt *time.Time) (bool, error)
	LinkSalesOrder(ctx context.Context, quoteID, orderID int64) error

	InsertJobCosting(ctx context.Context, j JobCosting) (JobCosting, error)
	UpdateJobCosting(ctx context.Context, j JobCosting) error
	InsertMaterialUsage(ctx context.Context, u MaterialUsage) (MaterialUsage, error)

	InsertMachineRate(ctx context.Context, r MachineRate) (MachineRate, error)
	InsertLabourRate(ctx context.Context, r LabourRate) (LabourRate, error)
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

// GetQuote loads one quote with its customer name.
func (r *Repository) GetQuote(ctx context.Context, id int64) (Quote, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+quoteColumns+quoteFrom+` WHERE q.id = $1`, id)
	q, err := scanQuote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Quote{}, ErrNotFound
	}
	return q, err
}

// ListQuotes returns a filtered page of quotes plus the total count.
func (r *Repository) ListQuotes(ctx context.Context, f QuoteFilter) ([]Quote, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (q.quote_number ILIKE $` + n + ` OR q.description ILIKE $` + n + `)`
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where += ` AND q.status = $` + strconv.Itoa(len(args))
	}
	if f.CustomerID > 0 {
		args = append(args, f.CustomerID)
		where += ` AND q.customer_id = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+quoteFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)
	query := `SELECT ` + quoteColumns + quoteFrom + where +
		` ORDER BY q.created_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	quotes := []Quote{}
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, 0, err
		}
		quotes = append(quotes, q)
	}
	return quotes, total, rows.Err()
}

// JobCostingByOrder loads the costing row for a production order.
func (r *Repository) JobCostingByOrder(ctx context.Context, productionOrderID int64) (JobCosting, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+jobCostingColumns+` FROM job_costings WHERE production_order_id = $1`, productionOrderID)
	j, err := scanJobCosting(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return JobCosting{}, ErrNotFound
	}
	return j, err
}

// MaterialUsageByOrder lists recorded usage rows for a production order.
func (r *Repository) MaterialUsageByOrder(ctx context.Context, productionOrderID int64) ([]MaterialUsage, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, production_order_id, material_name, planned_kg,
actual_kg, cost_per_kg, notes, created_at FROM material_usage
WHERE production_order_id = $1 ORDER BY id`, productionOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	usage := []MaterialUsage{}
	for rows.Next() {
		var u MaterialUsage
		if err := rows.Scan(&u.ID, &u.ProductionOrderID, &u.MaterialName, &u.PlannedKg,
			&u.ActualKg, &u.CostPerKg, &u.Notes, &u.CreatedAt); err != nil {
			return nil, err
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

// MachineRateFor picks the latest rate effective on or before date.
func (r *Repository) MachineRateFor(ctx context.Context, machineID int64, date time.Time) (MachineRate, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, machine_id, hourly_rate, setup_rate, energy_rate_per_kwh,
running_kw, overhead_rate_per_hour, effective_from, created_at FROM machine_rates
WHERE machine_id = $1 AND effective_from <= $2 ORDER BY effective_from DESC LIMIT 1`, machineID, date)
	var rate MachineRate
	err := row.Scan(&rate.ID, &rate.MachineID, &rate.HourlyRate, &rate.SetupRate, &rate.EnergyRatePerKwh,
		&rate.RunningKw, &rate.OverheadRatePerHour, &rate.EffectiveFrom, &rate.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return MachineRate{}, ErrNoCurrentRate
	}
	return rate, err
}

// LabourRateFor picks the latest role rate effective on or before date.
func (r *Repository) LabourRateFor(ctx context.Context, role string, date time.Time) (LabourRate, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, role, hourly_rate, overtime_multiplier, effective_from,
created_at FROM labour_rates
WHERE role = $1 AND effective_from <= $2 ORDER BY effective_from DESC LIMIT 1`, role, date)
	var rate LabourRate
	err := row.Scan(&rate.ID, &rate.Role, &rate.HourlyRate, &rate.OvertimeMultiplier,
		&rate.EffectiveFrom, &rate.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return LabourRate{}, ErrNoCurrentRate
	}
	return rate, err
}

// ListMachineRates returns a machine's rate history, newest first.
func (r *Repository) ListMachineRates(ctx context.Context, machineID int64) ([]MachineRate, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, machine_id, hourly_rate, setup_rate, energy_rate_per_kwh,
running_kw, overhead_rate_per_hour, effective_from, created_at FROM machine_rates
WHERE machine_id = $1 ORDER BY effective_from DESC`, machineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rates := []MachineRate{}
	for rows.Next() {
		var rate MachineRate
		if err := rows.Scan(&rate.ID, &rate.MachineID, &rate.HourlyRate, &rate.SetupRate,
			&rate.EnergyRatePerKwh, &rate.RunningKw, &rate.OverheadRatePerHour,
			&rate.EffectiveFrom, &rate.CreatedAt); err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}

// ListLabourRates returns a role's rate history, newest first.
func (r *Repository) ListLabourRates(ctx context.Context, role string) ([]LabourRate, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, role, hourly_rate, overtime_multiplier, effective_from,
created_at FROM labour_rates WHERE ($1 = '' OR role = $1) ORDER BY role, effective_from DESC`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rates := []LabourRate{}
	for rows.Next() {
		var rate LabourRate
		if err := rows.Scan(&rate.ID, &rate.Role, &rate.HourlyRate, &rate.OvertimeMultiplier,
			&rate.EffectiveFrom, &rate.CreatedAt); err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// GenerateQuoteNumber allocates the next QT-yymmdd-nnnn for the day.
func (t *txRepository) GenerateQuoteNumber(ctx context.Context, now time.Time) (string, error) {
	day := now.Format("060102")
	var count int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM quotes WHERE quote_number LIKE $1`, "QT-"+day+"-%").Scan(&count)
	if err != nil {
		return "", fmt.Errorf("count quotes: %w", err)
	}
	return fmt.Sprintf("QT-%s-%04d", day, count+1), nil
}

func (t *txRepository) InsertQuote(ctx context.Context, q Quote) (Quote, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO quotes (quote_number, customer_id, item_id, description,
quantity, annual_volume, part_weight_g, runner_weight_g, cycle_time_seconds, cavities,
material_type, material_cost_per_kg, machine_rate_per_hour, labour_rate_per_hour, setup_hours,
secondary_ops_cost, overhead_percent, packaging_cost_per_part, target_margin_percent,
tooling_cost, tooling_amortization_qty, material_cost_per_part, cycle_cost_per_part,
setup_cost_per_part, overhead_cost_per_part, total_cost_per_part, price_per_part, quoted_total,
valid_until, status, notes, internal_notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33)
RETURNING id, created_at, updated_at`,
		q.QuoteNumber, q.CustomerID, q.ItemID, q.Description, q.Quantity, q.AnnualVolume,
		q.PartWeightG, q.RunnerWeightG, q.CycleTimeSeconds, q.Cavities, q.MaterialType,
		q.MaterialCostPerKg, q.MachineRatePerHour, q.LabourRatePerHour, q.SetupHours,
		q.SecondaryOpsCost, q.OverheadPercent, q.PackagingCostPerPart, q.TargetMarginPercent,
		q.ToolingCost, q.ToolingAmortizationQty, q.MaterialCostPerPart, q.CycleCostPerPart,
		q.SetupCostPerPart, q.OverheadCostPerPart, q.TotalCostPerPart, q.PricePerPart,
		q.QuotedTotal, q.ValidUntil, q.Status, q.Notes, q.InternalNotes, q.CreatedBy)
	if err := row.Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return Quote{}, fmt.Errorf("insert quote: %w", err)
	}
	return q, nil
}

func (t *txRepository) UpdateQuote(ctx context.Context, q Quote) error {
	tag, err := t.tx.Exec(ctx, `UPDATE quotes SET customer_id = $2, item_id = $3, description = $4,
quantity = $5, annual_volume = $6, part_weight_g = $7, runner_weight_g = $8,
cycle_time_seconds = $9, cavities = $10, material_type = $11, material_cost_per_kg = $12,
machine_rate_per_hour = $13, labour_rate_per_hour = $14, setup_hours = $15,
secondary_ops_cost = $16, overhead_percent = $17, packaging_cost_per_part = $18,
target_margin_percent = $19, tooling_cost = $20, tooling_amortization_qty = $21,
material_cost_per_part = $22, cycle_cost_per_part = $23, setup_cost_per_part = $24,
overhead_cost_per_part = $25, total_cost_per_part = $26, price_per_part = $27,
quoted_total = $28, valid_until = $29, notes = $30, internal_notes = $31, updated_at = NOW()
WHERE id = $1`,
		q.ID, q.CustomerID, q.ItemID, q.Description, q.Quantity, q.AnnualVolume,
		q.PartWeightG, q.RunnerWeightG, q.CycleTimeSeconds, q.Cavities, q.MaterialType,
		q.MaterialCostPerKg, q.MachineRatePerHour, q.LabourRatePerHour, q.SetupHours,
		q.SecondaryOpsCost, q.OverheadPercent, q.PackagingCostPerPart, q.TargetMarginPercent,
		q.ToolingCost, q.ToolingAmortizationQty, q.MaterialCostPerPart, q.CycleCostPerPart,
		q.SetupCostPerPart, q.OverheadCostPerPart, q.TotalCostPerPart, q.PricePerPart,
		q.QuotedTotal, q.ValidUntil, q.Notes, q.InternalNotes)
	if err != nil {
		return fmt.Errorf("update quote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetQuoteStatus moves a quote between statuses, guarded by the
// expected current status.
func (t *txRepository) SetQuoteStatus(ctx context.Context, id int64, from, to string, sentAt *time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE quotes SET status = $3,
sent_at = COALESCE($4, sent_at), updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to, sentAt)
	if err != nil {
		return false, fmt.Errorf("set quote status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepository) LinkSalesOrder(ctx context.Context, quoteID, orderID int64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE quotes SET sales_order_id = $2, updated_at = NOW() WHERE id = $1`, quoteID, orderID)
	return err
}

func (t *txRepository) InsertJobCosting(ctx context.Context, j JobCosting) (JobCosting, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO job_costings (production_order_id, quote_id,
quoted_cost_per_part, quoted_total_cost, quantity_produced, actual_material_kg,
material_cost_per_kg, labour_hours, labour_rate, machine_hours, machine_rate, setup_hours,
setup_rate, scrap_quantity, scrap_cost, packaging_cost, secondary_ops_cost,
overhead_allocated, actual_selling_price, notes)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
RETURNING id, created_at, updated_at`,
		j.ProductionOrderID, j.QuoteID, j.QuotedCostPerPart, j.QuotedTotalCost,
		j.QuantityProduced, j.ActualMaterialKg, j.MaterialCostPerKg, j.LabourHours,
		j.LabourRate, j.MachineHours, j.MachineRate, j.SetupHours, j.SetupRate,
		j.ScrapQuantity, j.ScrapCost, j.PackagingCost, j.SecondaryOpsCost,
		j.OverheadAllocated, j.ActualSellingPrice, j.Notes)
	if err := row.Scan(&j.ID, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return JobCosting{}, fmt.Errorf("insert job costing: %w", err)
	}
	return j, nil
}

func (t *txRepository) UpdateJobCosting(ctx context.Context, j JobCosting) error {
	tag, err := t.tx.Exec(ctx, `UPDATE job_costings SET quote_id = $2, quoted_cost_per_part = $3,
quoted_total_cost = $4, quantity_produced = $5, actual_material_kg = $6,
material_cost_per_kg = $7, labour_hours = $8, labour_rate = $9, machine_hours = $10,
machine_rate = $11, setup_hours = $12, setup_rate = $13, scrap_quantity = $14,
scrap_cost = $15, packaging_cost = $16, secondary_ops_cost = $17, overhead_allocated = $18,
actual_selling_price = $19, notes = $20, updated_at = NOW() WHERE id = $1`,
		j.ID, j.QuoteID, j.QuotedCostPerPart, j.QuotedTotalCost, j.QuantityProduced,
		j.ActualMaterialKg, j.MaterialCostPerKg, j.LabourHours, j.LabourRate, j.MachineHours,
		j.MachineRate, j.SetupHours, j.SetupRate, j.ScrapQuantity, j.ScrapCost,
		j.PackagingCost, j.SecondaryOpsCost, j.OverheadAllocated, j.ActualSellingPrice, j.Notes)
	if err != nil {
		return fmt.Errorf("update job costing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) InsertMaterialUsage(ctx context.Context, u MaterialUsage) (MaterialUsage, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO material_usage (production_order_id, material_name,
planned_kg, actual_kg, cost_per_kg, notes) VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id, created_at`,
		u.ProductionOrderID, u.MaterialName, u.PlannedKg, u.ActualKg, u.CostPerKg, u.Notes)
	if err := row.Scan(&u.ID, &u.CreatedAt); err != nil {
		return MaterialUsage{}, fmt.Errorf("insert material usage: %w", err)
	}
	return u, nil
}

func (t *txRepository) InsertMachineRate(ctx context.Context, r MachineRate) (MachineRate, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO machine_rates (machine_id, hourly_rate, setup_rate,
energy_rate_per_kwh, running_kw, overhead_rate_per_hour, effective_from)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
		r.MachineID, r.HourlyRate, r.SetupRate, r.EnergyRatePerKwh, r.RunningKw,
		r.OverheadRatePerHour, r.EffectiveFrom)
	if err := row.Scan(&r.ID, &r.CreatedAt); err != nil {
		return MachineRate{}, fmt.Errorf("insert machine rate: %w", err)
	}
	return r, nil
}

func (t *txRepository) InsertLabourRate(ctx context.Context, r LabourRate) (LabourRate, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO labour_rates (role, hourly_rate, overtime_multiplier,
effective_from) VALUES ($1,$2,$3,$4) RETURNING id, created_at`,
		r.Role, r.HourlyRate, r.OvertimeMultiplier, r.EffectiveFrom)
	if err := row.Scan(&r.ID, &r.CreatedAt); err != nil {
		return LabourRate{}, fmt.Errorf("insert labour rate: %w", err)
	}
	return r, nil
}

func scanQuote(row pgx.Row) (Quote, error) {
	var q Quote
	err := row.Scan(&q.ID, &q.QuoteNumber, &q.CustomerID, &q.ItemID, &q.Description,
		&q.Quantity, &q.AnnualVolume, &q.PartWeightG, &q.RunnerWeightG, &q.CycleTimeSeconds,
		&q.Cavities, &q.MaterialType, &q.MaterialCostPerKg, &q.MachineRatePerHour,
		&q.LabourRatePerHour, &q.SetupHours, &q.SecondaryOpsCost, &q.OverheadPercent,
		&q.PackagingCostPerPart, &q.TargetMarginPercent, &q.ToolingCost, &q.ToolingAmortizationQty,
		&q.MaterialCostPerPart, &q.CycleCostPerPart, &q.SetupCostPerPart,
		&q.OverheadCostPerPart, &q.TotalCostPerPart, &q.PricePerPart, &q.QuotedTotal,
		&q.ValidUntil, &q.Status, &q.SentAt, &q.SalesOrderID, &q.Notes, &q.InternalNotes,
		&q.CreatedBy, &q.CreatedAt, &q.UpdatedAt, &q.CustomerName)
	return q, err
}

func scanJobCosting(row pgx.Row) (JobCosting, error) {
	var j JobCosting
	err := row.Scan(&j.ID, &j.ProductionOrderID, &j.QuoteID, &j.QuotedCostPerPart,
		&j.QuotedTotalCost, &j.QuantityProduced, &j.ActualMaterialKg, &j.MaterialCostPerKg,
		&j.LabourHours, &j.LabourRate, &j.MachineHours, &j.MachineRate, &j.SetupHours,
		&j.SetupRate, &j.ScrapQuantity, &j.ScrapCost, &j.PackagingCost, &j.SecondaryOpsCost,
		&j.OverheadAllocated, &j.ActualSellingPrice, &j.Notes, &j.CreatedAt, &j.UpdatedAt)
	return j, err
}
