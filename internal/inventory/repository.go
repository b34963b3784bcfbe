package inventory

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const itemColumns = `i.id, i.sku, i.name, i.description, i.barcode, i.category, i.item_type, i.unit_of_measure,
i.unit_cost, i.selling_price, i.reorder_point, i.min_stock_level, i.max_stock_level,
i.part_weight_grams, i.runner_weight_grams, i.cavities, i.ideal_cycle_time, i.setup_time_hours,
i.default_mould_id, i.material_id, i.masterbatch_id, i.masterbatch_ratio_percent, i.regrind_percent,
i.material_cost_per_kg, i.target_machine_rate, i.target_margin_percent,
i.is_active, i.created_at, i.updated_at, COALESCE(s.total, 0)`

const itemFrom = ` FROM items i
LEFT JOIN (SELECT item_id, SUM(quantity) AS total FROM stock_levels GROUP BY item_id) s ON s.item_id = i.id`

const levelColumns = `id, item_id, location_id, quantity, allocated_quantity, batch_number, last_count_date, updated_at`

const movementColumns = `id, item_id, movement_type, quantity, from_location_id, to_location_id,
reference, batch_number, notes, user_id, created_at`

// Repository persists items, stock levels and the movement ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by stock mutations.
type TxRepository interface {
	GetStockLevelForUpdate(ctx context.Context, itemID, locationID int64) (StockLevel, error)
	ListStockLevelsForUpdate(ctx context.Context, itemID int64) ([]StockLevel, error)
	UpsertStockLevel(ctx context.Context, level StockLevel) error
	InsertMovement(ctx context.Context, m StockMovement) (int64, error)
	MarkItemDeleted(ctx context.Context, id int64, newSKU string) error
}

type txRepository struct {
	tx pgx.Tx
}

// ErrStockLevelNotFound indicates a missing stock level row.
var ErrStockLevelNotFound = errors.New("inventory: stock level not found")

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) CreateItem(ctx context.Context, item Item) (Item, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO items (sku, name, description, barcode, category, item_type, unit_of_measure,
unit_cost, selling_price, reorder_point, min_stock_level, max_stock_level,
part_weight_grams, runner_weight_grams, cavities, ideal_cycle_time, setup_time_hours,
default_mould_id, material_id, masterbatch_id, masterbatch_ratio_percent, regrind_percent,
material_cost_per_kg, target_machine_rate, target_margin_percent, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,NOW(),NOW())
RETURNING id, created_at, updated_at`,
		item.SKU, item.Name, item.Description, item.Barcode, item.Category, item.ItemType, item.UnitOfMeasure,
		item.UnitCost, item.SellingPrice, item.ReorderPoint, item.MinStockLevel, item.MaxStockLevel,
		item.PartWeightGrams, item.RunnerWeightGrams, item.Cavities, item.IdealCycleTime, item.SetupTimeHours,
		item.DefaultMouldID, item.MaterialID, item.MasterbatchID, item.MasterbatchRatioPct, item.RegrindPercent,
		item.MaterialCostPerKg, item.TargetMachineRate, item.TargetMarginPercent, item.IsActive).
		Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Item{}, ErrDuplicateSKU
		}
		return Item{}, err
	}
	return item, nil
}

func (r *Repository) GetItem(ctx context.Context, id int64) (Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+itemFrom+` WHERE i.id = $1`, id)
	return scanItem(row)
}

func (r *Repository) GetItemBySKU(ctx context.Context, sku string) (Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+itemFrom+` WHERE UPPER(i.sku) = UPPER($1)`, sku)
	return scanItem(row)
}

func (r *Repository) GetItemByBarcode(ctx context.Context, barcode string) (Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+itemFrom+` WHERE i.barcode = $1 AND i.barcode <> ''`, barcode)
	return scanItem(row)
}

func (r *Repository) UpdateItem(ctx context.Context, id int64, item Item) error {
	ct, err := r.pool.Exec(ctx, `UPDATE items SET sku=$2, name=$3, description=$4, barcode=$5, category=$6, item_type=$7,
unit_of_measure=$8, unit_cost=$9, selling_price=$10, reorder_point=$11, min_stock_level=$12, max_stock_level=$13,
part_weight_grams=$14, runner_weight_grams=$15, cavities=$16, ideal_cycle_time=$17, setup_time_hours=$18,
default_mould_id=$19, material_id=$20, masterbatch_id=$21, masterbatch_ratio_percent=$22, regrind_percent=$23,
material_cost_per_kg=$24, target_machine_rate=$25, target_margin_percent=$26, is_active=$27, updated_at=NOW()
WHERE id=$1`,
		id, item.SKU, item.Name, item.Description, item.Barcode, item.Category, item.ItemType,
		item.UnitOfMeasure, item.UnitCost, item.SellingPrice, item.ReorderPoint, item.MinStockLevel, item.MaxStockLevel,
		item.PartWeightGrams, item.RunnerWeightGrams, item.Cavities, item.IdealCycleTime, item.SetupTimeHours,
		item.DefaultMouldID, item.MaterialID, item.MasterbatchID, item.MasterbatchRatioPct, item.RegrindPercent,
		item.MaterialCostPerKg, item.TargetMachineRate, item.TargetMarginPercent, item.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSKU
		}
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) ListItems(ctx context.Context, filter ItemFilter) ([]Item, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (i.sku ILIKE $` + n + ` OR i.name ILIKE $` + n + ` OR i.barcode ILIKE $` + n + `)`
	}
	if filter.ItemType != "" {
		args = append(args, filter.ItemType)
		where += ` AND i.item_type = $` + strconv.Itoa(len(args))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where += ` AND i.category = $` + strconv.Itoa(len(args))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		where += ` AND i.is_active = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items i`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+itemFrom+where+
		` ORDER BY i.sku ASC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// SearchItems backs the scanner and quick-pick boxes: active items only,
// matched on sku, name or barcode, capped at 20 rows.
func (r *Repository) SearchItems(ctx context.Context, query string) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+itemFrom+
		` WHERE i.is_active AND (i.sku ILIKE $1 OR i.name ILIKE $1 OR i.barcode ILIKE $1) ORDER BY i.sku ASC LIMIT 20`,
		"%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// LowStockItems returns active items at or below their reorder point, or
// their minimum stock level when no reorder point is set.
func (r *Repository) LowStockItems(ctx context.Context) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+itemFrom+` WHERE i.is_active AND (
(i.reorder_point > 0 AND COALESCE(s.total, 0) <= i.reorder_point)
OR (i.reorder_point <= 0 AND i.min_stock_level > 0 AND COALESCE(s.total, 0) <= i.min_stock_level))
ORDER BY i.sku ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *Repository) StockLevels(ctx context.Context, itemID int64) ([]StockLevel, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.item_id, s.location_id, s.quantity, s.allocated_quantity,
s.batch_number, s.last_count_date, s.updated_at, l.code, l.name
FROM stock_levels s
JOIN locations l ON l.id = s.location_id
WHERE s.item_id = $1
ORDER BY l.code ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	levels := []StockLevel{}
	for rows.Next() {
		var level StockLevel
		if err := rows.Scan(&level.ID, &level.ItemID, &level.LocationID, &level.Quantity, &level.AllocatedQuantity,
			&level.BatchNumber, &level.LastCountDate, &level.UpdatedAt, &level.LocationCode, &level.LocationName); err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return levels, nil
}

func (r *Repository) TotalQuantity(ctx context.Context, itemID int64) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM stock_levels WHERE item_id = $1`, itemID).Scan(&total)
	return total, err
}

func (r *Repository) Movements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.ItemID != 0 {
		args = append(args, filter.ItemID)
		where += ` AND item_id = $` + strconv.Itoa(len(args))
	}
	if filter.MovementType != "" {
		args = append(args, string(filter.MovementType))
		where += ` AND movement_type = $` + strconv.Itoa(len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where += ` AND created_at <= $` + strconv.Itoa(len(args))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)
	rows, err := r.pool.Query(ctx, `SELECT `+movementColumns+` FROM stock_movements`+where+
		` ORDER BY created_at DESC, id DESC LIMIT $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []StockMovement{}
	for rows.Next() {
		var m StockMovement
		if err := rows.Scan(&m.ID, &m.ItemID, &m.MovementType, &m.Quantity, &m.FromLocationID, &m.ToLocationID,
			&m.Reference, &m.BatchNumber, &m.Notes, &m.UserID, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (r *txRepository) GetStockLevelForUpdate(ctx context.Context, itemID, locationID int64) (StockLevel, error) {
	var level StockLevel
	err := r.tx.QueryRow(ctx, `SELECT `+levelColumns+` FROM stock_levels WHERE item_id=$1 AND location_id=$2 FOR UPDATE`,
		itemID, locationID).
		Scan(&level.ID, &level.ItemID, &level.LocationID, &level.Quantity, &level.AllocatedQuantity,
			&level.BatchNumber, &level.LastCountDate, &level.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockLevel{ItemID: itemID, LocationID: locationID}, ErrStockLevelNotFound
		}
		return StockLevel{}, err
	}
	return level, nil
}

func (r *txRepository) ListStockLevelsForUpdate(ctx context.Context, itemID int64) ([]StockLevel, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+levelColumns+` FROM stock_levels WHERE item_id=$1 ORDER BY location_id FOR UPDATE`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	levels := []StockLevel{}
	for rows.Next() {
		var level StockLevel
		if err := rows.Scan(&level.ID, &level.ItemID, &level.LocationID, &level.Quantity, &level.AllocatedQuantity,
			&level.BatchNumber, &level.LastCountDate, &level.UpdatedAt); err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return levels, nil
}

func (r *txRepository) UpsertStockLevel(ctx context.Context, level StockLevel) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_levels (item_id, location_id, quantity, allocated_quantity, batch_number, last_count_date, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW())
ON CONFLICT (item_id, location_id) DO UPDATE SET quantity=EXCLUDED.quantity, allocated_quantity=EXCLUDED.allocated_quantity,
batch_number=EXCLUDED.batch_number, last_count_date=EXCLUDED.last_count_date, updated_at=NOW()`,
		level.ItemID, level.LocationID, level.Quantity, level.AllocatedQuantity, level.BatchNumber, level.LastCountDate)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, m StockMovement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (item_id, movement_type, quantity, from_location_id, to_location_id,
reference, batch_number, notes, user_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW()) RETURNING id`,
		m.ItemID, string(m.MovementType), m.Quantity, m.FromLocationID, m.ToLocationID,
		m.Reference, m.BatchNumber, m.Notes, nullInt(m.UserID)).Scan(&id)
	return id, err
}

func (r *txRepository) MarkItemDeleted(ctx context.Context, id int64, newSKU string) error {
	ct, err := r.tx.Exec(ctx, `UPDATE items SET sku=$2, is_active=FALSE, updated_at=NOW() WHERE id=$1`, id, newSKU)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.SKU, &item.Name, &item.Description, &item.Barcode, &item.Category,
		&item.ItemType, &item.UnitOfMeasure, &item.UnitCost, &item.SellingPrice,
		&item.ReorderPoint, &item.MinStockLevel, &item.MaxStockLevel,
		&item.PartWeightGrams, &item.RunnerWeightGrams, &item.Cavities, &item.IdealCycleTime, &item.SetupTimeHours,
		&item.DefaultMouldID, &item.MaterialID, &item.MasterbatchID, &item.MasterbatchRatioPct, &item.RegrindPercent,
		&item.MaterialCostPerKg, &item.TargetMachineRate, &item.TargetMarginPercent,
		&item.IsActive, &item.CreatedAt, &item.UpdatedAt, &item.TotalStock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
