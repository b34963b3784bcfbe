package materials

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mouldworks/mouldworks/internal/masterdata/shared"
)

const materialColumns = `id, code, name, material_type, grade, manufacturer, supplier_id, supplier_code,
mfi, density, colour, cost_per_kg, last_price_update, current_stock_kg, min_stock_kg,
barrel_temp_min_c, barrel_temp_max_c, mould_temp_min_c, mould_temp_max_c, drying_temp_c, drying_time_hours,
is_active, notes, created_at, updated_at`

const masterbatchColumns = `id, code, name, colour, colour_code, supplier_id, compatible_materials,
typical_ratio_percent, min_ratio_percent, max_ratio_percent, cost_per_kg, current_stock_kg,
is_active, created_at, updated_at`

// Repository abstracts material persistence.
type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Material, int, error)
	Get(ctx context.Context, id int64) (Material, error)
	GetByCode(ctx context.Context, code string) (Material, error)
	Create(ctx context.Context, m Material) (Material, error)
	Update(ctx context.Context, id int64, m Material) error
	UpdatePrice(ctx context.Context, id int64, cost decimal.Decimal, effective time.Time, reason string, actorID int64) error
	PriceHistory(ctx context.Context, materialID int64) ([]PriceHistory, error)

	ListMasterbatches(ctx context.Context, filters shared.ListFilters) ([]Masterbatch, int, error)
	GetMasterbatch(ctx context.Context, id int64) (Masterbatch, error)
	CreateMasterbatch(ctx context.Context, mb Masterbatch) (Masterbatch, error)
	UpdateMasterbatch(ctx context.Context, id int64, mb Masterbatch) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a Postgres-backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Material, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (code ILIKE $` + n + ` OR name ILIKE $` + n + ` OR material_type ILIKE $` + n + ` OR grade ILIKE $` + n + `)`
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where += ` AND is_active = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM materials`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filters.PageLimit(), filters.Offset())
	rows, err := r.db.Query(ctx, `SELECT `+materialColumns+` FROM materials`+where+
		` ORDER BY code ASC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := []Material{}
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, m)
	}
	return list, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Material, error) {
	row := r.db.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE id = $1`, id)
	m, err := scanMaterial(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Material{}, shared.ErrNotFound
	}
	return m, err
}

func (r *repository) GetByCode(ctx context.Context, code string) (Material, error) {
	row := r.db.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE UPPER(code) = UPPER($1)`, code)
	m, err := scanMaterial(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Material{}, shared.ErrNotFound
	}
	return m, err
}

func (r *repository) Create(ctx context.Context, m Material) (Material, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO materials
(code, name, material_type, grade, manufacturer, supplier_id, supplier_code, mfi, density, colour,
 cost_per_kg, current_stock_kg, min_stock_kg,
 barrel_temp_min_c, barrel_temp_max_c, mould_temp_min_c, mould_temp_max_c, drying_temp_c, drying_time_hours,
 is_active, notes, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,NOW(),NOW())
RETURNING id, created_at, updated_at`,
		strings.ToUpper(m.Code), m.Name, m.MaterialType, m.Grade, m.Manufacturer, m.SupplierID, m.SupplierCode,
		m.MFI, m.Density, m.Colour, m.CostPerKg, m.CurrentStockKg, m.MinStockKg,
		m.BarrelTempMinC, m.BarrelTempMaxC, m.MouldTempMinC, m.MouldTempMaxC, m.DryingTempC, m.DryingTimeH,
		m.IsActive, m.Notes).
		Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if isUniqueViolation(err) {
		return Material{}, shared.ErrDuplicate
	}
	return m, err
}

func (r *repository) Update(ctx context.Context, id int64, m Material) error {
	tag, err := r.db.Exec(ctx, `UPDATE materials SET
code=$2, name=$3, material_type=$4, grade=$5, manufacturer=$6, supplier_id=$7, supplier_code=$8,
mfi=$9, density=$10, colour=$11, current_stock_kg=$12, min_stock_kg=$13,
barrel_temp_min_c=$14, barrel_temp_max_c=$15, mould_temp_min_c=$16, mould_temp_max_c=$17,
drying_temp_c=$18, drying_time_hours=$19, is_active=$20, notes=$21, updated_at=NOW()
WHERE id=$1`, id, strings.ToUpper(m.Code), m.Name, m.MaterialType, m.Grade, m.Manufacturer, m.SupplierID, m.SupplierCode,
		m.MFI, m.Density, m.Colour, m.CurrentStockKg, m.MinStockKg,
		m.BarrelTempMinC, m.BarrelTempMaxC, m.MouldTempMinC, m.MouldTempMaxC, m.DryingTempC, m.DryingTimeH,
		m.IsActive, m.Notes)
	if isUniqueViolation(err) {
		return shared.ErrDuplicate
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdatePrice writes the new cost and appends a price history row atomically.
func (r *repository) UpdatePrice(ctx context.Context, id int64, cost decimal.Decimal, effective time.Time, reason string, actorID int64) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `UPDATE materials SET cost_per_kg=$2, last_price_update=$3, updated_at=NOW() WHERE id=$1`, id, cost, effective)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `INSERT INTO material_price_history (material_id, cost_per_kg, effective_date, reason, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,NOW())`, id, cost, effective, reason, actorID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *repository) PriceHistory(ctx context.Context, materialID int64) ([]PriceHistory, error) {
	rows, err := r.db.Query(ctx, `SELECT id, material_id, cost_per_kg, effective_date, reason, created_by, created_at
FROM material_price_history WHERE material_id=$1 ORDER BY effective_date DESC, id DESC`, materialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []PriceHistory{}
	for rows.Next() {
		var h PriceHistory
		if err := rows.Scan(&h.ID, &h.MaterialID, &h.CostPerKg, &h.EffectiveDate, &h.Reason, &h.CreatedBy, &h.CreatedAt); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

func (r *repository) ListMasterbatches(ctx context.Context, filters shared.ListFilters) ([]Masterbatch, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (code ILIKE $` + n + ` OR name ILIKE $` + n + ` OR colour ILIKE $` + n + `)`
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where += ` AND is_active = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM masterbatches`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filters.PageLimit(), filters.Offset())
	rows, err := r.db.Query(ctx, `SELECT `+masterbatchColumns+` FROM masterbatches`+where+
		` ORDER BY code ASC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := []Masterbatch{}
	for rows.Next() {
		mb, err := scanMasterbatch(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, mb)
	}
	return list, total, rows.Err()
}

func (r *repository) GetMasterbatch(ctx context.Context, id int64) (Masterbatch, error) {
	row := r.db.QueryRow(ctx, `SELECT `+masterbatchColumns+` FROM masterbatches WHERE id = $1`, id)
	mb, err := scanMasterbatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Masterbatch{}, shared.ErrNotFound
	}
	return mb, err
}

func (r *repository) CreateMasterbatch(ctx context.Context, mb Masterbatch) (Masterbatch, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO masterbatches
(code, name, colour, colour_code, supplier_id, compatible_materials, typical_ratio_percent, min_ratio_percent, max_ratio_percent, cost_per_kg, current_stock_kg, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW(),NOW())
RETURNING id, created_at, updated_at`,
		strings.ToUpper(mb.Code), mb.Name, mb.Colour, mb.ColourCode, mb.SupplierID, mb.CompatibleMaterials,
		mb.TypicalRatioPercent, mb.MinRatioPercent, mb.MaxRatioPercent, mb.CostPerKg, mb.CurrentStockKg, mb.IsActive).
		Scan(&mb.ID, &mb.CreatedAt, &mb.UpdatedAt)
	if isUniqueViolation(err) {
		return Masterbatch{}, shared.ErrDuplicate
	}
	return mb, err
}

func (r *repository) UpdateMasterbatch(ctx context.Context, id int64, mb Masterbatch) error {
	tag, err := r.db.Exec(ctx, `UPDATE masterbatches SET
code=$2, name=$3, colour=$4, colour_code=$5, supplier_id=$6, compatible_materials=$7,
typical_ratio_percent=$8, min_ratio_percent=$9, max_ratio_percent=$10, cost_per_kg=$11,
current_stock_kg=$12, is_active=$13, updated_at=NOW()
WHERE id=$1`, id, strings.ToUpper(mb.Code), mb.Name, mb.Colour, mb.ColourCode, mb.SupplierID, mb.CompatibleMaterials,
		mb.TypicalRatioPercent, mb.MinRatioPercent, mb.MaxRatioPercent, mb.CostPerKg, mb.CurrentStockKg, mb.IsActive)
	if isUniqueViolation(err) {
		return shared.ErrDuplicate
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMaterial(row rowScanner) (Material, error) {
	var m Material
	err := row.Scan(&m.ID, &m.Code, &m.Name, &m.MaterialType, &m.Grade, &m.Manufacturer, &m.SupplierID, &m.SupplierCode,
		&m.MFI, &m.Density, &m.Colour, &m.CostPerKg, &m.LastPriceUpdate, &m.CurrentStockKg, &m.MinStockKg,
		&m.BarrelTempMinC, &m.BarrelTempMaxC, &m.MouldTempMinC, &m.MouldTempMaxC, &m.DryingTempC, &m.DryingTimeH,
		&m.IsActive, &m.Notes, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func scanMasterbatch(row rowScanner) (Masterbatch, error) {
	var mb Masterbatch
	err := row.Scan(&mb.ID, &mb.Code, &mb.Name, &mb.Colour, &mb.ColourCode, &mb.SupplierID, &mb.CompatibleMaterials,
		&mb.TypicalRatioPercent, &mb.MinRatioPercent, &mb.MaxRatioPercent, &mb.CostPerKg, &mb.CurrentStockKg,
		&mb.IsActive, &mb.CreatedAt, &mb.UpdatedAt)
	return mb, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
