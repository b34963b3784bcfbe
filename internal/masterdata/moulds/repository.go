package moulds

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mouldworks/mouldworks/internal/masterdata/shared"
)

const mouldColumns = `id, mould_number, name, num_cavities, cycle_time_seconds, shot_weight_grams,
status, location_stored, last_maintenance_date, next_maintenance_date, maintenance_interval_shots,
total_shots, shots_since_maintenance, is_active, notes, created_at, updated_at`

const setupSheetColumns = `id, mould_id, item_id, version, is_current,
barrel_temp_zone1_c, barrel_temp_zone2_c, barrel_temp_zone3_c, barrel_temp_zone4_c, nozzle_temp_c, mould_temp_c,
injection_pressure_bar, injection_speed_mm_s, hold_pressure_bar, hold_time_seconds, cooling_time_seconds,
cycle_time_seconds, shot_weight_grams, cushion_mm, back_pressure_bar, screw_speed_rpm,
notes, approved_by, created_by, created_at`

// Repository abstracts mould and setup sheet persistence.
type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Mould, int, error)
	Get(ctx context.Context, id int64) (Mould, error)
	GetByNumber(ctx context.Context, number string) (Mould, error)
	Create(ctx context.Context, m Mould) (Mould, error)
	Update(ctx context.Context, id int64, m Mould) error
	SetStatus(ctx context.Context, id int64, status string) error
	AddShots(ctx context.Context, id int64, shots int64) error
	ResetMaintenance(ctx context.Context, id int64, performed time.Time, next *time.Time) error
	Delete(ctx context.Context, id int64) error

	LinkedItems(ctx context.Context, mouldID int64) ([]LinkedItem, error)
	SetLinkedItems(ctx context.Context, mouldID int64, itemIDs []int64) error

	CreateSetupSheet(ctx context.Context, sheet SetupSheet) (SetupSheet, error)
	ListSetupSheets(ctx context.Context, mouldID int64) ([]SetupSheet, error)
	CurrentSetupSheet(ctx context.Context, mouldID, itemID int64) (SetupSheet, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Mould, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (mould_number ILIKE $` + n + ` OR name ILIKE $` + n + `)`
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where += ` AND is_active = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM moulds`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filters.PageLimit(), filters.Offset())
	rows, err := r.db.Query(ctx, `SELECT `+mouldColumns+` FROM moulds`+where+
		` ORDER BY mould_number ASC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	moulds := []Mould{}
	for rows.Next() {
		m, err := scanMould(rows)
		if err != nil {
			return nil, 0, err
		}
		moulds = append(moulds, m)
	}
	return moulds, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Mould, error) {
	row := r.db.QueryRow(ctx, `SELECT `+mouldColumns+` FROM moulds WHERE id = $1`, id)
	m, err := scanMould(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Mould{}, shared.ErrNotFound
	}
	return m, err
}

func (r *repository) GetByNumber(ctx context.Context, number string) (Mould, error) {
	row := r.db.QueryRow(ctx, `SELECT `+mouldColumns+` FROM moulds WHERE UPPER(mould_number) = UPPER($1)`, number)
	m, err := scanMould(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Mould{}, shared.ErrNotFound
	}
	return m, err
}

func (r *repository) Create(ctx context.Context, m Mould) (Mould, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO moulds
(mould_number, name, num_cavities, cycle_time_seconds, shot_weight_grams, status, location_stored,
 last_maintenance_date, next_maintenance_date, maintenance_interval_shots, total_shots, shots_since_maintenance,
 is_active, notes, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW(),NOW())
RETURNING id, created_at, updated_at`,
		strings.ToUpper(m.MouldNumber), m.Name, m.NumCavities, m.CycleTimeSeconds, m.ShotWeightGrams,
		m.Status, m.LocationStored, m.LastMaintenanceDate, m.NextMaintenanceDate, m.MaintenanceIntervalShots,
		m.TotalShots, m.ShotsSinceMaintenance, m.IsActive, m.Notes).
		Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if isUniqueViolation(err) {
		return Mould{}, shared.ErrDuplicate
	}
	return m, err
}

func (r *repository) Update(ctx context.Context, id int64, m Mould) error {
	tag, err := r.db.Exec(ctx, `UPDATE moulds SET
mould_number=$2, name=$3, num_cavities=$4, cycle_time_seconds=$5, shot_weight_grams=$6,
location_stored=$7, next_maintenance_date=$8, maintenance_interval_shots=$9,
is_active=$10, notes=$11, updated_at=NOW()
WHERE id=$1`, id, strings.ToUpper(m.MouldNumber), m.Name, m.NumCavities, m.CycleTimeSeconds, m.ShotWeightGrams,
		m.LocationStored, m.NextMaintenanceDate, m.MaintenanceIntervalShots, m.IsActive, m.Notes)
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

func (r *repository) SetStatus(ctx context.Context, id int64, status string) error {
	tag, err := r.db.Exec(ctx, `UPDATE moulds SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AddShots bumps the lifetime and since-maintenance shot counters.
func (r *repository) AddShots(ctx context.Context, id int64, shots int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE moulds SET
total_shots = total_shots + $2,
shots_since_maintenance = shots_since_maintenance + $2,
updated_at = NOW()
WHERE id = $1`, id, shots)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) ResetMaintenance(ctx context.Context, id int64, performed time.Time, next *time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE moulds SET
last_maintenance_date = $2,
next_maintenance_date = $3,
shots_since_maintenance = 0,
updated_at = NOW()
WHERE id = $1`, id, performed, next)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE moulds SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) LinkedItems(ctx context.Context, mouldID int64) ([]LinkedItem, error) {
	rows, err := r.db.Query(ctx, `SELECT mi.item_id, i.sku, i.name
FROM mould_items mi
JOIN items i ON i.id = mi.item_id
WHERE mi.mould_id = $1
ORDER BY i.sku`, mouldID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []LinkedItem{}
	for rows.Next() {
		var li LinkedItem
		if err := rows.Scan(&li.ItemID, &li.SKU, &li.Name); err != nil {
			return nil, err
		}
		items = append(items, li)
	}
	return items, rows.Err()
}

func (r *repository) SetLinkedItems(ctx context.Context, mouldID int64, itemIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM mould_items WHERE mould_id = $1`, mouldID); err != nil {
		return err
	}
	for _, itemID := range itemIDs {
		if _, err := tx.Exec(ctx, `INSERT INTO mould_items (mould_id, item_id) VALUES ($1, $2)`, mouldID, itemID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// CreateSetupSheet inserts the next version for the mould and item pair and
// marks it current, clearing the previous current sheet in the same transaction.
func (r *repository) CreateSetupSheet(ctx context.Context, sheet SetupSheet) (SetupSheet, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return SetupSheet{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE setup_sheets SET is_current = FALSE WHERE mould_id = $1 AND item_id = $2`,
		sheet.MouldID, sheet.ItemID); err != nil {
		return SetupSheet{}, err
	}

	err = tx.QueryRow(ctx, `INSERT INTO setup_sheets
(mould_id, item_id, version, is_current,
 barrel_temp_zone1_c, barrel_temp_zone2_c, barrel_temp_zone3_c, barrel_temp_zone4_c, nozzle_temp_c, mould_temp_c,
 injection_pressure_bar, injection_speed_mm_s, hold_pressure_bar, hold_time_seconds, cooling_time_seconds,
 cycle_time_seconds, shot_weight_grams, cushion_mm, back_pressure_bar, screw_speed_rpm,
 notes, approved_by, created_by, created_at)
VALUES ($1,$2,
 (SELECT COALESCE(MAX(version),0)+1 FROM setup_sheets WHERE mould_id=$1 AND item_id=$2),
 TRUE,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,NOW())
RETURNING id, version, created_at`,
		sheet.MouldID, sheet.ItemID,
		sheet.BarrelTempZone1C, sheet.BarrelTempZone2C, sheet.BarrelTempZone3C, sheet.BarrelTempZone4C,
		sheet.NozzleTempC, sheet.MouldTempC,
		sheet.InjectionPressureBar, sheet.InjectionSpeedMmS, sheet.HoldPressureBar, sheet.HoldTimeSeconds,
		sheet.CoolingTimeSeconds, sheet.CycleTimeSeconds, sheet.ShotWeightGrams, sheet.CushionMm,
		sheet.BackPressureBar, sheet.ScrewSpeedRpm,
		sheet.Notes, sheet.ApprovedBy, sheet.CreatedBy).
		Scan(&sheet.ID, &sheet.Version, &sheet.CreatedAt)
	if err != nil {
		return SetupSheet{}, err
	}
	sheet.IsCurrent = true
	return sheet, tx.Commit(ctx)
}

func (r *repository) ListSetupSheets(ctx context.Context, mouldID int64) ([]SetupSheet, error) {
	rows, err := r.db.Query(ctx, `SELECT `+setupSheetColumns+` FROM setup_sheets
WHERE mould_id = $1 ORDER BY item_id, version DESC`, mouldID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sheets := []SetupSheet{}
	for rows.Next() {
		s, err := scanSetupSheet(rows)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, s)
	}
	return sheets, rows.Err()
}

func (r *repository) CurrentSetupSheet(ctx context.Context, mouldID, itemID int64) (SetupSheet, error) {
	row := r.db.QueryRow(ctx, `SELECT `+setupSheetColumns+` FROM setup_sheets
WHERE mould_id = $1 AND item_id = $2 AND is_current = TRUE`, mouldID, itemID)
	s, err := scanSetupSheet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return SetupSheet{}, shared.ErrNotFound
	}
	return s, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMould(row rowScanner) (Mould, error) {
	var m Mould
	err := row.Scan(&m.ID, &m.MouldNumber, &m.Name, &m.NumCavities, &m.CycleTimeSeconds, &m.ShotWeightGrams,
		&m.Status, &m.LocationStored, &m.LastMaintenanceDate, &m.NextMaintenanceDate, &m.MaintenanceIntervalShots,
		&m.TotalShots, &m.ShotsSinceMaintenance, &m.IsActive, &m.Notes, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func scanSetupSheet(row rowScanner) (SetupSheet, error) {
	var s SetupSheet
	err := row.Scan(&s.ID, &s.MouldID, &s.ItemID, &s.Version, &s.IsCurrent,
		&s.BarrelTempZone1C, &s.BarrelTempZone2C, &s.BarrelTempZone3C, &s.BarrelTempZone4C, &s.NozzleTempC, &s.MouldTempC,
		&s.InjectionPressureBar, &s.InjectionSpeedMmS, &s.HoldPressureBar, &s.HoldTimeSeconds, &s.CoolingTimeSeconds,
		&s.CycleTimeSeconds, &s.ShotWeightGrams, &s.CushionMm, &s.BackPressureBar, &s.ScrewSpeedRpm,
		&s.Notes, &s.ApprovedBy, &s.CreatedBy, &s.CreatedAt)
	return s, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
