package machines

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mouldworks/mouldworks/internal/masterdata/shared"
)

const machineColumns = `id, code, name, manufacturer, model, tonnage, year, status,
current_mould_id, display_order, is_active, notes, created_at, updated_at`

// Repository abstracts machine persistence.
type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Machine, int, error)
	ListActive(ctx context.Context) ([]Machine, error)
	Get(ctx context.Context, id int64) (Machine, error)
	Create(ctx context.Context, m Machine) (Machine, error)
	Update(ctx context.Context, id int64, m Machine) error
	SetStatus(ctx context.Context, id int64, status string, currentMouldID *int64) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Machine, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (code ILIKE $` + n + ` OR name ILIKE $` + n + ` OR model ILIKE $` + n + `)`
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where += ` AND is_active = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM machines`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filters.PageLimit(), filters.Offset())
	rows, err := r.db.Query(ctx, `SELECT `+machineColumns+` FROM machines`+where+
		` ORDER BY display_order ASC, code ASC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	machines := []Machine{}
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, 0, err
		}
		machines = append(machines, m)
	}
	return machines, total, rows.Err()
}

// ListActive returns active machines in board order for the week grid.
func (r *repository) ListActive(ctx context.Context) ([]Machine, error) {
	rows, err := r.db.Query(ctx, `SELECT `+machineColumns+` FROM machines
WHERE is_active = TRUE ORDER BY display_order ASC, code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	machines := []Machine{}
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, err
		}
		machines = append(machines, m)
	}
	return machines, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Machine, error) {
	row := r.db.QueryRow(ctx, `SELECT `+machineColumns+` FROM machines WHERE id = $1`, id)
	m, err := scanMachine(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Machine{}, shared.ErrNotFound
	}
	return m, err
}

func (r *repository) Create(ctx context.Context, m Machine) (Machine, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO machines
(code, name, manufacturer, model, tonnage, year, status, display_order, is_active, notes, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW())
RETURNING id, created_at, updated_at`,
		strings.ToUpper(m.Code), m.Name, m.Manufacturer, m.Model, m.Tonnage, m.Year, m.Status,
		m.DisplayOrder, m.IsActive, m.Notes).
		Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if isUniqueViolation(err) {
		return Machine{}, shared.ErrDuplicate
	}
	return m, err
}

func (r *repository) Update(ctx context.Context, id int64, m Machine) error {
	tag, err := r.db.Exec(ctx, `UPDATE machines SET
code=$2, name=$3, manufacturer=$4, model=$5, tonnage=$6, year=$7,
display_order=$8, is_active=$9, notes=$10, updated_at=NOW()
WHERE id=$1`, id, strings.ToUpper(m.Code), m.Name, m.Manufacturer, m.Model, m.Tonnage, m.Year,
		m.DisplayOrder, m.IsActive, m.Notes)
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

// SetStatus updates the run state and the mould currently loaded.
func (r *repository) SetStatus(ctx context.Context, id int64, status string, currentMouldID *int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE machines SET status=$2, current_mould_id=$3, updated_at=NOW() WHERE id=$1`,
		id, status, currentMouldID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE machines SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
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

func scanMachine(row rowScanner) (Machine, error) {
	var m Machine
	err := row.Scan(&m.ID, &m.Code, &m.Name, &m.Manufacturer, &m.Model, &m.Tonnage, &m.Year, &m.Status,
		&m.CurrentMouldID, &m.DisplayOrder, &m.IsActive, &m.Notes, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
