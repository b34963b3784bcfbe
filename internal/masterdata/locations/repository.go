package locations

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

// Repository abstracts location persistence.
type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Location, int, error)
	Get(ctx context.Context, id int64) (Location, error)
	GetByCode(ctx context.Context, code string) (Location, error)
	Create(ctx context.Context, loc Location) (Location, error)
	Update(ctx context.Context, id int64, loc Location) error
	Delete(ctx context.Context, id int64) error
	Contents(ctx context.Context, id int64) ([]Contents, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a Postgres-backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Location, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (code ILIKE $` + n + ` OR name ILIKE $` + n + ` OR zone ILIKE $` + n + `)`
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where += ` AND is_active = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM locations`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := ` ORDER BY code ASC`
	if filters.SortBy == "name" {
		order = ` ORDER BY name ASC`
		if filters.SortDir == shared.SortDesc {
			order = ` ORDER BY name DESC`
		}
	}

	args = append(args, filters.PageLimit(), filters.Offset())
	query := `SELECT id, code, name, zone, location_type, max_capacity, is_active, created_at, updated_at FROM locations` +
		where + order + ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := []Location{}
	for rows.Next() {
		var loc Location
		if err := rows.Scan(&loc.ID, &loc.Code, &loc.Name, &loc.Zone, &loc.LocationType, &loc.MaxCapacity, &loc.IsActive, &loc.CreatedAt, &loc.UpdatedAt); err != nil {
			return nil, 0, err
		}
		list = append(list, loc)
	}
	return list, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Location, error) {
	var loc Location
	err := r.db.QueryRow(ctx, `SELECT id, code, name, zone, location_type, max_capacity, is_active, created_at, updated_at
FROM locations WHERE id = $1`, id).
		Scan(&loc.ID, &loc.Code, &loc.Name, &loc.Zone, &loc.LocationType, &loc.MaxCapacity, &loc.IsActive, &loc.CreatedAt, &loc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Location{}, shared.ErrNotFound
	}
	return loc, err
}

func (r *repository) GetByCode(ctx context.Context, code string) (Location, error) {
	var loc Location
	err := r.db.QueryRow(ctx, `SELECT id, code, name, zone, location_type, max_capacity, is_active, created_at, updated_at
FROM locations WHERE UPPER(code) = UPPER($1)`, code).
		Scan(&loc.ID, &loc.Code, &loc.Name, &loc.Zone, &loc.LocationType, &loc.MaxCapacity, &loc.IsActive, &loc.CreatedAt, &loc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Location{}, shared.ErrNotFound
	}
	return loc, err
}

func (r *repository) Create(ctx context.Context, loc Location) (Location, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO locations (code, name, zone, location_type, max_capacity, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW()) RETURNING id, created_at, updated_at`,
		strings.ToUpper(loc.Code), loc.Name, loc.Zone, loc.LocationType, loc.MaxCapacity, loc.IsActive).
		Scan(&loc.ID, &loc.CreatedAt, &loc.UpdatedAt)
	if isUniqueViolation(err) {
		return Location{}, shared.ErrDuplicate
	}
	return loc, err
}

func (r *repository) Update(ctx context.Context, id int64, loc Location) error {
	tag, err := r.db.Exec(ctx, `UPDATE locations SET code=$2, name=$3, zone=$4, location_type=$5, max_capacity=$6, is_active=$7, updated_at=NOW()
WHERE id=$1`, id, strings.ToUpper(loc.Code), loc.Name, loc.Zone, loc.LocationType, loc.MaxCapacity, loc.IsActive)
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

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE locations SET is_active=false, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Contents(ctx context.Context, id int64) ([]Contents, error) {
	rows, err := r.db.Query(ctx, `SELECT i.id, i.sku, i.name, sl.quantity, COALESCE(sl.batch_number, '')
FROM stock_levels sl
JOIN items i ON i.id = sl.item_id
WHERE sl.location_id = $1 AND sl.quantity > 0
ORDER BY i.sku ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contents := []Contents{}
	for rows.Next() {
		var c Contents
		if err := rows.Scan(&c.ItemID, &c.SKU, &c.ItemName, &c.Quantity, &c.Batch); err != nil {
			return nil, err
		}
		contents = append(contents, c)
	}
	return contents, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
