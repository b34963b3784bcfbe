package suppliers

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

const supplierColumns = `id, code, name, contact_name, email, phone, address, payment_terms,
lead_time_days, minimum_order_kg, is_active, notes, created_at, updated_at`

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error)
	Get(ctx context.Context, id int64) (Supplier, error)
	Create(ctx context.Context, supplier Supplier) (Supplier, error)
	Update(ctx context.Context, id int64, supplier Supplier) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (code ILIKE $` + n + ` OR name ILIKE $` + n + ` OR contact_name ILIKE $` + n + `)`
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where += ` AND is_active = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM suppliers`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filters.PageLimit(), filters.Offset())
	rows, err := r.db.Query(ctx, `SELECT `+supplierColumns+` FROM suppliers`+where+
		` ORDER BY `+sortOrder(filters.SortBy, filters.SortDir)+
		` LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	suppliers := []Supplier{}
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, 0, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Supplier, error) {
	row := r.db.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id)
	s, err := scanSupplier(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, shared.ErrNotFound
	}
	return s, err
}

func (r *repository) Create(ctx context.Context, supplier Supplier) (Supplier, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO suppliers
(code, name, contact_name, email, phone, address, payment_terms, lead_time_days, minimum_order_kg, is_active, notes, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW(),NOW())
RETURNING id, created_at, updated_at`,
		strings.ToUpper(supplier.Code), supplier.Name, supplier.ContactName, supplier.Email, supplier.Phone,
		supplier.Address, supplier.PaymentTerms, supplier.LeadTimeDays, supplier.MinimumOrderKg,
		supplier.IsActive, supplier.Notes).
		Scan(&supplier.ID, &supplier.CreatedAt, &supplier.UpdatedAt)
	if isUniqueViolation(err) {
		return Supplier{}, shared.ErrDuplicate
	}
	return supplier, err
}

func (r *repository) Update(ctx context.Context, id int64, supplier Supplier) error {
	tag, err := r.db.Exec(ctx, `UPDATE suppliers SET
code=$2, name=$3, contact_name=$4, email=$5, phone=$6, address=$7, payment_terms=$8,
lead_time_days=$9, minimum_order_kg=$10, is_active=$11, notes=$12, updated_at=NOW()
WHERE id=$1`, id, strings.ToUpper(supplier.Code), supplier.Name, supplier.ContactName, supplier.Email,
		supplier.Phone, supplier.Address, supplier.PaymentTerms, supplier.LeadTimeDays, supplier.MinimumOrderKg,
		supplier.IsActive, supplier.Notes)
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

// Delete soft-disables the supplier; material rows keep their supplier_id.
func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE suppliers SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
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

func scanSupplier(row rowScanner) (Supplier, error) {
	var s Supplier
	err := row.Scan(&s.ID, &s.Code, &s.Name, &s.ContactName, &s.Email, &s.Phone, &s.Address, &s.PaymentTerms,
		&s.LeadTimeDays, &s.MinimumOrderKg, &s.IsActive, &s.Notes, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == "desc" {
		dir = "DESC"
	}
	switch sortBy {
	case "code":
		return "code " + dir
	case "lead_time_days":
		return "lead_time_days " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return "name " + dir
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
