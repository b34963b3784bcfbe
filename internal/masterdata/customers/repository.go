package customers

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mouldworks/mouldworks/internal/masterdata/shared"
)

const customerColumns = `id, customer_number, name, contact_name, email, phone,
billing_address, delivery_address, delivery_city, delivery_postcode,
credit_terms_days, is_jit, is_active, notes, created_at, updated_at`

// Repository abstracts customer persistence.
type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Customer, int, error)
	Get(ctx context.Context, id int64) (Customer, error)
	Search(ctx context.Context, term string, limit int) ([]Customer, error)
	Create(ctx context.Context, c Customer) (Customer, error)
	Update(ctx context.Context, id int64, c Customer) error
	Deactivate(ctx context.Context, id int64) error
	NextNumber(ctx context.Context) (string, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a Postgres-backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Customer, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (name ILIKE $` + n + ` OR customer_number ILIKE $` + n + ` OR contact_name ILIKE $` + n + `)`
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where += ` AND is_active = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM customers`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filters.PageLimit(), filters.Offset())
	rows, err := r.db.Query(ctx, `SELECT `+customerColumns+` FROM customers`+where+
		` ORDER BY name ASC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := []Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, c)
	}
	return list, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Customer, error) {
	row := r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	c, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, shared.ErrNotFound
	}
	return c, err
}

func (r *repository) Search(ctx context.Context, term string, limit int) ([]Customer, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx, `SELECT `+customerColumns+` FROM customers
WHERE is_active AND (name ILIKE $1 OR customer_number ILIKE $1)
ORDER BY name ASC LIMIT $2`, "%"+term+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (r *repository) Create(ctx context.Context, c Customer) (Customer, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO customers
(customer_number, name, contact_name, email, phone, billing_address, delivery_address, delivery_city, delivery_postcode, credit_terms_days, is_jit, is_active, notes, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW(),NOW())
RETURNING id, created_at, updated_at`,
		c.CustomerNumber, c.Name, c.ContactName, c.Email, c.Phone,
		c.BillingAddress, c.DeliveryAddress, c.DeliveryCity, c.DeliveryPostcode,
		c.CreditTermsDays, c.IsJIT, c.IsActive, c.Notes).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return Customer{}, shared.ErrDuplicate
	}
	return c, err
}

func (r *repository) Update(ctx context.Context, id int64, c Customer) error {
	tag, err := r.db.Exec(ctx, `UPDATE customers SET
name=$2, contact_name=$3, email=$4, phone=$5, billing_address=$6, delivery_address=$7,
delivery_city=$8, delivery_postcode=$9, credit_terms_days=$10, is_jit=$11, is_active=$12, notes=$13, updated_at=NOW()
WHERE id=$1`, id, c.Name, c.ContactName, c.Email, c.Phone, c.BillingAddress, c.DeliveryAddress,
		c.DeliveryCity, c.DeliveryPostcode, c.CreditTermsDays, c.IsJIT, c.IsActive, c.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE customers SET is_active=false, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// NextNumber allocates the next CUST%05d customer number.
func (r *repository) NextNumber(ctx context.Context) (string, error) {
	var max int
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(SUBSTRING(customer_number FROM 5)::int), 0) FROM customers WHERE customer_number LIKE 'CUST%'`).Scan(&max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CUST%05d", max+1), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.CustomerNumber, &c.Name, &c.ContactName, &c.Email, &c.Phone,
		&c.BillingAddress, &c.DeliveryAddress, &c.DeliveryCity, &c.DeliveryPostcode,
		&c.CreditTermsDays, &c.IsJIT, &c.IsActive, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
