package delivery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const deliveryColumns = `d.id, d.delivery_number, d.sales_order_id, d.delivery_method, d.carrier,
d.tracking_number, d.driver_name, d.num_packages, d.total_weight_kg, d.dispatch_date,
d.status, d.signed_note_file, d.notes, d.created_by, d.created_at,
so.order_number, c.name`

const deliveryFrom = ` FROM deliveries d
JOIN sales_orders so ON so.id = d.sales_order_id
JOIN customers c ON c.id = so.customer_id`

// Repository persists deliveries in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository backed by pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository is the mutation surface available inside WithTx.
type TxRepository interface {
	GenerateNumber(ctx context.Context, now time.Time) (string, error)
	Insert(ctx context.Context, d Delivery) (Delivery, error)
	SetDelivered(ctx context.Context, id int64) (bool, error)
	SetSignedNote(ctx context.Context, id int64, filename string) error
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

// Get loads one delivery with its order and customer names.
func (r *Repository) Get(ctx context.Context, id int64) (Delivery, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+deliveryColumns+deliveryFrom+` WHERE d.id = $1`, id)
	d, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Delivery{}, ErrNotFound
	}
	return d, err
}

// List returns a filtered page of deliveries plus the total match count.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Delivery, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if f.SalesOrderID > 0 {
		args = append(args, f.SalesOrderID)
		where += ` AND d.sales_order_id = $` + strconv.Itoa(len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where += ` AND d.status = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+deliveryFrom+where, args...).Scan(&total); err != nil {
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
	query := `SELECT ` + deliveryColumns + deliveryFrom + where +
		` ORDER BY d.created_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	deliveries := []Delivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, 0, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, total, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// GenerateNumber allocates the next DEL-yymmdd-nnnn for the day.
func (t *txRepository) GenerateNumber(ctx context.Context, now time.Time) (string, error) {
	prefix := "DEL-" + now.Format("060102")
	var count int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM deliveries WHERE delivery_number LIKE $1`, prefix+"-%").Scan(&count)
	if err != nil {
		return "", fmt.Errorf("count day deliveries: %w", err)
	}
	return fmt.Sprintf("%s-%04d", prefix, count+1), nil
}

func (t *txRepository) Insert(ctx context.Context, d Delivery) (Delivery, error) {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO deliveries (delivery_number, sales_order_id, delivery_method, carrier,
			tracking_number, driver_name, num_packages, total_weight_kg, dispatch_date,
			status, signed_note_file, notes, created_by, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW())
		 RETURNING id, created_at`,
		d.DeliveryNumber, d.SalesOrderID, d.DeliveryMethod, d.Carrier,
		d.TrackingNumber, d.DriverName, d.NumPackages, d.TotalWeightKg, d.DispatchDate,
		d.Status, d.SignedNoteFile, d.Notes, d.CreatedBy,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return Delivery{}, fmt.Errorf("insert delivery: %w", err)
	}
	return d, nil
}

// SetDelivered moves a dispatched delivery to delivered; false means the
// row was missing or already delivered.
func (t *txRepository) SetDelivered(ctx context.Context, id int64) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE deliveries SET status = $2 WHERE id = $1 AND status = $3`,
		id, StatusDelivered, StatusDispatched)
	if err != nil {
		return false, fmt.Errorf("set delivery delivered: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txRepository) SetSignedNote(ctx context.Context, id int64, filename string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE deliveries SET signed_note_file = $2 WHERE id = $1`, id, filename)
	if err != nil {
		return fmt.Errorf("set signed note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDelivery(row pgx.Row) (Delivery, error) {
	var d Delivery
	err := row.Scan(&d.ID, &d.DeliveryNumber, &d.SalesOrderID, &d.DeliveryMethod, &d.Carrier,
		&d.TrackingNumber, &d.DriverName, &d.NumPackages, &d.TotalWeightKg, &d.DispatchDate,
		&d.Status, &d.SignedNoteFile, &d.Notes, &d.CreatedBy, &d.CreatedAt,
		&d.OrderNumber, &d.CustomerName)
	return d, err
}
