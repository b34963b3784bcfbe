package sales

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const orderColumns = `so.id, so.order_number, so.customer_id, so.customer_po, so.order_date,
so.required_date, so.status, so.delivery_name, so.delivery_address, so.delivery_city,
so.delivery_postcode, so.delivery_method, so.shipping_cost, so.tax_rate_percent,
so.subtotal, so.tax_amount, so.total_amount, so.notes, so.internal_notes,
so.created_by, so.created_at, so.updated_at, c.name`

const orderFrom = ` FROM sales_orders so
JOIN customers c ON c.id = so.customer_id`

const lineColumns = `l.id, l.sales_order_id, l.line_number, l.item_id, l.is_custom_item,
l.custom_sku, l.custom_description, l.quantity_ordered, l.quantity_allocated,
l.quantity_shipped, l.unit_price, l.discount_percent, l.line_total,
COALESCE(i.sku, ''), COALESCE(i.name, '')`

const lineFrom = ` FROM sales_order_lines l
LEFT JOIN items i ON i.id = l.item_id`

// Repository persists sales orders and their lines in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository backed by pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository is the mutation surface available inside WithTx. The
// status transition guard lives in the UPDATE predicate so concurrent
// moves cannot both win.
type TxRepository interface {
	GenerateOrderNumber(ctx context.Context, now time.Time) (string, error)
	CreateOrder(ctx context.Context, o SalesOrder) (SalesOrder, error)
	UpdateHeader(ctx context.Context, id int64, o SalesOrder) error
	SetStatus(ctx context.Context, id int64, from, to string) (bool, error)
	SetTotals(ctx context.Context, id int64, t Totals, shipping decimal.Decimal, taxRate float64) error
	DeleteOrder(ctx context.Context, id int64) error
	ArchiveFinished(ctx context.Context) (int64, error)

	NextLineNumber(ctx context.Context, orderID int64) (int, error)
	InsertLine(ctx context.Context, l SalesOrderLine) (SalesOrderLine, error)
	DeleteLine(ctx context.Context, orderID, lineID int64) error
	GetLines(ctx context.Context, orderID int64) ([]SalesOrderLine, error)
	AddAllocated(ctx context.Context, lineID int64, quantity float64) error
	AddShipped(ctx context.Context, lineID int64, quantity float64) error
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

// GetOrder loads one order header with its customer name.
func (r *Repository) GetOrder(ctx context.Context, id int64) (SalesOrder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+orderFrom+` WHERE so.id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return SalesOrder{}, ErrNotFound
	}
	return o, err
}

// GetLines loads the lines of an order in line number order.
func (r *Repository) GetLines(ctx context.Context, orderID int64) ([]SalesOrderLine, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+lineColumns+lineFrom+` WHERE l.sales_order_id = $1 ORDER BY l.line_number`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLines(rows)
}

// ListOrders returns a filtered page of orders plus the total match count.
func (r *Repository) ListOrders(ctx context.Context, f OrderFilter) ([]SalesOrder, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if !f.IncludeArchived && f.Status == "" {
		where += ` AND so.status <> '` + StatusArchived + `'`
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where += ` AND so.status = $` + strconv.Itoa(len(args))
	}
	if f.CustomerID > 0 {
		args = append(args, f.CustomerID)
		where += ` AND so.customer_id = $` + strconv.Itoa(len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (so.order_number ILIKE $` + n + ` OR so.customer_po ILIKE $` + n + ` OR c.name ILIKE $` + n + `)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+orderFrom+where, args...).Scan(&total); err != nil {
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
	query := `SELECT ` + orderColumns + orderFrom + where +
		` ORDER BY so.created_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	orders, err := scanOrders(rows)
	return orders, total, err
}

// Search matches order number or customer PO for the quick lookup API.
func (r *Repository) Search(ctx context.Context, term string, limit int) ([]SalesOrder, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+orderFrom+
			` WHERE so.order_number ILIKE $1 OR so.customer_po ILIKE $1
			 ORDER BY so.created_at DESC LIMIT $2`, "%"+term+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

type txRepository struct {
	tx pgx.Tx
}

// GenerateOrderNumber allocates the next SO-yymmdd-nnnn for the day.
func (t *txRepository) GenerateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	prefix := "SO-" + now.Format("060102")
	var count int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM sales_orders WHERE order_number LIKE $1`, prefix+"-%").Scan(&count)
	if err != nil {
		return "", fmt.Errorf("count day orders: %w", err)
	}
	return fmt.Sprintf("%s-%04d", prefix, count+1), nil
}

func (t *txRepository) CreateOrder(ctx context.Context, o SalesOrder) (SalesOrder, error) {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO sales_orders (order_number, customer_id, customer_po, order_date, required_date,
			status, delivery_name, delivery_address, delivery_city, delivery_postcode, delivery_method,
			shipping_cost, tax_rate_percent, subtotal, tax_amount, total_amount, notes, internal_notes,
			created_by, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,NOW(),NOW())
		 RETURNING id, created_at, updated_at`,
		o.OrderNumber, o.CustomerID, o.CustomerPO, o.OrderDate, o.RequiredDate,
		o.Status, o.DeliveryName, o.DeliveryAddress, o.DeliveryCity, o.DeliveryPostcode, o.DeliveryMethod,
		o.ShippingCost, o.TaxRatePercent, o.Subtotal, o.TaxAmount, o.TotalAmount, o.Notes, o.InternalNotes,
		o.CreatedBy,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return SalesOrder{}, fmt.Errorf("insert sales order: %w", err)
	}
	return o, nil
}

func (t *txRepository) UpdateHeader(ctx context.Context, id int64, o SalesOrder) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE sales_orders SET customer_po = $2, required_date = $3, delivery_name = $4,
			delivery_address = $5, delivery_city = $6, delivery_postcode = $7, delivery_method = $8,
			shipping_cost = $9, tax_rate_percent = $10, notes = $11, internal_notes = $12,
			updated_at = NOW()
		 WHERE id = $1`,
		id, o.CustomerPO, o.RequiredDate, o.DeliveryName,
		o.DeliveryAddress, o.DeliveryCity, o.DeliveryPostcode, o.DeliveryMethod,
		o.ShippingCost, o.TaxRatePercent, o.Notes, o.InternalNotes)
	if err != nil {
		return fmt.Errorf("update sales order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus moves the order only when it still sits in the expected
// state; false means someone got there first or the row is gone.
func (t *txRepository) SetStatus(ctx context.Context, id int64, from, to string) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE sales_orders SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return false, fmt.Errorf("set sales order status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txRepository) SetTotals(ctx context.Context, id int64, totals Totals, shipping decimal.Decimal, taxRate float64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE sales_orders SET subtotal = $2, tax_amount = $3, total_amount = $4,
			shipping_cost = $5, tax_rate_percent = $6, updated_at = NOW()
		 WHERE id = $1`,
		id, totals.Subtotal, totals.TaxAmount, totals.TotalAmount, shipping, taxRate)
	if err != nil {
		return fmt.Errorf("set sales order totals: %w", err)
	}
	return nil
}

// DeleteOrder hard-deletes an order with its lines and deliveries.
func (t *txRepository) DeleteOrder(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM deliveries WHERE sales_order_id = $1`, id); err != nil {
		return fmt.Errorf("delete order deliveries: %w", err)
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM sales_order_lines WHERE sales_order_id = $1`, id); err != nil {
		return fmt.Errorf("delete order lines: %w", err)
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM sales_orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete sales order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ArchiveFinished moves every delivered or cancelled order to the archive.
func (t *txRepository) ArchiveFinished(ctx context.Context) (int64, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE sales_orders SET status = $1, updated_at = NOW() WHERE status IN ($2, $3)`,
		StatusArchived, StatusDelivered, StatusCancelled)
	if err != nil {
		return 0, fmt.Errorf("archive finished orders: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *txRepository) NextLineNumber(ctx context.Context, orderID int64) (int, error) {
	var max int
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(line_number), 0) FROM sales_order_lines WHERE sales_order_id = $1`,
		orderID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("next line number: %w", err)
	}
	return max + 1, nil
}

func (t *txRepository) InsertLine(ctx context.Context, l SalesOrderLine) (SalesOrderLine, error) {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO sales_order_lines (sales_order_id, line_number, item_id, is_custom_item,
			custom_sku, custom_description, quantity_ordered, quantity_allocated, quantity_shipped,
			unit_price, discount_percent, line_total)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		 RETURNING id`,
		l.SalesOrderID, l.LineNumber, l.ItemID, l.IsCustomItem,
		l.CustomSKU, l.CustomDescription, l.QuantityOrdered, l.QuantityAllocated, l.QuantityShipped,
		l.UnitPrice, l.DiscountPercent, l.LineTotal,
	).Scan(&l.ID)
	if err != nil {
		return SalesOrderLine{}, fmt.Errorf("insert order line: %w", err)
	}
	return l, nil
}

func (t *txRepository) DeleteLine(ctx context.Context, orderID, lineID int64) error {
	tag, err := t.tx.Exec(ctx,
		`DELETE FROM sales_order_lines WHERE id = $1 AND sales_order_id = $2`, lineID, orderID)
	if err != nil {
		return fmt.Errorf("delete order line: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) GetLines(ctx context.Context, orderID int64) ([]SalesOrderLine, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+lineColumns+lineFrom+` WHERE l.sales_order_id = $1 ORDER BY l.line_number`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLines(rows)
}

func (t *txRepository) AddAllocated(ctx context.Context, lineID int64, quantity float64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE sales_order_lines SET quantity_allocated = quantity_allocated + $2 WHERE id = $1`,
		lineID, quantity)
	if err != nil {
		return fmt.Errorf("add allocated: %w", err)
	}
	return nil
}

func (t *txRepository) AddShipped(ctx context.Context, lineID int64, quantity float64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE sales_order_lines SET quantity_shipped = quantity_shipped + $2,
			quantity_allocated = GREATEST(quantity_allocated - $2, 0)
		 WHERE id = $1`,
		lineID, quantity)
	if err != nil {
		return fmt.Errorf("add shipped: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (SalesOrder, error) {
	var o SalesOrder
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &o.CustomerPO, &o.OrderDate,
		&o.RequiredDate, &o.Status, &o.DeliveryName, &o.DeliveryAddress, &o.DeliveryCity,
		&o.DeliveryPostcode, &o.DeliveryMethod, &o.ShippingCost, &o.TaxRatePercent,
		&o.Subtotal, &o.TaxAmount, &o.TotalAmount, &o.Notes, &o.InternalNotes,
		&o.CreatedBy, &o.CreatedAt, &o.UpdatedAt, &o.CustomerName)
	return o, err
}

func scanOrders(rows pgx.Rows) ([]SalesOrder, error) {
	orders := []SalesOrder{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func scanLines(rows pgx.Rows) ([]SalesOrderLine, error) {
	lines := []SalesOrderLine{}
	for rows.Next() {
		var l SalesOrderLine
		err := rows.Scan(&l.ID, &l.SalesOrderID, &l.LineNumber, &l.ItemID, &l.IsCustomItem,
			&l.CustomSKU, &l.CustomDescription, &l.QuantityOrdered, &l.QuantityAllocated,
			&l.QuantityShipped, &l.UnitPrice, &l.DiscountPercent, &l.LineTotal,
			&l.ItemSKU, &l.ItemName)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
