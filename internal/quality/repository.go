package quality

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ncrColumns = `n.id, n.ncr_number, n.source, n.item_id, n.production_order_id, n.customer_id,
n.quantity_affected, n.description, n.root_cause, n.corrective_action, n.disposition,
n.status, n.raised_by, n.assigned_to, n.resolved_at, n.created_at, n.updated_at,
COALESCE(i.sku, ''), COALESCE(i.name, ''), COALESCE(c.name, ''), COALESCE(po.order_number, '')`

const ncrFrom = ` FROM non_conformances n
LEFT JOIN items i ON i.id = n.item_id
LEFT JOIN customers c ON c.id = n.customer_id
LEFT JOIN production_orders po ON po.id = n.production_order_id`

// Repository persists non-conformance reports in Postgres.
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
	Insert(ctx context.Context, n NonConformance) (NonConformance, error)
	Update(ctx context.Context, n NonConformance) error
	SetStatus(ctx context.Context, id int64, from, to string, resolvedAt *time.Time) (bool, error)
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

// Get loads one NCR with its item, customer and order names.
func (r *Repository) Get(ctx context.Context, id int64) (NonConformance, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+ncrColumns+ncrFrom+` WHERE n.id = $1`, id)
	n, err := scanNCR(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return NonConformance{}, ErrNotFound
	}
	return n, err
}

// List returns a filtered page of NCRs plus the total match count.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]NonConformance, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if f.Status != "" {
		args = append(args, f.Status)
		where += ` AND n.status = $` + strconv.Itoa(len(args))
	}
	if f.Source != "" {
		args = append(args, f.Source)
		where += ` AND n.source = $` + strconv.Itoa(len(args))
	}
	if f.ItemID > 0 {
		args = append(args, f.ItemID)
		where += ` AND n.item_id = $` + strconv.Itoa(len(args))
	}
	if f.CustomerID > 0 {
		args = append(args, f.CustomerID)
		where += ` AND n.customer_id = $` + strconv.Itoa(len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		p := strconv.Itoa(len(args))
		where += ` AND (n.ncr_number ILIKE $` + p + ` OR n.description ILIKE $` + p + `)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+ncrFrom+where, args...).Scan(&total); err != nil {
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
	query := `SELECT ` + ncrColumns + ncrFrom + where +
		` ORDER BY n.created_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	ncrs := []NonConformance{}
	for rows.Next() {
		n, err := scanNCR(rows)
		if err != nil {
			return nil, 0, err
		}
		ncrs = append(ncrs, n)
	}
	return ncrs, total, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// GenerateNumber allocates the next NCR-yymmdd-nnnn for the day.
func (t *txRepository) GenerateNumber(ctx context.Context, now time.Time) (string, error) {
	prefix := "NCR-" + now.Format("060102")
	var count int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM non_conformances WHERE ncr_number LIKE $1`, prefix+"-%").Scan(&count)
	if err != nil {
		return "", fmt.Errorf("count day ncrs: %w", err)
	}
	return fmt.Sprintf("%s-%04d", prefix, count+1), nil
}

func (t *txRepository) Insert(ctx context.Context, n NonConformance) (NonConformance, error) {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO non_conformances (ncr_number, source, item_id, production_order_id,
			customer_id, quantity_affected, description, root_cause, corrective_action,
			disposition, status, raised_by, assigned_to, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW(),NOW())
		 RETURNING id, created_at, updated_at`,
		n.NCRNumber, n.Source, n.ItemID, n.ProductionOrderID,
		n.CustomerID, n.QuantityAffected, n.Description, n.RootCause, n.CorrectiveAction,
		n.Disposition, n.Status, n.RaisedBy, n.AssignedTo,
	).Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return NonConformance{}, fmt.Errorf("insert ncr: %w", err)
	}
	return n, nil
}

func (t *txRepository) Update(ctx context.Context, n NonConformance) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE non_conformances SET quantity_affected = $2, description = $3,
			root_cause = $4, corrective_action = $5, disposition = $6,
			assigned_to = $7, updated_at = NOW()
		 WHERE id = $1`,
		n.ID, n.QuantityAffected, n.Description,
		n.RootCause, n.CorrectiveAction, n.Disposition, n.AssignedTo)
	if err != nil {
		return fmt.Errorf("update ncr: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus moves an NCR between statuses; the stored status must still
// match from, otherwise false is returned and the caller retries or
// reports a conflict.
func (t *txRepository) SetStatus(ctx context.Context, id int64, from, to string, resolvedAt *time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE non_conformances SET status = $3, resolved_at = $4, updated_at = NOW()
		 WHERE id = $1 AND status = $2`,
		id, from, to, resolvedAt)
	if err != nil {
		return false, fmt.Errorf("set ncr status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanNCR(row pgx.Row) (NonConformance, error) {
	var n NonConformance
	err := row.Scan(&n.ID, &n.NCRNumber, &n.Source, &n.ItemID, &n.ProductionOrderID, &n.CustomerID,
		&n.QuantityAffected, &n.Description, &n.RootCause, &n.CorrectiveAction, &n.Disposition,
		&n.Status, &n.RaisedBy, &n.AssignedTo, &n.ResolvedAt, &n.CreatedAt, &n.UpdatedAt,
		&n.ItemSKU, &n.ItemName, &n.CustomerName, &n.OrderNumber)
	return n, err
}
