// Package audit exposes the audit trail written by the rest of the
// system: who did what, to which record, and when.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const exportRowCap = 10000

// Repository reads audit_logs rows for the timeline and exports.
type Repository interface {
	TimelineWindow(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error)
	TimelineAll(ctx context.Context, filters TimelineFilters, limit int) ([]TimelineRow, error)
}

// Result wraps a timeline page with its paging metadata.
type Result struct {
	Rows   []TimelineRow
	Paging PagingInfo
}

// Service coordinates audit trail reads.
type Service struct {
	repo Repository
}

// NewService builds an audit trail service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of the audit trail, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	// Fetch one extra row to learn whether a next page exists.
	rows, err := s.repo.TimelineWindow(ctx, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns the whole filtered trail for CSV or PDF download,
// capped so a runaway filter cannot pull the entire table.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	return s.repo.TimelineAll(ctx, filters, exportRowCap)
}

// PGRepository reads the trail straight from audit_logs.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Postgres-backed audit repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const timelineSelect = `
SELECT l.occurred_at,
       COALESCE(u.email, 'system') AS actor,
       l.action,
       l.entity,
       l.entity_id,
       COALESCE(l.meta::text, '') AS meta
FROM audit_logs l
LEFT JOIN users u ON u.id = l.actor_id
WHERE l.occurred_at >= $1
  AND l.occurred_at < $2
  AND ($3 = '' OR u.email ILIKE '%' || $3 || '%')
  AND ($4 = '' OR l.entity = $4)
  AND ($5 = '' OR l.action = $5)
ORDER BY l.occurred_at DESC, l.id DESC`

// TimelineWindow returns one page of matching rows, newest first.
func (r *PGRepository) TimelineWindow(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	from, until, actor, entity, action := queryArgs(filters)
	rows, err := r.pool.Query(ctx, timelineSelect+` LIMIT $6 OFFSET $7`,
		from, until, actor, entity, action, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("audit timeline window: %w", err)
	}
	return scanTimelineRows(rows)
}

// TimelineAll returns every matching row up to limit.
func (r *PGRepository) TimelineAll(ctx context.Context, filters TimelineFilters, limit int) ([]TimelineRow, error) {
	from, until, actor, entity, action := queryArgs(filters)
	rows, err := r.pool.Query(ctx, timelineSelect+` LIMIT $6`,
		from, until, actor, entity, action, limit)
	if err != nil {
		return nil, fmt.Errorf("audit timeline export: %w", err)
	}
	return scanTimelineRows(rows)
}

// queryArgs normalises the filter values for the shared WHERE clause.
// To is a calendar date from the form, so the upper bound is exclusive
// at the start of the following day.
func queryArgs(filters TimelineFilters) (time.Time, time.Time, string, string, string) {
	from := filters.From
	if from.IsZero() {
		from = time.Unix(0, 0).UTC()
	}
	until := filters.To
	if until.IsZero() {
		until = time.Now().UTC()
	}
	until = until.Add(24 * time.Hour)
	return from, until,
		strings.TrimSpace(filters.Actor),
		strings.TrimSpace(filters.Entity),
		strings.TrimSpace(filters.Action)
}

func scanTimelineRows(rows pgx.Rows) ([]TimelineRow, error) {
	defer rows.Close()
	var result []TimelineRow
	for rows.Next() {
		var row TimelineRow
		if err := rows.Scan(&row.At, &row.Actor, &row.Action, &row.Entity, &row.EntityID, &row.Meta); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
