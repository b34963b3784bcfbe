package oee

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const shiftLogColumns = `s.id, s.machine_id, s.shift_date, s.shift, s.production_order_id,
s.operator_id, s.planned_production_minutes, s.downtime_breakdown_minutes,
s.downtime_setup_changeover_minutes, s.downtime_material_shortage_minutes,
s.downtime_other_minutes, s.downtime_notes, s.ideal_cycle_time_seconds, s.parts_per_cycle,
s.total_parts_produced, s.good_parts, s.scrap_parts, s.rework_parts, s.scrap_startup,
s.scrap_colour, s.scrap_short_shot, s.scrap_flash, s.scrap_sink_marks, s.scrap_warp,
s.scrap_other, s.scrap_notes, s.notes, s.created_at, s.updated_at, m.name`

const shiftLogFrom = ` FROM shift_logs s JOIN machines m ON m.id = s.machine_id`

// Repository persists shift logs and shop floor events in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository backed by pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository is the mutation surface available inside WithTx.
type TxRepository interface {
	UpsertShiftLog(ctx context.Context, log ShiftLog) (ShiftLog, error)
	InsertDowntimeEvent(ctx context.Context, e DowntimeEvent) (DowntimeEvent, error)
	InsertScrapEvent(ctx context.Context, e ScrapEvent) (ScrapEvent, error)
	InsertDowntimeReason(ctx context.Context, r DowntimeReason) (DowntimeReason, error)
	InsertScrapReason(ctx context.Context, r ScrapReason) (ScrapReason, error)
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

// ShiftLog loads one machine's log for a date and shift.
func (r *Repository) ShiftLog(ctx context.Context, machineID int64, date time.Time, shift string) (ShiftLog, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+shiftLogColumns+shiftLogFrom+
		` WHERE s.machine_id = $1 AND s.shift_date = $2 AND s.shift = $3`,
		machineID, date, shift)
	log, err := scanShiftLog(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ShiftLog{}, ErrNotFound
	}
	return log, err
}

// ShiftLogsBetween lists logs in [from, to], optionally for one machine,
// oldest first.
func (r *Repository) ShiftLogsBetween(ctx context.Context, machineID int64, from, to time.Time) ([]ShiftLog, error) {
	where := ` WHERE s.shift_date >= $1 AND s.shift_date <= $2`
	args := []any{from, to}
	if machineID > 0 {
		args = append(args, machineID)
		where += ` AND s.machine_id = $` + strconv.Itoa(len(args))
	}
	rows, err := r.pool.Query(ctx, `SELECT `+shiftLogColumns+shiftLogFrom+where+
		` ORDER BY s.shift_date, s.machine_id, s.shift`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []ShiftLog{}
	for rows.Next() {
		log, err := scanShiftLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// TopScrapReasons ranks scrap causes by quantity since a date.
func (r *Repository) TopScrapReasons(ctx context.Context, since time.Time, limit int) ([]ReasonTally, error) {
	rows, err := r.pool.Query(ctx, `SELECT reason, SUM(quantity) AS total FROM scrap_events
WHERE occurred_at >= $1 GROUP BY reason ORDER BY total DESC LIMIT $2`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTallies(rows)
}

// TopDowntimeReasons ranks downtime causes by minutes since a date.
func (r *Repository) TopDowntimeReasons(ctx context.Context, since time.Time, limit int) ([]ReasonTally, error) {
	rows, err := r.pool.Query(ctx, `SELECT reason, SUM(duration_minutes) AS total FROM downtime_events
WHERE started_at >= $1 GROUP BY reason ORDER BY total DESC LIMIT $2`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTallies(rows)
}

// DowntimeEvents lists stoppages, newest first, optionally per machine.
func (r *Repository) DowntimeEvents(ctx context.Context, machineID int64, limit int) ([]DowntimeEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, machine_id, production_order_id, reason_id, reason,
started_at, ended_at, duration_minutes, notes, reported_by, created_at FROM downtime_events
WHERE ($1 = 0 OR machine_id = $1) ORDER BY started_at DESC LIMIT $2`, machineID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []DowntimeEvent{}
	for rows.Next() {
		var e DowntimeEvent
		if err := rows.Scan(&e.ID, &e.MachineID, &e.ProductionOrderID, &e.ReasonID, &e.Reason,
			&e.StartedAt, &e.EndedAt, &e.DurationMinutes, &e.Notes, &e.ReportedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ScrapEvents lists rejects, newest first, optionally per machine.
func (r *Repository) ScrapEvents(ctx context.Context, machineID int64, limit int) ([]ScrapEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, machine_id, production_order_id, reason_id, reason,
quantity, weight_kg, occurred_at, notes, reported_by, created_at FROM scrap_events
WHERE ($1 = 0 OR machine_id = $1) ORDER BY occurred_at DESC LIMIT $2`, machineID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []ScrapEvent{}
	for rows.Next() {
		var e ScrapEvent
		if err := rows.Scan(&e.ID, &e.MachineID, &e.ProductionOrderID, &e.ReasonID, &e.Reason,
			&e.Quantity, &e.WeightKg, &e.OccurredAt, &e.Notes, &e.ReportedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// DowntimeReasons lists active downtime causes.
func (r *Repository) DowntimeReasons(ctx context.Context) ([]DowntimeReason, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, code, name, is_active FROM downtime_reasons WHERE is_active ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reasons := []DowntimeReason{}
	for rows.Next() {
		var reason DowntimeReason
		if err := rows.Scan(&reason.ID, &reason.Code, &reason.Name, &reason.IsActive); err != nil {
			return nil, err
		}
		reasons = append(reasons, reason)
	}
	return reasons, rows.Err()
}

// ScrapReasons lists active scrap causes.
func (r *Repository) ScrapReasons(ctx context.Context) ([]ScrapReason, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, code, name, is_active FROM scrap_reasons WHERE is_active ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reasons := []ScrapReason{}
	for rows.Next() {
		var reason ScrapReason
		if err := rows.Scan(&reason.ID, &reason.Code, &reason.Name, &reason.IsActive); err != nil {
			return nil, err
		}
		reasons = append(reasons, reason)
	}
	return reasons, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// UpsertShiftLog inserts or replaces the log identified by machine,
// date and shift.
func (t *txRepository) UpsertShiftLog(ctx context.Context, log ShiftLog) (ShiftLog, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO shift_logs (machine_id, shift_date, shift,
production_order_id, operator_id, planned_production_minutes, downtime_breakdown_minutes,
downtime_setup_changeover_minutes, downtime_material_shortage_minutes, downtime_other_minutes,
downtime_notes, ideal_cycle_time_seconds, parts_per_cycle, total_parts_produced, good_parts,
scrap_parts, rework_parts, scrap_startup, scrap_colour, scrap_short_shot, scrap_flash,
scrap_sink_marks, scrap_warp, scrap_other, scrap_notes, notes)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
ON CONFLICT (machine_id, shift_date, shift) DO UPDATE SET
production_order_id = EXCLUDED.production_order_id, operator_id = EXCLUDED.operator_id,
planned_production_minutes = EXCLUDED.planned_production_minutes,
downtime_breakdown_minutes = EXCLUDED.downtime_breakdown_minutes,
downtime_setup_changeover_minutes = EXCLUDED.downtime_setup_changeover_minutes,
downtime_material_shortage_minutes = EXCLUDED.downtime_material_shortage_minutes,
downtime_other_minutes = EXCLUDED.downtime_other_minutes,
downtime_notes = EXCLUDED.downtime_notes,
ideal_cycle_time_seconds = EXCLUDED.ideal_cycle_time_seconds,
parts_per_cycle = EXCLUDED.parts_per_cycle,
total_parts_produced = EXCLUDED.total_parts_produced, good_parts = EXCLUDED.good_parts,
scrap_parts = EXCLUDED.scrap_parts, rework_parts = EXCLUDED.rework_parts,
scrap_startup = EXCLUDED.scrap_startup, scrap_colour = EXCLUDED.scrap_colour,
scrap_short_shot = EXCLUDED.scrap_short_shot, scrap_flash = EXCLUDED.scrap_flash,
scrap_sink_marks = EXCLUDED.scrap_sink_marks, scrap_warp = EXCLUDED.scrap_warp,
scrap_other = EXCLUDED.scrap_other, scrap_notes = EXCLUDED.scrap_notes,
notes = EXCLUDED.notes, updated_at = NOW()
RETURNING id, created_at, updated_at`,
		log.MachineID, log.ShiftDate, log.Shift, log.ProductionOrderID, log.OperatorID,
		log.PlannedProductionMinutes, log.DowntimeBreakdownMinutes, log.DowntimeSetupChangeoverMinutes,
		log.DowntimeMaterialShortageMinutes, log.DowntimeOtherMinutes, log.DowntimeNotes,
		log.IdealCycleTimeSeconds, log.PartsPerCycle, log.TotalPartsProduced, log.GoodParts,
		log.ScrapParts, log.ReworkParts, log.ScrapStartup, log.ScrapColour, log.ScrapShortShot,
		log.ScrapFlash, log.ScrapSinkMarks, log.ScrapWarp, log.ScrapOther, log.ScrapNotes, log.Notes)
	if err := row.Scan(&log.ID, &log.CreatedAt, &log.UpdatedAt); err != nil {
		return ShiftLog{}, fmt.Errorf("upsert shift log: %w", err)
	}
	return log, nil
}

func (t *txRepository) InsertDowntimeEvent(ctx context.Context, e DowntimeEvent) (DowntimeEvent, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO downtime_events (machine_id, production_order_id,
reason_id, reason, started_at, ended_at, duration_minutes, notes, reported_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at`,
		e.MachineID, e.ProductionOrderID, e.ReasonID, e.Reason, e.StartedAt, e.EndedAt,
		e.DurationMinutes, e.Notes, e.ReportedBy)
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		return DowntimeEvent{}, fmt.Errorf("insert downtime event: %w", err)
	}
	return e, nil
}

func (t *txRepository) InsertScrapEvent(ctx context.Context, e ScrapEvent) (ScrapEvent, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO scrap_events (machine_id, production_order_id,
reason_id, reason, quantity, weight_kg, occurred_at, notes, reported_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at`,
		e.MachineID, e.ProductionOrderID, e.ReasonID, e.Reason, e.Quantity, e.WeightKg,
		e.OccurredAt, e.Notes, e.ReportedBy)
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		return ScrapEvent{}, fmt.Errorf("insert scrap event: %w", err)
	}
	return e, nil
}

func (t *txRepository) InsertDowntimeReason(ctx context.Context, r DowntimeReason) (DowntimeReason, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO downtime_reasons (code, name, is_active)
VALUES ($1,$2,TRUE) RETURNING id`, r.Code, r.Name)
	if err := row.Scan(&r.ID); err != nil {
		return DowntimeReason{}, fmt.Errorf("insert downtime reason: %w", err)
	}
	r.IsActive = true
	return r, nil
}

func (t *txRepository) InsertScrapReason(ctx context.Context, r ScrapReason) (ScrapReason, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO scrap_reasons (code, name, is_active)
VALUES ($1,$2,TRUE) RETURNING id`, r.Code, r.Name)
	if err := row.Scan(&r.ID); err != nil {
		return ScrapReason{}, fmt.Errorf("insert scrap reason: %w", err)
	}
	r.IsActive = true
	return r, nil
}

func scanShiftLog(row pgx.Row) (ShiftLog, error) {
	var l ShiftLog
	err := row.Scan(&l.ID, &l.MachineID, &l.ShiftDate, &l.Shift, &l.ProductionOrderID,
		&l.OperatorID, &l.PlannedProductionMinutes, &l.DowntimeBreakdownMinutes,
		&l.DowntimeSetupChangeoverMinutes, &l.DowntimeMaterialShortageMinutes,
		&l.DowntimeOtherMinutes, &l.DowntimeNotes, &l.IdealCycleTimeSeconds, &l.PartsPerCycle,
		&l.TotalPartsProduced, &l.GoodParts, &l.ScrapParts, &l.ReworkParts, &l.ScrapStartup,
		&l.ScrapColour, &l.ScrapShortShot, &l.ScrapFlash, &l.ScrapSinkMarks, &l.ScrapWarp,
		&l.ScrapOther, &l.ScrapNotes, &l.Notes, &l.CreatedAt, &l.UpdatedAt, &l.MachineName)
	return l, err
}

func scanTallies(rows pgx.Rows) ([]ReasonTally, error) {
	tallies := []ReasonTally{}
	for rows.Next() {
		var t ReasonTally
		if err := rows.Scan(&t.Reason, &t.Total); err != nil {
			return nil, err
		}
		tallies = append(tallies, t)
	}
	return tallies, rows.Err()
}
