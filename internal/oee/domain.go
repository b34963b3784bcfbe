package oee

import (
	"errors"
	"time"
)

// Shift identifiers. The default single-shift pattern logs everything
// against "day".
const (
	ShiftDay   = "day"
	ShiftNight = "night"
)

// ShiftLog is one machine's production record for one shift. Downtime
// and scrap are bucketed so the dashboard can rank causes without
// joining the event tables.
type ShiftLog struct {
	ID        int64     `json:"id"`
	MachineID int64     `json:"machine_id"`
	ShiftDate time.Time `json:"shift_date"`
	Shift     string    `json:"shift"`

	ProductionOrderID *int64 `json:"production_order_id"`
	OperatorID        *int64 `json:"operator_id"`

	PlannedProductionMinutes int `json:"planned_production_minutes"`

	DowntimeBreakdownMinutes        int    `json:"downtime_breakdown_minutes"`
	DowntimeSetupChangeoverMinutes  int    `json:"downtime_setup_changeover_minutes"`
	DowntimeMaterialShortageMinutes int    `json:"downtime_material_shortage_minutes"`
	DowntimeOtherMinutes            int    `json:"downtime_other_minutes"`
	DowntimeNotes                   string `json:"downtime_notes"`

	IdealCycleTimeSeconds float64 `json:"ideal_cycle_time_seconds"`
	PartsPerCycle         int     `json:"parts_per_cycle"`

	TotalPartsProduced int64 `json:"total_parts_produced"`
	GoodParts          int64 `json:"good_parts"`
	ScrapParts         int64 `json:"scrap_parts"`
	ReworkParts        int64 `json:"rework_parts"`

	ScrapStartup   int64  `json:"scrap_startup"`
	ScrapColour    int64  `json:"scrap_colour"`
	ScrapShortShot int64  `json:"scrap_short_shot"`
	ScrapFlash     int64  `json:"scrap_flash"`
	ScrapSinkMarks int64  `json:"scrap_sink_marks"`
	ScrapWarp      int64  `json:"scrap_warp"`
	ScrapOther     int64  `json:"scrap_other"`
	ScrapNotes     string `json:"scrap_notes"`

	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Joined from machines on reads.
	MachineName string `json:"machine_name"`
}

// TotalDowntimeMinutes sums the four downtime buckets.
func (l ShiftLog) TotalDowntimeMinutes() int {
	return l.DowntimeBreakdownMinutes + l.DowntimeSetupChangeoverMinutes +
		l.DowntimeMaterialShortageMinutes + l.DowntimeOtherMinutes
}

// Metrics is the OEE working for one shift log.
type Metrics struct {
	PlannedMinutes   int     `json:"planned_minutes"`
	DowntimeMinutes  int     `json:"downtime_minutes"`
	OperatingMinutes int     `json:"operating_minutes"`
	TheoreticalParts float64 `json:"theoretical_parts"`

	AvailabilityPercent float64 `json:"availability_percent"`
	PerformancePercent  float64 `json:"performance_percent"`
	QualityPercent      float64 `json:"quality_percent"`
	OEEPercent          float64 `json:"oee_percent"`
	ScrapPercent        float64 `json:"scrap_percent"`
}

// Compute derives availability, performance, quality and OEE for the
// shift. Every ratio is zero-guarded: a shift with no planned time, no
// cycle time or no output scores zero rather than dividing by nothing.
func (l ShiftLog) Compute() Metrics {
	m := Metrics{
		PlannedMinutes:  l.PlannedProductionMinutes,
		DowntimeMinutes: l.TotalDowntimeMinutes(),
	}
	m.OperatingMinutes = m.PlannedMinutes - m.DowntimeMinutes
	if m.OperatingMinutes < 0 {
		m.OperatingMinutes = 0
	}
	if m.PlannedMinutes > 0 {
		m.AvailabilityPercent = float64(m.OperatingMinutes) / float64(m.PlannedMinutes) * 100
	}
	if l.IdealCycleTimeSeconds > 0 {
		partsPerCycle := l.PartsPerCycle
		if partsPerCycle < 1 {
			partsPerCycle = 1
		}
		m.TheoreticalParts = float64(m.OperatingMinutes) * 60 / l.IdealCycleTimeSeconds * float64(partsPerCycle)
	}
	if m.TheoreticalParts > 0 {
		m.PerformancePercent = float64(l.TotalPartsProduced) / m.TheoreticalParts * 100
	}
	if l.TotalPartsProduced > 0 {
		m.QualityPercent = float64(l.GoodParts) / float64(l.TotalPartsProduced) * 100
		m.ScrapPercent = float64(l.ScrapParts) / float64(l.TotalPartsProduced) * 100
	}
	m.OEEPercent = m.AvailabilityPercent / 100 * m.PerformancePercent / 100 * m.QualityPercent / 100 * 100
	return m
}

// DowntimeReason is a configurable cause for downtime events.
type DowntimeReason struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// DowntimeEvent records one stoppage on a machine.
type DowntimeEvent struct {
	ID                int64      `json:"id"`
	MachineID         int64      `json:"machine_id"`
	ProductionOrderID *int64     `json:"production_order_id"`
	ReasonID          *int64     `json:"reason_id"`
	Reason            string     `json:"reason"`
	StartedAt         time.Time  `json:"started_at"`
	EndedAt           *time.Time `json:"ended_at"`
	DurationMinutes   int        `json:"duration_minutes"`
	Notes             string     `json:"notes"`
	ReportedBy        *int64     `json:"reported_by"`
	CreatedAt         time.Time  `json:"created_at"`
}

// ScrapReason is a configurable cause for scrap events.
type ScrapReason struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// ScrapEvent records rejected parts, usually logged straight from the
// press with the quick-log endpoint.
type ScrapEvent struct {
	ID                int64     `json:"id"`
	MachineID         int64     `json:"machine_id"`
	ProductionOrderID *int64    `json:"production_order_id"`
	ReasonID          *int64    `json:"reason_id"`
	Reason            string    `json:"reason"`
	Quantity          int64     `json:"quantity"`
	WeightKg          float64   `json:"weight_kg"`
	OccurredAt        time.Time `json:"occurred_at"`
	Notes             string    `json:"notes"`
	ReportedBy        *int64    `json:"reported_by"`
	CreatedAt         time.Time `json:"created_at"`
}

// UpsertShiftLogRequest records or corrects one machine's shift.
// Machine, date and shift identify the row; everything else replaces
// the stored values.
type UpsertShiftLogRequest struct {
	Log     ShiftLog
	ActorID int64
}

// MachineOEE is one machine's line on the dashboard.
type MachineOEE struct {
	MachineID   int64    `json:"machine_id"`
	MachineName string   `json:"machine_name"`
	Today       *Metrics `json:"today"`
	SevenDay    Metrics  `json:"seven_day"`
	ShiftCount  int      `json:"shift_count"`
}

// ReasonTally ranks a cause by its total.
type ReasonTally struct {
	Reason string `json:"reason"`
	Total  int64  `json:"total"`
}

// Dashboard is the shop floor performance summary.
type Dashboard struct {
	Machines           []MachineOEE  `json:"machines"`
	PlantOEEPercent    float64       `json:"plant_oee_percent"`
	TopScrapReasons    []ReasonTally `json:"top_scrap_reasons"`
	TopDowntimeReasons []ReasonTally `json:"top_downtime_reasons"`
}

// History is one machine's recent shift record.
type History struct {
	MachineID int64      `json:"machine_id"`
	Days      []DayEntry `json:"days"`
	Average   Metrics    `json:"average"`
}

// DayEntry pairs a shift log with its computed metrics.
type DayEntry struct {
	Log     ShiftLog `json:"log"`
	Metrics Metrics  `json:"metrics"`
}

var (
	ErrNotFound   = errors.New("oee: not found")
	ErrValidation = errors.New("oee: validation failed")
)
