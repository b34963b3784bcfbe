package oee

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mouldworks/mouldworks/internal/shared"
)

// MachineInfo is the slice of a machine the dashboard needs.
type MachineInfo struct {
	ID   int64
	Name string
}

// MachineService lists the presses the dashboard reports on.
type MachineService interface {
	ActiveMachines(ctx context.Context) ([]MachineInfo, error)
}

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	ShiftLog(ctx context.Context, machineID int64, date time.Time, shift string) (ShiftLog, error)
	ShiftLogsBetween(ctx context.Context, machineID int64, from, to time.Time) ([]ShiftLog, error)
	TopScrapReasons(ctx context.Context, since time.Time, limit int) ([]ReasonTally, error)
	TopDowntimeReasons(ctx context.Context, since time.Time, limit int) ([]ReasonTally, error)
	DowntimeEvents(ctx context.Context, machineID int64, limit int) ([]DowntimeEvent, error)
	ScrapEvents(ctx context.Context, machineID int64, limit int) ([]ScrapEvent, error)
	DowntimeReasons(ctx context.Context) ([]DowntimeReason, error)
	ScrapReasons(ctx context.Context) ([]ScrapReason, error)
}

// AuditPort records shop floor actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// DashboardCache serves pre-computed dashboard documents. The nightly
// rollup writes the plant document under the same key, so the morning
// load comes straight from Redis instead of re-aggregating shift logs.
type DashboardCache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
}

// Service owns shift logging and the OEE calculations on top of it.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	machines MachineService
	cache    DashboardCache
}

// NewService constructs the OEE service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// SetMachineService wires machine lookups for the dashboard.
func (s *Service) SetMachineService(machines MachineService) {
	s.machines = machines
}

// SetDashboardCache wires the cache the rollup job pre-warms.
func (s *Service) SetDashboardCache(cache DashboardCache) {
	s.cache = cache
}

// UpsertShiftLog records or corrects one machine's shift. The row is
// keyed by machine, date and shift, so a second submission replaces
// the first rather than duplicating it.
func (s *Service) UpsertShiftLog(ctx context.Context, req UpsertShiftLogRequest) (ShiftLog, error) {
	log := req.Log
	if log.MachineID == 0 {
		return ShiftLog{}, fmt.Errorf("oee: machine required: %w", ErrValidation)
	}
	if log.ShiftDate.IsZero() {
		log.ShiftDate = truncateDay(time.Now())
	} else {
		log.ShiftDate = truncateDay(log.ShiftDate)
	}
	if log.Shift == "" {
		log.Shift = ShiftDay
	}
	if log.PlannedProductionMinutes == 0 {
		log.PlannedProductionMinutes = 480
	}
	if log.PartsPerCycle == 0 {
		log.PartsPerCycle = 1
	}
	if log.GoodParts+log.ScrapParts+log.ReworkParts > log.TotalPartsProduced {
		return ShiftLog{}, fmt.Errorf("oee: part counts exceed total produced: %w", ErrValidation)
	}
	if log.TotalDowntimeMinutes() > log.PlannedProductionMinutes {
		return ShiftLog{}, fmt.Errorf("oee: downtime exceeds planned minutes: %w", ErrValidation)
	}

	var saved ShiftLog
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		saved, err = tx.UpsertShiftLog(ctx, log)
		return err
	})
	if err != nil {
		return ShiftLog{}, err
	}
	s.record(ctx, req.ActorID, "oee.shift.upsert", saved.ID, map[string]any{
		"machine_id": saved.MachineID,
		"shift_date": saved.ShiftDate.Format("2006-01-02"),
		"shift":      saved.Shift,
	})
	return saved, nil
}

// ShiftLog loads one machine's log for a date and shift.
func (s *Service) ShiftLog(ctx context.Context, machineID int64, date time.Time, shift string) (ShiftLog, error) {
	if shift == "" {
		shift = ShiftDay
	}
	return s.repo.ShiftLog(ctx, machineID, truncateDay(date), shift)
}

// LogDowntime records a stoppage. Duration falls out of the time range
// when not given explicitly.
func (s *Service) LogDowntime(ctx context.Context, e DowntimeEvent, actorID int64) (DowntimeEvent, error) {
	if e.MachineID == 0 || e.Reason == "" {
		return DowntimeEvent{}, fmt.Errorf("oee: machine and reason required: %w", ErrValidation)
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	if e.DurationMinutes == 0 && e.EndedAt != nil {
		e.DurationMinutes = int(e.EndedAt.Sub(e.StartedAt).Minutes())
	}
	if e.DurationMinutes < 0 {
		return DowntimeEvent{}, fmt.Errorf("oee: downtime cannot end before it starts: %w", ErrValidation)
	}
	if actorID != 0 {
		actor := actorID
		e.ReportedBy = &actor
	}
	var created DowntimeEvent
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertDowntimeEvent(ctx, e)
		return err
	})
	if err != nil {
		return DowntimeEvent{}, err
	}
	s.record(ctx, actorID, "oee.downtime.log", created.ID, map[string]any{
		"machine_id": e.MachineID,
		"reason":     e.Reason,
		"minutes":    created.DurationMinutes,
	})
	return created, nil
}

// LogScrap records rejected parts from the press.
func (s *Service) LogScrap(ctx context.Context, e ScrapEvent, actorID int64) (ScrapEvent, error) {
	if e.MachineID == 0 || e.Reason == "" {
		return ScrapEvent{}, fmt.Errorf("oee: machine and reason required: %w", ErrValidation)
	}
	if e.Quantity <= 0 {
		return ScrapEvent{}, fmt.Errorf("oee: scrap quantity must be positive: %w", ErrValidation)
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	if actorID != 0 {
		actor := actorID
		e.ReportedBy = &actor
	}
	var created ScrapEvent
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertScrapEvent(ctx, e)
		return err
	})
	if err != nil {
		return ScrapEvent{}, err
	}
	s.record(ctx, actorID, "oee.scrap.log", created.ID, map[string]any{
		"machine_id": e.MachineID,
		"reason":     e.Reason,
		"quantity":   e.Quantity,
	})
	return created, nil
}

// DowntimeEvents lists recent stoppages.
func (s *Service) DowntimeEvents(ctx context.Context, machineID int64, limit int) ([]DowntimeEvent, error) {
	return s.repo.DowntimeEvents(ctx, machineID, limit)
}

// ScrapEvents lists recent rejects.
func (s *Service) ScrapEvents(ctx context.Context, machineID int64, limit int) ([]ScrapEvent, error) {
	return s.repo.ScrapEvents(ctx, machineID, limit)
}

// DowntimeReasons lists the active downtime causes.
func (s *Service) DowntimeReasons(ctx context.Context) ([]DowntimeReason, error) {
	return s.repo.DowntimeReasons(ctx)
}

// ScrapReasons lists the active scrap causes.
func (s *Service) ScrapReasons(ctx context.Context) ([]ScrapReason, error) {
	return s.repo.ScrapReasons(ctx)
}

// AddDowntimeReason adds a cause to the downtime picklist.
func (s *Service) AddDowntimeReason(ctx context.Context, reason DowntimeReason, actorID int64) (DowntimeReason, error) {
	if reason.Code == "" || reason.Name == "" {
		return DowntimeReason{}, fmt.Errorf("oee: code and name required: %w", ErrValidation)
	}
	var created DowntimeReason
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertDowntimeReason(ctx, reason)
		return err
	})
	if err != nil {
		return DowntimeReason{}, err
	}
	s.record(ctx, actorID, "oee.reason.downtime", created.ID, map[string]any{"code": reason.Code})
	return created, nil
}

// AddScrapReason adds a cause to the scrap picklist.
func (s *Service) AddScrapReason(ctx context.Context, reason ScrapReason, actorID int64) (ScrapReason, error) {
	if reason.Code == "" || reason.Name == "" {
		return ScrapReason{}, fmt.Errorf("oee: code and name required: %w", ErrValidation)
	}
	var created ScrapReason
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertScrapReason(ctx, reason)
		return err
	})
	if err != nil {
		return ScrapReason{}, err
	}
	s.record(ctx, actorID, "oee.reason.scrap", created.ID, map[string]any{"code": reason.Code})
	return created, nil
}

// Dashboard builds the shop floor summary: today's OEE per machine,
// trailing seven-day averages, the plant-wide figure, and this month's
// worst scrap and downtime causes. When a cache is wired the document
// written by the nightly rollup is served as-is until it expires.
func (s *Service) Dashboard(ctx context.Context, now time.Time) (Dashboard, error) {
	if s.cache == nil {
		return s.computeDashboard(ctx, now)
	}
	key, err := s.cache.BuildKey(ctx, "oee", "plant")
	if err != nil {
		return s.computeDashboard(ctx, now)
	}
	var d Dashboard
	err = s.cache.FetchJSON(ctx, key, &d, func(ctx context.Context) (any, error) {
		return s.computeDashboard(ctx, now)
	})
	if err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

func (s *Service) computeDashboard(ctx context.Context, now time.Time) (Dashboard, error) {
	today := truncateDay(now)
	weekAgo := today.AddDate(0, 0, -6)
	logs, err := s.repo.ShiftLogsBetween(ctx, 0, weekAgo, today)
	if err != nil {
		return Dashboard{}, err
	}

	byMachine := map[int64][]ShiftLog{}
	names := map[int64]string{}
	for _, log := range logs {
		byMachine[log.MachineID] = append(byMachine[log.MachineID], log)
		names[log.MachineID] = log.MachineName
	}

	machines := []MachineInfo{}
	if s.machines != nil {
		machines, err = s.machines.ActiveMachines(ctx)
		if err != nil {
			return Dashboard{}, err
		}
	} else {
		for id, name := range names {
			machines = append(machines, MachineInfo{ID: id, Name: name})
		}
	}

	d := Dashboard{Machines: []MachineOEE{}}
	var plantSum float64
	var plantCount int
	for _, machine := range machines {
		entry := MachineOEE{MachineID: machine.ID, MachineName: machine.Name}
		machineLogs := byMachine[machine.ID]
		entry.ShiftCount = len(machineLogs)
		entry.SevenDay = averageMetrics(machineLogs)
		for _, log := range machineLogs {
			if log.ShiftDate.Equal(today) {
				m := log.Compute()
				entry.Today = &m
			}
		}
		if len(machineLogs) > 0 {
			plantSum += entry.SevenDay.OEEPercent
			plantCount++
		}
		d.Machines = append(d.Machines, entry)
	}
	if plantCount > 0 {
		d.PlantOEEPercent = round1(plantSum / float64(plantCount))
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	if d.TopScrapReasons, err = s.repo.TopScrapReasons(ctx, monthStart, 5); err != nil {
		return Dashboard{}, err
	}
	if d.TopDowntimeReasons, err = s.repo.TopDowntimeReasons(ctx, monthStart, 5); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

// History returns one machine's last 30 days of shifts with metrics
// per day and the period average.
func (s *Service) History(ctx context.Context, machineID int64, now time.Time) (History, error) {
	if machineID == 0 {
		return History{}, fmt.Errorf("oee: machine required: %w", ErrValidation)
	}
	today := truncateDay(now)
	logs, err := s.repo.ShiftLogsBetween(ctx, machineID, today.AddDate(0, 0, -29), today)
	if err != nil {
		return History{}, err
	}
	h := History{MachineID: machineID, Days: []DayEntry{}}
	for _, log := range logs {
		h.Days = append(h.Days, DayEntry{Log: log, Metrics: log.Compute()})
	}
	h.Average = averageMetrics(logs)
	return h, nil
}

// averageMetrics computes weighted OEE over a set of shifts: the time
// and part totals are pooled rather than averaging the percentages, so
// a short bad shift cannot drag down a week of long good ones.
func averageMetrics(logs []ShiftLog) Metrics {
	if len(logs) == 0 {
		return Metrics{}
	}
	pooled := ShiftLog{}
	var weightedCycle float64
	var produced int64
	for _, log := range logs {
		pooled.PlannedProductionMinutes += log.PlannedProductionMinutes
		pooled.DowntimeBreakdownMinutes += log.TotalDowntimeMinutes()
		pooled.TotalPartsProduced += log.TotalPartsProduced
		pooled.GoodParts += log.GoodParts
		pooled.ScrapParts += log.ScrapParts
		partsPerCycle := log.PartsPerCycle
		if partsPerCycle < 1 {
			partsPerCycle = 1
		}
		weightedCycle += log.IdealCycleTimeSeconds / float64(partsPerCycle) * float64(log.TotalPartsProduced)
		produced += log.TotalPartsProduced
	}
	pooled.PartsPerCycle = 1
	if produced > 0 {
		pooled.IdealCycleTimeSeconds = weightedCycle / float64(produced)
	}
	m := pooled.Compute()
	m.AvailabilityPercent = round1(m.AvailabilityPercent)
	m.PerformancePercent = round1(m.PerformancePercent)
	m.QualityPercent = round1(m.QualityPercent)
	m.OEEPercent = round1(m.OEEPercent)
	m.ScrapPercent = round1(m.ScrapPercent)
	return m
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "oee",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
}
