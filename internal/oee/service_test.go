package oee

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComputeFullShift(t *testing.T) {
	log := ShiftLog{
		PlannedProductionMinutes:       480,
		DowntimeBreakdownMinutes:       30,
		DowntimeSetupChangeoverMinutes: 30,
		IdealCycleTimeSeconds:          18,
		PartsPerCycle:                  4,
		TotalPartsProduced:             4800,
		GoodParts:                      4560,
		ScrapParts:                     240,
	}
	m := log.Compute()

	require.Equal(t, 60, m.DowntimeMinutes)
	require.Equal(t, 420, m.OperatingMinutes)
	require.InDelta(t, 87.5, m.AvailabilityPercent, 0.01)
	// 420 min × 60 / 18 s × 4 cavities = 5600 theoretical parts.
	require.InDelta(t, 5600, m.TheoreticalParts, 0.01)
	require.InDelta(t, 85.71, m.PerformancePercent, 0.01)
	require.InDelta(t, 95.0, m.QualityPercent, 0.01)
	require.InDelta(t, 71.25, m.OEEPercent, 0.05)
	require.InDelta(t, 5.0, m.ScrapPercent, 0.01)
}

func TestComputeZeroGuards(t *testing.T) {
	require.Equal(t, Metrics{}, ShiftLog{}.Compute())

	// Planned time but no cycle time: availability only.
	m := ShiftLog{PlannedProductionMinutes: 480}.Compute()
	require.InDelta(t, 100.0, m.AvailabilityPercent, 0.01)
	require.Zero(t, m.PerformancePercent)
	require.Zero(t, m.QualityPercent)
	require.Zero(t, m.OEEPercent)

	// Downtime beyond planned clamps operating time at zero.
	m = ShiftLog{PlannedProductionMinutes: 60, DowntimeOtherMinutes: 90}.Compute()
	require.Equal(t, 0, m.OperatingMinutes)
	require.Zero(t, m.AvailabilityPercent)
}

type memoryRepo struct {
	nextID   int64
	logs     map[string]ShiftLog
	downtime []DowntimeEvent
	scrap    []ScrapEvent
	dtReason []DowntimeReason
	scReason []ScrapReason
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{nextID: 1, logs: map[string]ShiftLog{}}
}

func logKey(machineID int64, date time.Time, shift string) string {
	return fmt.Sprintf("%d/%s/%s", machineID, date.Format("2006-01-02"), shift)
}

func (m *memoryRepo) id() int64 {
	id := m.nextID
	m.nextID++
	return id
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: m})
}

func (m *memoryRepo) ShiftLog(_ context.Context, machineID int64, date time.Time, shift string) (ShiftLog, error) {
	log, ok := m.logs[logKey(machineID, date, shift)]
	if !ok {
		return ShiftLog{}, ErrNotFound
	}
	return log, nil
}

func (m *memoryRepo) ShiftLogsBetween(_ context.Context, machineID int64, from, to time.Time) ([]ShiftLog, error) {
	out := []ShiftLog{}
	for _, log := range m.logs {
		if machineID > 0 && log.MachineID != machineID {
			continue
		}
		if log.ShiftDate.Before(from) || log.ShiftDate.After(to) {
			continue
		}
		out = append(out, log)
	}
	return out, nil
}

func (m *memoryRepo) TopScrapReasons(_ context.Context, since time.Time, limit int) ([]ReasonTally, error) {
	totals := map[string]int64{}
	for _, e := range m.scrap {
		if !e.OccurredAt.Before(since) {
			totals[e.Reason] += e.Quantity
		}
	}
	return rankTallies(totals, limit), nil
}

func (m *memoryRepo) TopDowntimeReasons(_ context.Context, since time.Time, limit int) ([]ReasonTally, error) {
	totals := map[string]int64{}
	for _, e := range m.downtime {
		if !e.StartedAt.Before(since) {
			totals[e.Reason] += int64(e.DurationMinutes)
		}
	}
	return rankTallies(totals, limit), nil
}

func rankTallies(totals map[string]int64, limit int) []ReasonTally {
	out := []ReasonTally{}
	for reason, total := range totals {
		out = append(out, ReasonTally{Reason: reason, Total: total})
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Total > out[i].Total {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *memoryRepo) DowntimeEvents(_ context.Context, machineID int64, _ int) ([]DowntimeEvent, error) {
	out := []DowntimeEvent{}
	for _, e := range m.downtime {
		if machineID == 0 || e.MachineID == machineID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryRepo) ScrapEvents(_ context.Context, machineID int64, _ int) ([]ScrapEvent, error) {
	out := []ScrapEvent{}
	for _, e := range m.scrap {
		if machineID == 0 || e.MachineID == machineID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryRepo) DowntimeReasons(_ context.Context) ([]DowntimeReason, error) {
	return m.dtReason, nil
}

func (m *memoryRepo) ScrapReasons(_ context.Context) ([]ScrapReason, error) {
	return m.scReason, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) UpsertShiftLog(_ context.Context, log ShiftLog) (ShiftLog, error) {
	key := logKey(log.MachineID, log.ShiftDate, log.Shift)
	if existing, ok := t.repo.logs[key]; ok {
		log.ID = existing.ID
		log.CreatedAt = existing.CreatedAt
	} else {
		log.ID = t.repo.id()
		log.CreatedAt = time.Now()
	}
	log.UpdatedAt = time.Now()
	t.repo.logs[key] = log
	return log, nil
}

func (t *memoryTx) InsertDowntimeEvent(_ context.Context, e DowntimeEvent) (DowntimeEvent, error) {
	e.ID = t.repo.id()
	e.CreatedAt = time.Now()
	t.repo.downtime = append(t.repo.downtime, e)
	return e, nil
}

func (t *memoryTx) InsertScrapEvent(_ context.Context, e ScrapEvent) (ScrapEvent, error) {
	e.ID = t.repo.id()
	e.CreatedAt = time.Now()
	t.repo.scrap = append(t.repo.scrap, e)
	return e, nil
}

func (t *memoryTx) InsertDowntimeReason(_ context.Context, r DowntimeReason) (DowntimeReason, error) {
	r.ID = t.repo.id()
	r.IsActive = true
	t.repo.dtReason = append(t.repo.dtReason, r)
	return r, nil
}

func (t *memoryTx) InsertScrapReason(_ context.Context, r ScrapReason) (ScrapReason, error) {
	r.ID = t.repo.id()
	r.IsActive = true
	t.repo.scReason = append(t.repo.scReason, r)
	return r, nil
}

type fakeMachines struct {
	machines []MachineInfo
}

func (f *fakeMachines) ActiveMachines(_ context.Context) ([]MachineInfo, error) {
	return f.machines, nil
}

func newTestService() (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	svc.SetMachineService(&fakeMachines{machines: []MachineInfo{
		{ID: 1, Name: "Press 1"},
		{ID: 2, Name: "Press 2"},
	}})
	return svc, repo
}

func TestUpsertShiftLogDefaultsAndReplaces(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	saved, err := svc.UpsertShiftLog(ctx, UpsertShiftLogRequest{Log: ShiftLog{
		MachineID:          1,
		TotalPartsProduced: 100,
		GoodParts:          100,
	}})
	require.NoError(t, err)
	require.Equal(t, 480, saved.PlannedProductionMinutes)
	require.Equal(t, ShiftDay, saved.Shift)
	require.Equal(t, 1, saved.PartsPerCycle)

	// A second submission for the same machine, date and shift
	// replaces the first.
	again, err := svc.UpsertShiftLog(ctx, UpsertShiftLogRequest{Log: ShiftLog{
		MachineID:          1,
		ShiftDate:          saved.ShiftDate,
		TotalPartsProduced: 250,
		GoodParts:          240,
		ScrapParts:         10,
	}})
	require.NoError(t, err)
	require.Equal(t, saved.ID, again.ID)
	require.Len(t, repo.logs, 1)
	require.Equal(t, int64(250), again.TotalPartsProduced)
}

func TestUpsertShiftLogValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.UpsertShiftLog(ctx, UpsertShiftLogRequest{Log: ShiftLog{}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.UpsertShiftLog(ctx, UpsertShiftLogRequest{Log: ShiftLog{
		MachineID:          1,
		TotalPartsProduced: 100,
		GoodParts:          90,
		ScrapParts:         20,
	}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.UpsertShiftLog(ctx, UpsertShiftLogRequest{Log: ShiftLog{
		MachineID:                1,
		PlannedProductionMinutes: 60,
		DowntimeOtherMinutes:     90,
	}})
	require.ErrorIs(t, err, ErrValidation)
}

func TestLogDowntimeDurationFromRange(t *testing.T) {
	svc, _ := newTestService()
	started := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	ended := started.Add(45 * time.Minute)

	e, err := svc.LogDowntime(context.Background(), DowntimeEvent{
		MachineID: 1,
		Reason:    "breakdown",
		StartedAt: started,
		EndedAt:   &ended,
	}, 7)
	require.NoError(t, err)
	require.Equal(t, 45, e.DurationMinutes)
	require.NotNil(t, e.ReportedBy)
	require.Equal(t, int64(7), *e.ReportedBy)

	before := started.Add(-10 * time.Minute)
	_, err = svc.LogDowntime(context.Background(), DowntimeEvent{
		MachineID: 1, Reason: "breakdown", StartedAt: started, EndedAt: &before,
	}, 7)
	require.ErrorIs(t, err, ErrValidation)
}

func TestLogScrapValidation(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.LogScrap(context.Background(), ScrapEvent{MachineID: 1, Reason: "flash"}, 1)
	require.ErrorIs(t, err, ErrValidation)

	e, err := svc.LogScrap(context.Background(), ScrapEvent{
		MachineID: 1, Reason: "flash", Quantity: 25, WeightKg: 1.2,
	}, 1)
	require.NoError(t, err)
	require.False(t, e.OccurredAt.IsZero())
}

func TestDashboardAveragesAndTopReasons(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)
	today := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	// Two identical good shifts on press 1, today and yesterday.
	for _, date := range []time.Time{today, today.AddDate(0, 0, -1)} {
		_, err := svc.UpsertShiftLog(ctx, UpsertShiftLogRequest{Log: ShiftLog{
			MachineID:                      1,
			ShiftDate:                      date,
			DowntimeBreakdownMinutes:       30,
			DowntimeSetupChangeoverMinutes: 30,
			IdealCycleTimeSeconds:          18,
			PartsPerCycle:                  4,
			TotalPartsProduced:             4800,
			GoodParts:                      4560,
			ScrapParts:                     240,
		}})
		require.NoError(t, err)
	}

	for _, e := range []ScrapEvent{
		{MachineID: 1, Reason: "flash", Quantity: 140, OccurredAt: now},
		{MachineID: 1, Reason: "short_shot", Quantity: 100, OccurredAt: now},
	} {
		_, err := svc.LogScrap(ctx, e, 1)
		require.NoError(t, err)
	}
	_, err := svc.LogDowntime(ctx, DowntimeEvent{
		MachineID: 1, Reason: "breakdown", StartedAt: now, DurationMinutes: 60,
	}, 1)
	require.NoError(t, err)

	d, err := svc.Dashboard(ctx, now)
	require.NoError(t, err)
	require.Len(t, d.Machines, 2)

	press1 := d.Machines[0]
	require.Equal(t, int64(1), press1.MachineID)
	require.Equal(t, 2, press1.ShiftCount)
	require.NotNil(t, press1.Today)
	require.InDelta(t, 71.25, press1.Today.OEEPercent, 0.05)
	require.InDelta(t, 71.3, press1.SevenDay.OEEPercent, 0.1)

	// Press 2 logged nothing and scores zero.
	press2 := d.Machines[1]
	require.Nil(t, press2.Today)
	require.Zero(t, press2.SevenDay.OEEPercent)

	// Plant OEE averages only machines with shifts.
	require.InDelta(t, 71.3, d.PlantOEEPercent, 0.1)

	require.Equal(t, "flash", d.TopScrapReasons[0].Reason)
	require.Equal(t, int64(140), d.TopScrapReasons[0].Total)
	require.Equal(t, "breakdown", d.TopDowntimeReasons[0].Reason)
}

func TestHistoryLast30Days(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	today := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	// One shift inside the window and one beyond it.
	for _, date := range []time.Time{today.AddDate(0, 0, -5), today.AddDate(0, 0, -40)} {
		_, err := svc.UpsertShiftLog(ctx, UpsertShiftLogRequest{Log: ShiftLog{
			MachineID:             1,
			ShiftDate:             date,
			IdealCycleTimeSeconds: 20,
			TotalPartsProduced:    1200,
			GoodParts:             1200,
		}})
		require.NoError(t, err)
	}

	h, err := svc.History(ctx, 1, now)
	require.NoError(t, err)
	require.Len(t, h.Days, 1)
	require.InDelta(t, 100.0, h.Days[0].Metrics.AvailabilityPercent, 0.01)
	require.NotZero(t, h.Average.OEEPercent)

	_, err = svc.History(ctx, 0, now)
	require.ErrorIs(t, err, ErrValidation)
}

type fakeDashboardCache struct {
	docs map[string][]byte
}

func (f *fakeDashboardCache) BuildKey(_ context.Context, parts ...string) (string, error) {
	return "analytics:" + strings.Join(parts, ":") + ":7", nil
}

func (f *fakeDashboardCache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if raw, ok := f.docs[key]; ok {
		return json.Unmarshal(raw, dest)
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if f.docs == nil {
		f.docs = map[string][]byte{}
	}
	f.docs[key] = raw
	return json.Unmarshal(raw, dest)
}

func TestDashboardServesRollupDocument(t *testing.T) {
	svc, _ := newTestService()
	cache := &fakeDashboardCache{}
	svc.SetDashboardCache(cache)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 6, 30, 0, 0, time.UTC)

	_, err := svc.UpsertShiftLog(ctx, UpsertShiftLogRequest{Log: ShiftLog{
		MachineID:             1,
		ShiftDate:             time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC),
		IdealCycleTimeSeconds: 18,
		PartsPerCycle:         4,
		TotalPartsProduced:    4800,
		GoodParts:             4560,
		ScrapParts:            240,
	}})
	require.NoError(t, err)

	first, err := svc.Dashboard(ctx, now)
	require.NoError(t, err)
	require.NotZero(t, first.PlantOEEPercent)
	require.Contains(t, cache.docs, "analytics:oee:plant:7")

	// Another shift landing after the document was cached does not
	// change the served figures until the document expires.
	_, err = svc.UpsertShiftLog(ctx, UpsertShiftLogRequest{Log: ShiftLog{
		MachineID:             2,
		ShiftDate:             time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
		IdealCycleTimeSeconds: 20,
		PartsPerCycle:         2,
		TotalPartsProduced:    100,
		GoodParts:             50,
		ScrapParts:            50,
	}})
	require.NoError(t, err)

	second, err := svc.Dashboard(ctx, now)
	require.NoError(t, err)
	require.Equal(t, first.PlantOEEPercent, second.PlantOEEPercent)
	require.Equal(t, len(first.Machines), len(second.Machines))
}
