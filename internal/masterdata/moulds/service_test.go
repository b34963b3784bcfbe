package moulds

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mouldworks/mouldworks/internal/masterdata/shared"
)

type fakeRepo struct {
	moulds map[int64]Mould
	sheets map[int64][]SetupSheet
	links  map[int64][]int64
	nextID int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		moulds: map[int64]Mould{},
		sheets: map[int64][]SetupSheet{},
		links:  map[int64][]int64{},
		nextID: 1,
	}
}

func (f *fakeRepo) List(_ context.Context, _ shared.ListFilters) ([]Mould, int, error) {
	out := []Mould{}
	for _, m := range f.moulds {
		out = append(out, m)
	}
	return out, len(out), nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (Mould, error) {
	m, ok := f.moulds[id]
	if !ok {
		return Mould{}, shared.ErrNotFound
	}
	return m, nil
}

func (f *fakeRepo) GetByNumber(_ context.Context, number string) (Mould, error) {
	for _, m := range f.moulds {
		if m.MouldNumber == number {
			return m, nil
		}
	}
	return Mould{}, shared.ErrNotFound
}

func (f *fakeRepo) Create(_ context.Context, m Mould) (Mould, error) {
	for _, existing := range f.moulds {
		if existing.MouldNumber == m.MouldNumber {
			return Mould{}, shared.ErrDuplicate
		}
	}
	m.ID = f.nextID
	f.nextID++
	f.moulds[m.ID] = m
	return m, nil
}

func (f *fakeRepo) Update(_ context.Context, id int64, m Mould) error {
	existing, ok := f.moulds[id]
	if !ok {
		return shared.ErrNotFound
	}
	m.ID = id
	m.Status = existing.Status
	m.TotalShots = existing.TotalShots
	m.ShotsSinceMaintenance = existing.ShotsSinceMaintenance
	m.LastMaintenanceDate = existing.LastMaintenanceDate
	f.moulds[id] = m
	return nil
}

func (f *fakeRepo) SetStatus(_ context.Context, id int64, status string) error {
	m, ok := f.moulds[id]
	if !ok {
		return shared.ErrNotFound
	}
	m.Status = status
	f.moulds[id] = m
	return nil
}

func (f *fakeRepo) AddShots(_ context.Context, id int64, shots int64) error {
	m, ok := f.moulds[id]
	if !ok {
		return shared.ErrNotFound
	}
	m.TotalShots += shots
	m.ShotsSinceMaintenance += shots
	f.moulds[id] = m
	return nil
}

func (f *fakeRepo) ResetMaintenance(_ context.Context, id int64, performed time.Time, next *time.Time) error {
	m, ok := f.moulds[id]
	if !ok {
		return shared.ErrNotFound
	}
	m.LastMaintenanceDate = &performed
	m.NextMaintenanceDate = next
	m.ShotsSinceMaintenance = 0
	f.moulds[id] = m
	return nil
}

func (f *fakeRepo) Delete(_ context.Context, id int64) error {
	m, ok := f.moulds[id]
	if !ok {
		return shared.ErrNotFound
	}
	m.IsActive = false
	f.moulds[id] = m
	return nil
}

func (f *fakeRepo) LinkedItems(_ context.Context, mouldID int64) ([]LinkedItem, error) {
	out := []LinkedItem{}
	for _, id := range f.links[mouldID] {
		out = append(out, LinkedItem{ItemID: id})
	}
	return out, nil
}

func (f *fakeRepo) SetLinkedItems(_ context.Context, mouldID int64, itemIDs []int64) error {
	f.links[mouldID] = itemIDs
	return nil
}

func (f *fakeRepo) CreateSetupSheet(_ context.Context, sheet SetupSheet) (SetupSheet, error) {
	maxVersion := 0
	sheets := f.sheets[sheet.MouldID]
	for i := range sheets {
		if sheets[i].ItemID == sheet.ItemID {
			sheets[i].IsCurrent = false
			if sheets[i].Version > maxVersion {
				maxVersion = sheets[i].Version
			}
		}
	}
	sheet.ID = f.nextID
	f.nextID++
	sheet.Version = maxVersion + 1
	sheet.IsCurrent = true
	f.sheets[sheet.MouldID] = append(sheets, sheet)
	return sheet, nil
}

func (f *fakeRepo) ListSetupSheets(_ context.Context, mouldID int64) ([]SetupSheet, error) {
	return f.sheets[mouldID], nil
}

func (f *fakeRepo) CurrentSetupSheet(_ context.Context, mouldID, itemID int64) (SetupSheet, error) {
	for _, s := range f.sheets[mouldID] {
		if s.ItemID == itemID && s.IsCurrent {
			return s, nil
		}
	}
	return SetupSheet{}, shared.ErrNotFound
}

func TestCreateMouldDefaults(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	_, err := svc.Create(context.Background(), Mould{Name: "Crate lid"}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)

	created, err := svc.Create(context.Background(), Mould{MouldNumber: "T-105", Name: "Crate lid 4-cav"}, 1)
	require.NoError(t, err)
	require.Equal(t, 1, created.NumCavities)
	require.Equal(t, StatusAvailable, created.Status)
	require.True(t, created.IsActive)
}

func TestMaintenanceDueByShots(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	created, err := svc.Create(context.Background(), Mould{
		MouldNumber: "T-105", Name: "Crate lid", MaintenanceIntervalShots: 1000,
	}, 1)
	require.NoError(t, err)

	m, err := svc.RecordShots(context.Background(), created.ID, 400, 1)
	require.NoError(t, err)
	require.False(t, m.IsMaintenanceDue)

	m, err = svc.RecordShots(context.Background(), created.ID, 600, 1)
	require.NoError(t, err)
	require.True(t, m.IsMaintenanceDue)
	require.Equal(t, int64(1000), m.TotalShots)

	m, err = svc.MaintenancePerformed(context.Background(), created.ID, time.Time{}, nil, 1)
	require.NoError(t, err)
	require.False(t, m.IsMaintenanceDue)
	require.Zero(t, m.ShotsSinceMaintenance)
	require.Equal(t, int64(1000), m.TotalShots)
}

func TestMaintenanceDueByDate(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }

	overdue := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	created, err := svc.Create(context.Background(), Mould{
		MouldNumber: "T-200", Name: "Bin base", NextMaintenanceDate: &overdue,
	}, 1)
	require.NoError(t, err)

	m, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.True(t, m.IsMaintenanceDue)
}

func TestSetupSheetVersioning(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	mould, err := svc.Create(context.Background(), Mould{MouldNumber: "T-105", Name: "Crate lid", NumCavities: 4, CycleTimeSeconds: 30}, 1)
	require.NoError(t, err)

	_, err = svc.CreateSetupSheet(context.Background(), SetupSheet{MouldID: mould.ID}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)

	first, err := svc.CreateSetupSheet(context.Background(), SetupSheet{MouldID: mould.ID, ItemID: 9, CycleTimeSeconds: 28}, 1)
	require.NoError(t, err)
	require.Equal(t, 1, first.Version)
	require.True(t, first.IsCurrent)

	second, err := svc.CreateSetupSheet(context.Background(), SetupSheet{MouldID: mould.ID, ItemID: 9, CycleTimeSeconds: 26.5}, 1)
	require.NoError(t, err)
	require.Equal(t, 2, second.Version)
	require.True(t, second.IsCurrent)

	current, err := svc.CurrentSetupSheet(context.Background(), mould.ID, 9)
	require.NoError(t, err)
	require.Equal(t, second.ID, current.ID)

	sheets, err := svc.ListSetupSheets(context.Background(), mould.ID)
	require.NoError(t, err)
	require.Len(t, sheets, 2)
	require.False(t, sheets[0].IsCurrent)
}

func TestCycleTimeForPrefersCurrentSheet(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	mould, err := svc.Create(context.Background(), Mould{MouldNumber: "T-105", Name: "Crate lid", NumCavities: 4, CycleTimeSeconds: 30}, 1)
	require.NoError(t, err)

	cycle, cavities, err := svc.CycleTimeFor(context.Background(), mould.ID, 9)
	require.NoError(t, err)
	require.Equal(t, 30.0, cycle)
	require.Equal(t, 4, cavities)

	_, err = svc.CreateSetupSheet(context.Background(), SetupSheet{MouldID: mould.ID, ItemID: 9, CycleTimeSeconds: 26.5}, 1)
	require.NoError(t, err)

	cycle, cavities, err = svc.CycleTimeFor(context.Background(), mould.ID, 9)
	require.NoError(t, err)
	require.Equal(t, 26.5, cycle)
	require.Equal(t, 4, cavities)
}
