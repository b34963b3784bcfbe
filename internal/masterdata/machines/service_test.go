package machines

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mouldworks/mouldworks/internal/masterdata/shared"
)

type fakeRepo struct {
	machines map[int64]Machine
	nextID   int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{machines: map[int64]Machine{}, nextID: 1}
}

func (f *fakeRepo) List(_ context.Context, _ shared.ListFilters) ([]Machine, int, error) {
	out := []Machine{}
	for _, m := range f.machines {
		out = append(out, m)
	}
	return out, len(out), nil
}

func (f *fakeRepo) ListActive(_ context.Context) ([]Machine, error) {
	out := []Machine{}
	for _, m := range f.machines {
		if m.IsActive {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (Machine, error) {
	m, ok := f.machines[id]
	if !ok {
		return Machine{}, shared.ErrNotFound
	}
	return m, nil
}

func (f *fakeRepo) Create(_ context.Context, m Machine) (Machine, error) {
	for _, existing := range f.machines {
		if existing.Code == m.Code {
			return Machine{}, shared.ErrDuplicate
		}
	}
	m.ID = f.nextID
	f.nextID++
	f.machines[m.ID] = m
	return m, nil
}

func (f *fakeRepo) Update(_ context.Context, id int64, m Machine) error {
	existing, ok := f.machines[id]
	if !ok {
		return shared.ErrNotFound
	}
	m.ID = id
	m.Status = existing.Status
	m.CurrentMouldID = existing.CurrentMouldID
	f.machines[id] = m
	return nil
}

func (f *fakeRepo) SetStatus(_ context.Context, id int64, status string, currentMouldID *int64) error {
	m, ok := f.machines[id]
	if !ok {
		return shared.ErrNotFound
	}
	m.Status = status
	m.CurrentMouldID = currentMouldID
	f.machines[id] = m
	return nil
}

func (f *fakeRepo) Delete(_ context.Context, id int64) error {
	m, ok := f.machines[id]
	if !ok {
		return shared.ErrNotFound
	}
	m.IsActive = false
	f.machines[id] = m
	return nil
}

func TestCreateMachineDefaults(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	_, err := svc.Create(context.Background(), Machine{Name: "Press 1"}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)

	created, err := svc.Create(context.Background(), Machine{Code: "M01", Name: "Press 1", Tonnage: 90}, 1)
	require.NoError(t, err)
	require.Equal(t, "Borche", created.Manufacturer)
	require.Equal(t, StatusIdle, created.Status)
	require.True(t, created.IsActive)
}

func TestSetStatusValidatesAndClearsMould(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	created, err := svc.Create(context.Background(), Machine{Code: "M01", Name: "Press 1"}, 1)
	require.NoError(t, err)

	_, err = svc.SetStatus(context.Background(), created.ID, "exploded", 1)
	require.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, svc.AssignMould(context.Background(), created.ID, 42))
	running, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, running.Status)
	require.NotNil(t, running.CurrentMouldID)
	require.Equal(t, int64(42), *running.CurrentMouldID)

	stopped, err := svc.SetStatus(context.Background(), created.ID, StatusMaintenance, 1)
	require.NoError(t, err)
	require.Equal(t, StatusMaintenance, stopped.Status)
	require.Nil(t, stopped.CurrentMouldID)
}

func TestReleaseMould(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	created, err := svc.Create(context.Background(), Machine{Code: "M02", Name: "Press 2"}, 1)
	require.NoError(t, err)

	require.NoError(t, svc.AssignMould(context.Background(), created.ID, 7))
	require.NoError(t, svc.ReleaseMould(context.Background(), created.ID))

	m, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusIdle, m.Status)
	require.Nil(t, m.CurrentMouldID)
}
