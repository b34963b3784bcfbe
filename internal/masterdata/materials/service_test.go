package materials

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mouldworks/mouldworks/internal/masterdata/shared"
)

type fakeRepo struct {
	materials     map[int64]Material
	history       map[int64][]PriceHistory
	masterbatches map[int64]Masterbatch
	nextID        int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		materials:     map[int64]Material{},
		history:       map[int64][]PriceHistory{},
		masterbatches: map[int64]Masterbatch{},
		nextID:        1,
	}
}

func (f *fakeRepo) List(_ context.Context, _ shared.ListFilters) ([]Material, int, error) {
	out := []Material{}
	for _, m := range f.materials {
		out = append(out, m)
	}
	return out, len(out), nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (Material, error) {
	m, ok := f.materials[id]
	if !ok {
		return Material{}, shared.ErrNotFound
	}
	return m, nil
}

func (f *fakeRepo) GetByCode(_ context.Context, code string) (Material, error) {
	for _, m := range f.materials {
		if m.Code == code {
			return m, nil
		}
	}
	return Material{}, shared.ErrNotFound
}

func (f *fakeRepo) Create(_ context.Context, m Material) (Material, error) {
	for _, existing := range f.materials {
		if existing.Code == m.Code {
			return Material{}, shared.ErrDuplicate
		}
	}
	m.ID = f.nextID
	f.nextID++
	f.materials[m.ID] = m
	return m, nil
}

func (f *fakeRepo) Update(_ context.Context, id int64, m Material) error {
	if _, ok := f.materials[id]; !ok {
		return shared.ErrNotFound
	}
	m.ID = id
	f.materials[id] = m
	return nil
}

func (f *fakeRepo) UpdatePrice(_ context.Context, id int64, cost decimal.Decimal, effective time.Time, reason string, actorID int64) error {
	m, ok := f.materials[id]
	if !ok {
		return shared.ErrNotFound
	}
	m.CostPerKg = cost
	m.LastPriceUpdate = &effective
	f.materials[id] = m
	f.history[id] = append([]PriceHistory{{
		MaterialID:    id,
		CostPerKg:     cost,
		EffectiveDate: effective,
		Reason:        reason,
		CreatedBy:     actorID,
	}}, f.history[id]...)
	return nil
}

func (f *fakeRepo) PriceHistory(_ context.Context, materialID int64) ([]PriceHistory, error) {
	return f.history[materialID], nil
}

func (f *fakeRepo) ListMasterbatches(_ context.Context, _ shared.ListFilters) ([]Masterbatch, int, error) {
	out := []Masterbatch{}
	for _, mb := range f.masterbatches {
		out = append(out, mb)
	}
	return out, len(out), nil
}

func (f *fakeRepo) GetMasterbatch(_ context.Context, id int64) (Masterbatch, error) {
	mb, ok := f.masterbatches[id]
	if !ok {
		return Masterbatch{}, shared.ErrNotFound
	}
	return mb, nil
}

func (f *fakeRepo) CreateMasterbatch(_ context.Context, mb Masterbatch) (Masterbatch, error) {
	mb.ID = f.nextID
	f.nextID++
	f.masterbatches[mb.ID] = mb
	return mb, nil
}

func (f *fakeRepo) UpdateMasterbatch(_ context.Context, id int64, mb Masterbatch) error {
	if _, ok := f.masterbatches[id]; !ok {
		return shared.ErrNotFound
	}
	mb.ID = id
	f.masterbatches[id] = mb
	return nil
}

func TestCreateMaterialDefaults(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	_, err := svc.Create(context.Background(), Material{Name: "Polypropylene"}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(context.Background(), Material{
		Code: "PP-H101", Name: "Polypropylene", MaterialType: "PP",
		BarrelTempMinC: 240, BarrelTempMaxC: 200,
	}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)

	created, err := svc.Create(context.Background(), Material{
		Code: "PP-H101", Name: "Polypropylene Homopolymer", MaterialType: "PP",
		CostPerKg: decimal.RequireFromString("1.85"),
	}, 1)
	require.NoError(t, err)
	require.True(t, created.IsActive)
	require.NotNil(t, created.LastPriceUpdate)
}

func TestUpdatePriceAppendsHistory(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	created, err := svc.Create(context.Background(), Material{
		Code: "ABS-750", Name: "ABS Natural", MaterialType: "ABS",
		CostPerKg: decimal.RequireFromString("2.10"),
	}, 1)
	require.NoError(t, err)

	_, err = svc.UpdatePrice(context.Background(), created.ID, decimal.RequireFromString("-1"), time.Time{}, "", 1)
	require.ErrorIs(t, err, shared.ErrValidation)

	updated, err := svc.UpdatePrice(context.Background(), created.ID, decimal.RequireFromString("2.35"), time.Time{}, "supplier increase", 7)
	require.NoError(t, err)
	require.True(t, updated.CostPerKg.Equal(decimal.RequireFromString("2.35")))
	require.NotNil(t, updated.LastPriceUpdate)

	_, err = svc.UpdatePrice(context.Background(), created.ID, decimal.RequireFromString("2.28"), time.Time{}, "", 7)
	require.NoError(t, err)

	history, err := svc.PriceHistory(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.True(t, history[0].CostPerKg.Equal(decimal.RequireFromString("2.28")))
	require.Equal(t, "price update", history[0].Reason)
	require.Equal(t, "supplier increase", history[1].Reason)
	require.Equal(t, int64(7), history[0].CreatedBy)
}

func TestMasterbatchValidation(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	_, err := svc.CreateMasterbatch(context.Background(), Masterbatch{Code: "MB-RED"}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateMasterbatch(context.Background(), Masterbatch{
		Code: "MB-RED", Colour: "Red", MinRatioPercent: 4, MaxRatioPercent: 2,
	}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)

	created, err := svc.CreateMasterbatch(context.Background(), Masterbatch{
		Code: "MB-RED", Name: "Red 2% LDPE carrier", Colour: "Red", ColourCode: "RAL3020",
		TypicalRatioPercent: 2, MinRatioPercent: 1, MaxRatioPercent: 4,
	}, 1)
	require.NoError(t, err)
	require.True(t, created.IsActive)
}
