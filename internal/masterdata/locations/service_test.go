package locations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mouldworks/mouldworks/internal/masterdata/shared"
)

type fakeRepo struct {
	locations map[int64]Location
	contents  map[int64][]Contents
	nextID    int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{locations: map[int64]Location{}, contents: map[int64][]Contents{}, nextID: 1}
}

func (f *fakeRepo) List(_ context.Context, _ shared.ListFilters) ([]Location, int, error) {
	out := []Location{}
	for _, loc := range f.locations {
		out = append(out, loc)
	}
	return out, len(out), nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (Location, error) {
	loc, ok := f.locations[id]
	if !ok {
		return Location{}, shared.ErrNotFound
	}
	return loc, nil
}

func (f *fakeRepo) GetByCode(_ context.Context, code string) (Location, error) {
	for _, loc := range f.locations {
		if loc.Code == code {
			return loc, nil
		}
	}
	return Location{}, shared.ErrNotFound
}

func (f *fakeRepo) Create(_ context.Context, loc Location) (Location, error) {
	for _, existing := range f.locations {
		if existing.Code == loc.Code {
			return Location{}, shared.ErrDuplicate
		}
	}
	loc.ID = f.nextID
	f.nextID++
	f.locations[loc.ID] = loc
	return loc, nil
}

func (f *fakeRepo) Update(_ context.Context, id int64, loc Location) error {
	if _, ok := f.locations[id]; !ok {
		return shared.ErrNotFound
	}
	loc.ID = id
	f.locations[id] = loc
	return nil
}

func (f *fakeRepo) Delete(_ context.Context, id int64) error {
	loc, ok := f.locations[id]
	if !ok {
		return shared.ErrNotFound
	}
	loc.IsActive = false
	f.locations[id] = loc
	return nil
}

func (f *fakeRepo) Contents(_ context.Context, id int64) ([]Contents, error) {
	return f.contents[id], nil
}

func TestGenerateCode(t *testing.T) {
	require.Equal(t, "CONT-R01-B02", GenerateCode("cont", 1, 2, 0))
	require.Equal(t, "RACK-R12-B03-S04", GenerateCode("rack", 12, 3, 4))
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	_, err := svc.Create(context.Background(), Location{Name: "Container 1"}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(context.Background(), Location{Code: "CONT-R01-B01", Name: "Container 1", LocationType: "basement"}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)

	created, err := svc.Create(context.Background(), Location{Code: "CONT-R01-B01", Name: "Container 1", LocationType: TypeContainer}, 1)
	require.NoError(t, err)
	require.True(t, created.IsActive)
	require.NotZero(t, created.ID)
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	_, err := svc.Create(context.Background(), Location{Code: "CONT-R01-B01", Name: "A"}, 1)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), Location{Code: "CONT-R01-B01", Name: "B"}, 1)
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestDeactivateBlockedWhileStocked(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	created, err := svc.Create(context.Background(), Location{Code: "CONT-R01-B01", Name: "A"}, 1)
	require.NoError(t, err)

	repo.contents[created.ID] = []Contents{{ItemID: 9, SKU: "WIDGET"}}
	err = svc.Deactivate(context.Background(), created.ID, 1)
	require.ErrorIs(t, err, shared.ErrValidation)

	repo.contents[created.ID] = nil
	require.NoError(t, svc.Deactivate(context.Background(), created.ID, 1))
	loc, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.False(t, loc.IsActive)
}
