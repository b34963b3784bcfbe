package suppliers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mouldworks/mouldworks/internal/masterdata/shared"
)

type fakeRepo struct {
	suppliers map[int64]Supplier
	nextID    int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{suppliers: map[int64]Supplier{}, nextID: 1}
}

func (f *fakeRepo) List(_ context.Context, _ shared.ListFilters) ([]Supplier, int, error) {
	out := []Supplier{}
	for _, s := range f.suppliers {
		out = append(out, s)
	}
	return out, len(out), nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (Supplier, error) {
	s, ok := f.suppliers[id]
	if !ok {
		return Supplier{}, shared.ErrNotFound
	}
	return s, nil
}

func (f *fakeRepo) Create(_ context.Context, s Supplier) (Supplier, error) {
	for _, existing := range f.suppliers {
		if existing.Code == s.Code {
			return Supplier{}, shared.ErrDuplicate
		}
	}
	s.ID = f.nextID
	f.nextID++
	f.suppliers[s.ID] = s
	return s, nil
}

func (f *fakeRepo) Update(_ context.Context, id int64, s Supplier) error {
	if _, ok := f.suppliers[id]; !ok {
		return shared.ErrNotFound
	}
	s.ID = id
	f.suppliers[id] = s
	return nil
}

func (f *fakeRepo) Delete(_ context.Context, id int64) error {
	s, ok := f.suppliers[id]
	if !ok {
		return shared.ErrNotFound
	}
	s.IsActive = false
	f.suppliers[id] = s
	return nil
}

func TestCreateSupplierValidation(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	_, err := svc.Create(context.Background(), Supplier{Name: "Polymer Distributors"}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(context.Background(), Supplier{Code: "PD", Name: "Polymer Distributors", Email: "not-an-email"}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(context.Background(), Supplier{Code: "PD", Name: "Polymer Distributors", LeadTimeDays: -5}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)

	created, err := svc.Create(context.Background(), Supplier{
		Code: "PD", Name: "Polymer Distributors", Email: "sales@pd.example",
		PaymentTerms: "30 days", LeadTimeDays: 10, MinimumOrderKg: 500,
	}, 1)
	require.NoError(t, err)
	require.True(t, created.IsActive)
	require.NotZero(t, created.ID)
}

func TestDeactivateSupplierKeepsRecord(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	created, err := svc.Create(context.Background(), Supplier{Code: "PD", Name: "Polymer Distributors"}, 1)
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(context.Background(), created.ID, 1))
	got, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
}
