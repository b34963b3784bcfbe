package customers

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mouldworks/mouldworks/internal/masterdata/shared"
)

type fakeRepo struct {
	customers map[int64]Customer
	nextID    int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{customers: map[int64]Customer{}, nextID: 1}
}

func (f *fakeRepo) List(_ context.Context, _ shared.ListFilters) ([]Customer, int, error) {
	out := []Customer{}
	for _, c := range f.customers {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (Customer, error) {
	c, ok := f.customers[id]
	if !ok {
		return Customer{}, shared.ErrNotFound
	}
	return c, nil
}

func (f *fakeRepo) Search(_ context.Context, term string, limit int) ([]Customer, error) {
	out := []Customer{}
	for _, c := range f.customers {
		if strings.Contains(strings.ToLower(c.Name), strings.ToLower(term)) {
			out = append(out, c)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) Create(_ context.Context, c Customer) (Customer, error) {
	c.ID = f.nextID
	f.nextID++
	f.customers[c.ID] = c
	return c, nil
}

func (f *fakeRepo) Update(_ context.Context, id int64, c Customer) error {
	if _, ok := f.customers[id]; !ok {
		return shared.ErrNotFound
	}
	existing := f.customers[id]
	c.ID = id
	c.CustomerNumber = existing.CustomerNumber
	f.customers[id] = c
	return nil
}

func (f *fakeRepo) Deactivate(_ context.Context, id int64) error {
	c, ok := f.customers[id]
	if !ok {
		return shared.ErrNotFound
	}
	c.IsActive = false
	f.customers[id] = c
	return nil
}

func (f *fakeRepo) NextNumber(_ context.Context) (string, error) {
	return fmt.Sprintf("CUST%05d", len(f.customers)+1), nil
}

func TestCreateAssignsNumberAndDefaults(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	created, err := svc.Create(context.Background(), Customer{Name: "Acme Mouldings"}, 1)
	require.NoError(t, err)
	require.Equal(t, "CUST00001", created.CustomerNumber)
	require.Equal(t, 30, created.CreditTermsDays)
	require.True(t, created.IsActive)

	second, err := svc.Create(context.Background(), Customer{Name: "Borche Spares"}, 1)
	require.NoError(t, err)
	require.Equal(t, "CUST00002", second.CustomerNumber)
}

func TestCreateRequiresName(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	_, err := svc.Create(context.Background(), Customer{}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(context.Background(), Customer{Name: "X", Email: "not-an-email"}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSearchTrimsAndSkipsEmpty(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	_, err := svc.Create(context.Background(), Customer{Name: "Acme Mouldings"}, 1)
	require.NoError(t, err)

	found, err := svc.Search(context.Background(), "  acme ")
	require.NoError(t, err)
	require.Len(t, found, 1)

	found, err = svc.Search(context.Background(), "   ")
	require.NoError(t, err)
	require.Empty(t, found)
}
