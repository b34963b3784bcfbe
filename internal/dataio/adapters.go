package dataio

import (
	"context"

	"github.com/mouldworks/mouldworks/internal/inventory"
	"github.com/mouldworks/mouldworks/internal/masterdata/customers"
	"github.com/mouldworks/mouldworks/internal/masterdata/locations"
	"github.com/mouldworks/mouldworks/internal/masterdata/machines"
	"github.com/mouldworks/mouldworks/internal/masterdata/materials"
	"github.com/mouldworks/mouldworks/internal/masterdata/moulds"
	mdshared "github.com/mouldworks/mouldworks/internal/masterdata/shared"
	"github.com/mouldworks/mouldworks/internal/masterdata/suppliers"
)

// The list endpoints cap their page size, so the adapters walk pages
// until the reported total is reached.

func collectPages[T any](list func(page int) ([]T, int, error)) ([]T, error) {
	all := []T{}
	for page := 1; ; page++ {
		batch, total, err := list(page)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) == 0 || len(all) >= total {
			return all, nil
		}
	}
}

// ItemsAdapter exposes the inventory item catalogue to the importer.
type ItemsAdapter struct {
	Inventory *inventory.Service
}

func (a *ItemsAdapter) All(ctx context.Context) ([]inventory.Item, error) {
	return collectPages(func(page int) ([]inventory.Item, int, error) {
		return a.Inventory.ListItems(ctx, inventory.ItemFilter{Page: page, Limit: 200})
	})
}

func (a *ItemsAdapter) Create(ctx context.Context, item inventory.Item, actorID int64) (inventory.Item, error) {
	return a.Inventory.CreateItem(ctx, item, actorID)
}

func (a *ItemsAdapter) Update(ctx context.Context, id int64, item inventory.Item, actorID int64) error {
	return a.Inventory.UpdateItem(ctx, id, item, actorID)
}

// LocationsAdapter exposes warehouse locations to the importer.
type LocationsAdapter struct {
	Locations *locations.Service
}

func (a *LocationsAdapter) All(ctx context.Context) ([]locations.Location, error) {
	return collectPages(func(page int) ([]locations.Location, int, error) {
		return a.Locations.List(ctx, mdshared.ListFilters{Page: page, Limit: mdshared.MaxLimit})
	})
}

func (a *LocationsAdapter) Create(ctx context.Context, loc locations.Location, actorID int64) (locations.Location, error) {
	return a.Locations.Create(ctx, loc, actorID)
}

func (a *LocationsAdapter) Update(ctx context.Context, id int64, loc locations.Location, actorID int64) error {
	return a.Locations.Update(ctx, id, loc, actorID)
}

// CustomersAdapter exposes the customer book to the importer.
type CustomersAdapter struct {
	Customers *customers.Service
}

func (a *CustomersAdapter) All(ctx context.Context) ([]customers.Customer, error) {
	return collectPages(func(page int) ([]customers.Customer, int, error) {
		return a.Customers.List(ctx, mdshared.ListFilters{Page: page, Limit: mdshared.MaxLimit})
	})
}

func (a *CustomersAdapter) Create(ctx context.Context, c customers.Customer, actorID int64) (customers.Customer, error) {
	return a.Customers.Create(ctx, c, actorID)
}

func (a *CustomersAdapter) Update(ctx context.Context, id int64, c customers.Customer, actorID int64) error {
	return a.Customers.Update(ctx, id, c, actorID)
}

// SuppliersAdapter exposes the supplier book to the importer.
type SuppliersAdapter struct {
	Suppliers *suppliers.Service
}

func (a *SuppliersAdapter) All(ctx context.Context) ([]suppliers.Supplier, error) {
	return collectPages(func(page int) ([]suppliers.Supplier, int, error) {
		return a.Suppliers.List(ctx, mdshared.ListFilters{Page: page, Limit: mdshared.MaxLimit})
	})
}

func (a *SuppliersAdapter) Create(ctx context.Context, sp suppliers.Supplier, actorID int64) (suppliers.Supplier, error) {
	return a.Suppliers.Create(ctx, sp, actorID)
}

func (a *SuppliersAdapter) Update(ctx context.Context, id int64, sp suppliers.Supplier, actorID int64) error {
	return a.Suppliers.Update(ctx, id, sp, actorID)
}

// MaterialsAdapter exposes polymer grades to the importer.
type MaterialsAdapter struct {
	Materials *materials.Service
}

func (a *MaterialsAdapter) All(ctx context.Context) ([]materials.Material, error) {
	return collectPages(func(page int) ([]materials.Material, int, error) {
		return a.Materials.List(ctx, mdshared.ListFilters{Page: page, Limit: mdshared.MaxLimit})
	})
}

func (a *MaterialsAdapter) Create(ctx context.Context, m materials.Material, actorID int64) (materials.Material, error) {
	return a.Materials.Create(ctx, m, actorID)
}

func (a *MaterialsAdapter) Update(ctx context.Context, id int64, m materials.Material, actorID int64) error {
	_, err := a.Materials.Update(ctx, id, m, actorID)
	return err
}

// MachinesAdapter exposes the press list to the importer.
type MachinesAdapter struct {
	Machines *machines.Service
}

func (a *MachinesAdapter) All(ctx context.Context) ([]machines.Machine, error) {
	return collectPages(func(page int) ([]machines.Machine, int, error) {
		return a.Machines.List(ctx, mdshared.ListFilters{Page: page, Limit: mdshared.MaxLimit})
	})
}

func (a *MachinesAdapter) Create(ctx context.Context, m machines.Machine, actorID int64) (machines.Machine, error) {
	return a.Machines.Create(ctx, m, actorID)
}

func (a *MachinesAdapter) Update(ctx context.Context, id int64, m machines.Machine, actorID int64) error {
	return a.Machines.Update(ctx, id, m, actorID)
}

// MouldsAdapter exposes the tool register to the importer.
type MouldsAdapter struct {
	Moulds *moulds.Service
}

func (a *MouldsAdapter) All(ctx context.Context) ([]moulds.Mould, error) {
	return collectPages(func(page int) ([]moulds.Mould, int, error) {
		return a.Moulds.List(ctx, mdshared.ListFilters{Page: page, Limit: mdshared.MaxLimit})
	})
}

func (a *MouldsAdapter) Create(ctx context.Context, m moulds.Mould, actorID int64) (moulds.Mould, error) {
	return a.Moulds.Create(ctx, m, actorID)
}

func (a *MouldsAdapter) Update(ctx context.Context, id int64, m moulds.Mould, actorID int64) error {
	return a.Moulds.Update(ctx, id, m, actorID)
}
