// Package masterdata groups the reference data the rest of the system hangs
// off: storage locations, customers, materials and masterbatches, suppliers,
// machines and moulds with their setup sheets.
package masterdata

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mouldworks/mouldworks/internal/masterdata/customers"
	"github.com/mouldworks/mouldworks/internal/masterdata/locations"
	"github.com/mouldworks/mouldworks/internal/masterdata/machines"
	"github.com/mouldworks/mouldworks/internal/masterdata/materials"
	"github.com/mouldworks/mouldworks/internal/masterdata/moulds"
	"github.com/mouldworks/mouldworks/internal/masterdata/suppliers"
	"github.com/mouldworks/mouldworks/internal/rbac"
	"github.com/mouldworks/mouldworks/internal/shared"
)

// Handler aggregates the master data sub-handlers under one mount point.
type Handler struct {
	locations *locations.Handler
	customers *customers.Handler
	materials *materials.Handler
	suppliers *suppliers.Handler
	machines  *machines.Handler
	moulds    *moulds.Handler

	// Services exposed for other modules that need master data lookups.
	Locations *locations.Service
	Customers *customers.Service
	Materials *materials.Service
	Suppliers *suppliers.Service
	Machines  *machines.Service
	Moulds    *moulds.Service
}

// NewHandler wires repositories, services and HTTP handlers for every master
// data entity against the shared pool and audit log.
func NewHandler(logger *slog.Logger, pool *pgxpool.Pool, audit *shared.AuditLogger, rbacMW rbac.Middleware) *Handler {
	locationSvc := locations.NewService(locations.NewRepository(pool), audit)
	customerSvc := customers.NewService(customers.NewRepository(pool), audit)
	materialSvc := materials.NewService(materials.NewRepository(pool), audit)
	supplierSvc := suppliers.NewService(suppliers.NewRepository(pool), audit)
	machineSvc := machines.NewService(machines.NewRepository(pool), audit)
	mouldSvc := moulds.NewService(moulds.NewRepository(pool), audit)

	return &Handler{
		locations: locations.NewHandler(logger, locationSvc, rbacMW),
		customers: customers.NewHandler(logger, customerSvc, rbacMW),
		materials: materials.NewHandler(logger, materialSvc, rbacMW),
		suppliers: suppliers.NewHandler(logger, supplierSvc, rbacMW),
		machines:  machines.NewHandler(logger, machineSvc, rbacMW),
		moulds:    moulds.NewHandler(logger, mouldSvc, rbacMW),

		Locations: locationSvc,
		Customers: customerSvc,
		Materials: materialSvc,
		Suppliers: supplierSvc,
		Machines:  machineSvc,
		Moulds:    mouldSvc,
	}
}

// MountRoutes registers every master data entity under its own prefix.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/locations", h.locations.MountRoutes)
	r.Route("/customers", h.customers.MountRoutes)
	r.Route("/materials", h.materials.MountRoutes)
	r.Route("/suppliers", h.suppliers.MountRoutes)
	r.Route("/machines", h.machines.MountRoutes)
	r.Route("/moulds", h.moulds.MountRoutes)
}
