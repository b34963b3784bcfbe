package dataio

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mouldworks/mouldworks/internal/inventory"
	"github.com/mouldworks/mouldworks/internal/masterdata/customers"
	"github.com/mouldworks/mouldworks/internal/masterdata/locations"
	"github.com/mouldworks/mouldworks/internal/masterdata/machines"
	"github.com/mouldworks/mouldworks/internal/masterdata/materials"
	"github.com/mouldworks/mouldworks/internal/masterdata/moulds"
	"github.com/mouldworks/mouldworks/internal/masterdata/suppliers"
)

// rowReader overlays non-empty CSV cells onto a record, accumulating
// the first parse error. Empty cells leave the destination untouched,
// which is what makes re-imports non-destructive.
type rowReader struct {
	row map[string]string
	err error
}

func (r *rowReader) str(name string, dst *string) {
	if v := r.row[name]; v != "" {
		*dst = v
	}
}

func (r *rowReader) float(name string, dst *float64) {
	if r.err != nil || r.row[name] == "" {
		return
	}
	v, err := parseFloatField(r.row, name)
	if err != nil {
		r.err = err
		return
	}
	*dst = v
}

func (r *rowReader) int(name string, dst *int) {
	if r.err != nil || r.row[name] == "" {
		return
	}
	v, err := parseIntField(r.row, name)
	if err != nil {
		r.err = err
		return
	}
	*dst = v
}

func (r *rowReader) int64(name string, dst *int64) {
	if r.err != nil || r.row[name] == "" {
		return
	}
	v, err := parseInt64Field(r.row, name)
	if err != nil {
		r.err = err
		return
	}
	*dst = v
}

func (r *rowReader) dec(name string, dst *decimal.Decimal) {
	if r.err != nil || r.row[name] == "" {
		return
	}
	v, err := parseDecimalField(r.row, name)
	if err != nil {
		r.err = err
		return
	}
	*dst = v
}

func (r *rowReader) boolean(name string, dst *bool) {
	if r.err != nil || r.row[name] == "" {
		return
	}
	v, err := parseBoolField(r.row, name)
	if err != nil {
		r.err = err
		return
	}
	*dst = v
}

// ItemsPort is the inventory surface the items entity needs.
type ItemsPort interface {
	All(ctx context.Context) ([]inventory.Item, error)
	Create(ctx context.Context, item inventory.Item, actorID int64) (inventory.Item, error)
	Update(ctx context.Context, id int64, item inventory.Item, actorID int64) error
}

// RegisterItems wires the finished-goods catalogue into the registry.
// Rows match by SKU, case-insensitive.
func (s *Service) RegisterItems(port ItemsPort) {
	s.register(&entitySpec{
		name: "items",
		columns: []column{
			{"sku", true}, {"name", true}, {"description", false}, {"barcode", false},
			{"category", false}, {"item_type", false}, {"unit_of_measure", false},
			{"unit_cost", false}, {"selling_price", false},
			{"reorder_point", false}, {"min_stock_level", false}, {"max_stock_level", false},
			{"part_weight_grams", false}, {"runner_weight_grams", false}, {"cavities", false},
			{"ideal_cycle_time", false}, {"setup_time_hours", false},
		},
		example: []string{
			"CLP-4020", "Clip Housing 40x20", "Black nylon clip housing", "5012345678900",
			"clips", "manufactured", "each", "0.12", "0.35", "5000", "2000", "50000",
			"4.5", "1.2", "4", "22", "1.5",
		},
		export: func(ctx context.Context) ([][]string, error) {
			items, err := port.All(ctx)
			if err != nil {
				return nil, err
			}
			rows := make([][]string, 0, len(items))
			for _, it := range items {
				rows = append(rows, []string{
					it.SKU, it.Name, it.Description, it.Barcode,
					it.Category, it.ItemType, it.UnitOfMeasure,
					it.UnitCost.String(), it.SellingPrice.String(),
					formatFloat(it.ReorderPoint), formatFloat(it.MinStockLevel), formatFloat(it.MaxStockLevel),
					formatFloat(it.PartWeightGrams), formatFloat(it.RunnerWeightGrams), formatInt(it.Cavities),
					formatFloat(it.IdealCycleTime), formatFloat(it.SetupTimeHours),
				})
			}
			return rows, nil
		},
		upsert: func(ctx context.Context, row map[string]string, actorID int64) (rowOutcome, error) {
			existing, err := port.All(ctx)
			if err != nil {
				return 0, err
			}
			key := strings.ToUpper(row["sku"])
			item := inventory.Item{IsActive: true}
			var matchID int64
			for _, it := range existing {
				if strings.ToUpper(it.SKU) == key {
					item = it
					matchID = it.ID
					break
				}
			}
			rr := &rowReader{row: row}
			rr.str("sku", &item.SKU)
			rr.str("name", &item.Name)
			rr.str("description", &item.Description)
			rr.str("barcode", &item.Barcode)
			rr.str("category", &item.Category)
			rr.str("item_type", &item.ItemType)
			rr.str("unit_of_measure", &item.UnitOfMeasure)
			rr.dec("unit_cost", &item.UnitCost)
			rr.dec("selling_price", &item.SellingPrice)
			rr.float("reorder_point", &item.ReorderPoint)
			rr.float("min_stock_level", &item.MinStockLevel)
			rr.float("max_stock_level", &item.MaxStockLevel)
			rr.float("part_weight_grams", &item.PartWeightGrams)
			rr.float("runner_weight_grams", &item.RunnerWeightGrams)
			rr.int("cavities", &item.Cavities)
			rr.float("ideal_cycle_time", &item.IdealCycleTime)
			rr.float("setup_time_hours", &item.SetupTimeHours)
			if rr.err != nil {
				return 0, rr.err
			}
			if matchID > 0 {
				return outcomeUpdated, port.Update(ctx, matchID, item, actorID)
			}
			_, err = port.Create(ctx, item, actorID)
			return outcomeCreated, err
		},
	})
}

// LocationsPort is the warehouse-location surface.
type LocationsPort interface {
	All(ctx context.Context) ([]locations.Location, error)
	Create(ctx context.Context, loc locations.Location, actorID int64) (locations.Location, error)
	Update(ctx context.Context, id int64, loc locations.Location, actorID int64) error
}

// RegisterLocations wires storage locations. Rows match by code.
func (s *Service) RegisterLocations(port LocationsPort) {
	s.register(&entitySpec{
		name: "locations",
		columns: []column{
			{"code", true}, {"name", true}, {"zone", false},
			{"location_type", false}, {"max_capacity", false},
		},
		example: []string{"C-01", "Container 1", "yard", "container", "40"},
		export: func(ctx context.Context) ([][]string, error) {
			locs, err := port.All(ctx)
			if err != nil {
				return nil, err
			}
			rows := make([][]string, 0, len(locs))
			for _, l := range locs {
				rows = append(rows, []string{l.Code, l.Name, l.Zone, l.LocationType, formatInt(l.MaxCapacity)})
			}
			return rows, nil
		},
		upsert: func(ctx context.Context, row map[string]string, actorID int64) (rowOutcome, error) {
			existing, err := port.All(ctx)
			if err != nil {
				return 0, err
			}
			key := strings.ToUpper(row["code"])
			loc := locations.Location{IsActive: true, LocationType: locations.TypeRack}
			var matchID int64
			for _, l := range existing {
				if strings.ToUpper(l.Code) == key {
					loc = l
					matchID = l.ID
					break
				}
			}
			rr := &rowReader{row: row}
			rr.str("code", &loc.Code)
			rr.str("name", &loc.Name)
			rr.str("zone", &loc.Zone)
			rr.str("location_type", &loc.LocationType)
			rr.int("max_capacity", &loc.MaxCapacity)
			if rr.err != nil {
				return 0, rr.err
			}
			if matchID > 0 {
				return outcomeUpdated, port.Update(ctx, matchID, loc, actorID)
			}
			_, err = port.Create(ctx, loc, actorID)
			return outcomeCreated, err
		},
	})
}

// CustomersPort is the customer-book surface.
type CustomersPort interface {
	All(ctx context.Context) ([]customers.Customer, error)
	Create(ctx context.Context, c customers.Customer, actorID int64) (customers.Customer, error)
	Update(ctx context.Context, id int64, c customers.Customer, actorID int64) error
}

// RegisterCustomers wires the customer book. Rows match by customer
// number when given, falling back to name.
func (s *Service) RegisterCustomers(port CustomersPort) {
	s.register(&entitySpec{
		name: "customers",
		columns: []column{
			{"customer_number", false}, {"name", true}, {"contact_name", false},
			{"email", false}, {"phone", false}, {"billing_address", false},
			{"delivery_address", false}, {"delivery_city", false}, {"delivery_postcode", false},
			{"credit_terms_days", false}, {"is_jit", false}, {"notes", false},
		},
		example: []string{
			"CUST00001", "Acme Fixings Ltd", "Jo Smith", "orders@acmefixings.example", "0113 4960000",
			"1 Works Lane, Leeds", "Unit 4, Estate Road", "Leeds", "LS1 1AA", "30", "no", "",
		},
		export: func(ctx context.Context) ([][]string, error) {
			all, err := port.All(ctx)
			if err != nil {
				return nil, err
			}
			rows := make([][]string, 0, len(all))
			for _, c := range all {
				rows = append(rows, []string{
					c.CustomerNumber, c.Name, c.ContactName, c.Email, c.Phone, c.BillingAddress,
					c.DeliveryAddress, c.DeliveryCity, c.DeliveryPostcode,
					formatInt(c.CreditTermsDays), formatBool(c.IsJIT), c.Notes,
				})
			}
			return rows, nil
		},
		upsert: func(ctx context.Context, row map[string]string, actorID int64) (rowOutcome, error) {
			existing, err := port.All(ctx)
			if err != nil {
				return 0, err
			}
			number := strings.ToUpper(row["customer_number"])
			name := strings.ToLower(row["name"])
			c := customers.Customer{IsActive: true}
			var matchID int64
			for _, cand := range existing {
				if number != "" && strings.ToUpper(cand.CustomerNumber) == number {
					c = cand
					matchID = cand.ID
					break
				}
				if number == "" && strings.ToLower(cand.Name) == name {
					c = cand
					matchID = cand.ID
					break
				}
			}
			rr := &rowReader{row: row}
			rr.str("customer_number", &c.CustomerNumber)
			rr.str("name", &c.Name)
			rr.str("contact_name", &c.ContactName)
			rr.str("email", &c.Email)
			rr.str("phone", &c.Phone)
			rr.str("billing_address", &c.BillingAddress)
			rr.str("delivery_address", &c.DeliveryAddress)
			rr.str("delivery_city", &c.DeliveryCity)
			rr.str("delivery_postcode", &c.DeliveryPostcode)
			rr.int("credit_terms_days", &c.CreditTermsDays)
			rr.boolean("is_jit", &c.IsJIT)
			rr.str("notes", &c.Notes)
			if rr.err != nil {
				return 0, rr.err
			}
			if matchID > 0 {
				return outcomeUpdated, port.Update(ctx, matchID, c, actorID)
			}
			_, err = port.Create(ctx, c, actorID)
			return outcomeCreated, err
		},
	})
}

// SuppliersPort is the supplier-book surface.
type SuppliersPort interface {
	All(ctx context.Context) ([]suppliers.Supplier, error)
	Create(ctx context.Context, sp suppliers.Supplier, actorID int64) (suppliers.Supplier, error)
	Update(ctx context.Context, id int64, sp suppliers.Supplier, actorID int64) error
}

// RegisterSuppliers wires the supplier book. Rows match by code,
// falling back to name.
func (s *Service) RegisterSuppliers(port SuppliersPort) {
	s.register(&entitySpec{
		name: "suppliers",
		columns: []column{
			{"code", true}, {"name", true}, {"contact_name", false}, {"email", false},
			{"phone", false}, {"address", false}, {"payment_terms", false},
			{"lead_time_days", false}, {"minimum_order_kg", false}, {"notes", false},
		},
		example: []string{
			"POLY01", "Northern Polymers", "Sam Patel", "sales@npoly.example", "0161 4960000",
			"12 Trading Park, Manchester", "net 30", "10", "500", "",
		},
		export: func(ctx context.Context) ([][]string, error) {
			all, err := port.All(ctx)
			if err != nil {
				return nil, err
			}
			rows := make([][]string, 0, len(all))
			for _, sp := range all {
				rows = append(rows, []string{
					sp.Code, sp.Name, sp.ContactName, sp.Email, sp.Phone, sp.Address,
					sp.PaymentTerms, formatInt(sp.LeadTimeDays), formatFloat(sp.MinimumOrderKg), sp.Notes,
				})
			}
			return rows, nil
		},
		upsert: func(ctx context.Context, row map[string]string, actorID int64) (rowOutcome, error) {
			existing, err := port.All(ctx)
			if err != nil {
				return 0, err
			}
			code := strings.ToUpper(row["code"])
			name := strings.ToLower(row["name"])
			sp := suppliers.Supplier{IsActive: true}
			var matchID int64
			for _, cand := range existing {
				if strings.ToUpper(cand.Code) == code ||
					(cand.Code == "" && strings.ToLower(cand.Name) == name) {
					sp = cand
					matchID = cand.ID
					break
				}
			}
			rr := &rowReader{row: row}
			rr.str("code", &sp.Code)
			rr.str("name", &sp.Name)
			rr.str("contact_name", &sp.ContactName)
			rr.str("email", &sp.Email)
			rr.str("phone", &sp.Phone)
			rr.str("address", &sp.Address)
			rr.str("payment_terms", &sp.PaymentTerms)
			rr.int("lead_time_days", &sp.LeadTimeDays)
			rr.float("minimum_order_kg", &sp.MinimumOrderKg)
			rr.str("notes", &sp.Notes)
			if rr.err != nil {
				return 0, rr.err
			}
			if matchID > 0 {
				return outcomeUpdated, port.Update(ctx, matchID, sp, actorID)
			}
			_, err = port.Create(ctx, sp, actorID)
			return outcomeCreated, err
		},
	})
}

// MaterialsPort is the polymer-grade surface.
type MaterialsPort interface {
	All(ctx context.Context) ([]materials.Material, error)
	Create(ctx context.Context, m materials.Material, actorID int64) (materials.Material, error)
	Update(ctx context.Context, id int64, m materials.Material, actorID int64) error
}

// RegisterMaterials wires polymer grades. Rows match by code.
func (s *Service) RegisterMaterials(port MaterialsPort) {
	s.register(&entitySpec{
		name: "materials",
		columns: []column{
			{"code", true}, {"name", true}, {"material_type", false}, {"grade", false},
			{"manufacturer", false}, {"mfi", false}, {"density", false}, {"colour", false},
			{"cost_per_kg", false}, {"min_stock_kg", false}, {"notes", false},
		},
		example: []string{
			"PP-H30", "Polypropylene Homopolymer", "PP", "H30G", "Borealis",
			"30", "0.905", "natural", "1.45", "250", "",
		},
		export: func(ctx context.Context) ([][]string, error) {
			all, err := port.All(ctx)
			if err != nil {
				return nil, err
			}
			rows := make([][]string, 0, len(all))
			for _, m := range all {
				rows = append(rows, []string{
					m.Code, m.Name, m.MaterialType, m.Grade, m.Manufacturer,
					formatFloat(m.MFI), formatFloat(m.Density), m.Colour,
					m.CostPerKg.String(), formatFloat(m.MinStockKg), m.Notes,
				})
			}
			return rows, nil
		},
		upsert: func(ctx context.Context, row map[string]string, actorID int64) (rowOutcome, error) {
			existing, err := port.All(ctx)
			if err != nil {
				return 0, err
			}
			code := strings.ToUpper(row["code"])
			m := materials.Material{IsActive: true}
			var matchID int64
			for _, cand := range existing {
				if strings.ToUpper(cand.Code) == code {
					m = cand
					matchID = cand.ID
					break
				}
			}
			rr := &rowReader{row: row}
			rr.str("code", &m.Code)
			rr.str("name", &m.Name)
			rr.str("material_type", &m.MaterialType)
			rr.str("grade", &m.Grade)
			rr.str("manufacturer", &m.Manufacturer)
			rr.float("mfi", &m.MFI)
			rr.float("density", &m.Density)
			rr.str("colour", &m.Colour)
			rr.dec("cost_per_kg", &m.CostPerKg)
			rr.float("min_stock_kg", &m.MinStockKg)
			rr.str("notes", &m.Notes)
			if rr.err != nil {
				return 0, rr.err
			}
			if matchID > 0 {
				return outcomeUpdated, port.Update(ctx, matchID, m, actorID)
			}
			_, err = port.Create(ctx, m, actorID)
			return outcomeCreated, err
		},
	})
}

// MachinesPort is the press-list surface.
type MachinesPort interface {
	All(ctx context.Context) ([]machines.Machine, error)
	Create(ctx context.Context, m machines.Machine, actorID int64) (machines.Machine, error)
	Update(ctx context.Context, id int64, m machines.Machine, actorID int64) error
}

// RegisterMachines wires the press list. Rows match by code.
func (s *Service) RegisterMachines(port MachinesPort) {
	s.register(&entitySpec{
		name: "machines",
		columns: []column{
			{"code", true}, {"name", true}, {"manufacturer", false}, {"model", false},
			{"tonnage", false}, {"year", false}, {"display_order", false}, {"notes", false},
		},
		example: []string{"M01", "Press 1", "Arburg", "Allrounder 470C", "150", "2014", "1", ""},
		export: func(ctx context.Context) ([][]string, error) {
			all, err := port.All(ctx)
			if err != nil {
				return nil, err
			}
			rows := make([][]string, 0, len(all))
			for _, m := range all {
				rows = append(rows, []string{
					m.Code, m.Name, m.Manufacturer, m.Model,
					formatFloat(m.Tonnage), formatInt(m.Year), formatInt(m.DisplayOrder), m.Notes,
				})
			}
			return rows, nil
		},
		upsert: func(ctx context.Context, row map[string]string, actorID int64) (rowOutcome, error) {
			existing, err := port.All(ctx)
			if err != nil {
				return 0, err
			}
			code := strings.ToUpper(row["code"])
			m := machines.Machine{IsActive: true, Status: machines.StatusIdle}
			var matchID int64
			for _, cand := range existing {
				if strings.ToUpper(cand.Code) == code {
					m = cand
					matchID = cand.ID
					break
				}
			}
			rr := &rowReader{row: row}
			rr.str("code", &m.Code)
			rr.str("name", &m.Name)
			rr.str("manufacturer", &m.Manufacturer)
			rr.str("model", &m.Model)
			rr.float("tonnage", &m.Tonnage)
			rr.int("year", &m.Year)
			rr.int("display_order", &m.DisplayOrder)
			rr.str("notes", &m.Notes)
			if rr.err != nil {
				return 0, rr.err
			}
			if matchID > 0 {
				return outcomeUpdated, port.Update(ctx, matchID, m, actorID)
			}
			_, err = port.Create(ctx, m, actorID)
			return outcomeCreated, err
		},
	})
}

// MouldsPort is the tool-register surface.
type MouldsPort interface {
	All(ctx context.Context) ([]moulds.Mould, error)
	Create(ctx context.Context, m moulds.Mould, actorID int64) (moulds.Mould, error)
	Update(ctx context.Context, id int64, m moulds.Mould, actorID int64) error
}

// RegisterMoulds wires the tool register. Rows match by mould number.
func (s *Service) RegisterMoulds(port MouldsPort) {
	s.register(&entitySpec{
		name: "moulds",
		columns: []column{
			{"mould_number", true}, {"name", true}, {"num_cavities", false},
			{"cycle_time_seconds", false}, {"shot_weight_grams", false},
			{"location_stored", false}, {"maintenance_interval_shots", false}, {"notes", false},
		},
		example: []string{"T-104", "Clip Housing 4-cav", "4", "22", "23.2", "Rack B2", "100000", ""},
		export: func(ctx context.Context) ([][]string, error) {
			all, err := port.All(ctx)
			if err != nil {
				return nil, err
			}
			rows := make([][]string, 0, len(all))
			for _, m := range all {
				rows = append(rows, []string{
					m.MouldNumber, m.Name, formatInt(m.NumCavities),
					formatFloat(m.CycleTimeSeconds), formatFloat(m.ShotWeightGrams),
					m.LocationStored, formatInt64(m.MaintenanceIntervalShots), m.Notes,
				})
			}
			return rows, nil
		},
		upsert: func(ctx context.Context, row map[string]string, actorID int64) (rowOutcome, error) {
			existing, err := port.All(ctx)
			if err != nil {
				return 0, err
			}
			number := strings.ToUpper(row["mould_number"])
			m := moulds.Mould{IsActive: true, Status: moulds.StatusAvailable}
			var matchID int64
			for _, cand := range existing {
				if strings.ToUpper(cand.MouldNumber) == number {
					m = cand
					matchID = cand.ID
					break
				}
			}
			rr := &rowReader{row: row}
			rr.str("mould_number", &m.MouldNumber)
			rr.str("name", &m.Name)
			rr.int("num_cavities", &m.NumCavities)
			rr.float("cycle_time_seconds", &m.CycleTimeSeconds)
			rr.float("shot_weight_grams", &m.ShotWeightGrams)
			rr.str("location_stored", &m.LocationStored)
			rr.int64("maintenance_interval_shots", &m.MaintenanceIntervalShots)
			rr.str("notes", &m.Notes)
			if rr.err != nil {
				return 0, rr.err
			}
			if matchID > 0 {
				return outcomeUpdated, port.Update(ctx, matchID, m, actorID)
			}
			_, err = port.Create(ctx, m, actorID)
			return outcomeCreated, err
		},
	})
}
