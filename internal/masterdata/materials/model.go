package materials

import (
	"time"

	"github.com/shopspring/decimal"
)

// Material represents a polymer grade purchased for moulding.
type Material struct {
	ID           int64  `json:"id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	MaterialType string `json:"material_type"`
	Grade        string `json:"grade"`
	Manufacturer string `json:"manufacturer"`
	SupplierID   *int64 `json:"supplier_id"`
	SupplierCode string `json:"supplier_code"`

	MFI     float64 `json:"mfi"`
	Density float64 `json:"density"`
	Colour  string  `json:"colour"`

	CostPerKg       decimal.Decimal `json:"cost_per_kg"`
	LastPriceUpdate *time.Time      `json:"last_price_update"`

	CurrentStockKg float64 `json:"current_stock_kg"`
	MinStockKg     float64 `json:"min_stock_kg"`

	BarrelTempMinC float64 `json:"barrel_temp_min_c"`
	BarrelTempMaxC float64 `json:"barrel_temp_max_c"`
	MouldTempMinC  float64 `json:"mould_temp_min_c"`
	MouldTempMaxC  float64 `json:"mould_temp_max_c"`
	DryingTempC    float64 `json:"drying_temp_c"`
	DryingTimeH    float64 `json:"drying_time_hours"`

	IsActive  bool      `json:"is_active"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PriceHistory records a cost change for a material.
type PriceHistory struct {
	ID            int64           `json:"id"`
	MaterialID    int64           `json:"material_id"`
	CostPerKg     decimal.Decimal `json:"cost_per_kg"`
	EffectiveDate time.Time       `json:"effective_date"`
	Reason        string          `json:"reason"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Masterbatch represents a colourant concentrate dosed into materials.
type Masterbatch struct {
	ID                  int64           `json:"id"`
	Code                string          `json:"code"`
	Name                string          `json:"name"`
	Colour              string          `json:"colour"`
	ColourCode          string          `json:"colour_code"`
	SupplierID          *int64          `json:"supplier_id"`
	CompatibleMaterials string          `json:"compatible_materials"`
	TypicalRatioPercent float64         `json:"typical_ratio_percent"`
	MinRatioPercent     float64         `json:"min_ratio_percent"`
	MaxRatioPercent     float64         `json:"max_ratio_percent"`
	CostPerKg           decimal.Decimal `json:"cost_per_kg"`
	CurrentStockKg      float64         `json:"current_stock_kg"`
	IsActive            bool            `json:"is_active"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// IsLowStock reports whether the material sits at or below its minimum.
func (m Material) IsLowStock() bool {
	return m.MinStockKg > 0 && m.CurrentStockKg <= m.MinStockKg
}
