package moulds

import (
	"time"
)

// Mould statuses.
const (
	StatusAvailable      = "available"
	StatusInUse          = "in_use"
	StatusMaintenance    = "maintenance"
	StatusAwaitingRepair = "awaiting_repair"
)

// ValidStatuses lists the accepted mould statuses.
var ValidStatuses = []string{StatusAvailable, StatusInUse, StatusMaintenance, StatusAwaitingRepair}

// Mould represents an injection mould tool.
type Mould struct {
	ID               int64   `json:"id"`
	MouldNumber      string  `json:"mould_number"`
	Name             string  `json:"name"`
	NumCavities      int     `json:"num_cavities"`
	CycleTimeSeconds float64 `json:"cycle_time_seconds"`
	ShotWeightGrams  float64 `json:"shot_weight_grams"`
	Status           string  `json:"status"`
	LocationStored   string  `json:"location_stored"`

	LastMaintenanceDate      *time.Time `json:"last_maintenance_date"`
	NextMaintenanceDate      *time.Time `json:"next_maintenance_date"`
	MaintenanceIntervalShots int64      `json:"maintenance_interval_shots"`
	TotalShots               int64      `json:"total_shots"`
	ShotsSinceMaintenance    int64      `json:"shots_since_maintenance"`
	IsMaintenanceDue         bool       `json:"is_maintenance_due"`

	IsActive  bool      `json:"is_active"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LinkedItem is an item this mould can produce.
type LinkedItem struct {
	ItemID int64  `json:"item_id"`
	SKU    string `json:"sku"`
	Name   string `json:"name"`
}

// SetupSheet holds the approved process settings for a mould and item pair.
// Sheets are versioned; exactly one version per pair is current.
type SetupSheet struct {
	ID        int64 `json:"id"`
	MouldID   int64 `json:"mould_id"`
	ItemID    int64 `json:"item_id"`
	Version   int   `json:"version"`
	IsCurrent bool  `json:"is_current"`

	BarrelTempZone1C float64 `json:"barrel_temp_zone1_c"`
	BarrelTempZone2C float64 `json:"barrel_temp_zone2_c"`
	BarrelTempZone3C float64 `json:"barrel_temp_zone3_c"`
	BarrelTempZone4C float64 `json:"barrel_temp_zone4_c"`
	NozzleTempC      float64 `json:"nozzle_temp_c"`
	MouldTempC       float64 `json:"mould_temp_c"`

	InjectionPressureBar float64 `json:"injection_pressure_bar"`
	InjectionSpeedMmS    float64 `json:"injection_speed_mm_s"`
	HoldPressureBar      float64 `json:"hold_pressure_bar"`
	HoldTimeSeconds      float64 `json:"hold_time_seconds"`
	CoolingTimeSeconds   float64 `json:"cooling_time_seconds"`
	CycleTimeSeconds     float64 `json:"cycle_time_seconds"`
	ShotWeightGrams      float64 `json:"shot_weight_grams"`
	CushionMm            float64 `json:"cushion_mm"`
	BackPressureBar      float64 `json:"back_pressure_bar"`
	ScrewSpeedRpm        float64 `json:"screw_speed_rpm"`

	Notes      string    `json:"notes"`
	ApprovedBy string    `json:"approved_by"`
	CreatedBy  int64     `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsValidStatus reports whether s is an accepted mould status.
func IsValidStatus(s string) bool {
	for _, status := range ValidStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// maintenanceDue reports whether the mould has passed its service date or
// accumulated enough shots since the last service.
func (m Mould) maintenanceDue(now time.Time) bool {
	if m.NextMaintenanceDate != nil && !now.Before(*m.NextMaintenanceDate) {
		return true
	}
	return m.MaintenanceIntervalShots > 0 && m.ShotsSinceMaintenance >= m.MaintenanceIntervalShots
}
