package locations

import (
	"time"

	"github.com/shopspring/decimal"
)

// LocationType enumerates physical storage areas on site.
const (
	TypeContainer = "container"
	TypeOutdoor   = "outdoor"
	TypeUpstairs  = "upstairs"
	TypeRack      = "rack"
	TypeFloor     = "floor"
)

// Location represents a storage location in the warehouse.
type Location struct {
	ID           int64     `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Zone         string    `json:"zone"`
	LocationType string    `json:"location_type"`
	MaxCapacity  int       `json:"max_capacity"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Contents summarises what is stored at a location.
type Contents struct {
	ItemID   int64           `json:"item_id"`
	SKU      string          `json:"sku"`
	ItemName string          `json:"item_name"`
	Quantity decimal.Decimal `json:"quantity"`
	Batch    string          `json:"batch_number,omitempty"`
}

// ValidTypes lists the accepted location types.
func ValidTypes() []string {
	return []string{TypeContainer, TypeOutdoor, TypeUpstairs, TypeRack, TypeFloor}
}

// IsValidType reports whether t is an accepted location type.
func IsValidType(t string) bool {
	for _, v := range ValidTypes() {
		if v == t {
			return true
		}
	}
	return false
}
