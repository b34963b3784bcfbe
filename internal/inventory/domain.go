package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates the ledger entry kinds.
type MovementType string

const (
	// MovementReceipt is inbound stock from goods-in or production.
	MovementReceipt MovementType = "receipt"
	// MovementMove relocates stock between two locations.
	MovementMove MovementType = "movement"
	// MovementAdjustment is a signed correction from a stock count.
	MovementAdjustment MovementType = "adjustment"
	// MovementProduction books moulded parts into stock.
	MovementProduction MovementType = "production"
	// MovementShipment issues stock against a delivery.
	MovementShipment MovementType = "shipment"
)

// Item types.
const (
	TypeRawMaterial   = "raw_material"
	TypeMasterbatch   = "masterbatch"
	TypeFinishedGoods = "finished_goods"
	TypeRegrind       = "regrind"
	TypePackaging     = "packaging"
	TypeComponent     = "component"
)

// ValidItemTypes lists the accepted item types.
var ValidItemTypes = []string{
	TypeRawMaterial, TypeMasterbatch, TypeFinishedGoods, TypeRegrind, TypePackaging, TypeComponent,
}

// Item is a stockable article: finished goods, raw material, packaging.
type Item struct {
	ID            int64  `json:"id"`
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Barcode       string `json:"barcode"`
	Category      string `json:"category"`
	ItemType      string `json:"item_type"`
	UnitOfMeasure string `json:"unit_of_measure"`

	UnitCost     decimal.Decimal `json:"unit_cost"`
	SellingPrice decimal.Decimal `json:"selling_price"`

	ReorderPoint  float64 `json:"reorder_point"`
	MinStockLevel float64 `json:"min_stock_level"`
	MaxStockLevel float64 `json:"max_stock_level"`

	// Moulding data used for cost and schedule estimates.
	PartWeightGrams   float64 `json:"part_weight_grams"`
	RunnerWeightGrams float64 `json:"runner_weight_grams"`
	Cavities          int     `json:"cavities"`
	IdealCycleTime    float64 `json:"ideal_cycle_time"`
	SetupTimeHours    float64 `json:"setup_time_hours"`

	DefaultMouldID      *int64          `json:"default_mould_id"`
	MaterialID          *int64          `json:"material_id"`
	MasterbatchID       *int64          `json:"masterbatch_id"`
	MasterbatchRatioPct float64         `json:"masterbatch_ratio_percent"`
	RegrindPercent      float64         `json:"regrind_percent"`
	MaterialCostPerKg   decimal.Decimal `json:"material_cost_per_kg"`
	TargetMachineRate   decimal.Decimal `json:"target_machine_rate"`
	TargetMarginPercent float64         `json:"target_margin_percent"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Derived, populated on reads.
	MaterialCostPerPart   decimal.Decimal `json:"material_cost_per_part"`
	CycleCostPerPart      decimal.Decimal `json:"cycle_cost_per_part"`
	TotalCostPerPart      decimal.Decimal `json:"total_cost_per_part"`
	SuggestedSellingPrice decimal.Decimal `json:"suggested_selling_price"`
	TotalStock            float64         `json:"total_stock"`
	IsLowStock            bool            `json:"is_low_stock"`
}

// StockLevel is the on-hand quantity for one item in one location.
type StockLevel struct {
	ID                int64      `json:"id"`
	ItemID            int64      `json:"item_id"`
	LocationID        int64      `json:"location_id"`
	Quantity          float64    `json:"quantity"`
	AllocatedQuantity float64    `json:"allocated_quantity"`
	BatchNumber       string     `json:"batch_number"`
	LastCountDate     *time.Time `json:"last_count_date"`
	UpdatedAt         time.Time  `json:"updated_at"`

	// Joined from locations on reads.
	LocationCode string `json:"location_code"`
	LocationName string `json:"location_name"`
}

// Available is the portion not reserved for orders.
func (s StockLevel) Available() float64 {
	available := s.Quantity - s.AllocatedQuantity
	if available < 0 {
		return 0
	}
	return available
}

// StockMovement is one append-only ledger row. Quantity is signed for
// adjustments and shipments; receipts, moves and production are positive.
type StockMovement struct {
	ID             int64        `json:"id"`
	ItemID         int64        `json:"item_id"`
	MovementType   MovementType `json:"movement_type"`
	Quantity       float64      `json:"quantity"`
	FromLocationID *int64       `json:"from_location_id"`
	ToLocationID   *int64       `json:"to_location_id"`
	Reference      string       `json:"reference"`
	BatchNumber    string       `json:"batch_number"`
	Notes          string       `json:"notes"`
	UserID         int64        `json:"user_id"`
	CreatedAt      time.Time    `json:"created_at"`
}

// ReceiveInput books stock into a location.
type ReceiveInput struct {
	ItemID         int64
	LocationID     int64
	Quantity       float64
	BatchNumber    string
	Reference      string
	Notes          string
	MovementType   MovementType // defaults to receipt; production completion passes production
	ActorID        int64
	IdempotencyKey string
}

// MoveInput relocates stock between locations.
type MoveInput struct {
	ItemID         int64
	FromLocationID int64
	ToLocationID   int64
	Quantity       float64
	Reference      string
	Notes          string
	ActorID        int64
	IdempotencyKey string
}

// AdjustInput sets the counted quantity for an item in a location.
type AdjustInput struct {
	ItemID         int64
	LocationID     int64
	NewQuantity    float64
	Reason         string
	ActorID        int64
	IdempotencyKey string
}

// ShipInput issues stock out against a delivery.
type ShipInput struct {
	ItemID         int64
	LocationID     int64
	Quantity       float64
	Reference      string
	Notes          string
	ActorID        int64
	IdempotencyKey string
}

// MovementFilter bounds ledger queries.
type MovementFilter struct {
	ItemID       int64
	MovementType MovementType
	From         time.Time
	To           time.Time
	Limit        int
}

// ItemFilter bounds item list queries.
type ItemFilter struct {
	Search   string
	ItemType string
	Category string
	IsActive *bool
	Page     int
	Limit    int
}

// ErrNotFound indicates a missing item or stock level.
var ErrNotFound = errors.New("inventory: not found")

// ErrInvalidQuantity indicates a non-positive quantity where one is required.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")

// ErrInsufficientStock triggers when a move or shipment exceeds the source.
var ErrInsufficientStock = errors.New("inventory: insufficient stock at source")

// ErrDuplicateSKU indicates the sku or barcode is already taken.
var ErrDuplicateSKU = errors.New("inventory: sku already exists")

// ErrAllocationExceedsStock indicates a reservation beyond on-hand quantity.
var ErrAllocationExceedsStock = errors.New("inventory: allocation exceeds on-hand quantity")

// ErrValidation flags bad input; the message carries the detail.
var ErrValidation = errors.New("inventory: validation failed")

// MaterialCostForPart returns the polymer cost of one moulding: part weight
// plus the runner share amortised across cavities, priced per kg. Zero when
// weights or material cost are missing.
func (i Item) MaterialCostForPart() decimal.Decimal {
	if i.PartWeightGrams <= 0 || !i.MaterialCostPerKg.IsPositive() {
		return decimal.Zero
	}
	cavities := i.Cavities
	if cavities < 1 {
		cavities = 1
	}
	grams := i.PartWeightGrams + i.RunnerWeightGrams/float64(cavities)
	return decimal.NewFromFloat(grams / 1000).Mul(i.MaterialCostPerKg).Round(4)
}

// CycleCostForPart returns the machine-time cost of one moulding at the
// target machine rate. Zero unless the cycle time is set.
func (i Item) CycleCostForPart() decimal.Decimal {
	if i.IdealCycleTime <= 0 || !i.TargetMachineRate.IsPositive() {
		return decimal.Zero
	}
	cavities := i.Cavities
	if cavities < 1 {
		cavities = 1
	}
	partsPerHour := (3600 / i.IdealCycleTime) * float64(cavities)
	return i.TargetMachineRate.Div(decimal.NewFromFloat(partsPerHour)).Round(4)
}

// SuggestedPrice derives a selling price from total cost and target margin.
// Margins of 100% or more fall back to a plain doubling.
func (i Item) SuggestedPrice(totalCost decimal.Decimal) decimal.Decimal {
	if !totalCost.IsPositive() {
		return decimal.Zero
	}
	margin := i.TargetMarginPercent
	if margin <= 0 {
		return totalCost
	}
	if margin >= 100 {
		return totalCost.Mul(decimal.NewFromInt(2)).Round(4)
	}
	return totalCost.Div(decimal.NewFromFloat(1 - margin/100)).Round(4)
}

// lowStock applies the threshold precedence: reorder point when set, then
// minimum stock level, otherwise never low.
func (i Item) lowStock(total float64) bool {
	if i.ReorderPoint > 0 {
		return total <= i.ReorderPoint
	}
	if i.MinStockLevel > 0 {
		return total <= i.MinStockLevel
	}
	return false
}

// IsValidItemType reports whether t is an accepted item type.
func IsValidItemType(t string) bool {
	for _, valid := range ValidItemTypes {
		if t == valid {
			return true
		}
	}
	return false
}
