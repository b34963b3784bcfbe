package costing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Quote statuses.
const (
	QuoteDraft    = "draft"
	QuoteSent     = "sent"
	QuoteAccepted = "accepted"
	QuoteRejected = "rejected"
	QuoteExpired  = "expired"
)

// quoteTransitions is the allowed status graph. Draft quotes go out,
// sent quotes get answered or go stale, answered quotes stay put.
var quoteTransitions = map[string][]string{
	QuoteDraft:    {QuoteSent, QuoteRejected},
	QuoteSent:     {QuoteAccepted, QuoteRejected, QuoteExpired, QuoteDraft},
	QuoteAccepted: {},
	QuoteRejected: {QuoteDraft},
	QuoteExpired:  {QuoteDraft},
}

// CanTransition reports whether a quote may move between statuses.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, allowed := range quoteTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Quote is a priced proposal for an injection moulded part. Input
// parameters drive the calculator; the computed columns are persisted
// so lists and PDFs never re-derive them.
type Quote struct {
	ID          int64  `json:"id"`
	QuoteNumber string `json:"quote_number"`
	CustomerID  *int64 `json:"customer_id"`
	ItemID      *int64 `json:"item_id"`
	Description string `json:"description"`

	Quantity     int64 `json:"quantity"`
	AnnualVolume int64 `json:"annual_volume"`

	PartWeightG      float64 `json:"part_weight_g"`
	RunnerWeightG    float64 `json:"runner_weight_g"`
	CycleTimeSeconds float64 `json:"cycle_time_seconds"`
	Cavities         int     `json:"cavities"`

	MaterialType         string          `json:"material_type"`
	MaterialCostPerKg    decimal.Decimal `json:"material_cost_per_kg"`
	MachineRatePerHour   decimal.Decimal `json:"machine_rate_per_hour"`
	LabourRatePerHour    decimal.Decimal `json:"labour_rate_per_hour"`
	SetupHours           float64         `json:"setup_hours"`
	SecondaryOpsCost     decimal.Decimal `json:"secondary_ops_cost"`
	OverheadPercent      float64         `json:"overhead_percent"`
	PackagingCostPerPart decimal.Decimal `json:"packaging_cost_per_part"`
	TargetMarginPercent  float64         `json:"target_margin_percent"`

	ToolingCost            decimal.Decimal `json:"tooling_cost"`
	ToolingAmortizationQty int64           `json:"tooling_amortization_qty"`

	// Calculator outputs, refreshed on every save.
	MaterialCostPerPart decimal.Decimal `json:"material_cost_per_part"`
	CycleCostPerPart    decimal.Decimal `json:"cycle_cost_per_part"`
	SetupCostPerPart    decimal.Decimal `json:"setup_cost_per_part"`
	OverheadCostPerPart decimal.Decimal `json:"overhead_cost_per_part"`
	TotalCostPerPart    decimal.Decimal `json:"total_cost_per_part"`
	PricePerPart        decimal.Decimal `json:"price_per_part"`
	QuotedTotal         decimal.Decimal `json:"quoted_total"`

	ValidUntil   *time.Time `json:"valid_until"`
	Status       string     `json:"status"`
	SentAt       *time.Time `json:"sent_at"`
	SalesOrderID *int64     `json:"sales_order_id"`

	Notes         string    `json:"notes"`
	InternalNotes string    `json:"internal_notes"`
	CreatedBy     *int64    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Joined from customers on reads.
	CustomerName string `json:"customer_name"`
}

// applyDefaults fills the standard shop-floor assumptions into any
// zero-valued inputs on a new quote.
func (q *Quote) applyDefaults() {
	if q.Quantity == 0 {
		q.Quantity = 1000
	}
	if q.Cavities == 0 {
		q.Cavities = 1
	}
	if q.MachineRatePerHour.IsZero() {
		q.MachineRatePerHour = decimal.NewFromInt(45)
	}
	if q.LabourRatePerHour.IsZero() {
		q.LabourRatePerHour = decimal.NewFromInt(15)
	}
	if q.SetupHours == 0 {
		q.SetupHours = 2
	}
	if q.OverheadPercent == 0 {
		q.OverheadPercent = 20
	}
	if q.TargetMarginPercent == 0 {
		q.TargetMarginPercent = 30
	}
	if q.Status == "" {
		q.Status = QuoteDraft
	}
}

// QuoteFilter narrows the quote list.
type QuoteFilter struct {
	Search     string
	Status     string
	CustomerID int64
	Page       int
	Limit      int
}

// JobCosting compares what a production run actually cost against what
// was quoted. One row per production order, created on first view.
type JobCosting struct {
	ID                int64  `json:"id"`
	ProductionOrderID int64  `json:"production_order_id"`
	QuoteID           *int64 `json:"quote_id"`

	QuotedCostPerPart decimal.Decimal `json:"quoted_cost_per_part"`
	QuotedTotalCost   decimal.Decimal `json:"quoted_total_cost"`

	QuantityProduced int64 `json:"quantity_produced"`

	ActualMaterialKg  float64         `json:"actual_material_kg"`
	MaterialCostPerKg decimal.Decimal `json:"material_cost_per_kg"`

	LabourHours  float64         `json:"labour_hours"`
	LabourRate   decimal.Decimal `json:"labour_rate"`
	MachineHours float64         `json:"machine_hours"`
	MachineRate  decimal.Decimal `json:"machine_rate"`
	SetupHours   float64         `json:"setup_hours"`
	SetupRate    decimal.Decimal `json:"setup_rate"`

	ScrapQuantity int64           `json:"scrap_quantity"`
	ScrapCost     decimal.Decimal `json:"scrap_cost"`

	PackagingCost     decimal.Decimal `json:"packaging_cost"`
	SecondaryOpsCost  decimal.Decimal `json:"secondary_ops_cost"`
	OverheadAllocated decimal.Decimal `json:"overhead_allocated"`

	ActualSellingPrice decimal.Decimal `json:"actual_selling_price"`

	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MaterialCost is the spend on polymer for the run.
func (j JobCosting) MaterialCost() decimal.Decimal {
	return j.MaterialCostPerKg.Mul(decimal.NewFromFloat(j.ActualMaterialKg)).Round(2)
}

// LabourCost is operator hours at the applied rate.
func (j JobCosting) LabourCost() decimal.Decimal {
	return j.LabourRate.Mul(decimal.NewFromFloat(j.LabourHours)).Round(2)
}

// MachineCost is press hours at the applied rate.
func (j JobCosting) MachineCost() decimal.Decimal {
	return j.MachineRate.Mul(decimal.NewFromFloat(j.MachineHours)).Round(2)
}

// SetupCost is changeover hours at the setup rate.
func (j JobCosting) SetupCost() decimal.Decimal {
	return j.SetupRate.Mul(decimal.NewFromFloat(j.SetupHours)).Round(2)
}

// ActualTotalCost sums every actual cost bucket for the run.
func (j JobCosting) ActualTotalCost() decimal.Decimal {
	return j.MaterialCost().
		Add(j.LabourCost()).
		Add(j.MachineCost()).
		Add(j.SetupCost()).
		Add(j.ScrapCost).
		Add(j.PackagingCost).
		Add(j.SecondaryOpsCost).
		Add(j.OverheadAllocated)
}

// GrossProfit is revenue less actual cost.
func (j JobCosting) GrossProfit() decimal.Decimal {
	return j.ActualSellingPrice.Sub(j.ActualTotalCost())
}

// GrossMarginPercent is profit over revenue, zero without revenue.
func (j JobCosting) GrossMarginPercent() float64 {
	if j.ActualSellingPrice.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	margin, _ := j.GrossProfit().Div(j.ActualSellingPrice).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	return margin
}

// CostVariance is actual over (positive) or under (negative) quote.
func (j JobCosting) CostVariance() decimal.Decimal {
	return j.ActualTotalCost().Sub(j.QuotedTotalCost)
}

// CostVariancePercent is the variance relative to the quoted cost,
// zero when nothing was quoted.
func (j JobCosting) CostVariancePercent() float64 {
	if j.QuotedTotalCost.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	pct, _ := j.CostVariance().Div(j.QuotedTotalCost).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	return pct
}

// MaterialUsage records planned versus actual polymer consumption for
// one production order.
type MaterialUsage struct {
	ID                int64           `json:"id"`
	ProductionOrderID int64           `json:"production_order_id"`
	MaterialName      string          `json:"material_name"`
	PlannedKg         float64         `json:"planned_kg"`
	ActualKg          float64         `json:"actual_kg"`
	CostPerKg         decimal.Decimal `json:"cost_per_kg"`
	Notes             string          `json:"notes"`
	CreatedAt         time.Time       `json:"created_at"`
}

// ActualCost is the spend implied by the recorded usage.
func (u MaterialUsage) ActualCost() decimal.Decimal {
	return u.CostPerKg.Mul(decimal.NewFromFloat(u.ActualKg)).Round(2)
}

// MachineRate prices an hour on one press from a given date.
type MachineRate struct {
	ID                  int64           `json:"id"`
	MachineID           int64           `json:"machine_id"`
	HourlyRate          decimal.Decimal `json:"hourly_rate"`
	SetupRate           decimal.Decimal `json:"setup_rate"`
	EnergyRatePerKwh    decimal.Decimal `json:"energy_rate_per_kwh"`
	RunningKw           float64         `json:"running_kw"`
	OverheadRatePerHour decimal.Decimal `json:"overhead_rate_per_hour"`
	EffectiveFrom       time.Time       `json:"effective_from"`
	CreatedAt           time.Time       `json:"created_at"`
}

// LabourRate prices an hour of one role from a given date.
type LabourRate struct {
	ID                 int64           `json:"id"`
	Role               string          `json:"role"`
	HourlyRate         decimal.Decimal `json:"hourly_rate"`
	OvertimeMultiplier float64         `json:"overtime_multiplier"`
	EffectiveFrom      time.Time       `json:"effective_from"`
	CreatedAt          time.Time       `json:"created_at"`
}

// CreateQuoteRequest carries a new quote's inputs.
type CreateQuoteRequest struct {
	Quote   Quote
	ActorID int64
}

// UpdateQuoteRequest replaces a quote's inputs and recalculates.
type UpdateQuoteRequest struct {
	Quote   Quote
	ActorID int64
}

// RecordActualsRequest updates a job costing's actuals.
type RecordActualsRequest struct {
	QuoteID            *int64
	QuantityProduced   *int64
	ActualMaterialKg   *float64
	MaterialCostPerKg  *decimal.Decimal
	LabourHours        *float64
	LabourRate         *decimal.Decimal
	MachineHours       *float64
	MachineRate        *decimal.Decimal
	SetupHours         *float64
	SetupRate          *decimal.Decimal
	ScrapQuantity      *int64
	ScrapCost          *decimal.Decimal
	PackagingCost      *decimal.Decimal
	SecondaryOpsCost   *decimal.Decimal
	OverheadAllocated  *decimal.Decimal
	ActualSellingPrice *decimal.Decimal
	Notes              *string
	ActorID            int64
}

// ConvertResult links the quote to the order it produced.
type ConvertResult struct {
	Quote       Quote  `json:"quote"`
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
}

var (
	ErrNotFound          = errors.New("costing: not found")
	ErrValidation        = errors.New("costing: validation failed")
	ErrInvalidTransition = errors.New("costing: invalid quote status change")
	ErrNotAccepted       = errors.New("costing: only accepted quotes convert to orders")
	ErrAlreadyConverted  = errors.New("costing: quote already converted")
	ErrNoCurrentRate     = errors.New("costing: no rate effective for the date")
)
