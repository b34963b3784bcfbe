package costing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// CostBreakdown is the full working behind a quoted price. Per-part
// figures carry four decimal places; run totals carry two.
type CostBreakdown struct {
	ShotWeightKg float64 `json:"shot_weight_kg"`

	MaterialCostPerPart  decimal.Decimal `json:"material_cost_per_part"`
	CycleCostPerPart     decimal.Decimal `json:"cycle_cost_per_part"`
	SetupCost            decimal.Decimal `json:"setup_cost"`
	SetupCostPerPart     decimal.Decimal `json:"setup_cost_per_part"`
	SecondaryOpsCost     decimal.Decimal `json:"secondary_ops_cost"`
	PackagingCostPerPart decimal.Decimal `json:"packaging_cost_per_part"`
	DirectCostPerPart    decimal.Decimal `json:"direct_cost_per_part"`
	OverheadCostPerPart  decimal.Decimal `json:"overhead_cost_per_part"`
	TotalCostPerPart     decimal.Decimal `json:"total_cost_per_part"`

	ToolingCostPerPart decimal.Decimal `json:"tooling_cost_per_part"`

	PricePerPart decimal.Decimal `json:"price_per_part"`
	QuotedTotal  decimal.Decimal `json:"quoted_total"`
}

// Calculate prices a quote from its inputs. Every division is guarded:
// zero cavities count as one, zero quantity drops setup amortisation,
// and a margin at or past 100% falls back to doubling the cost.
func Calculate(q Quote) CostBreakdown {
	cavities := q.Cavities
	if cavities < 1 {
		cavities = 1
	}

	shotKg := (q.PartWeightG + q.RunnerWeightG) / 1000
	material := q.MaterialCostPerKg.Mul(decimal.NewFromFloat(shotKg / float64(cavities)))

	ratePerHour := q.MachineRatePerHour.Add(q.LabourRatePerHour)
	cycle := ratePerHour.Mul(decimal.NewFromFloat(q.CycleTimeSeconds / 3600 / float64(cavities)))

	setup := ratePerHour.Mul(decimal.NewFromFloat(q.SetupHours))
	setupPerPart := decimal.Zero
	if q.Quantity > 0 {
		setupPerPart = setup.Div(decimal.NewFromInt(q.Quantity))
	}

	direct := material.Add(cycle).Add(setupPerPart).Add(q.SecondaryOpsCost).Add(q.PackagingCostPerPart)
	overhead := direct.Mul(decimal.NewFromFloat(q.OverheadPercent)).Div(hundred)
	total := direct.Add(overhead)

	var price decimal.Decimal
	switch {
	case q.TargetMarginPercent <= 0:
		price = total
	case q.TargetMarginPercent >= 100:
		price = total.Mul(decimal.NewFromInt(2))
	default:
		price = total.Div(decimal.NewFromFloat(1 - q.TargetMarginPercent/100))
	}

	toolingPerPart := decimal.Zero
	if q.ToolingAmortizationQty > 0 {
		toolingPerPart = q.ToolingCost.Div(decimal.NewFromInt(q.ToolingAmortizationQty))
	}

	return CostBreakdown{
		ShotWeightKg:         shotKg,
		MaterialCostPerPart:  material.Round(4),
		CycleCostPerPart:     cycle.Round(4),
		SetupCost:            setup.Round(2),
		SetupCostPerPart:     setupPerPart.Round(4),
		SecondaryOpsCost:     q.SecondaryOpsCost.Round(4),
		PackagingCostPerPart: q.PackagingCostPerPart.Round(4),
		DirectCostPerPart:    direct.Round(4),
		OverheadCostPerPart:  overhead.Round(4),
		TotalCostPerPart:     total.Round(4),
		ToolingCostPerPart:   toolingPerPart.Round(4),
		PricePerPart:         price.Round(4),
		QuotedTotal:          price.Mul(decimal.NewFromInt(q.Quantity)).Round(2),
	}
}

// apply copies the breakdown into the quote's persisted columns.
func (q *Quote) apply(b CostBreakdown) {
	q.MaterialCostPerPart = b.MaterialCostPerPart
	q.CycleCostPerPart = b.CycleCostPerPart
	q.SetupCostPerPart = b.SetupCostPerPart
	q.OverheadCostPerPart = b.OverheadCostPerPart
	q.TotalCostPerPart = b.TotalCostPerPart
	q.PricePerPart = b.PricePerPart
	q.QuotedTotal = b.QuotedTotal
}
